package analysis

import (
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"
)

// AssignmentThreshold is the text length, in characters, above which a
// document is always treated as an assignment
const AssignmentThreshold = 5000

var assignmentMarkers = []string{"assignment", "syllabus"}

// IsAssignment reports whether text should use the multi-phase assignment
// strategy: it is longer than AssignmentThreshold characters or mentions an
// assignment or syllabus.
func IsAssignment(text string) bool {
	if utf8.RuneCountInString(text) > AssignmentThreshold {
		return true
	}
	lower := strings.ToLower(text)
	for _, marker := range assignmentMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

// llmInput is the input contract of the analysis prompts
type llmInput struct {
	Text []string `json:"text"`
}

// MakeLLMInput converts extracted document text to the prompt input JSON:
// {"text": [...]} holding the non-empty trimmed lines in order.
func MakeLLMInput(text string) (string, error) {
	lines := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n")
	in := llmInput{Text: make([]string, 0, len(lines))}
	for _, line := range lines {
		if trimmed := strings.TrimSpace(line); trimmed != "" {
			in.Text = append(in.Text, trimmed)
		}
	}
	data, err := json.Marshal(in)
	if err != nil {
		return "", fmt.Errorf("failed to marshal llm input: %w", err)
	}
	return string(data), nil
}
