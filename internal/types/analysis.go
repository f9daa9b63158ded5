// Package types provides type definitions for the structured documents produced by the analysis pipeline.
//
//nolint:revive // types is a standard Go package name pattern
package types

import (
	"fmt"
	"strings"
)

// Question is one solved question of a homework-style document
type Question struct {
	QID          string         `json:"qid"`
	QuestionText string         `json:"question_text"`
	Parts        []QuestionPart `json:"parts"`
}

// QuestionPart is one labelled sub-answer of a question
type QuestionPart struct {
	Label    string `json:"label"`
	Answer   string `json:"answer"`
	Workings string `json:"workings"`
}

// HomeworkOutput is the single-shot result for short documents
type HomeworkOutput struct {
	DocumentID string     `json:"document_id"`
	Questions  []Question `json:"questions"`
}

// Blueprint is the plan of a long-form assignment
type Blueprint struct {
	Title       string             `json:"title"`
	Description string             `json:"description"`
	Subject     string             `json:"subject,omitempty"`
	Topic       string             `json:"topic,omitempty"`
	Sections    []BlueprintSection `json:"sections"`
}

// BlueprintSection is one planned section. ID is the join key for SectionResult.SectionID.
type BlueprintSection struct {
	ID         string   `json:"id"`
	Title      string   `json:"title"`
	Objectives []string `json:"objectives"`
	KeyPoints  []string `json:"key_points"`
}

// SectionResult is the expanded content for one blueprint section
type SectionResult struct {
	SectionID string   `json:"section_id"`
	Content   string   `json:"content"`
	Citations []string `json:"citations,omitempty"`
}

// Validate checks that the blueprint can drive section expansion
func (b *Blueprint) Validate() error {
	if len(b.Sections) == 0 {
		return fmt.Errorf("blueprint has no sections")
	}
	seen := make(map[string]bool, len(b.Sections))
	for i, s := range b.Sections {
		id := strings.TrimSpace(s.ID)
		if id == "" {
			return fmt.Errorf("blueprint section %d has an empty id", i)
		}
		if seen[id] {
			return fmt.Errorf("blueprint section id %q is not unique", id)
		}
		seen[id] = true
	}
	return nil
}

// Section returns the planned section with the given id
func (b *Blueprint) Section(id string) (BlueprintSection, bool) {
	for _, s := range b.Sections {
		if s.ID == id {
			return s, true
		}
	}
	return BlueprintSection{}, false
}

// Validate checks that a section result carries content
func (s *SectionResult) Validate() error {
	if strings.TrimSpace(s.Content) == "" {
		return fmt.Errorf("section %q has no content", s.SectionID)
	}
	return nil
}

// AssignmentOutput is the long-form result, partial while sections are still being expanded
type AssignmentOutput struct {
	DocumentID  string          `json:"-"`
	Title       string          `json:"title"`
	Blueprint   Blueprint       `json:"blueprint"`
	Sections    []SectionResult `json:"sections"`
	FullContent string          `json:"full_content,omitempty"`
}

// AssignmentCheckpoint is the resumable progress of a multi-phase generation
type AssignmentCheckpoint struct {
	SourceID  string
	Blueprint Blueprint
	Sections  []SectionResult
}

// Checkpoint extracts the resumable state from a (possibly partial) assignment output
func (a *AssignmentOutput) Checkpoint(sourceID string) *AssignmentCheckpoint {
	return &AssignmentCheckpoint{
		SourceID:  sourceID,
		Blueprint: a.Blueprint,
		Sections:  append([]SectionResult(nil), a.Sections...),
	}
}
