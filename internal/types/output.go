package types

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/royengg/homeworkai/internal/schemas"
)

// OutputType discriminates the two analysis output variants
type OutputType string

// Output variants
const (
	OutputHomework   OutputType = "homework"
	OutputAssignment OutputType = "assignment"
)

// ErrInvalidOutput is wrapped by every output decoding or validation failure
var ErrInvalidOutput = errors.New("invalid analysis output")

// AnalysisOutput is the tagged union stored in an analysis record's output column.
// Exactly one of Homework or Assignment is set, matching Type.
type AnalysisOutput struct {
	Type       OutputType
	Homework   *HomeworkOutput
	Assignment *AssignmentOutput
}

// NewHomeworkOutput wraps a single-shot result
func NewHomeworkOutput(h *HomeworkOutput) *AnalysisOutput {
	return &AnalysisOutput{Type: OutputHomework, Homework: h}
}

// NewAssignmentOutput wraps a long-form result
func NewAssignmentOutput(a *AssignmentOutput) *AnalysisOutput {
	return &AnalysisOutput{Type: OutputAssignment, Assignment: a}
}

type homeworkWire struct {
	DocumentID string     `json:"document_id"`
	Type       OutputType `json:"type"`
	Questions  []Question `json:"questions"`
}

type assignmentWire struct {
	DocumentID string            `json:"document_id"`
	Type       OutputType        `json:"type"`
	Assignment *AssignmentOutput `json:"assignment"`
}

// MarshalJSON encodes the variant selected by Type and validates it against its schema
func (o AnalysisOutput) MarshalJSON() ([]byte, error) {
	var (
		data       []byte
		err        error
		schemaName string
	)

	switch o.Type {
	case OutputHomework:
		if o.Homework == nil {
			return nil, fmt.Errorf("%w: homework output is empty", ErrInvalidOutput)
		}
		data, err = json.Marshal(homeworkWire{
			DocumentID: o.Homework.DocumentID,
			Type:       OutputHomework,
			Questions:  normalizeQuestions(o.Homework.Questions),
		})
		schemaName = schemas.HomeworkOutputSchema
	case OutputAssignment:
		if o.Assignment == nil {
			return nil, fmt.Errorf("%w: assignment output is empty", ErrInvalidOutput)
		}
		a := *o.Assignment
		if a.Sections == nil {
			a.Sections = []SectionResult{}
		}
		a.Blueprint.Sections = normalizeBlueprintSections(a.Blueprint.Sections)
		data, err = json.Marshal(assignmentWire{
			DocumentID: a.DocumentID,
			Type:       OutputAssignment,
			Assignment: &a,
		})
		schemaName = schemas.AssignmentOutputSchema
	default:
		return nil, fmt.Errorf("%w: unknown output type %q", ErrInvalidOutput, o.Type)
	}
	if err != nil {
		return nil, err
	}

	if err := schemas.ValidateDocument(schemaName, data); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidOutput, err)
	}
	return data, nil
}

// UnmarshalJSON validates the document against the schema for its type tag before decoding.
// A missing tag is read as homework, the shape of records written before the tag existed.
func (o *AnalysisOutput) UnmarshalJSON(data []byte) error {
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(data, &probe); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidOutput, err)
	}

	outputType := OutputHomework
	if raw, ok := probe["type"]; ok {
		if err := json.Unmarshal(raw, &outputType); err != nil {
			return fmt.Errorf("%w: type tag: %v", ErrInvalidOutput, err)
		}
	} else {
		probe["type"] = json.RawMessage(`"homework"`)
		tagged, err := json.Marshal(probe)
		if err != nil {
			return err
		}
		data = tagged
	}

	switch outputType {
	case OutputHomework:
		if err := schemas.ValidateDocument(schemas.HomeworkOutputSchema, data); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidOutput, err)
		}
		var wire homeworkWire
		if err := json.Unmarshal(data, &wire); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidOutput, err)
		}
		*o = AnalysisOutput{
			Type:     OutputHomework,
			Homework: &HomeworkOutput{DocumentID: wire.DocumentID, Questions: wire.Questions},
		}
	case OutputAssignment:
		if err := schemas.ValidateDocument(schemas.AssignmentOutputSchema, data); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidOutput, err)
		}
		var wire assignmentWire
		if err := json.Unmarshal(data, &wire); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidOutput, err)
		}
		wire.Assignment.DocumentID = wire.DocumentID
		*o = AnalysisOutput{Type: OutputAssignment, Assignment: wire.Assignment}
	default:
		return fmt.Errorf("%w: unknown output type %q", ErrInvalidOutput, outputType)
	}
	return nil
}

// Nil slices encode as null, which the schemas reject; emit [] instead.
func normalizeQuestions(questions []Question) []Question {
	out := make([]Question, len(questions))
	for i, q := range questions {
		if q.Parts == nil {
			q.Parts = []QuestionPart{}
		}
		out[i] = q
	}
	return out
}

func normalizeBlueprintSections(sections []BlueprintSection) []BlueprintSection {
	if sections == nil {
		return nil
	}
	out := make([]BlueprintSection, len(sections))
	for i, s := range sections {
		if s.Objectives == nil {
			s.Objectives = []string{}
		}
		if s.KeyPoints == nil {
			s.KeyPoints = []string{}
		}
		out[i] = s
	}
	return out
}
