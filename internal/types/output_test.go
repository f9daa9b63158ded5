package types

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleBlueprint() Blueprint {
	return Blueprint{
		Title:       "Distributed Systems",
		Description: "A long-form study",
		Sections: []BlueprintSection{
			{ID: "intro", Title: "Introduction", Objectives: []string{"frame"}, KeyPoints: []string{"scope"}},
			{ID: "consensus", Title: "Consensus", Objectives: []string{"explain"}, KeyPoints: []string{"raft"}},
		},
	}
}

func TestAnalysisOutput_HomeworkWireShape(t *testing.T) {
	out := NewHomeworkOutput(&HomeworkOutput{
		DocumentID: "d1",
		Questions: []Question{{
			QID:          "Q1",
			QuestionText: "What is 2+2?",
			Parts:        []QuestionPart{{Label: "(a)", Answer: "4", Workings: "2+2=4"}},
		}},
	})

	data, err := json.Marshal(out)
	require.NoError(t, err)

	var wire map[string]any
	require.NoError(t, json.Unmarshal(data, &wire))
	assert.Equal(t, "homework", wire["type"])
	assert.Equal(t, "d1", wire["document_id"])
	assert.Len(t, wire["questions"], 1)

	var decoded AnalysisOutput
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, OutputHomework, decoded.Type)
	assert.Nil(t, decoded.Assignment)
	assert.Equal(t, out.Homework, decoded.Homework)
}

func TestAnalysisOutput_AssignmentWireShape(t *testing.T) {
	out := NewAssignmentOutput(&AssignmentOutput{
		DocumentID:  "asm:abc",
		Title:       "Distributed Systems",
		Blueprint:   sampleBlueprint(),
		Sections:    []SectionResult{{SectionID: "intro", Content: "hello"}},
		FullContent: "# Distributed Systems",
	})

	data, err := json.Marshal(out)
	require.NoError(t, err)

	var wire struct {
		DocumentID string         `json:"document_id"`
		Type       string         `json:"type"`
		Assignment map[string]any `json:"assignment"`
	}
	require.NoError(t, json.Unmarshal(data, &wire))
	assert.Equal(t, "assignment", wire.Type)
	assert.Equal(t, "asm:abc", wire.DocumentID)
	assert.Contains(t, wire.Assignment, "blueprint")
	assert.Contains(t, wire.Assignment, "full_content")

	var decoded AnalysisOutput
	require.NoError(t, json.Unmarshal(data, &decoded))
	require.NotNil(t, decoded.Assignment)
	assert.Equal(t, "asm:abc", decoded.Assignment.DocumentID)
	assert.Equal(t, out.Assignment.Sections, decoded.Assignment.Sections)
}

func TestAnalysisOutput_MissingTagReadsAsHomework(t *testing.T) {
	var decoded AnalysisOutput
	err := json.Unmarshal([]byte(`{"document_id": "d1", "questions": []}`), &decoded)
	require.NoError(t, err)
	assert.Equal(t, OutputHomework, decoded.Type)
	assert.Equal(t, "d1", decoded.Homework.DocumentID)
}

func TestAnalysisOutput_RejectsInvalidDocuments(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{name: "unknown tag", data: `{"document_id": "d1", "type": "essay"}`},
		{name: "assignment without blueprint", data: `{"document_id": "d1", "type": "assignment", "assignment": {"title": "x", "sections": []}}`},
		{name: "homework with wrong field type", data: `{"document_id": 7, "type": "homework", "questions": []}`},
		{name: "not an object", data: `[1, 2]`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var decoded AnalysisOutput
			err := json.Unmarshal([]byte(tt.data), &decoded)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidOutput)
		})
	}
}

func TestAnalysisOutput_MarshalRejectsMismatchedVariant(t *testing.T) {
	_, err := json.Marshal(&AnalysisOutput{Type: OutputAssignment})
	assert.ErrorIs(t, err, ErrInvalidOutput)

	_, err = json.Marshal(&AnalysisOutput{Type: "essay"})
	assert.ErrorIs(t, err, ErrInvalidOutput)
}

func TestBlueprint_Validate(t *testing.T) {
	bp := sampleBlueprint()
	assert.NoError(t, bp.Validate())

	empty := Blueprint{Title: "x"}
	assert.Error(t, empty.Validate())

	dup := sampleBlueprint()
	dup.Sections[1].ID = "intro"
	assert.ErrorContains(t, dup.Validate(), "not unique")

	blank := sampleBlueprint()
	blank.Sections[0].ID = "  "
	assert.ErrorContains(t, blank.Validate(), "empty id")
}

func TestBlueprint_Section(t *testing.T) {
	bp := sampleBlueprint()
	s, ok := bp.Section("consensus")
	require.True(t, ok)
	assert.Equal(t, "Consensus", s.Title)

	_, ok = bp.Section("missing")
	assert.False(t, ok)
}

func TestAssignmentOutput_CheckpointCopiesSections(t *testing.T) {
	a := &AssignmentOutput{
		Blueprint: sampleBlueprint(),
		Sections:  []SectionResult{{SectionID: "intro", Content: "x"}},
	}
	cp := a.Checkpoint("prev")
	cp.Sections[0].Content = "changed"

	assert.Equal(t, "prev", cp.SourceID)
	assert.Equal(t, "x", a.Sections[0].Content)
}
