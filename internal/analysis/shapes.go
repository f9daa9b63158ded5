package analysis

import "github.com/royengg/homeworkai/internal/llm"

var stringList = llm.ArrayOf(llm.String(""), "")

// HomeworkShape is the single-shot solution of a homework document
var HomeworkShape = llm.Shape{
	Name: "homework_output",
	Schema: llm.Object(map[string]*llm.Schema{
		"document_id": llm.String("Short stable identifier of the document"),
		"questions": llm.ArrayOf(llm.Object(map[string]*llm.Schema{
			"qid":           llm.String("Question identifier as printed, e.g. Q1"),
			"question_text": llm.String("Clean question text"),
			"parts": llm.ArrayOf(llm.Object(map[string]*llm.Schema{
				"label":    llm.String("Part label, e.g. (a)"),
				"answer":   llm.String("Short final answer"),
				"workings": llm.String("Full derivation or explanation"),
			}), "Answered parts of the question"),
		}), "Questions in document order"),
	}),
	Temperature:     0.2,
	MaxOutputTokens: 8000,
}

// BlueprintShape is the plan of a long-form assignment
var BlueprintShape = llm.Shape{
	Name: "assignment_blueprint",
	Schema: llm.Object(map[string]*llm.Schema{
		"title":       llm.String("Assignment title"),
		"subject":     llm.String("Discipline"),
		"topic":       llm.String("Specific problem or research area"),
		"description": llm.String("Overview of the whole assignment"),
		"sections": minItems(llm.ArrayOf(llm.Object(map[string]*llm.Schema{
			"id":         llm.String("Short unique section id"),
			"title":      llm.String("Section title"),
			"objectives": stringList,
			"key_points": stringList,
		}), "Ordered sections"), 1),
	}, "subject", "topic"),
	Temperature:     0.3,
	MaxOutputTokens: 8192,
}

// SectionShape is the expanded content of one blueprint section
var SectionShape = llm.Shape{
	Name: "assignment_section",
	Schema: llm.Object(map[string]*llm.Schema{
		"section_id": llm.String("Id of the target section"),
		"content":    llm.String("Section body in markdown"),
		"citations":  stringList,
	}, "citations"),
	Temperature:     0.5,
	MaxOutputTokens: 8192,
}

func minItems(s *llm.Schema, n int) *llm.Schema {
	s.MinItems = n
	return s
}
