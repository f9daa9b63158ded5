// Package observability provides structured logging setup and formatted
// output for the CLI.
package observability

import (
	"fmt"
	"io"
	"strings"

	"github.com/royengg/homeworkai/internal/db"
	"github.com/royengg/homeworkai/internal/types"
)

const (
	// boxWidth is the default width for formatted output boxes
	boxWidth = 60
	// maxItemsToShow is the default number of items to display in lists
	maxItemsToShow = 5
)

// Printer handles formatted output for the status command
type Printer struct {
	out io.Writer
}

// NewPrinter creates a new Printer that writes to the given writer
func NewPrinter(out io.Writer) *Printer {
	return &Printer{out: out}
}

// printBox prints a formatted box with a title and content
//
//nolint:errcheck // writing to stdout; errors are not recoverable
func (p *Printer) printBox(title string, content string) {
	border := strings.Repeat("─", boxWidth-2)
	fmt.Fprintf(p.out, "┌%s┐\n", border)
	fmt.Fprintf(p.out, "│ %-*s │\n", boxWidth-4, title)
	fmt.Fprintf(p.out, "├%s┤\n", border)

	for _, line := range strings.Split(content, "\n") {
		fmt.Fprintf(p.out, "│ %-*s │\n", boxWidth-4, truncate(line, boxWidth-4))
	}

	fmt.Fprintf(p.out, "└%s┘\n", border)
}

func truncate(s string, width int) string {
	runes := []rune(s)
	if len(runes) <= width {
		return s
	}
	return string(runes[:width-3]) + "..."
}

// PrintAnalysis outputs the record status followed by a summary of its output.
// job may be nil when the queue entry was already purged.
func (p *Printer) PrintAnalysis(record *db.AnalysisResult, job *db.QueueJob) {
	if record == nil {
		return
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Analysis: %s\n", record.ID))
	sb.WriteString(fmt.Sprintf("Upload:   %s\n", record.UploadID))
	sb.WriteString(fmt.Sprintf("Status:   %s\n", record.Status))
	if job != nil {
		sb.WriteString(fmt.Sprintf("Job:      %s (attempt %d/%d, %d%%)\n", job.State, job.AttemptsMade, job.MaxAttempts, job.Progress))
	}
	if record.Error != nil {
		sb.WriteString(fmt.Sprintf("Error:    %s\n", *record.Error))
	}
	sb.WriteString(fmt.Sprintf("Updated:  %s", record.UpdatedAt.Format("2006-01-02 15:04:05")))
	p.printBox("ANALYSIS", sb.String())

	out, err := record.DecodeOutput()
	if err != nil {
		p.printBox("OUTPUT", "unreadable: "+err.Error())
		return
	}
	if out == nil {
		return
	}
	switch out.Type {
	case types.OutputHomework:
		p.PrintHomework(out.Homework)
	case types.OutputAssignment:
		p.PrintAssignment(out.Assignment)
	}
}

// PrintHomework outputs the first questions and their short answers
func (p *Printer) PrintHomework(h *types.HomeworkOutput) {
	if h == nil || len(h.Questions) == 0 {
		return
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Document: %s\n", h.DocumentID))
	sb.WriteString(fmt.Sprintf("Solved %d questions:\n\n", len(h.Questions)))

	count := min(len(h.Questions), maxItemsToShow)
	for i := 0; i < count; i++ {
		q := h.Questions[i]
		sb.WriteString(fmt.Sprintf("%s  %s\n", q.QID, q.QuestionText))
		for _, part := range q.Parts {
			sb.WriteString(fmt.Sprintf("  %s %s\n", part.Label, part.Answer))
		}
		if i < count-1 {
			sb.WriteString("\n")
		}
	}

	if len(h.Questions) > maxItemsToShow {
		sb.WriteString(fmt.Sprintf("\n... and %d more questions", len(h.Questions)-maxItemsToShow))
	}

	p.printBox("HOMEWORK", strings.TrimSuffix(sb.String(), "\n"))
}

// PrintAssignment outputs the blueprint with a mark for each expanded section
func (p *Printer) PrintAssignment(a *types.AssignmentOutput) {
	if a == nil {
		return
	}

	done := make(map[string]bool, len(a.Sections))
	for _, s := range a.Sections {
		done[s.SectionID] = true
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Title:    %s\n", a.Title))
	if a.Blueprint.Subject != "" {
		sb.WriteString(fmt.Sprintf("Subject:  %s\n", a.Blueprint.Subject))
	}
	sb.WriteString(fmt.Sprintf("Sections: %d of %d expanded\n\n", len(done), len(a.Blueprint.Sections)))

	for _, s := range a.Blueprint.Sections {
		mark := " "
		if done[s.ID] {
			mark = "✓"
		}
		sb.WriteString(fmt.Sprintf("[%s] %s\n", mark, s.Title))
	}

	p.printBox("ASSIGNMENT", strings.TrimSuffix(sb.String(), "\n"))
}
