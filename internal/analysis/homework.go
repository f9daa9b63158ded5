package analysis

import (
	"context"
	"fmt"

	"github.com/royengg/homeworkai/internal/db"
	"github.com/royengg/homeworkai/internal/prompts"
	"github.com/royengg/homeworkai/internal/types"
)

// HomeworkStrategy solves a short document in a single model call
type HomeworkStrategy struct {
	gen   Generator
	store Store
}

// NewHomeworkStrategy creates a single-shot strategy
func NewHomeworkStrategy(gen Generator, store Store) *HomeworkStrategy {
	return &HomeworkStrategy{gen: gen, store: store}
}

// Name implements Strategy
func (s *HomeworkStrategy) Name() string {
	return string(types.OutputHomework)
}

// Run solves the document and stores the output together with the completed status
func (s *HomeworkStrategy) Run(ctx context.Context, task *Task) error {
	prompt, err := prompts.Render(prompts.SolveHomework, map[string]string{"Input": task.Input})
	if err != nil {
		return fmt.Errorf("failed to build homework prompt: %w", err)
	}

	var out types.HomeworkOutput
	if err := s.gen.Call(ctx, HomeworkShape, prompt, &out); err != nil {
		return fmt.Errorf("failed to solve homework: %w", err)
	}
	task.logger().Info("homework solved", "questions", len(out.Questions))

	if _, err := s.store.UpdateAnalysis(ctx, task.AnalysisID, db.AnalysisUpdate{
		Status: db.StatusPtr(db.AnalysisStatusCompleted),
		Output: types.NewHomeworkOutput(&out),
	}); err != nil {
		return fmt.Errorf("failed to store homework output: %w", err)
	}
	if err := task.reportProgress(ctx, 100); err != nil {
		task.logger().Warn("failed to report progress", "error", err)
	}
	return nil
}
