package analysis

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/royengg/homeworkai/internal/db"
	"github.com/royengg/homeworkai/internal/llm"
	"github.com/royengg/homeworkai/internal/types"
)

// Store is the job record and document store used by the pipeline. *db.DB implements it.
type Store interface {
	GetUpload(ctx context.Context, uploadID uuid.UUID) (*db.Upload, error)
	GetParseText(ctx context.Context, uploadID uuid.UUID) (string, error)
	CreateAnalysis(ctx context.Context, uploadID uuid.UUID) (*db.AnalysisResult, error)
	GetAnalysis(ctx context.Context, id uuid.UUID) (*db.AnalysisResult, error)
	UpdateAnalysis(ctx context.Context, id uuid.UUID, update db.AnalysisUpdate) (*db.AnalysisResult, error)
	FindCheckpoint(ctx context.Context, uploadID, excludingID uuid.UUID) (*types.AssignmentCheckpoint, error)
}

var (
	_ Store     = (*db.DB)(nil)
	_ Generator = (*llm.Caller)(nil)
)

// Generator turns a prompt into a decoded value of the requested shape. *llm.Caller implements it.
type Generator interface {
	Call(ctx context.Context, shape llm.Shape, prompt string, out any) error
}

// Task is one attempt at producing the output of an analysis record
type Task struct {
	AnalysisID uuid.UUID
	UploadID   uuid.UUID
	// Input is the prompt input JSON built from the parse text
	Input string
	// Existing is the record's own output from an earlier attempt, or nil
	Existing *types.AnalysisOutput
	Progress func(ctx context.Context, pct int) error
	Logger   *slog.Logger
}

func (t *Task) reportProgress(ctx context.Context, pct int) error {
	if t.Progress == nil {
		return nil
	}
	return t.Progress(ctx, pct)
}

func (t *Task) logger() *slog.Logger {
	if t.Logger == nil {
		return slog.Default()
	}
	return t.Logger
}

// Strategy produces and stores the output of a task, completing its record
type Strategy interface {
	Name() string
	Run(ctx context.Context, task *Task) error
}

// sleepContext waits for d or until ctx is done
func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
