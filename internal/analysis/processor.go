package analysis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/avast/retry-go/v4"
	"github.com/google/uuid"

	"github.com/royengg/homeworkai/internal/db"
	"github.com/royengg/homeworkai/internal/queue"
)

// Processor is the queue handler for analysis jobs. It validates the job,
// moves the record to running and dispatches to the strategy matching the
// document.
type Processor struct {
	store      Store
	homework   Strategy
	assignment Strategy
	logger     *slog.Logger
}

// NewProcessor creates a Processor
func NewProcessor(store Store, homework, assignment Strategy, logger *slog.Logger) *Processor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Processor{
		store:      store,
		homework:   homework,
		assignment: assignment,
		logger:     logger.With("component", "processor"),
	}
}

// Handle runs one attempt of an analysis job. Input errors are returned
// wrapped with retry.Unrecoverable so the queue does not retry them. The
// record is failed on input errors and on the final attempt; earlier
// attempts leave it running for the queue's retry.
func (p *Processor) Handle(ctx context.Context, job *queue.Job) error {
	payload, err := job.Payload()
	if err != nil {
		p.logger.Error("rejecting job", "job_id", job.ID, "error", err)
		return retry.Unrecoverable(err)
	}
	// validated as a uuid by the payload rules
	analysisID := uuid.MustParse(payload.AnalysisID)

	logger := p.logger.With(
		"job_id", job.ID,
		"analysis_id", analysisID,
		"attempt", job.AttemptsMade,
		"max_attempts", job.MaxAttempts,
	)

	uploadID, err := uuid.Parse(payload.UploadID)
	if err != nil {
		return p.reject(ctx, logger, analysisID, &InputError{Message: "upload id is not a uuid", Cause: err})
	}

	record, err := p.store.GetAnalysis(ctx, analysisID)
	if err != nil {
		return fmt.Errorf("failed to load analysis: %w", err)
	}
	if record == nil {
		logger.Error("rejecting job", "error", ErrAnalysisNotFound)
		return retry.Unrecoverable(&InputError{Message: analysisID.String(), Cause: ErrAnalysisNotFound})
	}
	if record.UploadID != uploadID {
		return p.reject(ctx, logger, analysisID, &InputError{
			Message: fmt.Sprintf("analysis belongs to upload %s, job names %s", record.UploadID, uploadID),
		})
	}
	if db.IsTerminalStatus(record.Status) {
		logger.Info("analysis already finished, nothing to do", "status", record.Status)
		return nil
	}

	text, err := p.store.GetParseText(ctx, uploadID)
	if err != nil {
		return fmt.Errorf("failed to load parse text: %w", err)
	}
	if strings.TrimSpace(text) == "" {
		return p.reject(ctx, logger, analysisID, &InputError{Message: "upload " + uploadID.String(), Cause: ErrParseTextMissing})
	}
	input, err := MakeLLMInput(text)
	if err != nil {
		return p.reject(ctx, logger, analysisID, &InputError{Message: "unusable parse text", Cause: err})
	}

	if _, err := p.store.UpdateAnalysis(ctx, analysisID, db.AnalysisUpdate{
		Status: db.StatusPtr(db.AnalysisStatusRunning),
	}); err != nil {
		return fmt.Errorf("failed to mark analysis running: %w", err)
	}

	existing, err := record.DecodeOutput()
	if err != nil {
		logger.Warn("ignoring stored output", "error", err)
		existing = nil
	}

	strategy := p.homework
	if IsAssignment(text) {
		strategy = p.assignment
	}
	logger = logger.With("strategy", strategy.Name())
	logger.Info("analysis started", "text_length", len(text))

	err = strategy.Run(ctx, &Task{
		AnalysisID: analysisID,
		UploadID:   uploadID,
		Input:      input,
		Existing:   existing,
		Progress:   job.UpdateProgress,
		Logger:     logger,
	})
	if err == nil {
		logger.Info("analysis completed")
		return nil
	}
	if ctx.Err() != nil {
		// interrupted; the next attempt resumes from the checkpoint
		return err
	}

	if !job.IsFinalAttempt() && retry.IsRecoverable(err) {
		logger.Warn("analysis attempt failed, will be retried", "error", err)
		return err
	}
	logger.Error("analysis failed", "error", err)
	p.markFailed(ctx, logger, analysisID, err)
	return err
}

// Abandon fails the record of a job the queue gave up on without a handler
// result. It has the signature of queue.DeadLetterFunc.
func (p *Processor) Abandon(ctx context.Context, job *queue.Job, reason string) {
	payload, err := job.Payload()
	if err != nil {
		p.logger.Error("cannot fail record of abandoned job", "job_id", job.ID, "error", err)
		return
	}
	analysisID := uuid.MustParse(payload.AnalysisID)
	logger := p.logger.With("job_id", job.ID, "analysis_id", analysisID)
	logger.Error("job abandoned by the queue", "reason", reason)
	p.markFailed(ctx, logger, analysisID, errors.New(reason))
}

func (p *Processor) reject(ctx context.Context, logger *slog.Logger, analysisID uuid.UUID, err *InputError) error {
	logger.Error("rejecting job", "error", err)
	p.markFailed(ctx, logger, analysisID, err)
	return retry.Unrecoverable(err)
}

// markFailed stores the failure on the record. Output is left untouched so a
// later run can resume from it.
func (p *Processor) markFailed(ctx context.Context, logger *slog.Logger, analysisID uuid.UUID, cause error) {
	msg := FailureMessage(cause)
	_, err := p.store.UpdateAnalysis(context.WithoutCancel(ctx), analysisID, db.AnalysisUpdate{
		Status: db.StatusPtr(db.AnalysisStatusFailed),
		Error:  &msg,
	})
	switch {
	case err == nil:
	case errors.Is(err, db.ErrInvalidTransition):
		logger.Warn("analysis already finished, failure not recorded", "error", err)
	default:
		logger.Error("failed to mark analysis failed", "error", err)
	}
}
