package analysis

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/royengg/homeworkai/internal/db"
	"github.com/royengg/homeworkai/internal/queue"
)

// Enqueuer submits analysis jobs. *queue.Queue implements it.
type Enqueuer interface {
	Enqueue(ctx context.Context, name string, payload queue.Payload) (*queue.Handle, error)
}

var _ Enqueuer = (*queue.Queue)(nil)

// Submission identifies a newly queued analysis
type Submission struct {
	AnalysisID uuid.UUID `json:"analysis_id"`
	JobID      uuid.UUID `json:"job_id"`
}

// Submitter creates analysis records and queues their jobs
type Submitter struct {
	store Store
	queue Enqueuer
}

// NewSubmitter creates a Submitter
func NewSubmitter(store Store, queue Enqueuer) *Submitter {
	return &Submitter{store: store, queue: queue}
}

// Submit creates a queued record for uploadID and enqueues its job. The
// upload must exist and have parse text.
func (s *Submitter) Submit(ctx context.Context, uploadID uuid.UUID) (*Submission, error) {
	upload, err := s.store.GetUpload(ctx, uploadID)
	if err != nil {
		return nil, fmt.Errorf("failed to load upload: %w", err)
	}
	if upload == nil {
		return nil, fmt.Errorf("%w: %s", ErrUploadNotFound, uploadID)
	}
	text, err := s.store.GetParseText(ctx, uploadID)
	if err != nil {
		return nil, fmt.Errorf("failed to load parse text: %w", err)
	}
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("%w: %s", ErrParseTextMissing, uploadID)
	}

	record, err := s.store.CreateAnalysis(ctx, uploadID)
	if err != nil {
		return nil, fmt.Errorf("failed to create analysis: %w", err)
	}

	handle, err := s.queue.Enqueue(ctx, queue.AnalyzeJob, queue.Payload{
		AnalysisID: record.ID.String(),
		UploadID:   uploadID.String(),
	})
	if err != nil {
		msg := "failed to queue analysis"
		if _, updateErr := s.store.UpdateAnalysis(context.WithoutCancel(ctx), record.ID, db.AnalysisUpdate{
			Status: db.StatusPtr(db.AnalysisStatusFailed),
			Error:  &msg,
		}); updateErr != nil {
			return nil, fmt.Errorf("%s: %w (and failed to mark record: %v)", msg, err, updateErr)
		}
		return nil, fmt.Errorf("%s: %w", msg, err)
	}
	return &Submission{AnalysisID: record.ID, JobID: handle.ID}, nil
}

// Get returns the record of analysisID, which must belong to uploadID
func (s *Submitter) Get(ctx context.Context, uploadID, analysisID uuid.UUID) (*db.AnalysisResult, error) {
	record, err := s.Lookup(ctx, analysisID)
	if err != nil {
		return nil, err
	}
	if record.UploadID != uploadID {
		return nil, fmt.Errorf("%w: %s", ErrAnalysisNotFound, analysisID)
	}
	return record, nil
}

// Lookup returns the record of analysisID
func (s *Submitter) Lookup(ctx context.Context, analysisID uuid.UUID) (*db.AnalysisResult, error) {
	record, err := s.store.GetAnalysis(ctx, analysisID)
	if err != nil {
		return nil, fmt.Errorf("failed to load analysis: %w", err)
	}
	if record == nil {
		return nil, fmt.Errorf("%w: %s", ErrAnalysisNotFound, analysisID)
	}
	return record, nil
}
