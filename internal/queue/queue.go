package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/royengg/homeworkai/internal/db"
)

// Backend is the durable job store. *db.DB implements it.
type Backend interface {
	InsertJob(ctx context.Context, input *db.JobInput) (*db.QueueJob, error)
	GetJob(ctx context.Context, id uuid.UUID) (*db.QueueJob, error)
	ClaimJob(ctx context.Context, queue string, lease time.Duration) (*db.QueueJob, error)
	ExtendLease(ctx context.Context, id, token uuid.UUID, lease time.Duration) error
	SetJobProgress(ctx context.Context, id, token uuid.UUID, progress int) error
	CompleteJob(ctx context.Context, id, token uuid.UUID) error
	RetryJob(ctx context.Context, id, token uuid.UUID, delay time.Duration, lastError string) error
	FailJob(ctx context.Context, id, token uuid.UUID, lastError string) error
	FailStalledJobs(ctx context.Context, queue string) ([]db.QueueJob, error)
	PurgeJobs(ctx context.Context, queue, state string, maxAge time.Duration, keep int) (int64, error)
}

var _ Backend = (*db.DB)(nil)

// Queue submits jobs to one named queue
type Queue struct {
	backend Backend
	name    string
	opts    Options
}

// Handle identifies an enqueued job
type Handle struct {
	ID   uuid.UUID `json:"id"`
	Name string    `json:"name"`
}

// New creates a producer for the named queue
func New(backend Backend, name string, opts Options) (*Queue, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	return &Queue{backend: backend, name: name, opts: opts}, nil
}

// Enqueue validates the payload and stores a waiting job carrying the queue's
// attempt and backoff policy
func (q *Queue) Enqueue(ctx context.Context, name string, payload Payload) (*Handle, error) {
	if err := payload.Validate(); err != nil {
		return nil, err
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload: %w", err)
	}

	job, err := q.backend.InsertJob(ctx, &db.JobInput{
		Queue:       q.name,
		Name:        name,
		Payload:     body,
		MaxAttempts: q.opts.Attempts,
		Backoff:     q.opts.Backoff,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to enqueue %s: %w", name, err)
	}
	return &Handle{ID: job.ID, Name: job.Name}, nil
}

// Status returns the stored job, or nil when it was purged or never existed
func (q *Queue) Status(ctx context.Context, id uuid.UUID) (*db.QueueJob, error) {
	return q.backend.GetJob(ctx, id)
}

// Job is one attempt of a queued job, as seen by a Handler
type Job struct {
	ID           uuid.UUID
	Name         string
	Data         json.RawMessage
	AttemptsMade int
	MaxAttempts  int

	progress func(ctx context.Context, pct int) error
}

// Payload decodes and validates the job body
func (j *Job) Payload() (Payload, error) {
	return DecodePayload(j.Data)
}

// IsFinalAttempt reports whether this is the last attempt the queue will make
func (j *Job) IsFinalAttempt() bool {
	return j.AttemptsMade >= j.MaxAttempts
}

// UpdateProgress records progress, clamped to 0-100
func (j *Job) UpdateProgress(ctx context.Context, pct int) error {
	if j.progress == nil {
		return nil
	}
	return j.progress(ctx, min(max(pct, 0), 100))
}

func newJob(row *db.QueueJob) *Job {
	return &Job{
		ID:           row.ID,
		Name:         row.Name,
		Data:         row.Payload,
		AttemptsMade: row.AttemptsMade,
		MaxAttempts:  row.MaxAttempts,
	}
}

// NewJob builds a Job outside a worker, for running a handler inline. progress may be nil.
func NewJob(payload Payload, attemptsMade, maxAttempts int, progress func(ctx context.Context, pct int) error) *Job {
	data, _ := json.Marshal(payload)
	return &Job{
		ID:           uuid.New(),
		Name:         AnalyzeJob,
		Data:         data,
		AttemptsMade: attemptsMade,
		MaxAttempts:  maxAttempts,
		progress:     progress,
	}
}
