package db

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

// JobState constants
const (
	JobStateWaiting   = "waiting"
	JobStateActive    = "active"
	JobStateDelayed   = "delayed"
	JobStateCompleted = "completed"
	JobStateFailed    = "failed"
)

// ErrLeaseLost is returned when a job's lease was taken over or the job was
// already finished by someone else
var ErrLeaseLost = errors.New("job lease lost")

// QueueJob is one durable queue entry
type QueueJob struct {
	ID           uuid.UUID       `json:"id"`
	Queue        string          `json:"queue"`
	Name         string          `json:"name"`
	Payload      json.RawMessage `json:"payload"`
	State        string          `json:"state"`
	AttemptsMade int             `json:"attempts_made"`
	MaxAttempts  int             `json:"max_attempts"`
	Backoff      time.Duration   `json:"backoff"`
	Progress     int             `json:"progress"`
	RunAt        time.Time       `json:"run_at"`
	LeaseToken   *uuid.UUID      `json:"-"`
	LeaseUntil   *time.Time      `json:"lease_until,omitempty"`
	StartedAt    *time.Time      `json:"started_at,omitempty"`
	FinishedAt   *time.Time      `json:"finished_at,omitempty"`
	LastError    *string         `json:"last_error,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// IsFinalAttempt reports whether a failure of the current attempt exhausts the job
func (j *QueueJob) IsFinalAttempt() bool {
	return j.AttemptsMade >= j.MaxAttempts
}

// JobInput represents input for enqueuing a job
type JobInput struct {
	Queue       string
	Name        string
	Payload     []byte
	MaxAttempts int
	Backoff     time.Duration
}
