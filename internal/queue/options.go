package queue

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
)

// Queue and job names used by the analysis pipeline
const (
	AnalysisQueue = "analysis"
	AnalyzeJob    = "analyze"
)

// Retention bounds how long finished jobs are kept. Whichever limit is hit first applies.
type Retention struct {
	MaxAge time.Duration `validate:"gt=0"`
	Count  int           `validate:"gte=0"`
}

// Options is the queue policy shared by producers and the worker
type Options struct {
	// Attempts per job, the first run included
	Attempts int `validate:"min=1"`
	// Backoff is the delay before the second attempt; it doubles for each later one
	Backoff time.Duration `validate:"gte=0"`

	KeepCompleted Retention
	KeepFailed    Retention

	// At most StartLimit job starts per StartWindow, per worker process
	StartLimit  int           `validate:"min=1"`
	StartWindow time.Duration `validate:"gt=0"`

	Lease         time.Duration `validate:"gt=0"`
	PollInterval  time.Duration `validate:"gt=0"`
	SweepInterval time.Duration `validate:"gt=0"`
}

// DefaultOptions returns the production queue policy
func DefaultOptions() Options {
	return Options{
		Attempts:      3,
		Backoff:       5 * time.Second,
		KeepCompleted: Retention{MaxAge: 24 * time.Hour, Count: 1000},
		KeepFailed:    Retention{MaxAge: 7 * 24 * time.Hour, Count: 5000},
		StartLimit:    5,
		StartWindow:   time.Minute,
		Lease:         30 * time.Second,
		PollInterval:  time.Second,
		SweepInterval: time.Minute,
	}
}

// Validate checks the policy values
func (o Options) Validate() error {
	if err := validator.New().Struct(o); err != nil {
		return fmt.Errorf("invalid queue options: %s", describeValidation(err))
	}
	return nil
}

// BackoffFor is the delay after the given failed attempt (1-based): Backoff * 2^(attempt-1)
func (o Options) BackoffFor(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	return o.Backoff << (attempt - 1)
}
