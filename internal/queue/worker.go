package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/royengg/homeworkai/internal/db"
)

// Handler processes one attempt of a job. Returning an error wrapped with
// retry.Unrecoverable fails the job without further attempts.
type Handler func(ctx context.Context, job *Job) error

// DeadLetterFunc is called for jobs the queue failed on its own, without a
// handler result (a worker died during the final attempt)
type DeadLetterFunc func(ctx context.Context, job *Job, reason string)

// Worker runs jobs from one queue, one at a time
type Worker struct {
	backend Backend
	queue   string
	handler Handler
	opts    Options
	limiter *StartLimiter
	logger  *slog.Logger

	onDeadLetter DeadLetterFunc
	after        func(time.Duration) <-chan time.Time
}

// WorkerOption configures a Worker
type WorkerOption func(*Worker)

// WithDeadLetter sets the hook for jobs failed by the stall sweep
func WithDeadLetter(fn DeadLetterFunc) WorkerOption {
	return func(w *Worker) {
		w.onDeadLetter = fn
	}
}

// WithStartLimiter replaces the limiter built from Options
func WithStartLimiter(l *StartLimiter) WorkerOption {
	return func(w *Worker) {
		w.limiter = l
	}
}

// NewWorker creates a worker for the named queue
func NewWorker(backend Backend, queue string, handler Handler, opts Options, logger *slog.Logger, options ...WorkerOption) (*Worker, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	w := &Worker{
		backend: backend,
		queue:   queue,
		handler: handler,
		opts:    opts,
		limiter: NewStartLimiter(opts.StartLimit, opts.StartWindow),
		logger:  logger.With("component", "worker", "queue", queue),
		after:   time.After,
	}
	for _, o := range options {
		o(w)
	}
	return w, nil
}

// Run processes jobs and sweeps the queue until ctx is cancelled
func (w *Worker) Run(ctx context.Context) error {
	w.logger.Info("worker started",
		"start_limit", w.opts.StartLimit,
		"start_window", w.opts.StartWindow,
		"attempts", w.opts.Attempts,
	)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return w.processLoop(ctx)
	})
	g.Go(func() error {
		return w.sweepLoop(ctx)
	})

	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		err = nil
	}
	w.logger.Info("worker stopped")
	return err
}

func (w *Worker) processLoop(ctx context.Context) error {
	for {
		if err := w.limiter.Wait(ctx); err != nil {
			return err
		}

		processed, err := w.RunOnce(ctx)
		if err != nil {
			w.logger.Error("failed to run job", "error", err)
		}
		if processed {
			continue
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-w.after(w.opts.PollInterval):
		}
	}
}

// RunOnce claims and processes at most one job. It reports whether a job was claimed.
func (w *Worker) RunOnce(ctx context.Context) (bool, error) {
	row, err := w.backend.ClaimJob(ctx, w.queue, w.opts.Lease)
	if err != nil || row == nil {
		return false, err
	}
	if row.LeaseToken == nil {
		return true, fmt.Errorf("claimed job %s has no lease token", row.ID)
	}
	w.limiter.Record()
	return true, w.process(ctx, row)
}

func (w *Worker) process(ctx context.Context, row *db.QueueJob) error {
	logger := w.logger.With("job_id", row.ID, "job", row.Name, "attempt", row.AttemptsMade, "max_attempts", row.MaxAttempts)
	token := *row.LeaseToken

	jobCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	job := newJob(row)
	job.progress = func(ctx context.Context, pct int) error {
		return w.backend.SetJobProgress(ctx, row.ID, token, pct)
	}

	heartbeatDone := make(chan struct{})
	leaseLost := make(chan struct{})
	go func() {
		defer close(heartbeatDone)
		w.heartbeat(jobCtx, row, token, leaseLost, cancel, logger)
	}()

	logger.Info("job started")
	started := time.Now()
	handlerErr := w.runHandler(jobCtx, job, logger)
	cancel()
	<-heartbeatDone

	select {
	case <-leaseLost:
		logger.Warn("job lease lost; result discarded", "error", handlerErr)
		return nil
	default:
	}
	if ctx.Err() != nil {
		// shutdown: the lease runs out and the job is claimed again
		logger.Warn("job interrupted by shutdown", "error", handlerErr)
		return nil
	}

	settleCtx := context.WithoutCancel(ctx)
	duration := time.Since(started)

	if handlerErr == nil {
		logger.Info("job completed", "duration", duration)
		return w.settle(w.backend.CompleteJob(settleCtx, row.ID, token))
	}

	if !retry.IsRecoverable(handlerErr) || row.AttemptsMade >= row.MaxAttempts {
		logger.Error("job failed", "error", handlerErr, "duration", duration,
			"recoverable", retry.IsRecoverable(handlerErr))
		return w.settle(w.backend.FailJob(settleCtx, row.ID, token, handlerErr.Error()))
	}

	delay := w.opts.BackoffFor(row.AttemptsMade)
	logger.Warn("job failed, will retry", "error", handlerErr, "retry_in", delay, "duration", duration)
	return w.settle(w.backend.RetryJob(settleCtx, row.ID, token, delay, handlerErr.Error()))
}

// runHandler turns a handler panic into an error for the attempt
func (w *Worker) runHandler(ctx context.Context, job *Job, logger *slog.Logger) (err error) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("job handler panicked", "panic", r, "stack", string(debug.Stack()))
			err = fmt.Errorf("job handler panicked: %v", r)
		}
	}()
	return w.handler(ctx, job)
}

func (w *Worker) settle(err error) error {
	if errors.Is(err, db.ErrLeaseLost) {
		w.logger.Warn("job settled elsewhere", "error", err)
		return nil
	}
	return err
}

// heartbeat extends the lease every third of its length. When the lease is
// lost it closes leaseLost and cancels the handler.
func (w *Worker) heartbeat(ctx context.Context, row *db.QueueJob, token uuid.UUID, leaseLost chan struct{}, cancel context.CancelFunc, logger *slog.Logger) {
	interval := w.opts.Lease / 3
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.after(interval):
		}

		err := w.backend.ExtendLease(ctx, row.ID, token, w.opts.Lease)
		switch {
		case err == nil:
		case errors.Is(err, db.ErrLeaseLost):
			close(leaseLost)
			cancel()
			return
		case ctx.Err() != nil:
			return
		default:
			logger.Warn("failed to extend lease", "error", err)
		}
	}
}

func (w *Worker) sweepLoop(ctx context.Context) error {
	for {
		w.Sweep(ctx)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-w.after(w.opts.SweepInterval):
		}
	}
}

// Sweep fails stalled jobs, reporting each to the dead-letter hook, and purges
// finished jobs beyond their retention
func (w *Worker) Sweep(ctx context.Context) {
	stalled, err := w.backend.FailStalledJobs(ctx, w.queue)
	if err != nil {
		w.logger.Error("failed to sweep stalled jobs", "error", err)
	}
	for i := range stalled {
		reason := "job stalled"
		if stalled[i].LastError != nil {
			reason = *stalled[i].LastError
		}
		w.logger.Error("job failed by stall sweep", "job_id", stalled[i].ID, "reason", reason)
		if w.onDeadLetter != nil {
			w.onDeadLetter(ctx, newJob(&stalled[i]), reason)
		}
	}

	for _, p := range []struct {
		state     string
		retention Retention
	}{
		{db.JobStateCompleted, w.opts.KeepCompleted},
		{db.JobStateFailed, w.opts.KeepFailed},
	} {
		n, err := w.backend.PurgeJobs(ctx, w.queue, p.state, p.retention.MaxAge, p.retention.Count)
		if err != nil {
			w.logger.Error("failed to purge jobs", "state", p.state, "error", err)
			continue
		}
		if n > 0 {
			w.logger.Info("purged jobs", "state", p.state, "count", n)
		}
	}
}
