package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// -----------------------------------------------------------------------------
// Analysis job queue
//
// A job is claimed with FOR UPDATE SKIP LOCKED and held through a lease token.
// Every state change after the claim is conditional on the token, so a worker
// whose lease expired cannot overwrite the attempt that replaced it.
// -----------------------------------------------------------------------------

const jobColumns = `id, queue, name, payload, state, attempts_made, max_attempts, backoff_ms,
	progress, run_at, lease_token, lease_until, started_at, finished_at, last_error,
	created_at, updated_at`

func scanJob(row rowScanner) (*QueueJob, error) {
	var j QueueJob
	var payload []byte
	var backoffMs int64
	if err := row.Scan(&j.ID, &j.Queue, &j.Name, &payload, &j.State, &j.AttemptsMade,
		&j.MaxAttempts, &backoffMs, &j.Progress, &j.RunAt, &j.LeaseToken, &j.LeaseUntil,
		&j.StartedAt, &j.FinishedAt, &j.LastError, &j.CreatedAt, &j.UpdatedAt); err != nil {
		return nil, err
	}
	j.Payload = payload
	j.Backoff = time.Duration(backoffMs) * time.Millisecond
	return &j, nil
}

// InsertJob adds a waiting job
func (db *DB) InsertJob(ctx context.Context, input *JobInput) (*QueueJob, error) {
	j, err := scanJob(db.pool.QueryRow(ctx,
		`INSERT INTO analysis_jobs (queue, name, payload, max_attempts, backoff_ms)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING `+jobColumns,
		input.Queue, input.Name, input.Payload, input.MaxAttempts, input.Backoff.Milliseconds(),
	))
	if err != nil {
		return nil, fmt.Errorf("failed to insert job: %w", err)
	}
	return j, nil
}

// GetJob retrieves a job by ID
func (db *DB) GetJob(ctx context.Context, id uuid.UUID) (*QueueJob, error) {
	j, err := scanJob(db.pool.QueryRow(ctx,
		`SELECT `+jobColumns+` FROM analysis_jobs WHERE id = $1`, id,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	return j, nil
}

// ClaimJob takes the next runnable job of queue and starts a new attempt on it.
// Runnable means waiting or delayed with run_at due, or active with an expired
// lease and attempts left (its worker died). Returns nil, nil when nothing is runnable.
func (db *DB) ClaimJob(ctx context.Context, queue string, lease time.Duration) (*QueueJob, error) {
	j, err := scanJob(db.pool.QueryRow(ctx,
		`UPDATE analysis_jobs SET
		     state         = 'active',
		     attempts_made = attempts_made + 1,
		     lease_token   = gen_random_uuid(),
		     lease_until   = NOW() + $2::bigint * interval '1 millisecond',
		     started_at    = NOW(),
		     updated_at    = NOW()
		 WHERE id = (
		     SELECT id FROM analysis_jobs
		     WHERE queue = $1
		       AND (
		           (state IN ('waiting', 'delayed') AND run_at <= NOW())
		           OR (state = 'active' AND lease_until < NOW() AND attempts_made < max_attempts)
		       )
		     ORDER BY run_at, created_at
		     LIMIT 1
		     FOR UPDATE SKIP LOCKED
		 )
		 RETURNING `+jobColumns,
		queue, lease.Milliseconds(),
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to claim job: %w", err)
	}
	return j, nil
}

func (db *DB) execLeased(ctx context.Context, op string, sql string, args ...any) error {
	tag, err := db.pool.Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("failed to %s: %w", op, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrLeaseLost
	}
	return nil
}

// ExtendLease pushes the lease of an active job forward
func (db *DB) ExtendLease(ctx context.Context, id, token uuid.UUID, lease time.Duration) error {
	return db.execLeased(ctx, "extend lease",
		`UPDATE analysis_jobs
		 SET lease_until = NOW() + $3::bigint * interval '1 millisecond', updated_at = NOW()
		 WHERE id = $1 AND lease_token = $2 AND state = 'active'`,
		id, token, lease.Milliseconds(),
	)
}

// SetJobProgress records progress (0-100) of an active job
func (db *DB) SetJobProgress(ctx context.Context, id, token uuid.UUID, progress int) error {
	return db.execLeased(ctx, "set job progress",
		`UPDATE analysis_jobs SET progress = $3, updated_at = NOW()
		 WHERE id = $1 AND lease_token = $2 AND state = 'active'`,
		id, token, progress,
	)
}

// CompleteJob marks an active job completed
func (db *DB) CompleteJob(ctx context.Context, id, token uuid.UUID) error {
	return db.execLeased(ctx, "complete job",
		`UPDATE analysis_jobs
		 SET state = 'completed', lease_token = NULL, lease_until = NULL,
		     finished_at = NOW(), last_error = NULL, updated_at = NOW()
		 WHERE id = $1 AND lease_token = $2 AND state = 'active'`,
		id, token,
	)
}

// RetryJob puts an active job back as delayed until now+delay
func (db *DB) RetryJob(ctx context.Context, id, token uuid.UUID, delay time.Duration, lastError string) error {
	return db.execLeased(ctx, "retry job",
		`UPDATE analysis_jobs
		 SET state = 'delayed', run_at = NOW() + $3::bigint * interval '1 millisecond',
		     lease_token = NULL, lease_until = NULL, last_error = $4, updated_at = NOW()
		 WHERE id = $1 AND lease_token = $2 AND state = 'active'`,
		id, token, delay.Milliseconds(), lastError,
	)
}

// FailJob marks an active job failed for good
func (db *DB) FailJob(ctx context.Context, id, token uuid.UUID, lastError string) error {
	return db.execLeased(ctx, "fail job",
		`UPDATE analysis_jobs
		 SET state = 'failed', lease_token = NULL, lease_until = NULL,
		     finished_at = NOW(), last_error = $3, updated_at = NOW()
		 WHERE id = $1 AND lease_token = $2 AND state = 'active'`,
		id, token, lastError,
	)
}

// FailStalledJobs fails active jobs whose lease expired with no attempts left,
// returning them so the caller can settle their records
func (db *DB) FailStalledJobs(ctx context.Context, queue string) ([]QueueJob, error) {
	rows, err := db.pool.Query(ctx,
		`UPDATE analysis_jobs
		 SET state = 'failed', lease_token = NULL, lease_until = NULL, finished_at = NOW(),
		     last_error = 'job stalled: lease expired after the final attempt', updated_at = NOW()
		 WHERE queue = $1 AND state = 'active'
		   AND lease_until < NOW() AND attempts_made >= max_attempts
		 RETURNING `+jobColumns,
		queue,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to fail stalled jobs: %w", err)
	}
	defer rows.Close()

	var jobs []QueueJob
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan job: %w", err)
		}
		jobs = append(jobs, *j)
	}
	return jobs, rows.Err()
}

// PurgeJobs deletes finished jobs of one state that are older than maxAge or
// beyond the newest keep. Analysis records are not touched.
func (db *DB) PurgeJobs(ctx context.Context, queue, state string, maxAge time.Duration, keep int) (int64, error) {
	tag, err := db.pool.Exec(ctx,
		`DELETE FROM analysis_jobs WHERE id IN (
		     SELECT id FROM (
		         SELECT id, finished_at,
		                ROW_NUMBER() OVER (ORDER BY finished_at DESC) AS rn
		         FROM analysis_jobs
		         WHERE queue = $1 AND state = $2
		     ) ranked
		     WHERE rn > $4 OR finished_at < NOW() - $3::bigint * interval '1 millisecond'
		 )`,
		queue, state, maxAge.Milliseconds(), keep,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to purge %s jobs: %w", state, err)
	}
	return tag.RowsAffected(), nil
}
