package queue

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/royengg/homeworkai/internal/db"
)

// memoryBackend is an in-process Backend with the same lease rules as the SQL one
type memoryBackend struct {
	mu     sync.Mutex
	jobs   []*db.QueueJob
	now    time.Time
	purged map[string]int
}

func newMemoryBackend() *memoryBackend {
	return &memoryBackend{now: time.Unix(1_700_000_000, 0), purged: map[string]int{}}
}

func (m *memoryBackend) advance(d time.Duration) {
	m.mu.Lock()
	m.now = m.now.Add(d)
	m.mu.Unlock()
}

func (m *memoryBackend) find(id uuid.UUID) *db.QueueJob {
	for _, j := range m.jobs {
		if j.ID == id {
			return j
		}
	}
	return nil
}

func (m *memoryBackend) leased(id, token uuid.UUID) *db.QueueJob {
	j := m.find(id)
	if j == nil || j.State != db.JobStateActive || j.LeaseToken == nil || *j.LeaseToken != token {
		return nil
	}
	return j
}

func (m *memoryBackend) InsertJob(_ context.Context, input *db.JobInput) (*db.QueueJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j := &db.QueueJob{
		ID:          uuid.New(),
		Queue:       input.Queue,
		Name:        input.Name,
		Payload:     input.Payload,
		State:       db.JobStateWaiting,
		MaxAttempts: input.MaxAttempts,
		Backoff:     input.Backoff,
		RunAt:       m.now,
		CreatedAt:   m.now,
	}
	m.jobs = append(m.jobs, j)
	cp := *j
	return &cp, nil
}

func (m *memoryBackend) GetJob(_ context.Context, id uuid.UUID) (*db.QueueJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j := m.find(id)
	if j == nil {
		return nil, nil
	}
	cp := *j
	return &cp, nil
}

func (m *memoryBackend) ClaimJob(_ context.Context, queue string, lease time.Duration) (*db.QueueJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, j := range m.jobs {
		if j.Queue != queue {
			continue
		}
		runnable := (j.State == db.JobStateWaiting || j.State == db.JobStateDelayed) && !j.RunAt.After(m.now)
		expired := j.State == db.JobStateActive && j.LeaseUntil != nil && j.LeaseUntil.Before(m.now) &&
			j.AttemptsMade < j.MaxAttempts
		if !runnable && !expired {
			continue
		}
		token := uuid.New()
		until := m.now.Add(lease)
		j.State = db.JobStateActive
		j.AttemptsMade++
		j.LeaseToken = &token
		j.LeaseUntil = &until
		cp := *j
		return &cp, nil
	}
	return nil, nil
}

func (m *memoryBackend) ExtendLease(_ context.Context, id, token uuid.UUID, lease time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	j := m.leased(id, token)
	if j == nil {
		return db.ErrLeaseLost
	}
	until := m.now.Add(lease)
	j.LeaseUntil = &until
	return nil
}

func (m *memoryBackend) SetJobProgress(_ context.Context, id, token uuid.UUID, progress int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	j := m.leased(id, token)
	if j == nil {
		return db.ErrLeaseLost
	}
	j.Progress = progress
	return nil
}

func (m *memoryBackend) finish(id, token uuid.UUID, state string, lastError *string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	j := m.leased(id, token)
	if j == nil {
		return db.ErrLeaseLost
	}
	now := m.now
	j.State = state
	j.LeaseToken = nil
	j.LeaseUntil = nil
	j.FinishedAt = &now
	j.LastError = lastError
	return nil
}

func (m *memoryBackend) CompleteJob(_ context.Context, id, token uuid.UUID) error {
	return m.finish(id, token, db.JobStateCompleted, nil)
}

func (m *memoryBackend) FailJob(_ context.Context, id, token uuid.UUID, lastError string) error {
	return m.finish(id, token, db.JobStateFailed, &lastError)
}

func (m *memoryBackend) RetryJob(_ context.Context, id, token uuid.UUID, delay time.Duration, lastError string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	j := m.leased(id, token)
	if j == nil {
		return db.ErrLeaseLost
	}
	j.State = db.JobStateDelayed
	j.RunAt = m.now.Add(delay)
	j.LeaseToken = nil
	j.LeaseUntil = nil
	j.LastError = &lastError
	return nil
}

func (m *memoryBackend) FailStalledJobs(_ context.Context, queue string) ([]db.QueueJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []db.QueueJob
	for _, j := range m.jobs {
		if j.Queue == queue && j.State == db.JobStateActive && j.LeaseUntil != nil &&
			j.LeaseUntil.Before(m.now) && j.AttemptsMade >= j.MaxAttempts {
			msg := "job stalled: lease expired after the final attempt"
			j.State = db.JobStateFailed
			j.LeaseToken = nil
			j.LeaseUntil = nil
			j.LastError = &msg
			out = append(out, *j)
		}
	}
	return out, nil
}

func (m *memoryBackend) PurgeJobs(_ context.Context, _ string, state string, _ time.Duration, _ int) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.purged[state]++
	return 0, nil
}
