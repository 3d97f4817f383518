// Package jobtracker implements the Job Tracker (spec §4.11): an
// in-process registry of asynchronously processed items, queried by the
// status endpoint. Grounded on the teacher's pkg/session (mutex-guarded
// map, Clone-on-read) generalized from conversation sessions to
// extraction jobs, plus the ticker-driven periodic sweep pattern from
// pkg/queue/orphan.go generalized from heartbeat-staleness detection to
// plain age-based eviction.
package jobtracker

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// State is the closed set of job lifecycle states (spec §4.11).
type State string

const (
	StatePending    State = "pending"
	StateProcessing State = "processing"
	StateCompleted  State = "completed"
	StateFailed     State = "failed"
)

// ErrNotFound is returned when a job id is unknown or has been evicted.
var ErrNotFound = errors.New("jobtracker: job not found")

// Job is a single tracked asynchronous processing unit.
type Job struct {
	ID        string
	State     State
	CreatedAt time.Time
	UpdatedAt time.Time
	Result    any
	Error     string

	mu sync.RWMutex
}

// Clone returns a value copy of j safe to hand to a caller outside the
// tracker's lock.
func (j *Job) Clone() Job {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return Job{ID: j.ID, State: j.State, CreatedAt: j.CreatedAt, UpdatedAt: j.UpdatedAt, Result: j.Result, Error: j.Error}
}

func (j *Job) setState(state State) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.State = state
	j.UpdatedAt = time.Now()
}

func (j *Job) complete(result any) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.State = StateCompleted
	j.Result = result
	j.UpdatedAt = time.Now()
}

func (j *Job) fail(message string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.State = StateFailed
	j.Error = message
	j.UpdatedAt = time.Now()
}

// Tracker is a thread-safe, bounded, age-evicting registry of jobs.
type Tracker struct {
	mu         sync.Mutex
	jobs       map[string]*Job
	order      []string // insertion order, oldest first, for bounded eviction
	maxEntries int
	retention  time.Duration
	logger     *slog.Logger
}

// New creates a Tracker. maxEntries bounds how many jobs are held at
// once (oldest evicted first when full); retention is the age at which
// a completed or failed job becomes eligible for the periodic sweep.
func New(maxEntries int, retention time.Duration, logger *slog.Logger) *Tracker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Tracker{
		jobs:       make(map[string]*Job),
		maxEntries: maxEntries,
		retention:  retention,
		logger:     logger,
	}
}

// Create registers a new pending job under id and returns it.
func (t *Tracker) Create(id string) *Job {
	now := time.Now()
	job := &Job{ID: id, State: StatePending, CreatedAt: now, UpdatedAt: now}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.maxEntries > 0 && len(t.jobs) >= t.maxEntries {
		t.evictOldestLocked()
	}
	t.jobs[id] = job
	t.order = append(t.order, id)
	return job
}

// evictOldestLocked drops the oldest tracked job. Caller must hold t.mu.
func (t *Tracker) evictOldestLocked() {
	for len(t.order) > 0 {
		oldest := t.order[0]
		t.order = t.order[1:]
		if _, ok := t.jobs[oldest]; ok {
			delete(t.jobs, oldest)
			t.logger.Warn("jobtracker: evicted oldest job to stay within max entries", "job_id", oldest)
			return
		}
	}
}

// Get returns a snapshot of the job registered under id.
func (t *Tracker) Get(id string) (Job, error) {
	t.mu.Lock()
	job, ok := t.jobs[id]
	t.mu.Unlock()
	if !ok {
		return Job{}, ErrNotFound
	}
	return job.Clone(), nil
}

// MarkProcessing transitions a job from pending to processing.
func (t *Tracker) MarkProcessing(id string) {
	t.mu.Lock()
	job, ok := t.jobs[id]
	t.mu.Unlock()
	if ok {
		job.setState(StateProcessing)
	}
}

// Complete records a successful result for id.
func (t *Tracker) Complete(id string, result any) {
	t.mu.Lock()
	job, ok := t.jobs[id]
	t.mu.Unlock()
	if ok {
		job.complete(result)
	}
}

// Fail records a terminal failure for id.
func (t *Tracker) Fail(id string, message string) {
	t.mu.Lock()
	job, ok := t.jobs[id]
	t.mu.Unlock()
	if ok {
		job.fail(message)
	}
}

// Run starts the periodic age-based eviction sweep; it blocks until ctx
// is cancelled, so callers invoke it via `go tracker.Run(ctx, interval)`.
func (t *Tracker) Run(ctx context.Context, sweepInterval time.Duration) {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.sweep()
		}
	}
}

// sweep evicts terminal jobs (completed or failed) older than retention.
func (t *Tracker) sweep() {
	cutoff := time.Now().Add(-t.retention)

	t.mu.Lock()
	defer t.mu.Unlock()

	evicted := 0
	remaining := t.order[:0]
	for _, id := range t.order {
		job, ok := t.jobs[id]
		if !ok {
			continue
		}
		job.mu.RLock()
		terminal := job.State == StateCompleted || job.State == StateFailed
		stale := job.UpdatedAt.Before(cutoff)
		job.mu.RUnlock()

		if terminal && stale {
			delete(t.jobs, id)
			evicted++
			continue
		}
		remaining = append(remaining, id)
	}
	t.order = remaining

	if evicted > 0 {
		t.logger.Info("jobtracker: swept aged-out jobs", "count", evicted)
	}
}
