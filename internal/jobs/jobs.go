// Package jobs runs long operations in the background and records their
// progress in a storage.Backend so callers can poll for the outcome.
package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/FranksOps/seoforge/internal/apperr"
	"github.com/FranksOps/seoforge/internal/metrics"
	"github.com/FranksOps/seoforge/internal/storage"
	"github.com/google/uuid"
)

var (
	// ErrQueueFull is returned by Submit when no worker slot can be queued.
	ErrQueueFull = fmt.Errorf("%w: job queue is full", apperr.ErrUnavailable)
	// ErrStopped is returned by Submit after Stop.
	ErrStopped = fmt.Errorf("%w: job manager stopped", apperr.ErrUnavailable)
)

// ProgressFunc reports that current of the invocation's total steps are done.
type ProgressFunc func(current int, status string)

// Task is the body of a job. The returned value must be JSON encodable.
type Task func(ctx context.Context, progress ProgressFunc) (any, error)

// Invocation describes one unit of background work. Total is fixed at
// submission time.
type Invocation struct {
	Kind  string
	Total int
	Run   Task
}

// Runner submits and polls background jobs. Handlers depend on this
// interface; Manager is the in-process implementation.
type Runner interface {
	Submit(ctx context.Context, inv Invocation) (string, error)
	Poll(ctx context.Context, id string) (*storage.Job, error)
	List(ctx context.Context, filter storage.Filter) ([]*storage.Job, error)
}

// Config tunes the worker pool.
type Config struct {
	Workers   int
	QueueSize int
	// Now and NewID are overridable for tests.
	Now   func() time.Time
	NewID func() string
}

type queued struct {
	job *storage.Job
	run Task
}

// Manager is a fixed-size worker pool fed by a bounded queue.
type Manager struct {
	cfg    Config
	store  storage.Backend
	logger *slog.Logger

	mu      sync.RWMutex
	stopped bool
	queue   chan queued
	wg      sync.WaitGroup

	// unfinished holds ids accepted by Submit that have not reached a
	// terminal state.
	pendingMu  sync.Mutex
	unfinished map[string]struct{}
}

// ensure Manager implements Runner
var _ Runner = (*Manager)(nil)

// NewManager creates a Manager backed by store. Workers are not started
// until Start is called.
func NewManager(store storage.Backend, cfg Config, logger *slog.Logger) (*Manager, error) {
	if store == nil {
		return nil, fmt.Errorf("%w: jobs: nil store", apperr.ErrConfiguration)
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 100
	}
	if cfg.Now == nil {
		cfg.Now = func() time.Time { return time.Now().UTC() }
	}
	if cfg.NewID == nil {
		cfg.NewID = func() string { return uuid.New().String() }
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Manager{
		cfg:    cfg,
		store:  store,
		logger: logger,
		queue:  make(chan queued, cfg.QueueSize),

		unfinished: make(map[string]struct{}),
	}, nil
}

// Start launches the workers. Jobs run on a context detached from ctx's
// cancellation: an accepted job always runs to a terminal state.
func (m *Manager) Start(ctx context.Context) {
	base := context.WithoutCancel(ctx)
	for i := 0; i < m.cfg.Workers; i++ {
		m.wg.Add(1)
		go func() {
			defer m.wg.Done()
			for q := range m.queue {
				m.execute(base, q)
			}
		}()
	}
	m.logger.Info("job workers started", "workers", m.cfg.Workers, "queue", m.cfg.QueueSize)
}

// Stop refuses new submissions and waits for queued and running jobs to
// finish or for ctx to expire.
func (m *Manager) Stop(ctx context.Context) error {
	m.mu.Lock()
	if !m.stopped {
		m.stopped = true
		close(m.queue)
	}
	m.mu.Unlock()

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for jobs: %w", ctx.Err())
	}
}

// Submit persists a PENDING job and queues it. It returns immediately.
func (m *Manager) Submit(ctx context.Context, inv Invocation) (string, error) {
	if inv.Kind == "" || inv.Run == nil || inv.Total <= 0 {
		return "", fmt.Errorf("%w: invocation needs a kind, a task and a positive total", apperr.ErrValidation)
	}

	now := m.cfg.Now()
	job := &storage.Job{
		ID:        m.cfg.NewID(),
		Kind:      inv.Kind,
		State:     storage.StatePending,
		Progress:  storage.Progress{Total: inv.Total, Status: "Queued"},
		CreatedAt: now,
		UpdatedAt: now,
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.stopped {
		return "", ErrStopped
	}

	if err := m.store.Save(ctx, job); err != nil {
		return "", fmt.Errorf("persist job: %w", err)
	}

	m.track(job.ID)
	select {
	case m.queue <- queued{job: job.Clone(), run: inv.Run}:
	default:
		m.untrack(job.ID)
		job.State = storage.StateFailure
		job.Error = "job queue is full"
		job.UpdatedAt = m.cfg.Now()
		if err := m.store.Save(ctx, job); err != nil {
			m.logger.Error("failed to record rejected job", "id", job.ID, "err", err)
		}
		return "", ErrQueueFull
	}

	metrics.JobsSubmitted.WithLabelValues(inv.Kind).Inc()
	m.logger.Debug("job queued", "id", job.ID, "kind", inv.Kind)
	return job.ID, nil
}

// Unfinished returns the sorted ids of accepted jobs that are queued or
// still running. After a Stop that timed out these are the jobs whose
// workers may still write to the store.
func (m *Manager) Unfinished() []string {
	m.pendingMu.Lock()
	defer m.pendingMu.Unlock()
	ids := make([]string, 0, len(m.unfinished))
	for id := range m.unfinished {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (m *Manager) track(id string) {
	m.pendingMu.Lock()
	m.unfinished[id] = struct{}{}
	m.pendingMu.Unlock()
}

func (m *Manager) untrack(id string) {
	m.pendingMu.Lock()
	delete(m.unfinished, id)
	m.pendingMu.Unlock()
}

// Poll returns a snapshot of the job. Unknown ids yield storage.ErrNotFound.
func (m *Manager) Poll(ctx context.Context, id string) (*storage.Job, error) {
	job, err := m.store.Get(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("poll %s: %w", id, storage.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("poll %s: %w", id, err)
	}
	return job, nil
}

// List returns recent jobs matching filter.
func (m *Manager) List(ctx context.Context, filter storage.Filter) ([]*storage.Job, error) {
	jobs, err := m.store.Query(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	return jobs, nil
}

// execute runs one job to a terminal state. It is the only writer of the
// job record once the job leaves the queue.
func (m *Manager) execute(ctx context.Context, q queued) {
	w := &writer{m: m, ctx: ctx, job: q.job}
	start := time.Now()
	logger := m.logger.With("id", q.job.ID, "kind", q.job.Kind)
	logger.Info("job started")

	defer func() {
		if r := recover(); r != nil {
			logger.Error("job panicked", "panic", r)
			w.fail(fmt.Sprintf("internal error: %v", r))
		}
		w.mu.Lock()
		state := w.job.State
		w.mu.Unlock()
		m.untrack(q.job.ID)
		metrics.RecordJob(q.job.Kind, string(state), time.Since(start))
		logger.Info("job finished", "state", state, "elapsed", time.Since(start))
	}()

	w.progress(0, "Started")
	result, err := q.run(ctx, w.progress)
	if err != nil {
		logger.Warn("job failed", "err", err)
		w.fail(err.Error())
		return
	}

	payload, err := json.Marshal(result)
	if err != nil {
		w.fail(fmt.Sprintf("encode result: %v", err))
		return
	}
	w.succeed(payload)
}

// writer serializes all mutations of one job record.
type writer struct {
	m   *Manager
	ctx context.Context

	mu  sync.Mutex
	job *storage.Job
}

func (w *writer) progress(current int, status string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.job.State.Terminal() {
		return
	}
	total := w.job.Progress.Total
	current = min(max(current, w.job.Progress.Current), total)

	w.job.State = storage.StateProgress
	w.job.Progress.Current = current
	if status != "" {
		w.job.Progress.Status = status
	}
	w.save()
}

func (w *writer) succeed(result []byte) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.job.State.Terminal() {
		return
	}
	w.job.State = storage.StateSuccess
	w.job.Progress.Current = w.job.Progress.Total
	w.job.Progress.Status = "Complete"
	w.job.Result = result
	w.save()
}

func (w *writer) fail(msg string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.job.State.Terminal() {
		return
	}
	w.job.State = storage.StateFailure
	w.job.Error = msg
	w.job.Result = nil
	w.save()
}

// save persists the record. Caller holds w.mu.
func (w *writer) save() {
	w.job.UpdatedAt = w.m.cfg.Now()
	if err := w.m.store.Save(w.ctx, w.job); err != nil {
		w.m.logger.Error("failed to persist job", "id", w.job.ID, "state", w.job.State, "err", err)
	}
}
