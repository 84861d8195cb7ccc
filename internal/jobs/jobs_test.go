package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/FranksOps/seoforge/internal/apperr"
	"github.com/FranksOps/seoforge/internal/storage"
	"github.com/FranksOps/seoforge/internal/storage/memory"
)

func newTestManager(t *testing.T, cfg Config) *Manager {
	t.Helper()
	m, err := NewManager(memory.New(), cfg, nil)
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	m.Start(context.Background())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = m.Stop(ctx)
	})
	return m
}

// waitTerminal polls until the job leaves PENDING/PROGRESS.
func waitTerminal(t *testing.T, r Runner, id string) *storage.Job {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		job, err := r.Poll(context.Background(), id)
		if err != nil {
			t.Fatalf("poll: %v", err)
		}
		if job.State.Terminal() {
			return job
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("job %s did not finish", id)
	return nil
}

func TestNewManager_NilStore(t *testing.T) {
	_, err := NewManager(nil, Config{}, nil)
	if !errors.Is(err, apperr.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}

func TestSubmit_Validation(t *testing.T) {
	m := newTestManager(t, Config{})
	task := func(ctx context.Context, p ProgressFunc) (any, error) { return nil, nil }

	for _, inv := range []Invocation{
		{Kind: "", Total: 1, Run: task},
		{Kind: "k", Total: 0, Run: task},
		{Kind: "k", Total: 1},
	} {
		if _, err := m.Submit(context.Background(), inv); !errors.Is(err, apperr.ErrValidation) {
			t.Errorf("expected validation error for %+v, got %v", inv, err)
		}
	}
}

func TestJob_SuccessWithProgress(t *testing.T) {
	m := newTestManager(t, Config{Workers: 1})

	release := make(chan struct{})
	reached := make(chan struct{})
	id, err := m.Submit(context.Background(), Invocation{
		Kind:  "keyword_generation",
		Total: 6,
		Run: func(ctx context.Context, progress ProgressFunc) (any, error) {
			progress(1, "Running seed analysis...")
			progress(3, "Estimating metrics...")
			close(reached)
			<-release
			return map[string]int{"total_results": 12}, nil
		},
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	<-reached
	job, err := m.Poll(context.Background(), id)
	if err != nil {
		t.Fatalf("poll: %v", err)
	}
	if job.State != storage.StateProgress || job.Progress.Current != 3 || job.Progress.Total != 6 {
		t.Errorf("unexpected in-flight snapshot: %+v", job)
	}
	if job.Progress.Status != "Estimating metrics..." {
		t.Errorf("unexpected status %q", job.Progress.Status)
	}
	close(release)

	job = waitTerminal(t, m, id)
	if job.State != storage.StateSuccess {
		t.Fatalf("expected SUCCESS, got %s (%s)", job.State, job.Error)
	}
	if job.Progress.Current != job.Progress.Total {
		t.Errorf("success should report current == total, got %+v", job.Progress)
	}
	var result map[string]int
	if err := json.Unmarshal(job.Result, &result); err != nil || result["total_results"] != 12 {
		t.Errorf("unexpected result %s", job.Result)
	}

	// Polling again never regresses a terminal job.
	again, _ := m.Poll(context.Background(), id)
	if again.State != storage.StateSuccess {
		t.Errorf("terminal state changed to %s", again.State)
	}
}

// recordingStore captures every saved snapshot in order.
type recordingStore struct {
	storage.Backend
	mu    sync.Mutex
	saved []storage.Job
}

func (r *recordingStore) Save(ctx context.Context, job *storage.Job) error {
	r.mu.Lock()
	r.saved = append(r.saved, *job.Clone())
	r.mu.Unlock()
	return r.Backend.Save(ctx, job)
}

func TestJob_ProgressIsMonotonicAndBounded(t *testing.T) {
	store := &recordingStore{Backend: memory.New()}
	m, err := NewManager(store, Config{Workers: 1}, nil)
	if err != nil {
		t.Fatal(err)
	}
	m.Start(context.Background())
	defer m.Stop(context.Background())

	id, _ := m.Submit(context.Background(), Invocation{
		Kind:  "long_tail",
		Total: 3,
		Run: func(ctx context.Context, progress ProgressFunc) (any, error) {
			for _, c := range []int{2, 1, 9} {
				progress(c, fmt.Sprintf("step %d", c))
			}
			return "ok", nil
		},
	})
	waitTerminal(t, m, id)

	store.mu.Lock()
	defer store.mu.Unlock()

	last := -1
	var states []storage.State
	for _, snap := range store.saved {
		if snap.Progress.Current < last {
			t.Errorf("progress went backwards: %d after %d", snap.Progress.Current, last)
		}
		if snap.Progress.Current > snap.Progress.Total {
			t.Errorf("progress exceeded total: %+v", snap.Progress)
		}
		last = snap.Progress.Current
		states = append(states, snap.State)
	}

	if states[0] != storage.StatePending {
		t.Errorf("first snapshot should be PENDING, got %s", states[0])
	}
	if states[len(states)-1] != storage.StateSuccess {
		t.Errorf("last snapshot should be SUCCESS, got %s", states[len(states)-1])
	}
	for _, st := range states[1 : len(states)-1] {
		if st != storage.StateProgress {
			t.Errorf("intermediate snapshot in state %s", st)
		}
	}
}

func TestJob_FailureAfterPartialProgress(t *testing.T) {
	m := newTestManager(t, Config{Workers: 1})

	id, _ := m.Submit(context.Background(), Invocation{
		Kind:  "keyword_generation",
		Total: 6,
		Run: func(ctx context.Context, progress ProgressFunc) (any, error) {
			progress(1, "Running seed analysis...")
			progress(2, "Expanding keywords...")
			return nil, errors.New("llm: quota exhausted")
		},
	})

	job := waitTerminal(t, m, id)
	if job.State != storage.StateFailure {
		t.Fatalf("expected FAILURE, got %s", job.State)
	}
	if job.Error != "llm: quota exhausted" {
		t.Errorf("unexpected error message %q", job.Error)
	}
	if job.Progress.Current != 2 {
		t.Errorf("failure should keep the last reported progress, got %d", job.Progress.Current)
	}
	if len(job.Result) != 0 {
		t.Errorf("failed job must not carry a result")
	}
}

func TestJob_PanicBecomesFailure(t *testing.T) {
	m := newTestManager(t, Config{Workers: 1})

	id, _ := m.Submit(context.Background(), Invocation{
		Kind:  "audit",
		Total: 100,
		Run: func(ctx context.Context, progress ProgressFunc) (any, error) {
			var counts map[string]int
			counts["boom"] = 1
			return nil, nil
		},
	})

	job := waitTerminal(t, m, id)
	if job.State != storage.StateFailure || job.Error == "" {
		t.Fatalf("expected FAILURE with message, got %+v", job)
	}

	// The worker survives and runs the next job.
	id2, _ := m.Submit(context.Background(), Invocation{
		Kind:  "audit",
		Total: 1,
		Run:   func(ctx context.Context, p ProgressFunc) (any, error) { return "fine", nil },
	})
	if job := waitTerminal(t, m, id2); job.State != storage.StateSuccess {
		t.Errorf("worker did not recover after panic: %+v", job)
	}
}

func TestJob_LateProgressIgnored(t *testing.T) {
	m := newTestManager(t, Config{Workers: 1})

	var saved ProgressFunc
	id, _ := m.Submit(context.Background(), Invocation{
		Kind:  "content_gap",
		Total: 2,
		Run: func(ctx context.Context, progress ProgressFunc) (any, error) {
			saved = progress
			return "done", nil
		},
	})
	waitTerminal(t, m, id)

	saved(1, "too late")
	job, _ := m.Poll(context.Background(), id)
	if job.State != storage.StateSuccess || job.Progress.Status == "too late" {
		t.Errorf("terminal job was mutated: %+v", job)
	}
}

func TestJob_UnencodableResultFails(t *testing.T) {
	m := newTestManager(t, Config{Workers: 1})
	id, _ := m.Submit(context.Background(), Invocation{
		Kind:  "audit",
		Total: 1,
		Run: func(ctx context.Context, p ProgressFunc) (any, error) {
			return make(chan int), nil
		},
	})
	if job := waitTerminal(t, m, id); job.State != storage.StateFailure {
		t.Errorf("expected FAILURE for unencodable result, got %s", job.State)
	}
}

func TestPoll_NotFound(t *testing.T) {
	m := newTestManager(t, Config{})
	_, err := m.Poll(context.Background(), "does-not-exist")
	if !errors.Is(err, storage.ErrNotFound) || !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestSubmit_QueueFull(t *testing.T) {
	m, err := NewManager(memory.New(), Config{Workers: 1, QueueSize: 1}, nil)
	if err != nil {
		t.Fatal(err)
	}
	// Workers not started: the queue holds exactly one job.
	task := func(ctx context.Context, p ProgressFunc) (any, error) { return nil, nil }
	if _, err := m.Submit(context.Background(), Invocation{Kind: "k", Total: 1, Run: task}); err != nil {
		t.Fatalf("first submit: %v", err)
	}
	if _, err := m.Submit(context.Background(), Invocation{Kind: "k", Total: 1, Run: task}); !errors.Is(err, ErrQueueFull) {
		t.Fatalf("expected ErrQueueFull, got %v", err)
	}

	failed, _ := m.List(context.Background(), storage.Filter{State: storage.StateFailure})
	if len(failed) != 1 {
		t.Errorf("rejected job should be recorded as FAILURE, got %d", len(failed))
	}

	m.Start(context.Background())
	if err := m.Stop(context.Background()); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if _, err := m.Submit(context.Background(), Invocation{Kind: "k", Total: 1, Run: task}); !errors.Is(err, ErrStopped) {
		t.Errorf("expected ErrStopped after Stop, got %v", err)
	}
}

func TestJobs_AreIsolated(t *testing.T) {
	m := newTestManager(t, Config{Workers: 4})

	ids := make([]string, 8)
	for i := range ids {
		n := i
		id, err := m.Submit(context.Background(), Invocation{
			Kind:  "long_tail",
			Total: 2,
			Run: func(ctx context.Context, progress ProgressFunc) (any, error) {
				seen := map[int]bool{}
				seen[n] = true
				progress(1, "expanding")
				time.Sleep(time.Millisecond)
				return []int{n, len(seen)}, nil
			},
		})
		if err != nil {
			t.Fatalf("submit %d: %v", i, err)
		}
		ids[i] = id
	}

	for i, id := range ids {
		job := waitTerminal(t, m, id)
		var got []int
		if err := json.Unmarshal(job.Result, &got); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if got[0] != i || got[1] != 1 {
			t.Errorf("job %d leaked state: %v", i, got)
		}
	}
}

func TestStop_TimeoutReportsUnfinished(t *testing.T) {
	ids := []string{"job-a", "job-b"}
	next := 0
	m, err := NewManager(memory.New(), Config{
		Workers: 1,
		NewID: func() string {
			id := ids[next]
			next++
			return id
		},
	}, nil)
	if err != nil {
		t.Fatal(err)
	}

	release := make(chan struct{})
	started := make(chan struct{})
	blocking := func(ctx context.Context, p ProgressFunc) (any, error) {
		close(started)
		<-release
		return "done", nil
	}
	quick := func(ctx context.Context, p ProgressFunc) (any, error) { return "done", nil }

	m.Start(context.Background())
	if _, err := m.Submit(context.Background(), Invocation{Kind: "k", Total: 1, Run: blocking}); err != nil {
		t.Fatal(err)
	}
	<-started
	if _, err := m.Submit(context.Background(), Invocation{Kind: "k", Total: 1, Run: quick}); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := m.Stop(ctx); err == nil {
		t.Fatal("expected drain timeout")
	}
	if got := m.Unfinished(); len(got) != 2 || got[0] != "job-a" || got[1] != "job-b" {
		t.Errorf("Unfinished = %v, want [job-a job-b]", got)
	}

	close(release)
	if err := m.Stop(context.Background()); err != nil {
		t.Fatalf("second stop: %v", err)
	}
	if got := m.Unfinished(); len(got) != 0 {
		t.Errorf("Unfinished after drain = %v", got)
	}
	if job := waitTerminal(t, m, "job-b"); job.State != storage.StateSuccess {
		t.Errorf("queued job should still finish, got %s", job.State)
	}
}
