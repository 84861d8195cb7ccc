// Package storagetest holds the behavior every storage.Backend must share.
package storagetest

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/FranksOps/seoforge/internal/storage"
)

// Options relaxes checks for backends with narrower capabilities.
type Options struct {
	// SkipQuery is set for backends whose Query returns storage.ErrUnsupported.
	SkipQuery bool
}

// Run exercises b against the storage.Backend contract. Job ids are prefixed
// with prefix so shared databases do not collide between runs.
func Run(t *testing.T, b storage.Backend, prefix string, opts Options) {
	t.Helper()
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Millisecond)

	pending := &storage.Job{
		ID:        prefix + "-1",
		Kind:      "keyword_generation",
		State:     storage.StatePending,
		Progress:  storage.Progress{Total: 6},
		CreatedAt: now.Add(-2 * time.Hour),
		UpdatedAt: now.Add(-2 * time.Hour),
	}
	if err := b.Save(ctx, pending); err != nil {
		t.Fatalf("save pending: %v", err)
	}

	got, err := b.Get(ctx, pending.ID)
	if err != nil {
		t.Fatalf("get pending: %v", err)
	}
	if got.State != storage.StatePending || got.Progress.Total != 6 || got.Kind != pending.Kind {
		t.Errorf("unexpected pending record: %+v", got)
	}

	// Saving the same id replaces the record.
	done := pending.Clone()
	done.State = storage.StateSuccess
	done.Progress = storage.Progress{Current: 6, Total: 6, Status: "Complete"}
	done.Result = json.RawMessage(`{"keywords":["a","b"]}`)
	done.UpdatedAt = now
	if err := b.Save(ctx, done); err != nil {
		t.Fatalf("save success: %v", err)
	}

	got, err = b.Get(ctx, pending.ID)
	if err != nil {
		t.Fatalf("get success: %v", err)
	}
	if got.State != storage.StateSuccess || got.Progress.Current != 6 || got.Progress.Status != "Complete" {
		t.Errorf("record not replaced: %+v", got)
	}
	var result map[string][]string
	if err := json.Unmarshal(got.Result, &result); err != nil || len(result["keywords"]) != 2 {
		t.Errorf("result payload not preserved: %s (%v)", got.Result, err)
	}
	if !got.CreatedAt.Equal(pending.CreatedAt) {
		t.Errorf("created_at changed: %v != %v", got.CreatedAt, pending.CreatedAt)
	}

	failed := &storage.Job{
		ID:        prefix + "-2",
		Kind:      "audit",
		State:     storage.StateFailure,
		Progress:  storage.Progress{Current: 50, Total: 100, Status: "Running desktop audit..."},
		Error:     "pagespeed: unexpected status 500",
		CreatedAt: now.Add(-time.Hour),
		UpdatedAt: now,
	}
	if err := b.Save(ctx, failed); err != nil {
		t.Fatalf("save failure: %v", err)
	}
	got, err = b.Get(ctx, failed.ID)
	if err != nil {
		t.Fatalf("get failure: %v", err)
	}
	if got.Error != failed.Error || len(got.Result) != 0 {
		t.Errorf("unexpected failure record: %+v", got)
	}

	if _, err := b.Get(ctx, prefix+"-missing"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	if opts.SkipQuery {
		if _, err := b.Query(ctx, storage.Filter{}); !errors.Is(err, storage.ErrUnsupported) {
			t.Errorf("expected ErrUnsupported from Query, got %v", err)
		}
		return
	}

	since := now.Add(-3 * time.Hour)
	jobs, err := b.Query(ctx, storage.Filter{Since: &since})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	mine := filterPrefix(jobs, prefix)
	if len(mine) != 2 {
		t.Fatalf("expected 2 jobs, got %d", len(mine))
	}
	if mine[0].ID != failed.ID {
		t.Errorf("expected newest job first, got %s", mine[0].ID)
	}

	jobs, err = b.Query(ctx, storage.Filter{Kind: "audit", State: storage.StateFailure})
	if err != nil {
		t.Fatalf("query by kind: %v", err)
	}
	mine = filterPrefix(jobs, prefix)
	if len(mine) != 1 || mine[0].ID != failed.ID {
		t.Errorf("expected only the failed audit job, got %v", mine)
	}

	cutoff := now.Add(-90 * time.Minute)
	jobs, err = b.Query(ctx, storage.Filter{Since: &cutoff})
	if err != nil {
		t.Fatalf("query since: %v", err)
	}
	for _, j := range filterPrefix(jobs, prefix) {
		if j.ID == pending.ID {
			t.Errorf("job created before Since was returned")
		}
	}

	jobs, err = b.Query(ctx, storage.Filter{Since: &since, Limit: 1})
	if err != nil {
		t.Fatalf("query limit: %v", err)
	}
	if len(jobs) != 1 {
		t.Errorf("expected 1 job with limit, got %d", len(jobs))
	}
}

func filterPrefix(jobs []*storage.Job, prefix string) []*storage.Job {
	var out []*storage.Job
	for _, j := range jobs {
		if len(j.ID) > len(prefix) && j.ID[:len(prefix)] == prefix {
			out = append(out, j)
		}
	}
	return out
}
