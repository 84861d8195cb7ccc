package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/FranksOps/seoforge/internal/storage"
)

// ensure memoryBackend implements storage.Backend
var _ storage.Backend = (*memoryBackend)(nil)

type memoryBackend struct {
	mu   sync.RWMutex
	jobs map[string]*storage.Job
}

// New creates an in-process storage.Backend. Records are lost on exit.
func New() storage.Backend {
	return &memoryBackend{jobs: make(map[string]*storage.Job)}
}

func (b *memoryBackend) Save(ctx context.Context, job *storage.Job) error {
	b.mu.Lock()
	b.jobs[job.ID] = job.Clone()
	b.mu.Unlock()
	return nil
}

func (b *memoryBackend) Get(ctx context.Context, id string) (*storage.Job, error) {
	b.mu.RLock()
	job, ok := b.jobs[id]
	b.mu.RUnlock()
	if !ok {
		return nil, storage.ErrNotFound
	}
	return job.Clone(), nil
}

func (b *memoryBackend) Query(ctx context.Context, filter storage.Filter) ([]*storage.Job, error) {
	b.mu.RLock()
	var out []*storage.Job
	for _, job := range b.jobs {
		if filter.Match(job) {
			out = append(out, job.Clone())
		}
	}
	b.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})

	if filter.Offset > 0 {
		if filter.Offset >= len(out) {
			return []*storage.Job{}, nil
		}
		out = out[filter.Offset:]
	}
	if filter.Limit > 0 && filter.Limit < len(out) {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (b *memoryBackend) Close() error { return nil }
