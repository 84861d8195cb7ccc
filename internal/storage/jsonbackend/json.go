package jsonbackend

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"sync"

	"github.com/FranksOps/seoforge/internal/storage"
)

// ensure jsonBackend implements storage.Backend
var _ storage.Backend = (*jsonBackend)(nil)

// jsonBackend appends every saved job snapshot as one NDJSON line. The last
// line for an id wins. An index of the latest snapshot per id is kept in
// memory and rebuilt from the file on open.
type jsonBackend struct {
	mu     sync.Mutex
	file   *os.File
	latest map[string]*storage.Job
}

// New opens (or creates) an NDJSON job log at filePath.
func New(filePath string) (storage.Backend, error) {
	f, err := os.OpenFile(filePath, os.O_APPEND|os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return nil, fmt.Errorf("open job log: %w", err)
	}

	b := &jsonBackend{file: f, latest: make(map[string]*storage.Job)}
	if err := b.replay(); err != nil {
		_ = f.Close()
		return nil, err
	}
	return b, nil
}

func (b *jsonBackend) replay() error {
	if _, err := b.file.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("seek job log: %w", err)
	}
	defer func() {
		_, _ = b.file.Seek(0, io.SeekEnd)
	}()

	scanner := bufio.NewScanner(b.file)
	scanner.Buffer(make([]byte, 64*1024), 16<<20)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var job storage.Job
		if err := json.Unmarshal(line, &job); err != nil {
			return fmt.Errorf("decode job log: %w", err)
		}
		b.latest[job.ID] = &job
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read job log: %w", err)
	}
	return nil
}

func (b *jsonBackend) Save(ctx context.Context, job *storage.Job) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("encode job %s: %w", job.ID, err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if _, err := b.file.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("append job %s: %w", job.ID, err)
	}
	b.latest[job.ID] = job.Clone()
	return nil
}

func (b *jsonBackend) Get(ctx context.Context, id string) (*storage.Job, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	job, ok := b.latest[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return job.Clone(), nil
}

func (b *jsonBackend) Query(ctx context.Context, filter storage.Filter) ([]*storage.Job, error) {
	b.mu.Lock()
	var out []*storage.Job
	for _, job := range b.latest {
		if filter.Match(job) {
			out = append(out, job.Clone())
		}
	}
	b.mu.Unlock()

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

func (b *jsonBackend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.file.Close()
}
