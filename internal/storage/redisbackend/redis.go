package redisbackend

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/FranksOps/seoforge/internal/storage"
	"github.com/gofiber/storage/redis/v3"
)

// ensure redisBackend implements storage.Backend
var _ storage.Backend = (*redisBackend)(nil)

const keyPrefix = "seoforge:job:"

// redisBackend stores each job as a JSON value that expires ttl after its
// last write. It cannot enumerate jobs, so Query is unsupported.
type redisBackend struct {
	store *redis.Storage
	ttl   time.Duration
}

// Config configures the Redis job store.
type Config struct {
	// URL is a redis:// connection string.
	URL string
	// TTL is how long a job record survives after its last update. Zero keeps
	// records forever.
	TTL time.Duration
}

// New connects to Redis. The underlying client panics when the server is
// unreachable; that panic is converted to an error here.
func New(cfg Config) (b storage.Backend, err error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("redis url is required")
	}

	defer func() {
		if r := recover(); r != nil {
			b = nil
			err = fmt.Errorf("connect redis: %v", r)
		}
	}()

	store := redis.New(redis.Config{URL: cfg.URL})
	return &redisBackend{store: store, ttl: cfg.TTL}, nil
}

func (b *redisBackend) Save(ctx context.Context, job *storage.Job) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("encode job %s: %w", job.ID, err)
	}
	if err := b.store.Set(keyPrefix+job.ID, data, b.ttl); err != nil {
		return fmt.Errorf("save job %s: %w", job.ID, err)
	}
	return nil
}

func (b *redisBackend) Get(ctx context.Context, id string) (*storage.Job, error) {
	data, err := b.store.Get(keyPrefix + id)
	if err != nil {
		return nil, fmt.Errorf("get job %s: %w", id, err)
	}
	if len(data) == 0 {
		return nil, storage.ErrNotFound
	}

	var job storage.Job
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, fmt.Errorf("decode job %s: %w", id, err)
	}
	return &job, nil
}

func (b *redisBackend) Query(ctx context.Context, filter storage.Filter) ([]*storage.Job, error) {
	return nil, storage.ErrUnsupported
}

func (b *redisBackend) Close() error {
	return b.store.Close()
}
