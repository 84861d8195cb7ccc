package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/FranksOps/seoforge/internal/apperr"
)

var (
	// ErrNotFound is returned by Get when no job has the given id.
	ErrNotFound = fmt.Errorf("job %w", apperr.ErrNotFound)
	// ErrUnsupported is returned by backends that cannot serve an operation.
	ErrUnsupported = fmt.Errorf("%w: operation not supported by this storage driver", apperr.ErrConfiguration)
)

// State is the lifecycle position of a job.
type State string

const (
	StatePending  State = "PENDING"
	StateProgress State = "PROGRESS"
	StateSuccess  State = "SUCCESS"
	StateFailure  State = "FAILURE"
)

// Terminal reports whether no further transitions are allowed.
func (s State) Terminal() bool {
	return s == StateSuccess || s == StateFailure
}

// Progress is the latest progress report of a running job.
type Progress struct {
	Current int    `json:"current"`
	Total   int    `json:"total"`
	Status  string `json:"status"`
}

// Job is the persisted record of one background invocation. Result is set
// only in StateSuccess and Error only in StateFailure.
type Job struct {
	ID        string          `json:"id"`
	Kind      string          `json:"kind"`
	State     State           `json:"state"`
	Progress  Progress        `json:"progress"`
	Result    json.RawMessage `json:"result,omitempty"`
	Error     string          `json:"error,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// Clone returns a deep copy so readers never share memory with the writer.
func (j *Job) Clone() *Job {
	if j == nil {
		return nil
	}
	c := *j
	if j.Result != nil {
		c.Result = append(json.RawMessage(nil), j.Result...)
	}
	return &c
}

// Filter selects jobs for listing. Results are ordered by created_at DESC.
type Filter struct {
	Kind   string
	State  State
	Since  *time.Time
	Limit  int
	Offset int
}

// Match reports whether job satisfies the filter's predicates.
func (f Filter) Match(job *Job) bool {
	if f.Kind != "" && job.Kind != f.Kind {
		return false
	}
	if f.State != "" && job.State != f.State {
		return false
	}
	if f.Since != nil && job.CreatedAt.Before(*f.Since) {
		return false
	}
	return true
}

// Backend persists job records. Save replaces the whole record for job.ID,
// so a reader never observes a partially written job.
type Backend interface {
	Save(ctx context.Context, job *Job) error
	Get(ctx context.Context, id string) (*Job, error)
	Query(ctx context.Context, filter Filter) ([]*Job, error)
	Close() error
}
