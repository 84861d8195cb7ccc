// Package apperr defines the error categories surfaced to API callers.
package apperr

import (
	"context"
	"errors"
)

// Category sentinels. Packages wrap these with fmt.Errorf("%w: ...") so
// callers can classify with errors.Is.
var (
	ErrConfiguration = errors.New("configuration error")
	ErrValidation    = errors.New("validation error")
	ErrNotFound      = errors.New("not found")
	ErrRateLimited   = errors.New("rate limited")
	ErrUnavailable   = errors.New("collaborator unavailable")
)

// Category is the coarse class of a failure.
type Category string

const (
	CategoryConfiguration Category = "configuration"
	CategoryValidation    Category = "validation"
	CategoryNotFound      Category = "not_found"
	CategoryRateLimited   Category = "rate_limited"
	CategoryUnavailable   Category = "unavailable"
	CategoryTimeout       Category = "timeout"
	CategoryInternal      Category = "internal"
)

// Classify maps err to its Category. Unknown errors are internal.
func Classify(err error) Category {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrConfiguration):
		return CategoryConfiguration
	case errors.Is(err, ErrValidation):
		return CategoryValidation
	case errors.Is(err, ErrNotFound):
		return CategoryNotFound
	case errors.Is(err, ErrRateLimited):
		return CategoryRateLimited
	case errors.Is(err, ErrUnavailable):
		return CategoryUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return CategoryTimeout
	default:
		return CategoryInternal
	}
}
