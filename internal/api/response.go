package api

import (
	"log/slog"

	"github.com/gofiber/fiber/v3"

	"github.com/FranksOps/seoforge/internal/apperr"
	"github.com/FranksOps/seoforge/internal/storage"
)

// statusFor maps an error category to an HTTP status code.
func statusFor(cat apperr.Category) int {
	switch cat {
	case apperr.CategoryValidation:
		return fiber.StatusBadRequest
	case apperr.CategoryNotFound:
		return fiber.StatusNotFound
	case apperr.CategoryRateLimited:
		return fiber.StatusTooManyRequests
	case apperr.CategoryConfiguration, apperr.CategoryUnavailable:
		return fiber.StatusServiceUnavailable
	case apperr.CategoryTimeout:
		return fiber.StatusGatewayTimeout
	default:
		return fiber.StatusInternalServerError
	}
}

// jsonError writes the error envelope. Internal errors are logged and
// replaced by a generic message.
func jsonError(c fiber.Ctx, logger *slog.Logger, err error) error {
	cat := apperr.Classify(err)
	msg := err.Error()
	if cat == apperr.CategoryInternal {
		logger.Error("request failed", "method", c.Method(), "path", c.Path(), "err", err)
		msg = "internal error"
	}
	return c.Status(statusFor(cat)).JSON(fiber.Map{
		"status":   "error",
		"category": cat,
		"error":    msg,
	})
}

// jsonAccepted acknowledges a queued job.
func jsonAccepted(c fiber.Ctx, id string) error {
	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
		"task_id": id,
		"status":  storage.StatePending,
	})
}

// jobView is the polling payload. Result is present only on success and
// Error only on failure.
type jobView struct {
	ID      string        `json:"id"`
	Kind    string        `json:"kind"`
	State   storage.State `json:"state"`
	Current int           `json:"current"`
	Total   int           `json:"total"`
	Status  string        `json:"status,omitempty"`
	Result  any           `json:"result,omitempty"`
	Error   string        `json:"error,omitempty"`
}

func viewOf(j *storage.Job) jobView {
	v := jobView{
		ID:      j.ID,
		Kind:    j.Kind,
		State:   j.State,
		Current: j.Progress.Current,
		Total:   j.Progress.Total,
		Status:  j.Progress.Status,
	}
	switch j.State {
	case storage.StateSuccess:
		if len(j.Result) > 0 {
			v.Result = j.Result
		}
	case storage.StateFailure:
		v.Error = j.Error
	}
	return v
}
