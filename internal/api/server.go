// Package api exposes job submission, polling and the synchronous
// competitor lookups over HTTP.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/logger"
	"github.com/gofiber/fiber/v3/middleware/recover"

	"github.com/FranksOps/seoforge/internal/apperr"
	"github.com/FranksOps/seoforge/internal/competitor"
	"github.com/FranksOps/seoforge/internal/jobs"
	"github.com/FranksOps/seoforge/internal/pipeline"
	"github.com/FranksOps/seoforge/internal/storage"
	"github.com/FranksOps/seoforge/internal/tasks"
	"github.com/FranksOps/seoforge/pkg/ratelimit"
)

const (
	// PrincipalHeader carries the caller identity set by the auth proxy.
	PrincipalHeader = "X-Principal"

	defaultListLimit = 50
	maxListLimit     = 500
)

// PrincipalFunc resolves the caller of a request.
type PrincipalFunc func(c fiber.Ctx) string

// HeaderPrincipal uses PrincipalHeader and falls back to the client IP.
func HeaderPrincipal(c fiber.Ctx) string {
	if p := strings.TrimSpace(c.Get(PrincipalHeader)); p != "" {
		return p
	}
	return c.IP()
}

// Config wires a Server.
type Config struct {
	Runner  jobs.Runner
	Builder *tasks.Builder
	// Throttle limits submissions per principal. Nil disables throttling.
	Throttle  *ratelimit.AttemptTracker
	Principal PrincipalFunc
	// AccessLog enables the request logging middleware.
	AccessLog bool
	Logger    *slog.Logger
}

// Server wraps the Fiber app.
type Server struct {
	App *fiber.App
	cfg Config
	log *slog.Logger
}

// New builds the app and registers every route.
func New(cfg Config) (*Server, error) {
	if cfg.Runner == nil || cfg.Builder == nil {
		return nil, fmt.Errorf("%w: api needs a job runner and a task builder", apperr.ErrConfiguration)
	}
	if cfg.Principal == nil {
		cfg.Principal = HeaderPrincipal
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	s := &Server{cfg: cfg, log: cfg.Logger}
	s.App = fiber.New(fiber.Config{
		AppName: "seoforge",
		ErrorHandler: func(c fiber.Ctx, err error) error {
			if e, ok := err.(*fiber.Error); ok {
				return c.Status(e.Code).JSON(fiber.Map{"status": "error", "error": e.Message})
			}
			return jsonError(c, s.log, err)
		},
	})

	s.App.Use(recover.New())
	if cfg.AccessLog {
		s.App.Use(logger.New())
	}

	s.routes()
	return s, nil
}

func (s *Server) routes() {
	s.App.Get("/healthz", func(c fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	api := s.App.Group("/api")

	kw := api.Group("/keywords")
	kw.Post("/generate", s.throttled, s.generateKeywords)
	kw.Post("/long-tail", s.throttled, s.longTail)
	kw.Get("/languages", func(c fiber.Ctx) error { return c.JSON(Languages) })
	kw.Get("/locations", func(c fiber.Ctx) error { return c.JSON(Locations) })

	comp := api.Group("/competitors")
	comp.Post("/discover", s.discover)
	comp.Post("/extract-keywords", s.extractKeywords)
	comp.Post("/keywords", s.throttled, s.competitorKeywords)
	comp.Post("/content-gap", s.throttled, s.contentGap)

	api.Post("/audits", s.throttled, s.audit)

	api.Get("/jobs", s.listJobs)
	api.Get("/jobs/:id", s.pollJob)
}

// Listen serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Listen(ctx context.Context, addr string) error {
	errc := make(chan error, 1)
	go func() {
		errc <- s.App.Listen(addr, fiber.ListenConfig{DisableStartupMessage: true})
	}()
	s.log.Info("api listening", "addr", addr)

	select {
	case err := <-errc:
		return fmt.Errorf("listen %s: %w", addr, err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := s.App.ShutdownWithContext(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown api: %w", err)
	}
	return nil
}

// throttled rejects submissions beyond the per-principal budget.
func (s *Server) throttled(c fiber.Ctx) error {
	if s.cfg.Throttle == nil {
		return c.Next()
	}
	who := s.cfg.Principal(c)
	if !s.cfg.Throttle.Allow(who) {
		retry := s.cfg.Throttle.RetryAfter(who)
		c.Set(fiber.HeaderRetryAfter, strconv.Itoa(int(retry.Round(time.Second)/time.Second)))
		s.log.Warn("submission throttled", "principal", who, "retry_after", retry)
		return jsonError(c, s.log, fmt.Errorf("%w: too many submissions, retry in %s", apperr.ErrRateLimited, retry.Round(time.Second)))
	}
	return c.Next()
}

// decode parses the JSON body into v.
func decode(c fiber.Ctx, v any) error {
	if len(c.Body()) == 0 {
		return fmt.Errorf("%w: request body is required", apperr.ErrValidation)
	}
	if err := json.Unmarshal(c.Body(), v); err != nil {
		return fmt.Errorf("%w: invalid JSON body: %v", apperr.ErrValidation, err)
	}
	return nil
}

// submit queues inv, or reports why it could not be built.
func (s *Server) submit(c fiber.Ctx, inv jobs.Invocation, err error) error {
	if err != nil {
		return jsonError(c, s.log, err)
	}
	id, err := s.cfg.Runner.Submit(c.Context(), inv)
	if err != nil {
		return jsonError(c, s.log, err)
	}
	s.log.Info("job submitted", "id", id, "kind", inv.Kind, "principal", s.cfg.Principal(c))
	return jsonAccepted(c, id)
}

func (s *Server) generateKeywords(c fiber.Ctx) error {
	var req pipeline.Request
	if err := decode(c, &req); err != nil {
		return jsonError(c, s.log, err)
	}
	inv, err := s.cfg.Builder.KeywordGeneration(req)
	return s.submit(c, inv, err)
}

func (s *Server) longTail(c fiber.Ctx) error {
	var req tasks.LongTailRequest
	if err := decode(c, &req); err != nil {
		return jsonError(c, s.log, err)
	}
	inv, err := s.cfg.Builder.LongTail(req)
	return s.submit(c, inv, err)
}

func (s *Server) audit(c fiber.Ctx) error {
	var req tasks.AuditRequest
	if err := decode(c, &req); err != nil {
		return jsonError(c, s.log, err)
	}
	inv, err := s.cfg.Builder.Audit(req)
	return s.submit(c, inv, err)
}

func (s *Server) competitorKeywords(c fiber.Ctx) error {
	var req tasks.CompetitorKeywordsRequest
	if err := decode(c, &req); err != nil {
		return jsonError(c, s.log, err)
	}
	inv, err := s.cfg.Builder.CompetitorKeywords(req)
	return s.submit(c, inv, err)
}

func (s *Server) contentGap(c fiber.Ctx) error {
	var req competitor.GapRequest
	if err := decode(c, &req); err != nil {
		return jsonError(c, s.log, err)
	}
	inv, err := s.cfg.Builder.ContentGap(req)
	return s.submit(c, inv, err)
}

func (s *Server) competitors() (*competitor.Analyzer, error) {
	if s.cfg.Builder.Competitors == nil {
		return nil, fmt.Errorf("%w: competitor analysis is not configured", apperr.ErrConfiguration)
	}
	return s.cfg.Builder.Competitors, nil
}

func (s *Server) discover(c fiber.Ctx) error {
	var req struct {
		Keywords []string `json:"keywords"`
	}
	if err := decode(c, &req); err != nil {
		return jsonError(c, s.log, err)
	}
	a, err := s.competitors()
	if err != nil {
		return jsonError(c, s.log, err)
	}
	links, err := a.Discover(c.Context(), req.Keywords)
	if err != nil {
		return jsonError(c, s.log, err)
	}
	return c.JSON(fiber.Map{"competitors": links})
}

func (s *Server) extractKeywords(c fiber.Ctx) error {
	var req struct {
		URL         string `json:"url"`
		MaxKeywords int    `json:"max_keywords"`
	}
	if err := decode(c, &req); err != nil {
		return jsonError(c, s.log, err)
	}
	pageURL, err := tasks.ValidateURL(req.URL)
	if err != nil {
		return jsonError(c, s.log, err)
	}
	a, err := s.competitors()
	if err != nil {
		return jsonError(c, s.log, err)
	}
	return c.JSON(fiber.Map{"keywords": a.ExtractKeywords(c.Context(), pageURL, req.MaxKeywords)})
}

func (s *Server) pollJob(c fiber.Ctx) error {
	job, err := s.cfg.Runner.Poll(c.Context(), c.Params("id"))
	if err != nil {
		return jsonError(c, s.log, err)
	}
	return c.JSON(viewOf(job))
}

func (s *Server) listJobs(c fiber.Ctx) error {
	filter := storage.Filter{
		Kind:  c.Query("kind"),
		State: storage.State(strings.ToUpper(c.Query("state"))),
		Limit: defaultListLimit,
	}
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			return jsonError(c, s.log, fmt.Errorf("%w: limit must be a positive integer", apperr.ErrValidation))
		}
		filter.Limit = min(n, maxListLimit)
	}
	if raw := c.Query("offset"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return jsonError(c, s.log, fmt.Errorf("%w: offset must be a non-negative integer", apperr.ErrValidation))
		}
		filter.Offset = n
	}
	if raw := c.Query("since"); raw != "" {
		since, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return jsonError(c, s.log, fmt.Errorf("%w: since must be RFC 3339", apperr.ErrValidation))
		}
		filter.Since = &since
	}

	list, err := s.cfg.Runner.List(c.Context(), filter)
	if err != nil {
		return jsonError(c, s.log, err)
	}
	views := make([]jobView, 0, len(list))
	for _, j := range list {
		views = append(views, viewOf(j))
	}
	return c.JSON(fiber.Map{"jobs": views})
}
