package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/FranksOps/seoforge/internal/apperr"
	"github.com/FranksOps/seoforge/internal/audit"
	"github.com/FranksOps/seoforge/internal/autocomplete"
	"github.com/FranksOps/seoforge/internal/competitor"
	"github.com/FranksOps/seoforge/internal/config"
	"github.com/FranksOps/seoforge/internal/llm"
	"github.com/FranksOps/seoforge/internal/pagespeed"
	"github.com/FranksOps/seoforge/internal/pipeline"
	"github.com/FranksOps/seoforge/internal/scraper"
	"github.com/FranksOps/seoforge/internal/serp"
	"github.com/FranksOps/seoforge/internal/storage"
	"github.com/FranksOps/seoforge/internal/storage/jsonbackend"
	"github.com/FranksOps/seoforge/internal/storage/memory"
	"github.com/FranksOps/seoforge/internal/storage/postgres"
	"github.com/FranksOps/seoforge/internal/storage/redisbackend"
	"github.com/FranksOps/seoforge/internal/storage/sqlite"
	"github.com/FranksOps/seoforge/internal/tasks"
	"github.com/FranksOps/seoforge/pkg/httpclient"
	"github.com/FranksOps/seoforge/pkg/proxy"
)

const robotsAgent = "seoforge"

// services holds everything built from config. close releases fetchers.
type services struct {
	builder *tasks.Builder
	closers []func()
}

func (s *services) close() {
	for _, c := range s.closers {
		c()
	}
}

func openStore(ctx context.Context, cfg config.StorageConfig) (storage.Backend, error) {
	switch cfg.Driver {
	case "memory":
		return memory.New(), nil
	case "sqlite":
		return sqlite.New(cfg.DSN)
	case "postgres":
		return postgres.New(ctx, cfg.DSN)
	case "json":
		return jsonbackend.New(cfg.DSN)
	case "redis":
		return redisbackend.New(redisbackend.Config{URL: cfg.RedisURL, TTL: cfg.ResultTTL})
	}
	return nil, fmt.Errorf("%w: unknown storage driver %q", apperr.ErrConfiguration, cfg.Driver)
}

func proxyPool(cfg config.FetchConfig) (*proxy.Pool, error) {
	if len(cfg.Proxies) == 0 && cfg.ProxyFile == "" {
		return nil, nil
	}
	pool := proxy.NewPool(proxy.Config{})
	if err := pool.Add(cfg.Proxies...); err != nil {
		return nil, err
	}
	if cfg.ProxyFile != "" {
		if err := pool.LoadFile(cfg.ProxyFile); err != nil {
			return nil, err
		}
	}
	return pool, nil
}

// buildServices wires collaborators from cfg. Missing credentials leave the
// matching service nil so submissions report a configuration error.
func buildServices(cfg *config.Config, logger *slog.Logger) (*services, error) {
	s := &services{}

	profile, err := httpclient.ParseProfile(cfg.Fetch.Fingerprint)
	if err != nil {
		return nil, err
	}
	pool, err := proxyPool(cfg.Fetch)
	if err != nil {
		return nil, fmt.Errorf("proxies: %w", err)
	}

	pages, err := scraper.NewFetcher(scraper.FetchConfig{
		Timeout:           cfg.Fetch.Timeout,
		UseCookieJar:      true,
		Fingerprint:       profile,
		RequestsPerSecond: cfg.Fetch.RequestsPerSecond,
		Jitter:            0.2,
		RespectRobots:     cfg.Fetch.RespectRobots,
		RobotsAgent:       robotsAgent,
		Proxies:           pool,
	}, logger.With("component", "fetcher"))
	if err != nil {
		return nil, fmt.Errorf("page fetcher: %w", err)
	}
	s.closers = append(s.closers, pages.Close)

	// Search result pages are queried like an API, outside robots checks.
	searchPages, err := scraper.NewFetcher(scraper.FetchConfig{
		Timeout:           cfg.Fetch.Timeout,
		Fingerprint:       profile,
		RequestsPerSecond: 1,
		Jitter:            0.5,
		Proxies:           pool,
	}, logger.With("component", "serp"))
	if err != nil {
		s.close()
		return nil, fmt.Errorf("search fetcher: %w", err)
	}
	s.closers = append(s.closers, searchPages.Close)
	search := serp.NewDuckDuckGo(searchPages)

	transport, err := httpclient.Transport(profile)
	if err != nil {
		s.close()
		return nil, err
	}
	suggestClient, err := httpclient.New(httpclient.Config{Timeout: cfg.Autocomplete.Timeout, Transport: transport})
	if err != nil {
		s.close()
		return nil, fmt.Errorf("autocomplete client: %w", err)
	}

	var completer llm.Completer
	gemini, err := llm.NewGemini(llm.GeminiConfig{
		APIKey:   cfg.LLM.APIKey,
		Model:    cfg.LLM.Model,
		Endpoint: cfg.LLM.Endpoint,
		Timeout:  cfg.LLM.Timeout,
	}, logger.With("component", "llm"))
	switch {
	case err == nil:
		completer = gemini
	case errors.Is(err, apperr.ErrConfiguration):
		logger.Warn("language model disabled", "err", err)
	default:
		s.close()
		return nil, err
	}

	var generator *pipeline.Generator
	if completer != nil {
		prober := autocomplete.NewClient(autocomplete.DefaultSources(suggestClient, "en", "us"), cfg.Autocomplete.Timeout, logger)
		generator, err = pipeline.New(completer, nil, prober, search, pipeline.Config{Concurrency: cfg.Autocomplete.Concurrency}, logger.With("component", "pipeline"))
		if err != nil {
			s.close()
			return nil, err
		}
	}

	var audits *audit.Service
	ps, err := pagespeed.New(pagespeed.Config{
		APIKey:   cfg.PageSpeed.APIKey,
		Endpoint: cfg.PageSpeed.Endpoint,
		Timeout:  cfg.PageSpeed.Timeout,
	}, logger.With("component", "pagespeed"))
	switch {
	case err == nil:
		audits = audit.NewService(ps, logger.With("component", "audit"))
	case errors.Is(err, apperr.ErrConfiguration):
		logger.Warn("audits disabled", "err", err)
	default:
		s.close()
		return nil, err
	}

	s.builder = &tasks.Builder{
		Keywords:    generator,
		Audits:      audits,
		Competitors: competitor.New(pages, completer, search, competitor.Config{Concurrency: cfg.Autocomplete.Concurrency}, logger.With("component", "competitor")),
		Suggest: func(lang, country string) autocomplete.Source {
			return autocomplete.NewGoogle(suggestClient, lang, country)
		},
		Expand: autocomplete.ExpandConfig{
			MaxDepth:    cfg.LongTail.MaxDepth,
			MaxNodes:    cfg.LongTail.MaxNodes,
			Concurrency: cfg.Autocomplete.Concurrency,
			Timeout:     cfg.Autocomplete.Timeout,
		},
		Logger: logger,
	}
	return s, nil
}
