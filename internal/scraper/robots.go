package scraper

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"sync"

	"github.com/temoto/robotstxt"
)

// getFunc retrieves a URL without robots enforcement.
type getFunc func(ctx context.Context, url string) (*Page, error)

// RobotsTxtAuditor fetches and caches robots.txt per host.
type RobotsTxtAuditor struct {
	get    getFunc
	logger *slog.Logger
	mu     sync.Mutex
	cache  map[string]*robotstxt.RobotsData
}

// NewRobotsTxtAuditor creates a new instance.
func NewRobotsTxtAuditor(get getFunc, logger *slog.Logger) *RobotsTxtAuditor {
	if logger == nil {
		logger = slog.Default()
	}
	return &RobotsTxtAuditor{
		get:    get,
		logger: logger,
		cache:  make(map[string]*robotstxt.RobotsData),
	}
}

// IsAllowed reports whether userAgent may fetch targetURL. A robots.txt that
// cannot be retrieved or parsed allows everything.
func (r *RobotsTxtAuditor) IsAllowed(ctx context.Context, targetURL string, userAgent string) (bool, error) {
	u, err := url.Parse(targetURL)
	if err != nil {
		return false, fmt.Errorf("invalid url: %w", err)
	}

	data := r.lookup(ctx, u.Scheme+"://"+u.Host)
	if data == nil {
		return true, nil
	}

	path := u.EscapedPath()
	if path == "" {
		path = "/"
	}
	return data.FindGroup(userAgent).Test(path), nil
}

func (r *RobotsTxtAuditor) lookup(ctx context.Context, host string) *robotstxt.RobotsData {
	r.mu.Lock()
	defer r.mu.Unlock()

	if data, ok := r.cache[host]; ok {
		return data
	}

	data, err := r.fetch(ctx, host)
	if err != nil {
		r.logger.Debug("robots.txt unavailable, defaulting to allow", "host", host, "err", err)
	}
	r.cache[host] = data
	return data
}

func (r *RobotsTxtAuditor) fetch(ctx context.Context, host string) (*robotstxt.RobotsData, error) {
	page, err := r.get(ctx, host+"/robots.txt")
	if err != nil {
		return nil, err
	}
	if page.StatusCode >= 400 {
		return nil, nil
	}

	parsed, err := robotstxt.FromBytes(page.Body)
	if err != nil {
		return nil, fmt.Errorf("parse error: %w", err)
	}
	return parsed, nil
}
