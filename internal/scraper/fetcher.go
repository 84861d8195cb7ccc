package scraper

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/FranksOps/seoforge/internal/metrics"
	"github.com/FranksOps/seoforge/pkg/httpclient"
	"github.com/FranksOps/seoforge/pkg/proxy"
	"github.com/FranksOps/seoforge/pkg/ratelimit"
)

const maxPageBytes = 5 << 20

var (
	// ErrDisallowed is returned when robots.txt forbids the URL.
	ErrDisallowed = errors.New("disallowed by robots.txt")
	// ErrChallenged is returned when the response is a bot-protection page.
	ErrChallenged = errors.New("bot challenge detected")
)

// FetchConfig configures a Fetcher.
type FetchConfig struct {
	Timeout      time.Duration
	MaxRedirects int
	UseCookieJar bool
	Fingerprint  httpclient.Profile
	UserAgents   []string
	// RequestsPerSecond limits the fetch rate (0 = unlimited)
	RequestsPerSecond float64
	Jitter            float64
	RespectRobots     bool
	// RobotsAgent is the product token matched against robots.txt groups.
	RobotsAgent string
	// Proxies, when non-empty, rotates requests through the pool. Proxied
	// TLS uses the standard handshake rather than the fingerprint.
	Proxies *proxy.Pool
}

// Page is a fetched HTTP response.
type Page struct {
	URL             string        `json:"url"`
	StatusCode      int           `json:"status_code"`
	Headers         http.Header   `json:"headers,omitempty"`
	Body            []byte        `json:"-"`
	Duration        time.Duration `json:"duration"`
	Challenged      bool          `json:"challenged"`
	ChallengeSource string        `json:"challenge_source,omitempty"`
	FetchedAt       time.Time     `json:"fetched_at"`
}

// Fetcher retrieves pages with a browser-like TLS fingerprint, rotating
// User-Agents, an optional rate limit and optional robots.txt checks.
type Fetcher struct {
	cfg     FetchConfig
	client  *httpclient.Client
	limiter *ratelimit.Limiter
	robots  *RobotsTxtAuditor
	logger  *slog.Logger
}

// NewFetcher builds a Fetcher. The transport is created once so connections
// and cookies are reused across fetches.
func NewFetcher(cfg FetchConfig, logger *slog.Logger) (*Fetcher, error) {
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.Fingerprint == "" {
		cfg.Fingerprint = httpclient.ProfileChrome
	}
	if cfg.RobotsAgent == "" {
		cfg.RobotsAgent = "*"
	}
	if logger == nil {
		logger = slog.Default()
	}

	transport, err := httpclient.Transport(cfg.Fingerprint)
	if err != nil {
		return nil, fmt.Errorf("failed to setup transport: %w", err)
	}
	if cfg.Proxies != nil && cfg.Proxies.Len() > 0 {
		if t, ok := transport.(*http.Transport); ok {
			t.Proxy = cfg.Proxies.ProxyFunc()
		}
	}

	client, err := httpclient.New(httpclient.Config{
		Timeout:      cfg.Timeout,
		MaxRedirects: cfg.MaxRedirects,
		UseCookieJar: cfg.UseCookieJar,
		Transport:    transport,
		UserAgents:   cfg.UserAgents,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create client: %w", err)
	}

	f := &Fetcher{
		cfg:     cfg,
		client:  client,
		limiter: ratelimit.NewLimiter(cfg.RequestsPerSecond, cfg.Jitter),
		logger:  logger,
	}
	if cfg.RespectRobots {
		f.robots = NewRobotsTxtAuditor(f.get, logger)
	}
	return f, nil
}

// Close releases the rate limiter.
func (f *Fetcher) Close() {
	f.limiter.Stop()
}

// Fetch GETs targetURL. Transport failures, non-2xx statuses, bot challenges
// and robots.txt refusals are errors; the Page is returned alongside when a
// response was received.
func (f *Fetcher) Fetch(ctx context.Context, targetURL string) (*Page, error) {
	if f.robots != nil {
		allowed, err := f.robots.IsAllowed(ctx, targetURL, f.cfg.RobotsAgent)
		if err != nil {
			return nil, err
		}
		if !allowed {
			return nil, fmt.Errorf("%s: %w", targetURL, ErrDisallowed)
		}
	}

	if err := f.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}

	page, err := f.get(ctx, targetURL)
	if err != nil {
		metrics.RecordFetch(0, false)
		return nil, err
	}

	Detect(page, DefaultDetectors())
	metrics.RecordFetch(page.StatusCode, page.Challenged)

	if page.Challenged {
		f.logger.Warn("bot challenge on fetch", "url", targetURL, "source", page.ChallengeSource)
		return page, fmt.Errorf("%s: %w (%s)", targetURL, ErrChallenged, page.ChallengeSource)
	}
	if page.StatusCode < 200 || page.StatusCode > 299 {
		return page, fmt.Errorf("%s: %w", targetURL, &httpclient.StatusError{StatusCode: page.StatusCode})
	}
	return page, nil
}

// get performs the request without robots or rate-limit checks.
func (f *Fetcher) get(ctx context.Context, targetURL string) (*Page, error) {
	start := time.Now()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, targetURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.5")

	var sel *proxy.Selection
	if f.cfg.Proxies != nil {
		sel = &proxy.Selection{}
		ctx = proxy.WithSelection(ctx, sel)
	}

	resp, err := f.client.Do(ctx, req)
	if sel != nil && sel.URL() != nil {
		_ = f.cfg.Proxies.Report(sel.URL(), err)
	}
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPageBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read body: %w", err)
	}

	return &Page{
		URL:        targetURL,
		StatusCode: resp.StatusCode,
		Headers:    resp.Header,
		Body:       body,
		Duration:   time.Since(start),
		FetchedAt:  start.UTC(),
	}, nil
}
