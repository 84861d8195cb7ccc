// Package pagespeed adapts the PageSpeed Insights v5 runPagespeed API.
package pagespeed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/FranksOps/seoforge/internal/apperr"
	"github.com/FranksOps/seoforge/internal/metrics"
	"github.com/FranksOps/seoforge/pkg/httpclient"
)

const (
	DefaultEndpoint = "https://www.googleapis.com/pagespeedonline/v5/runPagespeed"

	apiKeyHeader = "X-Goog-Api-Key"
)

// ErrNoReport is returned when the response carries no lighthouseResult.
var ErrNoReport = errors.New("pagespeed response has no lighthouseResult")

// Device selects the Lighthouse form factor.
type Device string

const (
	Mobile  Device = "mobile"
	Desktop Device = "desktop"
)

// DefaultCategories are the Lighthouse categories requested for audits.
var DefaultCategories = []string{"performance", "accessibility", "best-practices", "seo", "pwa"}

// Analyzer runs a page-speed analysis. The returned map is the raw
// lighthouseResult object.
type Analyzer interface {
	Analyze(ctx context.Context, pageURL string, device Device, categories []string) (map[string]any, error)
}

// Config configures the PageSpeed client.
type Config struct {
	APIKey   string
	Endpoint string
	Timeout  time.Duration
}

// Client calls runPagespeed over REST.
type Client struct {
	cfg    Config
	client *httpclient.Client
	logger *slog.Logger
}

// ensure Client implements Analyzer
var _ Analyzer = (*Client)(nil)

// New returns a configuration error when no API key is set.
func New(cfg Config, logger *slog.Logger) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: PAGESPEED_API_KEY is not set", apperr.ErrConfiguration)
	}
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultEndpoint
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 300 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}

	client, err := httpclient.New(httpclient.Config{
		Timeout: cfg.Timeout,
		Header:  http.Header{apiKeyHeader: {cfg.APIKey}},
	})
	if err != nil {
		return nil, fmt.Errorf("pagespeed client: %w", err)
	}
	return &Client{cfg: cfg, client: client, logger: logger}, nil
}

// Analyze runs Lighthouse against pageURL for one device.
func (c *Client) Analyze(ctx context.Context, pageURL string, device Device, categories []string) (map[string]any, error) {
	if len(categories) == 0 {
		categories = DefaultCategories
	}

	q := url.Values{}
	q.Set("url", pageURL)
	q.Set("strategy", string(device))
	q.Set("prettyPrint", "false")
	for _, cat := range categories {
		q.Add("category", strings.ToUpper(strings.ReplaceAll(cat, "-", "_")))
	}

	start := time.Now()
	var resp map[string]any
	err := c.client.GetJSON(ctx, c.cfg.Endpoint+"?"+q.Encode(), &resp)
	metrics.CollaboratorCalls.WithLabelValues("pagespeed", metrics.Outcome(err)).Inc()
	if err != nil {
		c.logger.Warn("pagespeed call failed", "url", pageURL, "device", device, "err", err)
		return nil, fmt.Errorf("%w: pagespeed %s: %w", apperr.ErrUnavailable, device, err)
	}

	report, ok := resp["lighthouseResult"].(map[string]any)
	if !ok {
		return nil, fmt.Errorf("pagespeed %s: %w", device, ErrNoReport)
	}

	c.logger.Debug("pagespeed analysis complete", "url", pageURL, "device", device, "elapsed", time.Since(start))
	return report, nil
}
