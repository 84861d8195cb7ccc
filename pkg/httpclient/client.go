package httpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"sync/atomic"
	"time"
)

// maxJSONBody caps how much of a JSON response is decoded.
const maxJSONBody = 10 << 20

// DefaultUserAgents is a small set of current desktop browser User-Agents.
var DefaultUserAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:133.0) Gecko/20100101 Firefox/133.0",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/18.1 Safari/605.1.15",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36 Edg/131.0.0.0",
}

// Config defines the setup for the HTTP Client.
type Config struct {
	Timeout time.Duration
	// MaxRedirects of 0 uses the default of 10; a negative value disables redirects.
	MaxRedirects int
	UseCookieJar bool
	// Provide a custom Transport, e.g. for uTLS fingerprinting
	Transport http.RoundTripper
	// UserAgents are rotated round-robin on requests that do not set one.
	UserAgents []string
	// Header is added to every request that does not already set the key.
	Header http.Header
}

// StatusError is returned by the JSON helpers for non-2xx responses.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d: %s", e.StatusCode, e.Body)
}

// Client wraps a standard http.Client with redirect policy, cookie handling
// and User-Agent rotation.
type Client struct {
	*http.Client
	agents  []string
	header  http.Header
	counter atomic.Uint64
}

// New creates a new HTTP client based on the provided configuration.
func New(cfg Config) (*Client, error) {
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.MaxRedirects == 0 {
		cfg.MaxRedirects = 10
	}

	c := &http.Client{
		Timeout: cfg.Timeout,
	}

	if cfg.MaxRedirects > 0 {
		limit := cfg.MaxRedirects
		c.CheckRedirect = func(req *http.Request, via []*http.Request) error {
			if len(via) >= limit {
				return fmt.Errorf("stopped after %d redirects", limit)
			}
			return nil
		}
	} else {
		c.CheckRedirect = func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		}
	}

	if cfg.UseCookieJar {
		jar, err := cookiejar.New(nil)
		if err != nil {
			return nil, fmt.Errorf("cookie jar: %w", err)
		}
		c.Jar = jar
	}

	if cfg.Transport != nil {
		c.Transport = cfg.Transport
	}

	agents := cfg.UserAgents
	if len(agents) == 0 {
		agents = DefaultUserAgents
	}

	return &Client{Client: c, agents: append([]string(nil), agents...), header: cfg.Header.Clone()}, nil
}

// UserAgent returns the next User-Agent in rotation. Safe for concurrent use.
func (c *Client) UserAgent() string {
	idx := c.counter.Add(1) - 1
	return c.agents[idx%uint64(len(c.agents))]
}

// Do executes an HTTP request bound to ctx. A User-Agent is filled in when
// the request has none.
func (c *Client) Do(ctx context.Context, req *http.Request) (*http.Response, error) {
	if ctx == nil {
		return nil, errors.New("httpclient: nil context")
	}

	reqWithCtx := req.Clone(ctx)
	for k, v := range c.header {
		if reqWithCtx.Header.Get(k) == "" {
			reqWithCtx.Header[k] = append([]string(nil), v...)
		}
	}
	if reqWithCtx.Header.Get("User-Agent") == "" {
		reqWithCtx.Header.Set("User-Agent", c.UserAgent())
	}

	resp, err := c.Client.Do(reqWithCtx)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", req.Method, req.URL.Host, redactQuery(err))
	}
	return resp, nil
}

// redactQuery drops the query string from the URL a transport error
// prints. Queries may carry credentials.
func redactQuery(err error) error {
	var ue *url.Error
	if !errors.As(err, &ue) {
		return err
	}
	if u, perr := url.Parse(ue.URL); perr == nil && u.RawQuery != "" {
		u.RawQuery = ""
		ue.URL = u.String() + "?[redacted]"
	}
	return err
}

// GetJSON issues a GET and decodes the JSON response body into v.
func (c *Client) GetJSON(ctx context.Context, rawURL string, v any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", redactQuery(err))
	}
	req.Header.Set("Accept", "application/json")
	return c.doJSON(ctx, req, v)
}

// PostJSON marshals body, POSTs it and decodes the JSON response into v.
func (c *Client) PostJSON(ctx context.Context, rawURL string, body, v any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode body: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, rawURL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build request: %w", redactQuery(err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	return c.doJSON(ctx, req, v)
}

func (c *Client) doJSON(ctx context.Context, req *http.Request, v any) error {
	resp, err := c.Do(ctx, req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxJSONBody))
	if err != nil {
		return fmt.Errorf("read body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet := data
		if len(snippet) > 512 {
			snippet = snippet[:512]
		}
		return &StatusError{StatusCode: resp.StatusCode, Body: string(snippet)}
	}

	if v == nil {
		return nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode json: %w", err)
	}
	return nil
}
