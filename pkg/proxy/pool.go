// Package proxy rotates outbound requests across a set of HTTP or SOCKS
// proxies and benches proxies that keep failing.
package proxy

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"
)

// ErrUnknownProxy is returned when reporting on a proxy the pool never held.
var ErrUnknownProxy = errors.New("proxy not in pool")

type entry struct {
	url       *url.URL
	failures  int
	successes int
	benched   time.Time
}

// Config tunes health tracking.
type Config struct {
	// MaxFailures in a row before a proxy is benched. Default 3.
	MaxFailures int
	// Cooldown is how long a benched proxy sits out. Default 5m.
	Cooldown time.Duration
	// Now is used for cooldown bookkeeping. Default time.Now.
	Now func() time.Time
}

// Pool hands out proxies round-robin, skipping benched ones.
// It is safe for concurrent use.
type Pool struct {
	mu      sync.Mutex
	entries []*entry
	next    int
	cfg     Config
}

// NewPool creates an empty pool.
func NewPool(cfg Config) *Pool {
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = 3
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 5 * time.Minute
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Pool{cfg: cfg}
}

// Len reports how many proxies the pool holds, benched or not.
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.entries)
}

// LoadFile adds proxies listed one per line. Blank lines and lines
// starting with '#' are skipped.
func (p *Pool) LoadFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open proxy list: %w", err)
	}
	defer f.Close()

	var raw []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		raw = append(raw, line)
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("read proxy list: %w", err)
	}
	return p.Add(raw...)
}

// Add parses and appends proxies. A missing scheme means http.
func (p *Pool) Add(raw ...string) error {
	parsed := make([]*entry, 0, len(raw))
	for _, r := range raw {
		if !strings.Contains(r, "://") {
			r = "http://" + r
		}
		u, err := url.Parse(r)
		if err != nil {
			return fmt.Errorf("parse proxy %q: %w", r, err)
		}
		if u.Host == "" {
			return fmt.Errorf("parse proxy %q: missing host", r)
		}
		parsed = append(parsed, &entry{url: u})
	}

	p.mu.Lock()
	p.entries = append(p.entries, parsed...)
	p.mu.Unlock()
	return nil
}

// Next returns the next proxy that is not benched, or nil when none is.
func (p *Pool) Next() *url.URL {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.cfg.Now()
	for range p.entries {
		e := p.entries[p.next]
		p.next = (p.next + 1) % len(p.entries)

		if !e.benched.IsZero() {
			if now.Before(e.benched) {
				continue
			}
			e.benched = time.Time{}
			e.failures = 0
		}
		return e.url
	}
	return nil
}

// Report records the outcome of a request made through u. A nil error
// counts as success and forgives one earlier failure.
func (p *Pool) Report(u *url.URL, err error) error {
	if u == nil {
		return fmt.Errorf("report: %w", ErrUnknownProxy)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	e := p.find(u)
	if e == nil {
		return fmt.Errorf("report %s: %w", u.Redacted(), ErrUnknownProxy)
	}
	if err == nil {
		e.successes++
		if e.failures > 0 {
			e.failures--
		}
		return nil
	}
	e.failures++
	if e.failures >= p.cfg.MaxFailures {
		e.benched = p.cfg.Now().Add(p.cfg.Cooldown)
	}
	return nil
}

func (p *Pool) find(u *url.URL) *entry {
	target := u.String()
	for _, e := range p.entries {
		if e.url.String() == target {
			return e
		}
	}
	return nil
}

// Selection records which proxy the transport picked for one request.
type Selection struct {
	mu  sync.Mutex
	url *url.URL
}

// URL returns the chosen proxy, nil when the request went direct.
func (s *Selection) URL() *url.URL {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.url
}

type selectionKey struct{}

// WithSelection returns a context whose requests report their proxy into s.
func WithSelection(ctx context.Context, s *Selection) context.Context {
	return context.WithValue(ctx, selectionKey{}, s)
}

// ProxyFunc plugs the pool into http.Transport.Proxy. When every proxy is
// benched the request goes direct.
func (p *Pool) ProxyFunc() func(*http.Request) (*url.URL, error) {
	return func(req *http.Request) (*url.URL, error) {
		u := p.Next()
		if s, ok := req.Context().Value(selectionKey{}).(*Selection); ok {
			s.mu.Lock()
			s.url = u
			s.mu.Unlock()
		}
		return u, nil
	}
}
