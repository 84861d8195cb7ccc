package proxy

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestPool_RoundRobin(t *testing.T) {
	pool := NewPool(Config{})
	if err := pool.Add("127.0.0.1:8080", "http://127.0.0.1:8081", "socks5://127.0.0.1:9050"); err != nil {
		t.Fatalf("unexpected error adding proxies: %v", err)
	}

	want := []string{"http://127.0.0.1:8080", "http://127.0.0.1:8081", "socks5://127.0.0.1:9050", "http://127.0.0.1:8080"}
	for i, w := range want {
		if u := pool.Next(); u == nil || u.String() != w {
			t.Errorf("call %d: expected %s, got %v", i, w, u)
		}
	}
}

func TestPool_BenchAndRecover(t *testing.T) {
	now := time.Unix(1000, 0)
	pool := NewPool(Config{MaxFailures: 2, Cooldown: time.Minute, Now: func() time.Time { return now }})
	if err := pool.Add("http://a", "http://b"); err != nil {
		t.Fatal(err)
	}

	a := pool.Next()
	boom := errors.New("connection reset")
	_ = pool.Report(a, boom)
	_ = pool.Report(a, boom)

	for i := range 2 {
		if u := pool.Next(); u.String() != "http://b" {
			t.Fatalf("call %d: expected benched proxy to be skipped, got %v", i, u)
		}
	}

	now = now.Add(time.Minute)
	if u := pool.Next(); u.String() != "http://a" {
		t.Errorf("expected http://a back after cooldown, got %v", u)
	}
}

func TestPool_SuccessForgivesFailure(t *testing.T) {
	pool := NewPool(Config{MaxFailures: 2, Cooldown: time.Hour})
	_ = pool.Add("http://a")
	a := pool.Next()

	_ = pool.Report(a, errors.New("timeout"))
	_ = pool.Report(a, nil)
	_ = pool.Report(a, errors.New("timeout"))

	if u := pool.Next(); u == nil {
		t.Error("one failure after a success should not bench the proxy")
	}
}

func TestPool_AllBenched(t *testing.T) {
	pool := NewPool(Config{MaxFailures: 1, Cooldown: time.Hour})
	_ = pool.Add("http://a")
	_ = pool.Report(pool.Next(), errors.New("refused"))

	if u := pool.Next(); u != nil {
		t.Errorf("expected nil when every proxy is benched, got %v", u)
	}
}

func TestPool_LoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "proxies.txt")
	content := "\n# office egress\nhttp://proxy1.com\nproxy2.com:80\n\nsocks5://proxy3.com:1080\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write proxy file: %v", err)
	}

	pool := NewPool(Config{})
	if err := pool.LoadFile(path); err != nil {
		t.Fatalf("failed to load file: %v", err)
	}
	if pool.Len() != 3 {
		t.Fatalf("expected 3 proxies, got %d", pool.Len())
	}
	for _, want := range []string{"http://proxy1.com", "http://proxy2.com:80", "socks5://proxy3.com:1080"} {
		if u := pool.Next(); u.String() != want {
			t.Errorf("expected %s, got %s", want, u)
		}
	}

	if err := pool.LoadFile(filepath.Join(t.TempDir(), "missing.txt")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestPool_ReportUnknown(t *testing.T) {
	pool := NewPool(Config{})
	_ = pool.Add("http://a")

	unknown, _ := url.Parse("http://unknown")
	if err := pool.Report(unknown, nil); !errors.Is(err, ErrUnknownProxy) {
		t.Errorf("expected ErrUnknownProxy, got %v", err)
	}
	if err := pool.Report(nil, nil); !errors.Is(err, ErrUnknownProxy) {
		t.Errorf("expected ErrUnknownProxy for nil, got %v", err)
	}
}

func TestPool_ProxyFuncRecordsSelection(t *testing.T) {
	pool := NewPool(Config{})
	_ = pool.Add("http://a", "http://b")

	sel := &Selection{}
	req, _ := http.NewRequestWithContext(WithSelection(context.Background(), sel), http.MethodGet, "https://example.com", nil)

	u, err := pool.ProxyFunc()(req)
	if err != nil || u.String() != "http://a" {
		t.Fatalf("ProxyFunc = %v, %v", u, err)
	}
	if sel.URL() != u {
		t.Errorf("selection = %v, want %v", sel.URL(), u)
	}

	if u, _ := NewPool(Config{}).ProxyFunc()(req); u != nil {
		t.Errorf("empty pool should go direct, got %v", u)
	}
}
