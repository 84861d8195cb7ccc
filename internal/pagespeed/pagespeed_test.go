package pagespeed

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/FranksOps/seoforge/internal/apperr"
)

func TestNew_MissingKey(t *testing.T) {
	if _, err := New(Config{}, nil); !errors.Is(err, apperr.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}

func TestAnalyze(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("url") != "https://example.com" || q.Get("strategy") != "mobile" || q.Has("key") {
			t.Errorf("unexpected query %v", q)
		}
		if r.Header.Get("X-Goog-Api-Key") != "k" {
			t.Errorf("api key header not sent")
		}
		cats := q["category"]
		if len(cats) != 2 || cats[0] != "PERFORMANCE" || cats[1] != "BEST_PRACTICES" {
			t.Errorf("unexpected categories %v", cats)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"lighthouseResult":{"categories":{"performance":{"score":0.42}}}}`))
	}))
	defer ts.Close()

	c, err := New(Config{APIKey: "k", Endpoint: ts.URL}, nil)
	if err != nil {
		t.Fatal(err)
	}

	report, err := c.Analyze(context.Background(), "https://example.com", Mobile, []string{"performance", "best-practices"})
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	cats, ok := report["categories"].(map[string]any)
	if !ok || cats["performance"] == nil {
		t.Errorf("unexpected report %v", report)
	}
}

func TestAnalyze_MissingReport(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"id":"x"}`))
	}))
	defer ts.Close()

	c, _ := New(Config{APIKey: "k", Endpoint: ts.URL}, nil)
	if _, err := c.Analyze(context.Background(), "https://example.com", Desktop, nil); !errors.Is(err, ErrNoReport) {
		t.Fatalf("expected ErrNoReport, got %v", err)
	}
}

func TestAnalyze_HTTPError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer ts.Close()

	c, _ := New(Config{APIKey: "k", Endpoint: ts.URL}, nil)
	if _, err := c.Analyze(context.Background(), "https://example.com", Desktop, nil); !errors.Is(err, apperr.ErrUnavailable) {
		t.Fatalf("expected unavailable error, got %v", err)
	}
}

func TestAnalyze_UnreachableKeepsKeyOutOfError(t *testing.T) {
	c, err := New(Config{APIKey: "SECRET-KEY-123", Endpoint: "http://127.0.0.1:1/runPagespeed"}, nil)
	if err != nil {
		t.Fatal(err)
	}
	_, err = c.Analyze(context.Background(), "https://example.com", Mobile, nil)
	if !errors.Is(err, apperr.ErrUnavailable) {
		t.Fatalf("expected unavailable, got %v", err)
	}
	if strings.Contains(err.Error(), "SECRET-KEY-123") {
		t.Errorf("api key in error: %v", err)
	}
}
