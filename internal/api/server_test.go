package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/fiber/v3"

	"github.com/FranksOps/seoforge/internal/autocomplete"
	"github.com/FranksOps/seoforge/internal/competitor"
	"github.com/FranksOps/seoforge/internal/jobs"
	"github.com/FranksOps/seoforge/internal/scraper"
	"github.com/FranksOps/seoforge/internal/serp"
	"github.com/FranksOps/seoforge/internal/storage"
	"github.com/FranksOps/seoforge/internal/storage/memory"
	"github.com/FranksOps/seoforge/internal/tasks"
	"github.com/FranksOps/seoforge/pkg/ratelimit"
)

type fakeRunner struct {
	mu        sync.Mutex
	submitted []jobs.Invocation
	jobs      map[string]*storage.Job
	err       error
}

func (f *fakeRunner) Submit(_ context.Context, inv jobs.Invocation) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	f.submitted = append(f.submitted, inv)
	return fmt.Sprintf("job-%d", len(f.submitted)), nil
}

func (f *fakeRunner) Poll(_ context.Context, id string) (*storage.Job, error) {
	if j, ok := f.jobs[id]; ok {
		return j, nil
	}
	return nil, fmt.Errorf("poll %s: %w", id, storage.ErrNotFound)
}

func (f *fakeRunner) List(_ context.Context, filter storage.Filter) ([]*storage.Job, error) {
	var out []*storage.Job
	for _, j := range f.jobs {
		if filter.Match(j) {
			out = append(out, j)
		}
	}
	return out, nil
}

type suggestions map[string][]string

func (s suggestions) Name() string { return "fake" }

func (s suggestions) Suggest(_ context.Context, q string) ([]string, error) { return s[q], nil }

type staticFetcher map[string]string

func (f staticFetcher) Fetch(_ context.Context, u string) (*scraper.Page, error) {
	body, ok := f[u]
	if !ok {
		return nil, fmt.Errorf("%s: connection refused", u)
	}
	return &scraper.Page{URL: u, StatusCode: 200, Body: []byte(body)}, nil
}

type staticSearch map[string][]serp.Result

func (s staticSearch) Search(_ context.Context, q string, _ int) ([]serp.Result, error) {
	if r, ok := s[q]; ok {
		return r, nil
	}
	return nil, fmt.Errorf("search %q blocked", q)
}

func testBuilder() *tasks.Builder {
	fetcher := staticFetcher{"https://rival.example": `<html><head><title>Invoice Software</title></head>
<body><h1>Invoice templates</h1><p>Free invoice templates and invoice reminders.</p></body></html>`}
	search := staticSearch{"invoicing": {{URL: "https://rival.example"}, {URL: "https://other.example"}}}
	return &tasks.Builder{
		Competitors: competitor.New(fetcher, nil, search, competitor.Config{}, nil),
		Suggest: func(string, string) autocomplete.Source {
			return suggestions{"invoice": {"invoice template", "invoice app"}}
		},
	}
}

func newTestServer(t *testing.T, cfg Config) *Server {
	t.Helper()
	if cfg.Builder == nil {
		cfg.Builder = testBuilder()
	}
	s, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return s
}

func do(t *testing.T, app *fiber.App, method, path, body string, header ...string) (int, map[string]any, http.Header) {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req, _ := http.NewRequest(method, path, r)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(resp.Body)
	var out map[string]any
	if len(raw) > 0 && raw[0] == '{' {
		if err := json.Unmarshal(raw, &out); err != nil {
			t.Fatalf("decode %s: %v", raw, err)
		}
	}
	return resp.StatusCode, out, resp.Header
}

func TestNew_RequiresRunner(t *testing.T) {
	if _, err := New(Config{Builder: &tasks.Builder{}}); err == nil {
		t.Error("expected error without a runner")
	}
}

func TestHealthAndCatalogs(t *testing.T) {
	s := newTestServer(t, Config{Runner: &fakeRunner{}})

	if code, body, _ := do(t, s.App, http.MethodGet, "/healthz", ""); code != 200 || body["status"] != "ok" {
		t.Errorf("healthz = %d %v", code, body)
	}

	req, _ := http.NewRequest(http.MethodGet, "/api/keywords/locations", nil)
	resp, err := s.App.Test(req)
	if err != nil {
		t.Fatal(err)
	}
	var locations []CatalogEntry
	if err := json.NewDecoder(resp.Body).Decode(&locations); err != nil {
		t.Fatal(err)
	}
	if len(locations) != len(Locations) || locations[0].Name != "United States" {
		t.Errorf("unexpected locations %v", locations)
	}
}

func TestSubmit_Accepted(t *testing.T) {
	runner := &fakeRunner{}
	s := newTestServer(t, Config{Runner: runner})

	code, body, _ := do(t, s.App, http.MethodPost, "/api/keywords/long-tail", `{"seed": "invoice"}`)
	if code != fiber.StatusAccepted || body["task_id"] != "job-1" || body["status"] != "PENDING" {
		t.Fatalf("long-tail submit = %d %v", code, body)
	}
	code, _, _ = do(t, s.App, http.MethodPost, "/api/competitors/keywords", `{"urls": ["https://rival.example"]}`)
	if code != fiber.StatusAccepted {
		t.Fatalf("competitor keywords submit = %d", code)
	}

	if len(runner.submitted) != 2 || runner.submitted[0].Kind != tasks.KindLongTail || runner.submitted[1].Kind != tasks.KindCompetitorKeywords {
		t.Errorf("unexpected submissions %+v", runner.submitted)
	}
}

func TestSubmit_Errors(t *testing.T) {
	s := newTestServer(t, Config{Runner: &fakeRunner{}})

	tests := []struct {
		path, body string
		code       int
		category   string
	}{
		{"/api/keywords/generate", `{"seed": "invoice"}`, fiber.StatusServiceUnavailable, "configuration"},
		{"/api/audits", `{"url": "https://example.com"}`, fiber.StatusServiceUnavailable, "configuration"},
		{"/api/competitors/content-gap", `{"user_keywords": ["a"], "competitor_urls": ["https://b"]}`, fiber.StatusServiceUnavailable, "configuration"},
		{"/api/keywords/long-tail", `{"seed": ""}`, fiber.StatusBadRequest, "validation"},
		{"/api/keywords/long-tail", `{"seed": `, fiber.StatusBadRequest, "validation"},
		{"/api/keywords/long-tail", ``, fiber.StatusBadRequest, "validation"},
		{"/api/competitors/keywords", `{"urls": []}`, fiber.StatusBadRequest, "validation"},
	}
	for _, tt := range tests {
		code, body, _ := do(t, s.App, http.MethodPost, tt.path, tt.body)
		if code != tt.code || body["category"] != tt.category || body["status"] != "error" {
			t.Errorf("POST %s %q = %d %v, want %d %s", tt.path, tt.body, code, body, tt.code, tt.category)
		}
	}
}

func TestSubmit_QueueFull(t *testing.T) {
	s := newTestServer(t, Config{Runner: &fakeRunner{err: jobs.ErrQueueFull}})
	code, body, _ := do(t, s.App, http.MethodPost, "/api/keywords/long-tail", `{"seed": "invoice"}`)
	if code != fiber.StatusServiceUnavailable || body["category"] != "unavailable" {
		t.Errorf("queue full = %d %v", code, body)
	}
}

func TestSubmit_Throttled(t *testing.T) {
	now := time.Unix(0, 0)
	s := newTestServer(t, Config{
		Runner:   &fakeRunner{},
		Throttle: ratelimit.NewAttemptTracker(1, time.Minute, func() time.Time { return now }),
	})

	if code, _, _ := do(t, s.App, http.MethodPost, "/api/keywords/long-tail", `{"seed": "a"}`, PrincipalHeader, "alice"); code != fiber.StatusAccepted {
		t.Fatalf("first submission = %d", code)
	}
	code, body, header := do(t, s.App, http.MethodPost, "/api/keywords/long-tail", `{"seed": "b"}`, PrincipalHeader, "alice")
	if code != fiber.StatusTooManyRequests || body["category"] != "rate_limited" {
		t.Errorf("second submission = %d %v", code, body)
	}
	if header.Get("Retry-After") != "60" {
		t.Errorf("Retry-After = %q", header.Get("Retry-After"))
	}
	if code, _, _ := do(t, s.App, http.MethodPost, "/api/keywords/long-tail", `{"seed": "c"}`, PrincipalHeader, "bob"); code != fiber.StatusAccepted {
		t.Errorf("other principal = %d", code)
	}
	if code, _, _ := do(t, s.App, http.MethodGet, "/api/jobs", "", PrincipalHeader, "alice"); code != 200 {
		t.Errorf("polling must not be throttled, got %d", code)
	}
}

func TestPollAndList(t *testing.T) {
	runner := &fakeRunner{jobs: map[string]*storage.Job{
		"done": {ID: "done", Kind: tasks.KindLongTail, State: storage.StateSuccess,
			Progress: storage.Progress{Current: 1, Total: 1, Status: "Complete"}, Result: json.RawMessage(`{"keywords":["a"]}`)},
		"broken": {ID: "broken", Kind: tasks.KindAudit, State: storage.StateFailure,
			Progress: storage.Progress{Current: 20, Total: 100}, Error: "mobile audit: 500", Result: json.RawMessage(`{}`)},
	}}
	s := newTestServer(t, Config{Runner: runner})

	code, body, _ := do(t, s.App, http.MethodGet, "/api/jobs/done", "")
	if code != 200 || body["state"] != "SUCCESS" || body["total"] != float64(1) {
		t.Fatalf("poll done = %d %v", code, body)
	}
	if res, ok := body["result"].(map[string]any); !ok || len(res["keywords"].([]any)) != 1 {
		t.Errorf("unexpected result %v", body["result"])
	}

	_, body, _ = do(t, s.App, http.MethodGet, "/api/jobs/broken", "")
	if body["error"] != "mobile audit: 500" || body["result"] != nil || body["current"] != float64(20) {
		t.Errorf("poll broken = %v", body)
	}

	code, body, _ = do(t, s.App, http.MethodGet, "/api/jobs/missing", "")
	if code != fiber.StatusNotFound || body["category"] != "not_found" {
		t.Errorf("poll missing = %d %v", code, body)
	}

	_, body, _ = do(t, s.App, http.MethodGet, "/api/jobs?state=failure", "")
	if list := body["jobs"].([]any); len(list) != 1 {
		t.Errorf("filtered list = %v", list)
	}
	if code, _, _ := do(t, s.App, http.MethodGet, "/api/jobs?limit=abc", ""); code != fiber.StatusBadRequest {
		t.Errorf("bad limit = %d", code)
	}
}

func TestCompetitorLookups(t *testing.T) {
	s := newTestServer(t, Config{Runner: &fakeRunner{}})

	code, body, _ := do(t, s.App, http.MethodPost, "/api/competitors/discover", `{"keywords": ["invoicing"]}`)
	if code != 200 {
		t.Fatalf("discover = %d %v", code, body)
	}
	if links := body["competitors"].([]any); len(links) != 2 {
		t.Errorf("links = %v", links)
	}

	code, body, _ = do(t, s.App, http.MethodPost, "/api/competitors/discover", `{"keywords": ["blocked"]}`)
	if code != fiber.StatusServiceUnavailable || body["category"] != "unavailable" {
		t.Errorf("discover blocked = %d %v", code, body)
	}

	code, body, _ = do(t, s.App, http.MethodPost, "/api/competitors/extract-keywords", `{"url": "https://rival.example", "max_keywords": 3}`)
	if code != 200 {
		t.Fatalf("extract = %d %v", code, body)
	}
	if kws := body["keywords"].([]any); len(kws) == 0 || len(kws) > 3 {
		t.Errorf("keywords = %v", kws)
	}

	code, body, _ = do(t, s.App, http.MethodPost, "/api/competitors/extract-keywords", `{"url": "https://down.example"}`)
	if code != 200 || len(body["keywords"].([]any)) != 0 {
		t.Errorf("unreachable extract = %d %v", code, body)
	}
}

func TestEndToEnd_LongTailJob(t *testing.T) {
	m, err := jobs.NewManager(memory.New(), jobs.Config{Workers: 1}, nil)
	if err != nil {
		t.Fatal(err)
	}
	m.Start(context.Background())
	defer m.Stop(context.Background())

	s := newTestServer(t, Config{Runner: m})
	_, body, _ := do(t, s.App, http.MethodPost, "/api/keywords/long-tail", `{"seed": "invoice"}`)
	id, _ := body["task_id"].(string)
	if id == "" {
		t.Fatalf("no task id in %v", body)
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		_, body, _ = do(t, s.App, http.MethodGet, "/api/jobs/"+id, "")
		if body["state"] == "SUCCESS" || body["state"] == "FAILURE" || time.Now().After(deadline) {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if body["state"] != "SUCCESS" {
		t.Fatalf("job did not succeed: %v", body)
	}
	kws := body["result"].(map[string]any)["keywords"].([]any)
	if len(kws) != 2 || kws[0] != "invoice app" {
		t.Errorf("keywords = %v", kws)
	}
}
