package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/FranksOps/seoforge/internal/apperr"
	"github.com/FranksOps/seoforge/internal/config"
	"github.com/FranksOps/seoforge/internal/storage"
	"github.com/FranksOps/seoforge/internal/tasks"
)

func TestRootCmd_Subcommands(t *testing.T) {
	root := newRootCmd()
	for _, name := range []string{"serve", "generate", "longtail", "extract", "gap", "discover", "audit", "jobs"} {
		cmd, _, err := root.Find([]string{name})
		if err != nil || cmd.Name() != name {
			t.Errorf("subcommand %q not registered", name)
		}
	}
}

func TestOpenStore(t *testing.T) {
	ctx := context.Background()

	store, err := openStore(ctx, config.StorageConfig{Driver: "memory"})
	if err != nil {
		t.Fatalf("memory: %v", err)
	}
	if _, err := store.Get(ctx, "missing"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("expected not found, got %v", err)
	}
	store.Close()

	dsn := filepath.Join(t.TempDir(), "jobs.db")
	store, err = openStore(ctx, config.StorageConfig{Driver: "sqlite", DSN: dsn})
	if err != nil {
		t.Fatalf("sqlite: %v", err)
	}
	store.Close()

	if _, err := openStore(ctx, config.StorageConfig{Driver: "etcd"}); !errors.Is(err, apperr.ErrConfiguration) {
		t.Errorf("expected configuration error, got %v", err)
	}
}

func TestProxyPool(t *testing.T) {
	pool, err := proxyPool(config.FetchConfig{})
	if err != nil || pool != nil {
		t.Fatalf("no proxies configured: pool=%v err=%v", pool, err)
	}

	file := filepath.Join(t.TempDir(), "proxies.txt")
	if err := os.WriteFile(file, []byte("# office\n10.0.0.2:3128\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	pool, err = proxyPool(config.FetchConfig{Proxies: []string{"http://10.0.0.1:8080"}, ProxyFile: file})
	if err != nil {
		t.Fatalf("proxyPool: %v", err)
	}
	if pool.Len() != 2 {
		t.Errorf("Len = %d, want 2", pool.Len())
	}
}

func TestBuildServices_WithoutCredentials(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("GOOGLE_API_KEY", "")
	t.Setenv("PAGESPEED_API_KEY", "")

	cfg, err := config.Load("", nil)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	svc, err := buildServices(cfg, slog.Default())
	if err != nil {
		t.Fatalf("buildServices: %v", err)
	}
	defer svc.close()

	b := svc.builder
	if b.Keywords != nil || b.Audits != nil {
		t.Error("services needing credentials should be disabled")
	}
	if b.Competitors == nil || b.Competitors.CanAnalyzeGap() {
		t.Error("competitor extraction should work without the model, gap analysis should not")
	}
	if _, err := b.Audit(tasks.AuditRequest{URL: "example.com"}); !errors.Is(err, apperr.ErrConfiguration) {
		t.Errorf("expected configuration error, got %v", err)
	}
}
