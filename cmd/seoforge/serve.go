package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/FranksOps/seoforge/internal/api"
	"github.com/FranksOps/seoforge/internal/jobs"
	"github.com/FranksOps/seoforge/internal/metrics"
	"github.com/FranksOps/seoforge/pkg/ratelimit"
)

const drainTimeout = 30 * time.Second

func newServeCmd(a *app) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the job workers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if addr != "" {
				a.cfg.Server.Addr = addr
			}
			return a.serve(cmd.Context())
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "override server.addr")
	return cmd
}

func (a *app) serve(ctx context.Context) error {
	cfg, logger := a.cfg, a.logger

	store, err := openStore(ctx, cfg.Storage)
	if err != nil {
		return fmt.Errorf("open %s store: %w", cfg.Storage.Driver, err)
	}
	// drained is cleared when workers outlive the drain timeout; their
	// store and fetchers then stay open.
	drained := true
	defer func() {
		if drained {
			store.Close()
		}
	}()

	svc, err := buildServices(cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if drained {
			svc.close()
		}
	}()

	manager, err := jobs.NewManager(store, jobs.Config{
		Workers:   cfg.Workers.Count,
		QueueSize: cfg.Workers.QueueSize,
	}, logger.With("component", "jobs"))
	if err != nil {
		return err
	}
	manager.Start(ctx)

	var metricsSrv *metrics.Server
	if cfg.Metrics.Port > 0 {
		metricsSrv = metrics.Start(cfg.Metrics.Port, logger)
		logger.Info("metrics listening", "port", cfg.Metrics.Port)
	}

	var throttle *ratelimit.AttemptTracker
	if cfg.API.SubmissionsPerMinute > 0 {
		throttle = ratelimit.NewAttemptTracker(cfg.API.SubmissionsPerMinute, time.Minute, nil)
	}

	srv, err := api.New(api.Config{
		Runner:    manager,
		Builder:   svc.builder,
		Throttle:  throttle,
		AccessLog: true,
		Logger:    logger.With("component", "api"),
	})
	if err != nil {
		return err
	}

	serveErr := srv.Listen(ctx, cfg.Server.Addr)

	drainCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), drainTimeout)
	defer cancel()
	if err := manager.Stop(drainCtx); err != nil {
		drained = false
		logger.Warn("jobs still running at shutdown, store left open", "err", err, "ids", manager.Unfinished())
	}
	if err := metricsSrv.Stop(drainCtx); err != nil {
		logger.Warn("metrics shutdown", "err", err)
	}
	logger.Info("server exited")
	return serveErr
}
