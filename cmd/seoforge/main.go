// Command seoforge serves the SEO analysis API and runs its jobs from the
// command line.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/FranksOps/seoforge/internal/config"
	"github.com/FranksOps/seoforge/internal/jobs"
	"github.com/FranksOps/seoforge/internal/report"
)

// app carries state shared by every subcommand.
type app struct {
	configPath string
	format     string
	logLevel   string

	cfg    *config.Config
	logger *slog.Logger
	out    report.Format
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:          "seoforge",
		Short:        "SEO audits, keyword research and competitor analysis",
		SilenceUsage: true,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			return a.load()
		},
	}

	root.PersistentFlags().StringVar(&a.configPath, "config", "", "config file (yaml, json or toml)")
	root.PersistentFlags().StringVarP(&a.format, "format", "o", "json", "output format: json, text, csv or html")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "override log.level")

	root.AddCommand(
		newServeCmd(a),
		newGenerateCmd(a),
		newLongTailCmd(a),
		newExtractCmd(a),
		newGapCmd(a),
		newDiscoverCmd(a),
		newAuditCmd(a),
		newJobsCmd(a),
	)
	return root
}

func (a *app) load() error {
	cfg, err := config.Load(a.configPath, nil)
	if err != nil {
		return err
	}
	if a.logLevel != "" {
		cfg.Log.Level = a.logLevel
	}
	out, err := report.ParseFormat(a.format)
	if err != nil {
		return err
	}

	a.cfg = cfg
	a.out = out
	a.logger = cfg.Log.NewLogger(os.Stderr)
	slog.SetDefault(a.logger)
	return nil
}

// run executes inv in the foreground, logging progress to stderr.
func (a *app) run(ctx context.Context, inv jobs.Invocation) (any, error) {
	start := time.Now()
	logger := a.logger.With("kind", inv.Kind)
	result, err := inv.Run(ctx, func(current int, status string) {
		logger.Info("progress", "current", current, "total", inv.Total, "status", status)
	})
	if err != nil {
		return nil, err
	}
	logger.Debug("finished", "elapsed", time.Since(start))
	return result, nil
}

func (a *app) print(v any) error {
	return report.Write(os.Stdout, a.out, v)
}
