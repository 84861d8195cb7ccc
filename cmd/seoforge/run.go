package main

import (
	"github.com/spf13/cobra"

	"github.com/FranksOps/seoforge/internal/competitor"
	"github.com/FranksOps/seoforge/internal/jobs"
	"github.com/FranksOps/seoforge/internal/pipeline"
	"github.com/FranksOps/seoforge/internal/tasks"
)

// oneShot builds services, runs the invocation from build in the foreground
// and prints its result.
func (a *app) oneShot(cmd *cobra.Command, build func(*tasks.Builder) (jobs.Invocation, error)) error {
	svc, err := buildServices(a.cfg, a.logger)
	if err != nil {
		return err
	}
	defer svc.close()

	inv, err := build(svc.builder)
	if err != nil {
		return err
	}
	result, err := a.run(cmd.Context(), inv)
	if err != nil {
		return err
	}
	return a.print(result)
}

func newGenerateCmd(a *app) *cobra.Command {
	var req pipeline.Request
	cmd := &cobra.Command{
		Use:   "generate <seed>",
		Short: "Generate, score and cluster keywords for a seed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req.Seed = args[0]
			return a.oneShot(cmd, func(b *tasks.Builder) (jobs.Invocation, error) {
				return b.KeywordGeneration(req)
			})
		},
	}
	cmd.Flags().StringVar(&req.Lang, "lang", "en", "language code")
	cmd.Flags().StringVar(&req.Country, "country", "us", "country code")
	cmd.Flags().IntVar(&req.TopN, "top-n", 0, "number of keywords to keep (default 20)")
	return cmd
}

func newLongTailCmd(a *app) *cobra.Command {
	var req tasks.LongTailRequest
	cmd := &cobra.Command{
		Use:   "longtail <seed>",
		Short: "Expand a seed through autocomplete suggestions",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req.Seed = args[0]
			svc, err := buildServices(a.cfg, a.logger)
			if err != nil {
				return err
			}
			defer svc.close()

			inv, err := svc.builder.LongTail(req)
			if err != nil {
				return err
			}
			result, err := a.run(cmd.Context(), inv)
			if err != nil {
				return err
			}
			return a.print(result.(tasks.LongTailResult).Keywords)
		},
	}
	cmd.Flags().StringVar(&req.Lang, "lang", "en", "language code")
	cmd.Flags().StringVar(&req.Country, "country", "us", "country code")
	return cmd
}

func newExtractCmd(a *app) *cobra.Command {
	var req tasks.CompetitorKeywordsRequest
	cmd := &cobra.Command{
		Use:   "extract <url>...",
		Short: "Extract keywords from competitor pages",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req.URLs = args
			return a.oneShot(cmd, func(b *tasks.Builder) (jobs.Invocation, error) {
				return b.CompetitorKeywords(req)
			})
		},
	}
	cmd.Flags().IntVar(&req.MaxKeywords, "max", 20, "keywords per page")
	return cmd
}

func newGapCmd(a *app) *cobra.Command {
	var (
		req      competitor.GapRequest
		maxPerPg int
	)
	cmd := &cobra.Command{
		Use:   "gap",
		Short: "Find topics competitors cover that the user's site does not",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc, err := buildServices(a.cfg, a.logger)
			if err != nil {
				return err
			}
			defer svc.close()

			if len(req.CompetitorURLs) > 0 && svc.builder.Competitors != nil {
				urls := make([]string, 0, len(req.CompetitorURLs))
				for _, raw := range req.CompetitorURLs {
					u, err := tasks.ValidateURL(raw)
					if err != nil {
						return err
					}
					urls = append(urls, u)
				}
				req.CompetitorURLs = urls
				req.CompetitorKeywordsByURL = svc.builder.Competitors.ExtractAll(cmd.Context(), urls, maxPerPg, nil)
			}

			inv, err := svc.builder.ContentGap(req)
			if err != nil {
				return err
			}
			result, err := a.run(cmd.Context(), inv)
			if err != nil {
				return err
			}
			return a.print(result)
		},
	}
	cmd.Flags().StringSliceVar(&req.UserKeywords, "keywords", nil, "the user's keywords")
	cmd.Flags().StringVar(&req.UserURL, "user-url", "", "the user's page")
	cmd.Flags().StringSliceVar(&req.CompetitorURLs, "competitor", nil, "competitor page (repeatable)")
	cmd.Flags().IntVar(&maxPerPg, "max", 20, "keywords extracted per competitor page")
	return cmd
}

func newDiscoverCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "discover <keyword>...",
		Short: "Find competitor sites ranking for keywords",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := buildServices(a.cfg, a.logger)
			if err != nil {
				return err
			}
			defer svc.close()

			links, err := svc.builder.Competitors.Discover(cmd.Context(), args)
			if err != nil {
				return err
			}
			return a.print(links)
		},
	}
}

func newAuditCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "audit <url>",
		Short: "Run a PageSpeed audit (use -o html for a report page)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.oneShot(cmd, func(b *tasks.Builder) (jobs.Invocation, error) {
				return b.Audit(tasks.AuditRequest{URL: args[0]})
			})
		},
	}
}
