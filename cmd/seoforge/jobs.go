package main

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/FranksOps/seoforge/internal/storage"
)

func newJobsCmd(a *app) *cobra.Command {
	var filter storage.Filter
	var state string
	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "List stored jobs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := openStore(cmd.Context(), a.cfg.Storage)
			if err != nil {
				return err
			}
			defer store.Close()

			filter.State = storage.State(strings.ToUpper(state))
			list, err := store.Query(cmd.Context(), filter)
			if err != nil {
				return err
			}
			return a.print(list)
		},
	}
	cmd.Flags().StringVar(&filter.Kind, "kind", "", "only jobs of this kind")
	cmd.Flags().StringVar(&state, "state", "", "only jobs in this state (PENDING, PROGRESS, SUCCESS, FAILURE)")
	cmd.Flags().IntVar(&filter.Limit, "limit", 50, "maximum jobs to list")
	return cmd
}
