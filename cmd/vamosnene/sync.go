package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/vamosnene/vamosnene/internal/app"
)

func newSyncCmd(opts *rootOptions) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:       "sync [news|schedule|weather|all]",
		Short:     "Run sync jobs once",
		Args:      cobra.MatchAll(cobra.MaximumNArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{app.JobNews, app.JobSchedule, app.JobWeather, app.JobAll},
		RunE: func(cmd *cobra.Command, args []string) error {
			job := app.JobAll
			if len(args) == 1 {
				job = args[0]
			}
			return runWithApp(cmd, opts, func(ctx context.Context, a *app.App) error {
				a.Manager.SetForceRefresh(force)
				before, err := a.Store.CountArticles(ctx)
				if err != nil {
					return err
				}
				if err := a.RunSync(ctx, job); err != nil {
					return err
				}
				after, err := a.Store.CountArticles(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s sync done: %d new articles, %d total\n", job, after-before, after)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "ignore ETag/Last-Modified and refetch every feed")
	return cmd
}
