package main

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/vamosnene/vamosnene/internal/app"
	"github.com/vamosnene/vamosnene/internal/config"
	"github.com/vamosnene/vamosnene/internal/storage"
)

func newSourcesCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sources",
		Short: "Manage news sources",
	}
	cmd.AddCommand(newSourcesListCmd(opts), newSourcesAddCmd(opts))
	return cmd
}

func newSourcesListCmd(opts *rootOptions) *cobra.Command {
	var all bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List news sources",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWithApp(cmd, opts, func(ctx context.Context, a *app.App) error {
				sources, err := a.Store.ListSources(ctx, !all)
				if err != nil {
					return err
				}

				_, err = fmt.Fprintln(cmd.OutOrStdout(), sourcesTable(sources))
				return err
			})
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "include disabled sources")
	return cmd
}

const neverFetched = "never"

func sourcesTable(sources []*storage.Source) *table.Table {
	rows := make([][]string, 0, len(sources))
	for _, s := range sources {
		fetched := neverFetched
		if !s.LastFetched.IsZero() {
			fetched = s.LastFetched.Local().Format(time.DateTime)
		}
		code := s.Code
		if !s.Active {
			code += " (off)"
		}
		rows = append(rows, []string{code, s.Name, s.Lang, fetched, s.FeedURL})
	}

	cell := lipgloss.NewStyle().Padding(0, 1)
	return table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(mutedStyle).
		Headers("CODE", "NAME", "LANG", "LAST FETCH", "FEED").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return headerStyle.Padding(0, 1)
			case col == 3 && row < len(rows) && rows[row][col] == neverFetched:
				return cell.Foreground(muted)
			default:
				return cell
			}
		})
}

func newSourcesAddCmd(opts *rootOptions) *cobra.Command {
	var sc config.SourceConfig

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add or update a news source",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWithApp(cmd, opts, func(ctx context.Context, a *app.App) error {
				src, err := a.Manager.AddSource(ctx, sc)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "source %s saved (%s)\n", src.Code, src.FeedURL)
				return nil
			})
		},
	}
	f := cmd.Flags()
	f.StringVar(&sc.Code, "code", "", "source slug, e.g. motorsport-latam")
	f.StringVar(&sc.Name, "name", "", "display name")
	f.StringVar(&sc.FeedURL, "feed", "", "feed URL")
	f.StringVar(&sc.SiteURL, "site", "", "site URL")
	f.StringVar(&sc.Lang, "lang", "es", "default language of the feed")
	f.BoolVar(&sc.Disabled, "disabled", false, "store the source without syncing it")
	_ = cmd.MarkFlagRequired("code")
	_ = cmd.MarkFlagRequired("feed")
	return cmd
}
