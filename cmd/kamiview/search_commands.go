package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"kamiview/internal/api"
	"kamiview/internal/session"
)

func newSearchCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "search <query>",
		Short: "Search the anime catalogue",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query := strings.Join(args, " ")
			return ctx.withSession(cmd, session.Options{}, func(runCtx context.Context, s *session.Session) error {
				results, err := s.Client.Search(runCtx, query)
				if err != nil {
					return callError("search", err)
				}
				if ctx.jsonOutput() {
					if results == nil {
						results = []api.MediaResult{}
					}
					return writeJSON(cmd, results)
				}
				out := cmd.OutOrStdout()
				if len(results) == 0 {
					fmt.Fprintf(out, "No results for %q\n", query)
					return nil
				}
				rows := make([][]string, 0, len(results))
				for i, r := range results {
					rows = append(rows, []string{
						strconv.Itoa(i + 1),
						r.Title,
						r.TitleOrig,
						yearLabel(r.Year),
						api.DisplayTitle(strings.ReplaceAll(r.MediaType, "-", " ")),
						fallback(r.ShikimoriID, "-"),
					})
				}
				fmt.Fprintln(out, renderTable(
					[]string{"#", "Title", "Original", "Year", "Type", "Shikimori ID"},
					rows,
					[]columnAlignment{alignRight, alignLeft, alignLeft, alignRight, alignLeft, alignRight},
				))
				return nil
			})
		},
	}
}

func newSelectCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "select <shikimori-id>",
		Short: "List translations and episodes for an anime",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withSession(cmd, session.Options{}, func(runCtx context.Context, s *session.Session) error {
				info, err := s.Client.SelectAnime(runCtx, args[0])
				if err != nil {
					return callError("load anime", err)
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, info)
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Episodes: %d\n", info.Episodes)
				if len(info.Translations) == 0 {
					fmt.Fprintln(out, "No translations available")
					return nil
				}
				rows := make([][]string, 0, len(info.Translations))
				for _, tr := range info.Translations {
					rows = append(rows, []string{tr.ID, tr.Title, strconv.Itoa(tr.Episodes)})
				}
				fmt.Fprintln(out, renderTable(
					[]string{"Translation ID", "Title", "Episodes"},
					rows,
					[]columnAlignment{alignRight, alignLeft, alignRight},
				))
				return nil
			})
		},
	}
}

func yearLabel(year int) string {
	if year <= 0 {
		return "-"
	}
	return strconv.Itoa(year)
}

func fallback(value, def string) string {
	if strings.TrimSpace(value) == "" {
		return def
	}
	return value
}
