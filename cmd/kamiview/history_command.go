package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"kamiview/internal/history"
)

type playbackHistoryOutput struct {
	ID               int64   `json:"id"`
	ShikimoriID      string  `json:"shikimoriId"`
	Title            string  `json:"title,omitempty"`
	Episode          int     `json:"episode"`
	TranslationID    string  `json:"translationId"`
	TranslationTitle string  `json:"translationTitle,omitempty"`
	Position         float64 `json:"position"`
	Duration         float64 `json:"duration"`
	StartedAt        string  `json:"startedAt"`
	UpdatedAt        string  `json:"updatedAt"`
}

type downloadHistoryOutput struct {
	ID         int64   `json:"id"`
	Filename   string  `json:"filename"`
	Content    string  `json:"content"`
	Status     string  `json:"status"`
	Percent    float64 `json:"percent"`
	Message    string  `json:"message,omitempty"`
	Attempts   int     `json:"attempts"`
	StartedAt  string  `json:"startedAt"`
	FinishedAt string  `json:"finishedAt,omitempty"`
}

func newHistoryCommand(ctx *commandContext) *cobra.Command {
	var showDownloads bool
	var limit int
	var clearAll bool

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recently played episodes or downloads",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			store, err := history.Open(cfg)
			if err != nil {
				return fmt.Errorf("open history: %w", err)
			}
			defer store.Close()

			out := cmd.OutOrStdout()
			if clearAll {
				if err := store.Clear(cmd.Context()); err != nil {
					return err
				}
				fmt.Fprintln(out, "History cleared")
				return nil
			}

			if showDownloads {
				entries, err := store.ListDownloads(cmd.Context(), limit)
				if err != nil {
					return err
				}
				if ctx.jsonOutput() {
					rows := make([]downloadHistoryOutput, 0, len(entries))
					for _, d := range entries {
						rows = append(rows, downloadHistoryOutput{
							ID:         d.ID,
							Filename:   d.Filename,
							Content:    d.Content,
							Status:     d.Status,
							Percent:    d.Percent,
							Message:    d.Message,
							Attempts:   d.Attempts,
							StartedAt:  formatHistoryTime(d.StartedAt, time.RFC3339),
							FinishedAt: formatHistoryTime(d.FinishedAt, time.RFC3339),
						})
					}
					return writeJSON(cmd, rows)
				}
				if len(entries) == 0 {
					fmt.Fprintln(out, "No downloads recorded")
					return nil
				}
				rows := make([][]string, 0, len(entries))
				for _, d := range entries {
					rows = append(rows, []string{
						strconv.FormatInt(d.ID, 10),
						d.Filename,
						d.Status,
						fmt.Sprintf("%.0f%%", d.Percent),
						strconv.Itoa(d.Attempts),
						formatHistoryTime(d.StartedAt, "2006-01-02 15:04"),
					})
				}
				fmt.Fprintln(out, renderTable(
					[]string{"ID", "File", "Status", "Progress", "Attempts", "Started"},
					rows,
					[]columnAlignment{alignRight, alignLeft, alignLeft, alignRight, alignRight, alignLeft},
				))
				return nil
			}

			entries, err := store.ListPlaybacks(cmd.Context(), limit)
			if err != nil {
				return err
			}
			if ctx.jsonOutput() {
				rows := make([]playbackHistoryOutput, 0, len(entries))
				for _, p := range entries {
					rows = append(rows, playbackHistoryOutput{
						ID:               p.ID,
						ShikimoriID:      p.ShikimoriID,
						Title:            p.Title,
						Episode:          p.Episode,
						TranslationID:    p.TranslationID,
						TranslationTitle: p.TranslationTitle,
						Position:         p.Position,
						Duration:         p.Duration,
						StartedAt:        formatHistoryTime(p.StartedAt, time.RFC3339),
						UpdatedAt:        formatHistoryTime(p.UpdatedAt, time.RFC3339),
					})
				}
				return writeJSON(cmd, rows)
			}
			if len(entries) == 0 {
				fmt.Fprintln(out, "No playback recorded")
				return nil
			}
			rows := make([][]string, 0, len(entries))
			for _, p := range entries {
				rows = append(rows, []string{
					strconv.FormatInt(p.ID, 10),
					fallback(p.Title, p.ShikimoriID),
					strconv.Itoa(p.Episode),
					fallback(p.TranslationTitle, p.TranslationID),
					fmt.Sprintf("%s / %s", formatClock(p.Position), formatClock(p.Duration)),
					formatHistoryTime(p.StartedAt, "2006-01-02 15:04"),
				})
			}
			fmt.Fprintln(out, renderTable(
				[]string{"ID", "Anime", "Episode", "Translation", "Position", "Started"},
				rows,
				[]columnAlignment{alignRight, alignLeft, alignRight, alignLeft, alignLeft, alignLeft},
			))
			return nil
		},
	}

	cmd.Flags().BoolVar(&showDownloads, "downloads", false, "List downloads instead of playback")
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum number of entries to show")
	cmd.Flags().BoolVar(&clearAll, "clear", false, "Delete all history entries")
	return cmd
}

func formatHistoryTime(t time.Time, layout string) string {
	if t.IsZero() {
		return ""
	}
	return t.Local().Format(layout)
}
