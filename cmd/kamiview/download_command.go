package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"kamiview/internal/api"
	"kamiview/internal/downloads"
	"kamiview/internal/session"
	"kamiview/internal/textutil"
)

type downloadOutput struct {
	Filename    string  `json:"filename"`
	Content     string  `json:"content"`
	ContentType string  `json:"contentType"`
	Status      string  `json:"status"`
	Percent     float64 `json:"percent"`
	Message     string  `json:"message,omitempty"`
	Attempts    int     `json:"attempts"`
	Elapsed     string  `json:"elapsed"`
}

func newDownloadCommand(ctx *commandContext) *cobra.Command {
	var filename string
	var title string
	var episode int
	var contentType string
	var retries int

	cmd := &cobra.Command{
		Use:   "download <content-url>",
		Short: "Download content through the backend and follow its progress",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if retries < 0 {
				return fmt.Errorf("--retry must be zero or positive")
			}
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			req := api.DownloadRequest{
				Content:     args[0],
				Filename:    resolveDownloadTarget(filename, args[0], title, episode, cfg.Paths.DownloadDir),
				ContentType: contentType,
			}
			if strings.TrimSpace(req.ContentType) == "" {
				req.ContentType = cfg.Downloads.ContentType
			}
			if dir := filepath.Dir(req.Filename); dir != "" {
				if err := os.MkdirAll(dir, 0o755); err != nil {
					return fmt.Errorf("create download directory: %w", err)
				}
			}

			opts := session.Options{Exclusive: true, WithHistory: true}
			return ctx.withSession(cmd, opts, func(runCtx context.Context, s *session.Session) error {
				signalCtx, cancel := signal.NotifyContext(runCtx, os.Interrupt, syscall.SIGTERM)
				defer cancel()

				out := cmd.OutOrStdout()
				colorize := shouldColorize(out)
				lastPercent := -1.0
				onUpdate := func(u downloads.Update) {
					if ctx.jsonOutput() {
						return
					}
					switch u.Status {
					case downloads.StatusDownloading:
						if u.Percent == lastPercent {
							return
						}
						lastPercent = u.Percent
						fmt.Fprintln(out, renderStatusLine(api.EventLabel(api.EventDownloadProgress), statusInfo, fmt.Sprintf("%.0f%%", u.Percent), colorize))
					case downloads.StatusFailed:
						fmt.Fprintln(out, renderStatusLine("Download", statusError, u.Message, colorize))
					}
				}

				result, runErr := s.Downloads.RunWithRetry(signalCtx, req, retries, onUpdate)
				s.RecordDownload(context.WithoutCancel(runCtx), result)

				if ctx.jsonOutput() {
					if err := writeJSON(cmd, toDownloadOutput(result)); err != nil {
						return err
					}
				} else if runErr == nil {
					fmt.Fprintln(out, renderStatusLine("Download", statusOK, "saved to "+result.Request.Filename, colorize))
				}
				if runErr != nil {
					return callError("download", runErr)
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&filename, "filename", "o", "", "Destination file name (relative names go to paths.download_dir)")
	cmd.Flags().StringVar(&title, "title", "", "Anime title used to name the file when --filename is not set")
	cmd.Flags().IntVar(&episode, "episode", 0, "Episode number appended to --title")
	cmd.Flags().StringVar(&contentType, "content-type", "", "Content type sent to the backend (default from config)")
	cmd.Flags().IntVar(&retries, "retry", 0, "Re-issue a failed download this many times")
	return cmd
}

// resolveDownloadTarget picks the file name sent to the backend. An explicit
// name wins, then title and episode, then the content URL. Relative names
// land in dir.
func resolveDownloadTarget(filename, content, title string, episode int, dir string) string {
	name := strings.TrimSpace(filename)
	switch {
	case name != "":
	case strings.TrimSpace(title) != "":
		name = textutil.EpisodeFileName(title, episode, "mp4")
	default:
		name = textutil.NameFromURL(content)
	}
	if name == "" {
		name = "download.mp4"
	}
	if filepath.IsAbs(name) || dir == "" {
		return name
	}
	return filepath.Join(dir, name)
}

func toDownloadOutput(result downloads.Result) downloadOutput {
	elapsed := time.Duration(0)
	if !result.Finished.IsZero() && !result.Started.IsZero() {
		elapsed = result.Finished.Sub(result.Started).Round(time.Millisecond)
	}
	return downloadOutput{
		Filename:    result.Request.Filename,
		Content:     result.Request.Content,
		ContentType: result.Request.ContentType,
		Status:      string(result.Status),
		Percent:     result.Percent,
		Message:     result.Message,
		Attempts:    result.Attempts,
		Elapsed:     elapsed.String(),
	}
}
