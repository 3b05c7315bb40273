package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"kamiview/internal/api"
	"kamiview/internal/playback"
	"kamiview/internal/session"
)

func newPlaybackCommands(ctx *commandContext) []*cobra.Command {
	return []*cobra.Command{
		newPlayCommand(ctx),
		newPlaybackStatusCommand(ctx),
		newToggleCommand(ctx),
		newStopCommand(ctx),
	}
}

func newPlayCommand(ctx *commandContext) *cobra.Command {
	var follow bool
	var title string
	var translationTitle string

	cmd := &cobra.Command{
		Use:   "play <shikimori-id> <episode> <translation-id>",
		Short: "Start playing an episode",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			episode, err := strconv.Atoi(strings.TrimSpace(args[1]))
			if err != nil || episode < 1 {
				return fmt.Errorf("invalid episode %q", args[1])
			}
			req := api.PlayRequest{ShikimoriID: args[0], Episode: episode, TranslationID: args[2]}
			opts := session.Options{WithHistory: true, Exclusive: follow}

			return ctx.withSession(cmd, opts, func(runCtx context.Context, s *session.Session) error {
				data, err := s.Client.PlayEpisode(runCtx, req)
				if err != nil {
					return callError("play episode", err)
				}
				historyID := s.RecordPlayback(runCtx, req, title, translationTitle)

				out := cmd.OutOrStdout()
				if !follow {
					if ctx.jsonOutput() {
						return writeJSON(cmd, playResult{Request: req, Response: data})
					}
					fmt.Fprintf(out, "Playing %s episode %d (translation %s)\n", req.ShikimoriID, req.Episode, req.TranslationID)
					if msg := responseMessage(data); msg != "" {
						fmt.Fprintln(out, msg)
					}
					return nil
				}

				fmt.Fprintf(out, "Playing %s episode %d; following playback (Ctrl+C to detach)\n", req.ShikimoriID, req.Episode)
				return followPlayback(runCtx, cmd, ctx, s, historyID)
			})
		},
	}

	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "Keep polling playback state until the episode ends")
	cmd.Flags().StringVar(&title, "title", "", "Anime title stored in history")
	cmd.Flags().StringVar(&translationTitle, "translation-title", "", "Translation name stored in history")
	return cmd
}

type playResult struct {
	Request  api.PlayRequest `json:"request"`
	Response json.RawMessage `json:"response,omitempty"`
}

func responseMessage(data json.RawMessage) string {
	var body struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(data, &body); err != nil {
		return ""
	}
	return body.Message
}

func followPlayback(parent context.Context, cmd *cobra.Command, ctx *commandContext, s *session.Session, historyID int64) error {
	signalCtx, cancel := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	out := cmd.OutOrStdout()
	colorize := shouldColorize(out)
	err := s.Playback.Run(signalCtx, func(snap playback.Snapshot) bool {
		if snap.Err != nil {
			return true
		}
		s.UpdatePlayback(parent, historyID, snap.Info)
		if ctx.jsonOutput() {
			_ = writeJSON(cmd, snap.Info)
		} else {
			fmt.Fprintf(out, "%s / %s  %s\n", formatClock(snap.Info.Position), formatClock(snap.Info.Duration), playbackState(snap.Info))
		}
		return !playbackFinished(snap.Info)
	})
	if errors.Is(err, context.Canceled) && parent.Err() == nil {
		return nil
	}
	if err != nil {
		return callError("follow playback", err)
	}
	if last, ok := s.Playback.Last(); ok && !ctx.jsonOutput() {
		for _, line := range renderPlayback(last.Info, colorize) {
			fmt.Fprintln(out, line)
		}
	}
	return nil
}

func playbackFinished(info api.PlaybackInfo) bool {
	if info.Duration > 0 && info.Position >= info.Duration {
		return true
	}
	return info.Duration <= 0 && info.Paused
}

func playbackState(info api.PlaybackInfo) string {
	switch {
	case info.Duration <= 0 && info.Paused:
		return "stopped"
	case info.Paused:
		return "paused"
	default:
		return "playing"
	}
}

func newPlaybackStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the player state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withSession(cmd, session.Options{}, func(runCtx context.Context, s *session.Session) error {
				snap := s.Playback.Poll(runCtx)
				if snap.Err != nil {
					return callError("read playback state", snap.Err)
				}
				return printPlayback(cmd, ctx, snap.Info)
			})
		},
	}
}

func newToggleCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "toggle",
		Short: "Pause or resume playback",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withSession(cmd, session.Options{}, func(runCtx context.Context, s *session.Session) error {
				info, err := s.Playback.Toggle(runCtx)
				if err != nil {
					return callError("toggle playback", err)
				}
				return printPlayback(cmd, ctx, info)
			})
		},
	}
}

func newStopCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Stop playback",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withSession(cmd, session.Options{}, func(runCtx context.Context, s *session.Session) error {
				info, err := s.Playback.Stop(runCtx)
				if err != nil {
					return callError("stop playback", err)
				}
				return printPlayback(cmd, ctx, info)
			})
		},
	}
}

func printPlayback(cmd *cobra.Command, ctx *commandContext, info api.PlaybackInfo) error {
	if ctx.jsonOutput() {
		return writeJSON(cmd, info)
	}
	out := cmd.OutOrStdout()
	for _, line := range renderPlayback(info, shouldColorize(out)) {
		fmt.Fprintln(out, line)
	}
	return nil
}
