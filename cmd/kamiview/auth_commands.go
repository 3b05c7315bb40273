package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"kamiview/internal/session"
)

func newAuthCommands(ctx *commandContext) []*cobra.Command {
	login := &cobra.Command{
		Use:   "login",
		Short: "Open the Shikimori sign-in page",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withSession(cmd, session.Options{}, func(runCtx context.Context, s *session.Session) error {
				url, err := s.Client.OpenAuthURL(runCtx)
				if err != nil {
					return callError("open sign-in page", err)
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, map[string]string{"url": url})
				}
				out := cmd.OutOrStdout()
				if url != "" {
					fmt.Fprintf(out, "Sign-in page: %s\n", url)
				} else {
					fmt.Fprintln(out, "Sign-in page opened by the backend")
				}
				fmt.Fprintln(out, "Finish with: kamiview auth <code>")
				return nil
			})
		},
	}

	auth := &cobra.Command{
		Use:   "auth <code>",
		Short: "Exchange an authorization code for a session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withSession(cmd, session.Options{}, func(runCtx context.Context, s *session.Session) error {
				user, err := s.Client.ExchangeCode(runCtx, args[0])
				if err != nil {
					return callError("sign in", err)
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, user)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Signed in as %s\n", user.Username)
				return nil
			})
		},
	}

	whoami := &cobra.Command{
		Use:   "whoami",
		Short: "Show the signed-in user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withSession(cmd, session.Options{}, func(runCtx context.Context, s *session.Session) error {
				user, err := s.Client.UserInfo(runCtx)
				if err != nil {
					return callError("read user", err)
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, user)
				}
				out := cmd.OutOrStdout()
				colorize := shouldColorize(out)
				for _, line := range renderSectionHeader("Account", colorize) {
					fmt.Fprintln(out, line)
				}
				fmt.Fprintln(out, renderStatusLine("User", statusOK, user.Username, colorize))
				fmt.Fprintln(out, renderStatusLine("ID", statusInfo, fmt.Sprint(user.ID), colorize))
				if user.Avatar != "" {
					fmt.Fprintln(out, renderStatusLine("Avatar", statusInfo, user.Avatar, colorize))
				}
				return nil
			})
		},
	}

	logout := &cobra.Command{
		Use:   "logout",
		Short: "Sign out",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withSession(cmd, session.Options{}, func(runCtx context.Context, s *session.Session) error {
				if err := s.Client.Logout(runCtx); err != nil {
					return callError("sign out", err)
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, map[string]bool{"loggedOut": true})
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Signed out")
				return nil
			})
		},
	}

	return []*cobra.Command{login, auth, whoami, logout}
}
