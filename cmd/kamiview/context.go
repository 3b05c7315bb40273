package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"kamiview/internal/config"
	"kamiview/internal/gateway"
	"kamiview/internal/ipc"
	"kamiview/internal/session"
)

type commandContext struct {
	socketFlag *string
	configFlag *string
	jsonFlag   *bool
	traceFlag  *string

	configOnce sync.Once
	config     *config.Config
	configErr  error
}

func newCommandContext(socketFlag, configFlag *string, jsonFlag *bool) *commandContext {
	return &commandContext{
		socketFlag: socketFlag,
		configFlag: configFlag,
		jsonFlag:   jsonFlag,
	}
}

func (c *commandContext) configPath() string {
	if c.configFlag == nil {
		return ""
	}
	return strings.TrimSpace(*c.configFlag)
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		cfg, _, _, err := config.Load(c.configPath())
		if err != nil {
			c.configErr = err
			return
		}
		if socket := c.socketOverride(); socket != "" {
			expanded, err := config.ExpandPath(socket)
			if err != nil {
				c.configErr = fmt.Errorf("resolve socket path: %w", err)
				return
			}
			cfg.Paths.SocketPath = expanded
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

func (c *commandContext) socketOverride() string {
	if c.socketFlag == nil {
		return ""
	}
	return strings.TrimSpace(*c.socketFlag)
}

func (c *commandContext) socketPath() string {
	cfg, err := c.ensureConfig()
	if err != nil || cfg == nil {
		return c.socketOverride()
	}
	return cfg.Paths.SocketPath
}

func (c *commandContext) jsonOutput() bool {
	return c.jsonFlag != nil && *c.jsonFlag
}

// withSession opens a bridge session for the duration of fn.
func (c *commandContext) withSession(cmd *cobra.Command, opts session.Options, fn func(context.Context, *session.Session) error) error {
	cfg, err := c.ensureConfig()
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	if opts.TracePath == "" && c.traceFlag != nil {
		if trace := strings.TrimSpace(*c.traceFlag); trace != "" {
			expanded, err := config.ExpandPath(trace)
			if err != nil {
				return fmt.Errorf("resolve trace path: %w", err)
			}
			opts.TracePath = expanded
		}
	}
	s, err := session.Open(ctx, cfg, opts)
	if err != nil {
		return wrapSessionError(err, cfg.Paths.SocketPath)
	}
	defer s.Close()
	return fn(ctx, s)
}

func wrapSessionError(err error, socket string) error {
	switch {
	case errors.Is(err, session.ErrSessionActive):
		return fmt.Errorf("%w; wait for the running download or playback to finish", err)
	case errors.Is(err, gateway.ErrReadinessTimeout), errors.Is(err, ipc.ErrBridgeNotRunning):
		return fmt.Errorf("connect to bridge: socket %s is not reachable; start the kamiview backend first", socket)
	default:
		return err
	}
}

// callError turns gateway failures into messages a user can act on. Backend
// errors are shown verbatim.
func callError(action string, err error) error {
	var backendErr *gateway.BackendError
	switch {
	case err == nil:
		return nil
	case errors.As(err, &backendErr):
		return fmt.Errorf("%s: %s", action, backendErr.Message)
	case errors.Is(err, gateway.ErrTimeout):
		return fmt.Errorf("%s: the backend did not answer in time", action)
	case gateway.IsTransportError(err):
		return fmt.Errorf("%s: the backend connection is unavailable", action)
	default:
		return fmt.Errorf("%s: %w", action, err)
	}
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}
