// Package session wires one kamiview process: config, logger, bridge
// connection, gateway and the typed clients built on it.
//
// A Session is constructed once per process and handed to every call site.
// Exclusive sessions also hold <state_dir>/kamiview.lock so flows that depend
// on uncorrelated push events (downloads, followed playback) never share the
// bridge with another exclusive session.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/gofrs/flock"
	"github.com/google/uuid"

	"kamiview/internal/api"
	"kamiview/internal/config"
	"kamiview/internal/downloads"
	"kamiview/internal/gateway"
	"kamiview/internal/history"
	"kamiview/internal/ipc"
	"kamiview/internal/logging"
	"kamiview/internal/notifications"
	"kamiview/internal/playback"
)

// ErrSessionActive is returned when another exclusive session holds the lock.
var ErrSessionActive = errors.New("another kamiview session is already active")

// Options tune session construction.
type Options struct {
	// Logger overrides the config-derived logger.
	Logger *slog.Logger
	// Exclusive acquires the state directory lock.
	Exclusive bool
	// WithHistory opens the local history store.
	WithHistory bool
	// GatewayOptions are appended after the config-derived options.
	GatewayOptions []gateway.Option
	// TracePath, when set, receives every record down to debug level as JSON
	// in addition to the normal log outputs.
	TracePath string
}

// Session owns every per-process resource.
type Session struct {
	ID        string
	Config    *config.Config
	Logger    *slog.Logger
	Gateway   *gateway.Gateway
	Client    *api.Client
	Downloads *downloads.Tracker
	Playback  *playback.Monitor
	History   *history.Store
	Notifier  notifications.Service

	connector *ipc.Connector
	lock      *flock.Flock
	trace     *os.File
}

// Open builds a session and waits for the bridge to become reachable.
func Open(ctx context.Context, cfg *config.Config, opts Options) (*Session, error) {
	if cfg == nil {
		return nil, errors.New("session requires configuration")
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}
	if err := ipc.CheckSocketDir(cfg.Paths.StateDir); err != nil {
		return nil, fmt.Errorf("state directory preflight: %w", err)
	}

	s := &Session{ID: uuid.NewString(), Config: cfg, Notifier: notifications.NewService(cfg)}
	s.Logger = opts.Logger
	if s.Logger == nil {
		logger, err := logging.NewFromConfig(cfg, s.ID)
		if err != nil {
			return nil, fmt.Errorf("init logger: %w", err)
		}
		s.Logger = logger
	}
	if path := strings.TrimSpace(opts.TracePath); path != "" {
		file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, fmt.Errorf("open trace file: %w", err)
		}
		s.trace = file
		s.Logger = logging.TeeLogger(s.Logger, logging.NewTraceHandler(file))
	}

	if opts.Exclusive {
		s.lock = flock.New(cfg.LockPath())
		ok, err := s.lock.TryLock()
		if err != nil {
			_ = s.Close()
			return nil, fmt.Errorf("acquire session lock: %w", err)
		}
		if !ok {
			_ = s.Close()
			return nil, fmt.Errorf("%w (lock %s)", ErrSessionActive, cfg.LockPath())
		}
	}

	s.connector = ipc.NewConnector(cfg.Paths.SocketPath, s.Logger)
	gatewayOpts := []gateway.Option{
		gateway.WithLogger(s.Logger),
		gateway.WithLocator(s.connector),
		gateway.WithReadyPolling(cfg.ReadyPollInterval(), cfg.Bridge.ReadyMaxAttempts),
		gateway.WithLateResponseMemory(cfg.Bridge.LateResponseMemory),
	}
	s.Gateway = gateway.New(append(gatewayOpts, opts.GatewayOptions...)...)
	s.connector.Bind(s.Gateway)

	if err := s.Gateway.AwaitReady(ctx); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("connect to bridge at %s: %w", cfg.Paths.SocketPath, err)
	}

	s.Client = api.NewClient(s.Gateway,
		api.WithBudgets(cfg.CallTimeout(), cfg.LightCallTimeout()),
		api.WithLogger(s.Logger))
	s.Downloads = downloads.NewTracker(s.Client, s.Gateway, s.Logger)
	s.Playback = playback.NewMonitor(s.Client, cfg.PlaybackPollInterval(), s.Logger)

	if opts.WithHistory {
		store, err := history.Open(cfg)
		if err != nil {
			_ = s.Close()
			return nil, fmt.Errorf("open history: %w", err)
		}
		s.History = store
	}

	s.Logger.Debug("session ready",
		logging.String("socket", cfg.Paths.SocketPath),
		logging.Bool("exclusive", opts.Exclusive))
	return s, nil
}

// Close settles pending calls, disconnects and releases the lock.
func (s *Session) Close() error {
	if s == nil {
		return nil
	}
	var errs []error
	if s.Gateway != nil {
		s.Gateway.Close()
	}
	if s.connector != nil {
		if err := s.connector.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close bridge connection: %w", err))
		}
	}
	if s.History != nil {
		if err := s.History.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close history: %w", err))
		}
	}
	if s.lock != nil {
		if err := s.lock.Unlock(); err != nil {
			errs = append(errs, fmt.Errorf("release session lock: %w", err))
		}
	}
	if s.trace != nil {
		if err := s.trace.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close trace file: %w", err))
		}
	}
	return errors.Join(errs...)
}

// RecordDownload stores a download outcome when history is enabled and
// sends the matching notification.
func (s *Session) RecordDownload(ctx context.Context, result downloads.Result) {
	s.notifyDownload(ctx, result)
	if s.History == nil {
		return
	}
	_, err := s.History.RecordDownload(ctx, history.Download{
		Filename:    result.Request.Filename,
		Content:     result.Request.Content,
		ContentType: result.Request.ContentType,
		Status:      string(result.Status),
		Percent:     result.Percent,
		Message:     result.Message,
		Attempts:    result.Attempts,
		SessionID:   s.ID,
		StartedAt:   result.Started,
		FinishedAt:  result.Finished,
	})
	if err != nil {
		logging.WarnWithContext(s.Logger, "failed to record download history", "history_write_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "download will be missing from kamiview history"))
	}
}

func (s *Session) notifyDownload(ctx context.Context, result downloads.Result) {
	if s.Notifier == nil {
		return
	}
	var err error
	switch result.Status {
	case downloads.StatusCompleted:
		err = s.Notifier.NotifyDownloadCompleted(ctx, result.Request.Filename, result.Finished.Sub(result.Started))
	case downloads.StatusFailed:
		err = s.Notifier.NotifyDownloadFailed(ctx, result.Request.Filename, result.Message)
	default:
		return
	}
	if err != nil {
		logging.WarnWithContext(s.Logger, "download notification failed", "notification_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "no alert was sent for this download"),
			logging.String(logging.FieldErrorHint, "check notifications.ntfy_topic"))
	}
}

// RecordPlayback stores a started episode and returns its history id, or 0
// when history is disabled or the write failed.
func (s *Session) RecordPlayback(ctx context.Context, req api.PlayRequest, title, translationTitle string) int64 {
	if s.History == nil {
		return 0
	}
	id, err := s.History.RecordPlayback(ctx, history.Playback{
		ShikimoriID:      req.ShikimoriID,
		Title:            title,
		Episode:          req.Episode,
		TranslationID:    req.TranslationID,
		TranslationTitle: translationTitle,
		SessionID:        s.ID,
	})
	if err != nil {
		logging.WarnWithContext(s.Logger, "failed to record playback history", "history_write_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "episode will be missing from kamiview history"))
		return 0
	}
	return id
}

// UpdatePlayback stores the latest position for a recorded playback.
func (s *Session) UpdatePlayback(ctx context.Context, id int64, info api.PlaybackInfo) {
	if s.History == nil || id == 0 {
		return
	}
	if err := s.History.UpdatePlaybackPosition(ctx, id, info.Position, info.Duration); err != nil {
		s.Logger.Debug("playback position not saved", logging.Error(err))
	}
}
