// Package playback polls the backend player while an episode is current.
package playback

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"kamiview/internal/api"
	"kamiview/internal/gateway"
	"kamiview/internal/logging"
)

// DefaultInterval is the polling cadence when none is configured.
const DefaultInterval = time.Second

// Source reads and changes the player state. api.Client satisfies it.
type Source interface {
	PlaybackInfo(ctx context.Context) (api.PlaybackInfo, error)
	TogglePlayback(ctx context.Context, current api.PlaybackInfo) (api.PlaybackInfo, error)
	StopPlayback(ctx context.Context) (api.PlaybackInfo, error)
}

// Snapshot is one poll outcome.
type Snapshot struct {
	Info api.PlaybackInfo
	Err  error
	At   time.Time
}

// Monitor keeps the last known playback state fresh.
type Monitor struct {
	source   Source
	interval time.Duration
	logger   *slog.Logger

	mu      sync.Mutex
	last    Snapshot
	hasLast bool
	stopped bool
}

// NewMonitor creates a monitor polling every interval.
func NewMonitor(source Source, interval time.Duration, logger *slog.Logger) *Monitor {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Monitor{
		source:   source,
		interval: interval,
		logger:   logging.NewComponentLogger(logger, "playback"),
	}
}

// Run polls immediately and then once per interval until ctx ends, Stop
// has been called, or onSnapshot returns false. Polls never overlap. A closed
// gateway ends the loop with its error.
func (m *Monitor) Run(ctx context.Context, onSnapshot func(Snapshot) bool) error {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	failures := 0
	for {
		snap := m.Poll(ctx)
		if snap.Err != nil {
			if errors.Is(snap.Err, gateway.ErrClosed) {
				return snap.Err
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			failures++
			if failures == 3 {
				logging.WarnWithContext(m.logger, "playback info unavailable", "playback_poll_failed",
					logging.Int("consecutive_failures", failures),
					logging.Error(snap.Err),
					logging.String(logging.FieldImpact, "playback position may be stale"),
					logging.String(logging.FieldErrorHint, "check that the player is still running"))
			}
		} else {
			failures = 0
		}
		if onSnapshot != nil && !onSnapshot(snap) {
			return nil
		}
		if m.isStopped() {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Poll reads the player state once and records it.
func (m *Monitor) Poll(ctx context.Context) Snapshot {
	info, err := m.source.PlaybackInfo(ctx)
	snap := Snapshot{Info: info, Err: err, At: time.Now()}
	if err == nil {
		m.record(snap)
	}
	return snap
}

// Last returns the most recent successful snapshot.
func (m *Monitor) Last() (Snapshot, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.last, m.hasLast
}

// Toggle flips pause relative to the last known state, polling first when
// nothing is known yet.
func (m *Monitor) Toggle(ctx context.Context) (api.PlaybackInfo, error) {
	current, ok := m.Last()
	if !ok {
		snap := m.Poll(ctx)
		if snap.Err != nil {
			return api.PlaybackInfo{}, snap.Err
		}
		current = snap
	}
	info, err := m.source.TogglePlayback(ctx, current.Info)
	if err != nil {
		return api.PlaybackInfo{}, err
	}
	m.record(Snapshot{Info: info, At: time.Now()})
	return info, nil
}

// Stop stops the player and ends any running poll loop.
func (m *Monitor) Stop(ctx context.Context) (api.PlaybackInfo, error) {
	info, err := m.source.StopPlayback(ctx)
	if err != nil {
		return api.PlaybackInfo{}, err
	}
	m.mu.Lock()
	m.stopped = true
	m.last = Snapshot{Info: info, At: time.Now()}
	m.hasLast = true
	m.mu.Unlock()
	return info, nil
}

func (m *Monitor) record(snap Snapshot) {
	m.mu.Lock()
	m.last = snap
	m.hasLast = true
	m.mu.Unlock()
}

func (m *Monitor) isStopped() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stopped
}
