package playback_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"kamiview/internal/api"
	"kamiview/internal/gateway"
	"kamiview/internal/logging"
	"kamiview/internal/playback"
)

type fakePlayer struct {
	mu      sync.Mutex
	info    api.PlaybackInfo
	polls   int
	toggles []bool
	stops   int
	err     error
}

func (f *fakePlayer) PlaybackInfo(context.Context) (api.PlaybackInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.polls++
	if f.err != nil {
		return api.PlaybackInfo{}, f.err
	}
	f.info.Position++
	return f.info, nil
}

func (f *fakePlayer) TogglePlayback(_ context.Context, current api.PlaybackInfo) (api.PlaybackInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.toggles = append(f.toggles, !current.Paused)
	f.info.Paused = !current.Paused
	return f.info, nil
}

func (f *fakePlayer) StopPlayback(context.Context) (api.PlaybackInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stops++
	f.info = api.PlaybackInfo{Paused: true}
	return f.info, nil
}

func TestRunPollsUntilCallbackStops(t *testing.T) {
	player := &fakePlayer{info: api.PlaybackInfo{Duration: 100}}
	monitor := playback.NewMonitor(player, time.Millisecond, logging.NewNop())

	var seen []float64
	err := monitor.Run(context.Background(), func(s playback.Snapshot) bool {
		if s.Err != nil {
			t.Fatalf("unexpected poll error: %v", s.Err)
		}
		seen = append(seen, s.Info.Position)
		return len(seen) < 3
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(seen) != 3 || seen[0] != 1 || seen[2] != 3 {
		t.Fatalf("unexpected positions %v", seen)
	}
	last, ok := monitor.Last()
	if !ok || last.Info.Position != 3 {
		t.Fatalf("unexpected last snapshot %+v", last)
	}
}

func TestRunStopsOnContext(t *testing.T) {
	player := &fakePlayer{}
	monitor := playback.NewMonitor(player, time.Hour, logging.NewNop())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := monitor.Run(ctx, nil); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
	if player.polls != 1 {
		t.Fatalf("expected one immediate poll, got %d", player.polls)
	}
}

func TestRunKeepsPollingThroughErrors(t *testing.T) {
	player := &fakePlayer{err: errors.New("player busy")}
	monitor := playback.NewMonitor(player, time.Millisecond, logging.NewNop())

	count := 0
	err := monitor.Run(context.Background(), func(s playback.Snapshot) bool {
		count++
		if s.Err == nil {
			t.Fatal("expected poll error")
		}
		return count < 4
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if _, ok := monitor.Last(); ok {
		t.Fatal("failed polls must not update the last snapshot")
	}
}

func TestRunEndsWhenGatewayClosed(t *testing.T) {
	player := &fakePlayer{err: gateway.ErrClosed}
	monitor := playback.NewMonitor(player, time.Millisecond, logging.NewNop())
	if err := monitor.Run(context.Background(), nil); !errors.Is(err, gateway.ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
}

func TestToggleUsesLastKnownState(t *testing.T) {
	player := &fakePlayer{info: api.PlaybackInfo{Duration: 100}}
	monitor := playback.NewMonitor(player, time.Millisecond, logging.NewNop())
	ctx := context.Background()

	info, err := monitor.Toggle(ctx)
	if err != nil {
		t.Fatalf("Toggle: %v", err)
	}
	if !info.Paused || player.polls != 1 {
		t.Fatalf("expected poll then pause, got %+v after %d polls", info, player.polls)
	}
	info, err = monitor.Toggle(ctx)
	if err != nil {
		t.Fatalf("second Toggle: %v", err)
	}
	if info.Paused || player.polls != 1 {
		t.Fatalf("expected resume without polling, got %+v after %d polls", info, player.polls)
	}
	if len(player.toggles) != 2 || player.toggles[0] != true || player.toggles[1] != false {
		t.Fatalf("unexpected toggle payloads %v", player.toggles)
	}
}

func TestStopEndsRunLoop(t *testing.T) {
	player := &fakePlayer{info: api.PlaybackInfo{Duration: 100}}
	monitor := playback.NewMonitor(player, time.Millisecond, logging.NewNop())

	done := make(chan error, 1)
	go func() { done <- monitor.Run(context.Background(), nil) }()

	time.Sleep(5 * time.Millisecond)
	if _, err := monitor.Stop(context.Background()); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not end after Stop")
	}
}
