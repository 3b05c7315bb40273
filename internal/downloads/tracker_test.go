package downloads_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"kamiview/internal/api"
	"kamiview/internal/downloads"
	"kamiview/internal/gateway"
	"kamiview/internal/logging"
)

type fakeStarter struct {
	mu       sync.Mutex
	requests []api.DownloadRequest
	script   func(attempt int) ([]string, error)
	g        *gateway.Gateway
}

func (f *fakeStarter) StartDownload(_ context.Context, req api.DownloadRequest) error {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	attempt := len(f.requests)
	f.mu.Unlock()

	events, err := f.script(attempt)
	go func() {
		for _, raw := range events {
			_ = f.g.Deliver([]byte(raw))
		}
	}()
	return err
}

func (f *fakeStarter) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

func newTracker(t *testing.T, script func(attempt int) ([]string, error)) (*downloads.Tracker, *fakeStarter) {
	t.Helper()
	g := gateway.New()
	t.Cleanup(g.Close)
	starter := &fakeStarter{script: script, g: g}
	return downloads.NewTracker(starter, g, logging.NewNop()), starter
}

func progress(p float64) string {
	raw, _ := json.Marshal(map[string]any{"type": api.EventDownloadProgress, "data": map[string]float64{"percent": p}})
	return string(raw)
}

func TestRunFollowsProgressToCompletion(t *testing.T) {
	tracker, starter := newTracker(t, func(int) ([]string, error) {
		return []string{progress(10), progress(55.5), `{"type":"DownloadComplete"}`}, nil
	})

	var mu sync.Mutex
	var updates []downloads.Update
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	result, err := tracker.Run(ctx, api.DownloadRequest{Content: "https://cdn/ep1.m3u8", Filename: "ep1.mp4"}, func(u downloads.Update) {
		mu.Lock()
		updates = append(updates, u)
		mu.Unlock()
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Status != downloads.StatusCompleted || result.Percent != 100 {
		t.Fatalf("unexpected result %+v", result)
	}
	if result.Request.ContentType != api.DefaultDownloadContentType {
		t.Fatalf("expected default content type, got %q", result.Request.ContentType)
	}
	if starter.count() != 1 {
		t.Fatalf("expected one request, got %d", starter.count())
	}

	mu.Lock()
	defer mu.Unlock()
	var percents []float64
	for _, u := range updates {
		if u.Status == downloads.StatusDownloading && u.Percent > 0 {
			percents = append(percents, u.Percent)
		}
	}
	if len(percents) != 2 || percents[0] != 10 || percents[1] != 55.5 {
		t.Fatalf("unexpected progress updates %v", percents)
	}
	if updates[0].Status != downloads.StatusPreparing {
		t.Fatalf("expected first update to be preparing, got %+v", updates[0])
	}
}

func TestRunSettlesOnDownloadError(t *testing.T) {
	tracker, _ := newTracker(t, func(int) ([]string, error) {
		return []string{progress(20), `{"type":"DownloadError","data":{"message":"disk full"}}`, `{"type":"DownloadComplete"}`}, nil
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	result, err := tracker.Run(ctx, api.DownloadRequest{Content: "c", Filename: "f"}, nil)
	var failure *downloads.Failure
	if !errors.As(err, &failure) || failure.Message != "disk full" {
		t.Fatalf("expected download failure, got %v", err)
	}
	if result.Status != downloads.StatusFailed || result.Message != "disk full" {
		t.Fatalf("unexpected result %+v", result)
	}
}

func TestRunLogsMalformedDownloadError(t *testing.T) {
	g := gateway.New()
	t.Cleanup(g.Close)
	starter := &fakeStarter{g: g, script: func(int) ([]string, error) {
		return []string{`{"type":"DownloadError","data":"disk full"}`}, nil
	}}
	var buf bytes.Buffer
	tracker := downloads.NewTracker(starter, g, slog.New(logging.NewTraceHandler(&buf)))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err := tracker.Run(ctx, api.DownloadRequest{Content: "c", Filename: "f"}, nil)
	var failure *downloads.Failure
	if !errors.As(err, &failure) || failure.Message != "backend reported a download error" {
		t.Fatalf("expected generic download failure, got %v", err)
	}
	if !strings.Contains(buf.String(), "malformed download error event") {
		t.Fatalf("expected debug log for malformed event, got %q", buf.String())
	}
}

func TestRunFailsWhenBackendRejectsRequest(t *testing.T) {
	tracker, _ := newTracker(t, func(int) ([]string, error) {
		return nil, &gateway.BackendError{Kind: api.KindStartDownload, Message: "no such episode"}
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err := tracker.Run(ctx, api.DownloadRequest{Content: "c", Filename: "f"}, nil)
	var backendErr *gateway.BackendError
	if !errors.As(err, &backendErr) {
		t.Fatalf("expected backend error, got %v", err)
	}
}

func TestRunHonorsContext(t *testing.T) {
	tracker, _ := newTracker(t, func(int) ([]string, error) { return nil, nil })

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	result, err := tracker.Run(ctx, api.DownloadRequest{Content: "c", Filename: "f"}, nil)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
	if result.Status != downloads.StatusFailed {
		t.Fatalf("unexpected status %s", result.Status)
	}
}

func TestRunWithRetry(t *testing.T) {
	tracker, starter := newTracker(t, func(attempt int) ([]string, error) {
		if attempt < 3 {
			return []string{`{"type":"DownloadError","data":{"message":"network"}}`}, nil
		}
		return []string{`{"type":"DownloadComplete"}`}, nil
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	result, err := tracker.RunWithRetry(ctx, api.DownloadRequest{Content: "c", Filename: "f"}, 2, nil)
	if err != nil {
		t.Fatalf("RunWithRetry: %v", err)
	}
	if result.Attempts != 3 || starter.count() != 3 {
		t.Fatalf("expected 3 attempts, got result=%d requests=%d", result.Attempts, starter.count())
	}

	tracker, starter = newTracker(t, func(int) ([]string, error) {
		return []string{`{"type":"DownloadError","data":{"message":"network"}}`}, nil
	})
	if _, err := tracker.RunWithRetry(ctx, api.DownloadRequest{Content: "c", Filename: "f"}, 1, nil); err == nil {
		t.Fatal("expected failure after retries are exhausted")
	}
	if starter.count() != 2 {
		t.Fatalf("expected 2 attempts, got %d", starter.count())
	}
}

func TestRunRejectsInvalidRequest(t *testing.T) {
	tracker, starter := newTracker(t, func(int) ([]string, error) { return nil, nil })
	if _, err := tracker.Run(context.Background(), api.DownloadRequest{Filename: "f"}, nil); err == nil {
		t.Fatal("expected validation error")
	}
	if starter.count() != 0 {
		t.Fatal("invalid request reached the backend")
	}
}
