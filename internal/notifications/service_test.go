package notifications_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"kamiview/internal/config"
	"kamiview/internal/notifications"
)

type capturedRequest struct {
	title, tags, priority, body string
}

func newNtfyServer(t *testing.T, status int) (*httptest.Server, <-chan capturedRequest) {
	t.Helper()
	requests := make(chan capturedRequest, 4)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		requests <- capturedRequest{
			title:    r.Header.Get("Title"),
			tags:     r.Header.Get("Tags"),
			priority: r.Header.Get("Priority"),
			body:     string(body),
		}
		w.WriteHeader(status)
		_, _ = w.Write([]byte("topic rejected"))
	}))
	t.Cleanup(srv.Close)
	return srv, requests
}

func TestNewServiceReturnsNoopWhenTopicMissing(t *testing.T) {
	cfg := config.Default()
	svc := notifications.NewService(&cfg)
	if err := svc.NotifyDownloadFailed(context.Background(), "ep1.mp4", "disk full"); err != nil {
		t.Fatalf("expected noop notifier to return nil, got %v", err)
	}
	if err := notifications.NewService(nil).TestNotification(context.Background()); err != nil {
		t.Fatalf("nil config notifier returned %v", err)
	}
}

func TestNtfyServiceFormatsPayloads(t *testing.T) {
	srv, requests := newNtfyServer(t, http.StatusOK)
	cfg := config.Default()
	cfg.Notifications.NtfyTopic = srv.URL + "/kamiview"
	svc := notifications.NewService(&cfg)

	if err := svc.NotifyDownloadCompleted(context.Background(), "/dl/Frieren - 03.mp4", 92*time.Second+400*time.Millisecond); err != nil {
		t.Fatalf("NotifyDownloadCompleted: %v", err)
	}
	got := <-requests
	if got.title != "kamiview - Download complete" {
		t.Fatalf("unexpected title %q", got.title)
	}
	if got.body != "Downloaded Frieren - 03.mp4 in 1m32s" {
		t.Fatalf("unexpected body %q", got.body)
	}
	if got.priority != "" {
		t.Fatalf("expected default priority, got %q", got.priority)
	}

	if err := svc.NotifyDownloadFailed(context.Background(), "/dl/ep2.mp4", ""); err != nil {
		t.Fatalf("NotifyDownloadFailed: %v", err)
	}
	got = <-requests
	if got.body != "ep2.mp4: unknown error" || got.priority != "high" {
		t.Fatalf("unexpected failure payload %+v", got)
	}
	if !strings.Contains(got.tags, "warning") {
		t.Fatalf("expected warning tag, got %q", got.tags)
	}
}

func TestNtfyServiceReportsHTTPErrors(t *testing.T) {
	srv, _ := newNtfyServer(t, http.StatusForbidden)
	cfg := config.Default()
	cfg.Notifications.NtfyTopic = srv.URL
	err := notifications.NewService(&cfg).TestNotification(context.Background())
	if err == nil || !strings.Contains(err.Error(), "403") || !strings.Contains(err.Error(), "topic rejected") {
		t.Fatalf("expected 403 error, got %v", err)
	}
}
