package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"kamiview/internal/config"
)

const userAgent = "kamiview/0.1"

// Service is the notification surface used by the download flow.
type Service interface {
	NotifyDownloadCompleted(ctx context.Context, filename string, elapsed time.Duration) error
	NotifyDownloadFailed(ctx context.Context, filename, reason string) error
	TestNotification(ctx context.Context) error
}

// NewService builds an ntfy-backed service, or a no-op one when
// notifications.ntfy_topic is empty.
func NewService(cfg *config.Config) Service {
	if cfg == nil {
		return noopService{}
	}
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noopService{}
	}

	timeout := time.Duration(cfg.Notifications.RequestTimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &ntfyService{
		endpoint: topic,
		client:   &http.Client{Timeout: timeout},
	}
}

type payload struct {
	title    string
	message  string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint string
	client   *http.Client
}

func (n *ntfyService) NotifyDownloadCompleted(ctx context.Context, filename string, elapsed time.Duration) error {
	message := fmt.Sprintf("Downloaded %s", filepath.Base(strings.TrimSpace(filename)))
	if elapsed > 0 {
		message += fmt.Sprintf(" in %s", elapsed.Round(time.Second))
	}
	return n.send(ctx, payload{
		title:   "kamiview - Download complete",
		message: message,
		tags:    []string{"kamiview", "download", "white_check_mark"},
	})
}

func (n *ntfyService) NotifyDownloadFailed(ctx context.Context, filename, reason string) error {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = "unknown error"
	}
	return n.send(ctx, payload{
		title:    "kamiview - Download failed",
		message:  fmt.Sprintf("%s: %s", filepath.Base(strings.TrimSpace(filename)), reason),
		tags:     []string{"kamiview", "download", "warning"},
		priority: "high",
	})
}

func (n *ntfyService) TestNotification(ctx context.Context) error {
	return n.send(ctx, payload{
		title:    "kamiview - Test",
		message:  "Notification test",
		tags:     []string{"kamiview", "test"},
		priority: "low",
	})
}

func (n *ntfyService) send(ctx context.Context, data payload) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(data.message))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if data.title != "" {
		req.Header.Set("Title", data.title)
	}
	if len(data.tags) > 0 {
		req.Header.Set("Tags", strings.Join(data.tags, ","))
	}
	if data.priority != "" && data.priority != "default" {
		req.Header.Set("Priority", data.priority)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send ntfy notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

type noopService struct{}

func (noopService) NotifyDownloadCompleted(context.Context, string, time.Duration) error { return nil }
func (noopService) NotifyDownloadFailed(context.Context, string, string) error           { return nil }
func (noopService) TestNotification(context.Context) error                               { return nil }
