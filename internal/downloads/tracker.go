package downloads

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"kamiview/internal/api"
	"kamiview/internal/gateway"
	"kamiview/internal/logging"
)

// Status is the lifecycle state of one download.
type Status string

const (
	StatusPreparing   Status = "preparing"
	StatusDownloading Status = "downloading"
	StatusCompleted   Status = "completed"
	StatusFailed      Status = "failed"
)

// Update is reported to observers as the download advances.
type Update struct {
	Status  Status
	Percent float64
	Message string
}

// Result summarizes a finished download attempt.
type Result struct {
	Request  api.DownloadRequest
	Status   Status
	Percent  float64
	Message  string
	Attempts int
	Started  time.Time
	Finished time.Time
}

// Failure is returned when the backend reported the download as failed.
type Failure struct {
	Message string
}

func (f *Failure) Error() string {
	return "download failed: " + f.Message
}

// Starter issues startDownload. api.Client satisfies it.
type Starter interface {
	StartDownload(ctx context.Context, req api.DownloadRequest) error
}

// EventSource yields unsolicited envelopes until ctx ends. gateway.Gateway
// satisfies it.
type EventSource interface {
	Events(ctx context.Context, buffer int) <-chan gateway.Envelope
}

// Tracker runs downloads.
type Tracker struct {
	starter Starter
	events  EventSource
	logger  *slog.Logger
	now     func() time.Time
}

// NewTracker wires a tracker to the api client and gateway event stream.
func NewTracker(starter Starter, events EventSource, logger *slog.Logger) *Tracker {
	return &Tracker{
		starter: starter,
		events:  events,
		logger:  logging.NewComponentLogger(logger, "downloads"),
		now:     time.Now,
	}
}

const eventBuffer = 64

// Run starts one download and blocks until the backend reports completion
// or failure, or ctx ends. onUpdate may be nil.
func (t *Tracker) Run(ctx context.Context, req api.DownloadRequest, onUpdate func(Update)) (Result, error) {
	req, err := api.NormalizeDownload(req)
	if err != nil {
		return Result{Request: req, Status: StatusFailed, Message: err.Error()}, err
	}
	result := Result{Request: req, Status: StatusPreparing, Attempts: 1, Started: t.now()}
	notify := func(u Update) {
		result.Status = u.Status
		result.Percent = u.Percent
		if u.Message != "" {
			result.Message = u.Message
		}
		if onUpdate != nil {
			onUpdate(u)
		}
	}
	finish := func(err error) (Result, error) {
		result.Finished = t.now()
		return result, err
	}

	scope, cancel := context.WithCancel(ctx)
	defer cancel()
	// Subscribe before issuing the request so early events are not missed.
	events := t.events.Events(scope, eventBuffer)

	ack := make(chan error, 1)
	go func() { ack <- t.starter.StartDownload(scope, req) }()

	notify(Update{Status: StatusPreparing})
	logger := t.logger.With(logging.String("filename", req.Filename))
	logger.Info("download requested", logging.String("content_type", req.ContentType))

	progressed := false
	for {
		select {
		case <-ctx.Done():
			notify(Update{Status: StatusFailed, Percent: result.Percent, Message: ctx.Err().Error()})
			return finish(ctx.Err())

		case err := <-ack:
			ack = nil
			if err == nil {
				if !progressed {
					notify(Update{Status: StatusDownloading})
				}
				continue
			}
			if errors.Is(err, gateway.ErrTimeout) && progressed {
				logger.Debug("download acknowledgement timed out after progress", logging.Error(err))
				continue
			}
			notify(Update{Status: StatusFailed, Percent: result.Percent, Message: err.Error()})
			logging.WarnWithContext(logger, "download request failed", "download_failed",
				logging.Error(err),
				logging.String(logging.FieldImpact, "the file was not downloaded"),
				logging.String(logging.FieldErrorHint, "retry the download or check the backend logs"))
			return finish(fmt.Errorf("start download: %w", err))

		case env, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			switch env.Type {
			case api.EventDownloadProgress:
				progress, err := decodeEvent[api.DownloadProgress](env.Data)
				if err != nil {
					logger.Debug("ignoring malformed progress event", logging.Error(err))
					continue
				}
				progressed = true
				notify(Update{Status: StatusDownloading, Percent: clampPercent(progress.Percent)})

			case api.EventDownloadComplete:
				notify(Update{Status: StatusCompleted, Percent: 100})
				logger.Info("download complete", logging.Duration("elapsed", t.now().Sub(result.Started)))
				return finish(nil)

			case api.EventDownloadError:
				failure, err := decodeEvent[api.DownloadFailure](env.Data)
				if err != nil {
					logger.Debug("malformed download error event", logging.Error(err))
				}
				if failure.Message == "" {
					failure.Message = "backend reported a download error"
				}
				notify(Update{Status: StatusFailed, Percent: result.Percent, Message: failure.Message})
				logging.WarnWithContext(logger, "download failed", "download_failed",
					logging.String("message", failure.Message),
					logging.String(logging.FieldImpact, "the file was not downloaded"),
					logging.String(logging.FieldErrorHint, "retry the download or pick another translation"))
				return finish(&Failure{Message: failure.Message})
			}
		}
	}
}

// RunWithRetry re-issues a failed download up to retries more times. A
// cancelled context is never retried.
func (t *Tracker) RunWithRetry(ctx context.Context, req api.DownloadRequest, retries int, onUpdate func(Update)) (Result, error) {
	var (
		result Result
		err    error
	)
	for attempt := 1; ; attempt++ {
		result, err = t.Run(ctx, req, onUpdate)
		result.Attempts = attempt
		if err == nil || ctx.Err() != nil || attempt > retries {
			return result, err
		}
		t.logger.Info("retrying download",
			logging.String("filename", req.Filename),
			logging.Int("attempt", attempt+1),
			logging.Error(err))
	}
}

func decodeEvent[T any](data json.RawMessage) (T, error) {
	var out T
	if len(data) == 0 {
		return out, nil
	}
	err := json.Unmarshal(data, &out)
	return out, err
}

func clampPercent(p float64) float64 {
	switch {
	case p < 0:
		return 0
	case p > 100:
		return 100
	}
	return p
}
