package gateway

import (
	"context"
	"errors"
	"fmt"
	"time"

	"kamiview/internal/logging"
)

// Transport is the host-provided outbound primitive. Send must not retain
// frame after returning.
type Transport interface {
	Send(frame []byte) error
}

// Locator reports the host transport once it exists. It returns nil while
// the bridge has not been injected yet.
type Locator interface {
	Locate() Transport
}

// LocatorFunc adapts a function to Locator.
type LocatorFunc func() Transport

// Locate implements Locator.
func (f LocatorFunc) Locate() Transport { return f() }

// Attach installs a transport directly and marks the gateway ready. It is a
// no-op once the gateway is ready or closed.
func (g *Gateway) Attach(t Transport) bool {
	if t == nil {
		return false
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed || g.transport != nil {
		return false
	}
	g.transport = t
	g.ready.Store(true)
	return true
}

// Ready reports whether the readiness gate has succeeded.
func (g *Gateway) Ready() bool {
	return g.ready.Load()
}

// AwaitReady polls the locator until it yields a transport. The locator is
// checked immediately and then once per interval up to the attempt ceiling.
func (g *Gateway) AwaitReady(ctx context.Context) error {
	if g.Ready() {
		return nil
	}
	if g.locator == nil {
		return fmt.Errorf("%w: no transport locator configured", ErrReadinessTimeout)
	}

	ticker := time.NewTicker(g.readyInterval)
	defer ticker.Stop()

	for attempt := 1; ; attempt++ {
		if t := g.locator.Locate(); t != nil {
			if g.Attach(t) || g.Ready() {
				g.logger.Debug("ipc transport ready", logging.Int("attempt", attempt))
				return nil
			}
			return ErrClosed
		}
		if attempt >= g.readyAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}

	window := g.readyInterval * time.Duration(g.readyAttempts)
	logging.ErrorWithContext(g.logger, "ipc transport never became available", "ipc_readiness_timeout",
		logging.Int("attempts", g.readyAttempts),
		logging.Duration("window", window),
		logging.String(logging.FieldErrorHint, "start the backend bridge or check the socket path"))
	return fmt.Errorf("%w after %s", ErrReadinessTimeout, window)
}

// IsTransportError reports whether err means the backend could not be reached.
func IsTransportError(err error) bool {
	return errors.Is(err, ErrTransportUnavailable) || errors.Is(err, ErrReadinessTimeout)
}
