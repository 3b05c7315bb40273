package ipc

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"kamiview/internal/gateway"
	"kamiview/internal/logging"
)

// Connector dials the bridge socket on demand and serves as the gateway's
// readiness locator. Once a connection is up it keeps feeding inbound frames
// to the bound sink until Close.
type Connector struct {
	path   string
	logger *slog.Logger

	mu     sync.Mutex
	sink   Sink
	conn   *Conn
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewConnector prepares a connector for the socket at path.
func NewConnector(path string, logger *slog.Logger) *Connector {
	ctx, cancel := context.WithCancel(context.Background())
	return &Connector{
		path:   path,
		logger: logging.NewComponentLogger(logger, "ipc"),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Bind sets where inbound frames are delivered. It must be called before
// the first Locate.
func (c *Connector) Bind(sink Sink) {
	c.mu.Lock()
	c.sink = sink
	c.mu.Unlock()
}

// Locate makes one connection attempt and reports the transport, or nil if
// the bridge is not reachable yet.
func (c *Connector) Locate() gateway.Transport {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != nil {
		return c.conn
	}
	if c.sink == nil || c.ctx.Err() != nil {
		return nil
	}
	conn, err := Dial(c.ctx, c.path, c.logger)
	if err != nil {
		if !errors.Is(err, ErrBridgeNotRunning) {
			c.logger.Debug("bridge dial failed", logging.String("socket", c.path), logging.Error(err))
		}
		return nil
	}
	c.conn = conn
	sink := c.sink
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		if err := conn.Serve(c.ctx, sink); err != nil && !errors.Is(err, context.Canceled) {
			logging.WarnWithContext(c.logger, "bridge connection ended", "ipc_connection_lost",
				logging.String("socket", c.path),
				logging.Error(err),
				logging.String(logging.FieldImpact, "pending calls will time out"),
				logging.String(logging.FieldErrorHint, "restart kamiview once the bridge is back"))
		}
	}()
	c.logger.Debug("bridge connected", logging.String("socket", c.path))
	return conn
}

// Close stops the read loop and closes the connection.
func (c *Connector) Close() error {
	c.cancel()
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	var err error
	if conn != nil {
		err = conn.Close()
	}
	c.wg.Wait()
	return err
}
