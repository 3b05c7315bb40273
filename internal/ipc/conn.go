package ipc

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"time"

	"kamiview/internal/logging"
)

// MaxFrameSize bounds a single inbound frame.
const MaxFrameSize = 4 << 20

const writeTimeout = 5 * time.Second

// ErrFrameTooLarge is returned when a peer sends a frame beyond MaxFrameSize.
var ErrFrameTooLarge = errors.New("ipc frame exceeds maximum size")

// Sink consumes inbound frames. gateway.Gateway satisfies it.
type Sink interface {
	Deliver(frame []byte) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(frame []byte) error

// Deliver implements Sink.
func (f SinkFunc) Deliver(frame []byte) error { return f(frame) }

// Conn is one framed socket connection.
type Conn struct {
	conn   net.Conn
	logger *slog.Logger

	writeMu sync.Mutex
	closeMu sync.Once
}

// NewConn wraps an established connection.
func NewConn(conn net.Conn, logger *slog.Logger) *Conn {
	return &Conn{conn: conn, logger: logging.NewComponentLogger(logger, "ipc")}
}

// Send writes one frame. Concurrent senders are serialized.
func (c *Conn) Send(frame []byte) error {
	if bytes.IndexByte(frame, '\n') >= 0 {
		frame = bytes.ReplaceAll(frame, []byte("\n"), nil)
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	buf := make([]byte, 0, len(frame)+1)
	buf = append(buf, frame...)
	buf = append(buf, '\n')
	if _, err := c.conn.Write(buf); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}
	return nil
}

// Serve reads frames until the peer hangs up, ctx ends or the connection
// fails. Frames are handed to sink one at a time in arrival order; sink
// errors are logged and never stop the loop.
func (c *Conn) Serve(ctx context.Context, sink Sink) error {
	stop := context.AfterFunc(ctx, func() { _ = c.Close() })
	defer stop()

	reader := bufio.NewReaderSize(c.conn, 64*1024)
	for {
		frame, err := readFrame(reader)
		if len(frame) > 0 {
			if derr := sink.Deliver(frame); derr != nil {
				c.logger.Debug("inbound frame rejected", logging.Error(derr))
			}
		}
		if errors.Is(err, ErrFrameTooLarge) {
			logging.WarnWithContext(c.logger, "dropping oversized ipc frame", "ipc_frame_too_large",
				logging.Int("limit", MaxFrameSize),
				logging.String(logging.FieldImpact, "one inbound message was ignored"),
				logging.String(logging.FieldErrorHint, "check the bridge for runaway payloads"))
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return err
		}
	}
}

func readFrame(reader *bufio.Reader) ([]byte, error) {
	var frame []byte
	for {
		chunk, err := reader.ReadSlice('\n')
		if len(frame)+len(chunk) > MaxFrameSize {
			if errors.Is(err, bufio.ErrBufferFull) {
				if derr := discardLine(reader); derr != nil {
					return nil, derr
				}
			}
			return nil, ErrFrameTooLarge
		}
		frame = append(frame, chunk...)
		if errors.Is(err, bufio.ErrBufferFull) {
			continue
		}
		return bytes.TrimSpace(frame), err
	}
}

func discardLine(reader *bufio.Reader) error {
	for {
		_, err := reader.ReadSlice('\n')
		if errors.Is(err, bufio.ErrBufferFull) {
			continue
		}
		return err
	}
}

// Close closes the underlying connection once.
func (c *Conn) Close() error {
	var err error
	c.closeMu.Do(func() {
		err = c.conn.Close()
	})
	return err
}
