package ipc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"time"

	"golang.org/x/sys/unix"
)

// DialTimeout bounds a single connection attempt.
const DialTimeout = 2 * time.Second

// ErrBridgeNotRunning means nothing is listening on the bridge socket.
var ErrBridgeNotRunning = errors.New("bridge is not running")

// Dial connects to the bridge socket at path.
func Dial(ctx context.Context, path string, logger *slog.Logger) (*Conn, error) {
	dialer := net.Dialer{Timeout: DialTimeout}
	conn, err := dialer.DialContext(ctx, "unix", path)
	if err != nil {
		return nil, ClassifyDialError(path, err)
	}
	return NewConn(conn, logger), nil
}

// ClassifyDialError wraps missing-socket and refused-connection failures in
// ErrBridgeNotRunning so callers can print a friendly hint.
func ClassifyDialError(path string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, unix.ENOENT) || errors.Is(err, unix.ECONNREFUSED) {
		return fmt.Errorf("%w (socket %s): %w", ErrBridgeNotRunning, path, err)
	}
	return fmt.Errorf("dial bridge socket %s: %w", path, err)
}

// CheckSocketDir verifies the socket's parent directory is searchable and
// writable by the current user.
func CheckSocketDir(dir string) error {
	if err := unix.Access(dir, unix.W_OK|unix.X_OK); err != nil {
		return fmt.Errorf("socket directory %s is not accessible: %w", dir, err)
	}
	return nil
}
