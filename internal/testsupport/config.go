package testsupport

import (
	"os"
	"path/filepath"
	"testing"

	"kamiview/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// The socket lives in a short temp directory so it stays under the unix
// socket path limit.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.StateDir = filepath.Join(base, "state")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Paths.DownloadDir = filepath.Join(base, "downloads")
	cfgVal.Paths.SocketPath = filepath.Join(ShortTempDir(t), "bridge.sock")
	cfgVal.Bridge.ReadyPollIntervalMillis = 10
	cfgVal.Bridge.ReadyMaxAttempts = 5

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}
	for _, opt := range opts {
		opt(builder)
	}
	return builder.cfg
}

// WithSocketPath points the config at an existing bridge socket.
func WithSocketPath(path string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Paths.SocketPath = path
	}
}

// WithCallTimeouts overrides both call budgets, in seconds.
func WithCallTimeouts(general, light int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Bridge.CallTimeoutSeconds = general
		b.cfg.Bridge.LightCallTimeoutSeconds = light
	}
}

// WithPlaybackPoll overrides the playback monitor interval.
func WithPlaybackPoll(millis int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Playback.PollIntervalMillis = millis
	}
}

// ShortTempDir creates a temp directory with a short path and removes it
// when the test ends.
func ShortTempDir(t testing.TB) string {
	t.Helper()
	dir, err := os.MkdirTemp("", "kv")
	if err != nil {
		t.Fatalf("mkdir temp: %v", err)
	}
	t.Cleanup(func() { _ = os.RemoveAll(dir) })
	return dir
}
