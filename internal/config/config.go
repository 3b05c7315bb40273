package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory and socket configuration.
type Paths struct {
	StateDir    string `toml:"state_dir"`
	LogDir      string `toml:"log_dir"`
	DownloadDir string `toml:"download_dir"`
	// SocketPath is the backend bridge socket. Defaults to <state_dir>/bridge.sock.
	SocketPath string `toml:"socket_path"`
}

// Bridge contains the IPC gateway budgets and readiness polling settings.
type Bridge struct {
	// CallTimeoutSeconds is the general budget applied to most calls.
	CallTimeoutSeconds int `toml:"call_timeout_seconds"`
	// LightCallTimeoutSeconds is the budget for lightweight status calls
	// such as getPlaybackInfo that are polled repeatedly.
	LightCallTimeoutSeconds int `toml:"light_call_timeout_seconds"`
	ReadyPollIntervalMillis int `toml:"ready_poll_interval_ms"`
	ReadyMaxAttempts        int `toml:"ready_max_attempts"`
	// LateResponseMemory bounds how many expired correlation ids are
	// remembered so late responses can be reported as orphans.
	LateResponseMemory int `toml:"late_response_memory"`
}

// Playback contains configuration for the playback monitor.
type Playback struct {
	PollIntervalMillis int `toml:"poll_interval_ms"`
}

// Downloads contains defaults for download requests.
type Downloads struct {
	ContentType string `toml:"content_type"`
}

// Notifications configures ntfy alerts for finished downloads. An empty
// topic disables them.
type Notifications struct {
	NtfyTopic             string `toml:"ntfy_topic"`
	RequestTimeoutSeconds int    `toml:"request_timeout_seconds"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for kamiview.
//
// Configuration sections by subsystem:
//   - Paths: state, log and download directories plus the bridge socket
//   - Bridge: call budgets and readiness gate polling
//   - Playback: playback monitor cadence
//   - Downloads: download request defaults
//   - Notifications: ntfy alerts for finished downloads
//   - Logging: log format and level
type Config struct {
	Paths         Paths         `toml:"paths"`
	Bridge        Bridge        `toml:"bridge"`
	Playback      Playback      `toml:"playback"`
	Downloads     Downloads     `toml:"downloads"`
	Notifications Notifications `toml:"notifications"`
	Logging       Logging       `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/kamiview/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("kamiview.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates the state and log directories. DownloadDir is
// created lazily by the download flow since it may live on removable storage.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.StateDir, c.Paths.LogDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// CallTimeout returns the general per-call budget.
func (c *Config) CallTimeout() time.Duration {
	return time.Duration(c.Bridge.CallTimeoutSeconds) * time.Second
}

// LightCallTimeout returns the budget for lightweight, frequently polled calls.
func (c *Config) LightCallTimeout() time.Duration {
	return time.Duration(c.Bridge.LightCallTimeoutSeconds) * time.Second
}

// ReadyPollInterval returns the readiness gate polling interval.
func (c *Config) ReadyPollInterval() time.Duration {
	return time.Duration(c.Bridge.ReadyPollIntervalMillis) * time.Millisecond
}

// PlaybackPollInterval returns the playback monitor polling interval.
func (c *Config) PlaybackPollInterval() time.Duration {
	return time.Duration(c.Playback.PollIntervalMillis) * time.Millisecond
}

// HistoryPath returns the location of the local history database.
func (c *Config) HistoryPath() string {
	return filepath.Join(c.Paths.StateDir, "history.db")
}

// LockPath returns the location of the session lock file.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.StateDir, "kamiview.lock")
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
