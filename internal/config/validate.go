package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateBridge(); err != nil {
		return err
	}
	if err := c.validatePlayback(); err != nil {
		return err
	}
	if err := c.validateNotifications(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validatePaths() error {
	if strings.TrimSpace(c.Paths.StateDir) == "" {
		return errors.New("paths.state_dir must be set")
	}
	if strings.TrimSpace(c.Paths.SocketPath) == "" {
		return errors.New("paths.socket_path must be set")
	}
	return nil
}

func (c *Config) validateBridge() error {
	if c.Bridge.CallTimeoutSeconds <= 0 {
		return errors.New("bridge.call_timeout_seconds must be positive")
	}
	if c.Bridge.LightCallTimeoutSeconds <= 0 {
		return errors.New("bridge.light_call_timeout_seconds must be positive")
	}
	if c.Bridge.LightCallTimeoutSeconds > c.Bridge.CallTimeoutSeconds {
		return fmt.Errorf("bridge.light_call_timeout_seconds (%d) must not exceed bridge.call_timeout_seconds (%d)",
			c.Bridge.LightCallTimeoutSeconds, c.Bridge.CallTimeoutSeconds)
	}
	if c.Bridge.ReadyPollIntervalMillis <= 0 {
		return errors.New("bridge.ready_poll_interval_ms must be positive")
	}
	if c.Bridge.ReadyMaxAttempts <= 0 {
		return errors.New("bridge.ready_max_attempts must be positive")
	}
	if c.Bridge.LateResponseMemory < 0 {
		return errors.New("bridge.late_response_memory must be zero or positive")
	}
	return nil
}

func (c *Config) validatePlayback() error {
	if c.Playback.PollIntervalMillis < 100 {
		return errors.New("playback.poll_interval_ms must be at least 100")
	}
	return nil
}

func (c *Config) validateNotifications() error {
	if c.Notifications.RequestTimeoutSeconds < 0 {
		return errors.New("notifications.request_timeout_seconds must be zero or positive")
	}
	topic := c.Notifications.NtfyTopic
	if topic != "" && !strings.HasPrefix(topic, "http://") && !strings.HasPrefix(topic, "https://") {
		return fmt.Errorf("notifications.ntfy_topic must be a full http(s) URL, got %q", topic)
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format: unsupported value %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level: unsupported value %q", c.Logging.Level)
	}
	return nil
}
