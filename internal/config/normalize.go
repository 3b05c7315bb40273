package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeBridge()
	c.normalizePlayback()
	c.normalizeDownloads()
	c.normalizeNotifications()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.StateDir) == "" {
		c.Paths.StateDir = defaultStateDir
	}
	if c.Paths.StateDir, err = expandPath(c.Paths.StateDir); err != nil {
		return fmt.Errorf("paths.state_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = filepath.Join(c.Paths.StateDir, "logs")
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.DownloadDir) == "" {
		c.Paths.DownloadDir = defaultDownloadDir
	}
	if c.Paths.DownloadDir, err = expandPath(c.Paths.DownloadDir); err != nil {
		return fmt.Errorf("paths.download_dir: %w", err)
	}
	c.Paths.SocketPath = strings.TrimSpace(c.Paths.SocketPath)
	if c.Paths.SocketPath == "" {
		if value, ok := os.LookupEnv("KAMIVIEW_SOCKET"); ok {
			c.Paths.SocketPath = strings.TrimSpace(value)
		}
	}
	if c.Paths.SocketPath == "" {
		c.Paths.SocketPath = filepath.Join(c.Paths.StateDir, defaultSocketName)
	}
	if c.Paths.SocketPath, err = expandPath(c.Paths.SocketPath); err != nil {
		return fmt.Errorf("paths.socket_path: %w", err)
	}
	return nil
}

func (c *Config) normalizeBridge() {
	if c.Bridge.CallTimeoutSeconds == 0 {
		c.Bridge.CallTimeoutSeconds = defaultCallTimeoutSeconds
	}
	if c.Bridge.LightCallTimeoutSeconds == 0 {
		c.Bridge.LightCallTimeoutSeconds = defaultLightCallTimeoutSeconds
	}
	if c.Bridge.ReadyPollIntervalMillis == 0 {
		c.Bridge.ReadyPollIntervalMillis = defaultReadyPollIntervalMillis
	}
	if c.Bridge.ReadyMaxAttempts == 0 {
		c.Bridge.ReadyMaxAttempts = defaultReadyMaxAttempts
	}
	if c.Bridge.LateResponseMemory == 0 {
		c.Bridge.LateResponseMemory = defaultLateResponseMemory
	}
}

func (c *Config) normalizePlayback() {
	if c.Playback.PollIntervalMillis == 0 {
		c.Playback.PollIntervalMillis = defaultPlaybackPollMillis
	}
}

func (c *Config) normalizeDownloads() {
	c.Downloads.ContentType = strings.TrimSpace(c.Downloads.ContentType)
	if c.Downloads.ContentType == "" {
		c.Downloads.ContentType = defaultDownloadContentType
	}
}

func (c *Config) normalizeNotifications() {
	c.Notifications.NtfyTopic = strings.TrimSpace(c.Notifications.NtfyTopic)
	if c.Notifications.RequestTimeoutSeconds == 0 {
		c.Notifications.RequestTimeoutSeconds = defaultNotifyTimeoutSeconds
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
