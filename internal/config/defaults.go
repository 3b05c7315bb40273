package config

const (
	defaultStateDir                = "~/.local/share/kamiview"
	defaultDownloadDir             = "~/Downloads/kamiview"
	defaultSocketName              = "bridge.sock"
	defaultCallTimeoutSeconds      = 30
	defaultLightCallTimeoutSeconds = 10
	defaultReadyPollIntervalMillis = 100
	defaultReadyMaxAttempts        = 50
	defaultLateResponseMemory      = 256
	defaultPlaybackPollMillis      = 1000
	defaultDownloadContentType     = "application/x-mpegURL"
	defaultNotifyTimeoutSeconds    = 10
	defaultLogFormat               = "console"
	defaultLogLevel                = "info"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			StateDir:    defaultStateDir,
			DownloadDir: defaultDownloadDir,
		},
		Bridge: Bridge{
			CallTimeoutSeconds:      defaultCallTimeoutSeconds,
			LightCallTimeoutSeconds: defaultLightCallTimeoutSeconds,
			ReadyPollIntervalMillis: defaultReadyPollIntervalMillis,
			ReadyMaxAttempts:        defaultReadyMaxAttempts,
			LateResponseMemory:      defaultLateResponseMemory,
		},
		Playback: Playback{
			PollIntervalMillis: defaultPlaybackPollMillis,
		},
		Downloads: Downloads{
			ContentType: defaultDownloadContentType,
		},
		Notifications: Notifications{
			RequestTimeoutSeconds: defaultNotifyTimeoutSeconds,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
