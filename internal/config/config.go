// Package config provides the configuration schema, loader, and file watcher
// for the Troubadour music bot.
package config

// LogLevel controls log verbosity for the bot.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Config is the root configuration structure for Troubadour.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
// Secrets (the bot token and Spotify credentials) are not part of the file;
// they come from the environment.
type Config struct {
	Server   ServerConfig             `yaml:"server"`
	Command  CommandSurfaceConfig     `yaml:"command"`
	Playback PlaybackConfig           `yaml:"playback"`
	Embed    EmbedConfig              `yaml:"embed"`
	Language string                   `yaml:"language"`
	Commands map[string]CommandConfig `yaml:"commands"`
}

// ServerConfig holds logging and metrics settings.
type ServerConfig struct {
	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`

	// MetricsAddr is the TCP address the Prometheus metrics endpoint listens
	// on (e.g., ":9090"). When empty, no metrics endpoint is started.
	MetricsAddr string `yaml:"metrics_addr"`
}

// CommandSurfaceConfig holds settings for the text command surface.
type CommandSurfaceConfig struct {
	// Prefix is the string a message must start with to be treated as a
	// command (e.g., "!").
	Prefix string `yaml:"prefix"`
}

// PlaybackConfig holds audio playback settings.
type PlaybackConfig struct {
	// DefaultVolume is the playback volume in percent, in the range [1, 100].
	// It is rewritten in place when an operator changes the volume at runtime.
	DefaultVolume int `yaml:"default_volume"`

	// FFmpegPath is the ffmpeg executable used for audio transcoding.
	// When empty, "ffmpeg" is resolved from PATH.
	FFmpegPath string `yaml:"ffmpeg_path"`
}

// EmbedConfig customises the embeds the bot sends.
type EmbedConfig struct {
	// Footer is appended to every embed the bot sends (e.g., a version tag).
	Footer string `yaml:"footer"`
}

// CommandConfig renames a built-in command and declares its aliases.
// The map key in [Config.Commands] identifies the built-in behaviour
// (e.g., "play", "stop"); Name and Aliases control how users invoke it.
type CommandConfig struct {
	// Name is the primary invocation name. When empty, the built-in key is used.
	Name string `yaml:"name"`

	// Aliases are additional invocation names for the same command.
	Aliases []string `yaml:"aliases"`
}

// CommandInfo returns the effective name and aliases for the built-in
// command identified by key, falling back to key itself when the command
// is not customised.
func (c *Config) CommandInfo(key string) (name string, aliases []string) {
	cc, ok := c.Commands[key]
	if !ok || cc.Name == "" {
		name = key
	} else {
		name = cc.Name
	}
	if ok {
		aliases = cc.Aliases
	}
	return name, aliases
}

// Volume returns the configured default volume. A zero value (unset) falls
// back to 50.
func (c *Config) Volume() int {
	if c.Playback.DefaultVolume == 0 {
		return 50
	}
	return c.Playback.DefaultVolume
}

// FFmpeg returns the configured ffmpeg path, or "ffmpeg" when unset.
func (c *Config) FFmpeg() string {
	if c.Playback.FFmpegPath == "" {
		return "ffmpeg"
	}
	return c.Playback.FFmpegPath
}
