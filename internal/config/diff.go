package config

// ConfigDiff describes what changed between two configs.
// Only fields that can be safely hot-reloaded are tracked; command renames
// and the prefix need a restart because the router is built once.
type ConfigDiff struct {
	VolumeChanged   bool
	NewVolume       int
	LanguageChanged bool
	NewLanguage     string
	FooterChanged   bool
	NewFooter       string
	LogLevelChanged bool
	NewLogLevel     LogLevel
}

// Any reports whether the diff contains at least one change.
func (d ConfigDiff) Any() bool {
	return d.VolumeChanged || d.LanguageChanged || d.FooterChanged || d.LogLevelChanged
}

// Diff compares old and new configs and returns what changed.
// Only tracks changes that are safe to apply without restart.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Volume() != new.Volume() {
		d.VolumeChanged = true
		d.NewVolume = new.Volume()
	}

	if old.Language != new.Language {
		d.LanguageChanged = true
		d.NewLanguage = new.Language
	}

	if old.Embed.Footer != new.Embed.Footer {
		d.FooterChanged = true
		d.NewFooter = new.Embed.Footer
	}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	return d
}
