package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// KnownCommandKeys lists the built-in command behaviours that can be renamed
// or aliased via the commands section. Used by [Validate] to warn about
// unrecognised keys.
var KnownCommandKeys = []string{
	"play", "stop", "skip", "previous", "pause", "resume",
	"volume", "queue", "loop", "help",
}

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader] and [Validate].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r and validates the result.
// Useful in tests where configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	// Playback
	if v := cfg.Playback.DefaultVolume; v != 0 && (v < 1 || v > 100) {
		errs = append(errs, fmt.Errorf("playback.default_volume %d is out of range [1, 100]", v))
	}

	// Language availability warning
	if cfg.Language != "" && !HasLanguage(cfg.Language) {
		slog.Warn("unknown language — falling back to english",
			"language", cfg.Language,
			"known", Languages(),
		)
	}

	// Command key validation and duplicate invocation-name detection across
	// all names and aliases.
	namesSeen := make(map[string]string, len(cfg.Commands))
	claim := func(key, invocation string) {
		if invocation == "" {
			return
		}
		if prev, ok := namesSeen[invocation]; ok && prev != key {
			errs = append(errs, fmt.Errorf("commands: invocation %q is claimed by both %q and %q", invocation, prev, key))
			return
		}
		namesSeen[invocation] = key
	}
	for _, key := range slices.Sorted(maps.Keys(cfg.Commands)) {
		cc := cfg.Commands[key]
		if !slices.Contains(KnownCommandKeys, key) {
			slog.Warn("unknown command key — may be a typo",
				"key", key,
				"known", KnownCommandKeys,
			)
			continue
		}
		name, _ := cfg.CommandInfo(key)
		claim(key, name)
		for _, alias := range cc.Aliases {
			claim(key, alias)
		}
	}

	return errors.Join(errs...)
}
