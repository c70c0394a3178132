package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/troubadourbot/troubadour/internal/config"
)

const volumeTestYAML = `
server:
  log_level: info
command:
  prefix: "!"
playback:
  default_volume: 50
  ffmpeg_path: /usr/bin/ffmpeg
embed:
  footer: Troubadour
language: de
`

func TestSaveVolume_RewritesFile(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(volumeTestYAML), 0o644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	if err := config.SaveVolume(path, 85); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("reload failed: %v", err)
	}
	if cfg.Volume() != 85 {
		t.Errorf("volume after save: got %d, want 85", cfg.Volume())
	}
	// The rest of the config must survive the rewrite.
	if cfg.Command.Prefix != "!" {
		t.Errorf("prefix lost on rewrite: got %q", cfg.Command.Prefix)
	}
	if cfg.Language != "de" {
		t.Errorf("language lost on rewrite: got %q", cfg.Language)
	}
	if cfg.FFmpeg() != "/usr/bin/ffmpeg" {
		t.Errorf("ffmpeg path lost on rewrite: got %q", cfg.FFmpeg())
	}
}

func TestSaveVolume_RejectsOutOfRange(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(volumeTestYAML), 0o644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	for _, v := range []int{0, -5, 101} {
		if err := config.SaveVolume(path, v); err == nil {
			t.Errorf("SaveVolume(%d) should fail", v)
		}
	}

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("reload failed: %v", err)
	}
	if cfg.Volume() != 50 {
		t.Errorf("rejected save must not modify the file, volume got %d", cfg.Volume())
	}
}

func TestSaveVolume_MissingFile(t *testing.T) {
	t.Parallel()
	if err := config.SaveVolume(filepath.Join(t.TempDir(), "absent.yaml"), 50); err == nil {
		t.Fatal("expected error for missing file, got nil")
	}
}
