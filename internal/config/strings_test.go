package config_test

import (
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"github.com/troubadourbot/troubadour/internal/config"
)

func TestForLanguage_EnglishDefault(t *testing.T) {
	t.Parallel()
	s := config.ForLanguage("en")
	if got := s.Get("queue_empty"); got != "The queue is empty." {
		t.Errorf("queue_empty: got %q", got)
	}
}

func TestForLanguage_German(t *testing.T) {
	t.Parallel()
	s := config.ForLanguage("de")
	if got := s.Get("queue_empty"); got != "Die Warteschlange ist leer." {
		t.Errorf("queue_empty: got %q", got)
	}
	if got := s.Get("now_playing_title"); got != "Jetzt spielt 🎶" {
		t.Errorf("now_playing_title: got %q", got)
	}
}

func TestForLanguage_UnknownFallsBackToEnglish(t *testing.T) {
	t.Parallel()
	s := config.ForLanguage("fr")
	if got := s.Get("queue_empty"); got != "The queue is empty." {
		t.Errorf("unknown language should fall back to english, got %q", got)
	}
}

func TestStrings_GetMissingKeyReturnsKey(t *testing.T) {
	t.Parallel()
	s := config.ForLanguage("en")
	if got := s.Get("no_such_key"); got != "no_such_key" {
		t.Errorf("missing key: got %q, want the key itself", got)
	}
}

func TestStrings_Format(t *testing.T) {
	t.Parallel()
	s := config.ForLanguage("en")
	got := s.Format("volume_set", map[string]string{"volume": "42"})
	if got != "Volume set to 42%." {
		t.Errorf("Format: got %q", got)
	}
	got = s.Format("song_added_to_queue", map[string]string{"username": "alice"})
	if !strings.Contains(got, "alice") {
		t.Errorf("Format should substitute username, got %q", got)
	}
}

func TestLanguages(t *testing.T) {
	t.Parallel()
	langs := config.Languages()
	if !slices.Contains(langs, "en") || !slices.Contains(langs, "de") {
		t.Errorf("Languages: got %v, want en and de included", langs)
	}
	if !config.HasLanguage("en") || config.HasLanguage("zz") {
		t.Error("HasLanguage gave wrong answers")
	}
}

func TestLoadStrings_OverlayFile(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	path := filepath.Join(dir, "strings.yaml")
	overlay := `
en:
  queue_empty: "Nothing queued!"
de:
  queue_empty: "Nix in der Schlange!"
`
	if err := os.WriteFile(path, []byte(overlay), 0o644); err != nil {
		t.Fatalf("failed to write overlay: %v", err)
	}

	s, err := config.LoadStrings(path, "de")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := s.Get("queue_empty"); got != "Nix in der Schlange!" {
		t.Errorf("overlay not applied: got %q", got)
	}
	// Keys absent from the overlay keep their built-in value.
	if got := s.Get("song_skipped"); got != "Song übersprungen." {
		t.Errorf("builtin fallback: got %q", got)
	}
}

func TestLoadStrings_MissingFileIsNotAnError(t *testing.T) {
	t.Parallel()
	s, err := config.LoadStrings(filepath.Join(t.TempDir(), "absent.yaml"), "en")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := s.Get("queue_empty"); got != "The queue is empty." {
		t.Errorf("builtin table expected, got %q", got)
	}
}
