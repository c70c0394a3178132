package config

import (
	"fmt"
	"io"
	"maps"
	"os"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"
)

// Strings is a resolved table of user-facing message strings for one
// language. Lookups fall back to the English table for missing keys, so a
// partially translated table still produces output for every key.
type Strings struct {
	table map[string]string
}

// builtinStrings holds the shipped language tables. English is the fallback
// for every other language.
var builtinStrings = map[string]map[string]string{
	"en": {
		"no_voice_channel":             "You need to be in a voice channel to use this command.",
		"no_voice_client":              "Nothing is playing right now.",
		"wrong_channel":                "Please use the text channel {channel} that belongs to your voice channel!",
		"song_added_to_queue":          "{username} added a song to the queue.",
		"playlist_load_prompt_spotify": "This looks like a Spotify playlist. Load all tracks? React with ✅ to load everything or ❌ for just the first track.",
		"playlist_load_prompt_youtube": "This looks like a YouTube playlist. Load all tracks? React with ✅ to load everything or ❌ for just this track.",
		"playlist_added_spotify":       "{username} added a Spotify playlist to the queue.",
		"playlist_added_youtube":       "{username} added a YouTube playlist to the queue.",
		"playlist_timeout":             "No reaction received, only the first track was added.",
		"playback_error":               "That track could not be played.",
		"song_paused":                  "Playback paused.",
		"song_resumed":                 "Playback resumed.",
		"song_skipped":                 "Song skipped.",
		"playback_stopped_emoji":       "⏹️ Playback stopped.",
		"no_previous_song":             "There is no previous song.",
		"queue_empty":                  "The queue is empty.",
		"volume_prompt":                "Usage: {prefix}volume <1-100>",
		"invalid_volume":               "Volume must be between 1 and 100.",
		"volume_set":                   "Volume set to {volume}%.",
		"loop_enabled":                 "Looping enabled 🔁",
		"loop_disabled":                "Looping disabled.",
		"command_not_found":            "Unknown command. Try {prefix}help.",
		"missing_argument":             "This command needs an argument. Try {prefix}help.",
		"unexpected_error":             "Something went wrong.",
		"now_playing_title":            "Now playing 🎶",
		"now_playing_paused_title":     "⏸️ Now playing 🎶",
		"duration_field":               "Duration",
		"progress_field":               "Progress",
		"queue_title":                  "🎶 Queue",
		"help_title":                   "Help - Available commands",
		"play_help":                    "Play a song or playlist from a URL or search terms.",
		"pause_help":                   "Pause the current song.",
		"resume_help":                  "Resume a paused song.",
		"skip_help":                    "Skip the current song.",
		"previous_help":                "Go back to the previous song.",
		"stop_help":                    "Stop playback and clear the queue.",
		"queue_help":                   "Show the songs waiting in the queue.",
		"volume_help":                  "Set the playback volume (1-100).",
		"loop_help":                    "Toggle looping of the current song.",
		"help_help":                    "Show this help.",
	},
	"de": {
		"no_voice_channel":             "Du musst in einem Sprachkanal sein, um diesen Befehl zu benutzen.",
		"no_voice_client":              "Gerade wird nichts abgespielt.",
		"wrong_channel":                "Bitte benutze den Textkanal {channel}, der zum Sprachkanal gehört!",
		"song_added_to_queue":          "{username} hat einen Song zur Warteschlange hinzugefügt.",
		"playlist_load_prompt_spotify": "Das sieht nach einer Spotify-Playlist aus. Alle Titel laden? Reagiere mit ✅ für alles oder ❌ für nur den ersten Titel.",
		"playlist_load_prompt_youtube": "Das sieht nach einer YouTube-Playlist aus. Alle Titel laden? Reagiere mit ✅ für alles oder ❌ für nur diesen Titel.",
		"playlist_added_spotify":       "{username} hat eine Spotify-Playlist zur Warteschlange hinzugefügt.",
		"playlist_added_youtube":       "{username} hat eine YouTube-Playlist zur Warteschlange hinzugefügt.",
		"playlist_timeout":             "Keine Reaktion erhalten, nur der erste Titel wurde hinzugefügt.",
		"playback_error":               "Dieser Titel konnte nicht abgespielt werden.",
		"song_paused":                  "Wiedergabe pausiert.",
		"song_resumed":                 "Wiedergabe fortgesetzt.",
		"song_skipped":                 "Song übersprungen.",
		"playback_stopped_emoji":       "⏹️ Wiedergabe gestoppt.",
		"no_previous_song":             "Es gibt keinen vorherigen Song.",
		"queue_empty":                  "Die Warteschlange ist leer.",
		"volume_prompt":                "Benutzung: {prefix}volume <1-100>",
		"invalid_volume":               "Die Lautstärke muss zwischen 1 und 100 liegen.",
		"volume_set":                   "Lautstärke auf {volume}% gesetzt.",
		"loop_enabled":                 "Wiederholung aktiviert 🔁",
		"loop_disabled":                "Wiederholung deaktiviert.",
		"command_not_found":            "Unbekannter Befehl. Versuche {prefix}help.",
		"missing_argument":             "Dieser Befehl braucht ein Argument. Versuche {prefix}help.",
		"unexpected_error":             "Etwas ist schiefgelaufen.",
		"now_playing_title":            "Jetzt spielt 🎶",
		"now_playing_paused_title":     "⏸️ Jetzt spielt 🎶",
		"duration_field":               "Dauer",
		"progress_field":               "Fortschritt",
		"queue_title":                  "🎶 Warteschlange",
		"help_title":                   "Hilfe - Verfügbare Befehle",
		"play_help":                    "Spielt einen Song oder eine Playlist von einer URL oder Suchbegriffen ab.",
		"pause_help":                   "Pausiert den aktuellen Song.",
		"resume_help":                  "Setzt einen pausierten Song fort.",
		"skip_help":                    "Überspringt den aktuellen Song.",
		"previous_help":                "Springt zum vorherigen Song zurück.",
		"stop_help":                    "Stoppt die Wiedergabe und leert die Warteschlange.",
		"queue_help":                   "Zeigt die Songs in der Warteschlange an.",
		"volume_help":                  "Setzt die Wiedergabelautstärke (1-100).",
		"loop_help":                    "Schaltet die Wiederholung des aktuellen Songs um.",
		"help_help":                    "Zeigt diese Hilfe an.",
	},
}

// Languages returns the built-in language codes in sorted order.
func Languages() []string {
	return slices.Sorted(maps.Keys(builtinStrings))
}

// HasLanguage reports whether a built-in table exists for the language code.
func HasLanguage(code string) bool {
	_, ok := builtinStrings[code]
	return ok
}

// ForLanguage returns the string table for the given language code.
// Unknown codes fall back to English.
func ForLanguage(code string) Strings {
	table := make(map[string]string, len(builtinStrings["en"]))
	maps.Copy(table, builtinStrings["en"])
	if code != "" && code != "en" {
		maps.Copy(table, builtinStrings[code])
	}
	return Strings{table: table}
}

// LoadStrings builds the string table for code and overlays translations
// from the YAML file at path. The file maps language codes to key/value
// tables; only the entries for code (and "en", as fallback) are applied.
// A missing file is not an error.
func LoadStrings(path, code string) (Strings, error) {
	s := ForLanguage(code)
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return Strings{}, fmt.Errorf("config: open strings %q: %w", path, err)
	}
	defer f.Close()
	return loadStringsFromReader(f, code, s)
}

func loadStringsFromReader(r io.Reader, code string, base Strings) (Strings, error) {
	var overlay map[string]map[string]string
	dec := yaml.NewDecoder(r)
	if err := dec.Decode(&overlay); err != nil {
		return Strings{}, fmt.Errorf("config: decode strings yaml: %w", err)
	}
	maps.Copy(base.table, overlay["en"])
	if code != "" && code != "en" {
		maps.Copy(base.table, overlay[code])
	}
	return base, nil
}

// Get returns the string for key, or the key itself when no entry exists.
// Returning the key keeps a missing translation visible instead of silent.
func (s Strings) Get(key string) string {
	if v, ok := s.table[key]; ok {
		return v
	}
	return key
}

// Format returns the string for key with "{name}" placeholders substituted
// from args.
func (s Strings) Format(key string, args map[string]string) string {
	out := s.Get(key)
	for name, value := range args {
		out = strings.ReplaceAll(out, "{"+name+"}", value)
	}
	return out
}
