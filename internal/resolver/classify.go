package resolver

import (
	"regexp"
	"strings"
)

var (
	videoIDRegex = regexp.MustCompile(`[?&]v=([A-Za-z0-9_-]{11})`)
	listIDRegex  = regexp.MustCompile(`[?&]list=([A-Za-z0-9_-]+)`)
)

// Kind classifies the reference by URL shape. Anything that does not look
// like a URL is a free-text query. URLs that are neither Spotify nor a
// playlist are treated as direct track pages and probed as-is.
func (r TrackReference) Kind() Kind {
	s := strings.TrimSpace(string(r))
	if !isURL(s) {
		return KindQuery
	}
	low := strings.ToLower(s)
	switch {
	case strings.Contains(low, "spotify.com/playlist/"):
		return KindSpotifyPlaylist
	case strings.Contains(low, "spotify.com/track/"):
		return KindSpotifyTrack
	case strings.Contains(low, "/playlist?") || listIDRegex.MatchString(s):
		return KindYouTubePlaylist
	default:
		return KindYouTubeTrack
	}
}

func isURL(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://") ||
		strings.HasPrefix(s, "www.")
}

// extractVideoID extracts the video ID from a YouTube watch, share, or
// shorts URL. It returns "" when the URL carries no recognisable ID.
func extractVideoID(u string) string {
	if m := videoIDRegex.FindStringSubmatch(u); len(m) > 1 {
		return m[1]
	}
	for _, marker := range []string{"youtu.be/", "shorts/"} {
		if _, rest, ok := strings.Cut(u, marker); ok {
			id, _, _ := strings.Cut(rest, "?")
			if id != "" {
				return id
			}
		}
	}
	return ""
}
