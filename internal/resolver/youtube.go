package resolver

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/lrstanley/go-ytdlp"
	"github.com/ppalone/ytsearch"
	"github.com/raitonoberu/ytmusic"
)

// audioFormat is the yt-dlp format selector used everywhere a stream is
// resolved. Free audio-only formats first, whole file as last resort.
const audioFormat = "bestaudio[ext=webm]/bestaudio[ext=m4a]/bestaudio/best"

// YouTubeSearch is a [SearchBackend] that queries YouTube Music and regular
// YouTube search in parallel and merges the hits, music results first.
// When both APIs come back empty (they are unofficial and occasionally
// break), it falls back to a yt-dlp ytsearch run.
type YouTubeSearch struct{}

// NewYouTubeSearch creates a YouTube search backend.
func NewYouTubeSearch() *YouTubeSearch {
	return &YouTubeSearch{}
}

// Search implements [SearchBackend].
func (y *YouTubeSearch) Search(ctx context.Context, query string, limit int) ([]Candidate, error) {
	var mu sync.Mutex
	var ytm, yt []Candidate
	var wg sync.WaitGroup
	seen := make(map[string]bool)

	wg.Add(2)
	go func() {
		defer wg.Done()
		s := ytmusic.TrackSearch(query)
		r, err := s.Next()
		if err != nil {
			return
		}
		for _, v := range r.Tracks {
			if v.VideoID == "" {
				continue
			}
			uploader := ""
			if len(v.Artists) > 0 {
				uploader = v.Artists[0].Name
			}
			mu.Lock()
			if !seen[v.VideoID] {
				seen[v.VideoID] = true
				ytm = append(ytm, Candidate{
					URL:      "https://www.youtube.com/watch?v=" + v.VideoID,
					Title:    v.Title,
					Uploader: uploader,
				})
			}
			mu.Unlock()
		}
	}()
	go func() {
		defer wg.Done()
		c := ytsearch.NewClient(nil)
		r, err := c.Search(ctx, query)
		if err != nil {
			return
		}
		for _, v := range r.Results {
			mu.Lock()
			if !seen[v.VideoID] {
				seen[v.VideoID] = true
				yt = append(yt, Candidate{
					URL:   "https://www.youtube.com/watch?v=" + v.VideoID,
					Title: v.Title,
				})
			}
			mu.Unlock()
		}
	}()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(3 * time.Second):
	}

	mu.Lock()
	merged := append(append([]Candidate{}, ytm...), yt...)
	mu.Unlock()

	if len(merged) == 0 {
		return ytdlpSearch(ctx, query, limit)
	}
	if limit > 0 && len(merged) > limit {
		merged = merged[:limit]
	}
	return merged, nil
}

// newYtdlp returns a yt-dlp command with quiet output and an optional proxy
// from the environment.
func newYtdlp() *ytdlp.Command {
	cmd := ytdlp.New().
		Quiet().
		NoWarnings()
	if proxy := os.Getenv("YOUTUBE_PROXY"); proxy != "" {
		cmd.Proxy(proxy)
	}
	return cmd
}

// ytdlpArgs returns the flags shared by all yt-dlp invocations.
func ytdlpArgs() []string {
	return []string{
		"--no-check-certificates",
		"--extractor-args", "youtube:player_client=android,web",
		"--socket-timeout", "30",
		"--retries", "10",
	}
}

// ytdlpSearch runs a yt-dlp ytsearch as a fallback search backend.
func ytdlpSearch(ctx context.Context, query string, limit int) ([]Candidate, error) {
	if limit <= 0 {
		limit = searchLimit
	}
	res, err := newYtdlp().
		FlatPlaylist().
		Print("%(url)s\t%(title)s\t%(uploader)s\t%(duration)s").
		PlaylistItems(fmt.Sprintf("1-%d", limit)).
		IgnoreConfig().
		Run(ctx, append(ytdlpArgs(), fmt.Sprintf("ytsearch%d:%s", limit, query))...)
	if err != nil {
		return nil, fmt.Errorf("resolver: yt-dlp search: %w", err)
	}

	var out []Candidate
	for _, line := range strings.Split(strings.TrimSpace(res.Stdout), "\n") {
		parts := strings.Split(line, "\t")
		if len(parts) < 4 {
			continue
		}
		if extractVideoID(parts[0]) == "" {
			continue
		}
		d, _ := time.ParseDuration(parts[3] + "s")
		out = append(out, Candidate{URL: parts[0], Title: parts[1], Uploader: parts[2], Duration: d})
	}
	return out, nil
}

// YtdlpProber is a [StreamProber] backed by yt-dlp. It resolves the direct
// media URL without downloading and rejects DRM-protected sources.
type YtdlpProber struct{}

// NewYtdlpProber creates the yt-dlp streamability prober.
func NewYtdlpProber() *YtdlpProber {
	return &YtdlpProber{}
}

// Probe implements [StreamProber].
func (p *YtdlpProber) Probe(ctx context.Context, pageURL string) (PlayableTrack, error) {
	pageURL = strings.Replace(pageURL, "music.youtube.com", "www.youtube.com", 1)

	args := append(ytdlpArgs(),
		"--no-playlist",
		"-f", audioFormat,
		"--skip-download",
		pageURL,
	)
	res, err := newYtdlp().
		Print("%(url)s\t%(title)s\t%(duration)s\t%(webpage_url)s\t%(thumbnail)s").
		NoSimulate().
		IgnoreConfig().
		Run(ctx, args...)
	if err != nil {
		if res != nil && strings.Contains(strings.ToLower(res.Stderr), "drm") {
			return PlayableTrack{}, fmt.Errorf("%w: %s is DRM protected", ErrNoPlayableStream, pageURL)
		}
		return PlayableTrack{}, fmt.Errorf("resolver: yt-dlp probe %q: %w", pageURL, err)
	}

	for _, line := range strings.Split(strings.TrimSpace(res.Stdout), "\n") {
		parts := strings.Split(line, "\t")
		if len(parts) < 5 || parts[0] == "" {
			continue
		}
		d, _ := time.ParseDuration(parts[2] + "s")
		return PlayableTrack{
			StreamURL: parts[0],
			PageURL:   parts[3],
			Title:     parts[1],
			Duration:  d,
			Thumbnail: parts[4],
		}, nil
	}
	return PlayableTrack{}, fmt.Errorf("%w: %s yielded no stream", ErrNoPlayableStream, pageURL)
}

// YtdlpExpander is a [PlaylistExpander] backed by a yt-dlp flat playlist
// listing. Entries are returned in playlist order without resolving them.
type YtdlpExpander struct{}

// NewYtdlpExpander creates the yt-dlp playlist expander.
func NewYtdlpExpander() *YtdlpExpander {
	return &YtdlpExpander{}
}

// Expand implements [PlaylistExpander]. A limit of 0 lists the whole playlist.
func (e *YtdlpExpander) Expand(ctx context.Context, playlistURL string, limit int) ([]string, error) {
	cmd := newYtdlp().
		FlatPlaylist().
		Print("%(url)s").
		IgnoreConfig()
	if limit > 0 {
		cmd = cmd.PlaylistItems(fmt.Sprintf("1-%d", limit))
	}
	res, err := cmd.Run(ctx, append(ytdlpArgs(), "--yes-playlist", playlistURL)...)
	if err != nil {
		return nil, fmt.Errorf("resolver: yt-dlp playlist %q: %w", playlistURL, err)
	}

	var urls []string
	for _, line := range strings.Split(strings.TrimSpace(res.Stdout), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || extractVideoID(line) == "" {
			continue
		}
		urls = append(urls, line)
	}
	return urls, nil
}
