// Package resolver turns track references (URLs or free-text queries) into
// playable streams. Queries go through a search backend and a streamability
// probe; Spotify references are translated into search queries because
// Spotify itself serves no streamable audio.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/antzucaro/matchr"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"github.com/troubadourbot/troubadour/internal/resilience"
)

// TrackReference identifies a track before resolution. It is either a URL
// (YouTube or Spotify) or free-text search terms.
type TrackReference string

// Kind classifies a [TrackReference] by its URL shape.
type Kind int

const (
	KindQuery Kind = iota
	KindYouTubeTrack
	KindYouTubePlaylist
	KindSpotifyTrack
	KindSpotifyPlaylist
)

// PlayableTrack is a fully resolved track ready for the audio layer.
type PlayableTrack struct {
	// StreamURL is the direct media URL handed to the transcoder.
	StreamURL string

	// PageURL is the canonical watch page the stream was resolved from.
	PageURL string

	Title     string
	Duration  time.Duration
	Thumbnail string
}

// ErrNoPlayableStream is returned when every search variant and candidate
// was tried and none produced a streamable source (e.g. all hits are DRM
// protected or region locked).
var ErrNoPlayableStream = errors.New("resolver: no playable stream found")

// ErrIsPlaylist is returned by [Adapter.Resolve] for playlist references.
// Playlists must be expanded into individual track references first.
var ErrIsPlaylist = errors.New("resolver: reference is a playlist")

// errNoCatalog is returned when a Spotify reference arrives but no catalog
// client is configured.
var errNoCatalog = errors.New("resolver: no spotify catalog configured")

// queryVariants are appended to free-text queries, tried in order. The
// suffixed forms bias search towards full songs over music videos and live
// cuts; the bare query is the last resort.
var queryVariants = []string{" official audio", " lyrics", " audio", ""}

// searchLimit bounds how many candidates are fetched per search variant.
const searchLimit = 5

// probeLimit bounds how many candidates per variant are probed for
// streamability before moving to the next variant.
const probeLimit = 3

// SearchBackend finds candidate watch pages for a text query.
type SearchBackend interface {
	Search(ctx context.Context, query string, limit int) ([]Candidate, error)
}

// Candidate is a single search hit.
type Candidate struct {
	URL      string
	Title    string
	Uploader string
	Duration time.Duration
}

// StreamProber resolves a watch page into a direct media stream, verifying
// that the source is actually streamable.
type StreamProber interface {
	Probe(ctx context.Context, pageURL string) (PlayableTrack, error)
}

// PlaylistExpander lists the individual watch pages of a playlist URL.
type PlaylistExpander interface {
	Expand(ctx context.Context, playlistURL string, limit int) ([]string, error)
}

// SpotifyCatalog provides track metadata for Spotify references.
type SpotifyCatalog interface {
	// TrackMeta returns artist and title for a Spotify track URL.
	TrackMeta(ctx context.Context, trackURL string) (TrackMeta, error)

	// PlaylistTracks returns the metadata of every track in a Spotify
	// playlist, following pagination.
	PlaylistTracks(ctx context.Context, playlistURL string) ([]TrackMeta, error)
}

// TrackMeta is the catalog metadata used to derive a search query.
type TrackMeta struct {
	Artist string
	Title  string
}

// Query returns the "artist - title" search terms for the track.
func (m TrackMeta) Query() string {
	if m.Artist == "" {
		return m.Title
	}
	return m.Artist + " - " + m.Title
}

// Adapter resolves track references using a search backend, a streamability
// probe, and an optional Spotify catalog. Successful query resolutions are
// cached (query text to watch page) so repeated requests skip the search;
// failures are never cached because they are often transient.
type Adapter struct {
	search   SearchBackend
	prober   StreamProber
	expander PlaylistExpander
	catalog  SpotifyCatalog

	limiter *rate.Limiter
	breaker *resilience.Breaker
	group   singleflight.Group

	mu    sync.RWMutex
	cache map[string]string // normalized query → page URL
}

// Options configures an [Adapter]. Search and Prober are required; Expander
// and Catalog may be nil when playlist or Spotify support is not wired.
type Options struct {
	Search   SearchBackend
	Prober   StreamProber
	Expander PlaylistExpander
	Catalog  SpotifyCatalog

	// SearchesPerSecond rate-limits calls to the search backend.
	// Zero means 2 per second.
	SearchesPerSecond float64
}

// New creates an Adapter from opts.
func New(opts Options) *Adapter {
	rps := opts.SearchesPerSecond
	if rps <= 0 {
		rps = 2
	}
	return &Adapter{
		search:   opts.Search,
		prober:   opts.Prober,
		expander: opts.Expander,
		catalog:  opts.Catalog,
		limiter:  rate.NewLimiter(rate.Limit(rps), 1),
		breaker:  resilience.NewBreaker("track-search", resilience.Settings{}),
		cache:    make(map[string]string),
	}
}

// Resolve turns ref into a playable track. Playlist references are rejected
// with [ErrIsPlaylist]; expand them first with [Adapter.ExpandPlaylist].
func (a *Adapter) Resolve(ctx context.Context, ref TrackReference) (PlayableTrack, error) {
	switch ref.Kind() {
	case KindYouTubePlaylist, KindSpotifyPlaylist:
		return PlayableTrack{}, ErrIsPlaylist
	case KindYouTubeTrack:
		return a.prober.Probe(ctx, string(ref))
	case KindSpotifyTrack:
		if a.catalog == nil {
			return PlayableTrack{}, errNoCatalog
		}
		meta, err := a.catalog.TrackMeta(ctx, string(ref))
		if err != nil {
			return PlayableTrack{}, fmt.Errorf("resolver: spotify track meta: %w", err)
		}
		return a.resolveQuery(ctx, meta.Query())
	default:
		return a.resolveQuery(ctx, string(ref))
	}
}

// ExpandPlaylist turns a playlist reference into individual track
// references, preserving playlist order. The tracks themselves stay
// unresolved; they are looked up lazily when they reach the front of the
// queue.
func (a *Adapter) ExpandPlaylist(ctx context.Context, ref TrackReference) ([]TrackReference, error) {
	switch ref.Kind() {
	case KindSpotifyPlaylist:
		if a.catalog == nil {
			return nil, errNoCatalog
		}
		metas, err := a.catalog.PlaylistTracks(ctx, string(ref))
		if err != nil {
			return nil, fmt.Errorf("resolver: spotify playlist: %w", err)
		}
		refs := make([]TrackReference, 0, len(metas))
		for _, m := range metas {
			refs = append(refs, TrackReference(m.Query()))
		}
		return refs, nil
	case KindYouTubePlaylist:
		if a.expander == nil {
			return nil, fmt.Errorf("resolver: no playlist expander configured")
		}
		urls, err := a.expander.Expand(ctx, string(ref), 0)
		if err != nil {
			return nil, fmt.Errorf("resolver: youtube playlist: %w", err)
		}
		refs := make([]TrackReference, 0, len(urls))
		for _, u := range urls {
			refs = append(refs, TrackReference(u))
		}
		return refs, nil
	default:
		return nil, fmt.Errorf("resolver: %q is not a playlist reference", ref)
	}
}

// FirstTrack returns a reference for only the first entry of a playlist, or
// the playlist's underlying single track for YouTube watch URLs that carry a
// list parameter.
func (a *Adapter) FirstTrack(ctx context.Context, ref TrackReference) (TrackReference, error) {
	switch ref.Kind() {
	case KindYouTubePlaylist:
		// A watch URL with a list parameter still names one video.
		if id := extractVideoID(string(ref)); id != "" {
			return TrackReference("https://www.youtube.com/watch?v=" + id), nil
		}
		refs, err := a.ExpandPlaylist(ctx, ref)
		if err != nil {
			return "", err
		}
		if len(refs) == 0 {
			return "", ErrNoPlayableStream
		}
		return refs[0], nil
	case KindSpotifyPlaylist:
		refs, err := a.ExpandPlaylist(ctx, ref)
		if err != nil {
			return "", err
		}
		if len(refs) == 0 {
			return "", ErrNoPlayableStream
		}
		return refs[0], nil
	default:
		return ref, nil
	}
}

// resolveQuery resolves free-text search terms into a playable track,
// trying each query variant in order and probing the best-matching
// candidates. Concurrent resolutions of the same query are collapsed into
// one search.
func (a *Adapter) resolveQuery(ctx context.Context, query string) (PlayableTrack, error) {
	// A cached page URL skips the search entirely. The probe still runs,
	// because stream URLs expire.
	if pageURL, ok := a.cached(query); ok {
		track, err := a.prober.Probe(ctx, pageURL)
		if err == nil {
			return track, nil
		}
		slog.Debug("cached page no longer streamable, re-searching",
			"query", query, "page", pageURL, "err", err)
		a.uncache(query)
	}

	v, err, _ := a.group.Do(query, func() (any, error) {
		return a.searchAndProbe(ctx, query)
	})
	if err != nil {
		return PlayableTrack{}, err
	}
	return v.(PlayableTrack), nil
}

func (a *Adapter) searchAndProbe(ctx context.Context, query string) (PlayableTrack, error) {
	for _, suffix := range queryVariants {
		variant := query + suffix

		if err := a.limiter.Wait(ctx); err != nil {
			return PlayableTrack{}, err
		}
		var candidates []Candidate
		err := a.breaker.Do(func() error {
			var serr error
			candidates, serr = a.search.Search(ctx, variant, searchLimit)
			return serr
		})
		if errors.Is(err, resilience.ErrBreakerOpen) {
			// The backend is struggling; further variants would be
			// rejected too.
			return PlayableTrack{}, fmt.Errorf("%w: %q", ErrNoPlayableStream, query)
		}
		if err != nil {
			slog.Warn("search variant failed", "query", variant, "err", err)
			continue
		}
		rankCandidates(query, candidates)

		probed := 0
		for _, c := range candidates {
			if probed >= probeLimit {
				break
			}
			probed++
			track, err := a.prober.Probe(ctx, c.URL)
			if err != nil {
				slog.Debug("candidate not streamable", "page", c.URL, "err", err)
				continue
			}
			a.store(query, track.PageURL)
			return track, nil
		}
	}
	return PlayableTrack{}, fmt.Errorf("%w: %q", ErrNoPlayableStream, query)
}

// rankCandidates sorts candidates in place by title similarity to the
// original query, best match first.
func rankCandidates(query string, candidates []Candidate) {
	scores := make([]float64, len(candidates))
	for i, c := range candidates {
		scores[i] = matchr.JaroWinkler(query, c.Title, false)
	}
	// Insertion sort keeps the original order for equal scores.
	for i := 1; i < len(scores); i++ {
		for j := i; j > 0 && scores[j] > scores[j-1]; j-- {
			scores[j], scores[j-1] = scores[j-1], scores[j]
			candidates[j], candidates[j-1] = candidates[j-1], candidates[j]
		}
	}
}

func (a *Adapter) cached(query string) (string, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	pageURL, ok := a.cache[query]
	return pageURL, ok
}

func (a *Adapter) store(query, pageURL string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.cache[query] = pageURL
}

func (a *Adapter) uncache(query string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.cache, query)
}
