package resolver

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/zmb3/spotify/v2"
	spotifyauth "github.com/zmb3/spotify/v2/auth"
	"golang.org/x/oauth2/clientcredentials"
)

// SpotifyClient is a [SpotifyCatalog] backed by the Spotify Web API using
// the client-credentials flow. It only reads public catalog metadata; the
// audio itself always comes from the search backend.
type SpotifyClient struct {
	client *spotify.Client
}

// NewSpotifyClient authenticates against the Spotify API with the given
// application credentials.
func NewSpotifyClient(ctx context.Context, clientID, clientSecret string) (*SpotifyClient, error) {
	cfg := &clientcredentials.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		TokenURL:     spotifyauth.TokenURL,
	}
	token, err := cfg.Token(ctx)
	if err != nil {
		return nil, fmt.Errorf("resolver: spotify auth: %w", err)
	}
	httpClient := spotifyauth.New().Client(ctx, token)
	return &SpotifyClient{client: spotify.New(httpClient)}, nil
}

// TrackMeta implements [SpotifyCatalog].
func (c *SpotifyClient) TrackMeta(ctx context.Context, trackURL string) (TrackMeta, error) {
	id, err := spotifyID(trackURL, "track")
	if err != nil {
		return TrackMeta{}, err
	}
	track, err := c.client.GetTrack(ctx, spotify.ID(id))
	if err != nil {
		return TrackMeta{}, fmt.Errorf("resolver: spotify track %s: %w", id, err)
	}
	return fullTrackMeta(track), nil
}

// PlaylistTracks implements [SpotifyCatalog], following pagination until
// the playlist is exhausted.
func (c *SpotifyClient) PlaylistTracks(ctx context.Context, playlistURL string) ([]TrackMeta, error) {
	id, err := spotifyID(playlistURL, "playlist")
	if err != nil {
		return nil, err
	}
	page, err := c.client.GetPlaylistItems(ctx, spotify.ID(id))
	if err != nil {
		return nil, fmt.Errorf("resolver: spotify playlist %s: %w", id, err)
	}

	var metas []TrackMeta
	for {
		for _, item := range page.Items {
			// Episodes and removed tracks come back with a nil track.
			if item.Track.Track == nil {
				continue
			}
			metas = append(metas, fullTrackMeta(item.Track.Track))
		}
		err = c.client.NextPage(ctx, page)
		if errors.Is(err, spotify.ErrNoMorePages) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("resolver: spotify playlist %s page: %w", id, err)
		}
	}
	return metas, nil
}

func fullTrackMeta(t *spotify.FullTrack) TrackMeta {
	artist := ""
	if len(t.Artists) > 0 {
		artist = t.Artists[0].Name
	}
	return TrackMeta{Artist: artist, Title: t.Name}
}

// spotifyID extracts the base-62 ID following the given path segment from an
// open.spotify.com URL, dropping any query string.
func spotifyID(u, segment string) (string, error) {
	_, rest, ok := strings.Cut(u, "/"+segment+"/")
	if !ok {
		return "", fmt.Errorf("resolver: %q is not a spotify %s URL", u, segment)
	}
	id, _, _ := strings.Cut(rest, "?")
	id, _, _ = strings.Cut(id, "/")
	if id == "" {
		return "", fmt.Errorf("resolver: %q carries no %s id", u, segment)
	}
	return id, nil
}
