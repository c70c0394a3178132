// Package audio defines the interfaces for voice-channel connectivity and
// track playback.
//
// The two primary abstractions are:
//
//   - [Platform] — connects to a voice channel and returns a [Connection].
//   - [Connection] — represents an active session on that channel, playing one
//     track at a time with pause, resume, and volume control.
//
// Implementations of these interfaces are provided by platform-specific
// adapter packages (e.g., audio/discord). The interfaces are intentionally
// narrow to keep the playback engine decoupled from provider details.
//
// This package lives under pkg/ because external code (third-party platform
// adapters) is expected to implement [Platform] and [Connection].
package audio

import (
	"context"
)

// Connection represents an active session on a voice channel.
//
// A Connection is obtained by calling [Platform.Connect] and remains valid
// until [Connection.Disconnect] is called.
//
// Implementations must be safe for concurrent use.
type Connection interface {
	// Play starts streaming the media at streamURL, replacing any track that
	// is currently playing. volume is a percentage in [1, 100].
	//
	// onComplete is invoked exactly once when playback ends for any reason —
	// natural end of the stream, a transcoder error, or [Connection.Stop] —
	// but not when Play is called again to replace the track. It is always
	// invoked from the playback goroutine, never synchronously from Play or
	// Stop, so callers may hold locks while calling either.
	Play(streamURL string, volume int, onComplete func()) error

	// Pause suspends playback. No-op when nothing is playing or already paused.
	Pause()

	// Resume continues paused playback. No-op when not paused.
	Resume()

	// Stop ends the current track, triggering its onComplete callback.
	// No-op when nothing is playing.
	Stop()

	// SetVolume adjusts the volume of the current and subsequent tracks.
	// volume is a percentage in [1, 100].
	SetVolume(volume int)

	// Playing reports whether a track is currently playing (not paused).
	Playing() bool

	// Disconnect stops playback and leaves the voice channel. It is safe to
	// call Disconnect more than once; subsequent calls are no-ops and return nil.
	Disconnect() error
}

// Platform is the entry point for a voice-channel provider.
// Implementations wrap provider-specific SDKs and expose a uniform
// [Connection] abstraction.
//
// Implementations must be safe for concurrent use.
type Platform interface {
	// Connect joins the voice channel identified by guildID and channelID and
	// returns an active [Connection]. The supplied ctx governs the lifetime of
	// the connection attempt only; once connected, the Connection remains
	// alive until [Connection.Disconnect] is called explicitly.
	Connect(ctx context.Context, guildID, channelID string) (Connection, error)
}
