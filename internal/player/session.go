// Package player implements the per-guild playback engine: the pending
// queue, the playback history, the session state machine, and the live
// now-playing display. Resolution of queued references happens lazily, one
// track at a time, when a track reaches the front of the queue.
package player

import (
	"errors"
	"sync"

	"github.com/troubadourbot/troubadour/internal/resolver"
)

// State is the lifecycle state of a guild's playback session.
type State int

const (
	// StateIdle means nothing is queued or playing and no voice connection
	// is held.
	StateIdle State = iota

	// StateResolving means the next queue entry is being resolved into a
	// playable stream.
	StateResolving

	// StatePlaying means a track is streaming to the voice channel.
	StatePlaying

	// StatePaused means a track is loaded but suspended.
	StatePaused
)

// String returns the human-readable name of the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateResolving:
		return "resolving"
	case StatePlaying:
		return "playing"
	case StatePaused:
		return "paused"
	default:
		return "unknown"
	}
}

// QueueEntry is one pending item in a guild's queue: an unresolved track
// reference plus the text channel it was requested from. Origin is empty for
// entries re-queued by the previous command; notices for those fall back to
// the channel of the last explicit request.
type QueueEntry struct {
	Ref    resolver.TrackReference
	Origin string
}

// NowPlaying pairs the queue entry currently loaded with its resolved track.
type NowPlaying struct {
	Entry QueueEntry
	Track resolver.PlayableTrack
}

// MessageRef identifies a message the bot has sent.
type MessageRef struct {
	ChannelID string
	MessageID string
}

// ErrMessageGone is returned (possibly wrapped) by [Messenger]
// implementations when the target message no longer exists, e.g. because a
// moderator deleted the now-playing display.
var ErrMessageGone = errors.New("player: message gone")

var (
	// ErrNotPlaying is returned by operations that need an active track.
	ErrNotPlaying = errors.New("player: nothing is playing")

	// ErrNoHistory is returned by Previous when no track has finished yet.
	ErrNoHistory = errors.New("player: no previous track")

	// ErrVolumeRange is returned for volume values outside [1, 100].
	ErrVolumeRange = errors.New("player: volume out of range [1, 100]")

	// ErrNotConnected is returned by Enqueue before Connect has succeeded.
	ErrNotConnected = errors.New("player: no voice connection")
)

// Registry tracks one [Engine] per guild. Engines are created on demand via
// the factory and removed when their session is torn down.
//
// Registry is safe for concurrent use.
type Registry struct {
	mu      sync.Mutex
	engines map[string]*Engine
	factory func(guildID string) *Engine
}

// NewRegistry creates a Registry that builds engines with factory.
func NewRegistry(factory func(guildID string) *Engine) *Registry {
	return &Registry{
		engines: make(map[string]*Engine),
		factory: factory,
	}
}

// Get returns the engine for guildID, if one exists.
func (r *Registry) Get(guildID string) (*Engine, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.engines[guildID]
	return e, ok
}

// GetOrCreate returns the engine for guildID, creating it on first use.
func (r *Registry) GetOrCreate(guildID string) *Engine {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.engines[guildID]; ok {
		return e
	}
	e := r.factory(guildID)
	r.engines[guildID] = e
	return e
}

// Remove stops the engine for guildID and drops it from the registry.
func (r *Registry) Remove(guildID string) {
	r.mu.Lock()
	e, ok := r.engines[guildID]
	delete(r.engines, guildID)
	r.mu.Unlock()
	if ok {
		e.Stop()
	}
}

// Each calls fn for every registered engine. Used for shutdown.
func (r *Registry) Each(fn func(guildID string, e *Engine)) {
	r.mu.Lock()
	snapshot := make(map[string]*Engine, len(r.engines))
	for id, e := range r.engines {
		snapshot[id] = e
	}
	r.mu.Unlock()
	for id, e := range snapshot {
		fn(id, e)
	}
}
