package player

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/troubadourbot/troubadour/internal/config"
	"github.com/troubadourbot/troubadour/internal/observe"
	"github.com/troubadourbot/troubadour/internal/resolver"
	"github.com/troubadourbot/troubadour/pkg/audio"
)

// resolveTimeout bounds a single lazy resolution (search plus probe).
const resolveTimeout = 90 * time.Second

// Resolver is the subset of the resolver the engine needs: one reference in,
// one playable track out. Playlist expansion happens at the command surface
// before entries are queued.
type Resolver interface {
	Resolve(ctx context.Context, ref resolver.TrackReference) (resolver.PlayableTrack, error)
}

// Options configures an [Engine].
type Options struct {
	GuildID   string
	Resolver  Resolver
	Voice     audio.Platform
	Messenger Messenger
	Strings   config.Strings
	Footer    string

	// Volume is the initial playback volume in [1, 100].
	Volume int

	// PersistVolume, when non-nil, is called after every successful volume
	// change so the value survives restarts.
	PersistVolume func(volume int) error

	// Metrics may be nil, disabling instrumentation.
	Metrics *observe.Metrics
}

// Engine is the playback state machine for one guild. All methods serialise
// on an internal mutex, so callers observe queue transitions atomically;
// resolution runs on a background goroutine and re-enters the engine when
// it finishes. A generation counter guards against resolutions and track
// completions that finish after the session was stopped.
type Engine struct {
	guildID       string
	res           Resolver
	voice         audio.Platform
	msgr          Messenger
	persistVolume func(int) error
	metrics       *observe.Metrics

	mu         sync.Mutex
	strs       config.Strings
	footer     string
	state      State
	pending    []QueueEntry
	history    []QueueEntry
	current    *NowPlaying
	resolving  *QueueEntry
	looping    bool
	volume     int
	conn       audio.Connection
	display    *MessageRef
	reporter   *ProgressReporter
	lastOrigin string
	gen        uint64

	// reporterInterval overrides the progress update cadence in tests.
	reporterInterval time.Duration
}

// New creates an idle engine for one guild.
func New(opts Options) *Engine {
	vol := opts.Volume
	if vol < 1 || vol > 100 {
		vol = 50
	}
	return &Engine{
		guildID:       opts.GuildID,
		res:           opts.Resolver,
		voice:         opts.Voice,
		msgr:          opts.Messenger,
		strs:          opts.Strings,
		footer:        opts.Footer,
		persistVolume: opts.PersistVolume,
		metrics:       opts.Metrics,
		volume:        vol,
		state:         StateIdle,
	}
}

// Connect ensures the engine holds a voice connection. When one already
// exists it is reused regardless of channel, mirroring how the session
// follows the channel it first joined.
func (e *Engine) Connect(ctx context.Context, channelID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.conn != nil {
		return nil
	}
	conn, err := e.voice.Connect(ctx, e.guildID, channelID)
	if err != nil {
		return err
	}
	e.conn = conn
	if e.metrics != nil {
		e.metrics.AddActiveSessions(context.Background(), 1)
	}
	return nil
}

// Enqueue appends entries to the pending queue in order. When the engine is
// idle, playback of the first entry starts immediately. Requires a prior
// successful [Engine.Connect].
func (e *Engine) Enqueue(entries ...QueueEntry) error {
	if len(entries) == 0 {
		return nil
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.conn == nil {
		return ErrNotConnected
	}
	e.pending = append(e.pending, entries...)
	for _, entry := range entries {
		if entry.Origin != "" {
			e.lastOrigin = entry.Origin
		}
	}
	if e.metrics != nil {
		e.metrics.AddQueueLength(context.Background(), int64(len(entries)))
	}
	if e.state == StateIdle {
		e.advanceLocked()
	}
	return nil
}

// Skip ends the current track; the completion callback advances the queue.
func (e *Engine) Skip() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state != StatePlaying {
		return ErrNotPlaying
	}
	e.conn.Stop()
	return nil
}

// Previous rewinds to the most recently finished track. The current track,
// if any, is pushed back onto the front of the pending queue, so skipping
// forward again replays it; a rewind directly followed by an advance is a
// no-op on queue contents.
func (e *Engine) Previous() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.history) == 0 {
		return ErrNoHistory
	}
	if e.conn == nil {
		return ErrNotConnected
	}
	prev := e.history[len(e.history)-1]
	e.history = e.history[:len(e.history)-1]

	// Invalidate the stopped track's completion callback and any in-flight
	// resolution; the rewind schedules the next track itself.
	e.gen++

	switch {
	case e.current != nil:
		e.pending = append([]QueueEntry{{Ref: e.current.Entry.Ref}}, e.pending...)
		e.current = nil
		if e.metrics != nil {
			e.metrics.AddQueueLength(context.Background(), 1)
		}
		e.conn.Stop()
	case e.resolving != nil:
		// A rewind caught the session mid-resolution. The entry being
		// resolved goes back to the front so skipping forward replays it.
		e.pending = append([]QueueEntry{*e.resolving}, e.pending...)
		if e.metrics != nil {
			e.metrics.AddQueueLength(context.Background(), 1)
		}
	}

	e.state = StateResolving
	e.resolving = &prev
	go e.resolveAndPlay(e.gen, prev)
	return nil
}

// Pause suspends playback. The progress clock freezes with it.
func (e *Engine) Pause() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state != StatePlaying {
		return ErrNotPlaying
	}
	e.conn.Pause()
	e.state = StatePaused
	if e.reporter != nil {
		e.reporter.SetPaused(true)
	}
	return nil
}

// Resume continues paused playback.
func (e *Engine) Resume() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state != StatePaused {
		return ErrNotPlaying
	}
	e.conn.Resume()
	e.state = StatePlaying
	if e.reporter != nil {
		e.reporter.SetPaused(false)
	}
	return nil
}

// PauseToggle pauses a playing track or resumes a paused one, reporting the
// state it ended up in.
func (e *Engine) PauseToggle() (paused bool, err error) {
	e.mu.Lock()
	state := e.state
	e.mu.Unlock()
	switch state {
	case StatePlaying:
		return true, e.Pause()
	case StatePaused:
		return false, e.Resume()
	default:
		return false, ErrNotPlaying
	}
}

// Stop tears the session down: both queues are cleared, playback ends, the
// voice connection is released, and the now-playing display is deleted.
// In-flight resolutions are invalidated and their results discarded.
func (e *Engine) Stop() {
	e.mu.Lock()
	e.gen++
	if e.metrics != nil && len(e.pending) > 0 {
		e.metrics.AddQueueLength(context.Background(), -int64(len(e.pending)))
	}
	e.pending = nil
	e.history = nil
	e.current = nil
	e.resolving = nil
	if e.reporter != nil {
		e.reporter.Stop()
		e.reporter = nil
	}
	display := e.display
	e.display = nil
	e.releaseVoiceLocked()
	e.state = StateIdle
	e.mu.Unlock()

	if display != nil {
		if err := e.msgr.DeleteMessage(*display); err != nil && !errors.Is(err, ErrMessageGone) {
			slog.Warn("failed to delete now-playing message", "guild", e.guildID, "err", err)
		}
	}
}

// SetLooping turns loop mode on or off.
func (e *Engine) SetLooping(on bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.looping = on
}

// ToggleLooping flips loop mode and returns the new value.
func (e *Engine) ToggleLooping() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.looping = !e.looping
	return e.looping
}

// Looping reports whether loop mode is on.
func (e *Engine) Looping() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.looping
}

// SetVolume validates and applies a new playback volume, persisting it when
// a persister is configured. Values outside [1, 100] are rejected with
// [ErrVolumeRange] and leave the current volume untouched.
func (e *Engine) SetVolume(volume int) error {
	if volume < 1 || volume > 100 {
		return ErrVolumeRange
	}
	e.mu.Lock()
	e.volume = volume
	conn := e.conn
	e.mu.Unlock()
	if conn != nil {
		conn.SetVolume(volume)
	}
	if e.persistVolume != nil {
		if err := e.persistVolume(volume); err != nil {
			slog.Warn("failed to persist volume", "guild", e.guildID, "volume", volume, "err", err)
		}
	}
	return nil
}

// ApplyVolume applies a volume change coming from configuration reload,
// without writing it back to the config file.
func (e *Engine) ApplyVolume(volume int) {
	if volume < 1 || volume > 100 {
		return
	}
	e.mu.Lock()
	e.volume = volume
	conn := e.conn
	e.mu.Unlock()
	if conn != nil {
		conn.SetVolume(volume)
	}
}

// SetStrings swaps the message strings and embed footer, for configuration
// reload.
func (e *Engine) SetStrings(strs config.Strings, footer string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.strs = strs
	e.footer = footer
}

// Volume returns the current playback volume.
func (e *Engine) Volume() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.volume
}

// State returns the current session state.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Queue returns a copy of the pending queue in play order.
func (e *Engine) Queue() []QueueEntry {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]QueueEntry(nil), e.pending...)
}

// Current returns the resolved track that is loaded right now.
func (e *Engine) Current() (NowPlaying, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.current == nil {
		return NowPlaying{}, false
	}
	return *e.current, true
}

// DisplayRef returns the message reference of the live now-playing display.
func (e *Engine) DisplayRef() (MessageRef, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.display == nil {
		return MessageRef{}, false
	}
	return *e.display, true
}

// advanceLocked moves the session to the next track. With looping enabled
// the current track is re-inserted at the front of the queue first, so it
// plays again immediately. The previous current entry is pushed onto the
// history. An empty queue drains the session back to idle, releasing the
// voice connection. Callers must hold e.mu.
func (e *Engine) advanceLocked() {
	if e.looping && e.current != nil {
		e.pending = append([]QueueEntry{{Ref: e.current.Entry.Ref, Origin: e.current.Entry.Origin}}, e.pending...)
		if e.metrics != nil {
			e.metrics.AddQueueLength(context.Background(), 1)
		}
	}
	if e.current != nil {
		e.history = append(e.history, e.current.Entry)
		e.current = nil
	}
	if len(e.pending) == 0 {
		e.drainLocked()
		return
	}
	entry := e.pending[0]
	e.pending = e.pending[1:]
	if e.metrics != nil {
		e.metrics.AddQueueLength(context.Background(), -1)
	}
	e.state = StateResolving
	e.resolving = &entry
	go e.resolveAndPlay(e.gen, entry)
}

// drainLocked returns the session to idle after the queue ran out. The
// now-playing message is left in place; only stop deletes it.
func (e *Engine) drainLocked() {
	if e.reporter != nil {
		e.reporter.Stop()
		e.reporter = nil
	}
	e.releaseVoiceLocked()
	e.state = StateIdle
}

func (e *Engine) releaseVoiceLocked() {
	if e.conn == nil {
		return
	}
	if err := e.conn.Disconnect(); err != nil {
		slog.Warn("voice disconnect failed", "guild", e.guildID, "err", err)
	}
	e.conn = nil
	if e.metrics != nil {
		e.metrics.AddActiveSessions(context.Background(), -1)
	}
}

// resolveAndPlay resolves entry on a background goroutine and, if the
// session has not moved on, starts playback. It runs outside the engine
// lock; gen detects a stop or rewind that happened mid-resolution.
func (e *Engine) resolveAndPlay(gen uint64, entry QueueEntry) {
	ctx, cancel := context.WithTimeout(context.Background(), resolveTimeout)
	defer cancel()
	ctx, span := observe.StartSpan(ctx, "resolve_track")
	defer span.End()

	start := time.Now()
	track, err := e.res.Resolve(ctx, entry.Ref)
	if e.metrics != nil {
		e.metrics.RecordResolveDuration(context.Background(), time.Since(start))
	}

	e.mu.Lock()
	if gen != e.gen {
		// Session was stopped or rewound while resolving; discard the result.
		e.mu.Unlock()
		return
	}
	e.resolving = nil

	if err != nil {
		slog.Warn("track resolution failed", "guild", e.guildID, "ref", string(entry.Ref), "err", err)
		if e.metrics != nil {
			e.metrics.RecordResolutionFailure(context.Background(), e.guildID)
		}
		notice := e.noticeTargetLocked(entry.Origin)
		content := e.strs.Get("playback_error")
		e.mu.Unlock()
		e.notify(notice, content)
		// One failed entry never stalls the queue.
		e.mu.Lock()
		if gen == e.gen && e.state == StateResolving {
			e.advanceLocked()
		}
		e.mu.Unlock()
		return
	}

	if e.conn == nil {
		e.state = StateIdle
		e.mu.Unlock()
		return
	}

	e.current = &NowPlaying{Entry: entry, Track: track}
	myGen := e.gen
	if err := e.conn.Play(track.StreamURL, e.volume, func() { e.trackEnded(myGen) }); err != nil {
		slog.Warn("playback start failed", "guild", e.guildID, "track", track.Title, "err", err)
		notice := e.noticeTargetLocked(entry.Origin)
		content := e.strs.Get("playback_error")
		e.advanceLocked()
		e.mu.Unlock()
		e.notify(notice, content)
		return
	}
	e.state = StatePlaying
	if e.metrics != nil {
		e.metrics.RecordTrackPlayed(context.Background(), e.guildID)
	}
	old := e.display
	e.display = nil
	channelID := entry.Origin
	if channelID == "" {
		channelID = e.lastOrigin
	}
	strs, footer := e.strs, e.footer
	e.mu.Unlock()

	e.showNowPlaying(myGen, old, channelID, track, strs, footer)
}

// trackEnded is the completion callback handed to the audio layer. Stale
// callbacks (delivered after a stop) and callbacks during a rewind's
// resolution are discarded.
func (e *Engine) trackEnded(gen uint64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if gen != e.gen {
		return
	}
	if e.state != StatePlaying && e.state != StatePaused {
		return
	}
	e.advanceLocked()
}

// showNowPlaying replaces the now-playing display: the previous message is
// deleted, a fresh embed with control reactions is posted, and a new
// progress reporter supersedes the old one. It runs without the engine
// lock; a rate-limited Discord round trip must not stall commands. The new
// message is only registered if the session has not moved on meanwhile.
func (e *Engine) showNowPlaying(gen uint64, old *MessageRef, channelID string, track resolver.PlayableTrack, strs config.Strings, footer string) {
	if old != nil {
		if err := e.msgr.DeleteMessage(*old); err != nil && !errors.Is(err, ErrMessageGone) {
			slog.Warn("failed to delete previous now-playing message", "guild", e.guildID, "err", err)
		}
	}
	if channelID == "" {
		return
	}

	ref, err := e.msgr.SendEmbed(channelID, nowPlayingEmbed(strs, track, footer))
	if err != nil {
		slog.Warn("failed to send now-playing message", "guild", e.guildID, "err", err)
		return
	}
	for _, emoji := range ControlReactions {
		if err := e.msgr.AddReaction(ref, emoji); err != nil {
			slog.Warn("failed to add control reaction", "guild", e.guildID, "emoji", emoji, "err", err)
		}
	}

	rep := newProgressReporter(e.msgr, ref, track, strs, footer)

	e.mu.Lock()
	if gen != e.gen {
		e.mu.Unlock()
		// The session was stopped or rewound while the embed was posted.
		if err := e.msgr.DeleteMessage(ref); err != nil && !errors.Is(err, ErrMessageGone) {
			slog.Warn("failed to delete orphaned now-playing message", "guild", e.guildID, "err", err)
		}
		return
	}
	if e.reporter != nil {
		e.reporter.Stop()
	}
	if e.reporterInterval > 0 {
		rep.interval = e.reporterInterval
	}
	e.reporter = rep
	e.display = &ref
	e.mu.Unlock()
	rep.Start()
}

// noticeTargetLocked picks the channel for a user notice, falling back to
// the channel of the last explicit request. Callers must hold e.mu.
func (e *Engine) noticeTargetLocked(origin string) string {
	if origin == "" {
		return e.lastOrigin
	}
	return origin
}

// notify sends a plain notice. Runs without the engine lock held.
func (e *Engine) notify(channelID, content string) {
	if channelID == "" {
		return
	}
	if err := e.msgr.SendText(channelID, content); err != nil {
		slog.Warn("failed to send notice", "guild", e.guildID, "channel", channelID, "err", err)
	}
}
