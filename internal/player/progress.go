package player

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/troubadourbot/troubadour/internal/config"
	"github.com/troubadourbot/troubadour/internal/resolver"
)

// progressInterval is how often the now-playing display is re-evaluated.
const progressInterval = 5 * time.Second

// bucketPercent is the granularity of display updates: the embed is only
// edited when playback progress crosses into a new 5% bucket, keeping the
// bot well under the message edit rate limits.
const bucketPercent = 5

// ProgressReporter periodically edits the now-playing message with an
// elapsed/total clock and a progress bar. One reporter runs per session;
// starting a new track supersedes the previous reporter.
//
// The elapsed clock freezes while the track is paused: pausing stops the
// clock and flips the display title, resuming continues from the frozen
// position. The reporter terminates itself when the track runs out or when
// the display message disappears.
type ProgressReporter struct {
	msgr     Messenger
	ref      MessageRef
	track    resolver.PlayableTrack
	strs     config.Strings
	footer   string
	interval time.Duration
	now      func() time.Time // injectable clock for tests

	mu          sync.Mutex
	started     time.Time
	pausedAt    time.Time // zero while playing
	pausedTotal time.Duration
	lastBucket  int

	done     chan struct{}
	stopOnce sync.Once
}

// newProgressReporter creates a reporter for a track that just started
// playing on the message identified by ref.
func newProgressReporter(msgr Messenger, ref MessageRef, track resolver.PlayableTrack, strs config.Strings, footer string) *ProgressReporter {
	r := &ProgressReporter{
		msgr:       msgr,
		ref:        ref,
		track:      track,
		strs:       strs,
		footer:     footer,
		interval:   progressInterval,
		now:        time.Now,
		lastBucket: -1,
		done:       make(chan struct{}),
	}
	r.started = r.now()
	return r
}

// Start launches the update loop in a background goroutine.
func (r *ProgressReporter) Start() {
	go r.loop()
}

// Stop terminates the update loop. Safe to call more than once.
func (r *ProgressReporter) Stop() {
	r.stopOnce.Do(func() {
		close(r.done)
	})
}

// SetPaused freezes or unfreezes the elapsed clock and immediately redraws
// the display so the paused title shows up without waiting for the next tick.
func (r *ProgressReporter) SetPaused(paused bool) {
	r.mu.Lock()
	if paused {
		if r.pausedAt.IsZero() {
			r.pausedAt = r.now()
		}
	} else {
		if !r.pausedAt.IsZero() {
			r.pausedTotal += r.now().Sub(r.pausedAt)
			r.pausedAt = time.Time{}
		}
	}
	r.mu.Unlock()

	if err := r.redraw(); err != nil {
		r.Stop()
	}
}

// Elapsed returns the playback position, excluding time spent paused.
func (r *ProgressReporter) Elapsed() time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.elapsedLocked()
}

func (r *ProgressReporter) elapsedLocked() time.Duration {
	end := r.now()
	if !r.pausedAt.IsZero() {
		end = r.pausedAt
	}
	return end.Sub(r.started) - r.pausedTotal
}

func (r *ProgressReporter) loop() {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-r.done:
			return
		case <-ticker.C:
			if !r.tick() {
				r.Stop()
				return
			}
		}
	}
}

// tick performs one update cycle. It returns false when the reporter should
// terminate: the track ran out or the display message is gone.
func (r *ProgressReporter) tick() bool {
	r.mu.Lock()
	paused := !r.pausedAt.IsZero()
	elapsed := r.elapsedLocked()
	bucket := r.bucketLocked(elapsed)
	changed := bucket != r.lastBucket
	if changed {
		r.lastBucket = bucket
	}
	r.mu.Unlock()

	// While paused the clock is frozen, so the bucket never advances and
	// the display stays as SetPaused left it.
	if paused || !changed {
		return true
	}

	if err := r.redraw(); err != nil {
		return false
	}
	return r.track.Duration <= 0 || elapsed < r.track.Duration
}

// redraw edits the display unconditionally. It returns an error only when
// the message is gone and the reporter should terminate.
func (r *ProgressReporter) redraw() error {
	r.mu.Lock()
	elapsed := r.elapsedLocked()
	paused := !r.pausedAt.IsZero()
	r.mu.Unlock()

	embed := progressEmbed(r.strs, r.track, r.footer, elapsed, paused)
	err := r.msgr.EditEmbed(r.ref, embed)
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrMessageGone) {
		slog.Debug("now-playing message gone, stopping progress updates",
			"channel", r.ref.ChannelID, "message", r.ref.MessageID)
		return err
	}
	// Transient send failures are retried on the next tick.
	slog.Warn("failed to update now-playing display", "err", err)
	return nil
}

func (r *ProgressReporter) bucketLocked(elapsed time.Duration) int {
	if r.track.Duration <= 0 {
		return 0
	}
	fraction := min(elapsed.Seconds()/r.track.Duration.Seconds(), 1.0)
	return int(fraction*100) / bucketPercent
}
