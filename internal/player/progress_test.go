package player

import (
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/troubadourbot/troubadour/internal/config"
	"github.com/troubadourbot/troubadour/internal/resolver"
)

// stubMessenger records embed edits for the reporter tests.
type stubMessenger struct {
	mu        sync.Mutex
	editError error
	edits     []*discordgo.MessageEmbed
}

func (s *stubMessenger) SendText(string, string) error { return nil }

func (s *stubMessenger) SendEmbed(channelID string, _ *discordgo.MessageEmbed) (MessageRef, error) {
	return MessageRef{ChannelID: channelID, MessageID: "m1"}, nil
}

func (s *stubMessenger) EditEmbed(_ MessageRef, embed *discordgo.MessageEmbed) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.editError != nil {
		return s.editError
	}
	s.edits = append(s.edits, embed)
	return nil
}

func (s *stubMessenger) DeleteMessage(MessageRef) error { return nil }

func (s *stubMessenger) AddReaction(MessageRef, string) error { return nil }

var errTransient = errors.New("rate limited")

func (s *stubMessenger) editCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.edits)
}

func (s *stubMessenger) lastEdit() *discordgo.MessageEmbed {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.edits) == 0 {
		return nil
	}
	return s.edits[len(s.edits)-1]
}

// fakeClock is a manually advanced time source.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestReporter(msgr Messenger, duration time.Duration) (*ProgressReporter, *fakeClock) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	track := resolver.PlayableTrack{
		Title:    "Some Song",
		PageURL:  "https://www.youtube.com/watch?v=abcdefghijk",
		Duration: duration,
	}
	r := newProgressReporter(msgr, MessageRef{ChannelID: "c1", MessageID: "m1"}, track, config.ForLanguage("en"), "")
	r.now = clock.Now
	r.started = clock.Now()
	return r, clock
}

func TestProgressReporter_TickRedrawsOnBucketChange(t *testing.T) {
	t.Parallel()
	msgr := &stubMessenger{}
	r, clock := newTestReporter(msgr, 100*time.Second)

	clock.Advance(7 * time.Second) // 7% -> bucket 1
	if !r.tick() {
		t.Fatal("tick terminated early")
	}
	if msgr.editCount() != 1 {
		t.Fatalf("edit count = %d, want 1", msgr.editCount())
	}
	embed := msgr.lastEdit()
	if embed.Fields[0].Value != "0:07 / 1:40" {
		t.Errorf("clock field = %q, want %q", embed.Fields[0].Value, "0:07 / 1:40")
	}
	if !strings.HasSuffix(embed.Fields[1].Value, " 7%") {
		t.Errorf("bar field = %q, want 7%% suffix", embed.Fields[1].Value)
	}
}

func TestProgressReporter_TickSkipsUnchangedBucket(t *testing.T) {
	t.Parallel()
	msgr := &stubMessenger{}
	r, clock := newTestReporter(msgr, 100*time.Second)

	clock.Advance(6 * time.Second)
	r.tick()
	clock.Advance(2 * time.Second) // still in the 5-9% bucket
	r.tick()
	if msgr.editCount() != 1 {
		t.Fatalf("edit count = %d, want 1 (second tick within same bucket)", msgr.editCount())
	}
	clock.Advance(3 * time.Second) // 11% -> next bucket
	r.tick()
	if msgr.editCount() != 2 {
		t.Fatalf("edit count = %d, want 2", msgr.editCount())
	}
}

func TestProgressReporter_TickTerminatesAfterTrackEnd(t *testing.T) {
	t.Parallel()
	msgr := &stubMessenger{}
	r, clock := newTestReporter(msgr, 100*time.Second)

	clock.Advance(101 * time.Second)
	if r.tick() {
		t.Fatal("tick past track end should terminate the reporter")
	}
	embed := msgr.lastEdit()
	if !strings.HasSuffix(embed.Fields[1].Value, " 100%") {
		t.Errorf("final bar = %q, want 100%% suffix", embed.Fields[1].Value)
	}
}

func TestProgressReporter_PauseFreezesClock(t *testing.T) {
	t.Parallel()
	msgr := &stubMessenger{}
	r, clock := newTestReporter(msgr, 100*time.Second)

	clock.Advance(20 * time.Second)
	r.SetPaused(true)
	if msgr.editCount() != 1 {
		t.Fatalf("SetPaused did not redraw, edit count = %d", msgr.editCount())
	}
	embed := msgr.lastEdit()
	if !strings.Contains(embed.Title, "⏸️") {
		t.Errorf("paused title = %q, want pause marker", embed.Title)
	}

	// Time passing while paused changes nothing.
	clock.Advance(30 * time.Second)
	if got := r.Elapsed(); got != 20*time.Second {
		t.Fatalf("elapsed while paused = %v, want 20s", got)
	}
	if !r.tick() {
		t.Fatal("paused tick should not terminate")
	}
	if msgr.editCount() != 1 {
		t.Fatalf("paused tick edited the message, edit count = %d", msgr.editCount())
	}

	r.SetPaused(false)
	embed = msgr.lastEdit()
	if strings.Contains(embed.Title, "⏸️") {
		t.Errorf("resumed title = %q, still carries pause marker", embed.Title)
	}
	clock.Advance(10 * time.Second)
	if got := r.Elapsed(); got != 30*time.Second {
		t.Fatalf("elapsed after resume = %v, want 30s (paused time excluded)", got)
	}
}

func TestProgressReporter_StopsWhenMessageGone(t *testing.T) {
	t.Parallel()
	msgr := &stubMessenger{editError: ErrMessageGone}
	r, clock := newTestReporter(msgr, 100*time.Second)

	clock.Advance(10 * time.Second)
	if r.tick() {
		t.Fatal("tick should terminate when the display message is gone")
	}
}

func TestProgressReporter_TransientEditErrorsAreRetried(t *testing.T) {
	t.Parallel()
	msgr := &stubMessenger{editError: errTransient}
	r, clock := newTestReporter(msgr, 100*time.Second)

	clock.Advance(10 * time.Second)
	if !r.tick() {
		t.Fatal("transient edit failure should not terminate the reporter")
	}
}

func TestRenderBar(t *testing.T) {
	t.Parallel()
	tests := []struct {
		fraction float64
		want     string
	}{
		{0, strings.Repeat(barEmpty, 20) + " 0%"},
		{0.5, strings.Repeat(barFilled, 10) + strings.Repeat(barEmpty, 10) + " 50%"},
		{1, strings.Repeat(barFilled, 20) + " 100%"},
		{1.5, strings.Repeat(barFilled, 20) + " 100%"},
		{-0.2, strings.Repeat(barEmpty, 20) + " 0%"},
	}
	for _, tc := range tests {
		if got := renderBar(tc.fraction); got != tc.want {
			t.Errorf("renderBar(%v) = %q, want %q", tc.fraction, got, tc.want)
		}
	}
}

func TestFormatClock(t *testing.T) {
	t.Parallel()
	tests := []struct {
		d    time.Duration
		want string
	}{
		{0, "0:00"},
		{7 * time.Second, "0:07"},
		{3 * time.Minute, "3:00"},
		{100 * time.Second, "1:40"},
		{90 * time.Minute, "90:00"},
		{-time.Second, "0:00"},
	}
	for _, tc := range tests {
		if got := formatClock(tc.d); got != tc.want {
			t.Errorf("formatClock(%v) = %q, want %q", tc.d, got, tc.want)
		}
	}
}
