package player_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/troubadourbot/troubadour/internal/config"
	"github.com/troubadourbot/troubadour/internal/player"
	playermock "github.com/troubadourbot/troubadour/internal/player/mock"
	"github.com/troubadourbot/troubadour/internal/resolver"
	audiomock "github.com/troubadourbot/troubadour/pkg/audio/mock"
)

// fakeResolver resolves references from a fixed table. References listed in
// fail return an error; references with a gate block until it is closed.
type fakeResolver struct {
	mu     sync.Mutex
	tracks map[resolver.TrackReference]resolver.PlayableTrack
	fail   map[resolver.TrackReference]bool
	gates  map[resolver.TrackReference]chan struct{}
	calls  []resolver.TrackReference
}

func newFakeResolver() *fakeResolver {
	return &fakeResolver{
		tracks: make(map[resolver.TrackReference]resolver.PlayableTrack),
		fail:   make(map[resolver.TrackReference]bool),
		gates:  make(map[resolver.TrackReference]chan struct{}),
	}
}

func (f *fakeResolver) add(ref resolver.TrackReference, title string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tracks[ref] = resolver.PlayableTrack{
		StreamURL: "https://stream.example/" + string(ref),
		PageURL:   "https://www.youtube.com/watch?v=" + string(ref),
		Title:     title,
		Duration:  3 * time.Minute,
	}
}

func (f *fakeResolver) Resolve(ctx context.Context, ref resolver.TrackReference) (resolver.PlayableTrack, error) {
	f.mu.Lock()
	f.calls = append(f.calls, ref)
	gate := f.gates[ref]
	f.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return resolver.PlayableTrack{}, ctx.Err()
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail[ref] {
		return resolver.PlayableTrack{}, resolver.ErrNoPlayableStream
	}
	track, ok := f.tracks[ref]
	if !ok {
		return resolver.PlayableTrack{}, resolver.ErrNoPlayableStream
	}
	return track, nil
}

type testRig struct {
	engine *player.Engine
	conn   *audiomock.Connection
	msgr   *playermock.Messenger
	res    *fakeResolver

	persistMu sync.Mutex
	persisted []int
}

func newTestRig(t *testing.T) *testRig {
	t.Helper()
	rig := &testRig{
		conn: &audiomock.Connection{},
		msgr: &playermock.Messenger{},
		res:  newFakeResolver(),
	}
	rig.engine = player.New(player.Options{
		GuildID:   "guild-1",
		Resolver:  rig.res,
		Voice:     &audiomock.Platform{ConnectResult: rig.conn},
		Messenger: rig.msgr,
		Strings:   config.ForLanguage("en"),
		Volume:    50,
		PersistVolume: func(v int) error {
			rig.persistMu.Lock()
			defer rig.persistMu.Unlock()
			rig.persisted = append(rig.persisted, v)
			return nil
		},
	})
	return rig
}

func (r *testRig) connect(t *testing.T) {
	t.Helper()
	if err := r.engine.Connect(context.Background(), "voice-1"); err != nil {
		t.Fatalf("Connect: %v", err)
	}
}

func (r *testRig) playCalls() []audiomock.PlayCall {
	return r.conn.Plays()
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal("condition not reached in time")
}

func (r *testRig) waitPlaying(t *testing.T, streamSuffix string) {
	t.Helper()
	waitFor(t, func() bool {
		if r.engine.State() != player.StatePlaying {
			return false
		}
		calls := r.playCalls()
		return len(calls) > 0 && strings.HasSuffix(calls[len(calls)-1].StreamURL, streamSuffix)
	})
}

func TestEngine_EnqueueStartsPlayback(t *testing.T) {
	t.Parallel()
	rig := newTestRig(t)
	rig.res.add("aaa", "First Song")
	rig.connect(t)

	if err := rig.engine.Enqueue(player.QueueEntry{Ref: "aaa", Origin: "text-1"}); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	rig.waitPlaying(t, "aaa")

	calls := rig.playCalls()
	if calls[0].Volume != 50 {
		t.Errorf("play volume = %d, want 50", calls[0].Volume)
	}
	waitFor(t, func() bool { return len(rig.msgr.SentEmbeds()) == 1 })
	embeds := rig.msgr.SentEmbeds()
	if len(embeds) != 1 {
		t.Fatalf("sent %d embeds, want 1", len(embeds))
	}
	if embeds[0].ChannelID != "text-1" {
		t.Errorf("embed channel = %q, want text-1", embeds[0].ChannelID)
	}
	if !strings.Contains(embeds[0].Embed.Description, "First Song") {
		t.Errorf("embed description %q misses track title", embeds[0].Embed.Description)
	}
	waitFor(t, func() bool {
		return len(rig.msgr.AddedReactions()) == len(player.ControlReactions)
	})
}

func TestEngine_EnqueueWithoutConnection(t *testing.T) {
	t.Parallel()
	rig := newTestRig(t)
	rig.res.add("aaa", "First Song")

	err := rig.engine.Enqueue(player.QueueEntry{Ref: "aaa", Origin: "text-1"})
	if !errors.Is(err, player.ErrNotConnected) {
		t.Fatalf("Enqueue without connection: %v, want ErrNotConnected", err)
	}
}

func TestEngine_PlaysQueueInOrder(t *testing.T) {
	t.Parallel()
	rig := newTestRig(t)
	for _, ref := range []resolver.TrackReference{"aaa", "bbb", "ccc"} {
		rig.res.add(ref, string(ref))
	}
	rig.connect(t)

	err := rig.engine.Enqueue(
		player.QueueEntry{Ref: "aaa", Origin: "text-1"},
		player.QueueEntry{Ref: "bbb", Origin: "text-1"},
		player.QueueEntry{Ref: "ccc", Origin: "text-1"},
	)
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	rig.waitPlaying(t, "aaa")
	rig.conn.FinishTrack()
	rig.waitPlaying(t, "bbb")
	rig.conn.FinishTrack()
	rig.waitPlaying(t, "ccc")
	rig.conn.FinishTrack()

	waitFor(t, func() bool { return rig.engine.State() == player.StateIdle })

	var order []string
	for _, call := range rig.playCalls() {
		order = append(order, call.StreamURL)
	}
	want := []string{
		"https://stream.example/aaa",
		"https://stream.example/bbb",
		"https://stream.example/ccc",
	}
	if len(order) != len(want) {
		t.Fatalf("play order %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Errorf("play[%d] = %q, want %q", i, order[i], want[i])
		}
	}
}

func TestEngine_DrainKeepsDisplayAndDisconnects(t *testing.T) {
	t.Parallel()
	rig := newTestRig(t)
	rig.res.add("aaa", "Only Song")
	rig.connect(t)

	if err := rig.engine.Enqueue(player.QueueEntry{Ref: "aaa", Origin: "text-1"}); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	rig.waitPlaying(t, "aaa")
	rig.conn.FinishTrack()
	waitFor(t, func() bool { return rig.engine.State() == player.StateIdle })

	if got := rig.conn.DisconnectCount(); got != 1 {
		t.Errorf("disconnect count = %d, want 1", got)
	}
	if len(rig.msgr.DeletedRefs()) != 0 {
		t.Errorf("now-playing message deleted on drain, want it kept")
	}
}

func TestEngine_SkipAdvances(t *testing.T) {
	t.Parallel()
	rig := newTestRig(t)
	rig.res.add("aaa", "First")
	rig.res.add("bbb", "Second")
	rig.connect(t)

	if err := rig.engine.Enqueue(
		player.QueueEntry{Ref: "aaa", Origin: "text-1"},
		player.QueueEntry{Ref: "bbb", Origin: "text-1"},
	); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	rig.waitPlaying(t, "aaa")
	if err := rig.engine.Skip(); err != nil {
		t.Fatalf("Skip: %v", err)
	}
	rig.waitPlaying(t, "bbb")
}

func TestEngine_SkipWhileIdle(t *testing.T) {
	t.Parallel()
	rig := newTestRig(t)
	if err := rig.engine.Skip(); !errors.Is(err, player.ErrNotPlaying) {
		t.Fatalf("Skip while idle: %v, want ErrNotPlaying", err)
	}
}

func TestEngine_PauseAndResume(t *testing.T) {
	t.Parallel()
	rig := newTestRig(t)
	rig.res.add("aaa", "First")
	rig.connect(t)
	if err := rig.engine.Enqueue(player.QueueEntry{Ref: "aaa", Origin: "text-1"}); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	rig.waitPlaying(t, "aaa")

	if err := rig.engine.Pause(); err != nil {
		t.Fatalf("Pause: %v", err)
	}
	if got := rig.engine.State(); got != player.StatePaused {
		t.Fatalf("state after pause = %v, want paused", got)
	}
	if err := rig.engine.Pause(); !errors.Is(err, player.ErrNotPlaying) {
		t.Fatalf("double pause: %v, want ErrNotPlaying", err)
	}
	if err := rig.engine.Resume(); err != nil {
		t.Fatalf("Resume: %v", err)
	}
	if got := rig.engine.State(); got != player.StatePlaying {
		t.Fatalf("state after resume = %v, want playing", got)
	}

	paused, err := rig.engine.PauseToggle()
	if err != nil || !paused {
		t.Fatalf("PauseToggle = (%v, %v), want (true, nil)", paused, err)
	}
	paused, err = rig.engine.PauseToggle()
	if err != nil || paused {
		t.Fatalf("PauseToggle = (%v, %v), want (false, nil)", paused, err)
	}

	if p, r := rig.conn.PauseCount(), rig.conn.ResumeCount(); p != 2 || r != 2 {
		t.Errorf("pause/resume counts = %d/%d, want 2/2", p, r)
	}
}

func TestEngine_PreviousReplaysAndRoundTrips(t *testing.T) {
	t.Parallel()
	rig := newTestRig(t)
	rig.res.add("aaa", "First")
	rig.res.add("bbb", "Second")
	rig.connect(t)

	if err := rig.engine.Enqueue(
		player.QueueEntry{Ref: "aaa", Origin: "text-1"},
		player.QueueEntry{Ref: "bbb", Origin: "text-1"},
	); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	rig.waitPlaying(t, "aaa")
	rig.conn.FinishTrack()
	rig.waitPlaying(t, "bbb")

	if err := rig.engine.Previous(); err != nil {
		t.Fatalf("Previous: %v", err)
	}
	rig.waitPlaying(t, "aaa")

	// The interrupted track sits at the front of the queue again.
	queue := rig.engine.Queue()
	if len(queue) != 1 || queue[0].Ref != "bbb" {
		t.Fatalf("queue after rewind = %v, want [bbb]", queue)
	}

	// Advancing puts the session right back where it was.
	rig.conn.FinishTrack()
	rig.waitPlaying(t, "bbb")
}

func TestEngine_PreviousWithEmptyHistory(t *testing.T) {
	t.Parallel()
	rig := newTestRig(t)
	rig.res.add("aaa", "First")
	rig.connect(t)
	if err := rig.engine.Enqueue(player.QueueEntry{Ref: "aaa", Origin: "text-1"}); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	rig.waitPlaying(t, "aaa")

	if err := rig.engine.Previous(); !errors.Is(err, player.ErrNoHistory) {
		t.Fatalf("Previous with empty history: %v, want ErrNoHistory", err)
	}
	if got := rig.engine.State(); got != player.StatePlaying {
		t.Errorf("state after rejected rewind = %v, want playing", got)
	}
}

func TestEngine_PreviousDuringResolutionReclaimsEntry(t *testing.T) {
	t.Parallel()
	rig := newTestRig(t)
	rig.res.add("aaa", "First")
	rig.res.add("bbb", "Second")
	rig.connect(t)

	if err := rig.engine.Enqueue(
		player.QueueEntry{Ref: "aaa", Origin: "text-1"},
		player.QueueEntry{Ref: "bbb", Origin: "text-1"},
	); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	rig.waitPlaying(t, "aaa")

	// Hold the next track in resolution so the rewind lands mid-transition.
	gate := make(chan struct{})
	rig.res.mu.Lock()
	rig.res.gates["bbb"] = gate
	rig.res.mu.Unlock()

	rig.conn.FinishTrack()
	waitFor(t, func() bool { return rig.engine.State() == player.StateResolving })

	if err := rig.engine.Previous(); err != nil {
		t.Fatalf("Previous: %v", err)
	}
	close(gate)
	rig.waitPlaying(t, "aaa")

	now, ok := rig.engine.Current()
	if !ok || now.Entry.Ref != "aaa" {
		t.Fatalf("current after rewind = %+v, want aaa", now)
	}
	// The track whose resolution was cut short is back at the front, not lost.
	queue := rig.engine.Queue()
	if len(queue) != 1 || queue[0].Ref != "bbb" {
		t.Fatalf("queue after rewind = %v, want [bbb]", queue)
	}
	// The superseded resolution must not have started playback of its own.
	time.Sleep(20 * time.Millisecond)
	if calls := rig.playCalls(); len(calls) != 2 {
		t.Fatalf("play calls = %d, want 2", len(calls))
	}

	rig.conn.FinishTrack()
	rig.waitPlaying(t, "bbb")
}

func TestEngine_LoopingReplaysCurrentTrack(t *testing.T) {
	t.Parallel()
	rig := newTestRig(t)
	rig.res.add("aaa", "Looped")
	rig.connect(t)
	rig.engine.SetLooping(true)

	if err := rig.engine.Enqueue(player.QueueEntry{Ref: "aaa", Origin: "text-1"}); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	rig.waitPlaying(t, "aaa")

	for i := 0; i < 3; i++ {
		before := len(rig.playCalls())
		rig.conn.FinishTrack()
		waitFor(t, func() bool { return len(rig.playCalls()) > before })
		if got := rig.engine.State(); got != player.StatePlaying {
			t.Fatalf("loop %d: state = %v, want playing", i, got)
		}
	}

	if rig.engine.ToggleLooping() {
		t.Fatal("ToggleLooping should report loop disabled")
	}
	rig.conn.FinishTrack()
	waitFor(t, func() bool { return rig.engine.State() == player.StateIdle })
}

func TestEngine_StopClearsSession(t *testing.T) {
	t.Parallel()
	rig := newTestRig(t)
	rig.res.add("aaa", "First")
	rig.res.add("bbb", "Second")
	rig.connect(t)

	if err := rig.engine.Enqueue(
		player.QueueEntry{Ref: "aaa", Origin: "text-1"},
		player.QueueEntry{Ref: "bbb", Origin: "text-1"},
	); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	rig.waitPlaying(t, "aaa")
	waitFor(t, func() bool { _, ok := rig.engine.DisplayRef(); return ok })
	display, _ := rig.engine.DisplayRef()

	rig.engine.Stop()

	if got := rig.engine.State(); got != player.StateIdle {
		t.Errorf("state after stop = %v, want idle", got)
	}
	if queue := rig.engine.Queue(); len(queue) != 0 {
		t.Errorf("queue after stop = %v, want empty", queue)
	}
	if _, ok := rig.engine.Current(); ok {
		t.Error("current track survived stop")
	}
	deletes := rig.msgr.DeletedRefs()
	if len(deletes) != 1 || deletes[0] != display {
		t.Errorf("deleted messages = %v, want [%v]", deletes, display)
	}
	if got := rig.conn.DisconnectCount(); got != 1 {
		t.Errorf("disconnect count = %d, want 1", got)
	}
}

func TestEngine_StopDiscardsInflightResolution(t *testing.T) {
	t.Parallel()
	rig := newTestRig(t)
	rig.res.add("aaa", "Slow")
	gate := make(chan struct{})
	rig.res.gates["aaa"] = gate
	rig.connect(t)

	if err := rig.engine.Enqueue(player.QueueEntry{Ref: "aaa", Origin: "text-1"}); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	waitFor(t, func() bool { return rig.engine.State() == player.StateResolving })

	rig.engine.Stop()
	close(gate)

	time.Sleep(20 * time.Millisecond)
	if calls := rig.playCalls(); len(calls) != 0 {
		t.Errorf("stale resolution started playback: %v", calls)
	}
	if got := rig.engine.State(); got != player.StateIdle {
		t.Errorf("state = %v, want idle", got)
	}
}

func TestEngine_ResolutionFailureNotifiesAndAdvances(t *testing.T) {
	t.Parallel()
	rig := newTestRig(t)
	rig.res.fail["broken"] = true
	rig.res.add("bbb", "Second")
	rig.connect(t)

	if err := rig.engine.Enqueue(
		player.QueueEntry{Ref: "broken", Origin: "text-1"},
		player.QueueEntry{Ref: "bbb", Origin: "text-1"},
	); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	rig.waitPlaying(t, "bbb")

	texts := rig.msgr.SentTexts()
	if len(texts) != 1 {
		t.Fatalf("sent %d notices, want exactly 1", len(texts))
	}
	if texts[0].ChannelID != "text-1" {
		t.Errorf("notice channel = %q, want text-1", texts[0].ChannelID)
	}
}

func TestEngine_SetVolume(t *testing.T) {
	t.Parallel()
	rig := newTestRig(t)
	rig.connect(t)

	for _, bad := range []int{0, -5, 101, 1000} {
		if err := rig.engine.SetVolume(bad); !errors.Is(err, player.ErrVolumeRange) {
			t.Errorf("SetVolume(%d): %v, want ErrVolumeRange", bad, err)
		}
	}
	if got := rig.engine.Volume(); got != 50 {
		t.Fatalf("volume after rejected changes = %d, want 50", got)
	}

	if err := rig.engine.SetVolume(80); err != nil {
		t.Fatalf("SetVolume(80): %v", err)
	}
	if got := rig.engine.Volume(); got != 80 {
		t.Errorf("volume = %d, want 80", got)
	}
	volCalls := rig.conn.Volumes()
	if len(volCalls) != 1 || volCalls[0] != 80 {
		t.Errorf("connection volume calls = %v, want [80]", volCalls)
	}
	rig.persistMu.Lock()
	defer rig.persistMu.Unlock()
	if len(rig.persisted) != 1 || rig.persisted[0] != 80 {
		t.Errorf("persisted volumes = %v, want [80]", rig.persisted)
	}
}

func TestEngine_ApplyVolumeDoesNotPersist(t *testing.T) {
	t.Parallel()
	rig := newTestRig(t)
	rig.connect(t)

	rig.engine.ApplyVolume(30)
	if got := rig.engine.Volume(); got != 30 {
		t.Fatalf("volume = %d, want 30", got)
	}
	rig.persistMu.Lock()
	defer rig.persistMu.Unlock()
	if len(rig.persisted) != 0 {
		t.Errorf("config-driven volume change was persisted: %v", rig.persisted)
	}
}

func TestRegistry(t *testing.T) {
	t.Parallel()
	reg := player.NewRegistry(func(guildID string) *player.Engine {
		return player.New(player.Options{
			GuildID:   guildID,
			Resolver:  newFakeResolver(),
			Voice:     &audiomock.Platform{},
			Messenger: &playermock.Messenger{},
			Strings:   config.ForLanguage("en"),
		})
	})

	if _, ok := reg.Get("g1"); ok {
		t.Fatal("Get on empty registry reported an engine")
	}
	e1 := reg.GetOrCreate("g1")
	if e2 := reg.GetOrCreate("g1"); e2 != e1 {
		t.Fatal("GetOrCreate returned a different engine for the same guild")
	}
	if got, ok := reg.Get("g1"); !ok || got != e1 {
		t.Fatal("Get did not return the created engine")
	}

	var seen []string
	reg.Each(func(guildID string, _ *player.Engine) { seen = append(seen, guildID) })
	if len(seen) != 1 || seen[0] != "g1" {
		t.Fatalf("Each visited %v, want [g1]", seen)
	}

	reg.Remove("g1")
	if _, ok := reg.Get("g1"); ok {
		t.Fatal("engine survived Remove")
	}
}
