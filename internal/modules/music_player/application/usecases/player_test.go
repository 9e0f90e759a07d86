package usecases

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/disgoorg/snowflake/v2"

	"github.com/monsieurgui/cafe-des-artistes/internal/modules/music_player/application/ports"
	"github.com/monsieurgui/cafe-des-artistes/internal/modules/music_player/domain"
)

type recordedEvent struct {
	kind    string
	track   *domain.TrackRequest
	reason  domain.EndReason
	queue   []*domain.TrackRequest
	resumed bool
	source  string
	err     error
}

// recordingPublisher captures events in emission order for assertions.
type recordingPublisher struct {
	mu     sync.Mutex
	events []recordedEvent
}

func (r *recordingPublisher) record(e recordedEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recordingPublisher) SongStarted(_ snowflake.ID, track *domain.TrackRequest, resumed bool) {
	r.record(recordedEvent{kind: "song_started", track: track, resumed: resumed})
}

func (r *recordingPublisher) SongEnded(_ snowflake.ID, track *domain.TrackRequest, reason domain.EndReason) {
	r.record(recordedEvent{kind: "song_ended", track: track, reason: reason})
}

func (r *recordingPublisher) QueueUpdated(_ snowflake.ID, queue []*domain.TrackRequest) {
	r.record(recordedEvent{kind: "queue_updated", queue: queue})
}

func (r *recordingPublisher) PlayerIdle(snowflake.ID) {
	r.record(recordedEvent{kind: "player_idle"})
}

func (r *recordingPublisher) PlayerStopped(snowflake.ID) {
	r.record(recordedEvent{kind: "player_stopped"})
}

func (r *recordingPublisher) PlayerError(_ snowflake.ID, source string, err error) {
	r.record(recordedEvent{kind: "player_error", source: source, err: err})
}

func (r *recordingPublisher) StateSnapshot(domain.PlayerSnapshot) {
	r.record(recordedEvent{kind: "state_snapshot"})
}

func (r *recordingPublisher) snapshot() []recordedEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]recordedEvent, len(r.events))
	copy(out, r.events)
	return out
}

// ofKind filters the captured events to a single kind.
func (r *recordingPublisher) ofKind(kind string) []recordedEvent {
	var out []recordedEvent
	for _, e := range r.snapshot() {
		if e.kind == kind {
			out = append(out, e)
		}
	}
	return out
}

// waitFor polls until pred passes or the deadline expires.
func waitFor(t *testing.T, pred func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if pred() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", msg)
}

type fakeResolver struct {
	mu     sync.Mutex
	tracks map[string]*domain.ResolvedTrack
	errs   map[string]error
	calls  map[string]int
	gate   chan struct{}
}

func newFakeResolver() *fakeResolver {
	return &fakeResolver{
		tracks: make(map[string]*domain.ResolvedTrack),
		errs:   make(map[string]error),
		calls:  make(map[string]int),
	}
}

func (r *fakeResolver) add(source, title string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tracks[source] = &domain.ResolvedTrack{
		Title:     title,
		Duration:  3 * time.Minute,
		StreamURI: "https://stream.test/" + source,
		PageURI:   "https://page.test/" + source,
	}
}

func (r *fakeResolver) fail(source string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errs[source] = err
}

func (r *fakeResolver) callCount(source string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls[source]
}

func (r *fakeResolver) Resolve(ctx context.Context, source string) (*domain.ResolvedTrack, error) {
	r.mu.Lock()
	r.calls[source]++
	gate := r.gate
	resolved, ok := r.tracks[source]
	err := r.errs[source]
	r.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ports.ErrTrackNotFound
	}
	return resolved, nil
}

type memCache struct {
	mu      sync.Mutex
	entries map[string]*domain.ResolvedTrack
}

func newMemCache() *memCache {
	return &memCache{entries: make(map[string]*domain.ResolvedTrack)}
}

func (c *memCache) Get(source string) (*domain.ResolvedTrack, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	t, ok := c.entries[source]
	return t, ok
}

func (c *memCache) Put(source string, track *domain.ResolvedTrack) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[source] = track
}

func testConfig() PlayerConfig {
	return PlayerConfig{
		MaxQueueLength: 100,
		ResolveTimeout: 2 * time.Second,
		PreloadCount:   0,
	}
}

func newTestPlayer(t *testing.T, cfg PlayerConfig, resolver ports.Resolver) (*Player, *recordingPublisher, *memCache) {
	t.Helper()
	pub := &recordingPublisher{}
	cache := newMemCache()
	p := NewPlayer(snowflake.ID(1), cfg, resolver, cache, pub)
	t.Cleanup(p.Stop)
	return p, pub, cache
}

func mustConnect(t *testing.T, p *Player) {
	t.Helper()
	if err := p.Connect(context.Background(), snowflake.ID(7), "sess-1"); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
}

func mustAdd(t *testing.T, p *Player, source string) {
	t.Helper()
	requester := domain.Requester{ID: snowflake.ID(42), Name: "tester"}
	if _, err := p.AddToQueue(context.Background(), source, requester); err != nil {
		t.Fatalf("AddToQueue(%q) error = %v", source, err)
	}
}

func TestAddToQueueStartsIdlePlayer(t *testing.T) {
	resolver := newFakeResolver()
	resolver.add("trackX", "Track X")
	p, pub, _ := newTestPlayer(t, testConfig(), resolver)
	mustConnect(t, p)

	mustAdd(t, p, "trackX")

	waitFor(t, func() bool { return len(pub.ofKind("song_started")) == 1 }, "song_started")

	started := pub.ofKind("song_started")[0]
	if got := started.track.Title(); got != "Track X" {
		t.Errorf("started track = %q, want %q", got, "Track X")
	}
	if started.resumed {
		t.Error("fresh start reported resumed = true")
	}

	state, err := p.State(context.Background())
	if err != nil {
		t.Fatalf("State() error = %v", err)
	}
	if state.Status != domain.StatusPlaying {
		t.Errorf("status = %v, want %v", state.Status, domain.StatusPlaying)
	}
	if state.Queue == nil || len(state.Queue) != 0 {
		t.Errorf("queue length = %d, want 0", len(state.Queue))
	}
}

func TestAddToQueueWhilePlayingDoesNotInterrupt(t *testing.T) {
	resolver := newFakeResolver()
	resolver.add("trackX", "Track X")
	resolver.add("trackY", "Track Y")
	p, pub, _ := newTestPlayer(t, testConfig(), resolver)
	mustConnect(t, p)

	mustAdd(t, p, "trackX")
	waitFor(t, func() bool { return len(pub.ofKind("song_started")) == 1 }, "first song_started")

	mustAdd(t, p, "trackY")

	state, err := p.State(context.Background())
	if err != nil {
		t.Fatalf("State() error = %v", err)
	}
	if got := state.Current.Title(); got != "Track X" {
		t.Errorf("current = %q, want unchanged %q", got, "Track X")
	}
	if len(state.Queue) != 1 || state.Queue[0].Source != "trackY" {
		t.Errorf("queue = %v, want exactly [trackY]", state.Queue)
	}
	if got := len(pub.ofKind("song_started")); got != 1 {
		t.Errorf("song_started count = %d, want 1", got)
	}

	updates := pub.ofKind("queue_updated")
	last := updates[len(updates)-1]
	if len(last.queue) != 1 || last.queue[0].Source != "trackY" {
		t.Errorf("last queue_updated = %v, want [trackY]", last.queue)
	}
}

func TestSkipAdvancesToNextTrack(t *testing.T) {
	resolver := newFakeResolver()
	resolver.add("trackX", "Track X")
	resolver.add("trackY", "Track Y")
	p, pub, _ := newTestPlayer(t, testConfig(), resolver)
	mustConnect(t, p)

	mustAdd(t, p, "trackX")
	waitFor(t, func() bool { return len(pub.ofKind("song_started")) == 1 }, "first song_started")
	mustAdd(t, p, "trackY")

	if err := p.Skip(context.Background()); err != nil {
		t.Fatalf("Skip() error = %v", err)
	}

	waitFor(t, func() bool { return len(pub.ofKind("song_started")) == 2 }, "second song_started")

	ended := pub.ofKind("song_ended")
	if len(ended) != 1 || ended[0].reason != domain.EndSkipped {
		t.Fatalf("song_ended = %v, want one event with reason skipped", ended)
	}
	if got := ended[0].track.Title(); got != "Track X" {
		t.Errorf("ended track = %q, want %q", got, "Track X")
	}
	if got := pub.ofKind("song_started")[1].track.Title(); got != "Track Y" {
		t.Errorf("next track = %q, want %q", got, "Track Y")
	}
}

func TestSkipLastTrackGoesIdle(t *testing.T) {
	resolver := newFakeResolver()
	resolver.add("trackX", "Track X")
	p, pub, _ := newTestPlayer(t, testConfig(), resolver)
	mustConnect(t, p)

	mustAdd(t, p, "trackX")
	waitFor(t, func() bool { return len(pub.ofKind("song_started")) == 1 }, "song_started")

	if err := p.Skip(context.Background()); err != nil {
		t.Fatalf("Skip() error = %v", err)
	}

	if got := len(pub.ofKind("player_idle")); got != 1 {
		t.Errorf("player_idle count = %d, want 1", got)
	}
	state, _ := p.State(context.Background())
	if state.Status != domain.StatusIdle {
		t.Errorf("status = %v, want %v", state.Status, domain.StatusIdle)
	}
}

func TestSkipWithNothingPlayingIsNoop(t *testing.T) {
	p, pub, _ := newTestPlayer(t, testConfig(), newFakeResolver())
	mustConnect(t, p)

	if err := p.Skip(context.Background()); err != nil {
		t.Fatalf("Skip() on idle player error = %v", err)
	}
	if got := len(pub.ofKind("song_ended")); got != 0 {
		t.Errorf("song_ended count = %d, want 0", got)
	}
}

func TestResolutionFailureAdvancesQueue(t *testing.T) {
	resolver := newFakeResolver()
	resolver.fail("broken", ports.ErrTrackNotFound)
	resolver.add("trackY", "Track Y")
	p, pub, _ := newTestPlayer(t, testConfig(), resolver)
	mustConnect(t, p)

	mustAdd(t, p, "broken")
	mustAdd(t, p, "trackY")

	waitFor(t, func() bool { return len(pub.ofKind("song_started")) == 1 }, "song_started for good track")

	failures := pub.ofKind("player_error")
	if len(failures) != 1 {
		t.Fatalf("player_error count = %d, want 1", len(failures))
	}
	if failures[0].source != "broken" {
		t.Errorf("failed source = %q, want %q", failures[0].source, "broken")
	}
	if !errors.Is(failures[0].err, ports.ErrTrackNotFound) {
		t.Errorf("failure error = %v, want ErrTrackNotFound", failures[0].err)
	}
	if got := pub.ofKind("song_started")[0].track.Title(); got != "Track Y" {
		t.Errorf("started track = %q, want %q", got, "Track Y")
	}
}

func TestVoiceSuspendAndResume(t *testing.T) {
	resolver := newFakeResolver()
	resolver.add("trackX", "Track X")
	p, pub, _ := newTestPlayer(t, testConfig(), resolver)
	mustConnect(t, p)

	mustAdd(t, p, "trackX")
	waitFor(t, func() bool { return len(pub.ofKind("song_started")) == 1 }, "song_started")

	if err := p.Suspend(context.Background()); err != nil {
		t.Fatalf("Suspend() error = %v", err)
	}
	state, _ := p.State(context.Background())
	if state.Status != domain.StatusPaused {
		t.Fatalf("status after suspend = %v, want %v", state.Status, domain.StatusPaused)
	}
	if state.Current == nil || state.Current.Title() != "Track X" {
		t.Fatal("current track lost across suspend")
	}

	if err := p.Resume(context.Background()); err != nil {
		t.Fatalf("Resume() error = %v", err)
	}
	started := pub.ofKind("song_started")
	if len(started) != 2 {
		t.Fatalf("song_started count = %d, want 2", len(started))
	}
	if !started[1].resumed {
		t.Error("resume restart reported resumed = false")
	}
	// The cached resolution must be reused rather than re-resolved.
	if got := resolver.callCount("trackX"); got != 1 {
		t.Errorf("resolver calls = %d, want 1", got)
	}
}

func TestTrackReadyWhileDisconnectedParksPaused(t *testing.T) {
	resolver := newFakeResolver()
	resolver.add("trackX", "Track X")
	p, pub, _ := newTestPlayer(t, testConfig(), resolver)

	mustAdd(t, p, "trackX")
	waitFor(t, func() bool {
		state, err := p.State(context.Background())
		return err == nil && state.Status == domain.StatusPaused
	}, "paused state")

	if got := len(pub.ofKind("song_started")); got != 0 {
		t.Fatalf("song_started before connect = %d, want 0", got)
	}

	mustConnect(t, p)
	started := pub.ofKind("song_started")
	if len(started) != 1 {
		t.Fatalf("song_started after connect = %d, want 1", len(started))
	}
	if !started[0].resumed {
		t.Error("deferred start reported resumed = false")
	}
}

func TestAddToQueueFull(t *testing.T) {
	cfg := testConfig()
	cfg.MaxQueueLength = 1
	resolver := newFakeResolver()
	resolver.add("trackX", "Track X")
	resolver.add("trackY", "Track Y")
	resolver.add("trackZ", "Track Z")
	p, _, _ := newTestPlayer(t, cfg, resolver)
	mustConnect(t, p)

	requester := domain.Requester{ID: snowflake.ID(42), Name: "tester"}
	mustAdd(t, p, "trackX")
	waitFor(t, func() bool {
		state, err := p.State(context.Background())
		return err == nil && state.Status == domain.StatusPlaying
	}, "playing state")
	mustAdd(t, p, "trackY")

	if _, err := p.AddToQueue(context.Background(), "trackZ", requester); !errors.Is(err, ErrQueueFull) {
		t.Errorf("AddToQueue() error = %v, want ErrQueueFull", err)
	}

	state, _ := p.State(context.Background())
	if len(state.Queue) != 1 {
		t.Errorf("queue length = %d, want 1 (rejected add must not mutate)", len(state.Queue))
	}
}

func TestRemoveFromQueue(t *testing.T) {
	resolver := newFakeResolver()
	for _, s := range []string{"trackX", "trackY", "trackZ"} {
		resolver.add(s, s)
	}
	p, pub, _ := newTestPlayer(t, testConfig(), resolver)
	mustConnect(t, p)

	mustAdd(t, p, "trackX")
	waitFor(t, func() bool { return len(pub.ofKind("song_started")) == 1 }, "song_started")
	mustAdd(t, p, "trackY")
	mustAdd(t, p, "trackZ")

	removed, err := p.RemoveFromQueue(context.Background(), 0)
	if err != nil {
		t.Fatalf("RemoveFromQueue(0) error = %v", err)
	}
	if removed.Source != "trackY" {
		t.Errorf("removed = %q, want %q", removed.Source, "trackY")
	}

	if _, err := p.RemoveFromQueue(context.Background(), 5); !errors.Is(err, ErrInvalidPosition) {
		t.Errorf("RemoveFromQueue(5) error = %v, want ErrInvalidPosition", err)
	}

	state, _ := p.State(context.Background())
	if len(state.Queue) != 1 || state.Queue[0].Source != "trackZ" {
		t.Errorf("queue = %v, want [trackZ]", state.Queue)
	}
}

func TestResetIsIdempotent(t *testing.T) {
	resolver := newFakeResolver()
	resolver.add("trackX", "Track X")
	p, pub, _ := newTestPlayer(t, testConfig(), resolver)
	mustConnect(t, p)

	mustAdd(t, p, "trackX")
	waitFor(t, func() bool { return len(pub.ofKind("song_started")) == 1 }, "song_started")

	if err := p.Reset(context.Background()); err != nil {
		t.Fatalf("Reset() error = %v", err)
	}
	if err := p.Reset(context.Background()); err != nil {
		t.Fatalf("second Reset() error = %v", err)
	}

	if got := len(pub.ofKind("player_stopped")); got != 1 {
		t.Errorf("player_stopped count = %d, want 1 (idle reset must not re-emit)", got)
	}
	state, _ := p.State(context.Background())
	if state.Status != domain.StatusIdle || state.Current != nil || len(state.Queue) != 0 {
		t.Errorf("state after reset = %+v, want idle and empty", state)
	}
}

func TestLoopReplaysCurrentTrack(t *testing.T) {
	resolver := newFakeResolver()
	resolver.add("trackX", "Track X")
	p, pub, _ := newTestPlayer(t, testConfig(), resolver)
	mustConnect(t, p)

	if err := p.SetLoop(context.Background(), true); err != nil {
		t.Fatalf("SetLoop() error = %v", err)
	}
	mustAdd(t, p, "trackX")
	waitFor(t, func() bool { return len(pub.ofKind("song_started")) == 1 }, "first song_started")

	if err := p.PlayNext(context.Background()); err != nil {
		t.Fatalf("PlayNext() error = %v", err)
	}

	started := pub.ofKind("song_started")
	if len(started) != 2 {
		t.Fatalf("song_started count = %d, want 2", len(started))
	}
	if got := started[1].track.Title(); got != "Track X" {
		t.Errorf("replayed track = %q, want %q", got, "Track X")
	}
	// Replays reuse the attached resolution; the resolver is hit once.
	if got := resolver.callCount("trackX"); got != 1 {
		t.Errorf("resolver calls = %d, want 1", got)
	}
}

func TestSkipDiscardsInFlightResolution(t *testing.T) {
	resolver := newFakeResolver()
	resolver.add("slow", "Slow Track")
	resolver.gate = make(chan struct{})
	p, pub, _ := newTestPlayer(t, testConfig(), resolver)
	mustConnect(t, p)

	mustAdd(t, p, "slow")
	waitFor(t, func() bool { return resolver.callCount("slow") == 1 }, "resolution start")

	if err := p.Skip(context.Background()); err != nil {
		t.Fatalf("Skip() error = %v", err)
	}
	close(resolver.gate)

	waitFor(t, func() bool { return len(pub.ofKind("player_idle")) == 1 }, "player_idle")
	time.Sleep(50 * time.Millisecond)

	if got := len(pub.ofKind("song_started")); got != 0 {
		t.Errorf("song_started count = %d, want 0 (stale resolution must be discarded)", got)
	}
	if got := len(pub.ofKind("player_error")); got != 0 {
		t.Errorf("player_error count = %d, want 0 (cancelled resolution is not a failure)", got)
	}
}

func TestPreloadWarmsCache(t *testing.T) {
	cfg := testConfig()
	cfg.PreloadCount = 2
	resolver := newFakeResolver()
	for _, s := range []string{"trackX", "trackY", "trackZ"} {
		resolver.add(s, s)
	}
	p, pub, cache := newTestPlayer(t, cfg, resolver)
	mustConnect(t, p)

	mustAdd(t, p, "trackX")
	waitFor(t, func() bool { return len(pub.ofKind("song_started")) == 1 }, "song_started")
	mustAdd(t, p, "trackY")
	mustAdd(t, p, "trackZ")

	waitFor(t, func() bool {
		_, okY := cache.Get("trackY")
		_, okZ := cache.Get("trackZ")
		return okY && okZ
	}, "preloaded cache entries")
}

func TestConnectRetainsChannelAcrossDisconnect(t *testing.T) {
	p, _, _ := newTestPlayer(t, testConfig(), newFakeResolver())
	mustConnect(t, p)

	if err := p.Disconnect(context.Background()); err != nil {
		t.Fatalf("Disconnect() error = %v", err)
	}

	snap, err := p.State(context.Background())
	if err != nil {
		t.Fatalf("State() error = %v", err)
	}
	if snap.Connected {
		t.Error("connected = true after Disconnect")
	}
	// The last known channel and session stick around for snapshots.
	if snap.ChannelID != snowflake.ID(7) || snap.SessionID != "sess-1" {
		t.Errorf("retained channel/session = %v/%q, want 7/%q", snap.ChannelID, snap.SessionID, "sess-1")
	}
}

func TestCommandsAfterStopFail(t *testing.T) {
	p, _, _ := newTestPlayer(t, testConfig(), newFakeResolver())
	p.Stop()

	if err := p.Skip(context.Background()); !errors.Is(err, ErrPlayerClosed) {
		t.Errorf("Skip() after Stop error = %v, want ErrPlayerClosed", err)
	}
}
