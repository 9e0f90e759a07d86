// Package usecases implements the per-guild playback engine: one state
// machine and queue per guild, driven by IPC commands and emitting IPC
// events.
package usecases

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/disgoorg/snowflake/v2"

	"github.com/monsieurgui/cafe-des-artistes/internal/modules/music_player/application/ports"
	"github.com/monsieurgui/cafe-des-artistes/internal/modules/music_player/domain"
)

// PlayerConfig bounds one guild player's queue and resolution behavior.
type PlayerConfig struct {
	MaxQueueLength int
	ResolveTimeout time.Duration
	PreloadCount   int
}

// envelope is one serialized unit of work for the actor loop.
type envelope struct {
	fn func()
}

// resolveResult carries a finished resolution back into the actor loop.
type resolveResult struct {
	generation uint64
	trackID    string
	resolved   *domain.ResolvedTrack
	err        error
}

// Player is the playback state machine for a single guild. All state is
// owned by one goroutine; commands are serialized through a mailbox, so no
// two commands for the same guild ever execute concurrently and events for
// a guild are emitted in command order.
type Player struct {
	guildID   snowflake.ID
	cfg       PlayerConfig
	resolver  ports.Resolver
	cache     ports.TrackCache
	publisher ports.EventPublisher

	mailbox     chan envelope
	resolveDone chan resolveResult
	done        chan struct{}
	stopOnce    sync.Once

	// preloading guards against duplicate eager resolutions; written by
	// preload goroutines, hence a sync.Map rather than actor state.
	preloading sync.Map

	// Everything below is owned exclusively by the run goroutine.
	status        domain.Status
	queue         domain.Queue
	current       *domain.TrackRequest
	loopEnabled   bool
	startedAt     time.Time
	connected     bool
	channelID     snowflake.ID
	sessionID     string
	generation    uint64
	resolveCancel context.CancelFunc
}

// NewPlayer creates a guild player and starts its actor loop.
func NewPlayer(
	guildID snowflake.ID,
	cfg PlayerConfig,
	resolver ports.Resolver,
	cache ports.TrackCache,
	publisher ports.EventPublisher,
) *Player {
	p := &Player{
		guildID:     guildID,
		cfg:         cfg,
		resolver:    resolver,
		cache:       cache,
		publisher:   publisher,
		mailbox:     make(chan envelope, 16),
		resolveDone: make(chan resolveResult, 1),
		done:        make(chan struct{}),
		status:      domain.StatusIdle,
		queue:       domain.NewQueue(),
	}
	go p.run()
	return p
}

func (p *Player) run() {
	for {
		select {
		case env := <-p.mailbox:
			env.fn()
		case res := <-p.resolveDone:
			p.handleResolved(res)
		case <-p.done:
			return
		}
	}
}

// Stop terminates the actor loop. Pending and future commands fail with
// ErrPlayerClosed. Used on eviction and shutdown.
func (p *Player) Stop() {
	p.stopOnce.Do(func() {
		close(p.done)
	})
}

// exec runs fn inside the actor loop and waits for it to finish.
func (p *Player) exec(ctx context.Context, fn func()) error {
	finished := make(chan struct{})
	env := envelope{fn: func() {
		defer close(finished)
		fn()
	}}

	select {
	case p.mailbox <- env:
	case <-ctx.Done():
		return ctx.Err()
	case <-p.done:
		return ErrPlayerClosed
	}

	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-p.done:
		return ErrPlayerClosed
	}
}

// AddToQueue appends a request, starting playback immediately when the
// player is idle. Returns the number of requests still waiting after the
// command (0 means the track went straight to loading).
func (p *Player) AddToQueue(ctx context.Context, source string, requester domain.Requester) (int, error) {
	var (
		position int
		cmdErr   error
	)
	err := p.exec(ctx, func() {
		if p.queue.Len() >= p.cfg.MaxQueueLength {
			cmdErr = ErrQueueFull
			return
		}

		track := domain.NewTrackRequest(source, requester)
		p.queue.Append(track)

		slog.Debug("track enqueued",
			"guild", p.guildID,
			"source", source,
			"requester", requester.Name,
			"queue_len", p.queue.Len(),
		)

		if p.status == domain.StatusIdle {
			p.startNext()
		} else if p.status == domain.StatusPlaying {
			p.preloadUpcoming()
		}

		position = p.queue.Len()
		p.publisher.QueueUpdated(p.guildID, cloneTracks(p.queue.Snapshot()))
	})
	if err != nil {
		return 0, err
	}
	return position, cmdErr
}

// RemoveFromQueue drops the request at the given zero-based position and
// re-indexes the remainder. Emits QueueUpdated on success.
func (p *Player) RemoveFromQueue(ctx context.Context, position int) (*domain.TrackRequest, error) {
	var (
		removed *domain.TrackRequest
		cmdErr  error
	)
	err := p.exec(ctx, func() {
		track := p.queue.RemoveAt(position)
		if track == nil {
			cmdErr = ErrInvalidPosition
			return
		}
		removed = cloneTrack(track)
		p.publisher.QueueUpdated(p.guildID, cloneTracks(p.queue.Snapshot()))
	})
	if err != nil {
		return nil, err
	}
	return removed, cmdErr
}

// Skip discards the current track and advances. Skipping with nothing
// playing is a no-op success so retries are harmless.
func (p *Player) Skip(ctx context.Context) error {
	return p.exec(ctx, func() {
		if p.current == nil {
			return
		}
		p.cancelResolve()
		ended := p.current
		p.current = nil
		p.publisher.SongEnded(p.guildID, cloneTrack(ended), domain.EndSkipped)
		p.startNext()
	})
}

// PlayNext is the natural-end signal from the playback collaborator. With
// looping enabled the finished track is replayed from the queue front;
// otherwise the queue advances.
func (p *Player) PlayNext(ctx context.Context) error {
	return p.exec(ctx, func() {
		if p.current == nil {
			return
		}
		ended := p.current
		p.current = nil
		p.publisher.SongEnded(p.guildID, cloneTrack(ended), domain.EndFinished)

		if p.loopEnabled {
			p.queue.PushFront(ended)
		}
		p.startNext()
	})
}

// Reset clears the queue, discards the current track, and returns the
// player to idle. Resetting an already-idle player is a no-op success and
// emits nothing.
func (p *Player) Reset(ctx context.Context) error {
	return p.exec(ctx, func() {
		if p.status == domain.StatusIdle && p.current == nil && p.queue.IsEmpty() {
			return
		}

		p.cancelResolve()
		dropped := p.queue.Clear()
		p.current = nil
		p.status = domain.StatusIdle
		p.startedAt = time.Time{}

		slog.Info("player reset", "guild", p.guildID, "dropped", dropped)

		p.publisher.PlayerStopped(p.guildID)
		p.publisher.QueueUpdated(p.guildID, nil)
	})
}

// SetLoop toggles replaying the current track on natural end.
func (p *Player) SetLoop(ctx context.Context, enabled bool) error {
	return p.exec(ctx, func() {
		p.loopEnabled = enabled
	})
}

// Connect marks the voice transport as available and resumes or starts
// playback that was waiting on it. The channel and session identify where
// the front end joined; they are retained across disconnects so snapshots
// keep reporting the last known channel. Idempotent.
func (p *Player) Connect(ctx context.Context, channelID snowflake.ID, sessionID string) error {
	return p.exec(ctx, func() {
		if channelID != snowflake.ID(0) {
			p.channelID = channelID
		}
		if sessionID != "" {
			p.sessionID = sessionID
		}
		p.attach()
	})
}

// Resume is Connect for a recovered transport session.
func (p *Player) Resume(ctx context.Context) error {
	return p.exec(ctx, func() {
		p.attach()
	})
}

// Disconnect marks the transport as gone after an explicit leave. The queue
// is retained; a current track is paused. Disconnecting an already
// disconnected player is a no-op success.
func (p *Player) Disconnect(ctx context.Context) error {
	return p.exec(ctx, func() {
		p.detach("disconnect")
	})
}

// Suspend marks the transport as temporarily lost. Playback pauses in place
// pending Resume.
func (p *Player) Suspend(ctx context.Context) error {
	return p.exec(ctx, func() {
		p.detach("suspend")
	})
}

// State returns a read-only snapshot taken inside the serialized context.
func (p *Player) State(ctx context.Context) (domain.PlayerSnapshot, error) {
	var snap domain.PlayerSnapshot
	err := p.exec(ctx, func() {
		snap = p.snapshot()
	})
	return snap, err
}

func (p *Player) attach() {
	wasConnected := p.connected
	p.connected = true
	if wasConnected {
		return
	}

	switch {
	case p.status == domain.StatusPaused && p.current != nil:
		slog.Info("voice available, resuming playback",
			"guild", p.guildID,
			"track", p.current.Title(),
		)
		p.startTrack(p.current, true)
	case p.status == domain.StatusIdle && !p.queue.IsEmpty():
		p.startNext()
	}
	p.publisher.StateSnapshot(p.snapshot())
}

func (p *Player) detach(cause string) {
	if !p.connected {
		return
	}
	p.connected = false
	if p.status == domain.StatusPlaying {
		p.status = domain.StatusPaused
		slog.Info("voice lost, pausing playback",
			"guild", p.guildID,
			"cause", cause,
			"track", p.current.Title(),
		)
	}
	p.publisher.StateSnapshot(p.snapshot())
}

// startNext pops the queue head and begins loading it, or goes idle.
func (p *Player) startNext() {
	next := p.queue.PopFront()
	if next == nil {
		p.toIdle()
		return
	}
	p.startTrack(next, false)
}

// startTrack drives one request through Loading towards Playing. Cached
// resolutions short-circuit the Resolver entirely.
func (p *Player) startTrack(track *domain.TrackRequest, resumed bool) {
	p.current = track
	p.status = domain.StatusLoading
	p.generation++
	gen := p.generation

	if track.Resolved == nil {
		if cached, ok := p.cache.Get(track.Source); ok {
			track.Resolved = cached
		}
	}
	if track.Resolved != nil {
		p.beginPlayback(resumed)
		p.preloadUpcoming()
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), p.cfg.ResolveTimeout)
	p.resolveCancel = cancel
	go p.resolve(ctx, cancel, gen, track)
}

// resolve runs off the actor loop and posts its outcome back through
// resolveDone. The track pointer is read-only here; only the actor mutates
// it.
func (p *Player) resolve(ctx context.Context, cancel context.CancelFunc, gen uint64, track *domain.TrackRequest) {
	defer cancel()

	resolved, err := p.resolver.Resolve(ctx, track.Source)
	if err != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) {
		err = fmt.Errorf("%w: %s", ErrResolverTimeout, track.Source)
	}

	select {
	case p.resolveDone <- resolveResult{generation: gen, trackID: track.ID, resolved: resolved, err: err}:
	case <-p.done:
	}
}

func (p *Player) handleResolved(res resolveResult) {
	// A resolution that finished after a skip or reset is stale; its track
	// is gone and its result must not be applied.
	if res.generation != p.generation || p.current == nil || p.current.ID != res.trackID {
		slog.Debug("discarding stale resolution", "guild", p.guildID)
		return
	}
	p.resolveCancel = nil

	if res.err != nil {
		failed := p.current
		p.current = nil
		slog.Warn("track resolution failed",
			"guild", p.guildID,
			"source", failed.Source,
			"error", res.err,
		)
		p.publisher.PlayerError(p.guildID, failed.Source, res.err)
		// One bad source never blocks the guild: advance immediately.
		p.startNext()
		return
	}

	p.current.Resolved = res.resolved
	p.cache.Put(p.current.Source, res.resolved)
	p.beginPlayback(false)
	p.preloadUpcoming()
}

// beginPlayback moves Loading to Playing, unless the voice transport is
// down, in which case the track parks in Paused until attach.
func (p *Player) beginPlayback(resumed bool) {
	if !p.connected {
		p.status = domain.StatusPaused
		slog.Debug("track ready but voice unavailable, holding",
			"guild", p.guildID,
			"track", p.current.Title(),
		)
		return
	}

	p.status = domain.StatusPlaying
	if !resumed || p.startedAt.IsZero() {
		p.startedAt = time.Now().UTC()
	}

	slog.Info("track started",
		"guild", p.guildID,
		"track", p.current.Title(),
		"resumed", resumed,
	)
	p.publisher.SongStarted(p.guildID, cloneTrack(p.current), resumed)
}

func (p *Player) toIdle() {
	p.status = domain.StatusIdle
	p.current = nil
	p.startedAt = time.Time{}
	p.publisher.PlayerIdle(p.guildID)
}

// preloadUpcoming eagerly resolves the next few queued sources into the
// shared cache so advancing does not stall on resolution latency.
func (p *Player) preloadUpcoming() {
	if p.cfg.PreloadCount <= 0 {
		return
	}
	for i, track := range p.queue.Snapshot() {
		if i >= p.cfg.PreloadCount {
			break
		}
		if track.Resolved != nil {
			continue
		}
		if _, ok := p.cache.Get(track.Source); ok {
			continue
		}
		if _, inflight := p.preloading.LoadOrStore(track.Source, struct{}{}); inflight {
			continue
		}
		go p.preloadSource(track.Source)
	}
}

func (p *Player) preloadSource(source string) {
	defer p.preloading.Delete(source)

	ctx, cancel := context.WithTimeout(context.Background(), p.cfg.ResolveTimeout)
	defer cancel()

	resolved, err := p.resolver.Resolve(ctx, source)
	if err != nil {
		// Preloads are best-effort; the real attempt happens at start time.
		slog.Debug("preload failed", "guild", p.guildID, "source", source, "error", err)
		return
	}
	p.cache.Put(source, resolved)
}

func (p *Player) cancelResolve() {
	if p.resolveCancel != nil {
		p.resolveCancel()
		p.resolveCancel = nil
	}
}

func (p *Player) snapshot() domain.PlayerSnapshot {
	snap := domain.PlayerSnapshot{
		GuildID:     p.guildID,
		Status:      p.status,
		Queue:       cloneTracks(p.queue.Snapshot()),
		LoopEnabled: p.loopEnabled,
		Connected:   p.connected,
		ChannelID:   p.channelID,
		SessionID:   p.sessionID,
	}
	if p.current != nil {
		snap.Current = cloneTrack(p.current)
	}
	if !p.startedAt.IsZero() {
		t := p.startedAt
		snap.StartedAt = &t
	}
	return snap
}

// cloneTrack copies a request so published events never share mutable state
// with the actor. ResolvedTrack values are immutable once attached, so the
// pointer is shared safely.
func cloneTrack(t *domain.TrackRequest) *domain.TrackRequest {
	if t == nil {
		return nil
	}
	cp := *t
	return &cp
}

func cloneTracks(tracks []*domain.TrackRequest) []*domain.TrackRequest {
	out := make([]*domain.TrackRequest, len(tracks))
	for i, t := range tracks {
		out[i] = cloneTrack(t)
	}
	return out
}
