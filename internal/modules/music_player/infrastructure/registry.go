package infrastructure

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/disgoorg/snowflake/v2"

	"github.com/monsieurgui/cafe-des-artistes/internal/modules/music_player/application/usecases"
	"github.com/monsieurgui/cafe-des-artistes/internal/modules/music_player/domain"
)

// PlayerFactory creates the player for a guild on first use.
type PlayerFactory func(guildID snowflake.ID) *usecases.Player

// PlayerRegistry owns the per-guild players: lazy creation on first command,
// lookup, and eviction of players that have sat idle past a threshold. Safe
// for concurrent use; the map lock is never held across player calls.
type PlayerRegistry struct {
	mu      sync.Mutex
	players map[snowflake.ID]*registryEntry
	factory PlayerFactory

	idleAfter time.Duration
	done      chan struct{}
	stopOnce  sync.Once
	wg        sync.WaitGroup
}

type registryEntry struct {
	player      *usecases.Player
	lastTouched time.Time
}

// NewPlayerRegistry creates a registry. When idleAfter is positive a janitor
// goroutine evicts players that are idle, empty, and untouched for that
// long.
func NewPlayerRegistry(factory PlayerFactory, idleAfter time.Duration) *PlayerRegistry {
	r := &PlayerRegistry{
		players:   make(map[snowflake.ID]*registryEntry),
		factory:   factory,
		idleAfter: idleAfter,
		done:      make(chan struct{}),
	}
	if idleAfter > 0 {
		r.wg.Add(1)
		go r.janitor()
	}
	return r
}

// GetOrCreate returns the guild's player, creating and registering it on
// first use. Every call refreshes the guild's last-touched time.
func (r *PlayerRegistry) GetOrCreate(guildID snowflake.ID) *usecases.Player {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.players[guildID]
	if !ok {
		entry = &registryEntry{player: r.factory(guildID)}
		r.players[guildID] = entry
		slog.Info("player created", "guild", guildID)
	}
	entry.lastTouched = time.Now()
	return entry.player
}

// Lookup returns the guild's player without creating one.
func (r *PlayerRegistry) Lookup(guildID snowflake.ID) (*usecases.Player, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.players[guildID]
	if !ok {
		return nil, false
	}
	entry.lastTouched = time.Now()
	return entry.player, true
}

// Count returns the number of live players.
func (r *PlayerRegistry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.players)
}

// Shutdown stops the janitor and every player. Safe to call more than once.
func (r *PlayerRegistry) Shutdown() {
	r.stopOnce.Do(func() {
		close(r.done)
	})
	r.wg.Wait()

	r.mu.Lock()
	players := make([]*usecases.Player, 0, len(r.players))
	for _, entry := range r.players {
		players = append(players, entry.player)
	}
	r.players = make(map[snowflake.ID]*registryEntry)
	r.mu.Unlock()

	for _, p := range players {
		p.Stop()
	}
}

func (r *PlayerRegistry) janitor() {
	defer r.wg.Done()

	interval := r.idleAfter / 4
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			r.evictIdle()
		case <-r.done:
			return
		}
	}
}

// evictIdle removes players that drained their queue, dropped their voice
// session, and received no command for idleAfter. State is read outside the
// registry lock so a stuck player cannot stall lookups.
func (r *PlayerRegistry) evictIdle() {
	cutoff := time.Now().Add(-r.idleAfter)

	r.mu.Lock()
	stale := make(map[snowflake.ID]*usecases.Player)
	for guildID, entry := range r.players {
		if entry.lastTouched.Before(cutoff) {
			stale[guildID] = entry.player
		}
	}
	r.mu.Unlock()

	for guildID, player := range stale {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		snap, err := player.State(ctx)
		cancel()
		if err != nil || snap.Status != domain.StatusIdle || len(snap.Queue) != 0 || snap.Connected {
			continue
		}

		r.mu.Lock()
		entry, ok := r.players[guildID]
		// A command may have landed since the stale scan; re-check.
		if ok && entry.player == player && entry.lastTouched.Before(cutoff) {
			delete(r.players, guildID)
		} else {
			ok = false
		}
		r.mu.Unlock()

		if ok {
			player.Stop()
			slog.Info("idle player evicted", "guild", guildID)
		}
	}
}
