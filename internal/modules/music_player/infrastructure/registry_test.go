package infrastructure

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/disgoorg/snowflake/v2"

	"github.com/monsieurgui/cafe-des-artistes/internal/modules/music_player/application/ports"
	"github.com/monsieurgui/cafe-des-artistes/internal/modules/music_player/application/usecases"
	"github.com/monsieurgui/cafe-des-artistes/internal/modules/music_player/domain"
)

type nullPublisher struct{}

func (nullPublisher) SongStarted(snowflake.ID, *domain.TrackRequest, bool)           {}
func (nullPublisher) SongEnded(snowflake.ID, *domain.TrackRequest, domain.EndReason) {}
func (nullPublisher) QueueUpdated(snowflake.ID, []*domain.TrackRequest)              {}
func (nullPublisher) PlayerIdle(snowflake.ID)                                        {}
func (nullPublisher) PlayerStopped(snowflake.ID)                                     {}
func (nullPublisher) PlayerError(snowflake.ID, string, error)                        {}
func (nullPublisher) StateSnapshot(domain.PlayerSnapshot)                            {}

type stubResolver struct{}

func (stubResolver) Resolve(_ context.Context, source string) (*domain.ResolvedTrack, error) {
	return &domain.ResolvedTrack{Title: source, StreamURI: "https://stream/" + source}, nil
}

func testFactory() (PlayerFactory, *int, *sync.Mutex) {
	var (
		mu      sync.Mutex
		created int
	)
	factory := func(guildID snowflake.ID) *usecases.Player {
		mu.Lock()
		created++
		mu.Unlock()
		cfg := usecases.PlayerConfig{
			MaxQueueLength: 10,
			ResolveTimeout: time.Second,
		}
		var resolver ports.Resolver = stubResolver{}
		return usecases.NewPlayer(guildID, cfg, resolver, NewTTLTrackCache(time.Minute, 16), nullPublisher{})
	}
	return factory, &created, &mu
}

func TestRegistryGetOrCreate(t *testing.T) {
	factory, created, mu := testFactory()
	registry := NewPlayerRegistry(factory, 0)
	defer registry.Shutdown()

	first := registry.GetOrCreate(snowflake.ID(1))
	second := registry.GetOrCreate(snowflake.ID(1))
	if first != second {
		t.Error("GetOrCreate returned different players for the same guild")
	}

	other := registry.GetOrCreate(snowflake.ID(2))
	if other == first {
		t.Error("distinct guilds share a player")
	}

	mu.Lock()
	defer mu.Unlock()
	if *created != 2 {
		t.Errorf("factory invocations = %d, want 2", *created)
	}
}

func TestRegistryLookup(t *testing.T) {
	factory, _, _ := testFactory()
	registry := NewPlayerRegistry(factory, 0)
	defer registry.Shutdown()

	if _, ok := registry.Lookup(snowflake.ID(1)); ok {
		t.Error("Lookup created a player")
	}

	created := registry.GetOrCreate(snowflake.ID(1))
	found, ok := registry.Lookup(snowflake.ID(1))
	if !ok || found != created {
		t.Error("Lookup did not return the registered player")
	}
}

func TestRegistryShutdownStopsPlayers(t *testing.T) {
	factory, _, _ := testFactory()
	registry := NewPlayerRegistry(factory, 0)

	player := registry.GetOrCreate(snowflake.ID(1))
	registry.Shutdown()

	if registry.Count() != 0 {
		t.Errorf("Count() after Shutdown = %d, want 0", registry.Count())
	}
	if err := player.Skip(context.Background()); !errors.Is(err, usecases.ErrPlayerClosed) {
		t.Errorf("command after Shutdown error = %v, want ErrPlayerClosed", err)
	}
}

func TestRegistryEvictsIdlePlayers(t *testing.T) {
	factory, _, _ := testFactory()
	registry := NewPlayerRegistry(factory, 50*time.Millisecond)
	defer registry.Shutdown()

	registry.GetOrCreate(snowflake.ID(1))

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if registry.Count() == 0 {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal("idle player was never evicted")
}

func TestRegistryKeepsConnectedPlayers(t *testing.T) {
	factory, _, _ := testFactory()
	registry := NewPlayerRegistry(factory, 50*time.Millisecond)
	defer registry.Shutdown()

	player := registry.GetOrCreate(snowflake.ID(1))
	if err := player.Connect(context.Background(), snowflake.ID(7), "sess-1"); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	// Idle and queue-less, but still holding a voice session: not evictable.
	time.Sleep(300 * time.Millisecond)
	if registry.Count() != 1 {
		t.Fatalf("Count() = %d, want 1 (connected player must not be evicted)", registry.Count())
	}

	if err := player.Disconnect(context.Background()); err != nil {
		t.Fatalf("Disconnect() error = %v", err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if registry.Count() == 0 {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal("disconnected idle player was never evicted")
}

func TestRegistryKeepsBusyPlayers(t *testing.T) {
	factory, _, _ := testFactory()
	registry := NewPlayerRegistry(factory, 50*time.Millisecond)
	defer registry.Shutdown()

	player := registry.GetOrCreate(snowflake.ID(1))
	if err := player.Connect(context.Background(), snowflake.ID(7), "sess-1"); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	requester := domain.Requester{ID: snowflake.ID(42), Name: "tester"}
	if _, err := player.AddToQueue(context.Background(), "trackX", requester); err != nil {
		t.Fatalf("AddToQueue() error = %v", err)
	}

	// Playing players survive eviction sweeps regardless of touch age.
	time.Sleep(300 * time.Millisecond)
	if registry.Count() != 1 {
		t.Errorf("Count() = %d, want 1 (active player must not be evicted)", registry.Count())
	}
}
