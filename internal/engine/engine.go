package engine

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/disgoorg/snowflake/v2"

	"github.com/monsieurgui/cafe-des-artistes/internal/ipc"
	"github.com/monsieurgui/cafe-des-artistes/internal/modules/music_player/application/usecases"
	"github.com/monsieurgui/cafe-des-artistes/internal/modules/music_player/domain"
	"github.com/monsieurgui/cafe-des-artistes/internal/modules/music_player/infrastructure"
)

// Engine composes the IPC server, the player registry, and the resolver
// stack into the standalone playback service.
type Engine struct {
	cfg      *Config
	server   *ipc.Server
	registry *infrastructure.PlayerRegistry
}

// New wires an Engine from configuration. Start must be called before it
// serves commands.
func New(cfg *Config) *Engine {
	e := &Engine{cfg: cfg}
	e.server = ipc.NewServer(ipc.ServerConfig{
		BindHost:    cfg.BindHost,
		CommandPort: cfg.CommandPort,
		EventPort:   cfg.EventPort,
	}, e.Handle)

	resolver := infrastructure.NewYoutubeResolver()
	cache := infrastructure.NewTTLTrackCache(cfg.CacheTTL, cfg.CacheMaxEntries)
	publisher := infrastructure.NewIPCEventPublisher(e.server)
	playerCfg := usecases.PlayerConfig{
		MaxQueueLength: cfg.MaxQueueLength,
		ResolveTimeout: cfg.ResolveTimeout,
		PreloadCount:   cfg.PreloadCount,
	}
	e.registry = infrastructure.NewPlayerRegistry(func(guildID snowflake.ID) *usecases.Player {
		return usecases.NewPlayer(guildID, playerCfg, resolver, cache, publisher)
	}, cfg.IdleEviction)

	return e
}

// Start binds the command and event channels.
func (e *Engine) Start() error {
	return e.server.Start()
}

// Shutdown stops every guild player and closes both channels.
func (e *Engine) Shutdown(ctx context.Context) error {
	e.registry.Shutdown()
	return e.server.Shutdown(ctx)
}

// Handle routes one command to its guild's player. Commands for different
// guilds run concurrently; the player serializes its own guild.
func (e *Engine) Handle(ctx context.Context, msg ipc.Message) ipc.Response {
	if msg.GuildID == snowflake.ID(0) {
		return ipc.Errorf(ipc.CodeProtocolError, "missing guild_id for %s", msg.Action)
	}

	slog.Debug("command received",
		"action", msg.Action,
		"guild", msg.GuildID,
		"correlation_id", msg.CorrelationID,
	)

	player := e.registry.GetOrCreate(msg.GuildID)

	// Payload-less commands tolerate absent data, but garbage in the data
	// field is still a protocol error.
	switch msg.Action {
	case ipc.ActionDisconnect, ipc.ActionVoiceSuspended, ipc.ActionVoiceResumed,
		ipc.ActionSkipSong, ipc.ActionPlayNext, ipc.ActionResetPlayer, ipc.ActionGetState:
		if len(msg.Data) > 0 {
			if err := msg.DecodePayload(&struct{}{}); err != nil {
				return ipc.Errorf(ipc.CodeProtocolError, "%v", err)
			}
		}
	}

	switch msg.Action {
	case ipc.ActionConnect:
		var payload ipc.ConnectPayload
		if len(msg.Data) > 0 {
			if err := msg.DecodePayload(&payload); err != nil {
				return ipc.Errorf(ipc.CodeProtocolError, "%v", err)
			}
		}
		// The front end owns the voice handshake; connecting marks the
		// transport usable so parked playback can resume.
		return simple(player.Connect(ctx, payload.ChannelID, payload.SessionID))

	case ipc.ActionDisconnect:
		return simple(player.Disconnect(ctx))

	case ipc.ActionVoiceSuspended:
		return simple(player.Suspend(ctx))

	case ipc.ActionVoiceResumed:
		return simple(player.Resume(ctx))

	case ipc.ActionAddToQueue:
		var payload ipc.AddToQueuePayload
		if err := msg.DecodePayload(&payload); err != nil {
			return ipc.Errorf(ipc.CodeProtocolError, "%v", err)
		}
		if payload.Source == "" {
			return ipc.Errorf(ipc.CodeProtocolError, "empty source for %s", msg.Action)
		}
		requester := domain.Requester{ID: payload.RequesterID, Name: payload.RequesterName}
		position, err := player.AddToQueue(ctx, payload.Source, requester)
		if err != nil {
			return failure(err)
		}
		return ipc.OK(ipc.AddToQueueResult{Position: position})

	case ipc.ActionRemoveFromQueue:
		var payload ipc.RemoveFromQueuePayload
		if err := msg.DecodePayload(&payload); err != nil {
			return ipc.Errorf(ipc.CodeProtocolError, "%v", err)
		}
		removed, err := player.RemoveFromQueue(ctx, payload.Position)
		if err != nil {
			return failure(err)
		}
		return ipc.OK(infrastructure.TrackToWire(removed))

	case ipc.ActionSkipSong:
		return simple(player.Skip(ctx))

	case ipc.ActionPlayNext:
		return simple(player.PlayNext(ctx))

	case ipc.ActionResetPlayer:
		return simple(player.Reset(ctx))

	case ipc.ActionSetLoop:
		var payload ipc.SetLoopPayload
		if err := msg.DecodePayload(&payload); err != nil {
			return ipc.Errorf(ipc.CodeProtocolError, "%v", err)
		}
		return simple(player.SetLoop(ctx, payload.Enabled))

	case ipc.ActionGetState:
		snap, err := player.State(ctx)
		if err != nil {
			return failure(err)
		}
		return ipc.OK(infrastructure.SnapshotToWire(snap))

	default:
		return ipc.Errorf(ipc.CodeProtocolError, "unknown action %q", msg.Action)
	}
}

func simple(err error) ipc.Response {
	if err != nil {
		return failure(err)
	}
	return ipc.OK(nil)
}

func failure(err error) ipc.Response {
	return ipc.Response{
		Status: ipc.StatusError,
		Error: &ipc.ErrorDetail{
			Code:    infrastructure.ErrorCodeFor(err),
			Message: fmt.Sprintf("%v", err),
		},
	}
}
