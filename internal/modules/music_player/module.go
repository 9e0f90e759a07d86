// Package music_player is the front-end music module: slash commands and
// voice connection management backed by the standalone player service.
package music_player

import (
	"context"
	"log/slog"

	"github.com/bwmarrin/discordgo"
	"github.com/caarlos0/env/v11"
	"github.com/disgoorg/snowflake/v2"

	"github.com/monsieurgui/cafe-des-artistes/internal/bot"
	"github.com/monsieurgui/cafe-des-artistes/internal/ipc"
	"github.com/monsieurgui/cafe-des-artistes/internal/modules/music_player/presentation"
	"github.com/monsieurgui/cafe-des-artistes/internal/modules/music_player/presentation/discord"
	"github.com/monsieurgui/cafe-des-artistes/internal/voice"
)

func init() {
	bot.Register(&MusicPlayerModule{})
}

// Compile-time interface checks.
var _ bot.ConfigurableModule = (*MusicPlayerModule)(nil)

// MusicPlayerModule provides music playback commands.
type MusicPlayerModule struct {
	config          *Config
	client          *ipc.Client
	voiceManager    *voice.Manager
	relay           *discord.EventRelay
	commandHandlers *discord.CommandHandlers

	ctx    context.Context
	cancel context.CancelFunc
}

// Name returns the module name.
func (m *MusicPlayerModule) Name() string {
	return "music_player"
}

// Commands returns the slash commands for this module.
func (m *MusicPlayerModule) Commands() []*discordgo.ApplicationCommand {
	return presentation.Commands()
}

// CommandHandlers returns the command handlers for this module.
func (m *MusicPlayerModule) CommandHandlers() map[string]bot.InteractionHandler {
	return map[string]bot.InteractionHandler{
		"play":  m.commandHandlers.HandlePlay,
		"skip":  m.commandHandlers.HandleSkip,
		"stop":  m.commandHandlers.HandleStop,
		"queue": m.commandHandlers.HandleQueue,
		"loop":  m.commandHandlers.HandleLoop,
		"leave": m.commandHandlers.HandleLeave,
		"state": m.commandHandlers.HandleState,
	}
}

// EventHandlers returns the event handlers for this module.
func (m *MusicPlayerModule) EventHandlers() []bot.EventHandler {
	return []bot.EventHandler{
		func(s *discordgo.Session, event *discordgo.VoiceStateUpdate) {
			m.handleVoiceStateUpdate(s, event)
		},
	}
}

// LoadConfig loads module-specific configuration from environment variables.
func (m *MusicPlayerModule) LoadConfig() error {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return err
	}
	m.config = cfg
	return nil
}

// Init connects to the player service and wires the voice stack.
func (m *MusicPlayerModule) Init(deps bot.ModuleDependencies) error {
	client, err := ipc.Dial(ipc.ClientConfig{
		Host:        m.config.PlayerServiceHost,
		CommandPort: m.config.CommandPort,
		EventPort:   m.config.EventPort,
		Timeout:     m.config.CommandTimeout,
	})
	if err != nil {
		return err
	}
	m.client = client

	if deps.Session == nil {
		slog.Warn("music_player module initialized without session, voice disabled")
	}

	sink := voice.NewClockSink()
	m.relay = discord.NewEventRelay(deps.Session, client, sink)
	connector := voice.NewDiscordConnector(deps.Session)
	m.voiceManager = voice.NewManager(voice.DefaultConfig(), connector, m.relay)
	m.commandHandlers = discord.NewCommandHandlers(client, m.voiceManager, m.relay)

	m.ctx, m.cancel = context.WithCancel(context.Background())
	go m.relay.Run(m.ctx)

	return nil
}

// handleVoiceStateUpdate reacts to the bot losing its voice channel, e.g.
// being kicked or the channel being deleted. Explicit leaves have already
// cleared the session, so this only fires for surprises.
func (m *MusicPlayerModule) handleVoiceStateUpdate(s *discordgo.Session, event *discordgo.VoiceStateUpdate) {
	if s.State.User == nil || event.UserID != s.State.User.ID {
		return
	}
	if event.ChannelID != "" || event.BeforeUpdate == nil {
		return
	}

	guildID, err := snowflake.Parse(event.GuildID)
	if err != nil {
		return
	}

	// Reconnection blocks through backoff; keep the gateway handler free.
	go func() {
		if err := m.voiceManager.HandleClose(m.ctx, guildID, voice.CloseDisconnected); err != nil {
			slog.Warn("voice recovery failed", "guild", guildID, "error", err)
		}
	}()
}

// Shutdown gracefully shuts down the module.
func (m *MusicPlayerModule) Shutdown() error {
	if m.cancel != nil {
		m.cancel()
	}
	if m.client != nil {
		return m.client.Close()
	}
	return nil
}
