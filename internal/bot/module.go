package bot

import "github.com/bwmarrin/discordgo"

// InteractionHandler handles one slash command interaction and responds
// through the given Responder.
type InteractionHandler func(s *discordgo.Session, i *discordgo.InteractionCreate, r Responder) error

// EventHandler is a gateway event handler. It must match one of discordgo's
// handler signatures, e.g. func(s *discordgo.Session, e *discordgo.VoiceStateUpdate);
// the front-end registers it with the session verbatim.
type EventHandler any

// ModuleDependencies is what the host hands each module at Init time: the
// live gateway session (needed for voice joins and message posting) and the
// process configuration.
type ModuleDependencies struct {
	Session *discordgo.Session
	Config  *Config
}

// Module is a self-contained feature of the front-end: its slash commands,
// the handlers behind them, and any gateway events it listens to. Modules
// register themselves from init() via Register.
type Module interface {
	// Name returns the unique identifier for this module.
	Name() string

	// Commands returns the slash commands that this module provides.
	Commands() []*discordgo.ApplicationCommand

	// CommandHandlers returns a map of command names to their handlers.
	CommandHandlers() map[string]InteractionHandler

	// EventHandlers returns gateway event handlers for this module.
	EventHandlers() []EventHandler

	// Init wires the module up. The session is connected to the gateway
	// after Init returns, so Init must not assume an open connection.
	Init(deps ModuleDependencies) error

	// Shutdown gracefully shuts down the module.
	Shutdown() error
}

// ConfigurableModule is implemented by modules that read their own
// environment configuration. The host calls LoadConfig before Init, before
// the Discord connection is established, so a bad environment fails the
// process early instead of mid-session.
type ConfigurableModule interface {
	LoadConfig() error
}
