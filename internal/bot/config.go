package bot

import (
	"github.com/caarlos0/env/v11"
)

// Config holds the front-end process configuration loaded from environment
// variables. Module-specific settings (player service address, timeouts)
// live with their modules; this only covers the Discord connection itself.
type Config struct {
	DiscordToken string `env:"DISCORD_TOKEN,notEmpty"`

	// CommandGuildID scopes slash command registration to a single guild.
	// Guild-scoped commands propagate instantly, which is what you want on
	// a test server; leave empty to register globally.
	CommandGuildID string `env:"COMMAND_GUILD_ID" envDefault:""`

	// StatusText is shown as the bot's activity in the member list.
	StatusText string `env:"BOT_STATUS" envDefault:"/play"`
}

// LoadConfig loads configuration from environment variables.
// Returns an error if required fields are missing.
func LoadConfig() (*Config, error) {
	cfg := &Config{}

	if err := env.Parse(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}
