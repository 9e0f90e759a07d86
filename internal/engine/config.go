// Package engine is the headless playback service: it owns the per-guild
// players and exposes them over the IPC command and event channels.
package engine

import (
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds the engine configuration loaded from environment variables.
type Config struct {
	BindHost    string `env:"BIND_HOST"    envDefault:"0.0.0.0"`
	CommandPort int    `env:"COMMAND_PORT" envDefault:"5555"`
	EventPort   int    `env:"EVENT_PORT"   envDefault:"5556"`

	MaxQueueLength int           `env:"MAX_QUEUE_LENGTH" envDefault:"500"`
	ResolveTimeout time.Duration `env:"RESOLVE_TIMEOUT"  envDefault:"15s"`
	PreloadCount   int           `env:"PRELOAD_COUNT"    envDefault:"2"`

	CacheTTL        time.Duration `env:"CACHE_TTL"         envDefault:"30m"`
	CacheMaxEntries int           `env:"CACHE_MAX_ENTRIES" envDefault:"256"`

	// IdleEviction is how long an idle guild player survives without
	// commands before it is reaped. Zero disables eviction.
	IdleEviction time.Duration `env:"IDLE_EVICTION" envDefault:"30m"`
}

// LoadConfig loads configuration from environment variables.
func LoadConfig() (*Config, error) {
	cfg := &Config{}

	if err := env.Parse(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}
