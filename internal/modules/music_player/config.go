package music_player

import "time"

// Config holds the front-end music player configuration: where the player
// service lives and how long to wait on its commands.
type Config struct {
	PlayerServiceHost string        `env:"PLAYER_SERVICE_HOST"    envDefault:"127.0.0.1"`
	CommandPort       int           `env:"PLAYER_COMMAND_PORT"    envDefault:"5555"`
	EventPort         int           `env:"PLAYER_EVENT_PORT"      envDefault:"5556"`
	CommandTimeout    time.Duration `env:"PLAYER_COMMAND_TIMEOUT" envDefault:"5s"`
}
