package ports

import (
	"github.com/disgoorg/snowflake/v2"

	"github.com/monsieurgui/cafe-des-artistes/internal/modules/music_player/domain"
)

// EventPublisher fans player events out to the front-end. Implementations
// must not block: each guild actor publishes from its serialized loop, so a
// blocking publisher would stall that guild's command handling.
type EventPublisher interface {
	// SongStarted announces the current track. resumed is true when the same
	// track restarts after a voice suspension rather than a fresh start.
	SongStarted(guildID snowflake.ID, track *domain.TrackRequest, resumed bool)

	// SongEnded announces that the current track stopped, with the reason.
	SongEnded(guildID snowflake.ID, track *domain.TrackRequest, reason domain.EndReason)

	// QueueUpdated carries the queue contents as of the command that
	// mutated it.
	QueueUpdated(guildID snowflake.ID, queue []*domain.TrackRequest)

	// PlayerIdle announces that the queue drained and nothing is playing.
	PlayerIdle(guildID snowflake.ID)

	// PlayerStopped announces an explicit reset.
	PlayerStopped(guildID snowflake.ID)

	// PlayerError surfaces an asynchronous per-track failure. Playback of
	// the rest of the queue continues; the event is a non-fatal notice.
	PlayerError(guildID snowflake.ID, source string, err error)

	// StateSnapshot publishes the full player state for persistence sinks.
	StateSnapshot(snapshot domain.PlayerSnapshot)
}
