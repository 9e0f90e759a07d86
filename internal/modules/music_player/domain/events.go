package domain

import (
	"time"

	"github.com/disgoorg/snowflake/v2"
)

// EndReason explains why a track stopped playing.
type EndReason string

const (
	// EndFinished means the track played to its natural end.
	EndFinished EndReason = "finished"
	// EndSkipped means the track was skipped by a user.
	EndSkipped EndReason = "skipped"
	// EndStopped means playback was stopped by a reset.
	EndStopped EndReason = "stopped"
	// EndLoadFailed means the track could not be resolved.
	EndLoadFailed EndReason = "load_failed"
)

// PlayerSnapshot is a read-only view of a guild player, taken from inside
// its serialized command context.
type PlayerSnapshot struct {
	GuildID     snowflake.ID
	Status      Status
	Current     *TrackRequest
	Queue       []*TrackRequest
	LoopEnabled bool
	StartedAt   *time.Time
	Connected   bool
	ChannelID   snowflake.ID
	SessionID   string
}
