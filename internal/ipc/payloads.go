package ipc

import (
	"time"

	"github.com/disgoorg/snowflake/v2"
)

// EndReason explains why a track stopped playing.
type EndReason string

const (
	// EndReasonFinished means the track played to its natural end.
	EndReasonFinished EndReason = "finished"
	// EndReasonSkipped means the track was skipped by a user.
	EndReasonSkipped EndReason = "skipped"
	// EndReasonStopped means playback was stopped by a reset.
	EndReasonStopped EndReason = "stopped"
	// EndReasonLoadFailed means the track could not be resolved or streamed.
	EndReasonLoadFailed EndReason = "load_failed"
)

// TrackInfo is the wire representation of a track. Resolved fields are empty
// for tracks that are still queued unresolved.
type TrackInfo struct {
	Source          string       `json:"source"`
	Title           string       `json:"title,omitempty"`
	DurationSeconds int64        `json:"duration_seconds,omitempty"`
	IsLive          bool         `json:"is_live,omitempty"`
	StreamURI       string       `json:"stream_uri,omitempty"`
	PageURI         string       `json:"page_uri,omitempty"`
	ThumbnailURI    string       `json:"thumbnail_uri,omitempty"`
	ChannelName     string       `json:"channel_name,omitempty"`
	RequesterID     snowflake.ID `json:"requester_id,omitempty"`
	RequesterName   string       `json:"requester_name,omitempty"`
	EnqueuedAt      time.Time    `json:"enqueued_at"`
}

// ConnectPayload carries the voice connection details for CONNECT. The
// front end owns the actual voice handshake; the engine records the channel
// and session so they show up in state snapshots. Token and Endpoint exist
// for transports that proxy the handshake and are otherwise left empty.
type ConnectPayload struct {
	ChannelID snowflake.ID `json:"channel_id"`
	Token     string       `json:"token,omitempty"`
	Endpoint  string       `json:"endpoint,omitempty"`
	SessionID string       `json:"session_id,omitempty"`
}

// AddToQueuePayload carries the source and requester for ADD_TO_QUEUE.
type AddToQueuePayload struct {
	Source        string       `json:"source"`
	RequesterID   snowflake.ID `json:"requester_id"`
	RequesterName string       `json:"requester_name"`
}

// AddToQueueResult is returned in the response data of ADD_TO_QUEUE.
type AddToQueueResult struct {
	Position int `json:"position"`
}

// RemoveFromQueuePayload carries the zero-based queue position to remove.
type RemoveFromQueuePayload struct {
	Position int `json:"position"`
}

// SetLoopPayload toggles looping of the current track.
type SetLoopPayload struct {
	Enabled bool `json:"enabled"`
}

// SongStartedPayload accompanies SONG_STARTED.
type SongStartedPayload struct {
	Track   TrackInfo `json:"track"`
	Resumed bool      `json:"resumed,omitempty"`
}

// SongEndedPayload accompanies SONG_ENDED.
type SongEndedPayload struct {
	Track  TrackInfo `json:"track"`
	Reason EndReason `json:"reason"`
}

// QueueUpdatedPayload accompanies QUEUE_UPDATED with the post-command queue.
type QueueUpdatedPayload struct {
	Tracks []TrackInfo `json:"tracks"`
}

// ErrorPayload accompanies PLAYER_ERROR.
type ErrorPayload struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Source  string    `json:"source,omitempty"`
}

// StatePayload is the full player snapshot, used both as the GET_STATE
// response data and as the STATE_SNAPSHOT event payload.
type StatePayload struct {
	GuildID     snowflake.ID `json:"guild_id"`
	Status      string       `json:"status"`
	Current     *TrackInfo   `json:"current,omitempty"`
	Queue       []TrackInfo  `json:"queue"`
	LoopEnabled bool         `json:"loop_enabled"`
	StartedAt   *time.Time   `json:"started_at,omitempty"`
	Connected   bool         `json:"connected"`
	ChannelID   snowflake.ID `json:"channel_id,omitempty"`
	SessionID   string       `json:"session_id,omitempty"`
}
