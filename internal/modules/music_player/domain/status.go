package domain

// Status is the playback state of a guild player.
type Status string

const (
	// StatusIdle means nothing is playing and the queue is empty.
	StatusIdle Status = "idle"
	// StatusLoading means the next track is being resolved.
	StatusLoading Status = "loading"
	// StatusPlaying means a resolved track is being streamed.
	StatusPlaying Status = "playing"
	// StatusPaused means playback is suspended while the voice transport is
	// down; the current track is retained for resumption.
	StatusPaused Status = "paused"
)

// String returns the status name.
func (s Status) String() string {
	return string(s)
}

// Active returns true while the player holds a current track.
func (s Status) Active() bool {
	return s == StatusLoading || s == StatusPlaying || s == StatusPaused
}
