package domain

import (
	"time"

	"github.com/disgoorg/snowflake/v2"
	"github.com/google/uuid"
)

// Requester identifies the user who asked for a track.
type Requester struct {
	ID   snowflake.ID
	Name string
}

// ResolvedTrack is the playable metadata produced by a Resolver.
type ResolvedTrack struct {
	Title        string
	Duration     time.Duration // 0 for live streams
	IsLive       bool
	StreamURI    string
	PageURI      string
	ThumbnailURI string
	ChannelName  string
}

// TrackRequest is one queued playback request. The source and requester are
// fixed at enqueue time; Resolved is attached exactly once when resolution
// succeeds.
type TrackRequest struct {
	ID         string
	Source     string // URL or search text, as submitted
	Requester  Requester
	EnqueuedAt time.Time
	Resolved   *ResolvedTrack
}

// NewTrackRequest creates a TrackRequest for the given source.
func NewTrackRequest(source string, requester Requester) *TrackRequest {
	return &TrackRequest{
		ID:         uuid.NewString(),
		Source:     source,
		Requester:  requester,
		EnqueuedAt: time.Now().UTC(),
	}
}

// IsResolved returns true once resolution metadata is attached.
func (t *TrackRequest) IsResolved() bool {
	return t.Resolved != nil
}

// Title returns the resolved title, falling back to the raw source.
func (t *TrackRequest) Title() string {
	if t.Resolved != nil && t.Resolved.Title != "" {
		return t.Resolved.Title
	}
	return t.Source
}
