package infrastructure

import (
	"errors"

	"github.com/monsieurgui/cafe-des-artistes/internal/ipc"
	"github.com/monsieurgui/cafe-des-artistes/internal/modules/music_player/application/ports"
	"github.com/monsieurgui/cafe-des-artistes/internal/modules/music_player/application/usecases"
	"github.com/monsieurgui/cafe-des-artistes/internal/modules/music_player/domain"
)

// TrackToWire converts a request to its wire form.
func TrackToWire(t *domain.TrackRequest) ipc.TrackInfo {
	info := ipc.TrackInfo{
		Source:        t.Source,
		RequesterID:   t.Requester.ID,
		RequesterName: t.Requester.Name,
		EnqueuedAt:    t.EnqueuedAt,
	}
	if t.Resolved != nil {
		info.Title = t.Resolved.Title
		info.DurationSeconds = int64(t.Resolved.Duration.Seconds())
		info.IsLive = t.Resolved.IsLive
		info.StreamURI = t.Resolved.StreamURI
		info.PageURI = t.Resolved.PageURI
		info.ThumbnailURI = t.Resolved.ThumbnailURI
		info.ChannelName = t.Resolved.ChannelName
	}
	return info
}

// TracksToWire converts a queue snapshot, never returning nil so the wire
// form always carries an array.
func TracksToWire(tracks []*domain.TrackRequest) []ipc.TrackInfo {
	out := make([]ipc.TrackInfo, len(tracks))
	for i, t := range tracks {
		out[i] = TrackToWire(t)
	}
	return out
}

// SnapshotToWire converts a player snapshot to the GET_STATE and
// STATE_SNAPSHOT payload form.
func SnapshotToWire(snap domain.PlayerSnapshot) ipc.StatePayload {
	payload := ipc.StatePayload{
		GuildID:     snap.GuildID,
		Status:      snap.Status.String(),
		Queue:       TracksToWire(snap.Queue),
		LoopEnabled: snap.LoopEnabled,
		StartedAt:   snap.StartedAt,
		Connected:   snap.Connected,
		ChannelID:   snap.ChannelID,
		SessionID:   snap.SessionID,
	}
	if snap.Current != nil {
		current := TrackToWire(snap.Current)
		payload.Current = &current
	}
	return payload
}

// ReasonToWire converts an end reason to its wire form.
func ReasonToWire(reason domain.EndReason) ipc.EndReason {
	return ipc.EndReason(reason)
}

// ErrorCodeFor classifies an engine error for the wire.
func ErrorCodeFor(err error) ipc.ErrorCode {
	switch {
	case errors.Is(err, usecases.ErrQueueFull):
		return ipc.CodeQueueFull
	case errors.Is(err, usecases.ErrInvalidPosition):
		return ipc.CodeInvalidPosition
	case errors.Is(err, usecases.ErrResolverTimeout):
		return ipc.CodeResolverTimeout
	case errors.Is(err, ports.ErrTrackNotFound):
		return ipc.CodeNotFound
	case errors.Is(err, ports.ErrFormatUnavailable):
		return ipc.CodeFormatUnavailable
	default:
		return ipc.CodeInternal
	}
}
