package infrastructure

import (
	"log/slog"

	"github.com/disgoorg/snowflake/v2"

	"github.com/monsieurgui/cafe-des-artistes/internal/ipc"
	"github.com/monsieurgui/cafe-des-artistes/internal/modules/music_player/application/ports"
	"github.com/monsieurgui/cafe-des-artistes/internal/modules/music_player/domain"
)

// Ensure IPCEventPublisher implements EventPublisher.
var _ ports.EventPublisher = (*IPCEventPublisher)(nil)

// EventSink is where published events go, normally the IPC server's event
// channel. Publish must not block.
type EventSink interface {
	Publish(msg ipc.Message)
}

// IPCEventPublisher adapts player events to wire messages on the event
// channel.
type IPCEventPublisher struct {
	sink EventSink
}

// NewIPCEventPublisher creates a publisher writing to the given sink.
func NewIPCEventPublisher(sink EventSink) *IPCEventPublisher {
	return &IPCEventPublisher{sink: sink}
}

func (p *IPCEventPublisher) publish(action ipc.Action, guildID snowflake.ID, payload any) {
	msg, err := ipc.NewEvent(action, guildID, payload)
	if err != nil {
		slog.Error("event encode failed", "action", action, "guild", guildID, "error", err)
		return
	}
	p.sink.Publish(msg)
}

func (p *IPCEventPublisher) SongStarted(guildID snowflake.ID, track *domain.TrackRequest, resumed bool) {
	p.publish(ipc.EventSongStarted, guildID, ipc.SongStartedPayload{
		Track:   TrackToWire(track),
		Resumed: resumed,
	})
}

func (p *IPCEventPublisher) SongEnded(guildID snowflake.ID, track *domain.TrackRequest, reason domain.EndReason) {
	p.publish(ipc.EventSongEnded, guildID, ipc.SongEndedPayload{
		Track:  TrackToWire(track),
		Reason: ReasonToWire(reason),
	})
}

func (p *IPCEventPublisher) QueueUpdated(guildID snowflake.ID, queue []*domain.TrackRequest) {
	p.publish(ipc.EventQueueUpdated, guildID, ipc.QueueUpdatedPayload{
		Tracks: TracksToWire(queue),
	})
}

func (p *IPCEventPublisher) PlayerIdle(guildID snowflake.ID) {
	p.publish(ipc.EventPlayerIdle, guildID, nil)
}

func (p *IPCEventPublisher) PlayerStopped(guildID snowflake.ID) {
	p.publish(ipc.EventPlayerStopped, guildID, nil)
}

func (p *IPCEventPublisher) PlayerError(guildID snowflake.ID, source string, err error) {
	p.publish(ipc.EventPlayerError, guildID, ipc.ErrorPayload{
		Code:    ErrorCodeFor(err),
		Message: err.Error(),
		Source:  source,
	})
}

func (p *IPCEventPublisher) StateSnapshot(snapshot domain.PlayerSnapshot) {
	p.publish(ipc.EventStateSnapshot, snapshot.GuildID, SnapshotToWire(snapshot))
}
