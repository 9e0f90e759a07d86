package discord

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/disgoorg/snowflake/v2"

	"github.com/monsieurgui/cafe-des-artistes/internal/ipc"
	"github.com/monsieurgui/cafe-des-artistes/internal/voice"
)

// Ensure EventRelay implements the voice transport notifier.
var _ voice.Notifier = (*EventRelay)(nil)

// EventRelay consumes the player service's event channel: it drives the
// audio sink, issues the natural-end signal, and announces playback in the
// guild's text channel.
type EventRelay struct {
	session *discordgo.Session
	client  *ipc.Client
	sink    voice.AudioSink

	mu       sync.Mutex
	announce map[snowflake.ID]string
	playing  map[snowflake.ID]string
}

// NewEventRelay creates an EventRelay.
func NewEventRelay(session *discordgo.Session, client *ipc.Client, sink voice.AudioSink) *EventRelay {
	return &EventRelay{
		session:  session,
		client:   client,
		sink:     sink,
		announce: make(map[snowflake.ID]string),
		playing:  make(map[snowflake.ID]string),
	}
}

// Run consumes events until ctx is cancelled. Blocks; run in a goroutine.
func (e *EventRelay) Run(ctx context.Context) {
	e.client.Subscribe(ctx, e.handleEvent)
}

// SetAnnounceChannel records where playback announcements for a guild go,
// normally the channel of the last /play command.
func (e *EventRelay) SetAnnounceChannel(guildID snowflake.ID, channelID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.announce[guildID] = channelID
}

func (e *EventRelay) handleEvent(msg ipc.Message) {
	switch msg.Action {
	case ipc.EventSongStarted:
		e.onSongStarted(msg)
	case ipc.EventSongEnded:
		e.onSongEnded(msg)
	case ipc.EventPlayerIdle:
		e.sink.Stop(msg.GuildID)
		e.clearPlaying(msg.GuildID)
		e.post(msg.GuildID, &discordgo.MessageEmbed{
			Description: "Queue finished.",
			Color:       colorInfo,
		})
	case ipc.EventPlayerStopped:
		e.sink.Stop(msg.GuildID)
		e.clearPlaying(msg.GuildID)
	case ipc.EventPlayerError:
		e.onPlayerError(msg)
	case ipc.EventQueueUpdated, ipc.EventStateSnapshot:
		// Rendered on demand via /queue and /state.
	default:
		slog.Debug("unhandled player event", "action", msg.Action, "guild", msg.GuildID)
	}
}

func (e *EventRelay) onSongStarted(msg ipc.Message) {
	var payload ipc.SongStartedPayload
	if err := msg.DecodePayload(&payload); err != nil {
		slog.Warn("malformed SONG_STARTED payload", "guild", msg.GuildID, "error", err)
		return
	}
	track := payload.Track
	guildID := msg.GuildID

	e.mu.Lock()
	sameTrack := e.playing[guildID] == track.StreamURI && track.StreamURI != ""
	e.playing[guildID] = track.StreamURI
	e.mu.Unlock()

	if payload.Resumed && sameTrack {
		e.sink.Resume(guildID)
		return
	}

	duration := time.Duration(track.DurationSeconds) * time.Second
	if track.IsLive {
		duration = 0
	}
	e.sink.Play(guildID, track.StreamURI, duration, func() {
		e.signalPlayNext(guildID)
	})

	e.post(guildID, &discordgo.MessageEmbed{
		Title:       "Now playing",
		Description: trackLine(track),
		Color:       colorSuccess,
	})
}

func (e *EventRelay) onSongEnded(msg ipc.Message) {
	var payload ipc.SongEndedPayload
	if err := msg.DecodePayload(&payload); err != nil {
		slog.Warn("malformed SONG_ENDED payload", "guild", msg.GuildID, "error", err)
		return
	}
	// On natural completion the sink already released the slot; for skips
	// and stops it must be torn down so it never fires late.
	if payload.Reason != ipc.EndReasonFinished {
		e.sink.Stop(msg.GuildID)
	}
	e.clearPlaying(msg.GuildID)
}

func (e *EventRelay) onPlayerError(msg ipc.Message) {
	var payload ipc.ErrorPayload
	if err := msg.DecodePayload(&payload); err != nil {
		slog.Warn("malformed PLAYER_ERROR payload", "guild", msg.GuildID, "error", err)
		return
	}
	slog.Warn("playback error",
		"guild", msg.GuildID,
		"code", payload.Code,
		"source", payload.Source,
	)
	e.post(msg.GuildID, &discordgo.MessageEmbed{
		Title:       "Error",
		Description: fmt.Sprintf("Could not play **%s**, moving on.", payload.Source),
		Color:       colorError,
	})
}

// signalPlayNext tells the engine the current track finished playing.
func (e *EventRelay) signalPlayNext(guildID snowflake.ID) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	resp, err := e.client.Command(ctx, ipc.ActionPlayNext, guildID, nil)
	if err != nil {
		slog.Error("PLAY_NEXT failed", "guild", guildID, "error", err)
		return
	}
	if respErr := resp.Err(); respErr != nil {
		slog.Error("PLAY_NEXT rejected", "guild", guildID, "error", respErr)
	}
}

// TransportSuspended pauses local playback and notifies the engine that the
// voice transport dropped.
func (e *EventRelay) TransportSuspended(ctx context.Context, guildID snowflake.ID) {
	e.sink.Pause(guildID)
	if _, err := e.client.Command(ctx, ipc.ActionVoiceSuspended, guildID, nil); err != nil {
		slog.Error("VOICE_SUSPENDED failed", "guild", guildID, "error", err)
	}
}

// TransportResumed notifies the engine that the transport recovered; the
// engine answers with a resumed SONG_STARTED which restarts the sink.
func (e *EventRelay) TransportResumed(ctx context.Context, guildID snowflake.ID) {
	if _, err := e.client.Command(ctx, ipc.ActionVoiceResumed, guildID, nil); err != nil {
		slog.Error("VOICE_RESUMED failed", "guild", guildID, "error", err)
	}
}

func (e *EventRelay) clearPlaying(guildID snowflake.ID) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.playing, guildID)
}

func (e *EventRelay) post(guildID snowflake.ID, embed *discordgo.MessageEmbed) {
	e.mu.Lock()
	channelID := e.announce[guildID]
	e.mu.Unlock()
	if channelID == "" || e.session == nil {
		return
	}
	if _, err := e.session.ChannelMessageSendEmbed(channelID, embed); err != nil {
		slog.Warn("announcement failed", "guild", guildID, "channel", channelID, "error", err)
	}
}
