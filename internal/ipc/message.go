// Package ipc implements the wire protocol between the bot front-end and the
// headless player service: a request/response command channel and a broadcast
// event channel, both carrying JSON text frames over WebSocket.
//
// Every message has the shape {kind, action, guild_id, data, issued_at,
// correlation_id}. Field names are stable; unknown fields are ignored so the
// two processes can be upgraded independently.
package ipc

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/disgoorg/snowflake/v2"
	"github.com/google/uuid"
)

// Kind discriminates the two message directions.
type Kind string

const (
	// KindCommand is sent by the bot front-end to the player service.
	KindCommand Kind = "command"
	// KindEvent is broadcast by the player service to subscribers.
	KindEvent Kind = "event"
)

// Action identifies the operation a message carries.
type Action string

// Commands (front-end -> player service).
const (
	ActionConnect         Action = "CONNECT"
	ActionDisconnect      Action = "DISCONNECT"
	ActionAddToQueue      Action = "ADD_TO_QUEUE"
	ActionRemoveFromQueue Action = "REMOVE_FROM_QUEUE"
	ActionSkipSong        Action = "SKIP_SONG"
	ActionPlayNext        Action = "PLAY_NEXT"
	ActionResetPlayer     Action = "RESET_PLAYER"
	ActionSetLoop         Action = "SET_LOOP"
	ActionVoiceSuspended  Action = "VOICE_SUSPENDED"
	ActionVoiceResumed    Action = "VOICE_RESUMED"
	ActionGetState        Action = "GET_STATE"
)

// Events (player service -> front-end).
const (
	EventSongStarted   Action = "SONG_STARTED"
	EventSongEnded     Action = "SONG_ENDED"
	EventQueueUpdated  Action = "QUEUE_UPDATED"
	EventPlayerIdle    Action = "PLAYER_IDLE"
	EventPlayerStopped Action = "PLAYER_STOPPED"
	EventPlayerError   Action = "PLAYER_ERROR"
	EventStateSnapshot Action = "STATE_SNAPSHOT"
)

// ErrMalformedMessage is returned when a frame cannot be decoded into a
// well-formed Message.
var ErrMalformedMessage = errors.New("malformed ipc message")

// Message is the wire format shared by both channels.
type Message struct {
	Kind          Kind            `json:"kind"`
	Action        Action          `json:"action"`
	GuildID       snowflake.ID    `json:"guild_id"`
	Data          json.RawMessage `json:"data,omitempty"`
	IssuedAt      time.Time       `json:"issued_at"`
	CorrelationID string          `json:"correlation_id,omitempty"`
}

// NewCommand builds a command Message with a fresh correlation ID.
// payload may be nil for commands that carry no data.
func NewCommand(action Action, guildID snowflake.ID, payload any) (Message, error) {
	data, err := marshalPayload(payload)
	if err != nil {
		return Message{}, err
	}
	return Message{
		Kind:          KindCommand,
		Action:        action,
		GuildID:       guildID,
		Data:          data,
		IssuedAt:      time.Now().UTC(),
		CorrelationID: uuid.NewString(),
	}, nil
}

// NewEvent builds an event Message. Events are fire-and-forget and carry no
// correlation ID.
func NewEvent(action Action, guildID snowflake.ID, payload any) (Message, error) {
	data, err := marshalPayload(payload)
	if err != nil {
		return Message{}, err
	}
	return Message{
		Kind:     KindEvent,
		Action:   action,
		GuildID:  guildID,
		Data:     data,
		IssuedAt: time.Now().UTC(),
	}, nil
}

func marshalPayload(payload any) (json.RawMessage, error) {
	if payload == nil {
		return nil, nil
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	return data, nil
}

// Encode serializes the message for the wire.
func (m Message) Encode() ([]byte, error) {
	return json.Marshal(m)
}

// DecodeMessage parses a wire frame. A frame that is not valid JSON or lacks
// kind/action yields ErrMalformedMessage; unknown fields are ignored.
func DecodeMessage(frame []byte) (Message, error) {
	var m Message
	if err := json.Unmarshal(frame, &m); err != nil {
		return Message{}, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}
	if m.Kind == "" || m.Action == "" {
		return Message{}, fmt.Errorf("%w: missing kind or action", ErrMalformedMessage)
	}
	return m, nil
}

// DecodePayload unmarshals the message data into v.
func (m Message) DecodePayload(v any) error {
	if len(m.Data) == 0 {
		return fmt.Errorf("%w: empty payload for %s", ErrMalformedMessage, m.Action)
	}
	if err := json.Unmarshal(m.Data, v); err != nil {
		return fmt.Errorf("%w: payload for %s: %v", ErrMalformedMessage, m.Action, err)
	}
	return nil
}
