package ipc

import (
	"errors"
	"testing"

	"github.com/disgoorg/snowflake/v2"
)

func TestMessageRoundTrip(t *testing.T) {
	msg, err := NewCommand(ActionAddToQueue, snowflake.ID(42), AddToQueuePayload{
		Source:        "https://example.test/watch?v=abc",
		RequesterID:   snowflake.ID(7),
		RequesterName: "tester",
	})
	if err != nil {
		t.Fatalf("NewCommand() error = %v", err)
	}
	if msg.CorrelationID == "" {
		t.Fatal("command has no correlation ID")
	}

	frame, err := msg.Encode()
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	decoded, err := DecodeMessage(frame)
	if err != nil {
		t.Fatalf("DecodeMessage() error = %v", err)
	}

	if decoded.Kind != KindCommand || decoded.Action != ActionAddToQueue {
		t.Errorf("decoded kind/action = %s/%s, want command/%s", decoded.Kind, decoded.Action, ActionAddToQueue)
	}
	if decoded.GuildID != msg.GuildID {
		t.Errorf("guild = %v, want %v", decoded.GuildID, msg.GuildID)
	}
	if decoded.CorrelationID != msg.CorrelationID {
		t.Errorf("correlation = %q, want %q", decoded.CorrelationID, msg.CorrelationID)
	}

	var payload AddToQueuePayload
	if err := decoded.DecodePayload(&payload); err != nil {
		t.Fatalf("DecodePayload() error = %v", err)
	}
	if payload.Source != "https://example.test/watch?v=abc" || payload.RequesterName != "tester" {
		t.Errorf("payload = %+v, want original payload", payload)
	}
}

func TestEventHasNoCorrelationID(t *testing.T) {
	msg, err := NewEvent(EventSongStarted, snowflake.ID(1), nil)
	if err != nil {
		t.Fatalf("NewEvent() error = %v", err)
	}
	if msg.Kind != KindEvent {
		t.Errorf("kind = %s, want event", msg.Kind)
	}
	if msg.CorrelationID != "" {
		t.Errorf("event carries a correlation ID %q", msg.CorrelationID)
	}
}

func TestDecodeMessageMalformed(t *testing.T) {
	tests := []struct {
		name  string
		frame string
	}{
		{"not json", "{nope"},
		{"missing kind", `{"action":"SKIP_SONG"}`},
		{"missing action", `{"kind":"command"}`},
		{"empty object", `{}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := DecodeMessage([]byte(tt.frame)); !errors.Is(err, ErrMalformedMessage) {
				t.Errorf("DecodeMessage(%q) error = %v, want ErrMalformedMessage", tt.frame, err)
			}
		})
	}
}

func TestDecodeMessageIgnoresUnknownFields(t *testing.T) {
	frame := `{"kind":"command","action":"SKIP_SONG","guild_id":"5","future_field":true}`
	msg, err := DecodeMessage([]byte(frame))
	if err != nil {
		t.Fatalf("DecodeMessage() error = %v", err)
	}
	if msg.Action != ActionSkipSong || msg.GuildID != snowflake.ID(5) {
		t.Errorf("decoded = %+v, want SKIP_SONG for guild 5", msg)
	}
}

func TestDecodePayloadEmpty(t *testing.T) {
	msg := Message{Kind: KindCommand, Action: ActionSetLoop}
	var payload SetLoopPayload
	if err := msg.DecodePayload(&payload); !errors.Is(err, ErrMalformedMessage) {
		t.Errorf("DecodePayload() error = %v, want ErrMalformedMessage", err)
	}
}

func TestResponseErr(t *testing.T) {
	if err := OK(nil).Err(); err != nil {
		t.Errorf("OK().Err() = %v, want nil", err)
	}
	err := Errorf(CodeQueueFull, "queue at capacity").Err()
	if err == nil {
		t.Fatal("Errorf().Err() = nil, want error")
	}
}
