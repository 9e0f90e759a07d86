// Package voice keeps guild voice connections alive across gateway drops:
// bounded reconnection with jittered backoff, close-code classification,
// and escalating cooldowns when a guild keeps failing.
package voice

import (
	"time"

	"github.com/disgoorg/snowflake/v2"
)

// Voice websocket close codes that drive reconnection policy.
const (
	CloseAuthenticationFailed = 4004
	CloseSessionInvalid       = 4006
	CloseSessionTimeout       = 4009
	CloseServerNotFound       = 4011
	CloseDisconnected         = 4014
)

// CloseClass is the reconnection policy for a voice close code.
type CloseClass int

const (
	// ClassTransient closes are retried against the retained channel.
	ClassTransient CloseClass = iota
	// ClassFatal closes clear the session and are surfaced, never retried.
	ClassFatal
)

func (c CloseClass) String() string {
	if c == ClassFatal {
		return "fatal"
	}
	return "transient"
}

// Classify maps a voice close code to its reconnection policy. explicit
// marks a close that followed a deliberate disconnect request; code 4014 is
// also sent when the bot is moved or its channel is deleted, which is
// recoverable, but after an explicit disconnect it is final.
func Classify(code int, explicit bool) CloseClass {
	switch code {
	case CloseAuthenticationFailed, CloseServerNotFound:
		return ClassFatal
	case CloseSessionInvalid, CloseSessionTimeout:
		return ClassTransient
	case CloseDisconnected:
		if explicit {
			return ClassFatal
		}
		return ClassTransient
	default:
		return ClassTransient
	}
}

// Session is the per-guild connection record. The channel ID is retained
// independently of the live handle so reconnects after a dropped session
// know where to go.
type Session struct {
	GuildID       snowflake.ID
	ChannelID     snowflake.ID
	Connected     bool
	LastCloseCode int
	Attempts      int
	CooldownUntil time.Time
	LastSuccessAt time.Time
}
