package voice

import (
	"sync"
	"time"

	"github.com/disgoorg/snowflake/v2"
)

// AudioSink consumes started tracks and signals natural completion. The
// transcoding pipeline that feeds opus frames to the voice connection is an
// external collaborator behind this interface; the engine only needs the
// completion signal to advance the queue.
type AudioSink interface {
	// Play starts consuming the track, replacing whatever the guild was
	// playing. onComplete fires exactly once when the track runs out; it is
	// never called after Stop. A non-positive duration means a live stream
	// that plays until stopped.
	Play(guildID snowflake.ID, streamURI string, duration time.Duration, onComplete func())

	// Pause suspends consumption, retaining the position.
	Pause(guildID snowflake.ID)

	// Resume continues a paused track.
	Resume(guildID snowflake.ID)

	// Stop tears the guild's playback down without firing onComplete.
	Stop(guildID snowflake.ID)
}

// Ensure ClockSink implements AudioSink.
var _ AudioSink = (*ClockSink)(nil)

// ClockSink is the default AudioSink: a per-guild duration timer. It tracks
// wall-clock playback time and fires completion when the track's duration
// elapses, which keeps queue advancement honest without an audio pipeline.
type ClockSink struct {
	mu    sync.Mutex
	slots map[snowflake.ID]*clockSlot
}

type clockSlot struct {
	timer      *time.Timer
	remaining  time.Duration
	resumedAt  time.Time
	onComplete func()
	paused     bool
	live       bool
}

// NewClockSink creates an empty ClockSink.
func NewClockSink() *ClockSink {
	return &ClockSink{slots: make(map[snowflake.ID]*clockSlot)}
}

func (c *ClockSink) Play(guildID snowflake.ID, _ string, duration time.Duration, onComplete func()) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.dropLocked(guildID)

	slot := &clockSlot{
		remaining:  duration,
		resumedAt:  time.Now(),
		onComplete: onComplete,
		live:       duration <= 0,
	}
	c.slots[guildID] = slot
	if !slot.live {
		slot.timer = time.AfterFunc(duration, func() { c.fire(guildID, slot) })
	}
}

func (c *ClockSink) Pause(guildID snowflake.ID) {
	c.mu.Lock()
	defer c.mu.Unlock()

	slot, ok := c.slots[guildID]
	if !ok || slot.paused {
		return
	}
	slot.paused = true
	if slot.timer != nil {
		slot.timer.Stop()
		slot.timer = nil
	}
	if !slot.live {
		slot.remaining -= time.Since(slot.resumedAt)
		if slot.remaining < 0 {
			slot.remaining = 0
		}
	}
}

func (c *ClockSink) Resume(guildID snowflake.ID) {
	c.mu.Lock()
	defer c.mu.Unlock()

	slot, ok := c.slots[guildID]
	if !ok || !slot.paused {
		return
	}
	slot.paused = false
	slot.resumedAt = time.Now()
	if !slot.live {
		slot.timer = time.AfterFunc(slot.remaining, func() { c.fire(guildID, slot) })
	}
}

func (c *ClockSink) Stop(guildID snowflake.ID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.dropLocked(guildID)
}

func (c *ClockSink) dropLocked(guildID snowflake.ID) {
	if slot, ok := c.slots[guildID]; ok {
		if slot.timer != nil {
			slot.timer.Stop()
		}
		delete(c.slots, guildID)
	}
}

// fire delivers completion if the slot is still the guild's current one; a
// timer racing a Play or Stop stays silent.
func (c *ClockSink) fire(guildID snowflake.ID, slot *clockSlot) {
	c.mu.Lock()
	current, ok := c.slots[guildID]
	if !ok || current != slot || slot.paused {
		c.mu.Unlock()
		return
	}
	delete(c.slots, guildID)
	onComplete := slot.onComplete
	c.mu.Unlock()

	if onComplete != nil {
		onComplete()
	}
}
