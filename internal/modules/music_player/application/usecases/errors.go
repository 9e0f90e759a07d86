package usecases

import "errors"

// Command failure sentinels for the guild player.
var (
	// ErrQueueFull is returned when the queue is at its configured maximum;
	// the command makes no state change.
	ErrQueueFull = errors.New("queue is full")

	// ErrInvalidPosition is returned for a removal position outside the
	// queue bounds; the queue is unchanged.
	ErrInvalidPosition = errors.New("invalid queue position")

	// ErrResolverTimeout wraps a resolution that exceeded its deadline.
	ErrResolverTimeout = errors.New("resolver timed out")

	// ErrPlayerClosed is returned when a command reaches a player whose
	// actor has been stopped by eviction or shutdown.
	ErrPlayerClosed = errors.New("player is closed")
)
