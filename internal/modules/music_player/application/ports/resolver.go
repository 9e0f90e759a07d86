// Package ports defines the small interfaces the player engine depends on.
// Infrastructure provides the implementations.
package ports

import (
	"context"
	"errors"

	"github.com/monsieurgui/cafe-des-artistes/internal/modules/music_player/domain"
)

// Resolution failure classes. Implementations must return errors matching
// these via errors.Is so the engine can classify them on the wire.
var (
	// ErrTrackNotFound means the source matched no playable track.
	ErrTrackNotFound = errors.New("track not found")
	// ErrFormatUnavailable means the track exists but exposes no usable
	// audio format.
	ErrFormatUnavailable = errors.New("no usable audio format")
)

// Resolver turns a URL or search string into playable track metadata. It may
// be slow (network-bound, seconds); callers pass a context with a deadline
// and must invoke it off the guild's serialized critical section.
type Resolver interface {
	Resolve(ctx context.Context, source string) (*domain.ResolvedTrack, error)
}
