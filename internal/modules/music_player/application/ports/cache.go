package ports

import (
	"github.com/monsieurgui/cafe-des-artistes/internal/modules/music_player/domain"
)

// TrackCache stores resolved tracks keyed by their raw source so that loops,
// replays, and reconnect resumes do not re-invoke the Resolver. Entries
// expire after a bounded TTL because stream URIs go stale. Implementations
// must be safe for concurrent use: preload goroutines write while guild
// actors read.
type TrackCache interface {
	Get(source string) (*domain.ResolvedTrack, bool)
	Put(source string, track *domain.ResolvedTrack)
}
