package infrastructure

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	youtube "github.com/kkdai/youtube/v2"

	"github.com/monsieurgui/cafe-des-artistes/internal/modules/music_player/application/ports"
	"github.com/monsieurgui/cafe-des-artistes/internal/modules/music_player/domain"
)

// Ensure YoutubeResolver implements Resolver.
var _ ports.Resolver = (*YoutubeResolver)(nil)

// watchURLPattern pulls video IDs out of a results page. The search endpoint
// has no anonymous API, so the first match of the rendered page is used.
var watchURLPattern = regexp.MustCompile(`"url":"/watch\?v=([a-zA-Z0-9_-]{11})`)

// YoutubeResolver resolves URLs and free-text searches into playable track
// metadata with a direct audio stream URI.
type YoutubeResolver struct {
	client     *youtube.Client
	httpClient *http.Client
	searchBase string
}

// NewYoutubeResolver creates a resolver with its own HTTP client. Timeouts
// here are a backstop; callers control the real deadline via context.
func NewYoutubeResolver() *YoutubeResolver {
	httpClient := &http.Client{Timeout: 15 * time.Second}
	return &YoutubeResolver{
		client:     &youtube.Client{HTTPClient: httpClient},
		httpClient: httpClient,
		searchBase: "https://www.youtube.com",
	}
}

// Resolve turns a watch URL or search string into a ResolvedTrack. Failures
// match ports.ErrTrackNotFound or ports.ErrFormatUnavailable via errors.Is.
func (r *YoutubeResolver) Resolve(ctx context.Context, source string) (*domain.ResolvedTrack, error) {
	videoID, err := r.videoID(ctx, source)
	if err != nil {
		return nil, err
	}

	video, err := r.client.GetVideoContext(ctx, videoID)
	if err != nil {
		return nil, fmt.Errorf("fetch video %s: %w", videoID, err)
	}

	formats := video.Formats.WithAudioChannels()
	if len(formats) == 0 {
		return nil, fmt.Errorf("%w: %s", ports.ErrFormatUnavailable, videoID)
	}

	streamURI, err := r.client.GetStreamURLContext(ctx, video, &formats[0])
	if err != nil {
		return nil, fmt.Errorf("stream url for %s: %w", videoID, err)
	}

	return &domain.ResolvedTrack{
		Title:        video.Title,
		Duration:     video.Duration,
		IsLive:       video.Duration == 0,
		StreamURI:    streamURI,
		PageURI:      fmt.Sprintf("%s/watch?v=%s", r.searchBase, videoID),
		ThumbnailURI: bestThumbnail(video),
		ChannelName:  video.Author,
	}, nil
}

// videoID maps a source to a video ID, searching when the source is not a
// URL.
func (r *YoutubeResolver) videoID(ctx context.Context, source string) (string, error) {
	if strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://") {
		id, err := youtube.ExtractVideoID(source)
		if err != nil {
			return "", fmt.Errorf("%w: %s", ports.ErrTrackNotFound, source)
		}
		return id, nil
	}
	return r.searchFirstVideoID(ctx, source)
}

func (r *YoutubeResolver) searchFirstVideoID(ctx context.Context, query string) (string, error) {
	searchURL := fmt.Sprintf("%s/results?search_query=%s", r.searchBase, url.QueryEscape(query))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, searchURL, nil)
	if err != nil {
		return "", err
	}
	resp, err := r.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("search request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("search returned status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}

	matches := watchURLPattern.FindSubmatch(body)
	if len(matches) < 2 {
		return "", fmt.Errorf("%w: no results for %q", ports.ErrTrackNotFound, query)
	}
	return string(matches[1]), nil
}

// bestThumbnail picks the largest available thumbnail.
func bestThumbnail(video *youtube.Video) string {
	var (
		bestURL  string
		bestArea uint
	)
	for _, thumb := range video.Thumbnails {
		area := thumb.Width * thumb.Height
		if area >= bestArea {
			bestURL = thumb.URL
			bestArea = area
		}
	}
	return bestURL
}
