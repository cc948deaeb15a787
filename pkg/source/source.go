package source

import (
	"context"
	"time"
)

// Broadcast states reported by the platform for a video.
const (
	BroadcastNone     = "none"
	BroadcastLive     = "live"
	BroadcastUpcoming = "upcoming"
)

// Video is a hydrated candidate with its raw counts.
type Video struct {
	ID              string    `json:"id"`
	ChannelID       string    `json:"channel_id"`
	ChannelTitle    string    `json:"channel_title"`
	Title           string    `json:"title"`
	PublishedAt     time.Time `json:"published_at"`
	DurationSeconds int       `json:"duration_seconds"`
	CategoryID      string    `json:"category_id"`
	Thumbnail       string    `json:"thumbnail"`
	Broadcast       string    `json:"broadcast"`
	Views           int64     `json:"views"`
	Likes           int64     `json:"likes"`
	Comments        int64     `json:"comments"`

	// Strategy is the first discovery strategy that surfaced the video.
	Strategy string `json:"strategy"`
}

// IsLive reports whether the video is a live or scheduled broadcast.
func (v Video) IsLive() bool {
	return v.Broadcast == BroadcastLive || v.Broadcast == BroadcastUpcoming
}

// IsShort reports whether the video is short-form. Unknown durations are
// never short.
func (v Video) IsShort(maxSeconds int) bool {
	return v.DurationSeconds > 0 && v.DurationSeconds <= maxSeconds
}

// URL returns the watch page of the video.
func (v Video) URL() string {
	return "https://www.youtube.com/watch?v=" + v.ID
}

// ChannelStats is the channel-level baseline used for normalization.
type ChannelStats struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Thumbnail   string `json:"thumbnail"`
	Subscribers int64  `json:"subscribers"`
	Videos      int64  `json:"videos"`
	Views       int64  `json:"views"`
}

// SearchQuery parameterizes a keyword search.
type SearchQuery struct {
	Term           string
	PublishedAfter time.Time
	Region         string
	Language       string
	MaxResults     int64
}

// VideoAPI is the subset of the video platform the collector needs. Videos
// and Channels accept at most MaxBatch ids.
type VideoAPI interface {
	MostPopular(ctx context.Context, region string, pages int) ([]string, error)
	Search(ctx context.Context, q SearchQuery) ([]string, error)
	Videos(ctx context.Context, ids []string) ([]Video, error)
	Channels(ctx context.Context, ids []string) ([]ChannelStats, error)
}

// MaxBatch is the platform limit of ids per detail request.
const MaxBatch = 50

// Strategy discovers candidate video ids on its own.
type Strategy interface {
	Name() string
	Discover(ctx context.Context) ([]string, error)
}

// Expander discovers more candidates starting from seed videos.
type Expander interface {
	Name() string
	Expand(ctx context.Context, seeds []Video) ([]string, error)
}

// Chunk splits ids into consecutive slices of at most size elements.
func Chunk(ids []string, size int) [][]string {
	if size <= 0 || size > MaxBatch {
		size = MaxBatch
	}
	var out [][]string
	for start := 0; start < len(ids); start += size {
		end := start + size
		if end > len(ids) {
			end = len(ids)
		}
		out = append(out, ids[start:end])
	}
	return out
}
