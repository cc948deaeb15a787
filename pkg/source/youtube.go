package source

import (
	"context"
	"fmt"
	"time"

	"google.golang.org/api/option"
	"google.golang.org/api/youtube/v3"
)

// YouTube implements VideoAPI on top of the YouTube Data API v3.
type YouTube struct {
	svc *youtube.Service
}

var _ VideoAPI = (*YouTube)(nil)

// NewYouTube creates a YouTube client. endpoint overrides the API base URL
// and is empty in production.
func NewYouTube(ctx context.Context, apiKey, endpoint string) (*YouTube, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("youtube: API key required (set YOUTUBE_API_KEY)")
	}
	opts := []option.ClientOption{option.WithAPIKey(apiKey)}
	if endpoint != "" {
		opts = append(opts, option.WithEndpoint(endpoint))
	}
	svc, err := youtube.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("youtube.NewService: %w", err)
	}
	return &YouTube{svc: svc}, nil
}

// MostPopular pages through the most-popular chart of region.
func (y *YouTube) MostPopular(ctx context.Context, region string, pages int) ([]string, error) {
	if pages <= 0 {
		pages = 1
	}

	var ids []string
	token := ""
	for page := 0; page < pages; page++ {
		call := y.svc.Videos.List([]string{"id"}).
			Chart("mostPopular").
			MaxResults(MaxBatch)
		if region != "" {
			call = call.RegionCode(region)
		}
		if token != "" {
			call = call.PageToken(token)
		}

		resp, err := call.Context(ctx).Do()
		if err != nil {
			if len(ids) > 0 {
				return ids, nil
			}
			return nil, fmt.Errorf("youtube most popular page %d: %w", page, err)
		}
		for _, item := range resp.Items {
			ids = append(ids, item.Id)
		}
		token = resp.NextPageToken
		if token == "" {
			break
		}
	}
	return ids, nil
}

// Search returns video ids matching q ordered by view count.
func (y *YouTube) Search(ctx context.Context, q SearchQuery) ([]string, error) {
	limit := q.MaxResults
	if limit <= 0 || limit > MaxBatch {
		limit = MaxBatch
	}

	call := y.svc.Search.List([]string{"id"}).
		Q(q.Term).
		Type("video").
		Order("viewCount").
		MaxResults(limit)
	if !q.PublishedAfter.IsZero() {
		call = call.PublishedAfter(q.PublishedAfter.UTC().Format(time.RFC3339))
	}
	if q.Region != "" {
		call = call.RegionCode(q.Region)
	}
	if q.Language != "" {
		call = call.RelevanceLanguage(q.Language)
	}

	resp, err := call.Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("youtube search %q: %w", q.Term, err)
	}

	ids := make([]string, 0, len(resp.Items))
	for _, item := range resp.Items {
		if item.Id == nil || item.Id.VideoId == "" {
			continue
		}
		ids = append(ids, item.Id.VideoId)
	}
	return ids, nil
}

// Videos fetches snippet, statistics and duration for up to MaxBatch ids.
func (y *YouTube) Videos(ctx context.Context, ids []string) ([]Video, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	if len(ids) > MaxBatch {
		return nil, fmt.Errorf("youtube videos: %d ids exceeds batch limit %d", len(ids), MaxBatch)
	}

	resp, err := y.svc.Videos.List([]string{"snippet", "statistics", "contentDetails"}).
		Id(ids...).
		Context(ctx).
		Do()
	if err != nil {
		return nil, fmt.Errorf("youtube videos: %w", err)
	}

	videos := make([]Video, 0, len(resp.Items))
	for _, item := range resp.Items {
		v := Video{ID: item.Id, Broadcast: BroadcastNone}
		if s := item.Snippet; s != nil {
			v.ChannelID = s.ChannelId
			v.ChannelTitle = s.ChannelTitle
			v.Title = s.Title
			v.CategoryID = s.CategoryId
			v.Thumbnail = bestThumbnail(s.Thumbnails)
			if s.LiveBroadcastContent != "" {
				v.Broadcast = s.LiveBroadcastContent
			}
			if t, err := time.Parse(time.RFC3339, s.PublishedAt); err == nil {
				v.PublishedAt = t.UTC()
			}
		}
		if st := item.Statistics; st != nil {
			v.Views = int64(st.ViewCount)
			v.Likes = int64(st.LikeCount)
			v.Comments = int64(st.CommentCount)
		}
		if cd := item.ContentDetails; cd != nil {
			v.DurationSeconds = ParseISODuration(cd.Duration)
		}
		videos = append(videos, v)
	}
	return videos, nil
}

// Channels fetches subscriber, video and view counts for up to MaxBatch ids.
func (y *YouTube) Channels(ctx context.Context, ids []string) ([]ChannelStats, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	if len(ids) > MaxBatch {
		return nil, fmt.Errorf("youtube channels: %d ids exceeds batch limit %d", len(ids), MaxBatch)
	}

	resp, err := y.svc.Channels.List([]string{"snippet", "statistics"}).
		Id(ids...).
		Context(ctx).
		Do()
	if err != nil {
		return nil, fmt.Errorf("youtube channels: %w", err)
	}

	channels := make([]ChannelStats, 0, len(resp.Items))
	for _, item := range resp.Items {
		ch := ChannelStats{ID: item.Id}
		if s := item.Snippet; s != nil {
			ch.Title = s.Title
			ch.Thumbnail = bestThumbnail(s.Thumbnails)
		}
		if st := item.Statistics; st != nil {
			ch.Subscribers = int64(st.SubscriberCount)
			ch.Videos = int64(st.VideoCount)
			ch.Views = int64(st.ViewCount)
		}
		channels = append(channels, ch)
	}
	return channels, nil
}

func bestThumbnail(t *youtube.ThumbnailDetails) string {
	if t == nil {
		return ""
	}
	for _, th := range []*youtube.Thumbnail{t.High, t.Medium, t.Default} {
		if th != nil && th.Url != "" {
			return th.Url
		}
	}
	return ""
}
