package store

import (
	"context"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
)

// Channel is the normalization baseline of a channel.
type Channel struct {
	ID          string    `db:"id" json:"id"`
	Title       string    `db:"title" json:"title"`
	Thumbnail   string    `db:"thumbnail" json:"thumbnail"`
	Subscribers int64     `db:"subscriber_count" json:"subscriber_count"`
	VideoCount  int64     `db:"video_count" json:"video_count"`
	ViewCount   int64     `db:"view_count" json:"view_count"`
	AvgViews    float64   `db:"avg_view_count" json:"avg_view_count"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}

// Video is the display metadata of a video.
type Video struct {
	ID              string    `db:"id" json:"id"`
	ChannelID       string    `db:"channel_id" json:"channel_id"`
	Title           string    `db:"title" json:"title"`
	PublishedAt     time.Time `db:"published_at" json:"published_at"`
	DurationSeconds int       `db:"duration_seconds" json:"duration_seconds"`
	CategoryID      string    `db:"category_id" json:"category_id"`
	Thumbnail       string    `db:"thumbnail" json:"thumbnail"`
	UpdatedAt       time.Time `db:"updated_at" json:"updated_at"`
}

// DailyStat is the raw observation of a video on one day.
type DailyStat struct {
	Day         string    `db:"day" json:"date"`
	VideoID     string    `db:"video_id" json:"video_id"`
	Views       int64     `db:"view_count" json:"view_count"`
	Likes       int64     `db:"like_count" json:"like_count"`
	Comments    int64     `db:"comment_count" json:"comment_count"`
	AgeHours    float64   `db:"age_hours" json:"age_hours"`
	Velocity    float64   `db:"view_velocity" json:"view_velocity"`
	CollectedAt time.Time `db:"collected_at" json:"collected_at"`
}

func (s *SQLStore) UpsertChannels(ctx context.Context, channels []Channel) WriteResult {
	return s.upsertEach(ctx, "channels", `
		INSERT INTO channels (id, title, thumbnail, subscriber_count, video_count, view_count, avg_view_count, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title = excluded.title,
			thumbnail = excluded.thumbnail,
			subscriber_count = excluded.subscriber_count,
			video_count = excluded.video_count,
			view_count = excluded.view_count,
			avg_view_count = excluded.avg_view_count,
			updated_at = excluded.updated_at
	`, len(channels), func(i int) (string, []any) {
		c := channels[i]
		return c.ID, []any{c.ID, c.Title, c.Thumbnail, c.Subscribers, c.VideoCount, c.ViewCount, c.AvgViews, c.UpdatedAt.UTC()}
	})
}

// ChannelsByID returns the stored channels among ids.
func (s *SQLStore) ChannelsByID(ctx context.Context, ids []string) (map[string]Channel, error) {
	out := make(map[string]Channel, len(ids))
	for _, chunk := range chunks(ids, inListSize) {
		query, args, err := s.sb.Select("*").From("channels").Where(sq.Eq{"id": chunk}).ToSql()
		if err != nil {
			return nil, fmt.Errorf("build channels query: %w", err)
		}
		var rows []Channel
		if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
			return nil, fmt.Errorf("get channels: %w", err)
		}
		for _, c := range rows {
			out[c.ID] = c
		}
	}
	return out, nil
}

func (s *SQLStore) UpsertVideos(ctx context.Context, videos []Video) WriteResult {
	return s.upsertEach(ctx, "videos", `
		INSERT INTO videos (id, channel_id, title, published_at, duration_seconds, category_id, thumbnail, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			channel_id = excluded.channel_id,
			title = excluded.title,
			published_at = excluded.published_at,
			duration_seconds = excluded.duration_seconds,
			category_id = excluded.category_id,
			thumbnail = excluded.thumbnail,
			updated_at = excluded.updated_at
	`, len(videos), func(i int) (string, []any) {
		v := videos[i]
		return v.ID, []any{v.ID, v.ChannelID, v.Title, v.PublishedAt.UTC(), v.DurationSeconds, v.CategoryID, v.Thumbnail, v.UpdatedAt.UTC()}
	})
}

func (s *SQLStore) UpsertDailyStats(ctx context.Context, stats []DailyStat) WriteResult {
	return s.upsertEach(ctx, "daily_video_stats", `
		INSERT INTO daily_video_stats (day, video_id, view_count, like_count, comment_count, age_hours, view_velocity, collected_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(day, video_id) DO UPDATE SET
			view_count = excluded.view_count,
			like_count = excluded.like_count,
			comment_count = excluded.comment_count,
			age_hours = excluded.age_hours,
			view_velocity = excluded.view_velocity,
			collected_at = excluded.collected_at
	`, len(stats), func(i int) (string, []any) {
		st := stats[i]
		return st.Day + "/" + st.VideoID, []any{st.Day, st.VideoID, st.Views, st.Likes, st.Comments, st.AgeHours, st.Velocity, st.CollectedAt.UTC()}
	})
}

// DailyStatsForDay returns the observations recorded for day.
func (s *SQLStore) DailyStatsForDay(ctx context.Context, day string) ([]DailyStat, error) {
	query, args, err := s.sb.Select("*").From("daily_video_stats").Where(sq.Eq{"day": day}).OrderBy("video_id").ToSql()
	if err != nil {
		return nil, fmt.Errorf("build daily stats query: %w", err)
	}
	var stats []DailyStat
	if err := s.db.SelectContext(ctx, &stats, query, args...); err != nil {
		return nil, fmt.Errorf("daily stats %s: %w", day, err)
	}
	return stats, nil
}
