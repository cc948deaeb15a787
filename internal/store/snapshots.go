package store

import (
	"context"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
)

// Snapshot is the view count of a video on one day, kept whether or not the
// video was ranked.
type Snapshot struct {
	VideoID    string    `db:"video_id" json:"video_id"`
	Day        string    `db:"day" json:"date"`
	Views      int64     `db:"view_count" json:"view_count"`
	Likes      int64     `db:"like_count" json:"like_count"`
	Comments   int64     `db:"comment_count" json:"comment_count"`
	CapturedAt time.Time `db:"captured_at" json:"captured_at"`
}

// ActiveRate is the hourly view gain between two consecutive daily
// snapshots. Negative deltas clamp to 0; nil means no prior observation.
func ActiveRate(today, yesterday *Snapshot) *float64 {
	if today == nil || yesterday == nil {
		return nil
	}
	rate := float64(today.Views-yesterday.Views) / 24
	if rate < 0 {
		rate = 0
	}
	return &rate
}

func (s *SQLStore) UpsertSnapshots(ctx context.Context, snaps []Snapshot) WriteResult {
	return s.upsertEach(ctx, "video_snapshots", `
		INSERT INTO video_snapshots (video_id, day, view_count, like_count, comment_count, captured_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(video_id, day) DO UPDATE SET
			view_count = excluded.view_count,
			like_count = excluded.like_count,
			comment_count = excluded.comment_count,
			captured_at = excluded.captured_at
	`, len(snaps), func(i int) (string, []any) {
		sn := snaps[i]
		return sn.VideoID + "/" + sn.Day, []any{sn.VideoID, sn.Day, sn.Views, sn.Likes, sn.Comments, sn.CapturedAt.UTC()}
	})
}

// SnapshotsForDay returns the snapshots of day for the given videos, keyed
// by video id.
func (s *SQLStore) SnapshotsForDay(ctx context.Context, day string, ids []string) (map[string]Snapshot, error) {
	out := make(map[string]Snapshot, len(ids))
	for _, chunk := range chunks(ids, inListSize) {
		query, args, err := s.sb.Select("*").
			From("video_snapshots").
			Where(sq.Eq{"day": day, "video_id": chunk}).
			ToSql()
		if err != nil {
			return nil, fmt.Errorf("build snapshots query: %w", err)
		}
		var rows []Snapshot
		if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
			return nil, fmt.Errorf("snapshots %s: %w", day, err)
		}
		for _, sn := range rows {
			out[sn.VideoID] = sn
		}
	}
	return out, nil
}

// PurgeSnapshots deletes snapshots of days strictly before before.
func (s *SQLStore) PurgeSnapshots(ctx context.Context, before string) (int64, error) {
	query, args, err := s.sb.Delete("video_snapshots").Where(sq.Lt{"day": before}).ToSql()
	if err != nil {
		return 0, fmt.Errorf("build purge query: %w", err)
	}
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("purge snapshots before %s: %w", before, err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}
