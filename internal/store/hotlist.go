package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/elonfeng/hotlist/pkg/trend"
)

// HotItem is one ranked video of a day.
type HotItem struct {
	Day              string    `db:"day" json:"date"`
	VideoID          string    `db:"video_id" json:"video_id"`
	ChannelID        string    `db:"channel_id" json:"channel_id"`
	Rank             int       `db:"rank" json:"rank"`
	Views            int64     `db:"view_count" json:"view_count"`
	Subscribers      int64     `db:"subscriber_count" json:"subscriber_count"`
	ContributionRate float64   `db:"contribution_rate" json:"contribution_rate"`
	PerformanceRate  float64   `db:"performance_rate" json:"performance_rate"`
	ViewVelocity     float64   `db:"view_velocity" json:"view_velocity"`
	EngagementRate   float64   `db:"engagement_rate" json:"engagement_rate"`
	Score            float64   `db:"score" json:"score"`
	ReasonsJSON      string    `db:"reasons" json:"-"`
	Reasons          []string  `db:"-" json:"reasons"`
	CreatedAt        time.Time `db:"created_at" json:"created_at"`
}

// ListedItem is a hot-list item joined with its display data.
type ListedItem struct {
	HotItem
	Title            string     `db:"title" json:"title"`
	PublishedAt      *time.Time `db:"published_at" json:"published_at,omitempty"`
	DurationSeconds  int        `db:"duration_seconds" json:"duration_seconds"`
	CategoryID       string     `db:"category_id" json:"category_id"`
	Category         string     `db:"-" json:"category"`
	Thumbnail        string     `db:"thumbnail" json:"thumbnail"`
	ChannelTitle     string     `db:"channel_title" json:"channel_title"`
	ChannelThumbnail string     `db:"channel_thumbnail" json:"channel_thumbnail"`
	ActiveRate       *float64   `db:"-" json:"active_rate"`
	URL              string     `db:"-" json:"url"`
}

// Sort orders of the list query.
const (
	SortScore       = "score"
	SortVelocity    = "velocity"
	SortPerformance = "performance"
	SortViews       = "views"
)

var sortColumns = map[string]string{
	SortScore:       "h.score",
	SortVelocity:    "h.view_velocity",
	SortPerformance: "h.performance_rate",
	SortViews:       "h.view_count",
}

// Paging bounds of the list query.
const (
	DefaultLimit = 50
	MaxLimit     = 200
)

// ListQuery filters and pages one day of the hot list. Zero filters are
// ignored.
type ListQuery struct {
	Day     string
	Limit   int
	Offset  int
	Sort    string
	MinSubs int64
	MaxSubs int64
	MinPerf float64
}

// Normalize coerces out-of-range parameters to safe defaults.
func (q ListQuery) Normalize() ListQuery {
	if q.Limit <= 0 {
		q.Limit = DefaultLimit
	}
	if q.Limit > MaxLimit {
		q.Limit = MaxLimit
	}
	if q.Offset < 0 {
		q.Offset = 0
	}
	if _, ok := sortColumns[q.Sort]; !ok {
		q.Sort = SortScore
	}
	if q.MinSubs < 0 {
		q.MinSubs = 0
	}
	if q.MaxSubs < 0 {
		q.MaxSubs = 0
	}
	if q.MinPerf < 0 {
		q.MinPerf = 0
	}
	return q
}

// ListStats aggregates the filtered items of a day.
type ListStats struct {
	AvgViews       float64 `db:"avg_views" json:"avg_views"`
	AvgPerformance float64 `db:"avg_performance" json:"avg_performance"`
	MaxPerformance float64 `db:"max_performance" json:"max_performance"`
	TopCategoryID  string  `db:"-" json:"top_category_id"`
	TopCategory    string  `db:"-" json:"top_category"`
}

// ListPage is one page of the list query.
type ListPage struct {
	Day   string       `json:"date"`
	Total int          `json:"total"`
	Items []ListedItem `json:"items"`
	Stats ListStats    `json:"stats"`
}

// EmptyPage is the well-formed answer when there is nothing to show.
func EmptyPage(day string) *ListPage {
	return &ListPage{Day: day, Items: []ListedItem{}}
}

// ApplyCategories resolves category codes to display labels.
func (p *ListPage) ApplyCategories(labels map[string]string) {
	for i := range p.Items {
		p.Items[i].Category = categoryLabel(labels, p.Items[i].CategoryID)
	}
	if p.Stats.TopCategoryID != "" {
		p.Stats.TopCategory = categoryLabel(labels, p.Stats.TopCategoryID)
	}
}

func categoryLabel(labels map[string]string, id string) string {
	if l, ok := labels[id]; ok {
		return l
	}
	if id == "" {
		return "Unknown"
	}
	return "Category " + id
}

// DayCount is a day with ranked data.
type DayCount struct {
	Day   string `db:"day" json:"date"`
	Count int    `db:"items" json:"count"`
}

// ReplaceHotList writes the ranked items of day. Rows of day whose video is
// not in items are deleted first so ranks stay contiguous after a rerun.
func (s *SQLStore) ReplaceHotList(ctx context.Context, day string, items []HotItem) WriteResult {
	ids := make([]string, len(items))
	for i, it := range items {
		ids[i] = it.VideoID
	}

	var stale WriteResult
	query, args, err := s.sb.Delete("hot_list_items").
		Where(sq.Eq{"day": day}).
		Where(sq.NotEq{"video_id": ids}).
		ToSql()
	if err == nil {
		_, err = s.db.ExecContext(ctx, query, args...)
	}
	if err != nil {
		stale.fail(day+"/stale", err)
	}

	res := s.upsertEach(ctx, "hot_list_items", `
		INSERT INTO hot_list_items (day, video_id, channel_id, rank, view_count, subscriber_count,
			contribution_rate, performance_rate, view_velocity, engagement_rate, score, reasons, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(day, video_id) DO UPDATE SET
			channel_id = excluded.channel_id,
			rank = excluded.rank,
			view_count = excluded.view_count,
			subscriber_count = excluded.subscriber_count,
			contribution_rate = excluded.contribution_rate,
			performance_rate = excluded.performance_rate,
			view_velocity = excluded.view_velocity,
			engagement_rate = excluded.engagement_rate,
			score = excluded.score,
			reasons = excluded.reasons,
			created_at = excluded.created_at
	`, len(items), func(i int) (string, []any) {
		it := items[i]
		reasons := it.Reasons
		if reasons == nil {
			reasons = []string{}
		}
		reasonsJSON, _ := json.Marshal(reasons)
		return day + "/" + it.VideoID, []any{day, it.VideoID, it.ChannelID, it.Rank, it.Views, it.Subscribers,
			it.ContributionRate, it.PerformanceRate, it.ViewVelocity, it.EngagementRate, it.Score,
			string(reasonsJSON), it.CreatedAt.UTC()}
	})
	res.Failures = append(stale.Failures, res.Failures...)
	return res
}

// HotListVideoIDs returns the distinct videos ranked on any day in
// [from, to].
func (s *SQLStore) HotListVideoIDs(ctx context.Context, from, to string) ([]string, error) {
	query, args, err := s.sb.Select("DISTINCT video_id").
		From("hot_list_items").
		Where(sq.GtOrEq{"day": from}).
		Where(sq.LtOrEq{"day": to}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build hot list ids query: %w", err)
	}
	var ids []string
	if err := s.db.SelectContext(ctx, &ids, query, args...); err != nil {
		return nil, fmt.Errorf("hot list ids %s..%s: %w", from, to, err)
	}
	return ids, nil
}

func listFilter(q ListQuery) sq.And {
	where := sq.And{sq.Eq{"h.day": q.Day}}
	if q.MinSubs > 0 {
		where = append(where, sq.GtOrEq{"h.subscriber_count": q.MinSubs})
	}
	if q.MaxSubs > 0 {
		where = append(where, sq.LtOrEq{"h.subscriber_count": q.MaxSubs})
	}
	if q.MinPerf > 0 {
		where = append(where, sq.GtOrEq{"h.performance_rate": q.MinPerf})
	}
	return where
}

// ListHotItems returns one filtered, sorted page of a day together with the
// total and the aggregate stats of the filtered set.
func (s *SQLStore) ListHotItems(ctx context.Context, q ListQuery) (*ListPage, error) {
	q = q.Normalize()
	where := listFilter(q)
	page := EmptyPage(q.Day)

	query, args, err := s.sb.Select("COUNT(*)").From("hot_list_items h").Where(where).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build count query: %w", err)
	}
	if err := s.db.GetContext(ctx, &page.Total, query, args...); err != nil {
		return nil, fmt.Errorf("count hot list %s: %w", q.Day, err)
	}
	if page.Total == 0 {
		return page, nil
	}

	query, args, err = s.sb.Select(
		"h.day", "h.video_id", "h.channel_id", "h.rank", "h.view_count", "h.subscriber_count",
		"h.contribution_rate", "h.performance_rate", "h.view_velocity", "h.engagement_rate",
		"h.score", "h.reasons", "h.created_at",
		"COALESCE(v.title, '') AS title",
		"v.published_at",
		"COALESCE(v.duration_seconds, 0) AS duration_seconds",
		"COALESCE(v.category_id, '') AS category_id",
		"COALESCE(v.thumbnail, '') AS thumbnail",
		"COALESCE(c.title, '') AS channel_title",
		"COALESCE(c.thumbnail, '') AS channel_thumbnail",
	).
		From("hot_list_items h").
		LeftJoin("videos v ON v.id = h.video_id").
		LeftJoin("channels c ON c.id = h.channel_id").
		Where(where).
		OrderBy(sortColumns[q.Sort]+" DESC", "h.rank ASC").
		Limit(uint64(q.Limit)).
		Offset(uint64(q.Offset)).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list query: %w", err)
	}
	if err := s.db.SelectContext(ctx, &page.Items, query, args...); err != nil {
		return nil, fmt.Errorf("list hot items %s: %w", q.Day, err)
	}
	for i := range page.Items {
		it := &page.Items[i]
		reasons, err := decodeReasons(it.ReasonsJSON)
		if err != nil {
			return nil, fmt.Errorf("decode reasons of %s/%s: %w", q.Day, it.VideoID, err)
		}
		it.Reasons = reasons
		it.URL = "https://www.youtube.com/watch?v=" + it.VideoID
	}

	if err := s.fillActiveRates(ctx, q.Day, page.Items); err != nil {
		return nil, err
	}

	query, args, err = s.sb.Select(
		"COALESCE(AVG(h.view_count), 0) AS avg_views",
		"COALESCE(AVG(h.performance_rate), 0) AS avg_performance",
		"COALESCE(MAX(h.performance_rate), 0) AS max_performance",
	).From("hot_list_items h").Where(where).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build stats query: %w", err)
	}
	if err := s.db.GetContext(ctx, &page.Stats, query, args...); err != nil {
		return nil, fmt.Errorf("hot list stats %s: %w", q.Day, err)
	}

	var top struct {
		CategoryID string `db:"category_id"`
		N          int    `db:"n"`
	}
	query, args, err = s.sb.Select("COALESCE(v.category_id, '') AS category_id", "COUNT(*) AS n").
		From("hot_list_items h").
		LeftJoin("videos v ON v.id = h.video_id").
		Where(where).
		GroupBy("v.category_id").
		OrderBy("n DESC", "category_id ASC").
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build top category query: %w", err)
	}
	switch err := s.db.GetContext(ctx, &top, query, args...); {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return nil, fmt.Errorf("top category %s: %w", q.Day, err)
	default:
		page.Stats.TopCategoryID = top.CategoryID
	}
	return page, nil
}

func (s *SQLStore) fillActiveRates(ctx context.Context, day string, items []ListedItem) error {
	if len(items) == 0 {
		return nil
	}
	prevDay, err := AddDays(day, -1)
	if err != nil {
		return err
	}
	ids := make([]string, len(items))
	for i, it := range items {
		ids[i] = it.VideoID
	}
	today, err := s.SnapshotsForDay(ctx, day, ids)
	if err != nil {
		return err
	}
	prev, err := s.SnapshotsForDay(ctx, prevDay, ids)
	if err != nil {
		return err
	}
	for i := range items {
		t, ok := today[items[i].VideoID]
		if !ok {
			continue
		}
		var y *Snapshot
		if p, ok := prev[items[i].VideoID]; ok {
			y = &p
		}
		items[i].ActiveRate = ActiveRate(&t, y)
	}
	return nil
}

func decodeReasons(raw string) ([]string, error) {
	reasons := []string{}
	if raw == "" {
		return reasons, nil
	}
	if err := json.Unmarshal([]byte(raw), &reasons); err != nil {
		return nil, err
	}
	if reasons == nil {
		reasons = []string{}
	}
	return reasons, nil
}

// Days returns every day with ranked data, newest first. limit <= 0 means
// no limit.
func (s *SQLStore) Days(ctx context.Context, limit int) ([]DayCount, error) {
	b := s.sb.Select("day", "COUNT(*) AS items").
		From("hot_list_items").
		GroupBy("day").
		OrderBy("day DESC")
	if limit > 0 {
		b = b.Limit(uint64(limit))
	}
	query, args, err := b.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build days query: %w", err)
	}
	days := []DayCount{}
	if err := s.db.SelectContext(ctx, &days, query, args...); err != nil {
		return nil, fmt.Errorf("list days: %w", err)
	}
	return days, nil
}

// RankedList returns the ranked entries of day in rank order.
func (s *SQLStore) RankedList(ctx context.Context, day string) (trend.List, error) {
	query, args, err := s.sb.Select(
		"h.video_id", "h.rank", "h.score", "h.channel_id",
		"COALESCE(v.title, '') AS title",
		"COALESCE(c.title, '') AS channel_title",
	).
		From("hot_list_items h").
		LeftJoin("videos v ON v.id = h.video_id").
		LeftJoin("channels c ON c.id = h.channel_id").
		Where(sq.Eq{"h.day": day}).
		OrderBy("h.rank ASC").
		ToSql()
	if err != nil {
		return trend.List{}, fmt.Errorf("build ranked list query: %w", err)
	}
	list := trend.List{Day: day}
	if err := s.db.SelectContext(ctx, &list.Entries, query, args...); err != nil {
		return trend.List{}, fmt.Errorf("ranked list %s: %w", day, err)
	}
	return list, nil
}

// Trends compares the two most recent ranked days.
func (s *SQLStore) Trends(ctx context.Context) (trend.Report, error) {
	days, err := s.Days(ctx, 2)
	if err != nil {
		return trend.Report{}, err
	}
	if len(days) < 2 {
		return trend.Report{}, trend.ErrNotEnoughData
	}
	latest, err := s.RankedList(ctx, days[0].Day)
	if err != nil {
		return trend.Report{}, err
	}
	previous, err := s.RankedList(ctx, days[1].Day)
	if err != nil {
		return trend.Report{}, err
	}
	return trend.Analyze(latest, previous), nil
}
