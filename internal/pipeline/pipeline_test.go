package pipeline

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/elonfeng/hotlist/internal/store"
	"github.com/elonfeng/hotlist/internal/telemetry"
	"github.com/elonfeng/hotlist/pkg/alert"
	"github.com/elonfeng/hotlist/pkg/score"
	"github.com/elonfeng/hotlist/pkg/source"
)

var now = time.Date(2026, 10, 18, 6, 0, 0, 0, time.UTC)

type fakeCollector struct {
	col *source.Collection
	err error
}

func (f *fakeCollector) Collect(ctx context.Context) (*source.Collection, error) {
	return f.col, f.err
}

// channelAPI answers channel lookups; every other call is unused here.
type channelAPI struct {
	channels map[string]source.ChannelStats
	err      error

	mu    sync.Mutex
	calls int
}

func (a *channelAPI) MostPopular(ctx context.Context, region string, pages int) ([]string, error) {
	return nil, nil
}

func (a *channelAPI) Search(ctx context.Context, q source.SearchQuery) ([]string, error) {
	return nil, nil
}

func (a *channelAPI) Videos(ctx context.Context, ids []string) ([]source.Video, error) {
	return nil, nil
}

func (a *channelAPI) Channels(ctx context.Context, ids []string) ([]source.ChannelStats, error) {
	a.mu.Lock()
	a.calls++
	a.mu.Unlock()
	if a.err != nil {
		return nil, a.err
	}
	var out []source.ChannelStats
	for _, id := range ids {
		if c, ok := a.channels[id]; ok {
			out = append(out, c)
		}
	}
	return out, nil
}

type recordingNotifier struct {
	digests []*alert.Digest
}

func (r *recordingNotifier) Broadcast(ctx context.Context, d *alert.Digest) error {
	r.digests = append(r.digests, d)
	return nil
}

func testChannels() map[string]source.ChannelStats {
	return map[string]source.ChannelStats{
		// avg 10000 views per video
		"c1": {ID: "c1", Title: "Garage Builds", Subscribers: 5000, Videos: 10, Views: 100000},
		// avg 500000 views per video
		"c2": {ID: "c2", Title: "Big Channel", Subscribers: 2000000, Videos: 100, Views: 50000000},
	}
}

func vid(id, channel string, views int64, age time.Duration) source.Video {
	return source.Video{
		ID:              id,
		ChannelID:       channel,
		ChannelTitle:    "channel " + channel,
		Title:           "video " + id,
		PublishedAt:     now.Add(-age),
		DurationSeconds: 600,
		CategoryID:      "26",
		Broadcast:       source.BroadcastNone,
		Views:           views,
		Likes:           views / 25,
		Comments:        views / 300,
	}
}

func testCollection() *source.Collection {
	live := vid("v5", "c1", 200000, time.Hour)
	live.Broadcast = source.BroadcastLive
	return &source.Collection{
		Candidates: []source.Video{
			vid("v1", "c1", 150000, 48*time.Hour),
			vid("v2", "c2", 90000, 24*time.Hour),
			vid("v3", "c1", 60000, 12*time.Hour),
			vid("v4", "c1", 20000, 6*time.Hour),
			live,
		},
		Discovered: 7,
		Excluded:   map[source.Exclusion]int{source.ExcludeMusic: 2},
		StrategyErrors: map[string]error{
			"search": errors.New("quota exceeded"),
		},
	}
}

type harness struct {
	store     *store.SQLStore
	collector *fakeCollector
	api       *channelAPI
	notifier  *recordingNotifier
	metrics   *telemetry.Metrics
	pipeline  *Pipeline
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	st, err := store.Open("sqlite", filepath.Join(t.TempDir(), "hotlist.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	h := &harness{
		store:     st,
		collector: &fakeCollector{col: testCollection()},
		api:       &channelAPI{channels: testChannels()},
		notifier:  &recordingNotifier{},
		metrics:   telemetry.New(),
	}
	enricher := NewEnricher(h.api, st, 50, 2, zerolog.Nop())
	enricher.now = func() time.Time { return now }

	h.pipeline = New(Deps{
		Collector: h.collector,
		Enricher:  enricher,
		Store:     st,
		Notifier:  h.notifier,
		Metrics:   h.metrics,
		Log:       zerolog.Nop(),
	}, Options{
		Weights:    score.DefaultWeights(),
		Thresholds: score.DefaultThresholds(),
		DigestSize: 1,
	})
	h.pipeline.now = func() time.Time { return now }
	return h
}

func (h *harness) ranked(t *testing.T, day string) []string {
	t.Helper()
	list, err := h.store.RankedList(context.Background(), day)
	require.NoError(t, err)
	ids := make([]string, len(list.Entries))
	for i, e := range list.Entries {
		require.Equal(t, i+1, e.Rank)
		ids[i] = e.VideoID
	}
	return ids
}

func TestRun_PersistsRankedList(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	sum, err := h.pipeline.Run(ctx, "2026-10-18")
	require.NoError(t, err)

	assert.Equal(t, store.RunSucceeded, sum.Status)
	assert.NotEmpty(t, sum.RunID)
	assert.Equal(t, 7, sum.Discovered)
	assert.Equal(t, 5, sum.Videos)
	assert.Equal(t, 2, sum.Channels)
	assert.Equal(t, 2, sum.Qualified)
	assert.Equal(t, map[string]int{"low_contribution": 1, "low_views": 1, "live": 1}, sum.Rejected)
	assert.Equal(t, map[string]int{"official_music": 2}, sum.Excluded)
	assert.Equal(t, map[string]string{"search": "quota exceeded"}, sum.StrategyErrors)
	assert.Zero(t, sum.WriteFailures())
	require.Len(t, sum.Writes, 5)

	assert.Equal(t, []string{"v1", "v3"}, h.ranked(t, "2026-10-18"))

	stats, err := h.store.DailyStatsForDay(ctx, "2026-10-18")
	require.NoError(t, err)
	assert.Len(t, stats, 5)

	snaps, err := h.store.SnapshotsForDay(ctx, "2026-10-18", []string{"v1", "v2"})
	require.NoError(t, err)
	assert.Len(t, snaps, 2)

	runs, err := h.store.ListRuns(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, sum.RunID, runs[0].ID)
	assert.Equal(t, 2, runs[0].Qualified)

	require.Len(t, h.notifier.digests, 1)
	d := h.notifier.digests[0]
	assert.Equal(t, 2, d.Qualified)
	require.Len(t, d.Entries, 1)
	assert.Equal(t, "v1", d.Entries[0].VideoID)
	assert.Equal(t, "https://www.youtube.com/watch?v=v1", d.Entries[0].URL)

	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.RunsTotal.WithLabelValues(store.RunSucceeded)))
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.StrategyErrors.WithLabelValues("search")))
}

func TestRun_ScoresAreMonotonicAndAboveThresholds(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	_, err := h.pipeline.Run(ctx, "2026-10-18")
	require.NoError(t, err)

	page, err := h.store.ListHotItems(ctx, store.ListQuery{Day: "2026-10-18"})
	require.NoError(t, err)
	require.Len(t, page.Items, 2)

	th := score.DefaultThresholds()
	for i, it := range page.Items {
		assert.Equal(t, i+1, it.Rank)
		assert.GreaterOrEqual(t, it.Views, th.MinViews)
		assert.GreaterOrEqual(t, it.ContributionRate, th.MinContribution)
		assert.GreaterOrEqual(t, it.PerformanceRate, th.MinPerformance)
		if i > 0 {
			assert.LessOrEqual(t, it.Score, page.Items[i-1].Score)
		}
	}
}

func TestRun_CooldownSkipsNextDay(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.pipeline.Run(ctx, "2026-10-18")
	require.NoError(t, err)

	next, err := h.pipeline.Run(ctx, "2026-10-19")
	require.NoError(t, err)
	assert.Zero(t, next.Qualified)
	assert.Equal(t, 2, next.Rejected["cooldown"])
	assert.Empty(t, h.ranked(t, "2026-10-19"))

	// The window only covers the previous day.
	after, err := h.pipeline.Run(ctx, "2026-10-20")
	require.NoError(t, err)
	assert.Equal(t, 2, after.Qualified)
	assert.Equal(t, []string{"v1", "v3"}, h.ranked(t, "2026-10-20"))
}

func TestRun_RerunConverges(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.pipeline.Run(ctx, "2026-10-18")
	require.NoError(t, err)
	again, err := h.pipeline.Run(ctx, "2026-10-18")
	require.NoError(t, err)

	// A rerun of the same day is not blocked by its own earlier output.
	assert.Equal(t, 2, again.Qualified)
	assert.Equal(t, []string{"v1", "v3"}, h.ranked(t, "2026-10-18"))

	// A smaller rerun removes what no longer qualifies.
	h.collector.col = &source.Collection{Candidates: []source.Video{vid("v3", "c1", 60000, 12*time.Hour)}}
	_, err = h.pipeline.Run(ctx, "2026-10-18")
	require.NoError(t, err)
	assert.Equal(t, []string{"v3"}, h.ranked(t, "2026-10-18"))

	runs, err := h.store.ListRuns(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, runs, 3)
}

func TestRun_CollectionFailure(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.collector.col = &source.Collection{
		StrategyErrors: map[string]error{"trending": errors.New("403")},
		Excluded:       map[source.Exclusion]int{},
	}
	h.collector.err = fmt.Errorf("%w: trending: 403", source.ErrNoCandidates)

	sum, err := h.pipeline.Run(ctx, "2026-10-18")
	require.Error(t, err)
	assert.ErrorIs(t, err, source.ErrNoCandidates)
	require.NotNil(t, sum)
	assert.Equal(t, store.RunFailed, sum.Status)
	assert.Contains(t, sum.Error, "trending")
	assert.Empty(t, sum.Writes)
	assert.Empty(t, h.notifier.digests)

	runs, err := h.store.ListRuns(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, store.RunFailed, runs[0].Status)
	assert.Empty(t, h.ranked(t, "2026-10-18"))
}

func TestRun_InvalidDay(t *testing.T) {
	h := newHarness(t)
	sum, err := h.pipeline.Run(context.Background(), "18/10/2026")
	assert.Error(t, err)
	assert.Nil(t, sum)
}

func TestRun_ChannelFetchFallsBackToStoredRows(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	res := h.store.UpsertChannels(ctx, []store.Channel{
		{ID: "c1", Title: "Garage Builds", Subscribers: 5000, VideoCount: 10, ViewCount: 100000, AvgViews: 10000, UpdatedAt: now.Add(-24 * time.Hour)},
	})
	require.Zero(t, res.Failed())
	h.api.err = errors.New("channels endpoint down")

	sum, err := h.pipeline.Run(ctx, "2026-10-18")
	require.NoError(t, err)
	assert.Equal(t, 2, sum.Qualified)
	assert.Equal(t, []string{"v1", "v3"}, h.ranked(t, "2026-10-18"))

	// Nothing fresh to upsert; c2 had no baseline and its video was rejected.
	assert.Equal(t, store.WriteResult{Entity: "channels"}, sum.Writes[0])
	assert.Equal(t, 1, sum.Rejected["low_contribution"])
}

func TestRun_NoCooldown(t *testing.T) {
	h := newHarness(t)
	h.pipeline.opts.Thresholds.CooldownDays = 0
	ctx := context.Background()

	_, err := h.pipeline.Run(ctx, "2026-10-18")
	require.NoError(t, err)
	next, err := h.pipeline.Run(ctx, "2026-10-19")
	require.NoError(t, err)
	assert.Equal(t, 2, next.Qualified)
}

func TestRank_TiesKeepEncounterOrder(t *testing.T) {
	videos := []source.Video{
		vid("a", "c1", 100000, 10*time.Hour),
		vid("b", "c1", 100000, 10*time.Hour),
		vid("c", "c1", 100000, 10*time.Hour),
	}
	lookup := func(string) (store.Channel, bool) {
		return store.Channel{Subscribers: 1000, AvgViews: 1000}, true
	}
	opts := Options{Weights: score.DefaultWeights(), Thresholds: score.DefaultThresholds()}

	all, ranked := Rank(videos, lookup, score.NewCooldown(), now, opts)
	require.Len(t, all, 3)
	require.Len(t, ranked, 3)
	for i, id := range []string{"a", "b", "c"} {
		assert.Equal(t, id, ranked[i].Video.ID)
		assert.Equal(t, i+1, ranked[i].Rank)
		assert.NotEmpty(t, ranked[i].Reasons)
	}
}

func TestRank_FutureUploadAgeIsZero(t *testing.T) {
	v := vid("a", "c1", 100000, -2*time.Hour)
	lookup := func(string) (store.Channel, bool) {
		return store.Channel{Subscribers: 1000, AvgViews: 1000}, true
	}
	all, _ := Rank([]source.Video{v}, lookup, score.NewCooldown(), now, Options{Weights: score.DefaultWeights(), Thresholds: score.DefaultThresholds()})
	require.Len(t, all, 1)
	assert.Zero(t, all[0].AgeHours)
	assert.InDelta(t, 50000.0, all[0].Metrics.ViewVelocity, 1e-9)
}

func TestPurgeSnapshots(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	res := h.store.UpsertSnapshots(ctx, []store.Snapshot{
		{VideoID: "v1", Day: "2026-07-01", Views: 1, CapturedAt: now},
		{VideoID: "v1", Day: "2026-10-17", Views: 2, CapturedAt: now},
	})
	require.Zero(t, res.Failed())

	n, err := h.pipeline.PurgeSnapshots(ctx, "2026-10-18", 90)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.SnapshotsPurged))

	_, err = h.pipeline.PurgeSnapshots(ctx, "2026-10-18", 0)
	assert.Error(t, err)
}

func TestToday_UsesLocation(t *testing.T) {
	h := newHarness(t)
	h.pipeline.opts.Location = time.FixedZone("UTC-8", -8*3600)
	assert.Equal(t, "2026-10-17", h.pipeline.Today())
}
