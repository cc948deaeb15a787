package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/elonfeng/hotlist/internal/store"
	"github.com/elonfeng/hotlist/internal/telemetry"
	"github.com/elonfeng/hotlist/pkg/alert"
	"github.com/elonfeng/hotlist/pkg/score"
	"github.com/elonfeng/hotlist/pkg/source"
)

// Collector produces the day's candidate set.
type Collector interface {
	Collect(ctx context.Context) (*source.Collection, error)
}

// Notifier receives the digest of a finished run.
type Notifier interface {
	Broadcast(ctx context.Context, d *alert.Digest) error
}

// Options are the immutable scoring tables of a pipeline.
type Options struct {
	Weights    score.Weights
	Thresholds score.Thresholds
	Location   *time.Location
	DigestSize int
}

// Deps are the collaborators of a pipeline. Notifier and Metrics may be nil.
type Deps struct {
	Collector Collector
	Enricher  *Enricher
	Store     store.Store
	Notifier  Notifier
	Metrics   *telemetry.Metrics
	Log       zerolog.Logger
}

// Pipeline is the single entry point of a daily run: collect, enrich,
// score, filter, rank and persist.
type Pipeline struct {
	deps Deps
	opts Options
	log  zerolog.Logger
	now  func() time.Time

	// runs are serialized; a second trigger waits for the first.
	mu sync.Mutex
}

// New creates a pipeline.
func New(deps Deps, opts Options) *Pipeline {
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.DigestSize <= 0 {
		opts.DigestSize = 10
	}
	return &Pipeline{
		deps: deps,
		opts: opts,
		log:  deps.Log.With().Str("component", "pipeline").Logger(),
		now:  time.Now,
	}
}

// Today returns the current calendar day in the pipeline's time zone.
func (p *Pipeline) Today() string {
	return store.FormatDay(p.now().In(p.opts.Location))
}

// Summary reports one run. It is what the trigger endpoint returns.
type Summary struct {
	RunID          string              `json:"run_id"`
	Day            string              `json:"date"`
	Status         string              `json:"status"`
	StartedAt      time.Time           `json:"started_at"`
	DurationMS     int64               `json:"duration_ms"`
	Discovered     int                 `json:"discovered"`
	Videos         int                 `json:"videos_collected"`
	Channels       int                 `json:"channels_collected"`
	Qualified      int                 `json:"hot_list_items"`
	Excluded       map[string]int      `json:"excluded"`
	Rejected       map[string]int      `json:"rejected"`
	StrategyErrors map[string]string   `json:"strategy_errors,omitempty"`
	Writes         []store.WriteResult `json:"writes"`
	Error          string              `json:"error,omitempty"`
}

// WriteFailures returns the number of rows that failed to persist.
func (s *Summary) WriteFailures() int {
	n := 0
	for _, w := range s.Writes {
		n += w.Failed()
	}
	return n
}

// Scored is a candidate with its baseline and metrics.
type Scored struct {
	Video     source.Video
	Channel   store.Channel
	AgeHours  float64
	Metrics   score.Metrics
	Reasons   []score.Reason
	Rejection score.Rejection
	Rank      int
}

// Run executes the pipeline for day (YYYY-MM-DD). Rerunning a day converges
// to the same persisted state. The returned summary is non-nil whenever day
// is valid, including on error.
func (p *Pipeline) Run(ctx context.Context, day string) (*Summary, error) {
	if _, err := store.ParseDay(day); err != nil {
		return nil, err
	}
	if p.deps.Store == nil {
		return nil, store.ErrNotConfigured
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	started := p.now()
	sum := &Summary{
		RunID:          uuid.NewString(),
		Day:            day,
		StartedAt:      started.UTC(),
		Excluded:       make(map[string]int),
		Rejected:       make(map[string]int),
		StrategyErrors: make(map[string]string),
		Writes:         []store.WriteResult{},
	}
	log := p.log.With().Str("run_id", sum.RunID).Str("day", day).Logger()
	log.Info().Msg("run started")

	col, err := p.deps.Collector.Collect(ctx)
	if col != nil {
		sum.Discovered = col.Discovered
		for reason, n := range col.Excluded {
			sum.Excluded[string(reason)] = n
		}
		for name, serr := range col.StrategyErrors {
			sum.StrategyErrors[name] = serr.Error()
		}
	}
	if err != nil {
		return p.finish(ctx, log, sum, started, fmt.Errorf("collect: %w", err))
	}

	cooldown, err := p.cooldown(ctx, day)
	if err != nil {
		return p.finish(ctx, log, sum, started, err)
	}

	videos := col.Candidates
	sum.Videos = len(videos)
	order := ChannelOrder(videos)
	sum.Channels = len(order)

	enr := p.deps.Enricher.Enrich(ctx, videos)

	all, ranked := Rank(videos, enr.Lookup, cooldown, started, p.opts)
	for _, s := range all {
		if s.Rejection != score.Accepted {
			sum.Rejected[string(s.Rejection)]++
		}
	}
	sum.Qualified = len(ranked)

	p.persist(ctx, log, sum, day, started, enr.Fresh(order), all, ranked)

	sum, err = p.finish(ctx, log, sum, started, nil)
	p.notify(ctx, log, sum, ranked)
	return sum, err
}

// cooldown returns the videos ranked in the cooldown window before day.
func (p *Pipeline) cooldown(ctx context.Context, day string) (score.Cooldown, error) {
	days := p.opts.Thresholds.CooldownDays
	if days <= 0 {
		return score.NewCooldown(), nil
	}
	from, err := store.AddDays(day, -days)
	if err != nil {
		return nil, err
	}
	to, err := store.AddDays(day, -1)
	if err != nil {
		return nil, err
	}
	ids, err := p.deps.Store.HotListVideoIDs(ctx, from, to)
	if err != nil {
		return nil, fmt.Errorf("load cooldown set: %w", err)
	}
	return score.NewCooldown(ids...), nil
}

// Rank scores every candidate against its channel baseline, applies the
// filter and orders the survivors by score. Ties keep encounter order.
func Rank(videos []source.Video, lookup func(channelID string) (store.Channel, bool), cooldown score.Cooldown, at time.Time, opts Options) (all []Scored, ranked []Scored) {
	all = make([]Scored, 0, len(videos))
	for _, v := range videos {
		ch, _ := lookup(v.ChannelID)

		age := 0.0
		if !v.PublishedAt.IsZero() {
			age = max(at.Sub(v.PublishedAt).Hours(), 0)
		}

		m := score.Compute(score.Input{
			Views:           v.Views,
			Likes:           v.Likes,
			Comments:        v.Comments,
			AgeHours:        age,
			Subscribers:     ch.Subscribers,
			AvgChannelViews: ch.AvgViews,
		}, opts.Weights)

		s := Scored{
			Video:    v,
			Channel:  ch,
			AgeHours: age,
			Metrics:  m,
			Rejection: score.Qualify(score.Candidate{
				VideoID: v.ID,
				Views:   v.Views,
				IsLive:  v.IsLive(),
			}, m, opts.Thresholds, cooldown),
		}
		if s.Rejection == score.Accepted {
			s.Reasons = score.Reasons(m, opts.Thresholds, opts.Weights)
			ranked = append(ranked, s)
		}
		all = append(all, s)
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Metrics.Score > ranked[j].Metrics.Score
	})
	for i := range ranked {
		ranked[i].Rank = i + 1
	}
	return all, ranked
}

// persist writes every entity independently; a failed row is logged and
// reported but never stops the remaining writes.
func (p *Pipeline) persist(ctx context.Context, log zerolog.Logger, sum *Summary, day string, at time.Time, channels []store.Channel, all, ranked []Scored) {
	st := p.deps.Store
	at = at.UTC()

	videos := make([]store.Video, 0, len(all))
	stats := make([]store.DailyStat, 0, len(all))
	snaps := make([]store.Snapshot, 0, len(all))
	for _, s := range all {
		v := s.Video
		videos = append(videos, store.Video{
			ID:              v.ID,
			ChannelID:       v.ChannelID,
			Title:           v.Title,
			PublishedAt:     v.PublishedAt,
			DurationSeconds: v.DurationSeconds,
			CategoryID:      v.CategoryID,
			Thumbnail:       v.Thumbnail,
			UpdatedAt:       at,
		})
		stats = append(stats, store.DailyStat{
			Day:         day,
			VideoID:     v.ID,
			Views:       v.Views,
			Likes:       v.Likes,
			Comments:    v.Comments,
			AgeHours:    s.AgeHours,
			Velocity:    s.Metrics.ViewVelocity,
			CollectedAt: at,
		})
		snaps = append(snaps, store.Snapshot{
			VideoID:    v.ID,
			Day:        day,
			Views:      v.Views,
			Likes:      v.Likes,
			Comments:   v.Comments,
			CapturedAt: at,
		})
	}

	items := make([]store.HotItem, 0, len(ranked))
	for _, s := range ranked {
		reasons := make([]string, len(s.Reasons))
		for i, r := range s.Reasons {
			reasons[i] = string(r)
		}
		items = append(items, store.HotItem{
			Day:              day,
			VideoID:          s.Video.ID,
			ChannelID:        s.Video.ChannelID,
			Rank:             s.Rank,
			Views:            s.Video.Views,
			Subscribers:      s.Channel.Subscribers,
			ContributionRate: s.Metrics.ContributionRate,
			PerformanceRate:  s.Metrics.PerformanceRate,
			ViewVelocity:     s.Metrics.ViewVelocity,
			EngagementRate:   s.Metrics.EngagementRate,
			Score:            s.Metrics.Score,
			Reasons:          reasons,
			CreatedAt:        at,
		})
	}

	record := func(res store.WriteResult) {
		sum.Writes = append(sum.Writes, res)
		if res.Failed() > 0 {
			log.Warn().
				Str("entity", res.Entity).
				Int("succeeded", res.Succeeded).
				Int("failed", res.Failed()).
				Str("first_error", res.Failures[0].Error).
				Msg("write failures")
		}
	}
	record(st.UpsertChannels(ctx, channels))
	record(st.UpsertVideos(ctx, videos))
	record(st.UpsertDailyStats(ctx, stats))
	record(st.ReplaceHotList(ctx, day, items))
	record(st.UpsertSnapshots(ctx, snaps))
}

func (p *Pipeline) finish(ctx context.Context, log zerolog.Logger, sum *Summary, started time.Time, runErr error) (*Summary, error) {
	elapsed := p.now().Sub(started)
	sum.DurationMS = elapsed.Milliseconds()

	failures := sum.WriteFailures()
	switch {
	case runErr != nil:
		sum.Status = store.RunFailed
		sum.Error = runErr.Error()
	case failures > 0:
		sum.Status = store.RunPartial
	default:
		sum.Status = store.RunSucceeded
	}

	// The run record survives a run that hit its deadline.
	recCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := p.deps.Store.RecordRun(recCtx, store.Run{
		ID:            sum.RunID,
		Day:           sum.Day,
		Status:        sum.Status,
		StartedAt:     sum.StartedAt,
		DurationMS:    sum.DurationMS,
		Candidates:    sum.Videos,
		Channels:      sum.Channels,
		Qualified:     sum.Qualified,
		WriteFailures: failures,
		Error:         sum.Error,
	}); err != nil {
		log.Warn().Err(err).Msg("record run failed")
	}

	p.deps.Metrics.ObserveRun(telemetry.RunResult{
		Status:        sum.Status,
		Duration:      elapsed,
		Candidates:    sum.Videos,
		Qualified:     sum.Qualified,
		Excluded:      sum.Excluded,
		Rejected:      sum.Rejected,
		WriteFailures: failuresByEntity(sum.Writes),
		StrategyFails: sortedNames(sum.StrategyErrors),
	})

	evt := log.Info()
	if runErr != nil {
		evt = log.Error().Err(runErr)
	}
	evt.
		Str("status", sum.Status).
		Int("discovered", sum.Discovered).
		Int("videos", sum.Videos).
		Int("channels", sum.Channels).
		Int("qualified", sum.Qualified).
		Int("write_failures", failures).
		Dur("duration", elapsed).
		Msg("run finished")
	return sum, runErr
}

func (p *Pipeline) notify(ctx context.Context, log zerolog.Logger, sum *Summary, ranked []Scored) {
	if p.deps.Notifier == nil || sum.Status == store.RunFailed || len(ranked) == 0 {
		return
	}
	digest := &alert.Digest{
		Day:        sum.Day,
		RunID:      sum.RunID,
		Status:     sum.Status,
		Candidates: sum.Videos,
		Qualified:  sum.Qualified,
	}
	for _, s := range ranked[:min(len(ranked), p.opts.DigestSize)] {
		reasons := make([]string, len(s.Reasons))
		for i, r := range s.Reasons {
			reasons[i] = string(r)
		}
		digest.Entries = append(digest.Entries, alert.Entry{
			Rank:         s.Rank,
			VideoID:      s.Video.ID,
			Title:        s.Video.Title,
			ChannelTitle: s.Video.ChannelTitle,
			URL:          s.Video.URL(),
			Views:        s.Video.Views,
			Score:        s.Metrics.Score,
			Reasons:      reasons,
		})
	}
	if err := p.deps.Notifier.Broadcast(ctx, digest); err != nil {
		log.Warn().Err(err).Msg("digest delivery failed")
	}
}

// PurgeSnapshots deletes snapshots older than retentionDays before day. It
// is housekeeping: callers log its error and carry on.
func (p *Pipeline) PurgeSnapshots(ctx context.Context, day string, retentionDays int) (int64, error) {
	if p.deps.Store == nil {
		return 0, store.ErrNotConfigured
	}
	if retentionDays <= 0 {
		return 0, errors.New("retention days must be positive")
	}
	before, err := store.AddDays(day, -retentionDays)
	if err != nil {
		return 0, err
	}
	n, err := p.deps.Store.PurgeSnapshots(ctx, before)
	if err != nil {
		return 0, err
	}
	p.deps.Metrics.ObservePurge(n)
	p.log.Info().Str("before", before).Int64("deleted", n).Msg("snapshots purged")
	return n, nil
}

func failuresByEntity(writes []store.WriteResult) map[string]int {
	out := make(map[string]int)
	for _, w := range writes {
		if n := w.Failed(); n > 0 {
			out[w.Entity] += n
		}
	}
	return out
}

func sortedNames(m map[string]string) []string {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
