package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/elonfeng/hotlist/internal/config"
	"github.com/elonfeng/hotlist/internal/logging"
	"github.com/elonfeng/hotlist/internal/pipeline"
	"github.com/elonfeng/hotlist/internal/scheduler"
	"github.com/elonfeng/hotlist/internal/store"
	"github.com/elonfeng/hotlist/internal/telemetry"
	"github.com/elonfeng/hotlist/pkg/alert"
	"github.com/elonfeng/hotlist/pkg/server"
	"github.com/elonfeng/hotlist/pkg/source"
	"github.com/elonfeng/hotlist/pkg/trend"
)

var timeNow = time.Now

func loadConfig() (*config.Config, error) {
	path := cfgFile
	if path == "" {
		if _, err := os.Stat("config.yaml"); err == nil {
			path = "config.yaml"
		}
	}
	return config.Load(path)
}

// app is the wiring shared by every command.
type app struct {
	cfg   *config.Config
	log   zerolog.Logger
	store store.Store // nil when storage is not configured
}

func setup() (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	a := &app{
		cfg: cfg,
		log: logging.New(cfg.Log.Level, cfg.Log.Format, "hotlist"),
	}

	db, err := store.Open(cfg.Database.Driver, cfg.Database.DSN)
	switch {
	case errors.Is(err, store.ErrNotConfigured):
		a.log.Warn().Msg("storage is not configured; reads return empty results")
	case err != nil:
		return nil, fmt.Errorf("open store: %w", err)
	default:
		a.store = db
	}
	return a, nil
}

func (a *app) close() {
	if a.store != nil {
		a.store.Close()
	}
}

func (a *app) requireStore() error {
	if a.store == nil {
		return fmt.Errorf("storage is not configured (set database.dsn or HOTLIST_DB_DSN)")
	}
	return nil
}

// buildPipeline wires the platform client, discovery strategies, enricher
// and notifiers around the store.
func (a *app) buildPipeline(ctx context.Context, metrics *telemetry.Metrics) (*pipeline.Pipeline, error) {
	if err := a.requireStore(); err != nil {
		return nil, err
	}
	yt := a.cfg.YouTube
	api, err := source.NewYouTube(ctx, yt.APIKey, yt.Endpoint)
	if err != nil {
		return nil, err
	}
	window := yt.ParseSearchWindow()

	primary := []source.Strategy{source.NewTrending(api, yt.Region, yt.TrendingPages)}
	if len(yt.SearchTerms) > 0 {
		primary = append(primary, source.NewSearch(api, yt.SearchTerms, window, yt.Region, yt.Language))
	}
	var expanders []source.Expander
	if yt.RelatedPerSeed > 0 {
		expanders = append(expanders, source.NewRelated(api, window, yt.Region, yt.RelatedPerSeed))
	}
	if yt.FeedExpansion {
		expanders = append(expanders, source.NewChannelFeed(yt.FeedBaseURL, window, yt.RelatedPerSeed))
	}

	collector := source.NewCollector(api, primary, expanders, a.cfg.CollectorRules(), source.CollectorOptions{
		BatchSize:   yt.BatchSize,
		Concurrency: yt.Concurrency,
		SeedCount:   yt.SeedCount,
	}, a.log)
	enricher := pipeline.NewEnricher(api, a.store, yt.BatchSize, yt.Concurrency, a.log)

	deps := pipeline.Deps{
		Collector: collector,
		Enricher:  enricher,
		Store:     a.store,
		Metrics:   metrics,
		Log:       a.log,
	}
	if mgr := buildAlertManager(a.cfg); mgr.HasNotifiers() {
		deps.Notifier = mgr
	}

	return pipeline.New(deps, pipeline.Options{
		Weights:    a.cfg.Scoring.Weights,
		Thresholds: a.cfg.Scoring.Thresholds,
		Location:   a.cfg.Schedule.Location(),
		DigestSize: a.cfg.Alerts.TopN,
	}), nil
}

func buildAlertManager(cfg *config.Config) *alert.Manager {
	var notifiers []alert.Notifier

	if cfg.Alerts.Slack.Enabled && cfg.Alerts.Slack.WebhookURL != "" {
		notifiers = append(notifiers, alert.NewSlack(cfg.Alerts.Slack.WebhookURL))
	}
	if cfg.Alerts.Discord.Enabled && cfg.Alerts.Discord.WebhookURL != "" {
		notifiers = append(notifiers, alert.NewDiscord(cfg.Alerts.Discord.WebhookURL))
	}
	if cfg.Alerts.Webhook.Enabled && cfg.Alerts.Webhook.URL != "" {
		notifiers = append(notifiers, alert.NewWebhook(cfg.Alerts.Webhook.URL, cfg.Alerts.Webhook.Secret))
	}

	return alert.NewManager(notifiers)
}

func runOnce(ctx context.Context, date string, jsonOutput bool) error {
	a, err := setup()
	if err != nil {
		return err
	}
	defer a.close()

	p, err := a.buildPipeline(ctx, nil)
	if err != nil {
		return err
	}
	if date == "" {
		date = p.Today()
	}

	ctx, cancel := context.WithTimeout(ctx, a.cfg.Schedule.ParseTimeout())
	defer cancel()

	sum, runErr := p.Run(ctx, date)
	if sum != nil {
		if jsonOutput {
			if err := printJSON(sum); err != nil {
				return err
			}
		} else {
			printSummary(sum)
		}
	}
	return runErr
}

func runServe(ctx context.Context, port int, withScheduler bool) error {
	a, err := setup()
	if err != nil {
		return err
	}
	defer a.close()

	if !a.cfg.IsLocal() {
		gin.SetMode(gin.ReleaseMode)
	}
	if port == 0 {
		port = a.cfg.Server.Port
	}

	metrics := telemetry.New()

	// The read API stays up without a platform key; only runs need one.
	var p *pipeline.Pipeline
	if a.store != nil {
		p, err = a.buildPipeline(ctx, metrics)
		if err != nil {
			if withScheduler {
				return err
			}
			a.log.Warn().Err(err).Msg("pipeline unavailable; trigger endpoint disabled")
		}
	} else if withScheduler {
		return a.requireStore()
	}

	var runner server.Runner
	if p != nil {
		runner = p
	}
	srv := server.New(a.store, runner, metrics, server.Config{
		Port:          port,
		CronSecret:    a.cfg.Server.CronSecret,
		SkipAuth:      a.cfg.IsLocal(),
		Categories:    a.cfg.Categories,
		Location:      a.cfg.Schedule.Location(),
		RunTimeout:    a.cfg.Schedule.ParseTimeout(),
		RetentionDays: a.cfg.Snapshot.RetentionDays,
	}, a.log)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.ListenAndServe(gctx)
	})
	if withScheduler {
		hour, minute := a.cfg.Schedule.ParseRunAt()
		sched := scheduler.New(p, scheduler.Options{
			Hour:          hour,
			Minute:        minute,
			Location:      a.cfg.Schedule.Location(),
			Timeout:       a.cfg.Schedule.ParseTimeout(),
			RunOnStart:    a.cfg.Schedule.RunOnStart,
			RetentionDays: a.cfg.Snapshot.RetentionDays,
		}, a.log)
		g.Go(func() error {
			return sched.Run(gctx)
		})
	}

	err = g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

type listOptions struct {
	date    string
	limit   int
	offset  int
	sort    string
	minSubs int64
	maxSubs int64
	minPerf float64
}

func runList(ctx context.Context, opts listOptions, jsonOutput bool) error {
	a, err := setup()
	if err != nil {
		return err
	}
	defer a.close()
	if err := a.requireStore(); err != nil {
		return err
	}

	day := opts.date
	if day == "" {
		day = store.FormatDay(timeNow().In(a.cfg.Schedule.Location()))
	}
	page, err := a.store.ListHotItems(ctx, store.ListQuery{
		Day:     day,
		Limit:   opts.limit,
		Offset:  opts.offset,
		Sort:    opts.sort,
		MinSubs: opts.minSubs,
		MaxSubs: opts.maxSubs,
		MinPerf: opts.minPerf,
	})
	if err != nil {
		return err
	}
	page.ApplyCategories(a.cfg.Categories)

	if jsonOutput {
		return printJSON(page)
	}
	if len(page.Items) == 0 {
		fmt.Printf("No hot list for %s.\n", page.Day)
		return nil
	}

	fmt.Printf("%s: %d videos (avg views %.0f, avg performance %.1f, top category %s)\n\n",
		page.Day, page.Total, page.Stats.AvgViews, page.Stats.AvgPerformance, page.Stats.TopCategory)
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "RANK\tSCORE\tVIEWS\tSUBS\tPERF\tCATEGORY\tCHANNEL\tTITLE")
	for _, it := range page.Items {
		fmt.Fprintf(w, "%d\t%.1f\t%d\t%d\t%.1f\t%s\t%s\t%s\n",
			it.Rank, it.Score, it.Views, it.Subscribers, it.PerformanceRate,
			it.Category, truncate(it.ChannelTitle, 24), truncate(it.Title, 60))
	}
	return w.Flush()
}

func runDates(ctx context.Context, limit int, jsonOutput bool) error {
	a, err := setup()
	if err != nil {
		return err
	}
	defer a.close()
	if err := a.requireStore(); err != nil {
		return err
	}

	days, err := a.store.Days(ctx, limit)
	if err != nil {
		return err
	}
	if jsonOutput {
		return printJSON(days)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "DATE\tITEMS")
	for _, d := range days {
		fmt.Fprintf(w, "%s\t%d\n", d.Day, d.Count)
	}
	return w.Flush()
}

func runTrends(ctx context.Context, jsonOutput bool) error {
	a, err := setup()
	if err != nil {
		return err
	}
	defer a.close()
	if err := a.requireStore(); err != nil {
		return err
	}

	report, err := a.store.Trends(ctx)
	if errors.Is(err, trend.ErrNotEnoughData) {
		fmt.Println("Not enough data yet: at least two ranked days are needed.")
		return nil
	}
	if err != nil {
		return err
	}
	if jsonOutput {
		return printJSON(report)
	}

	fmt.Printf("%s vs %s:", report.LatestDay, report.PreviousDay)
	for _, c := range trend.Categories() {
		fmt.Printf(" %s=%d", c, report.Counts[c])
	}
	fmt.Println()
	fmt.Println()

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "RANK\tPREV\tCHANGE\tCATEGORY\tTITLE")
	for _, m := range append(report.Movements, report.DroppedOut...) {
		prev := "-"
		if m.PreviousRank != nil {
			prev = fmt.Sprint(*m.PreviousRank)
		}
		rank := "-"
		if m.Category != trend.DroppedOut {
			rank = fmt.Sprint(m.Rank)
		}
		fmt.Fprintf(w, "%s\t%s\t%+d\t%s\t%s\n", rank, prev, m.RankChange, m.Category, truncate(m.Title, 60))
	}
	return w.Flush()
}

func runRuns(ctx context.Context, limit int, jsonOutput bool) error {
	a, err := setup()
	if err != nil {
		return err
	}
	defer a.close()
	if err := a.requireStore(); err != nil {
		return err
	}

	runs, err := a.store.ListRuns(ctx, limit)
	if err != nil {
		return err
	}
	if jsonOutput {
		return printJSON(runs)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "STARTED\tDATE\tSTATUS\tCANDIDATES\tQUALIFIED\tFAILED ROWS\tDURATION\tERROR")
	for _, r := range runs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%d\t%dms\t%s\n",
			r.StartedAt.Format("2006-01-02 15:04"), r.Day, r.Status, r.Candidates, r.Qualified,
			r.WriteFailures, r.DurationMS, truncate(r.Error, 60))
	}
	return w.Flush()
}

func runPurge(ctx context.Context, days int) error {
	a, err := setup()
	if err != nil {
		return err
	}
	defer a.close()
	if err := a.requireStore(); err != nil {
		return err
	}
	if days <= 0 {
		days = a.cfg.Snapshot.RetentionDays
	}

	before, err := store.AddDays(store.FormatDay(timeNow().In(a.cfg.Schedule.Location())), -days)
	if err != nil {
		return err
	}
	n, err := a.store.PurgeSnapshots(ctx, before)
	if err != nil {
		return err
	}
	fmt.Printf("Deleted %d snapshots older than %s.\n", n, before)
	return nil
}

func printSummary(sum *pipeline.Summary) {
	fmt.Printf("Run %s for %s: %s in %dms\n", sum.RunID, sum.Day, sum.Status, sum.DurationMS)
	fmt.Printf("  discovered %d, candidates %d, channels %d, hot list %d\n",
		sum.Discovered, sum.Videos, sum.Channels, sum.Qualified)
	for name, err := range sum.StrategyErrors {
		fmt.Printf("  strategy %s failed: %s\n", name, err)
	}
	for _, w := range sum.Writes {
		fmt.Printf("  %-18s %d written, %d failed\n", w.Entity, w.Succeeded, w.Failed())
	}
	if sum.Error != "" {
		fmt.Printf("  error: %s\n", sum.Error)
	}
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
