package source

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// ErrNoCandidates is returned when no discovery strategy produced anything.
var ErrNoCandidates = errors.New("no candidates collected")

// Collection is the outcome of one collector run.
type Collection struct {
	Candidates     []Video
	Discovered     int
	StrategyErrors map[string]error
	StrategyCounts map[string]int
	Excluded       map[Exclusion]int
	FailedBatches  int
}

// CollectorOptions tune batching and seeding.
type CollectorOptions struct {
	BatchSize   int
	Concurrency int
	SeedCount   int
}

// Collector merges several discovery strategies into one deduplicated,
// structurally eligible candidate set.
type Collector struct {
	api       VideoAPI
	primary   []Strategy
	expanders []Expander
	rules     Rules
	opts      CollectorOptions
	log       zerolog.Logger
}

// NewCollector creates a collector. Expanders run after the primary
// strategies and receive the top SeedCount eligible videos by views.
func NewCollector(api VideoAPI, primary []Strategy, expanders []Expander, rules Rules, opts CollectorOptions, log zerolog.Logger) *Collector {
	if opts.BatchSize <= 0 || opts.BatchSize > MaxBatch {
		opts.BatchSize = MaxBatch
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 1
	}
	if opts.SeedCount < 0 {
		opts.SeedCount = 0
	}
	return &Collector{
		api:       api,
		primary:   primary,
		expanders: expanders,
		rules:     rules,
		opts:      opts,
		log:       log.With().Str("component", "collector").Logger(),
	}
}

// Collect runs every strategy. A failing strategy only loses its own
// contribution; ErrNoCandidates is returned when nothing survives.
func (c *Collector) Collect(ctx context.Context) (*Collection, error) {
	col := &Collection{
		StrategyErrors: make(map[string]error),
		StrategyCounts: make(map[string]int),
		Excluded:       make(map[Exclusion]int),
	}
	seen := make(map[string]bool)

	var ids []string
	origin := make(map[string]string)
	for _, s := range c.primary {
		found, err := s.Discover(ctx)
		if err != nil {
			c.log.Warn().Err(err).Str("strategy", s.Name()).Msg("discovery failed")
			col.StrategyErrors[s.Name()] = err
			continue
		}
		fresh := addNew(found, seen, &ids)
		for _, id := range fresh {
			origin[id] = s.Name()
		}
		col.StrategyCounts[s.Name()] = len(fresh)
		c.log.Info().Str("strategy", s.Name()).Int("found", len(found)).Int("new", len(fresh)).Msg("discovered")
	}

	eligible := c.eligible(c.hydrate(ctx, ids, origin, col), col)

	if len(c.expanders) > 0 && c.opts.SeedCount > 0 && len(eligible) > 0 {
		seeds := topByViews(eligible, c.opts.SeedCount)

		var more []string
		moreOrigin := make(map[string]string)
		for _, e := range c.expanders {
			found, err := e.Expand(ctx, seeds)
			if err != nil {
				c.log.Warn().Err(err).Str("strategy", e.Name()).Msg("expansion failed")
				col.StrategyErrors[e.Name()] = err
				continue
			}
			fresh := addNew(found, seen, &more)
			for _, id := range fresh {
				moreOrigin[id] = e.Name()
			}
			col.StrategyCounts[e.Name()] = len(fresh)
			c.log.Info().Str("strategy", e.Name()).Int("found", len(found)).Int("new", len(fresh)).Msg("expanded")
		}
		eligible = append(eligible, c.eligible(c.hydrate(ctx, more, moreOrigin, col), col)...)
	}

	col.Discovered = len(seen)

	capped, dropped := c.rules.Cap(eligible)
	for reason, n := range dropped {
		col.Excluded[reason] += n
	}
	col.Candidates = capped

	if len(col.Candidates) == 0 {
		if len(col.StrategyErrors) > 0 {
			errs := make([]error, 0, len(col.StrategyErrors))
			for _, name := range sortedKeys(col.StrategyErrors) {
				errs = append(errs, fmt.Errorf("%s: %w", name, col.StrategyErrors[name]))
			}
			return col, fmt.Errorf("%w: %w", ErrNoCandidates, errors.Join(errs...))
		}
		return col, ErrNoCandidates
	}

	c.log.Info().
		Int("discovered", col.Discovered).
		Int("candidates", len(col.Candidates)).
		Int("failed_batches", col.FailedBatches).
		Msg("collection complete")
	return col, nil
}

// hydrate fetches details for ids in batches. A failed batch is logged and
// its ids are dropped.
func (c *Collector) hydrate(ctx context.Context, ids []string, origin map[string]string, col *Collection) []Video {
	batches := Chunk(ids, c.opts.BatchSize)
	results := make([][]Video, len(batches))

	var (
		mu     sync.Mutex
		failed int
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.opts.Concurrency)
	for i, batch := range batches {
		g.Go(func() error {
			videos, err := c.api.Videos(gctx, batch)
			if err != nil {
				c.log.Warn().Err(err).Int("batch", i).Int("size", len(batch)).Msg("video batch failed")
				mu.Lock()
				failed++
				mu.Unlock()
				return nil
			}
			results[i] = videos
			return nil
		})
	}
	_ = g.Wait()
	col.FailedBatches += failed

	var out []Video
	for _, videos := range results {
		for _, v := range videos {
			v.Strategy = origin[v.ID]
			out = append(out, v)
		}
	}
	return out
}

func (c *Collector) eligible(videos []Video, col *Collection) []Video {
	out := make([]Video, 0, len(videos))
	for _, v := range videos {
		if reason := c.rules.Exclude(v); reason != "" {
			col.Excluded[reason]++
			continue
		}
		out = append(out, v)
	}
	return out
}

func addNew(found []string, seen map[string]bool, into *[]string) []string {
	var fresh []string
	for _, id := range found {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		fresh = append(fresh, id)
	}
	*into = append(*into, fresh...)
	return fresh
}

func topByViews(videos []Video, n int) []Video {
	sorted := make([]Video, len(videos))
	copy(sorted, videos)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Views > sorted[j].Views })
	if len(sorted) > n {
		sorted = sorted[:n]
	}
	return sorted
}

func sortedKeys(m map[string]error) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
