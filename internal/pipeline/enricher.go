package pipeline

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/elonfeng/hotlist/internal/store"
	"github.com/elonfeng/hotlist/pkg/source"
)

// ChannelReader looks up previously stored channel baselines.
type ChannelReader interface {
	ChannelsByID(ctx context.Context, ids []string) (map[string]store.Channel, error)
}

// Enricher fetches the channel baselines of collected candidates.
type Enricher struct {
	api         source.VideoAPI
	stored      ChannelReader
	batchSize   int
	concurrency int
	log         zerolog.Logger
	now         func() time.Time
}

// NewEnricher creates an enricher. stored may be nil.
func NewEnricher(api source.VideoAPI, stored ChannelReader, batchSize, concurrency int, log zerolog.Logger) *Enricher {
	if batchSize <= 0 || batchSize > source.MaxBatch {
		batchSize = source.MaxBatch
	}
	if concurrency <= 0 {
		concurrency = 1
	}
	return &Enricher{
		api:         api,
		stored:      stored,
		batchSize:   batchSize,
		concurrency: concurrency,
		log:         log.With().Str("component", "enricher").Logger(),
		now:         time.Now,
	}
}

// Enrichment is the outcome of one enrichment pass.
type Enrichment struct {
	// Channels holds freshly fetched baselines, to be upserted.
	Channels map[string]store.Channel
	// Fallback holds stored baselines used where a fetch failed.
	Fallback      map[string]store.Channel
	FailedBatches int
	Missing       int
}

// Lookup returns the baseline of a channel, fresh or stored.
func (e *Enrichment) Lookup(id string) (store.Channel, bool) {
	if c, ok := e.Channels[id]; ok {
		return c, true
	}
	c, ok := e.Fallback[id]
	return c, ok
}

// Fresh returns the fetched channels in a stable order.
func (e *Enrichment) Fresh(order []string) []store.Channel {
	out := make([]store.Channel, 0, len(e.Channels))
	for _, id := range order {
		if c, ok := e.Channels[id]; ok {
			out = append(out, c)
		}
	}
	return out
}

// ChannelOrder returns the distinct channel ids of videos in encounter order.
func ChannelOrder(videos []source.Video) []string {
	seen := make(map[string]bool)
	var ids []string
	for _, v := range videos {
		if v.ChannelID == "" || seen[v.ChannelID] {
			continue
		}
		seen[v.ChannelID] = true
		ids = append(ids, v.ChannelID)
	}
	return ids
}

// Enrich fetches every distinct channel of videos. Channels of a failed
// batch fall back to their stored rows when available.
func (e *Enricher) Enrich(ctx context.Context, videos []source.Video) *Enrichment {
	ids := ChannelOrder(videos)
	batches := source.Chunk(ids, e.batchSize)
	results := make([][]source.ChannelStats, len(batches))

	var mu sync.Mutex
	out := &Enrichment{
		Channels: make(map[string]store.Channel, len(ids)),
		Fallback: make(map[string]store.Channel),
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.concurrency)
	for i, batch := range batches {
		g.Go(func() error {
			stats, err := e.api.Channels(gctx, batch)
			if err != nil {
				e.log.Warn().Err(err).Int("batch", i).Int("size", len(batch)).Msg("channel batch failed")
				mu.Lock()
				out.FailedBatches++
				mu.Unlock()
				return nil
			}
			results[i] = stats
			return nil
		})
	}
	_ = g.Wait()

	fetchedAt := e.now().UTC()
	for _, stats := range results {
		for _, st := range stats {
			out.Channels[st.ID] = baseline(st, fetchedAt)
		}
	}

	// Failed batches and channels the platform did not return.
	var retry []string
	for _, id := range ids {
		if _, ok := out.Channels[id]; !ok {
			retry = append(retry, id)
		}
	}
	if len(retry) > 0 && e.stored != nil {
		stored, err := e.stored.ChannelsByID(ctx, retry)
		if err != nil {
			e.log.Warn().Err(err).Int("channels", len(retry)).Msg("stored channel lookup failed")
		}
		for id, c := range stored {
			out.Fallback[id] = c
		}
	}

	for _, id := range ids {
		if _, ok := out.Lookup(id); !ok {
			out.Missing++
		}
	}

	e.log.Info().
		Int("channels", len(ids)).
		Int("fetched", len(out.Channels)).
		Int("fallback", len(out.Fallback)).
		Int("missing", out.Missing).
		Msg("enrichment complete")
	return out
}

// baseline derives the stored channel row from raw counts. The average
// views per video is 0 for channels without public videos.
func baseline(st source.ChannelStats, at time.Time) store.Channel {
	var avg float64
	if st.Videos > 0 {
		avg = float64(st.Views) / float64(st.Videos)
	}
	return store.Channel{
		ID:          st.ID,
		Title:       st.Title,
		Thumbnail:   st.Thumbnail,
		Subscribers: st.Subscribers,
		VideoCount:  st.Videos,
		ViewCount:   st.Views,
		AvgViews:    avg,
		UpdatedAt:   at,
	}
}
