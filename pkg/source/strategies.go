package source

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode"
)

// Trending discovers ids from the platform's most-popular chart.
type Trending struct {
	api    VideoAPI
	region string
	pages  int
}

// NewTrending creates the trending-feed strategy.
func NewTrending(api VideoAPI, region string, pages int) *Trending {
	if pages <= 0 {
		pages = 4
	}
	return &Trending{api: api, region: region, pages: pages}
}

func (t *Trending) Name() string { return "trending" }

func (t *Trending) Discover(ctx context.Context) ([]string, error) {
	return t.api.MostPopular(ctx, t.region, t.pages)
}

// Search discovers ids by searching a curated term list for recent uploads.
type Search struct {
	api      VideoAPI
	terms    []string
	window   time.Duration
	region   string
	language string
	now      func() time.Time
}

// NewSearch creates the keyword-search strategy.
func NewSearch(api VideoAPI, terms []string, window time.Duration, region, language string) *Search {
	if window <= 0 {
		window = 7 * 24 * time.Hour
	}
	return &Search{
		api:      api,
		terms:    terms,
		window:   window,
		region:   region,
		language: language,
		now:      time.Now,
	}
}

func (s *Search) Name() string { return "search" }

// Discover runs every term; a failing term is skipped unless all fail.
func (s *Search) Discover(ctx context.Context) ([]string, error) {
	after := s.now().Add(-s.window)

	var (
		ids  []string
		errs []error
	)
	for _, term := range s.terms {
		found, err := s.api.Search(ctx, SearchQuery{
			Term:           term,
			PublishedAfter: after,
			Region:         s.region,
			Language:       s.language,
		})
		if err != nil {
			errs = append(errs, err)
			continue
		}
		ids = append(ids, found...)
	}
	if len(ids) == 0 && len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return ids, nil
}

// Related expands seed videos by searching for their most significant title
// tokens.
type Related struct {
	api     VideoAPI
	window  time.Duration
	region  string
	perSeed int64
	now     func() time.Time
}

// NewRelated creates the related-video expansion.
func NewRelated(api VideoAPI, window time.Duration, region string, perSeed int) *Related {
	if window <= 0 {
		window = 7 * 24 * time.Hour
	}
	if perSeed <= 0 {
		perSeed = 10
	}
	return &Related{
		api:     api,
		window:  window,
		region:  region,
		perSeed: int64(perSeed),
		now:     time.Now,
	}
}

func (r *Related) Name() string { return "related" }

func (r *Related) Expand(ctx context.Context, seeds []Video) ([]string, error) {
	after := r.now().Add(-r.window)

	var (
		ids  []string
		errs []error
	)
	for _, seed := range seeds {
		query := RelatedQuery(seed.Title)
		if query == "" {
			continue
		}
		found, err := r.api.Search(ctx, SearchQuery{
			Term:           query,
			PublishedAfter: after,
			Region:         r.region,
			MaxResults:     r.perSeed,
		})
		if err != nil {
			errs = append(errs, err)
			continue
		}
		for _, id := range found {
			if id != seed.ID {
				ids = append(ids, id)
			}
		}
	}
	if len(ids) == 0 && len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return ids, nil
}

const relatedQueryTokens = 4

// RelatedQuery builds a search query from the leading significant tokens of a
// title.
func RelatedQuery(title string) string {
	tokens := significantTokens(title)
	if len(tokens) > relatedQueryTokens {
		tokens = tokens[:relatedQueryTokens]
	}
	return strings.Join(tokens, " ")
}

var stopwords = map[string]bool{
	"a": true, "an": true, "the": true, "and": true, "or": true,
	"but": true, "in": true, "on": true, "at": true, "to": true,
	"for": true, "of": true, "with": true, "by": true, "from": true,
	"is": true, "are": true, "was": true, "were": true, "be": true,
	"this": true, "that": true, "it": true, "i": true, "we": true,
	"you": true, "my": true, "your": true, "how": true, "what": true,
	"why": true, "not": true, "no": true, "new": true, "just": true,
	"shorts": true, "short": true, "video": true, "official": true,
	"ft": true, "feat": true, "ep": true,
}

// significantTokens extracts meaningful words from a title, deduplicated in
// order of appearance.
func significantTokens(title string) []string {
	words := strings.FieldsFunc(strings.ToLower(title), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})

	seen := make(map[string]bool, len(words))
	var tokens []string
	for _, w := range words {
		if len([]rune(w)) < 2 || stopwords[w] || seen[w] {
			continue
		}
		seen[w] = true
		tokens = append(tokens, w)
	}
	return tokens
}
