package trend

import (
	"errors"
	"sort"
)

// ErrNotEnoughData is returned when fewer than two ranked days exist.
var ErrNotEnoughData = errors.New("not enough data: need two ranked days")

// Category classifies how a video moved between two ranked days.
type Category string

const (
	NewEntry   Category = "new_entry"
	Rising     Category = "rising"
	Falling    Category = "falling"
	Stable     Category = "stable"
	DroppedOut Category = "dropped_out"
)

// Categories lists every category in presentation order.
func Categories() []Category {
	return []Category{NewEntry, Rising, Falling, Stable, DroppedOut}
}

// Entry is one ranked video on a given day.
type Entry struct {
	VideoID      string  `json:"video_id" db:"video_id"`
	Rank         int     `json:"rank" db:"rank"`
	Score        float64 `json:"score" db:"score"`
	Title        string  `json:"title" db:"title"`
	ChannelID    string  `json:"channel_id" db:"channel_id"`
	ChannelTitle string  `json:"channel_title" db:"channel_title"`
}

// List is the ranked output of one day.
type List struct {
	Day     string
	Entries []Entry
}

// Movement is the classification of one video.
type Movement struct {
	Entry
	Category     Category `json:"category"`
	PreviousRank *int     `json:"previous_rank,omitempty"`
	RankChange   int      `json:"rank_change"`
}

// Report compares the latest ranked day with the previous one.
type Report struct {
	LatestDay   string           `json:"latest_date"`
	PreviousDay string           `json:"previous_date"`
	Movements   []Movement       `json:"items"`
	DroppedOut  []Movement       `json:"dropped_out"`
	TopRisers   []Movement       `json:"top_risers"`
	TopFallers  []Movement       `json:"top_fallers"`
	Counts      map[Category]int `json:"counts"`
}

const topMovers = 5

// Analyze classifies every video of latest against previous. Videos only in
// previous are reported as dropped out, carrying their previous rank.
func Analyze(latest, previous List) Report {
	prevRank := make(map[string]int, len(previous.Entries))
	for _, e := range previous.Entries {
		prevRank[e.VideoID] = e.Rank
	}
	inLatest := make(map[string]bool, len(latest.Entries))

	report := Report{
		LatestDay:   latest.Day,
		PreviousDay: previous.Day,
		Movements:   make([]Movement, 0, len(latest.Entries)),
		DroppedOut:  []Movement{},
		Counts:      make(map[Category]int, 5),
	}
	for _, c := range Categories() {
		report.Counts[c] = 0
	}

	for _, e := range latest.Entries {
		inLatest[e.VideoID] = true
		mv := classify(e, prevRank)
		report.Movements = append(report.Movements, mv)
		report.Counts[mv.Category]++
	}

	for _, e := range previous.Entries {
		if inLatest[e.VideoID] {
			continue
		}
		rank := e.Rank
		report.DroppedOut = append(report.DroppedOut, Movement{
			Entry:        e,
			Category:     DroppedOut,
			PreviousRank: &rank,
		})
		report.Counts[DroppedOut]++
	}

	report.TopRisers = topBy(report.Movements, Rising, func(a, b Movement) bool {
		return a.RankChange > b.RankChange
	})
	report.TopFallers = topBy(report.Movements, Falling, func(a, b Movement) bool {
		return a.RankChange < b.RankChange
	})
	return report
}

func classify(e Entry, prevRank map[string]int) Movement {
	prev, ok := prevRank[e.VideoID]
	if !ok {
		return Movement{Entry: e, Category: NewEntry}
	}

	mv := Movement{Entry: e, PreviousRank: &prev, RankChange: prev - e.Rank}
	switch {
	case prev > e.Rank:
		mv.Category = Rising
	case prev < e.Rank:
		mv.Category = Falling
	default:
		mv.Category = Stable
	}
	return mv
}

// topBy returns at most topMovers movements of category c ordered by less,
// keeping current rank order among ties.
func topBy(all []Movement, c Category, less func(a, b Movement) bool) []Movement {
	picked := make([]Movement, 0, topMovers)
	for _, mv := range all {
		if mv.Category == c {
			picked = append(picked, mv)
		}
	}
	sort.SliceStable(picked, func(i, j int) bool { return less(picked[i], picked[j]) })
	if len(picked) > topMovers {
		picked = picked[:topMovers]
	}
	return picked
}
