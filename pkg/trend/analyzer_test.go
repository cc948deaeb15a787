package trend

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func list(day string, ids ...string) List {
	l := List{Day: day}
	for i, id := range ids {
		l.Entries = append(l.Entries, Entry{VideoID: id, Rank: i + 1})
	}
	return l
}

func byID(ms []Movement) map[string]Movement {
	out := make(map[string]Movement, len(ms))
	for _, m := range ms {
		out[m.VideoID] = m
	}
	return out
}

func TestAnalyze_RisingScenario(t *testing.T) {
	prev := list("2026-10-16", "a", "b", "c", "d", "x")
	latest := list("2026-10-17", "a", "x")

	r := Analyze(latest, prev)
	x := byID(r.Movements)["x"]

	assert.Equal(t, Rising, x.Category)
	assert.Equal(t, 3, x.RankChange)
	require.NotNil(t, x.PreviousRank)
	assert.Equal(t, 5, *x.PreviousRank)
	assert.Equal(t, "2026-10-17", r.LatestDay)
	assert.Equal(t, "2026-10-16", r.PreviousDay)
}

func TestAnalyze_AllCategories(t *testing.T) {
	prev := list("d1", "stable", "falls", "rises", "gone")
	latest := list("d2", "stable", "rises", "falls", "fresh")

	r := Analyze(latest, prev)
	got := byID(r.Movements)

	assert.Equal(t, Stable, got["stable"].Category)
	assert.Equal(t, 0, got["stable"].RankChange)
	assert.Equal(t, Rising, got["rises"].Category)
	assert.Equal(t, 1, got["rises"].RankChange)
	assert.Equal(t, Falling, got["falls"].Category)
	assert.Equal(t, -1, got["falls"].RankChange)
	assert.Equal(t, NewEntry, got["fresh"].Category)
	assert.Nil(t, got["fresh"].PreviousRank)

	require.Len(t, r.DroppedOut, 1)
	assert.Equal(t, "gone", r.DroppedOut[0].VideoID)
	assert.Equal(t, DroppedOut, r.DroppedOut[0].Category)

	assert.Equal(t, map[Category]int{NewEntry: 1, Rising: 1, Falling: 1, Stable: 1, DroppedOut: 1}, r.Counts)
}

func TestAnalyze_PartitionIsExhaustiveAndDisjoint(t *testing.T) {
	var prevIDs, latestIDs []string
	for i := 0; i < 40; i++ {
		prevIDs = append(prevIDs, fmt.Sprintf("v%02d", (i*7)%53))
	}
	for i := 0; i < 35; i++ {
		latestIDs = append(latestIDs, fmt.Sprintf("v%02d", (i*11)%47))
	}
	prev := list("d1", prevIDs...)
	latest := list("d2", latestIDs...)

	r := Analyze(latest, prev)

	seen := map[string]Category{}
	for _, m := range append(append([]Movement{}, r.Movements...), r.DroppedOut...) {
		_, dup := seen[m.VideoID]
		require.False(t, dup, "video %s classified twice", m.VideoID)
		seen[m.VideoID] = m.Category
	}

	union := map[string]bool{}
	for _, id := range prevIDs {
		union[id] = true
	}
	for _, id := range latestIDs {
		union[id] = true
	}
	assert.Len(t, seen, len(union))

	total := 0
	for _, n := range r.Counts {
		total += n
	}
	assert.Equal(t, len(union), total)
}

func TestAnalyze_TopMovers(t *testing.T) {
	prev := list("d1", "a", "b", "c", "d", "e", "f", "g", "h", "i", "j")
	latest := list("d2", "j", "i", "h", "g", "f", "e", "d", "c", "b", "a")

	r := Analyze(latest, prev)

	require.Len(t, r.TopRisers, 5)
	assert.Equal(t, "j", r.TopRisers[0].VideoID)
	assert.Equal(t, 9, r.TopRisers[0].RankChange)
	for i := 1; i < len(r.TopRisers); i++ {
		assert.GreaterOrEqual(t, r.TopRisers[i-1].RankChange, r.TopRisers[i].RankChange)
	}

	require.Len(t, r.TopFallers, 5)
	assert.Equal(t, "a", r.TopFallers[0].VideoID)
	assert.Equal(t, -9, r.TopFallers[0].RankChange)
}

func TestAnalyze_EmptyPrevious(t *testing.T) {
	r := Analyze(list("d2", "a", "b"), List{Day: "d1"})
	assert.Equal(t, 2, r.Counts[NewEntry])
	assert.Empty(t, r.DroppedOut)
	assert.Empty(t, r.TopRisers)
}
