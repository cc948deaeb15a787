package score

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompute_ContributionScenario(t *testing.T) {
	m := Compute(Input{
		Views:           150000,
		AvgChannelViews: 10000,
		Subscribers:     100000,
		AgeHours:        10,
	}, DefaultWeights())

	assert.InDelta(t, 136.35, m.ContributionRate, 1e-9)
	assert.GreaterOrEqual(t, m.ContributionRate, DefaultThresholds().MinContribution)
	assert.InDelta(t, 21.4275, m.PerformanceRate, 1e-9)
	assert.InDelta(t, 12500, m.ViewVelocity, 1e-9)
}

func TestCompute_ZeroDenominators(t *testing.T) {
	tests := []struct {
		name string
		in   Input
	}{
		{"all zero", Input{}},
		{"no channel average", Input{Views: 1000, Subscribers: 10}},
		{"no subscribers", Input{Views: 1000, AvgChannelViews: 10}},
		{"no views", Input{Likes: 10, Comments: 5, Subscribers: 10, AvgChannelViews: 10}},
		{"negative age", Input{Views: 1000, AgeHours: -2}},
		{"negative counts", Input{Views: -5, Likes: -1, Comments: -1, Subscribers: -1, AvgChannelViews: -1}},
		{"nan average", Input{Views: 1000, AvgChannelViews: math.NaN()}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := Compute(tt.in, DefaultWeights())
			for _, v := range []float64{m.ContributionRate, m.PerformanceRate, m.ViewVelocity, m.EngagementRate, m.Score} {
				assert.False(t, math.IsNaN(v), "NaN in %+v", m)
				assert.False(t, math.IsInf(v, 0), "Inf in %+v", m)
				assert.GreaterOrEqual(t, v, 0.0)
			}
		})
	}
}

func TestCompute_ZeroGuardsReturnZero(t *testing.T) {
	m := Compute(Input{Views: 5000}, DefaultWeights())
	assert.Zero(t, m.ContributionRate)
	assert.Zero(t, m.PerformanceRate)

	m = Compute(Input{Likes: 100, Comments: 100}, DefaultWeights())
	assert.Zero(t, m.EngagementRate)
}

func TestCompute_EngagementWeightsComments(t *testing.T) {
	m := Compute(Input{Views: 1000, Likes: 10, Comments: 5}, DefaultWeights())
	assert.InDelta(t, 0.03, m.EngagementRate, 1e-12)
}

func TestCompute_Score(t *testing.T) {
	in := Input{Views: 200000, Likes: 8000, Comments: 500, AgeHours: 18, Subscribers: 50000, AvgChannelViews: 20000}
	m := Compute(in, DefaultWeights())

	contribution := 200000.0 / 20000 * 9.09
	performance := 200000.0 / 50000 * 14.285
	velocity := 200000.0 / 20
	engagement := (8000.0 + 4*500) / 200000
	want := 0.3*contribution + 0.3*performance + 0.0001*velocity + 0.1*(engagement*100)

	assert.InDelta(t, want, m.Score, 1e-9)
}

func TestCompute_Deterministic(t *testing.T) {
	in := Input{Views: 123457, Likes: 3210, Comments: 77, AgeHours: 31.25, Subscribers: 8800, AvgChannelViews: 4321.5}
	a := Compute(in, DefaultWeights())
	b := Compute(in, DefaultWeights())
	require.Equal(t, math.Float64bits(a.Score), math.Float64bits(b.Score))
	require.Equal(t, a, b)
}

func TestCompute_AlternateWeights(t *testing.T) {
	w := DefaultWeights()
	w.ContributionMultiplier = 1
	m := Compute(Input{Views: 100, AvgChannelViews: 10}, w)
	assert.InDelta(t, 10, m.ContributionRate, 1e-12)
	assert.InDelta(t, 9.09, DefaultWeights().ContributionMultiplier, 0)
}

func TestReasons(t *testing.T) {
	th := DefaultThresholds()
	w := DefaultWeights()

	got := Reasons(Metrics{ContributionRate: 9.09, PerformanceRate: 7.14, ViewVelocity: 10001, EngagementRate: 0.06}, th, w)
	assert.Equal(t, []Reason{ReasonHighContribution, ReasonHighPerformance, ReasonViralVelocity, ReasonHighEngagement}, got)

	got = Reasons(Metrics{ContributionRate: 1, PerformanceRate: 1, ViewVelocity: 10000, EngagementRate: 0.05}, th, w)
	assert.Empty(t, got)
}
