package score

import "math"

// Weights holds the multipliers of the metrics engine. The zero value is not
// useful; start from DefaultWeights.
type Weights struct {
	ContributionMultiplier float64 `yaml:"contribution_multiplier" json:"contribution_multiplier"`
	PerformanceMultiplier  float64 `yaml:"performance_multiplier" json:"performance_multiplier"`
	VelocityHourOffset     float64 `yaml:"velocity_hour_offset" json:"velocity_hour_offset"`
	CommentWeight          float64 `yaml:"comment_weight" json:"comment_weight"`

	ScoreContribution float64 `yaml:"score_contribution" json:"score_contribution"`
	ScorePerformance  float64 `yaml:"score_performance" json:"score_performance"`
	ScoreVelocity     float64 `yaml:"score_velocity" json:"score_velocity"`
	ScoreEngagement   float64 `yaml:"score_engagement" json:"score_engagement"`

	ViralVelocity  float64 `yaml:"viral_velocity" json:"viral_velocity"`
	HighEngagement float64 `yaml:"high_engagement" json:"high_engagement"`
}

// DefaultWeights returns the production multipliers.
func DefaultWeights() Weights {
	return Weights{
		ContributionMultiplier: 9.09,
		PerformanceMultiplier:  14.285,
		VelocityHourOffset:     2,
		CommentWeight:          4,
		ScoreContribution:      0.3,
		ScorePerformance:       0.3,
		ScoreVelocity:          0.0001,
		ScoreEngagement:        0.1,
		ViralVelocity:          10000,
		HighEngagement:         0.05,
	}
}

// Input is the raw material for one video on one day.
type Input struct {
	Views           int64
	Likes           int64
	Comments        int64
	AgeHours        float64
	Subscribers     int64
	AvgChannelViews float64
}

// Metrics are the derived indicators of a video.
type Metrics struct {
	ContributionRate float64 `json:"contribution_rate"`
	PerformanceRate  float64 `json:"performance_rate"`
	ViewVelocity     float64 `json:"view_velocity"`
	EngagementRate   float64 `json:"engagement_rate"`
	Score            float64 `json:"score"`
}

// Compute derives all metrics and the composite score from in.
//
//	contribution = views / avgChannelViews * 9.09
//	performance  = views / subscribers * 14.285
//	velocity     = views / (ageHours + 2)
//	engagement   = (likes + 4*comments) / views
//	score        = 0.3*contribution + 0.3*performance + 0.0001*velocity + 0.1*(engagement*100)
func Compute(in Input, w Weights) Metrics {
	views := nonNegative(float64(in.Views))
	likes := nonNegative(float64(in.Likes))
	comments := nonNegative(float64(in.Comments))
	subs := nonNegative(float64(in.Subscribers))
	avg := nonNegative(in.AvgChannelViews)
	age := nonNegative(in.AgeHours)

	var m Metrics
	m.ContributionRate = ratio(views, avg) * w.ContributionMultiplier
	m.PerformanceRate = ratio(views, subs) * w.PerformanceMultiplier
	m.ViewVelocity = ratio(views, age+w.VelocityHourOffset)
	m.EngagementRate = ratio(likes+w.CommentWeight*comments, views)
	m.Score = w.ScoreContribution*m.ContributionRate +
		w.ScorePerformance*m.PerformanceRate +
		w.ScoreVelocity*m.ViewVelocity +
		w.ScoreEngagement*(m.EngagementRate*100)
	return m
}

// ratio divides a by b and returns 0 for a zero or non-finite denominator.
func ratio(a, b float64) float64 {
	if b <= 0 || math.IsInf(b, 0) || math.IsNaN(b) {
		return 0
	}
	r := a / b
	if math.IsInf(r, 0) || math.IsNaN(r) {
		return 0
	}
	return r
}

func nonNegative(v float64) float64 {
	if v < 0 || math.IsNaN(v) {
		return 0
	}
	return v
}

// Reason is a qualitative flag attached to a ranked video.
type Reason string

const (
	ReasonHighContribution Reason = "HIGH_CONTRIBUTION"
	ReasonHighPerformance  Reason = "HIGH_PERFORMANCE"
	ReasonViralVelocity    Reason = "VIRAL_VELOCITY"
	ReasonHighEngagement   Reason = "HIGH_ENGAGEMENT"
)

// Reasons returns the informational flags earned by m. Flags are not
// exclusive and do not affect ranking.
func Reasons(m Metrics, t Thresholds, w Weights) []Reason {
	reasons := make([]Reason, 0, 4)
	if m.ContributionRate >= t.MinContribution {
		reasons = append(reasons, ReasonHighContribution)
	}
	if m.PerformanceRate >= t.MinPerformance {
		reasons = append(reasons, ReasonHighPerformance)
	}
	if m.ViewVelocity > w.ViralVelocity {
		reasons = append(reasons, ReasonViralVelocity)
	}
	if m.EngagementRate > w.HighEngagement {
		reasons = append(reasons, ReasonHighEngagement)
	}
	return reasons
}
