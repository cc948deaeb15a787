package score

// Thresholds decide whether a scored candidate makes the list.
type Thresholds struct {
	MinViews        int64   `yaml:"min_views" json:"min_views"`
	MinContribution float64 `yaml:"min_contribution" json:"min_contribution"`
	MinPerformance  float64 `yaml:"min_performance" json:"min_performance"`
	ExcludeLive     bool    `yaml:"exclude_live" json:"exclude_live"`
	CooldownDays    int     `yaml:"cooldown_days" json:"cooldown_days"`
}

// DefaultThresholds returns the production thresholds.
func DefaultThresholds() Thresholds {
	return Thresholds{
		MinViews:        50000,
		MinContribution: 9.09,
		MinPerformance:  7.14,
		ExcludeLive:     true,
		CooldownDays:    1,
	}
}

// Rejection names the first check a candidate failed.
type Rejection string

const (
	Accepted           Rejection = ""
	RejectLowViews     Rejection = "low_views"
	RejectContribution Rejection = "low_contribution"
	RejectPerformance  Rejection = "low_performance"
	RejectLive         Rejection = "live"
	RejectCooldown     Rejection = "cooldown"
)

// Candidate is what the filter needs to know about a video.
type Candidate struct {
	VideoID string
	Views   int64
	IsLive  bool
}

// Cooldown is the set of video ids that recently appeared on the list.
type Cooldown map[string]struct{}

// NewCooldown builds a cooldown set from ids.
func NewCooldown(ids ...string) Cooldown {
	c := make(Cooldown, len(ids))
	for _, id := range ids {
		c[id] = struct{}{}
	}
	return c
}

// Contains reports whether id is cooling down. A nil set contains nothing.
func (c Cooldown) Contains(id string) bool {
	_, ok := c[id]
	return ok
}

// Qualify checks c against t and the cooldown set. It returns Accepted when
// the candidate passes every check.
func Qualify(c Candidate, m Metrics, t Thresholds, cooldown Cooldown) Rejection {
	switch {
	case t.ExcludeLive && c.IsLive:
		return RejectLive
	case c.Views < t.MinViews:
		return RejectLowViews
	case m.ContributionRate < t.MinContribution:
		return RejectContribution
	case m.PerformanceRate < t.MinPerformance:
		return RejectPerformance
	case cooldown.Contains(c.VideoID):
		return RejectCooldown
	}
	return Accepted
}
