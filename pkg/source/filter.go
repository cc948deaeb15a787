package source

import (
	"math"
	"sort"
	"strings"
)

// Exclusion names the structural reason a video was dropped before scoring.
type Exclusion string

const (
	ExcludeLive       Exclusion = "live"
	ExcludeMusic      Exclusion = "official_music"
	ExcludeMovie      Exclusion = "movie"
	ExcludeTopic      Exclusion = "topic_channel"
	ExcludeNoViews    Exclusion = "no_views"
	ExcludeChannelCap Exclusion = "channel_cap"
	ExcludeShortsCap  Exclusion = "shorts_cap"
	ExcludeOverflow   Exclusion = "overflow"
)

// DefaultMusicMarkers identify official music uploads in titles.
var DefaultMusicMarkers = []string{
	"official music video", "official video", "official mv", "official audio",
	"official lyric video", "lyric video", "(audio)", "m/v",
}

// DefaultMovieMarkers identify theatrical content in titles.
var DefaultMovieMarkers = []string{
	"official trailer", "teaser trailer", "full movie", "official teaser",
}

// Rules holds the structural exclusions and diversity caps of the collector.
type Rules struct {
	ExcludeLive     bool
	ShortMaxSeconds int
	MaxShortsRatio  float64
	MaxPerChannel   int
	MaxCandidates   int
	MusicCategories []string
	MovieCategories []string
	MusicMarkers    []string
	MovieMarkers    []string
}

// DefaultRules returns the production collector rules.
func DefaultRules() Rules {
	return Rules{
		ExcludeLive:     true,
		ShortMaxSeconds: 60,
		MaxShortsRatio:  0.2,
		MaxPerChannel:   3,
		MaxCandidates:   500,
		MusicCategories: []string{"10"},
		MovieCategories: []string{"30", "44"},
		MusicMarkers:    DefaultMusicMarkers,
		MovieMarkers:    DefaultMovieMarkers,
	}
}

// Exclude returns the structural reason v can never be listed, or "" when
// the video is eligible.
func (r Rules) Exclude(v Video) Exclusion {
	title := strings.ToLower(v.Title)
	channel := strings.ToLower(strings.TrimSpace(v.ChannelTitle))

	switch {
	case r.ExcludeLive && v.IsLive():
		return ExcludeLive
	case strings.HasSuffix(channel, "- topic") || channel == "topic":
		return ExcludeTopic
	case strings.HasSuffix(channel, "vevo"):
		return ExcludeMusic
	case contains(r.MusicCategories, v.CategoryID) && containsAny(title, r.MusicMarkers):
		return ExcludeMusic
	case contains(r.MovieCategories, v.CategoryID) || containsAny(title, r.MovieMarkers):
		return ExcludeMovie
	case v.Views <= 0:
		return ExcludeNoViews
	}
	return ""
}

// Cap orders videos by views and applies the per-channel, shorts and overall
// limits. Long videos claim channel slots before shorts, and only videos that
// are kept count toward a quota. Dropped videos are counted by reason.
func (r Rules) Cap(videos []Video) ([]Video, map[Exclusion]int) {
	dropped := make(map[Exclusion]int)
	sorted := make([]Video, len(videos))
	copy(sorted, videos)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Views > sorted[j].Views })

	var longs, shorts []Video
	for _, v := range sorted {
		if v.IsShort(r.ShortMaxSeconds) {
			shorts = append(shorts, v)
		} else {
			longs = append(longs, v)
		}
	}

	perChannel := make(map[string]int)
	full := func(v Video) bool {
		return r.MaxPerChannel > 0 && perChannel[v.ChannelID] >= r.MaxPerChannel
	}

	keptLong := make([]Video, 0, len(longs))
	for _, v := range longs {
		if full(v) {
			dropped[ExcludeChannelCap]++
			continue
		}
		perChannel[v.ChannelID]++
		keptLong = append(keptLong, v)
	}

	budget := r.shortsAllowed(len(keptLong))
	if r.MaxCandidates > 0 && len(keptLong) > r.MaxCandidates {
		budget = r.shortsAllowed(r.MaxCandidates)
	}
	keptShort := make([]Video, 0, min(budget, len(shorts)))
	for _, v := range shorts {
		switch {
		case full(v):
			dropped[ExcludeChannelCap]++
		case len(keptShort) >= budget:
			dropped[ExcludeShortsCap]++
		default:
			perChannel[v.ChannelID]++
			keptShort = append(keptShort, v)
		}
	}

	nLong, nShort := len(keptLong), len(keptShort)
	if limit := r.MaxCandidates; limit > 0 {
		if nShort > limit {
			dropped[ExcludeOverflow] += nShort - limit
			nShort = limit
		}
		if nLong+nShort > limit {
			nLong = limit - nShort
			if allowed := r.shortsAllowed(nLong); nShort > allowed {
				dropped[ExcludeShortsCap] += nShort - allowed
				nShort = allowed
			}
		}
		nLong = min(len(keptLong), limit-nShort)
	}
	if n := len(keptLong) - nLong; n > 0 {
		dropped[ExcludeOverflow] += n
	}

	out := make([]Video, 0, nLong+nShort)
	out = append(out, keptLong[:nLong]...)
	out = append(out, keptShort[:nShort]...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Views > out[j].Views })
	return out, dropped
}

// shortsAllowed returns the largest shorts count s for which
// s / (long + s) stays within MaxShortsRatio.
func (r Rules) shortsAllowed(long int) int {
	switch {
	case r.MaxShortsRatio >= 1:
		return math.MaxInt
	case r.MaxShortsRatio <= 0:
		return 0
	}
	return int(math.Floor(r.MaxShortsRatio*float64(long)/(1-r.MaxShortsRatio) + 1e-9))
}

func contains(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}

func containsAny(lower string, markers []string) bool {
	for _, m := range markers {
		if strings.Contains(lower, strings.ToLower(m)) {
			return true
		}
	}
	return false
}
