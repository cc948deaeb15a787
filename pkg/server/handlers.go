package server

import (
	"context"
	"errors"
	"math"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/elonfeng/hotlist/internal/store"
	"github.com/elonfeng/hotlist/pkg/trend"
)

// handleTrigger runs the pipeline for ?date= (default today). The run is
// detached from the request so a dropped cron connection does not kill it.
func (s *Server) handleTrigger(c *gin.Context) {
	if s.store == nil || s.runner == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "storage is not configured"})
		return
	}

	day := c.Query("date")
	if day == "" {
		day = s.today()
	}
	if _, err := store.ParseDay(day); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "date must be YYYY-MM-DD"})
		return
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(c.Request.Context()), s.cfg.RunTimeout)
	defer cancel()

	sum, err := s.runner.Run(ctx, day)
	if err != nil {
		s.log.Error().Err(err).Str("day", day).Msg("triggered run failed")
		if sum == nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, sum)
		return
	}

	if s.cfg.RetentionDays > 0 {
		if _, err := s.runner.PurgeSnapshots(ctx, day, s.cfg.RetentionDays); err != nil {
			s.log.Warn().Err(err).Msg("snapshot purge failed")
		}
	}
	c.JSON(http.StatusOK, sum)
}

// handleList serves one page of a day's hot list. Bad parameters fall back
// to defaults.
func (s *Server) handleList(c *gin.Context) {
	day := c.Query("date")
	if _, err := store.ParseDay(day); err != nil {
		day = s.today()
	}

	q := store.ListQuery{
		Day:     day,
		Limit:   queryInt(c, "limit"),
		Offset:  queryInt(c, "offset"),
		Sort:    c.Query("sort"),
		MinSubs: int64(queryInt(c, "min_subs")),
		MaxSubs: int64(queryInt(c, "max_subs")),
		MinPerf: queryFloat(c, "min_perf"),
	}.Normalize()

	if s.store == nil {
		c.JSON(http.StatusOK, store.EmptyPage(day))
		return
	}

	page, err := s.store.ListHotItems(c.Request.Context(), q)
	if err != nil {
		s.log.Error().Err(err).Str("day", day).Msg("list query failed")
		c.JSON(http.StatusOK, store.EmptyPage(day))
		return
	}
	page.ApplyCategories(s.cfg.Categories)
	c.JSON(http.StatusOK, page)
}

func (s *Server) handleDates(c *gin.Context) {
	limit := max(queryInt(c, "limit"), 0)
	days := []store.DayCount{}
	if s.store != nil {
		got, err := s.store.Days(c.Request.Context(), limit)
		if err != nil {
			s.log.Error().Err(err).Msg("dates query failed")
		} else {
			days = got
		}
	}
	c.JSON(http.StatusOK, gin.H{"dates": days, "count": len(days)})
}

type trendsResponse struct {
	Available bool   `json:"available"`
	Message   string `json:"message,omitempty"`
	*trend.Report
}

func (s *Server) handleTrends(c *gin.Context) {
	if s.store == nil {
		c.JSON(http.StatusOK, trendsResponse{Message: "storage is not configured"})
		return
	}

	report, err := s.store.Trends(c.Request.Context())
	switch {
	case errors.Is(err, trend.ErrNotEnoughData):
		c.JSON(http.StatusOK, trendsResponse{Message: "at least two ranked days are needed"})
	case err != nil:
		s.log.Error().Err(err).Msg("trends query failed")
		c.JSON(http.StatusOK, trendsResponse{Message: "trends are temporarily unavailable"})
	default:
		c.JSON(http.StatusOK, trendsResponse{Available: true, Report: &report})
	}
}

func (s *Server) handleRuns(c *gin.Context) {
	runs := []store.Run{}
	if s.store != nil {
		got, err := s.store.ListRuns(c.Request.Context(), min(queryInt(c, "limit"), 200))
		if err != nil {
			s.log.Error().Err(err).Msg("runs query failed")
		} else {
			runs = got
		}
	}
	c.JSON(http.StatusOK, gin.H{"runs": runs, "count": len(runs)})
}

func queryInt(c *gin.Context, key string) int {
	n, err := strconv.Atoi(c.Query(key))
	if err != nil {
		return 0
	}
	return n
}

func queryFloat(c *gin.Context, key string) float64 {
	f, err := strconv.ParseFloat(c.Query(key), 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	return f
}
