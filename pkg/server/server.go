package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/elonfeng/hotlist/internal/pipeline"
	"github.com/elonfeng/hotlist/internal/store"
	"github.com/elonfeng/hotlist/internal/telemetry"
)

// Runner is the pipeline behind the trigger endpoint.
type Runner interface {
	Run(ctx context.Context, day string) (*pipeline.Summary, error)
	PurgeSnapshots(ctx context.Context, day string, retentionDays int) (int64, error)
}

// Config configures the HTTP API.
type Config struct {
	Port          int
	CronSecret    string
	SkipAuth      bool
	Categories    map[string]string
	Location      *time.Location
	RunTimeout    time.Duration
	RetentionDays int
}

// Server provides the HTTP API. A nil store or runner degrades the
// corresponding endpoints instead of failing them.
type Server struct {
	store   store.Store
	runner  Runner
	metrics *telemetry.Metrics
	cfg     Config
	log     zerolog.Logger
	now     func() time.Time
	engine  *gin.Engine
}

// New creates a new HTTP server.
func New(st store.Store, runner Runner, metrics *telemetry.Metrics, cfg Config, log zerolog.Logger) *Server {
	if cfg.Port == 0 {
		cfg.Port = 8080
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.RunTimeout <= 0 {
		cfg.RunTimeout = 25 * time.Minute
	}
	s := &Server{
		store:   st,
		runner:  runner,
		metrics: metrics,
		cfg:     cfg,
		log:     log.With().Str("component", "server").Logger(),
		now:     time.Now,
	}
	s.engine = s.routes()
	return s
}

func (s *Server) routes() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(requestLogger(s.log, s.metrics))

	r.GET("/health", s.handleHealth)
	r.GET("/metrics", gin.WrapH(s.metrics.Handler()))

	v1 := r.Group("/api/v1")
	{
		cron := v1.Group("/cron")
		cron.Use(bearerAuth(s.cfg.CronSecret, s.cfg.SkipAuth))
		{
			cron.POST("/hotlist", s.handleTrigger)
			cron.GET("/hotlist", s.handleTrigger)
		}

		hot := v1.Group("/hotlist")
		{
			hot.GET("", s.handleList)
			hot.GET("/dates", s.handleDates)
			hot.GET("/trends", s.handleTrends)
			hot.GET("/runs", s.handleRuns)
		}
	}
	return r
}

// Handler returns the HTTP handler, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.cfg.Port),
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info().Str("addr", srv.Addr).Msg("listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	s.log.Info().Msg("shutting down")
	return srv.Shutdown(shutdownCtx)
}

func (s *Server) today() string {
	return store.FormatDay(s.now().In(s.cfg.Location))
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"storage": s.store != nil,
	})
}
