package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/elonfeng/hotlist/pkg/score"
	"github.com/elonfeng/hotlist/pkg/source"
)

// Config is the root configuration.
type Config struct {
	Environment string            `yaml:"environment"`
	Log         LogConfig         `yaml:"log"`
	Database    DatabaseConfig    `yaml:"database"`
	YouTube     YouTubeConfig     `yaml:"youtube"`
	Collector   CollectorConfig   `yaml:"collector"`
	Scoring     ScoringConfig     `yaml:"scoring"`
	Snapshot    SnapshotConfig    `yaml:"snapshot"`
	Schedule    ScheduleConfig    `yaml:"schedule"`
	Server      ServerConfig      `yaml:"server"`
	Alerts      AlertsConfig      `yaml:"alerts"`
	Categories  map[string]string `yaml:"categories"`
}

// LogConfig configures the zerolog output.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // "json" or "console"
}

// DatabaseConfig selects the storage backend. An empty DSN disables storage.
type DatabaseConfig struct {
	Driver string `yaml:"driver"` // "sqlite" or "postgres"
	DSN    string `yaml:"dsn"`
}

// YouTubeConfig configures the platform client and discovery strategies.
type YouTubeConfig struct {
	APIKey         string   `yaml:"api_key"`
	Endpoint       string   `yaml:"endpoint"`
	Region         string   `yaml:"region"`
	Language       string   `yaml:"language"`
	TrendingPages  int      `yaml:"trending_pages"`
	SearchTerms    []string `yaml:"search_terms"`
	SearchWindow   string   `yaml:"search_window"`
	SeedCount      int      `yaml:"seed_count"`
	RelatedPerSeed int      `yaml:"related_per_seed"`
	FeedBaseURL    string   `yaml:"feed_base_url"`
	FeedExpansion  bool     `yaml:"feed_expansion"`
	BatchSize      int      `yaml:"batch_size"`
	Concurrency    int      `yaml:"concurrency"`
}

// ParseSearchWindow returns the search window as time.Duration.
func (y YouTubeConfig) ParseSearchWindow() time.Duration {
	d, err := time.ParseDuration(y.SearchWindow)
	if err != nil || d <= 0 {
		return 7 * 24 * time.Hour
	}
	return d
}

// CollectorConfig configures structural exclusions and diversity caps.
type CollectorConfig struct {
	ShortMaxSeconds int      `yaml:"short_max_seconds"`
	MaxShortsRatio  float64  `yaml:"max_shorts_ratio"`
	MaxPerChannel   int      `yaml:"max_per_channel"`
	MaxCandidates   int      `yaml:"max_candidates"`
	MusicCategories []string `yaml:"music_categories"`
	MovieCategories []string `yaml:"movie_categories"`
	MusicMarkers    []string `yaml:"music_markers"`
	MovieMarkers    []string `yaml:"movie_markers"`
}

// Rules converts the section into collector rules.
func (c CollectorConfig) Rules() source.Rules {
	return source.Rules{
		ShortMaxSeconds: c.ShortMaxSeconds,
		MaxShortsRatio:  c.MaxShortsRatio,
		MaxPerChannel:   c.MaxPerChannel,
		MaxCandidates:   c.MaxCandidates,
		MusicCategories: c.MusicCategories,
		MovieCategories: c.MovieCategories,
		MusicMarkers:    c.MusicMarkers,
		MovieMarkers:    c.MovieMarkers,
	}
}

// CollectorRules returns the collector rules with the live-exclusion flag
// taken from the scoring thresholds.
func (c *Config) CollectorRules() source.Rules {
	rules := c.Collector.Rules()
	rules.ExcludeLive = c.Scoring.Thresholds.ExcludeLive
	return rules
}

// ScoringConfig holds the metric weights and the list thresholds.
type ScoringConfig struct {
	Weights    score.Weights    `yaml:"weights"`
	Thresholds score.Thresholds `yaml:"thresholds"`
}

// SnapshotConfig configures snapshot retention.
type SnapshotConfig struct {
	RetentionDays int `yaml:"retention_days"`
}

// ScheduleConfig configures the daily run.
type ScheduleConfig struct {
	RunAt      string `yaml:"run_at"` // HH:MM
	Timezone   string `yaml:"timezone"`
	Timeout    string `yaml:"timeout"`
	RunOnStart bool   `yaml:"run_on_start"`
}

// ParseRunAt returns the configured hour and minute, falling back to 06:00.
func (s ScheduleConfig) ParseRunAt() (hour, minute int) {
	t, err := time.Parse("15:04", s.RunAt)
	if err != nil {
		return 6, 0
	}
	return t.Hour(), t.Minute()
}

// ParseTimeout returns the run timeout as time.Duration.
func (s ScheduleConfig) ParseTimeout() time.Duration {
	d, err := time.ParseDuration(s.Timeout)
	if err != nil || d <= 0 {
		return 25 * time.Minute
	}
	return d
}

// Location returns the scheduler time zone, falling back to UTC.
func (s ScheduleConfig) Location() *time.Location {
	if s.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(s.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port       int    `yaml:"port"`
	CronSecret string `yaml:"cron_secret"`
}

// AlertsConfig configures run-digest destinations.
type AlertsConfig struct {
	TopN    int           `yaml:"top_n"`
	Slack   SlackConfig   `yaml:"slack"`
	Discord DiscordConfig `yaml:"discord"`
	Webhook WebhookConfig `yaml:"webhook"`
}

// SlackConfig for Slack webhook alerts.
type SlackConfig struct {
	Enabled    bool   `yaml:"enabled"`
	WebhookURL string `yaml:"webhook_url"`
}

// DiscordConfig for Discord webhook alerts.
type DiscordConfig struct {
	Enabled    bool   `yaml:"enabled"`
	WebhookURL string `yaml:"webhook_url"`
}

// WebhookConfig for generic webhook alerts.
type WebhookConfig struct {
	Enabled bool   `yaml:"enabled"`
	URL     string `yaml:"url"`
	Secret  string `yaml:"secret"`
}

// DefaultCategories maps platform category codes to display labels.
func DefaultCategories() map[string]string {
	return map[string]string{
		"1":  "Film & Animation",
		"2":  "Autos & Vehicles",
		"10": "Music",
		"15": "Pets & Animals",
		"17": "Sports",
		"19": "Travel & Events",
		"20": "Gaming",
		"22": "People & Blogs",
		"23": "Comedy",
		"24": "Entertainment",
		"25": "News & Politics",
		"26": "Howto & Style",
		"27": "Education",
		"28": "Science & Technology",
		"29": "Nonprofits & Activism",
	}
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	rules := source.DefaultRules()
	return &Config{
		Environment: "production",
		Log:         LogConfig{Level: "info", Format: "json"},
		Database:    DatabaseConfig{Driver: "sqlite", DSN: "./hotlist.db"},
		YouTube: YouTubeConfig{
			Region:        "US",
			Language:      "en",
			TrendingPages: 4,
			SearchTerms: []string{
				"i built", "i tried", "challenge", "experiment", "documentary",
				"day in the life", "vs", "tested", "review", "story time",
			},
			SearchWindow:   "168h",
			SeedCount:      20,
			RelatedPerSeed: 10,
			FeedBaseURL:    source.DefaultFeedBaseURL,
			FeedExpansion:  true,
			BatchSize:      source.MaxBatch,
			Concurrency:    4,
		},
		Collector: CollectorConfig{
			ShortMaxSeconds: rules.ShortMaxSeconds,
			MaxShortsRatio:  rules.MaxShortsRatio,
			MaxPerChannel:   rules.MaxPerChannel,
			MaxCandidates:   rules.MaxCandidates,
			MusicCategories: rules.MusicCategories,
			MovieCategories: rules.MovieCategories,
			MusicMarkers:    rules.MusicMarkers,
			MovieMarkers:    rules.MovieMarkers,
		},
		Scoring: ScoringConfig{
			Weights:    score.DefaultWeights(),
			Thresholds: score.DefaultThresholds(),
		},
		Snapshot: SnapshotConfig{RetentionDays: 90},
		Schedule: ScheduleConfig{
			RunAt:    "06:00",
			Timezone: "UTC",
			Timeout:  "25m",
		},
		Server:     ServerConfig{Port: 8080},
		Alerts:     AlertsConfig{TopN: 10},
		Categories: DefaultCategories(),
	}
}

// Load reads configuration from a YAML file and applies env var overrides.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	applyEnvOverrides(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects settings the pipeline cannot run with.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("database.driver %q: must be sqlite or postgres", c.Database.Driver)
	}
	if c.Scoring.Thresholds.CooldownDays < 0 {
		return fmt.Errorf("scoring.thresholds.cooldown_days must not be negative")
	}
	if r := c.Collector.MaxShortsRatio; r < 0 || r > 1 {
		return fmt.Errorf("collector.max_shorts_ratio %v: must be within [0, 1]", r)
	}
	if c.Snapshot.RetentionDays <= 0 {
		return fmt.Errorf("snapshot.retention_days must be positive")
	}
	return nil
}

// IsLocal reports whether the environment skips trigger authentication.
func (c *Config) IsLocal() bool {
	switch strings.ToLower(c.Environment) {
	case "local", "dev", "development", "test":
		return true
	}
	return false
}

// applyEnvOverrides overrides config values with environment variables.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("HOTLIST_ENV"); v != "" {
		cfg.Environment = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("HOTLIST_DB_DRIVER"); v != "" {
		cfg.Database.Driver = v
	}
	if v, ok := os.LookupEnv("HOTLIST_DB_DSN"); ok {
		cfg.Database.DSN = v
	}
	if v := os.Getenv("YOUTUBE_API_KEY"); v != "" {
		cfg.YouTube.APIKey = v
	}
	if v := os.Getenv("CRON_SECRET"); v != "" {
		cfg.Server.CronSecret = v
	}
	if v := os.Getenv("SLACK_WEBHOOK_URL"); v != "" {
		cfg.Alerts.Slack.WebhookURL = v
		cfg.Alerts.Slack.Enabled = true
	}
	if v := os.Getenv("DISCORD_WEBHOOK_URL"); v != "" {
		cfg.Alerts.Discord.WebhookURL = v
		cfg.Alerts.Discord.Enabled = true
	}
	if v := os.Getenv("HOTLIST_WEBHOOK_URL"); v != "" {
		cfg.Alerts.Webhook.URL = v
		cfg.Alerts.Webhook.Enabled = true
	}
	if v := os.Getenv("HOTLIST_WEBHOOK_SECRET"); v != "" {
		cfg.Alerts.Webhook.Secret = v
	}
}
