// Package config loads and validates crawler configuration via Viper.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/JakeFAU/jobkb-crawler/internal/crawler"
)

// Fetch modes accepted by fetch.mode.
const (
	FetchModeAuto   = "auto"
	FetchModeStatic = crawler.ModeStatic
	FetchModeScroll = crawler.ModeScroll
)

// Storage backends accepted by storage.backend.
const (
	StorageNone   = "none"
	StorageLocal  = "local"
	StorageGCS    = "gcs"
	StorageMemory = "memory"
)

// Config captures all configuration knobs loaded via Viper.
type Config struct {
	Categories []crawler.Category `mapstructure:"categories" validate:"required,min=1,dive"`
	Crawler    CrawlerConfig      `mapstructure:"crawler"`
	Fetch      FetchConfig        `mapstructure:"fetch"`
	Headless   HeadlessConfig     `mapstructure:"headless"`
	Output     OutputConfig       `mapstructure:"output"`
	Storage    StorageConfig      `mapstructure:"storage"`
	DB         DBConfig           `mapstructure:"db"`
	PubSub     PubSubConfig       `mapstructure:"pubsub"`
	Server     ServerConfig       `mapstructure:"server"`
	Search     SearchConfig       `mapstructure:"search"`
	Logging    LoggingConfig      `mapstructure:"logging"`
}

// CrawlerConfig governs the category pipeline.
type CrawlerConfig struct {
	DefaultCategory   string  `mapstructure:"default_category" validate:"required,category"`
	Concurrency       int     `mapstructure:"concurrency" validate:"gte=1"`
	UserAgent         string  `mapstructure:"user_agent" validate:"required"`
	RequestsPerSecond float64 `mapstructure:"requests_per_second" validate:"gte=0"`
	RespectRobots     bool    `mapstructure:"respect_robots"`
}

// FetchConfig selects and tunes the page fetcher.
type FetchConfig struct {
	Mode           string `mapstructure:"mode" validate:"oneof=auto static scroll"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds" validate:"gte=1"`
	CardSelector   string `mapstructure:"card_selector" validate:"required"`
}

// HeadlessConfig tunes the scrolling browser fetcher.
type HeadlessConfig struct {
	ExecPath           string `mapstructure:"exec_path"`
	SettleSeconds      int    `mapstructure:"settle_seconds" validate:"gte=1"`
	MaxScrollAttempts  int    `mapstructure:"max_scroll_attempts" validate:"gte=1"`
	InitialWaitSeconds int    `mapstructure:"initial_wait_seconds" validate:"gte=0"`
	NavTimeoutSeconds  int    `mapstructure:"nav_timeout_seconds" validate:"gte=1"`
}

// OutputConfig locates the exports and the knowledge base artifact.
type OutputConfig struct {
	Dir           string `mapstructure:"dir" validate:"required"`
	KnowledgeBase string `mapstructure:"knowledge_base" validate:"required"`
}

// StorageConfig selects where the committed artifact is mirrored.
type StorageConfig struct {
	Backend   string `mapstructure:"backend" validate:"oneof=none local gcs memory"`
	GCSBucket string `mapstructure:"gcs_bucket"`
	LocalDir  string `mapstructure:"local_dir"`
	Prefix    string `mapstructure:"prefix"`
}

// DBConfig controls the optional Postgres record store.
type DBConfig struct {
	DSN      string `mapstructure:"dsn"`
	Table    string `mapstructure:"table"`
	MaxConns int32  `mapstructure:"max_conns" validate:"gte=0"`
}

// PubSubConfig holds refresh notification settings.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// ServerConfig controls the read API.
type ServerConfig struct {
	Port int `mapstructure:"port" validate:"gte=1,lte=65535"`
}

// SearchConfig bounds read results.
type SearchConfig struct {
	Limit int `mapstructure:"limit" validate:"gte=1"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// DefaultCategories are the graduate listings crawled when none are configured.
func DefaultCategories() []crawler.Category {
	return []crawler.Category{
		{Name: "engineering", URL: "https://jobyaari.com/category/engineering?type=graduate"},
		{Name: "science", URL: "https://jobyaari.com/category/science?type=graduate"},
		{Name: "commerce", URL: "https://jobyaari.com/category/commerce?type=graduate"},
		{Name: "education", URL: "https://jobyaari.com/category/education?type=graduate"},
	}
}

// Load builds a Config from an optional .env file, the config file at path,
// and JOBKB_* environment variables, in increasing precedence.
func Load(path string) (Config, error) {
	// A missing .env is the normal case outside local development.
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("JOBKB")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	if len(cfg.Categories) == 0 {
		cfg.Categories = DefaultCategories()
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("crawler.default_category", "engineering")
	v.SetDefault("crawler.concurrency", 1)
	v.SetDefault("crawler.user_agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36")
	v.SetDefault("crawler.requests_per_second", 0)
	v.SetDefault("crawler.respect_robots", false)
	v.SetDefault("fetch.mode", FetchModeAuto)
	v.SetDefault("fetch.timeout_seconds", 10)
	v.SetDefault("fetch.card_selector", "div.drop__card")
	v.SetDefault("headless.settle_seconds", 5)
	v.SetDefault("headless.max_scroll_attempts", 10)
	v.SetDefault("headless.initial_wait_seconds", 5)
	v.SetDefault("headless.nav_timeout_seconds", 180)
	v.SetDefault("output.dir", "extracted_data")
	v.SetDefault("output.knowledge_base", "training_data/knowledge_base.json")
	v.SetDefault("storage.backend", StorageNone)
	v.SetDefault("storage.prefix", "knowledge")
	v.SetDefault("db.table", "job_records")
	v.SetDefault("server.port", 8080)
	v.SetDefault("search.limit", 15)
	v.SetDefault("logging.development", true)
}

// Validate enforces struct tags and cross-field rules.
func (c Config) Validate() error {
	if err := newValidator().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	seen := make(map[string]struct{}, len(c.Categories))
	for _, cat := range c.Categories {
		if _, dup := seen[cat.Name]; dup {
			return fmt.Errorf("category %q is configured twice", cat.Name)
		}
		seen[cat.Name] = struct{}{}
	}
	switch c.Storage.Backend {
	case StorageGCS:
		if c.Storage.GCSBucket == "" {
			return errors.New("storage.gcs_bucket must be set when storage.backend is gcs")
		}
	case StorageLocal:
		if c.Storage.LocalDir == "" {
			return errors.New("storage.local_dir must be set when storage.backend is local")
		}
	}
	if c.PubSub.TopicName != "" && c.PubSub.ProjectID == "" {
		return errors.New("pubsub.project_id must be set when pubsub.topic_name is set")
	}
	return nil
}

func newValidator() *validator.Validate {
	v := validator.New()
	// Category names become file names, so they are restricted to slugs.
	_ = v.RegisterValidation("category", func(fl validator.FieldLevel) bool {
		return crawler.ValidCategoryName(fl.Field().String())
	})
	return v
}

// FetchTimeout returns the static fetch timeout.
func (c Config) FetchTimeout() time.Duration {
	return time.Duration(c.Fetch.TimeoutSeconds) * time.Second
}

// SettleTime returns the wait after each scroll.
func (c Config) SettleTime() time.Duration {
	return time.Duration(c.Headless.SettleSeconds) * time.Second
}

// InitialWait returns the wait after navigation before the first scroll.
func (c Config) InitialWait() time.Duration {
	return time.Duration(c.Headless.InitialWaitSeconds) * time.Second
}

// NavigationTimeout bounds one browser fetch.
func (c Config) NavigationTimeout() time.Duration {
	return time.Duration(c.Headless.NavTimeoutSeconds) * time.Second
}
