package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/jobkb-crawler/internal/crawler"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, DefaultCategories(), cfg.Categories)
	assert.Equal(t, "engineering", cfg.Crawler.DefaultCategory)
	assert.Equal(t, 1, cfg.Crawler.Concurrency)
	assert.Equal(t, FetchModeAuto, cfg.Fetch.Mode)
	assert.Equal(t, 10*time.Second, cfg.FetchTimeout())
	assert.Equal(t, 5*time.Second, cfg.SettleTime())
	assert.Equal(t, 5*time.Second, cfg.InitialWait())
	assert.Equal(t, 3*time.Minute, cfg.NavigationTimeout())
	assert.Equal(t, 10, cfg.Headless.MaxScrollAttempts)
	assert.Equal(t, "div.drop__card", cfg.Fetch.CardSelector)
	assert.Equal(t, "extracted_data", cfg.Output.Dir)
	assert.Equal(t, "training_data/knowledge_base.json", cfg.Output.KnowledgeBase)
	assert.Equal(t, StorageNone, cfg.Storage.Backend)
	assert.Equal(t, 15, cfg.Search.Limit)
	assert.True(t, cfg.Logging.Development)
}

func TestLoadWithFileOverrides(t *testing.T) {
	path := writeConfig(t, `
categories:
  - name: science
    url: https://jobs.test/science
  - name: law
    url: https://jobs.test/law
crawler:
  default_category: law
  concurrency: 2
  requests_per_second: 0.5
fetch:
  mode: static
  timeout_seconds: 3
headless:
  max_scroll_attempts: 4
storage:
  backend: gcs
  gcs_bucket: jobkb-artifacts
pubsub:
  project_id: jobkb
  topic_name: kb-refreshed
logging:
  development: false
  level: warn
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, []crawler.Category{
		{Name: "science", URL: "https://jobs.test/science"},
		{Name: "law", URL: "https://jobs.test/law"},
	}, cfg.Categories)
	assert.Equal(t, "law", cfg.Crawler.DefaultCategory)
	assert.Equal(t, 2, cfg.Crawler.Concurrency)
	assert.InDelta(t, 0.5, cfg.Crawler.RequestsPerSecond, 1e-9)
	assert.Equal(t, FetchModeStatic, cfg.Fetch.Mode)
	assert.Equal(t, 3*time.Second, cfg.FetchTimeout())
	assert.Equal(t, 4, cfg.Headless.MaxScrollAttempts)
	assert.Equal(t, "jobkb-artifacts", cfg.Storage.GCSBucket)
	assert.Equal(t, "kb-refreshed", cfg.PubSub.TopicName)
	assert.False(t, cfg.Logging.Development)
	assert.Equal(t, "warn", cfg.Logging.Level)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("JOBKB_SERVER_PORT", "9191")
	t.Setenv("JOBKB_FETCH_MODE", "scroll")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 9191, cfg.Server.Port)
	assert.Equal(t, FetchModeScroll, cfg.Fetch.Mode)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		cfg, err := Load("")
		require.NoError(t, err)
		return cfg
	}

	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"UnknownMode", func(c *Config) { c.Fetch.Mode = "turbo" }},
		{"ZeroConcurrency", func(c *Config) { c.Crawler.Concurrency = 0 }},
		{"BadCategoryURL", func(c *Config) { c.Categories[0].URL = "not a url" }},
		{"DuplicateCategory", func(c *Config) { c.Categories[1].Name = c.Categories[0].Name }},
		{"GCSWithoutBucket", func(c *Config) { c.Storage.Backend = StorageGCS }},
		{"LocalWithoutDir", func(c *Config) { c.Storage.Backend = StorageLocal }},
		{"TopicWithoutProject", func(c *Config) { c.PubSub.TopicName = "kb-refreshed" }},
		{"NoScrollAttempts", func(c *Config) { c.Headless.MaxScrollAttempts = 0 }},
		{"ZeroSettle", func(c *Config) { c.Headless.SettleSeconds = 0 }},
		{"CategoryPathTraversal", func(c *Config) { c.Categories[0].Name = "../escaped" }},
		{"CategoryWithSlash", func(c *Config) { c.Categories[0].Name = "eng/civil" }},
		{"DefaultCategoryNotSlug", func(c *Config) { c.Crawler.DefaultCategory = "../x" }},
		{"PortOutOfRange", func(c *Config) { c.Server.Port = 70000 }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := valid()
			tc.mutate(&cfg)
			require.Error(t, cfg.Validate())
		})
	}

	require.NoError(t, valid().Validate())
}
