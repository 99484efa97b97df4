// Package config loads and validates service configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Scraper  ScraperConfig  `mapstructure:"scraper"`
	Browser  BrowserConfig  `mapstructure:"browser"`
	Feed     FeedConfig     `mapstructure:"feed"`
	Snapshot SnapshotConfig `mapstructure:"snapshot"`
	Notify   NotifyConfig   `mapstructure:"notify"`
	Archive  ArchiveConfig  `mapstructure:"archive"`
	Catalog  CatalogConfig  `mapstructure:"catalog"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Searches []SearchConfig `mapstructure:"searches"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port           int `mapstructure:"port"`
	TimeoutSeconds int `mapstructure:"timeout_seconds"`
	// SyncIntervalMinutes re-runs every search on a timer while serving.
	// Zero disables the ticker.
	SyncIntervalMinutes int `mapstructure:"sync_interval_minutes"`
}

// AuthConfig defines API authentication toggles.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// ScraperConfig governs the fetch scheduler.
type ScraperConfig struct {
	Concurrency int `mapstructure:"concurrency"`
	MaxRetries  int `mapstructure:"max_retries"`
	// SaveEvery persists the interim snapshot after this many merged
	// results. Zero disables interim saves.
	SaveEvery int `mapstructure:"save_every"`
}

// BrowserConfig configures the headless browsing session.
type BrowserConfig struct {
	Headful           bool    `mapstructure:"headful"`
	UserAgent         string  `mapstructure:"user_agent"`
	NavTimeoutSeconds int     `mapstructure:"nav_timeout_seconds"`
	BlockResources    bool    `mapstructure:"block_resources"`
	QPS               float64 `mapstructure:"qps"`
}

// FeedConfig controls feed enumeration.
type FeedConfig struct {
	MaxPages       int `mapstructure:"max_pages"`
	TimeoutSeconds int `mapstructure:"timeout_seconds"`
}

// SnapshotConfig selects and configures the snapshot store.
type SnapshotConfig struct {
	// Provider is "file" or "postgres".
	Provider string         `mapstructure:"provider"`
	Dir      string         `mapstructure:"dir"`
	Postgres PostgresConfig `mapstructure:"postgres"`
}

// PostgresConfig controls access to the relational snapshot store.
type PostgresConfig struct {
	DSN                string `mapstructure:"dsn"`
	EntriesTable       string `mapstructure:"entries_table"`
	RunsTable          string `mapstructure:"runs_table"`
	MaxConns           int32  `mapstructure:"max_conns"`
	MinConns           int32  `mapstructure:"min_conns"`
	ConnLifetimeMinute int    `mapstructure:"conn_lifetime_minutes"`
}

// NotifyConfig holds metadata for publish-subscribe notifications.
type NotifyConfig struct {
	// Provider is "none" or "pubsub".
	Provider  string `mapstructure:"provider"`
	ProjectID string `mapstructure:"project_id"`
	Topic     string `mapstructure:"topic"`
}

// ArchiveConfig controls per-run snapshot archival. Archives go to the GCS
// bucket when one is configured, otherwise to a local directory.
type ArchiveConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	GCSBucket string `mapstructure:"gcs_bucket"`
	Dir       string `mapstructure:"dir"`
	Prefix    string `mapstructure:"prefix"`
}

// CatalogConfig points at the manufacturer/model mapping file.
type CatalogConfig struct {
	MappingFile string `mapstructure:"mapping_file"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// SearchConfig describes one tracked search.
type SearchConfig struct {
	Name             string   `mapstructure:"name"`
	URL              string   `mapstructure:"url"`
	TitleMustContain []string `mapstructure:"title_must_contain"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("LISTWATCH")
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

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.timeout_seconds", 60)
	v.SetDefault("scraper.concurrency", 5)
	v.SetDefault("scraper.max_retries", 3)
	v.SetDefault("scraper.save_every", 10)
	v.SetDefault("browser.headful", false)
	v.SetDefault("browser.nav_timeout_seconds", 60)
	v.SetDefault("browser.block_resources", true)
	v.SetDefault("browser.qps", 0)
	v.SetDefault("feed.max_pages", 10)
	v.SetDefault("feed.timeout_seconds", 15)
	v.SetDefault("snapshot.provider", "file")
	v.SetDefault("snapshot.dir", "data/snapshots")
	v.SetDefault("snapshot.postgres.entries_table", "snapshot_entries")
	v.SetDefault("snapshot.postgres.runs_table", "runs")
	v.SetDefault("notify.provider", "none")
	v.SetDefault("archive.prefix", "snapshots")
	v.SetDefault("catalog.mapping_file", "yad2_mapping.json")
	v.SetDefault("logging.development", true)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Scraper.Concurrency <= 0 {
		return fmt.Errorf("scraper.concurrency must be > 0")
	}
	if c.Scraper.MaxRetries < 0 {
		return fmt.Errorf("scraper.max_retries must be >= 0")
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key must be set when auth is enabled")
	}

	switch c.Snapshot.Provider {
	case "file":
		if c.Snapshot.Dir == "" {
			return fmt.Errorf("snapshot.dir must be set for the file provider")
		}
	case "postgres":
		if c.Snapshot.Postgres.DSN == "" {
			return fmt.Errorf("snapshot.postgres.dsn must be set for the postgres provider")
		}
	default:
		return fmt.Errorf("snapshot.provider must be file or postgres, got %q", c.Snapshot.Provider)
	}

	switch c.Notify.Provider {
	case "", "none":
	case "pubsub":
		if c.Notify.ProjectID == "" || c.Notify.Topic == "" {
			return fmt.Errorf("notify.project_id and notify.topic must be set for the pubsub provider")
		}
	default:
		return fmt.Errorf("notify.provider must be none or pubsub, got %q", c.Notify.Provider)
	}

	if c.Archive.Enabled && c.Archive.GCSBucket == "" && c.Archive.Dir == "" {
		return fmt.Errorf("archive.gcs_bucket or archive.dir must be set when archive is enabled")
	}

	names := make(map[string]struct{}, len(c.Searches))
	for i, s := range c.Searches {
		if s.Name == "" {
			return fmt.Errorf("searches[%d].name must be set", i)
		}
		if s.URL == "" {
			return fmt.Errorf("searches[%d].url must be set", i)
		}
		if _, dup := names[s.Name]; dup {
			return fmt.Errorf("duplicate search name %q", s.Name)
		}
		names[s.Name] = struct{}{}
	}
	return nil
}

// Search returns the named search.
func (c Config) Search(name string) (SearchConfig, bool) {
	for _, s := range c.Searches {
		if s.Name == name {
			return s, true
		}
	}
	return SearchConfig{}, false
}

// NavTimeout converts the browser navigation timeout to a duration.
func (c Config) NavTimeout() time.Duration {
	return time.Duration(c.Browser.NavTimeoutSeconds) * time.Second
}

// FeedTimeout converts the feed request timeout to a duration.
func (c Config) FeedTimeout() time.Duration {
	return time.Duration(c.Feed.TimeoutSeconds) * time.Second
}

// SyncInterval converts the periodic re-sync interval to a duration.
func (c Config) SyncInterval() time.Duration {
	return time.Duration(c.Server.SyncIntervalMinutes) * time.Minute
}

// ServerTimeout converts the HTTP handler timeout to a duration.
func (c Config) ServerTimeout() time.Duration {
	return time.Duration(c.Server.TimeoutSeconds) * time.Second
}
