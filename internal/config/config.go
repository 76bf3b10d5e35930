// Package config loads and validates pipeline configuration via Viper.
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	SCB        SCBConfig        `mapstructure:"scb"`
	JobAds     JobAdsConfig     `mapstructure:"jobads"`
	Taxonomy   TaxonomyConfig   `mapstructure:"taxonomy"`
	Enrichment EnrichmentConfig `mapstructure:"enrichment"`
	HTTP       HTTPConfig       `mapstructure:"http"`
	Pipeline   PipelineConfig   `mapstructure:"pipeline"`
	Storage    StorageConfig    `mapstructure:"storage"`
	DB         DBConfig         `mapstructure:"db"`
	PubSub     PubSubConfig     `mapstructure:"pubsub"`
	Logging    LoggingConfig    `mapstructure:"logging"`
}

// ServerConfig controls the admin HTTP server.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// SCBConfig points at the statistics cube API.
type SCBConfig struct {
	BaseURL            string   `mapstructure:"base_url"`
	Table              string   `mapstructure:"table"`
	DispersionTable    string   `mapstructure:"dispersion_table"`
	MaxCells           int      `mapstructure:"max_cells"`
	RPS                float64  `mapstructure:"rps"`
	Burst              int      `mapstructure:"burst"`
	Occupations        []string `mapstructure:"occupations"`
	Regions            []string `mapstructure:"regions"`
	Genders            []string `mapstructure:"genders"`
	Sectors            []string `mapstructure:"sectors"`
	Measures           []string `mapstructure:"measures"`
	DispersionMeasures []string `mapstructure:"dispersion_measures"`
	Years              []string `mapstructure:"years"`
}

// JobAdsConfig points at the employment service ad APIs.
type JobAdsConfig struct {
	HistoricalURL string `mapstructure:"historical_url"`
	StreamURL     string `mapstructure:"stream_url"`
	PageSize      int    `mapstructure:"page_size"`
	MaxPages      int    `mapstructure:"max_pages"`
	LookbackDays  int    `mapstructure:"lookback_days"`
}

// TaxonomyConfig points at the classification reference API.
type TaxonomyConfig struct {
	BaseURL string `mapstructure:"base_url"`
}

// EnrichmentConfig controls the skill annotator.
type EnrichmentConfig struct {
	Enabled   bool    `mapstructure:"enabled"`
	BaseURL   string  `mapstructure:"base_url"`
	Threshold float64 `mapstructure:"threshold"`
	BatchSize int     `mapstructure:"batch_size"`
}

// HTTPConfig configures HTTP client timeout and retry behavior.
type HTTPConfig struct {
	TimeoutSeconds   int    `mapstructure:"timeout_seconds"`
	MaxRetries       int    `mapstructure:"max_retries"`
	BackoffInitialMs int    `mapstructure:"backoff_initial_ms"`
	BackoffMaxMs     int    `mapstructure:"backoff_max_ms"`
	UserAgent        string `mapstructure:"user_agent"`
}

// PipelineConfig governs run behavior.
type PipelineConfig struct {
	Parallelism            int  `mapstructure:"parallelism"`
	IncludeGenderAggregate bool `mapstructure:"include_gender_aggregate"`
}

// StorageConfig selects and parameterizes the raw payload archive.
type StorageConfig struct {
	// Backend is one of "gcs", "local", or "none".
	Backend   string `mapstructure:"backend"`
	GCSBucket string `mapstructure:"gcs_bucket"`
	LocalDir  string `mapstructure:"local_dir"`
}

// DBConfig controls access to the relational database.
type DBConfig struct {
	DSN        string `mapstructure:"dsn"`
	MaxConns   int    `mapstructure:"max_conns"`
	MinConns   int    `mapstructure:"min_conns"`
	FactTable  string `mapstructure:"fact_table"`
	AdTable    string `mapstructure:"ad_table"`
	SkillTable string `mapstructure:"skill_table"`
}

// PubSubConfig holds metadata for batch completion events.
type PubSubConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("LABOR_ETL")
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
	v.SetDefault("scb.max_cells", 150000)
	// The API allows 30 requests per rolling 10 seconds; stay under it.
	v.SetDefault("scb.rps", 2.5)
	v.SetDefault("scb.burst", 5)
	v.SetDefault("scb.genders", []string{"1", "2"})
	v.SetDefault("scb.sectors", []string{"0"})
	v.SetDefault("scb.dispersion_measures", []string{"000000NV", "000000O0", "000000O1", "000000O2"})
	v.SetDefault("jobads.page_size", 100)
	v.SetDefault("jobads.max_pages", 2000)
	v.SetDefault("jobads.lookback_days", 90)
	v.SetDefault("enrichment.enabled", true)
	v.SetDefault("enrichment.threshold", 0.7)
	v.SetDefault("enrichment.batch_size", 100)
	v.SetDefault("http.timeout_seconds", 60)
	v.SetDefault("http.max_retries", 5)
	v.SetDefault("http.backoff_initial_ms", 500)
	v.SetDefault("http.backoff_max_ms", 30000)
	v.SetDefault("http.user_agent", "labor-market-etl/0.1")
	v.SetDefault("pipeline.parallelism", 2)
	v.SetDefault("pipeline.include_gender_aggregate", false)
	v.SetDefault("storage.backend", "none")
	v.SetDefault("db.max_conns", 4)
	v.SetDefault("logging.development", true)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.SCB.MaxCells <= 0 {
		return fmt.Errorf("scb.max_cells must be > 0")
	}
	if c.SCB.RPS <= 0 {
		return fmt.Errorf("scb.rps must be > 0")
	}
	if c.HTTP.TimeoutSeconds <= 0 {
		return fmt.Errorf("http.timeout_seconds must be > 0")
	}
	if c.Pipeline.Parallelism <= 0 {
		return fmt.Errorf("pipeline.parallelism must be > 0")
	}
	if c.JobAds.PageSize <= 0 || c.JobAds.PageSize > 100 {
		return fmt.Errorf("jobads.page_size must be in 1..100")
	}
	if c.Enrichment.Enabled && (c.Enrichment.Threshold <= 0 || c.Enrichment.Threshold > 1) {
		return fmt.Errorf("enrichment.threshold must be in (0, 1]")
	}
	switch c.Storage.Backend {
	case "", "none":
	case "gcs":
		if c.Storage.GCSBucket == "" {
			return fmt.Errorf("storage.gcs_bucket must be set for the gcs backend")
		}
	case "local":
		if c.Storage.LocalDir == "" {
			return fmt.Errorf("storage.local_dir must be set for the local backend")
		}
	default:
		return fmt.Errorf("storage.backend must be gcs, local, or none")
	}
	if c.PubSub.Enabled {
		if c.PubSub.ProjectID == "" || c.PubSub.TopicName == "" {
			return fmt.Errorf("pubsub.project_id and pubsub.topic_name must be set when pubsub is enabled")
		}
	}
	return nil
}
