// internal/config/types.go

// Package config provides the process-wide configuration for the collection
// engine: platform rate budgets and engagement weights, the proxy seed pool,
// storage backends, and export settings. Configuration is loaded once at
// startup and treated as immutable for the lifetime of a run.
package config

import (
	"time"

	"github.com/valpere/SocialScrapexter/internal/errors"
)

// Config is the root configuration structure.
type Config struct {
	// Name identifies this configuration
	Name string `yaml:"name" json:"name"`

	// Version of the configuration format
	Version string `yaml:"version" json:"version"`

	// Platforms holds per-platform settings keyed by platform name
	Platforms map[string]PlatformConfig `yaml:"platforms" json:"platforms"`

	// Engine controls the collection loop
	Engine EngineConfig `yaml:"engine" json:"engine"`

	// Proxies seeds the proxy pool
	Proxies ProxyPoolConfig `yaml:"proxies" json:"proxies"`

	// UserAgents seeds the fingerprint pool
	UserAgents []string `yaml:"user_agents,omitempty" json:"user_agents,omitempty"`

	// Storage selects and configures the persistence backend
	Storage StorageConfig `yaml:"storage" json:"storage"`

	// Output configures CLI exports
	Output OutputConfig `yaml:"output" json:"output"`

	// Metrics configures the Prometheus endpoint
	Metrics MetricsConfig `yaml:"metrics" json:"metrics"`

	// Logging configures the logger
	Logging LoggingConfig `yaml:"logging" json:"logging"`
}

// PlatformConfig holds the per-platform reference data: URLs, rate budgets,
// inter-request delay, and engagement score weights. Weights are data so new
// platforms need no code changes in the normalizer.
type PlatformConfig struct {
	DisplayName       string            `yaml:"display_name" json:"display_name"`
	BaseURL           string            `yaml:"base_url" json:"base_url"`
	APIURL            string            `yaml:"api_url,omitempty" json:"api_url,omitempty"`
	Active            bool              `yaml:"active" json:"active"`
	RequestsPerMinute int               `yaml:"requests_per_minute" json:"requests_per_minute"`
	RequestsPerHour   int               `yaml:"requests_per_hour" json:"requests_per_hour"`
	RequestDelay      time.Duration     `yaml:"request_delay" json:"request_delay"`
	EngagementWeights EngagementWeights `yaml:"engagement_weights" json:"engagement_weights"`
}

// EngagementWeights are the per-platform coefficients of the engagement
// score: a weighted sum over the four counters.
type EngagementWeights struct {
	Likes    float64 `yaml:"likes" json:"likes"`
	Comments float64 `yaml:"comments" json:"comments"`
	Shares   float64 `yaml:"shares" json:"shares"`
	Views    float64 `yaml:"views" json:"views"`
}

// EngineConfig controls concurrency, timeouts and retries of the collection
// loop.
type EngineConfig struct {
	MaxConcurrentRequests int                  `yaml:"max_concurrent_requests" json:"max_concurrent_requests"`
	RequestTimeout        time.Duration        `yaml:"request_timeout" json:"request_timeout"`
	Retry                 errors.BackoffPolicy `yaml:"retry" json:"retry"`
}

// ProxyPoolConfig seeds and tunes the proxy pool.
type ProxyPoolConfig struct {
	Enabled             bool          `yaml:"enabled" json:"enabled"`
	Endpoints           []ProxySeed   `yaml:"endpoints,omitempty" json:"endpoints,omitempty"`
	FailureThreshold    int           `yaml:"failure_threshold" json:"failure_threshold"`
	HealthCheckInterval time.Duration `yaml:"health_check_interval" json:"health_check_interval"`
	HealthCheckURL      string        `yaml:"health_check_url,omitempty" json:"health_check_url,omitempty"`
	HealthCheckTimeout  time.Duration `yaml:"health_check_timeout" json:"health_check_timeout"`
	UptimeSmoothing     float64       `yaml:"uptime_smoothing" json:"uptime_smoothing"`
}

// ProxySeed is one configured proxy endpoint.
type ProxySeed struct {
	URL      string `yaml:"url" json:"url"`
	Username string `yaml:"username,omitempty" json:"username,omitempty"`
	Password string `yaml:"password,omitempty" json:"password,omitempty"`
	Country  string `yaml:"country,omitempty" json:"country,omitempty"`
	Region   string `yaml:"region,omitempty" json:"region,omitempty"`
}

// StorageConfig selects the persistence backend.
type StorageConfig struct {
	// Backend is one of "sqlite", "postgres", "mysql"
	Backend string `yaml:"backend" json:"backend"`

	// DSN is the driver connection string; ${ENV} references are expanded
	DSN string `yaml:"dsn" json:"dsn"`

	// Archive optionally mirrors raw draft payloads into MongoDB
	Archive *ArchiveConfig `yaml:"archive,omitempty" json:"archive,omitempty"`

	// Analytics controls the daily rollup job
	Analytics AnalyticsConfig `yaml:"analytics" json:"analytics"`
}

// ArchiveConfig configures the MongoDB raw-payload archive.
type ArchiveConfig struct {
	URI        string        `yaml:"uri" json:"uri"`
	Database   string        `yaml:"database" json:"database"`
	Collection string        `yaml:"collection" json:"collection"`
	Timeout    time.Duration `yaml:"timeout,omitempty" json:"timeout,omitempty"`
}

// AnalyticsConfig controls the scheduled analytics rollup.
type AnalyticsConfig struct {
	Enabled  bool   `yaml:"enabled" json:"enabled"`
	Schedule string `yaml:"schedule,omitempty" json:"schedule,omitempty"` // cron expression
}

// OutputConfig configures CLI export defaults.
type OutputConfig struct {
	Format    string `yaml:"format" json:"format"`
	Directory string `yaml:"directory" json:"directory"`
}

// MetricsConfig configures the Prometheus metrics endpoint.
type MetricsConfig struct {
	Enabled       bool   `yaml:"enabled" json:"enabled"`
	ListenAddress string `yaml:"listen_address" json:"listen_address"`
}

// LoggingConfig configures the logger.
type LoggingConfig struct {
	Level string `yaml:"level" json:"level"`
}
