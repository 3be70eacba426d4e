// internal/config/config.go
package config

import (
	"fmt"
	"io"
	"os"
	"regexp"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// LoadFromFile loads configuration from a YAML file. A .env file in the
// working directory, when present, is loaded into the environment first so
// ${VAR} references in the YAML can resolve against it.
func LoadFromFile(filename string) (*Config, error) {
	if filename == "" {
		return nil, fmt.Errorf("configuration filename cannot be empty")
	}

	// Missing .env is not an error; explicit environment always wins.
	_ = godotenv.Load()

	if _, err := os.Stat(filename); os.IsNotExist(err) {
		return nil, fmt.Errorf("configuration file not found: %s", filename)
	}

	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read configuration file: %v", err)
	}

	return LoadFromBytes(data)
}

// LoadFromBytes loads configuration from YAML bytes.
func LoadFromBytes(data []byte) (*Config, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("configuration data cannot be empty")
	}

	expanded := expandEnvironmentVariables(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML configuration: %v", err)
	}

	applyDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %v", err)
	}

	return &cfg, nil
}

// LoadFromReader loads configuration from an io.Reader.
func LoadFromReader(reader io.Reader) (*Config, error) {
	if reader == nil {
		return nil, fmt.Errorf("reader cannot be nil")
	}

	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to read from reader: %v", err)
	}

	return LoadFromBytes(data)
}

var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// expandEnvironmentVariables substitutes ${VAR} references with environment
// values. Unset variables expand to the empty string.
func expandEnvironmentVariables(content string) string {
	return envVarPattern.ReplaceAllStringFunc(content, func(match string) string {
		name := envVarPattern.FindStringSubmatch(match)[1]
		return os.Getenv(name)
	})
}

// applyDefaults fills in missing configuration values.
func applyDefaults(cfg *Config) {
	if cfg.Engine.MaxConcurrentRequests <= 0 {
		cfg.Engine.MaxConcurrentRequests = 5
	}
	if cfg.Engine.RequestTimeout <= 0 {
		cfg.Engine.RequestTimeout = 30 * time.Second
	}
	if cfg.Engine.Retry.MaxAttempts <= 0 {
		cfg.Engine.Retry.MaxAttempts = 3
	}
	if cfg.Engine.Retry.BaseDelay <= 0 {
		cfg.Engine.Retry.BaseDelay = 1 * time.Second
	}
	if cfg.Engine.Retry.MaxDelay <= 0 {
		cfg.Engine.Retry.MaxDelay = 30 * time.Second
	}
	if cfg.Engine.Retry.BackoffFactor <= 0 {
		cfg.Engine.Retry.BackoffFactor = 2.0
	}

	if cfg.Proxies.FailureThreshold <= 0 {
		cfg.Proxies.FailureThreshold = 5
	}
	if cfg.Proxies.HealthCheckInterval <= 0 {
		cfg.Proxies.HealthCheckInterval = 5 * time.Minute
	}
	if cfg.Proxies.HealthCheckTimeout <= 0 {
		cfg.Proxies.HealthCheckTimeout = 10 * time.Second
	}
	if cfg.Proxies.HealthCheckURL == "" {
		cfg.Proxies.HealthCheckURL = "https://httpbin.org/ip"
	}
	if cfg.Proxies.UptimeSmoothing <= 0 || cfg.Proxies.UptimeSmoothing >= 1 {
		cfg.Proxies.UptimeSmoothing = 0.3
	}

	if cfg.Storage.Backend == "" {
		cfg.Storage.Backend = "sqlite"
	}
	if cfg.Storage.DSN == "" && cfg.Storage.Backend == "sqlite" {
		cfg.Storage.DSN = "data/socialscrapexter.db"
	}
	if cfg.Storage.Analytics.Schedule == "" {
		cfg.Storage.Analytics.Schedule = "@daily"
	}
	if cfg.Storage.Archive != nil && cfg.Storage.Archive.Timeout <= 0 {
		cfg.Storage.Archive.Timeout = 10 * time.Second
	}

	if cfg.Output.Format == "" {
		cfg.Output.Format = "json"
	}
	if cfg.Output.Directory == "" {
		cfg.Output.Directory = "data"
	}

	if cfg.Metrics.ListenAddress == "" {
		cfg.Metrics.ListenAddress = ":9090"
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}

	if cfg.Platforms == nil {
		cfg.Platforms = make(map[string]PlatformConfig)
	}
	for name, pc := range cfg.Platforms {
		if pc.RequestsPerMinute <= 0 {
			pc.RequestsPerMinute = 15
		}
		if pc.RequestsPerHour <= 0 {
			pc.RequestsPerHour = 300
		}
		if pc.RequestDelay <= 0 {
			pc.RequestDelay = 2 * time.Second
		}
		if pc.EngagementWeights == (EngagementWeights{}) {
			pc.EngagementWeights = EngagementWeights{Likes: 1, Comments: 2, Shares: 3, Views: 0.01}
		}
		cfg.Platforms[name] = pc
	}
}

// Default returns a ready-to-use configuration with the built-in platform
// seed set, for runs without a config file.
func Default() *Config {
	cfg := &Config{
		Name:    "socialscrapexter",
		Version: "1",
		Platforms: map[string]PlatformConfig{
			"twitter": {
				DisplayName:       "Twitter/X",
				BaseURL:           "https://twitter.com",
				APIURL:            "https://cdn.syndication.twimg.com",
				Active:            true,
				RequestsPerMinute: 15,
				RequestsPerHour:   300,
				RequestDelay:      2 * time.Second,
			},
			"instagram": {
				DisplayName:       "Instagram",
				BaseURL:           "https://www.instagram.com",
				Active:            false,
				RequestsPerMinute: 10,
				RequestsPerHour:   200,
				RequestDelay:      3 * time.Second,
			},
			"facebook": {
				DisplayName:       "Facebook",
				BaseURL:           "https://www.facebook.com",
				Active:            false,
				RequestsPerMinute: 20,
				RequestsPerHour:   400,
				RequestDelay:      2500 * time.Millisecond,
			},
			"linkedin": {
				DisplayName:       "LinkedIn",
				BaseURL:           "https://www.linkedin.com",
				Active:            false,
				RequestsPerMinute: 8,
				RequestsPerHour:   150,
				RequestDelay:      3 * time.Second,
			},
			"tiktok": {
				DisplayName:       "TikTok",
				BaseURL:           "https://www.tiktok.com",
				Active:            false,
				RequestsPerMinute: 12,
				RequestsPerHour:   250,
				RequestDelay:      2500 * time.Millisecond,
			},
		},
	}
	applyDefaults(cfg)
	return cfg
}
