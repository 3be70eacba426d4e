// internal/config/validation.go
package config

import (
	"fmt"

	"github.com/valpere/SocialScrapexter/internal/utils"
	"github.com/valpere/SocialScrapexter/pkg/types"
)

// Validate checks the configuration for internal consistency. It is called
// by the loaders after defaults are applied.
func (c *Config) Validate() error {
	if len(c.Platforms) == 0 {
		return fmt.Errorf("at least one platform must be configured")
	}

	for name, pc := range c.Platforms {
		if !types.Platform(name).IsValid() {
			return fmt.Errorf("unknown platform %q", name)
		}
		if pc.BaseURL == "" {
			return fmt.Errorf("platform %q: base_url is required", name)
		}
		if pc.RequestsPerMinute > pc.RequestsPerHour {
			return fmt.Errorf("platform %q: per-minute budget %d exceeds per-hour budget %d",
				name, pc.RequestsPerMinute, pc.RequestsPerHour)
		}
		w := pc.EngagementWeights
		if w.Likes < 0 || w.Comments < 0 || w.Shares < 0 || w.Views < 0 {
			return fmt.Errorf("platform %q: engagement weights must be non-negative", name)
		}
	}

	for i, seed := range c.Proxies.Endpoints {
		if err := utils.ValidateProxyURL(seed.URL); err != nil {
			return fmt.Errorf("proxy endpoint %d: %w", i, err)
		}
	}

	switch c.Storage.Backend {
	case "sqlite", "postgres", "mysql":
	default:
		return fmt.Errorf("unsupported storage backend: %q", c.Storage.Backend)
	}
	if c.Storage.DSN == "" {
		return fmt.Errorf("storage DSN is required for backend %q", c.Storage.Backend)
	}
	if a := c.Storage.Archive; a != nil {
		if a.URI == "" || a.Database == "" || a.Collection == "" {
			return fmt.Errorf("archive requires uri, database and collection")
		}
	}

	if !types.OutputFormat(c.Output.Format).IsValid() {
		return fmt.Errorf("unsupported output format: %q", c.Output.Format)
	}

	return nil
}

// PlatformFor returns the configuration for a platform, reporting whether
// the platform is configured and active.
func (c *Config) PlatformFor(p types.Platform) (PlatformConfig, bool) {
	pc, ok := c.Platforms[string(p)]
	if !ok || !pc.Active {
		return PlatformConfig{}, false
	}
	return pc, true
}
