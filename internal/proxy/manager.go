// internal/proxy/manager.go
package proxy

import (
	"math/rand"
	"net/url"
	"sync"

	"github.com/valpere/SocialScrapexter/internal/config"
	"github.com/valpere/SocialScrapexter/internal/utils"
	"github.com/valpere/SocialScrapexter/pkg/types"
)

var logger = utils.NewComponentLogger("proxy-manager")

// Manager owns the proxy pool. It is shared mutable state across all
// workers of all sessions; every read-modify-write happens under the pool
// lock or the per-proxy lock.
type Manager struct {
	cfg config.ProxyPoolConfig

	mu      sync.RWMutex
	proxies []*Proxy

	checker  HealthChecker
	stopChan chan struct{}
	stopOnce sync.Once
}

// NewManager builds a manager from the configured seed list. New proxies
// enter in the testing state and are promoted by the first health check.
func NewManager(cfg config.ProxyPoolConfig) *Manager {
	m := &Manager{
		cfg:      cfg,
		stopChan: make(chan struct{}),
		checker:  newHTTPHealthChecker(cfg.HealthCheckURL, cfg.HealthCheckTimeout),
	}

	for _, seed := range cfg.Endpoints {
		p, err := newProxy(seed)
		if err != nil {
			logger.WithError(err).Warnf("skipping invalid proxy seed %q", seed.URL)
			continue
		}
		m.proxies = append(m.proxies, p)
	}

	return m
}

func newProxy(seed config.ProxySeed) (*Proxy, error) {
	u, err := url.Parse(seed.URL)
	if err != nil {
		return nil, err
	}
	if seed.Username != "" {
		u.User = url.UserPassword(seed.Username, seed.Password)
	}
	return &Proxy{
		URL:              u,
		Raw:              seed.URL,
		Type:             u.Scheme,
		Username:         seed.Username,
		Password:         seed.Password,
		Country:          seed.Country,
		Region:           seed.Region,
		status:           types.ProxyTesting,
		uptimePercentage: 100,
	}, nil
}

// Acquire returns an active proxy chosen by weighted selection favoring
// high uptime and few recent failures, or nil when none is available.
// A nil result is not an error: the caller proceeds direct or waits.
func (m *Manager) Acquire(platform types.Platform) *Proxy {
	if !m.cfg.Enabled {
		return nil
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	var candidates []*Proxy
	var weights []float64
	total := 0.0

	for _, p := range m.proxies {
		p.mu.Lock()
		eligible := p.status == types.ProxyActive
		w := p.uptimePercentage / float64(1+p.consecutiveFailures)
		p.mu.Unlock()

		if !eligible {
			continue
		}
		if w <= 0 {
			w = 0.01
		}
		candidates = append(candidates, p)
		weights = append(weights, w)
		total += w
	}

	if len(candidates) == 0 {
		return nil
	}

	pick := rand.Float64() * total
	for i, p := range candidates {
		pick -= weights[i]
		if pick <= 0 {
			return p
		}
	}
	return candidates[len(candidates)-1]
}

// Report records a request outcome against the proxy. Crossing the
// consecutive-failure threshold demotes the proxy to failed; the health
// loop is the only path back.
func (m *Manager) Report(p *Proxy, outcome Outcome) {
	if p == nil {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if outcome.Success {
		p.successCount++
		p.consecutiveFailures = 0
		return
	}

	p.failureCount++
	p.consecutiveFailures++
	if p.status == types.ProxyActive && p.consecutiveFailures >= m.cfg.FailureThreshold {
		p.status = types.ProxyFailed
		logger.Warnf("proxy %s demoted to failed after %d consecutive failures (%s)",
			p.Raw, p.consecutiveFailures, outcome.Reason)
	}
}

// Add registers a dynamically discovered proxy at runtime.
func (m *Manager) Add(seed config.ProxySeed) error {
	p, err := newProxy(seed)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.proxies {
		if existing.Raw == p.Raw {
			return nil
		}
	}
	m.proxies = append(m.proxies, p)
	return nil
}

// Retire administratively removes a proxy from rotation. Health checks do
// not promote inactive proxies.
func (m *Manager) Retire(raw string) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, p := range m.proxies {
		if p.Raw == raw {
			p.mu.Lock()
			p.status = types.ProxyInactive
			p.mu.Unlock()
			return
		}
	}
}

// Start launches the background health-check loop.
func (m *Manager) Start() {
	if !m.cfg.Enabled {
		return
	}
	go m.healthLoop()
}

// Stop terminates the health-check loop.
func (m *Manager) Stop() {
	m.stopOnce.Do(func() { close(m.stopChan) })
}

// Stats returns a snapshot of the pool.
func (m *Manager) Stats() PoolStats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stats := PoolStats{Total: len(m.proxies)}
	for _, p := range m.proxies {
		snap := p.snapshot()
		stats.Proxies = append(stats.Proxies, snap)
		switch snap.Status {
		case types.ProxyActive:
			stats.Active++
		case types.ProxyTesting:
			stats.Testing++
		case types.ProxyFailed:
			stats.Failed++
		case types.ProxyInactive:
			stats.Inactive++
		}
	}
	return stats
}
