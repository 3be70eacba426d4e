// internal/proxy/health.go
package proxy

import (
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/valpere/SocialScrapexter/pkg/types"
)

// HealthChecker probes a single proxy out of band.
type HealthChecker interface {
	Check(p *Proxy) (time.Duration, error)
}

type httpHealthChecker struct {
	url     string
	timeout time.Duration
}

func newHTTPHealthChecker(url string, timeout time.Duration) HealthChecker {
	return &httpHealthChecker{url: url, timeout: timeout}
}

// Check issues a lightweight GET through the proxy.
func (c *httpHealthChecker) Check(p *Proxy) (time.Duration, error) {
	client := &http.Client{
		Transport: &http.Transport{Proxy: http.ProxyURL(p.URL)},
		Timeout:   c.timeout,
	}

	start := time.Now()
	resp, err := client.Get(c.url)
	elapsed := time.Since(start)
	if err != nil {
		return elapsed, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return elapsed, fmt.Errorf("health check returned status %d", resp.StatusCode)
	}
	return elapsed, nil
}

// healthLoop periodically re-evaluates every proxy that is not active.
// Success promotes testing/failed proxies back toward active; inactive
// proxies are administrative and never promoted automatically. Active
// proxies are left to live traffic and the consecutive-failure threshold.
func (m *Manager) healthLoop() {
	ticker := time.NewTicker(m.cfg.HealthCheckInterval)
	defer ticker.Stop()

	// Probe once at startup so seeds leave testing promptly.
	m.runHealthChecks()

	for {
		select {
		case <-ticker.C:
			m.runHealthChecks()
		case <-m.stopChan:
			return
		}
	}
}

// runHealthChecks probes every non-active proxy concurrently and applies
// the results. Active proxies are judged by their live traffic through
// Report, so probing them would only burn requests and let a single probe
// hiccup sidestep the consecutive-failure threshold.
func (m *Manager) runHealthChecks() {
	m.mu.RLock()
	targets := make([]*Proxy, 0, len(m.proxies))
	for _, p := range m.proxies {
		switch p.Status() {
		case types.ProxyActive, types.ProxyInactive:
			continue
		}
		targets = append(targets, p)
	}
	m.mu.RUnlock()

	var wg sync.WaitGroup
	for _, p := range targets {
		wg.Add(1)
		go func(p *Proxy) {
			defer wg.Done()
			elapsed, err := m.checker.Check(p)
			m.applyProbeResult(p, elapsed, err)
		}(p)
	}
	wg.Wait()
}

// applyProbeResult updates the proxy's derived state from one probe.
// Uptime is an exponentially weighted average so a recovered proxy climbs
// back gradually instead of snapping to 100%.
func (m *Manager) applyProbeResult(p *Proxy, elapsed time.Duration, err error) {
	alpha := m.cfg.UptimeSmoothing

	p.mu.Lock()
	defer p.mu.Unlock()

	p.lastChecked = time.Now()
	p.lastResponseTime = elapsed

	if err != nil {
		p.failureCount++
		p.consecutiveFailures++
		p.uptimePercentage = (1-alpha)*p.uptimePercentage + alpha*0
		if p.status == types.ProxyTesting {
			p.status = types.ProxyFailed
		}
		return
	}

	p.successCount++
	p.consecutiveFailures = 0
	p.uptimePercentage = (1-alpha)*p.uptimePercentage + alpha*100

	switch p.status {
	case types.ProxyFailed:
		// Recovered proxies pass through testing before re-entering
		// rotation on the next successful probe.
		p.status = types.ProxyTesting
	case types.ProxyTesting:
		p.status = types.ProxyActive
	}
}
