// internal/proxy/types.go

// Package proxy maintains the pool of egress proxies shared by all
// collection workers: weighted selection, failure accounting, and the
// background health-check loop that promotes recovered endpoints.
package proxy

import (
	"net/url"
	"sync"
	"time"

	"github.com/valpere/SocialScrapexter/pkg/types"
)

// Outcome reports how a request through a proxy went.
type Outcome struct {
	Success bool
	Reason  string
}

// Proxy is one pool entry. Status is derived solely from the rolling
// counters and health checks; callers outside this package never set it.
type Proxy struct {
	URL      *url.URL
	Raw      string
	Type     string // http, https, socks4, socks5
	Username string
	Password string
	Country  string
	Region   string

	mu                  sync.Mutex
	status              types.ProxyStatus
	successCount        int64
	failureCount        int64
	consecutiveFailures int
	lastResponseTime    time.Duration
	uptimePercentage    float64
	lastChecked         time.Time
}

// Status returns the current state.
func (p *Proxy) Status() types.ProxyStatus {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.status
}

// Uptime returns the smoothed uptime percentage (0..100).
func (p *Proxy) Uptime() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.uptimePercentage
}

// Snapshot is an immutable view of a proxy used for stats and persistence.
type Snapshot struct {
	URL                 string            `json:"url"`
	Type                string            `json:"type"`
	Country             string            `json:"country,omitempty"`
	Region              string            `json:"region,omitempty"`
	Status              types.ProxyStatus `json:"status"`
	SuccessCount        int64             `json:"success_count"`
	FailureCount        int64             `json:"failure_count"`
	ConsecutiveFailures int               `json:"consecutive_failures"`
	LastResponseTime    time.Duration     `json:"last_response_time"`
	UptimePercentage    float64           `json:"uptime_percentage"`
	LastChecked         time.Time         `json:"last_checked"`
}

// snapshot captures the proxy under its own lock.
func (p *Proxy) snapshot() Snapshot {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Snapshot{
		URL:                 p.Raw,
		Type:                p.Type,
		Country:             p.Country,
		Region:              p.Region,
		Status:              p.status,
		SuccessCount:        p.successCount,
		FailureCount:        p.failureCount,
		ConsecutiveFailures: p.consecutiveFailures,
		LastResponseTime:    p.lastResponseTime,
		UptimePercentage:    p.uptimePercentage,
		LastChecked:         p.lastChecked,
	}
}

// PoolStats summarizes the pool for the stats command.
type PoolStats struct {
	Total    int        `json:"total"`
	Active   int        `json:"active"`
	Testing  int        `json:"testing"`
	Failed   int        `json:"failed"`
	Inactive int        `json:"inactive"`
	Proxies  []Snapshot `json:"proxies"`
}
