// internal/useragent/rotator.go

// Package useragent supplies browser fingerprints for outgoing requests.
// The rotator is advisory: it never blocks and never fails the caller.
package useragent

import (
	"strings"
	"sync"
	"time"
)

// DefaultFingerprint is synthesized when the pool is empty.
const DefaultFingerprint = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

// defaultPool seeds the rotator when no fingerprints are configured.
var defaultPool = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/119.0.0.0 Safari/537.36",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:121.0) Gecko/20100101 Firefox/121.0",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10.15; rv:121.0) Gecko/20100101 Firefox/121.0",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.1 Safari/605.1.15",
	"Mozilla/5.0 (iPhone; CPU iPhone OS 17_1 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.1 Mobile/15E148 Safari/604.1",
	"Mozilla/5.0 (Linux; Android 14; Pixel 8) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Mobile Safari/537.36",
}

// Fingerprint is one user-agent entry with parsed metadata and usage
// bookkeeping.
type Fingerprint struct {
	Value      string    `json:"value"`
	Browser    string    `json:"browser"`
	OS         string    `json:"os"`
	Device     string    `json:"device"`
	UsageCount int64     `json:"usage_count"`
	LastUsed   time.Time `json:"last_used"`
	Active     bool      `json:"active"`
}

// Rotator hands out fingerprints preferring the least recently used active
// entry.
type Rotator struct {
	mu   sync.Mutex
	pool []*Fingerprint
}

// NewRotator creates a rotator seeded with the given fingerprints; an empty
// seed list falls back to the built-in pool.
func NewRotator(seeds []string) *Rotator {
	if len(seeds) == 0 {
		seeds = defaultPool
	}

	pool := make([]*Fingerprint, 0, len(seeds))
	seen := make(map[string]bool, len(seeds))
	for _, s := range seeds {
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		fp := parseFingerprint(s)
		pool = append(pool, fp)
	}

	return &Rotator{pool: pool}
}

// Next returns a fingerprint string, updating its usage count and last-used
// time. An exhausted pool yields the default fingerprint.
func (r *Rotator) Next() string {
	r.mu.Lock()
	defer r.mu.Unlock()

	var pick *Fingerprint
	for _, fp := range r.pool {
		if !fp.Active {
			continue
		}
		if pick == nil || fp.LastUsed.Before(pick.LastUsed) {
			pick = fp
		}
	}

	if pick == nil {
		return DefaultFingerprint
	}

	pick.UsageCount++
	pick.LastUsed = time.Now()
	return pick.Value
}

// MarkInactive removes a fingerprint from rotation, for example when a
// platform starts challenging it.
func (r *Rotator) MarkInactive(value string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, fp := range r.pool {
		if fp.Value == value {
			fp.Active = false
			return
		}
	}
}

// Stats returns a snapshot of the pool.
func (r *Rotator) Stats() []Fingerprint {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Fingerprint, len(r.pool))
	for i, fp := range r.pool {
		out[i] = *fp
	}
	return out
}

// parseFingerprint extracts coarse browser/OS/device metadata from a
// user-agent string.
func parseFingerprint(ua string) *Fingerprint {
	fp := &Fingerprint{Value: ua, Active: true, Browser: "unknown", OS: "unknown", Device: "desktop"}

	switch {
	case strings.Contains(ua, "Firefox/"):
		fp.Browser = "firefox"
	case strings.Contains(ua, "Chrome/"):
		fp.Browser = "chrome"
	case strings.Contains(ua, "Safari/"):
		fp.Browser = "safari"
	}

	switch {
	case strings.Contains(ua, "Windows NT"):
		fp.OS = "windows"
	case strings.Contains(ua, "Android"):
		fp.OS = "android"
	case strings.Contains(ua, "iPhone OS"), strings.Contains(ua, "iPad"):
		fp.OS = "ios"
	case strings.Contains(ua, "Mac OS X"):
		fp.OS = "macos"
	case strings.Contains(ua, "Linux"):
		fp.OS = "linux"
	}

	if strings.Contains(ua, "Mobile") || fp.OS == "android" || fp.OS == "ios" {
		fp.Device = "mobile"
	}

	return fp
}
