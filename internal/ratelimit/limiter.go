// internal/ratelimit/limiter.go
package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/valpere/SocialScrapexter/internal/config"
	"github.com/valpere/SocialScrapexter/pkg/types"
)

// Key identifies one rate-limited lane. Requests through different proxies
// or against different endpoints consume independent budgets; the platform
// component always participates so a Twitter burst never starves Instagram.
type Key struct {
	Platform types.Platform
	Proxy    string
	Endpoint string
}

func (k Key) String() string {
	return fmt.Sprintf("%s|%s|%s", k.Platform, k.Proxy, k.Endpoint)
}

// window is a fixed counting window. It resets lazily on the first
// observation after expiry rather than on a timer.
type window struct {
	start time.Time
	count int
}

func (w *window) observe(now time.Time, span time.Duration) {
	if now.Sub(w.start) >= span {
		w.start = now
		w.count = 0
	}
}

// lane tracks the minute and hour windows for one Key.
type lane struct {
	minute window
	hour   window
}

// Limiter enforces per-platform request budgets over fixed minute and hour
// windows, with an optional token-bucket pacer spreading requests inside a
// window. The stricter of the two budgets always governs.
type Limiter struct {
	mu     sync.Mutex
	lanes  map[Key]*lane
	pacers map[types.Platform]*rate.Limiter

	budgets map[types.Platform]budget
	now     func() time.Time
}

type budget struct {
	perMinute int
	perHour   int
	delay     time.Duration
}

// NewLimiter builds a limiter from the configured platform budgets. Platforms
// missing from the config get no budget and are rejected by Acquire.
func NewLimiter(platforms map[string]config.PlatformConfig) *Limiter {
	l := &Limiter{
		lanes:   make(map[Key]*lane),
		pacers:  make(map[types.Platform]*rate.Limiter),
		budgets: make(map[types.Platform]budget),
		now:     time.Now,
	}

	for name, pc := range platforms {
		platform := types.Platform(name)
		l.budgets[platform] = budget{
			perMinute: pc.RequestsPerMinute,
			perHour:   pc.RequestsPerHour,
			delay:     pc.RequestDelay,
		}
		if pc.RequestDelay > 0 {
			l.pacers[platform] = rate.NewLimiter(rate.Every(pc.RequestDelay), 1)
		}
	}

	return l
}

// ErrUnknownPlatform is returned when no budget is configured for the
// requested platform.
var ErrUnknownPlatform = fmt.Errorf("ratelimit: no budget configured for platform")

// Acquire reserves one request slot for the key. A zero return means the
// request may proceed immediately; a positive duration is how long the
// caller must wait before trying again. The increment-and-check is atomic
// under the limiter lock, so concurrent workers can never jointly exceed a
// window budget.
func (l *Limiter) Acquire(key Key) (time.Duration, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.budgets[key.Platform]
	if !ok {
		return 0, fmt.Errorf("%w %q", ErrUnknownPlatform, key.Platform)
	}

	now := l.now()
	ln := l.lanes[key]
	if ln == nil {
		ln = &lane{
			minute: window{start: now},
			hour:   window{start: now},
		}
		l.lanes[key] = ln
	}

	ln.minute.observe(now, time.Minute)
	ln.hour.observe(now, time.Hour)

	// The stricter budget governs: report the longer wait when both
	// windows are exhausted.
	var wait time.Duration
	if b.perMinute > 0 && ln.minute.count >= b.perMinute {
		wait = ln.minute.start.Add(time.Minute).Sub(now)
	}
	if b.perHour > 0 && ln.hour.count >= b.perHour {
		if w := ln.hour.start.Add(time.Hour).Sub(now); w > wait {
			wait = w
		}
	}
	if wait > 0 {
		return wait, nil
	}

	ln.minute.count++
	ln.hour.count++
	return 0, nil
}

// Wait blocks until a slot is available for the key or the context ends.
// It combines the window budgets with the per-platform pacer, so requests
// are both bounded per window and spread inside it.
func (l *Limiter) Wait(ctx context.Context, key Key) error {
	for {
		wait, err := l.Acquire(key)
		if err != nil {
			return err
		}
		if wait == 0 {
			break
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}

	l.mu.Lock()
	pacer := l.pacers[key.Platform]
	l.mu.Unlock()
	if pacer != nil {
		return pacer.Wait(ctx)
	}
	return nil
}

// Usage reports the current window counts for a key. Zeroes are returned
// for keys that have never been acquired.
func (l *Limiter) Usage(key Key) (minuteUsed, hourUsed int) {
	l.mu.Lock()
	defer l.mu.Unlock()

	ln := l.lanes[key]
	if ln == nil {
		return 0, 0
	}
	now := l.now()
	ln.minute.observe(now, time.Minute)
	ln.hour.observe(now, time.Hour)
	return ln.minute.count, ln.hour.count
}

// LaneSnapshot is the persistable state of one lane.
type LaneSnapshot struct {
	Key          Key
	MinuteUsed   int
	HourUsed     int
	MinuteStart  time.Time
	MinuteBudget int
	HourBudget   int
}

// Snapshot returns the live lanes for persistence. Expired windows are
// reset before reporting.
func (l *Limiter) Snapshot() []LaneSnapshot {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	out := make([]LaneSnapshot, 0, len(l.lanes))
	for key, ln := range l.lanes {
		ln.minute.observe(now, time.Minute)
		ln.hour.observe(now, time.Hour)
		b := l.budgets[key.Platform]
		out = append(out, LaneSnapshot{
			Key:          key,
			MinuteUsed:   ln.minute.count,
			HourUsed:     ln.hour.count,
			MinuteStart:  ln.minute.start,
			MinuteBudget: b.perMinute,
			HourBudget:   b.perHour,
		})
	}
	return out
}

// Reset clears all window state. Budgets and pacers are kept.
func (l *Limiter) Reset() {
	l.mu.Lock()
	l.lanes = make(map[Key]*lane)
	l.mu.Unlock()
}
