// internal/ratelimit/limiter_test.go
package ratelimit

import (
	"sync"
	"testing"
	"time"

	"github.com/valpere/SocialScrapexter/internal/config"
	"github.com/valpere/SocialScrapexter/pkg/types"
)

func newTestLimiter(perMinute, perHour int) (*Limiter, *time.Time) {
	l := NewLimiter(map[string]config.PlatformConfig{
		"twitter": {
			RequestsPerMinute: perMinute,
			RequestsPerHour:   perHour,
		},
	})
	clock := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return clock }
	return l, &clock
}

func twitterKey() Key {
	return Key{Platform: types.PlatformTwitter, Proxy: "direct", Endpoint: "user_tweets"}
}

func TestAcquireWithinBudget(t *testing.T) {
	l, _ := newTestLimiter(5, 100)
	key := twitterKey()

	for i := 0; i < 5; i++ {
		wait, err := l.Acquire(key)
		if err != nil {
			t.Fatalf("Acquire %d: %v", i, err)
		}
		if wait != 0 {
			t.Fatalf("Acquire %d: wait = %v, want 0", i, wait)
		}
	}
}

func TestMinuteBudgetExhaustion(t *testing.T) {
	l, clock := newTestLimiter(2, 100)
	key := twitterKey()

	l.Acquire(key)
	l.Acquire(key)

	wait, err := l.Acquire(key)
	if err != nil {
		t.Fatal(err)
	}
	if wait != time.Minute {
		t.Errorf("wait = %v, want %v", wait, time.Minute)
	}

	// The window resets once the minute elapses.
	*clock = clock.Add(time.Minute)
	wait, _ = l.Acquire(key)
	if wait != 0 {
		t.Errorf("wait after window reset = %v, want 0", wait)
	}
}

func TestStricterBudgetGoverns(t *testing.T) {
	l, clock := newTestLimiter(10, 15)
	key := twitterKey()

	// Burn the hour budget across two minute windows.
	for i := 0; i < 10; i++ {
		l.Acquire(key)
	}
	*clock = clock.Add(time.Minute)
	for i := 0; i < 5; i++ {
		if wait, _ := l.Acquire(key); wait != 0 {
			t.Fatalf("request %d blocked early: wait = %v", i, wait)
		}
	}

	wait, err := l.Acquire(key)
	if err != nil {
		t.Fatal(err)
	}
	want := 59 * time.Minute
	if wait != want {
		t.Errorf("wait = %v, want %v: hour window must govern once exhausted", wait, want)
	}
}

func TestKeysIsolateBudgets(t *testing.T) {
	l, _ := newTestLimiter(1, 100)

	a := Key{Platform: types.PlatformTwitter, Proxy: "p1", Endpoint: "user_tweets"}
	b := Key{Platform: types.PlatformTwitter, Proxy: "p2", Endpoint: "user_tweets"}

	if wait, _ := l.Acquire(a); wait != 0 {
		t.Fatalf("first acquire on a: wait = %v", wait)
	}
	if wait, _ := l.Acquire(a); wait == 0 {
		t.Error("second acquire on a should block")
	}
	if wait, _ := l.Acquire(b); wait != 0 {
		t.Errorf("acquire on different proxy blocked: wait = %v", wait)
	}
}

func TestUnknownPlatformRejected(t *testing.T) {
	l, _ := newTestLimiter(5, 100)
	_, err := l.Acquire(Key{Platform: types.PlatformTikTok, Proxy: "direct", Endpoint: "feed"})
	if err == nil {
		t.Fatal("expected error for unconfigured platform")
	}
}

func TestConcurrentAcquireNeverExceedsBudget(t *testing.T) {
	l, _ := newTestLimiter(50, 1000)
	key := twitterKey()

	var wg sync.WaitGroup
	var mu sync.Mutex
	granted := 0

	for i := 0; i < 200; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			wait, err := l.Acquire(key)
			if err == nil && wait == 0 {
				mu.Lock()
				granted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if granted != 50 {
		t.Errorf("granted = %d, want exactly 50", granted)
	}
}

func TestUsageTracksWindows(t *testing.T) {
	l, clock := newTestLimiter(10, 100)
	key := twitterKey()

	l.Acquire(key)
	l.Acquire(key)
	l.Acquire(key)

	minute, hour := l.Usage(key)
	if minute != 3 || hour != 3 {
		t.Errorf("Usage = (%d, %d), want (3, 3)", minute, hour)
	}

	*clock = clock.Add(time.Minute)
	minute, hour = l.Usage(key)
	if minute != 0 {
		t.Errorf("minute usage after reset = %d, want 0", minute)
	}
	if hour != 3 {
		t.Errorf("hour usage = %d, want 3", hour)
	}
}
