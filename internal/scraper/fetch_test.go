// internal/scraper/fetch_test.go
package scraper

import (
	"context"
	"io"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/valpere/SocialScrapexter/internal/config"
	scrapeerrors "github.com/valpere/SocialScrapexter/internal/errors"
	"github.com/valpere/SocialScrapexter/internal/monitoring"
	"github.com/valpere/SocialScrapexter/internal/proxy"
	"github.com/valpere/SocialScrapexter/internal/ratelimit"
	"github.com/valpere/SocialScrapexter/internal/useragent"
	"github.com/valpere/SocialScrapexter/pkg/types"
)

// memorySink collects error records in memory.
type memorySink struct {
	mu   sync.Mutex
	recs []*types.ErrorRecord
}

func (s *memorySink) SaveError(rec *types.ErrorRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recs = append(s.recs, rec)
	return nil
}

func (s *memorySink) records() []*types.ErrorRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*types.ErrorRecord(nil), s.recs...)
}

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }

func respondWith(status int, req *http.Request) *http.Response {
	return &http.Response{
		StatusCode: status,
		Status:     http.StatusText(status),
		Header:     make(http.Header),
		Body:       io.NopCloser(strings.NewReader("{}")),
		Request:    req,
	}
}

func newTestFetcher(t *testing.T, maxConcurrent int, sink errorSink, rt http.RoundTripper) *fetcher {
	t.Helper()
	cfg := config.EngineConfig{
		MaxConcurrentRequests: maxConcurrent,
		RequestTimeout:        5 * time.Second,
		Retry: scrapeerrors.BackoffPolicy{
			MaxAttempts:   3,
			BaseDelay:     time.Millisecond,
			MaxDelay:      5 * time.Millisecond,
			BackoffFactor: 2,
		},
	}
	limiter := ratelimit.NewLimiter(map[string]config.PlatformConfig{
		"twitter": {RequestsPerMinute: 10000, RequestsPerHour: 100000},
	})
	f := newFetcher(cfg, limiter, proxy.NewManager(config.ProxyPoolConfig{}), useragent.NewRotator(nil), monitoring.NewMetrics(), sink)
	f.newClient = func(p *proxy.Proxy) *http.Client {
		return &http.Client{Transport: rt}
	}
	return f
}

func TestFetchBoundsInFlightRequests(t *testing.T) {
	const bound = 2
	var inFlight, peak int64

	rt := roundTripFunc(func(r *http.Request) (*http.Response, error) {
		n := atomic.AddInt64(&inFlight, 1)
		for {
			old := atomic.LoadInt64(&peak)
			if n <= old || atomic.CompareAndSwapInt64(&peak, old, n) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		atomic.AddInt64(&inFlight, -1)
		return respondWith(http.StatusOK, r), nil
	})

	f := newTestFetcher(t, bound, nil, rt)

	var wg sync.WaitGroup
	for i := 0; i < 6; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			req, err := http.NewRequest(http.MethodGet, "https://example.com/timeline", nil)
			require.NoError(t, err)
			resp, err := f.Fetch(context.Background(), types.PlatformTwitter, "user_tweets", req)
			require.NoError(t, err)
			resp.Body.Close()
		}()
	}
	wg.Wait()

	assert.LessOrEqual(t, atomic.LoadInt64(&peak), int64(bound),
		"in-flight requests must not exceed max_concurrent_requests")
}

func TestFetchRecordsEachFailedAttempt(t *testing.T) {
	var calls int64
	rt := roundTripFunc(func(r *http.Request) (*http.Response, error) {
		if atomic.AddInt64(&calls, 1) <= 2 {
			return respondWith(http.StatusInternalServerError, r), nil
		}
		return respondWith(http.StatusOK, r), nil
	})

	sink := &memorySink{}
	f := newTestFetcher(t, 1, sink, rt)

	req, err := http.NewRequest(http.MethodGet, "https://example.com/timeline", nil)
	require.NoError(t, err)
	resp, err := f.Fetch(context.Background(), types.PlatformTwitter, "user_tweets", req)
	require.NoError(t, err)
	resp.Body.Close()

	// Both failed attempts are on record even though the call succeeded.
	recs := sink.records()
	require.Len(t, recs, 2)
	for _, rec := range recs {
		assert.Equal(t, string(scrapeerrors.TypeNetwork), rec.Type)
		assert.Equal(t, "500", rec.Code)
		assert.False(t, rec.OccurredAt.IsZero())
	}
}

func TestFetchRecordsExhaustedAttempts(t *testing.T) {
	rt := roundTripFunc(func(r *http.Request) (*http.Response, error) {
		return respondWith(http.StatusTooManyRequests, r), nil
	})

	sink := &memorySink{}
	f := newTestFetcher(t, 1, sink, rt)

	req, err := http.NewRequest(http.MethodGet, "https://example.com/timeline", nil)
	require.NoError(t, err)
	_, err = f.Fetch(context.Background(), types.PlatformTwitter, "user_tweets", req)
	require.Error(t, err)
	assert.Equal(t, scrapeerrors.TypeRateLimited, scrapeerrors.TypeOf(err))

	assert.Len(t, sink.records(), 3, "one record per attempt")
}
