// internal/scraper/fetch.go
package scraper

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/valpere/SocialScrapexter/internal/config"
	scrapeerrors "github.com/valpere/SocialScrapexter/internal/errors"
	"github.com/valpere/SocialScrapexter/internal/monitoring"
	"github.com/valpere/SocialScrapexter/internal/proxy"
	"github.com/valpere/SocialScrapexter/internal/ratelimit"
	"github.com/valpere/SocialScrapexter/internal/useragent"
	"github.com/valpere/SocialScrapexter/pkg/types"
)

// errorSink durably records request errors. The storage gateway
// satisfies it.
type errorSink interface {
	SaveError(rec *types.ErrorRecord) error
}

// fetcher is the engine's implementation of platform.Fetcher. One call
// covers the whole request discipline: rate-limit permit, proxy selection,
// fingerprint, retry with backoff, classification, proxy outcome report.
// The slots channel bounds how many requests are in flight at once;
// callers beyond the bound queue until a slot frees.
type fetcher struct {
	limiter *ratelimit.Limiter
	proxies *proxy.Manager
	rotator *useragent.Rotator
	metrics *monitoring.Metrics
	sink    errorSink
	retry   scrapeerrors.BackoffPolicy
	timeout time.Duration
	slots   chan struct{}

	newClient func(p *proxy.Proxy) *http.Client
}

func newFetcher(cfg config.EngineConfig, limiter *ratelimit.Limiter, proxies *proxy.Manager, rotator *useragent.Rotator, metrics *monitoring.Metrics, sink errorSink) *fetcher {
	width := cfg.MaxConcurrentRequests
	if width < 1 {
		width = 1
	}
	f := &fetcher{
		limiter: limiter,
		proxies: proxies,
		rotator: rotator,
		metrics: metrics,
		sink:    sink,
		retry:   cfg.Retry,
		timeout: cfg.RequestTimeout,
		slots:   make(chan struct{}, width),
	}
	f.newClient = f.httpClient
	return f
}

func (f *fetcher) httpClient(p *proxy.Proxy) *http.Client {
	transport := &http.Transport{
		MaxIdleConnsPerHost: 4,
	}
	if p != nil {
		transport.Proxy = http.ProxyURL(p.URL)
	}
	return &http.Client{Transport: transport, Timeout: f.timeout}
}

// Fetch implements platform.Fetcher.
func (f *fetcher) Fetch(ctx context.Context, platform types.Platform, endpoint string, req *http.Request) (*http.Response, error) {
	var resp *http.Response
	var current *proxy.Proxy
	rotated := false

	err := scrapeerrors.Retry(ctx, f.retry, func() error {
		current = f.proxies.Acquire(platform)

		key := ratelimit.Key{Platform: platform, Proxy: proxyKey(current), Endpoint: endpoint}
		waitStart := time.Now()
		if err := f.limiter.Wait(ctx, key); err != nil {
			return scrapeerrors.Wrap(scrapeerrors.TypeFatal, "rate limiter", err)
		}
		if waited := time.Since(waitStart); waited > time.Millisecond {
			f.metrics.ObserveRateLimitWait(platform, waited)
		}

		attempt := req.Clone(ctx)
		attempt.Header.Set("User-Agent", f.rotator.Next())

		select {
		case f.slots <- struct{}{}:
		case <-ctx.Done():
			return scrapeerrors.Wrap(scrapeerrors.TypeFatal, "request slot", ctx.Err())
		}
		start := time.Now()
		r, err := f.newClient(current).Do(attempt)
		elapsed := time.Since(start)
		<-f.slots

		if err != nil {
			classified := scrapeerrors.Classify(err, 0)
			f.recordAttempt(classified)
			f.report(platform, current, classified, &rotated)
			f.metrics.ObserveRequestError(platform, string(scrapeerrors.TypeOf(classified)))
			return classified
		}

		f.metrics.ObserveRequest(platform, endpoint, fmt.Sprint(r.StatusCode), elapsed)

		if r.StatusCode >= 400 {
			r.Body.Close()
			classified := scrapeerrors.Classify(
				fmt.Errorf("%s returned %s", endpoint, r.Status), r.StatusCode)
			f.recordAttempt(classified)
			f.report(platform, current, classified, &rotated)
			f.metrics.ObserveRequestError(platform, string(scrapeerrors.TypeOf(classified)))
			return classified
		}

		f.proxies.Report(current, proxy.Outcome{Success: true})
		resp = r
		return nil
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// recordAttempt persists a failed attempt before the retry loop sees
// it, so the record survives even when a later attempt succeeds.
func (f *fetcher) recordAttempt(err error) {
	if f.sink == nil {
		return
	}
	errType, message, code, errCtx := scrapeerrors.Record(err)
	rec := &types.ErrorRecord{
		Type:       errType,
		Message:    message,
		Code:       code,
		Context:    errCtx,
		OccurredAt: time.Now().UTC(),
	}
	if saveErr := f.sink.SaveError(rec); saveErr != nil {
		logger.WithError(saveErr).Warn("could not persist request error")
	}
}

// report pushes the outcome to the pool. Rate-limit and block responses
// penalize the proxy so the next attempt rotates away from it.
func (f *fetcher) report(platform types.Platform, p *proxy.Proxy, err error, rotated *bool) {
	if p == nil {
		return
	}
	if scrapeerrors.PenalizesProxy(err) {
		f.proxies.Report(p, proxy.Outcome{Success: false, Reason: string(scrapeerrors.TypeOf(err))})
		if !*rotated {
			*rotated = true
			f.metrics.ObserveProxyFailover(platform)
		}
	}
}

func proxyKey(p *proxy.Proxy) string {
	if p == nil {
		return "direct"
	}
	return p.Raw
}
