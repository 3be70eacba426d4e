// internal/scraper/engine.go

// Package scraper is the orchestration core: it owns the worker pool that
// drains adapter streams, applies the request discipline, and drives each
// session to a terminal state.
package scraper

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/valpere/SocialScrapexter/internal/config"
	scrapeerrors "github.com/valpere/SocialScrapexter/internal/errors"
	"github.com/valpere/SocialScrapexter/internal/monitoring"
	"github.com/valpere/SocialScrapexter/internal/normalize"
	"github.com/valpere/SocialScrapexter/internal/platform"
	"github.com/valpere/SocialScrapexter/internal/proxy"
	"github.com/valpere/SocialScrapexter/internal/ratelimit"
	"github.com/valpere/SocialScrapexter/internal/session"
	"github.com/valpere/SocialScrapexter/internal/storage"
	"github.com/valpere/SocialScrapexter/internal/useragent"
	"github.com/valpere/SocialScrapexter/internal/utils"
	"github.com/valpere/SocialScrapexter/pkg/types"
)

var logger = utils.NewComponentLogger("engine")

// Job describes one bounded collection run.
type Job struct {
	Platform   types.Platform
	TargetType types.TargetType
	Target     string
	Limit      int
}

// Engine wires every component together and runs jobs to completion.
type Engine struct {
	cfg        *config.Config
	registry   *platform.Registry
	limiter    *ratelimit.Limiter
	proxies    *proxy.Manager
	rotator    *useragent.Rotator
	normalizer *normalize.Normalizer
	gateway    storage.Gateway
	metrics    *monitoring.Metrics
	fetch      platform.Fetcher
}

// New assembles an engine from configuration. Active platforms with
// an operational adapter get the real one; the rest get stubs so lookups
// stay deterministic.
func New(cfg *config.Config, gateway storage.Gateway, metrics *monitoring.Metrics) *Engine {
	limiter := ratelimit.NewLimiter(cfg.Platforms)
	proxies := proxy.NewManager(cfg.Proxies)
	rotator := useragent.NewRotator(cfg.UserAgents)

	e := &Engine{
		cfg:        cfg,
		registry:   platform.NewRegistry(),
		limiter:    limiter,
		proxies:    proxies,
		rotator:    rotator,
		normalizer: normalize.New(cfg.Platforms),
		gateway:    gateway,
		metrics:    metrics,
	}
	e.fetch = newFetcher(cfg.Engine, limiter, proxies, rotator, metrics, gateway)

	for name := range cfg.Platforms {
		p := types.Platform(name)
		switch p {
		case types.PlatformTwitter:
			if pc, ok := cfg.PlatformFor(p); ok {
				e.registry.Register(platform.NewTwitterAdapter(pc, e.fetch))
				continue
			}
			e.registry.Register(platform.NewStubAdapter(p))
		default:
			e.registry.Register(platform.NewStubAdapter(p))
		}
	}

	return e
}

// Start launches background services (proxy health checks).
func (e *Engine) Start() {
	if e.cfg.Proxies.Enabled {
		e.proxies.Start()
	}
}

// Stop halts background services and flushes component state.
func (e *Engine) Stop(ctx context.Context) {
	e.proxies.Stop()
	e.flushState(ctx)
}

// Run executes one job to a terminal session state and returns the final
// session. The returned error is non-nil only when the session could not
// even be opened; scrape failures are reported through the session status.
func (e *Engine) Run(ctx context.Context, job Job) (types.Session, error) {
	if !job.Platform.IsValid() {
		return types.Session{}, fmt.Errorf("unknown platform %q", job.Platform)
	}
	if _, ok := e.cfg.PlatformFor(job.Platform); !ok {
		return types.Session{}, fmt.Errorf("platform %q is not active in configuration", job.Platform)
	}
	if job.Limit <= 0 {
		job.Limit = 100
	}

	tracker, err := session.Start(e.gateway, job.Platform, job.TargetType, job.Target, map[string]interface{}{
		"limit": job.Limit,
	})
	if err != nil {
		return types.Session{}, err
	}
	e.metrics.SessionStarted()

	e.collect(ctx, tracker, job)

	final := tracker.Snapshot()
	e.metrics.SessionFinished(job.Platform, final.Status)
	e.flushState(context.WithoutCancel(ctx))

	return final, nil
}

// collect drains the adapter stream through the worker pool and finalizes
// the session. It never returns an error; every outcome is a session state.
func (e *Engine) collect(ctx context.Context, tracker *session.Tracker, job Job) {
	adapter, err := e.registry.Get(job.Platform)
	if err != nil {
		_ = tracker.Fail(err)
		return
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var stream <-chan platform.Result
	switch job.TargetType {
	case types.TargetUser:
		stream, err = adapter.ScrapeUser(runCtx, job.Target, job.Limit)
	case types.TargetHashtag:
		stream, err = adapter.ScrapeHashtag(runCtx, job.Target, job.Limit)
	case types.TargetKeyword:
		stream, err = adapter.ScrapeKeyword(runCtx, job.Target, job.Limit)
	default:
		err = fmt.Errorf("unknown target type %q", job.TargetType)
	}
	if err != nil {
		_ = tracker.Fail(err)
		return
	}

	workers := e.cfg.Engine.MaxConcurrentRequests
	if workers <= 0 {
		workers = 1
	}

	var fatalOnce sync.Once
	var fatalErr error
	abort := func(err error) {
		fatalOnce.Do(func() {
			fatalErr = err
			cancel()
		})
	}

	var wg sync.WaitGroup
	seenAuthors := &sync.Map{}
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for res := range stream {
				e.handleResult(runCtx, tracker, job, res, seenAuthors, abort)
				select {
				case <-runCtx.Done():
					return
				default:
				}
			}
		}()
	}
	wg.Wait()

	switch {
	case fatalErr != nil:
		_ = tracker.Fail(fatalErr)
	case ctx.Err() != nil:
		_ = tracker.Cancel()
	default:
		_ = tracker.Complete()
	}
}

// handleResult processes one stream item: failures are recorded durably,
// successes are normalized, deduplicated and stored. A fatal error aborts
// the whole run; anything else is contained to the item.
func (e *Engine) handleResult(ctx context.Context, tracker *session.Tracker, job Job, res platform.Result, seenAuthors *sync.Map, abort func(error)) {
	if res.Err != nil {
		tracker.RecordFailure(res.Err)
		e.metrics.ObserveItemError(job.Platform, string(scrapeerrors.TypeOf(res.Err)))
		if scrapeerrors.IsFatal(res.Err) {
			abort(res.Err)
		}
		return
	}

	post, err := e.normalizer.Post(job.Platform, res.Draft)
	if err != nil {
		tracker.RecordFailure(err)
		e.metrics.ObserveItemError(job.Platform, string(scrapeerrors.TypeOf(err)))
		return
	}

	// Re-scrapes merge with the stored row so a draft that arrived
	// without a raw payload cannot clobber the archived one.
	if existing, getErr := e.gateway.GetPost(ctx, job.Platform, post.ID); getErr == nil && existing != nil {
		post = e.normalizer.Merge(existing, post)
	}

	created, err := e.gateway.SavePost(ctx, post)
	if err != nil {
		wrapped := scrapeerrors.Wrap(scrapeerrors.TypeFatal, "storage write", err)
		tracker.RecordFailure(wrapped)
		abort(wrapped)
		return
	}

	tracker.RecordSuccess()
	e.metrics.ObservePostStored(job.Platform, created)

	if post.Author != "" {
		if _, dup := seenAuthors.LoadOrStore(post.Author, struct{}{}); !dup {
			author := &types.Author{
				Platform:   job.Platform,
				UserID:     post.Author,
				Username:   post.Author,
				IsVerified: post.IsVerified,
			}
			if err := e.gateway.SaveAuthor(ctx, author); err != nil {
				logger.WithError(err).Warnf("could not save author %s", post.Author)
			}
		}
	}
}

// flushState persists proxy, fingerprint and rate-window state so the next
// process starts from live data instead of defaults.
func (e *Engine) flushState(ctx context.Context) {
	stats := e.proxies.Stats()
	e.metrics.SetProxyPool("active", stats.Active)
	e.metrics.SetProxyPool("testing", stats.Testing)
	e.metrics.SetProxyPool("failed", stats.Failed)
	e.metrics.SetProxyPool("inactive", stats.Inactive)

	for _, snap := range stats.Proxies {
		state := &storage.ProxyState{
			URL:                 snap.URL,
			Type:                snap.Type,
			Country:             snap.Country,
			Region:              snap.Region,
			Status:              snap.Status,
			SuccessCount:        snap.SuccessCount,
			FailureCount:        snap.FailureCount,
			ConsecutiveFailures: snap.ConsecutiveFailures,
			LastResponseMS:      snap.LastResponseTime.Milliseconds(),
			UptimePercentage:    snap.UptimePercentage,
			LastChecked:         snap.LastChecked,
		}
		if err := e.gateway.SaveProxyState(ctx, state); err != nil {
			logger.WithError(err).Warn("could not persist proxy state")
		}
	}

	for _, fp := range e.rotator.Stats() {
		state := &storage.FingerprintState{
			Fingerprint: fp.Value,
			Browser:     fp.Browser,
			OS:          fp.OS,
			Device:      fp.Device,
			UsageCount:  fp.UsageCount,
			LastUsed:    fp.LastUsed,
			Active:      fp.Active,
		}
		if err := e.gateway.SaveFingerprint(ctx, state); err != nil {
			logger.WithError(err).Warn("could not persist fingerprint state")
		}
	}

	for _, lane := range e.limiter.Snapshot() {
		proxyURL := lane.Key.Proxy
		if proxyURL == "direct" {
			proxyURL = ""
		}
		w := &storage.RateWindow{
			Platform:        lane.Key.Platform,
			ProxyURL:        proxyURL,
			Endpoint:        lane.Key.Endpoint,
			RequestsMade:    lane.MinuteUsed,
			RequestsAllowed: lane.MinuteBudget,
			WindowStart:     lane.MinuteStart,
			ResetTime:       lane.MinuteStart.Add(time.Minute),
		}
		if err := e.gateway.SaveRateWindow(ctx, w); err != nil {
			logger.WithError(err).Warn("could not persist rate window")
		}
	}
}

// ProxyStats exposes pool state for the stats command.
func (e *Engine) ProxyStats() proxy.PoolStats { return e.proxies.Stats() }
