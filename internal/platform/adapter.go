// internal/platform/adapter.go
package platform

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"sync"

	"github.com/valpere/SocialScrapexter/pkg/types"
)

// Draft is a raw item emitted by an adapter before normalization. Keys
// follow the wire vocabulary (id, author, content, timestamp, likes,
// comments, shares, views, url, media_urls, hashtags, mentions,
// is_verified, is_retweet, is_reply, parent_post_id, raw_data).
type Draft map[string]interface{}

// Result carries either a draft or the error that prevented one item from
// being produced. Item-level errors never terminate the stream; the adapter
// keeps going so one malformed payload cannot sink a whole batch.
type Result struct {
	Draft Draft
	Err   error
}

// Fetcher executes one outbound request on behalf of an adapter. The
// implementation owns proxy selection, user-agent rotation, rate limiting
// and retries; adapters only build URLs and parse responses. endpoint names
// the logical operation (user_profile, user_tweets, search) so the limiter
// can budget them independently.
type Fetcher interface {
	Fetch(ctx context.Context, platform types.Platform, endpoint string, req *http.Request) (*http.Response, error)
}

// Adapter scrapes one platform. All three operations stream drafts until
// the limit is reached, the source is exhausted, or the context ends. The
// returned error covers setup only; per-item failures travel in Results.
type Adapter interface {
	Platform() types.Platform
	ScrapeUser(ctx context.Context, username string, limit int) (<-chan Result, error)
	ScrapeHashtag(ctx context.Context, hashtag string, limit int) (<-chan Result, error)
	ScrapeKeyword(ctx context.Context, keyword string, limit int) (<-chan Result, error)
}

// ErrNotSupported is returned by adapters whose platform integration is
// registered but not yet operational.
var ErrNotSupported = fmt.Errorf("platform: operation not supported")

// Registry maps platforms to their adapters.
type Registry struct {
	mu       sync.RWMutex
	adapters map[types.Platform]Adapter
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{adapters: make(map[types.Platform]Adapter)}
}

// Register installs an adapter, replacing any previous one for the same
// platform.
func (r *Registry) Register(a Adapter) {
	r.mu.Lock()
	r.adapters[a.Platform()] = a
	r.mu.Unlock()
}

// Get returns the adapter for a platform.
func (r *Registry) Get(platform types.Platform) (Adapter, error) {
	r.mu.RLock()
	a, ok := r.adapters[platform]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("platform: no adapter registered for %q", platform)
	}
	return a, nil
}

// Platforms lists the registered platforms in stable order.
func (r *Registry) Platforms() []types.Platform {
	r.mu.RLock()
	out := make([]types.Platform, 0, len(r.adapters))
	for p := range r.adapters {
		out = append(out, p)
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
