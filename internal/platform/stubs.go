// internal/platform/stubs.go
package platform

import (
	"context"
	"fmt"

	"github.com/valpere/SocialScrapexter/pkg/types"
)

// stubAdapter registers a platform whose integration is planned but not
// yet operational. Every operation fails with ErrNotSupported so callers
// get a deterministic error instead of a missing-adapter lookup failure.
type stubAdapter struct {
	platform types.Platform
}

// NewStubAdapter returns a placeholder adapter for the platform.
func NewStubAdapter(platform types.Platform) Adapter {
	return &stubAdapter{platform: platform}
}

func (s *stubAdapter) Platform() types.Platform { return s.platform }

func (s *stubAdapter) ScrapeUser(ctx context.Context, username string, limit int) (<-chan Result, error) {
	return nil, s.err("user")
}

func (s *stubAdapter) ScrapeHashtag(ctx context.Context, hashtag string, limit int) (<-chan Result, error) {
	return nil, s.err("hashtag")
}

func (s *stubAdapter) ScrapeKeyword(ctx context.Context, keyword string, limit int) (<-chan Result, error) {
	return nil, s.err("keyword")
}

func (s *stubAdapter) err(op string) error {
	return fmt.Errorf("%w: %s scraping on %s", ErrNotSupported, op, s.platform)
}
