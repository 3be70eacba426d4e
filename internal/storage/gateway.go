// internal/storage/gateway.go
package storage

import (
	"context"
	"time"

	"github.com/valpere/SocialScrapexter/internal/config"
	"github.com/valpere/SocialScrapexter/pkg/types"
)

// PostQuery filters gateway reads. Zero values mean "no filter".
type PostQuery struct {
	Platform types.Platform
	Author   string
	Since    time.Time
	Limit    int
}

// RateWindow is a persisted snapshot of one rate-limit lane, written so
// budgets survive a restart and show up in stats.
type RateWindow struct {
	Platform        types.Platform
	ProxyURL        string
	Endpoint        string
	RequestsMade    int
	RequestsAllowed int
	WindowStart     time.Time
	ResetTime       time.Time
}

// AuthorCount is one row of the stats author ranking.
type AuthorCount struct {
	Platform types.Platform
	Author   string
	Posts    int64
}

// ProxyState is the persisted form of one pool member.
type ProxyState struct {
	URL                 string
	Type                string
	Username            string
	Country             string
	Region              string
	Status              types.ProxyStatus
	SuccessCount        int64
	FailureCount        int64
	ConsecutiveFailures int
	LastResponseMS      int64
	UptimePercentage    float64
	LastChecked         time.Time
}

// FingerprintState is the persisted form of one user-agent fingerprint.
type FingerprintState struct {
	Fingerprint string
	Browser     string
	OS          string
	Device      string
	UsageCount  int64
	LastUsed    time.Time
	Active      bool
}

// Gateway is the single persistence surface. All writes are upserts keyed
// on the entity's natural key, so replays and re-scrapes are idempotent.
// SaveSession and SaveError take no context so the gateway doubles as the
// session tracker's sink.
type Gateway interface {
	// SavePost upserts on (platform, post_id). created reports whether
	// the post was new.
	SavePost(ctx context.Context, post *types.Post) (created bool, err error)
	SaveAuthor(ctx context.Context, author *types.Author) error
	SaveSession(s *types.Session) error
	SaveError(rec *types.ErrorRecord) error

	SaveProxyState(ctx context.Context, p *ProxyState) error
	SaveFingerprint(ctx context.Context, f *FingerprintState) error
	SaveRateWindow(ctx context.Context, w *RateWindow) error

	GetPosts(ctx context.Context, q PostQuery) ([]*types.Post, error)
	GetPost(ctx context.Context, platform types.Platform, postID string) (*types.Post, error)
	GetSessions(ctx context.Context, platform types.Platform, limit int) ([]types.Session, error)
	CountPostsByPlatform(ctx context.Context) (map[types.Platform]int64, error)
	TopAuthors(ctx context.Context, platform types.Platform, limit int) ([]AuthorCount, error)
	SearchPosts(ctx context.Context, query string, limit int) ([]*types.Post, error)

	UpsertAnalytics(ctx context.Context, date string, platform types.Platform, name string, value float64) error
	RollupDaily(ctx context.Context, day time.Time) error

	Capabilities() Capabilities
	Close() error
}

// Open builds the configured gateway, applies the schema, and attaches the
// optional Mongo archive.
func Open(ctx context.Context, cfg config.StorageConfig) (Gateway, error) {
	gw, err := openSQL(cfg)
	if err != nil {
		return nil, err
	}
	if cfg.Archive != nil {
		archive, err := newMongoArchive(ctx, *cfg.Archive)
		if err != nil {
			gw.Close()
			return nil, err
		}
		gw.archive = archive
	}
	return gw, nil
}
