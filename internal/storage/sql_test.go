// internal/storage/sql_test.go
package storage

import (
	"context"
	"path/filepath"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/valpere/SocialScrapexter/internal/config"
	"github.com/valpere/SocialScrapexter/pkg/types"
)

func openTestGateway(t *testing.T) Gateway {
	t.Helper()
	gw, err := Open(context.Background(), config.StorageConfig{
		Backend: "sqlite",
		DSN:     filepath.Join(t.TempDir(), "test.db"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { gw.Close() })
	return gw
}

func samplePost(id string) *types.Post {
	return &types.Post{
		ID:              id,
		Platform:        types.PlatformTwitter,
		Author:          "jdoe",
		Content:         "hello world #go",
		PublishedAt:     time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC),
		ScrapedAt:       time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
		Likes:           10,
		Comments:        2,
		Shares:          1,
		URL:             "https://twitter.com/jdoe/status/" + id,
		Hashtags:        []string{"go"},
		EngagementScore: 17,
		RawData:         map[string]interface{}{"id": id},
	}
}

func TestSavePostAndReadBack(t *testing.T) {
	gw := openTestGateway(t)
	ctx := context.Background()

	created, err := gw.SavePost(ctx, samplePost("100"))
	require.NoError(t, err)
	assert.True(t, created)

	got, err := gw.GetPost(ctx, types.PlatformTwitter, "100")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "jdoe", got.Author)
	assert.Equal(t, int64(10), got.Likes)
	assert.Equal(t, []string{"go"}, got.Hashtags)
	assert.Equal(t, 17.0, got.EngagementScore)
}

func TestSavePostDedupIdempotence(t *testing.T) {
	gw := openTestGateway(t)
	ctx := context.Background()

	created, err := gw.SavePost(ctx, samplePost("100"))
	require.NoError(t, err)
	assert.True(t, created)

	// Re-scrape with fresher counts: same identity, updated row.
	fresh := samplePost("100")
	fresh.Likes = 99
	created, err = gw.SavePost(ctx, fresh)
	require.NoError(t, err)
	assert.False(t, created, "second save of same (platform, post_id) must not create")

	posts, err := gw.GetPosts(ctx, PostQuery{Platform: types.PlatformTwitter})
	require.NoError(t, err)
	require.Len(t, posts, 1, "dedup key must keep exactly one row")
	assert.Equal(t, int64(99), posts[0].Likes, "fresh scrape wins")
}

func TestConcurrentSavesReportOneCreate(t *testing.T) {
	gw := openTestGateway(t)
	ctx := context.Background()

	const workers = 8
	var created int64
	errs := make(chan error, workers)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c, err := gw.SavePost(ctx, samplePost("555"))
			if err != nil {
				errs <- err
				return
			}
			if c {
				atomic.AddInt64(&created, 1)
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	assert.Equal(t, int64(1), created, "exactly one save may report creation")

	posts, err := gw.GetPosts(ctx, PostQuery{Platform: types.PlatformTwitter})
	require.NoError(t, err)
	assert.Len(t, posts, 1)
}

func TestInsertIgnoreRendering(t *testing.T) {
	insert := "INSERT INTO posts (a, b) VALUES (?, ?)"
	key := []string{"platform", "post_id"}

	assert.Equal(t, insert+" ON CONFLICT (platform, post_id) DO NOTHING",
		sqliteDialect{}.InsertIgnore(insert, key))
	assert.Equal(t, insert+" ON CONFLICT (platform, post_id) DO NOTHING",
		postgresDialect{}.InsertIgnore(insert, key))
	assert.Equal(t, "INSERT IGNORE INTO posts (a, b) VALUES (?, ?)",
		mysqlDialect{}.InsertIgnore(insert, key))
}

func TestSamePostIDAcrossPlatformsIsDistinct(t *testing.T) {
	gw := openTestGateway(t)
	ctx := context.Background()

	a := samplePost("7")
	b := samplePost("7")
	b.Platform = types.PlatformInstagram

	_, err := gw.SavePost(ctx, a)
	require.NoError(t, err)
	_, err = gw.SavePost(ctx, b)
	require.NoError(t, err)

	counts, err := gw.CountPostsByPlatform(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), counts[types.PlatformTwitter])
	assert.Equal(t, int64(1), counts[types.PlatformInstagram])
}

func TestGetPostsFilters(t *testing.T) {
	gw := openTestGateway(t)
	ctx := context.Background()

	old := samplePost("1")
	old.PublishedAt = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	recent := samplePost("2")
	other := samplePost("3")
	other.Author = "someone_else"

	for _, p := range []*types.Post{old, recent, other} {
		_, err := gw.SavePost(ctx, p)
		require.NoError(t, err)
	}

	posts, err := gw.GetPosts(ctx, PostQuery{
		Platform: types.PlatformTwitter,
		Author:   "jdoe",
		Since:    time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	require.Len(t, posts, 1)
	assert.Equal(t, "2", posts[0].ID)
}

func TestSaveAuthorUpsert(t *testing.T) {
	gw := openTestGateway(t)
	ctx := context.Background()

	author := &types.Author{
		Platform:       types.PlatformTwitter,
		UserID:         "42",
		Username:       "jdoe",
		DisplayName:    "Jane Doe",
		FollowersCount: 100,
	}
	require.NoError(t, gw.SaveAuthor(ctx, author))

	author.FollowersCount = 150
	require.NoError(t, gw.SaveAuthor(ctx, author), "re-save must upsert, not fail on unique key")
}

func TestSessionLifecyclePersistence(t *testing.T) {
	gw := openTestGateway(t)
	ctx := context.Background()

	s := &types.Session{
		SessionID:  "ses-1",
		Platform:   types.PlatformTwitter,
		TargetType: types.TargetUser,
		Target:     "jdoe",
		Status:     types.SessionActive,
		StartTime:  time.Now().UTC(),
	}
	require.NoError(t, gw.SaveSession(s))

	end := s.StartTime.Add(time.Minute)
	s.Status = types.SessionCompleted
	s.TotalPosts = 50
	s.SuccessfulPosts = 47
	s.FailedPosts = 3
	s.EndTime = &end
	s.Duration = time.Minute
	require.NoError(t, gw.SaveSession(s))

	sessions, err := gw.GetSessions(ctx, types.PlatformTwitter, 10)
	require.NoError(t, err)
	require.Len(t, sessions, 1, "same session_id must update in place")

	got := sessions[0]
	assert.Equal(t, types.SessionCompleted, got.Status)
	assert.Equal(t, int64(47), got.SuccessfulPosts)
	require.NotNil(t, got.EndTime)
	assert.Equal(t, time.Minute, got.Duration)
}

func TestSaveErrorAppendOnly(t *testing.T) {
	gw := openTestGateway(t)

	for i := 0; i < 3; i++ {
		require.NoError(t, gw.SaveError(&types.ErrorRecord{
			SessionID:  "ses-1",
			Type:       "network",
			Message:    "timeout",
			OccurredAt: time.Now().UTC(),
		}))
	}
}

func TestProxyAndFingerprintState(t *testing.T) {
	gw := openTestGateway(t)
	ctx := context.Background()

	p := &ProxyState{
		URL:              "http://10.0.0.1:8080",
		Type:             "http",
		Status:           types.ProxyActive,
		SuccessCount:     10,
		UptimePercentage: 92.5,
		LastChecked:      time.Now().UTC(),
	}
	require.NoError(t, gw.SaveProxyState(ctx, p))
	p.Status = types.ProxyFailed
	require.NoError(t, gw.SaveProxyState(ctx, p))

	f := &FingerprintState{
		Fingerprint: "Mozilla/5.0 test",
		Browser:     "chrome",
		OS:          "linux",
		Device:      "desktop",
		UsageCount:  3,
		LastUsed:    time.Now().UTC(),
		Active:      true,
	}
	require.NoError(t, gw.SaveFingerprint(ctx, f))
	f.UsageCount = 4
	require.NoError(t, gw.SaveFingerprint(ctx, f))
}

func TestRateWindowUpsert(t *testing.T) {
	gw := openTestGateway(t)
	ctx := context.Background()

	w := &RateWindow{
		Platform:        types.PlatformTwitter,
		ProxyURL:        "",
		Endpoint:        "user_tweets",
		RequestsMade:    5,
		RequestsAllowed: 15,
		WindowStart:     time.Now().UTC(),
		ResetTime:       time.Now().UTC().Add(time.Minute),
	}
	require.NoError(t, gw.SaveRateWindow(ctx, w))
	w.RequestsMade = 6
	require.NoError(t, gw.SaveRateWindow(ctx, w))
}

func TestSearchPosts(t *testing.T) {
	gw := openTestGateway(t)
	ctx := context.Background()

	p := samplePost("200")
	p.Content = "observability for distributed scrapers"
	_, err := gw.SavePost(ctx, p)
	require.NoError(t, err)

	posts, err := gw.SearchPosts(ctx, "observability", 10)
	require.NoError(t, err)
	require.Len(t, posts, 1)
	assert.Equal(t, "200", posts[0].ID)
}

func TestAnalyticsRollupIdempotent(t *testing.T) {
	gw := openTestGateway(t)
	ctx := context.Background()

	day := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	for _, id := range []string{"1", "2", "3"} {
		p := samplePost(id)
		p.ScrapedAt = day.Add(6 * time.Hour)
		_, err := gw.SavePost(ctx, p)
		require.NoError(t, err)
	}

	require.NoError(t, gw.RollupDaily(ctx, day))
	require.NoError(t, gw.RollupDaily(ctx, day), "re-running a day must overwrite, not duplicate")
}

func TestCapabilitiesReported(t *testing.T) {
	gw := openTestGateway(t)
	caps := gw.Capabilities()
	assert.False(t, caps.AuditTrail, "sqlite backend has no audit triggers")
}

func TestUnsupportedBackendRejected(t *testing.T) {
	_, err := Open(context.Background(), config.StorageConfig{Backend: "oracle", DSN: "x"})
	assert.Error(t, err)
}

func TestTopAuthorsRanking(t *testing.T) {
	gw := openTestGateway(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		p := samplePost(strconv.Itoa(100 + i))
		p.Author = "prolific"
		_, err := gw.SavePost(ctx, p)
		require.NoError(t, err)
	}
	single := samplePost("200")
	single.Author = "occasional"
	_, err := gw.SavePost(ctx, single)
	require.NoError(t, err)

	authors, err := gw.TopAuthors(ctx, "", 10)
	require.NoError(t, err)
	require.Len(t, authors, 2)
	assert.Equal(t, "prolific", authors[0].Author)
	assert.Equal(t, int64(3), authors[0].Posts)
	assert.Equal(t, "occasional", authors[1].Author)

	none, err := gw.TopAuthors(ctx, types.PlatformInstagram, 10)
	require.NoError(t, err)
	assert.Empty(t, none)
}
