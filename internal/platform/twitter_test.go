// internal/platform/twitter_test.go
package platform

import (
	"context"
	"io"
	"net/http"
	"strings"
	"sync"
	"testing"

	"github.com/valpere/SocialScrapexter/internal/config"
	scrapeerrors "github.com/valpere/SocialScrapexter/internal/errors"
	"github.com/valpere/SocialScrapexter/pkg/types"
)

// scriptedFetcher replays canned bodies keyed by endpoint, in order. The
// adapter fetches profile and timeline concurrently, so access is locked.
type scriptedFetcher struct {
	mu        sync.Mutex
	responses map[string][]string
	calls     map[string]int
}

func newScriptedFetcher() *scriptedFetcher {
	return &scriptedFetcher{
		responses: make(map[string][]string),
		calls:     make(map[string]int),
	}
}

func (f *scriptedFetcher) add(endpoint string, bodies ...string) {
	f.responses[endpoint] = append(f.responses[endpoint], bodies...)
}

func (f *scriptedFetcher) Fetch(ctx context.Context, platform types.Platform, endpoint string, req *http.Request) (*http.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := f.calls[endpoint]
	f.calls[endpoint] = n + 1

	bodies := f.responses[endpoint]
	if n >= len(bodies) {
		return nil, scrapeerrors.New(scrapeerrors.TypeNetwork, "no scripted response for "+endpoint)
	}
	return &http.Response{
		StatusCode: http.StatusOK,
		Body:       io.NopCloser(strings.NewReader(bodies[n])),
		Header:     http.Header{"Content-Type": []string{"application/json"}},
	}, nil
}

func twitterTestConfig() config.PlatformConfig {
	return config.PlatformConfig{
		DisplayName: "Twitter/X",
		BaseURL:     "https://twitter.com",
		APIURL:      "https://api.twitter.com",
		Active:      true,
	}
}

const profilePage = `<html><head>
<meta property="og:title" content="Jane Doe (@jdoe)" />
</head><body>
<script>window.__INITIAL_STATE__ = {"user":{"userInfo":{"screen_name":"jdoe","name":"Jane Doe","verified":true}}};</script>
</body></html>`

func collect(t *testing.T, ch <-chan Result) (drafts []Draft, errs []error) {
	t.Helper()
	for res := range ch {
		if res.Err != nil {
			errs = append(errs, res.Err)
			continue
		}
		drafts = append(drafts, res.Draft)
	}
	return drafts, errs
}

func TestScrapeUserPaginatesUntilLimit(t *testing.T) {
	fetcher := newScriptedFetcher()
	fetcher.add("user_profile", profilePage)
	fetcher.add("user_tweets",
		`{"data":[
			{"id":"1","text":"first #go","author_id":"9","created_at":"2025-06-01T10:00:00Z","public_metrics":{"like_count":5,"reply_count":1,"retweet_count":2,"impression_count":100}},
			{"id":"2","text":"second","author_id":"9","created_at":"2025-06-01T11:00:00Z","public_metrics":{}}
		],"meta":{"next_token":"cur1"}}`,
		`{"data":[
			{"id":"3","text":"third","author_id":"9","created_at":"2025-06-01T12:00:00Z","public_metrics":{}}
		],"meta":{}}`,
	)

	a := NewTwitterAdapter(twitterTestConfig(), fetcher)
	ch, err := a.ScrapeUser(context.Background(), "@jdoe", 10)
	if err != nil {
		t.Fatalf("ScrapeUser: %v", err)
	}

	drafts, errs := collect(t, ch)
	if len(errs) != 0 {
		t.Fatalf("unexpected item errors: %v", errs)
	}
	if len(drafts) != 3 {
		t.Fatalf("got %d drafts, want 3", len(drafts))
	}

	first := drafts[0]
	if first["id"] != "1" || first["author"] != "jdoe" {
		t.Errorf("draft = %v", first)
	}
	if first["is_verified"] != true {
		t.Error("verified flag from profile not propagated")
	}
	if got := first["likes"].(int64); got != 5 {
		t.Errorf("likes = %d, want 5", got)
	}
	if tags, _ := first["hashtags"].([]string); len(tags) != 1 || tags[0] != "go" {
		t.Errorf("hashtags = %v", tags)
	}
	if fetcher.calls["user_tweets"] != 2 {
		t.Errorf("batch calls = %d, want 2", fetcher.calls["user_tweets"])
	}
}

func TestScrapeUserStopsAtLimit(t *testing.T) {
	fetcher := newScriptedFetcher()
	fetcher.add("user_profile", profilePage)
	fetcher.add("user_tweets",
		`{"data":[
			{"id":"1","text":"a"},{"id":"2","text":"b"},{"id":"3","text":"c"}
		],"meta":{"next_token":"more"}}`,
	)

	a := NewTwitterAdapter(twitterTestConfig(), fetcher)
	ch, err := a.ScrapeUser(context.Background(), "jdoe", 2)
	if err != nil {
		t.Fatal(err)
	}

	drafts, errs := collect(t, ch)
	if len(errs) != 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}
	if len(drafts) != 2 {
		t.Errorf("got %d drafts, want 2: limit must stop pagination", len(drafts))
	}
	if fetcher.calls["user_tweets"] != 1 {
		t.Errorf("batch calls = %d, want 1", fetcher.calls["user_tweets"])
	}
}

func TestMalformedTweetDoesNotSinkBatch(t *testing.T) {
	fetcher := newScriptedFetcher()
	fetcher.add("user_profile", profilePage)
	fetcher.add("user_tweets",
		`{"data":[
			{"id":"1","text":"good one"},
			{"id":"","text":""},
			{"id":"3","text":"another good one"}
		],"meta":{}}`,
	)

	a := NewTwitterAdapter(twitterTestConfig(), fetcher)
	ch, err := a.ScrapeUser(context.Background(), "jdoe", 10)
	if err != nil {
		t.Fatal(err)
	}

	drafts, errs := collect(t, ch)
	if len(drafts) != 2 {
		t.Errorf("got %d drafts, want 2", len(drafts))
	}
	if len(errs) != 1 {
		t.Fatalf("got %d item errors, want 1", len(errs))
	}
	if got := scrapeerrors.TypeOf(errs[0]); got != scrapeerrors.TypeParse {
		t.Errorf("error type = %s, want parse", got)
	}
}

func TestItemErrorsConsumeLimit(t *testing.T) {
	// A malformed item spends the limit like a parsed one, so a run can
	// never process more raw items than the limit allows.
	fetcher := newScriptedFetcher()
	fetcher.add("user_profile", profilePage)
	fetcher.add("user_tweets",
		`{"data":[
			{"id":"1","text":"good"},
			{"id":"","text":""},
			{"id":"3","text":"also good"},
			{"id":"4","text":"never reached"}
		],"meta":{"next_token":"more"}}`,
	)

	a := NewTwitterAdapter(twitterTestConfig(), fetcher)
	ch, err := a.ScrapeUser(context.Background(), "jdoe", 3)
	if err != nil {
		t.Fatal(err)
	}

	drafts, errs := collect(t, ch)
	if len(drafts) != 2 {
		t.Errorf("got %d drafts, want 2", len(drafts))
	}
	if len(errs) != 1 {
		t.Errorf("got %d item errors, want 1", len(errs))
	}
	if fetcher.calls["user_tweets"] != 1 {
		t.Errorf("batch calls = %d, want 1: limit was spent", fetcher.calls["user_tweets"])
	}
}

func TestScrapeUserContinuesWithoutProfile(t *testing.T) {
	fetcher := newScriptedFetcher()
	// No profile response scripted: the first fetch fails.
	fetcher.add("user_tweets", `{"data":[{"id":"1","text":"hi","author_id":"42"}],"meta":{}}`)

	a := NewTwitterAdapter(twitterTestConfig(), fetcher)
	ch, err := a.ScrapeUser(context.Background(), "jdoe", 5)
	if err != nil {
		t.Fatal(err)
	}

	drafts, errs := collect(t, ch)
	if len(errs) != 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}
	if len(drafts) != 1 {
		t.Fatalf("got %d drafts, want 1", len(drafts))
	}
	if drafts[0]["author"] != "jdoe" {
		t.Errorf("author = %v, want fallback to requested username", drafts[0]["author"])
	}
}

func TestScrapeHashtagUsesSearchEndpoint(t *testing.T) {
	fetcher := newScriptedFetcher()
	fetcher.add("search", `{"data":[{"id":"7","text":"tagged #news","author_id":"1"}],"meta":{}}`)

	a := NewTwitterAdapter(twitterTestConfig(), fetcher)
	ch, err := a.ScrapeHashtag(context.Background(), "#news", 5)
	if err != nil {
		t.Fatal(err)
	}

	drafts, _ := collect(t, ch)
	if len(drafts) != 1 {
		t.Fatalf("got %d drafts, want 1", len(drafts))
	}
	if drafts[0]["author"] != "user_1" {
		t.Errorf("author = %v, want synthetic user_1 for search results", drafts[0]["author"])
	}
}

func TestInvalidUsernameRejectedUpFront(t *testing.T) {
	a := NewTwitterAdapter(twitterTestConfig(), newScriptedFetcher())
	_, err := a.ScrapeUser(context.Background(), "not a valid user!", 5)
	if err == nil {
		t.Fatal("expected validation error")
	}
	if !scrapeerrors.IsFatal(err) {
		t.Errorf("invalid target should be fatal, got type %s", scrapeerrors.TypeOf(err))
	}
}

func TestStubAdapterRefusesEverything(t *testing.T) {
	s := NewStubAdapter(types.PlatformInstagram)
	if _, err := s.ScrapeUser(context.Background(), "someone", 1); err == nil {
		t.Error("stub ScrapeUser should fail")
	}
	if _, err := s.ScrapeHashtag(context.Background(), "tag", 1); err == nil {
		t.Error("stub ScrapeHashtag should fail")
	}
	if _, err := s.ScrapeKeyword(context.Background(), "word", 1); err == nil {
		t.Error("stub ScrapeKeyword should fail")
	}
}

func TestRegistryLookup(t *testing.T) {
	r := NewRegistry()
	r.Register(NewStubAdapter(types.PlatformInstagram))
	r.Register(NewTwitterAdapter(twitterTestConfig(), newScriptedFetcher()))

	a, err := r.Get(types.PlatformTwitter)
	if err != nil {
		t.Fatal(err)
	}
	if a.Platform() != types.PlatformTwitter {
		t.Errorf("Platform() = %s", a.Platform())
	}

	if _, err := r.Get(types.PlatformTikTok); err == nil {
		t.Error("expected error for unregistered platform")
	}

	got := r.Platforms()
	if len(got) != 2 || got[0] != types.PlatformInstagram || got[1] != types.PlatformTwitter {
		t.Errorf("Platforms() = %v", got)
	}
}
