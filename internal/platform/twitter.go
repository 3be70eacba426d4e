// internal/platform/twitter.go
package platform

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/valpere/SocialScrapexter/internal/config"
	scrapeerrors "github.com/valpere/SocialScrapexter/internal/errors"
	"github.com/valpere/SocialScrapexter/internal/utils"
	"github.com/valpere/SocialScrapexter/pkg/types"
)

var twitterLogger = utils.NewComponentLogger("twitter-adapter")

// initialStateRe locates the embedded state blob on profile pages.
var initialStateRe = regexp.MustCompile(`window\.__INITIAL_STATE__\s*=\s*(\{.*?\});`)

const twitterBatchSize = 100

// TwitterAdapter scrapes tweets through public JSON endpoints, with the
// profile page as the fallback source for author metadata.
type TwitterAdapter struct {
	cfg   config.PlatformConfig
	fetch Fetcher

	defaultHeaders http.Header
}

// NewTwitterAdapter wires a Twitter adapter against the shared fetcher.
func NewTwitterAdapter(cfg config.PlatformConfig, fetch Fetcher) *TwitterAdapter {
	h := http.Header{}
	h.Set("Accept", "application/json, text/plain, */*")
	h.Set("Accept-Language", "en-US,en;q=0.9")
	h.Set("DNT", "1")
	h.Set("Connection", "keep-alive")

	return &TwitterAdapter{cfg: cfg, fetch: fetch, defaultHeaders: h}
}

// Platform implements Adapter.
func (a *TwitterAdapter) Platform() types.Platform { return types.PlatformTwitter }

// twitterProfile is the subset of author metadata drafts carry.
type twitterProfile struct {
	Username    string
	DisplayName string
	Verified    bool
}

// ScrapeUser streams tweets from a user timeline, newest first. The
// profile request runs concurrently with the first timeline page; if the
// profile cannot be parsed the timeline is still scraped with a synthetic
// author.
func (a *TwitterAdapter) ScrapeUser(ctx context.Context, username string, limit int) (<-chan Result, error) {
	username = strings.TrimPrefix(username, "@")
	if err := utils.ValidateUsername(username, string(types.PlatformTwitter)); err != nil {
		return nil, scrapeerrors.New(scrapeerrors.TypeFatal, fmt.Sprintf("invalid twitter username %q", username))
	}

	profileCh := make(chan *twitterProfile, 1)
	go func() {
		profile, err := a.fetchProfile(ctx, username)
		if err != nil {
			twitterLogger.WithError(err).Warnf("profile fetch failed for %s, continuing without author metadata", username)
			profile = &twitterProfile{Username: username}
		}
		profileCh <- profile
	}()

	endpoint := fmt.Sprintf("%s/2/users/by/username/%s/tweets", a.cfg.APIURL, url.PathEscape(username))
	return a.stream(ctx, "user_tweets", endpoint, nil, profileCh, limit), nil
}

// ScrapeHashtag streams recent tweets carrying the hashtag.
func (a *TwitterAdapter) ScrapeHashtag(ctx context.Context, hashtag string, limit int) (<-chan Result, error) {
	hashtag = strings.TrimPrefix(hashtag, "#")
	if err := utils.ValidateHashtag(hashtag); err != nil {
		return nil, scrapeerrors.New(scrapeerrors.TypeFatal, fmt.Sprintf("invalid hashtag %q", hashtag))
	}
	return a.search(ctx, "#"+hashtag, limit)
}

// ScrapeKeyword streams recent tweets matching the keyword.
func (a *TwitterAdapter) ScrapeKeyword(ctx context.Context, keyword string, limit int) (<-chan Result, error) {
	if err := utils.ValidateKeyword(keyword); err != nil {
		return nil, scrapeerrors.New(scrapeerrors.TypeFatal, fmt.Sprintf("invalid keyword %q", keyword))
	}
	return a.search(ctx, keyword, limit)
}

func (a *TwitterAdapter) search(ctx context.Context, query string, limit int) (<-chan Result, error) {
	endpoint := a.cfg.APIURL + "/2/tweets/search/recent"
	params := url.Values{"query": {query}}
	// No profile channel: search results carry only the author id.
	return a.stream(ctx, "search", endpoint, params, nil, limit), nil
}

// twitterPage carries one fetched batch through the prefetch pipeline.
type twitterPage struct {
	batch []json.RawMessage
	next  string
	err   error
}

// stream drives cursor pagination and emits one Result per item. Every
// emitted item, draft or error, consumes the limit; a batch that fails to
// fetch terminates the stream with its error. The next page is requested
// while the current batch streams so a platform request stays in flight
// during downstream processing.
func (a *TwitterAdapter) stream(ctx context.Context, op, endpoint string, params url.Values, profileCh <-chan *twitterProfile, limit int) <-chan Result {
	out := make(chan Result)

	fetchPage := func(cursor string) chan twitterPage {
		ch := make(chan twitterPage, 1)
		go func() {
			batch, next, err := a.fetchBatch(ctx, op, endpoint, params, cursor)
			ch <- twitterPage{batch: batch, next: next, err: err}
		}()
		return ch
	}

	go func() {
		defer close(out)

		pending := fetchPage("")

		var profile *twitterProfile
		if profileCh != nil {
			select {
			case profile = <-profileCh:
			case <-ctx.Done():
				return
			}
		}

		emitted := 0
		for {
			page := <-pending
			if page.err != nil {
				select {
				case out <- Result{Err: page.err}:
				case <-ctx.Done():
				}
				return
			}
			if len(page.batch) == 0 {
				return
			}

			// The next page is only needed when this batch cannot
			// exhaust the limit.
			pending = nil
			if page.next != "" && emitted+len(page.batch) < limit {
				pending = fetchPage(page.next)
			}

			for _, raw := range page.batch {
				draft, err := a.processTweet(raw, profile)
				select {
				case out <- Result{Draft: draft, Err: err}:
				case <-ctx.Done():
					return
				}
				emitted++
				if emitted >= limit {
					return
				}
			}

			if pending == nil {
				return
			}
		}
	}()

	return out
}

// twitterBatch mirrors the relevant slice of the v2 response envelope.
type twitterBatch struct {
	Data []json.RawMessage `json:"data"`
	Meta struct {
		NextToken string `json:"next_token"`
	} `json:"meta"`
}

func (a *TwitterAdapter) fetchBatch(ctx context.Context, op, endpoint string, extra url.Values, cursor string) ([]json.RawMessage, string, error) {
	params := url.Values{
		"max_results":  {fmt.Sprint(twitterBatchSize)},
		"tweet.fields": {"created_at,public_metrics,entities,author_id,referenced_tweets"},
		"expansions":   {"author_id,referenced_tweets.id"},
	}
	for k, vs := range extra {
		params[k] = vs
	}
	if cursor != "" {
		params.Set("pagination_token", cursor)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint+"?"+params.Encode(), nil)
	if err != nil {
		return nil, "", scrapeerrors.Wrap(scrapeerrors.TypeFatal, "building tweet batch request", err)
	}
	req.Header = a.defaultHeaders.Clone()

	resp, err := a.fetch.Fetch(ctx, types.PlatformTwitter, op, req)
	if err != nil {
		return nil, "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", scrapeerrors.Wrap(scrapeerrors.TypeNetwork, "reading tweet batch", err)
	}

	var batch twitterBatch
	if err := json.Unmarshal(body, &batch); err != nil {
		return nil, "", scrapeerrors.Wrap(scrapeerrors.TypeParse, "decoding tweet batch", err)
	}
	return batch.Data, batch.Meta.NextToken, nil
}

// tweetPayload is one tweet object from the v2 API.
type tweetPayload struct {
	ID            string `json:"id"`
	Text          string `json:"text"`
	AuthorID      string `json:"author_id"`
	CreatedAt     string `json:"created_at"`
	PublicMetrics struct {
		LikeCount       int64 `json:"like_count"`
		ReplyCount      int64 `json:"reply_count"`
		RetweetCount    int64 `json:"retweet_count"`
		ImpressionCount int64 `json:"impression_count"`
	} `json:"public_metrics"`
	ReferencedTweets []struct {
		Type string `json:"type"`
		ID   string `json:"id"`
	} `json:"referenced_tweets"`
	Entities struct {
		URLs []struct {
			ExpandedURL string `json:"expanded_url"`
		} `json:"urls"`
	} `json:"entities"`
}

func (a *TwitterAdapter) processTweet(raw json.RawMessage, profile *twitterProfile) (Draft, error) {
	var t tweetPayload
	if err := json.Unmarshal(raw, &t); err != nil {
		return nil, scrapeerrors.Wrap(scrapeerrors.TypeParse, "decoding tweet", err)
	}
	if t.ID == "" || t.Text == "" {
		return nil, scrapeerrors.New(scrapeerrors.TypeParse, "tweet missing id or text")
	}

	author := ""
	verified := false
	if profile != nil {
		author = profile.Username
		verified = profile.Verified
	}
	if author == "" {
		author = "user_" + t.AuthorID
	}

	isRetweet := false
	isReply := false
	parentID := ""
	for _, ref := range t.ReferencedTweets {
		switch ref.Type {
		case "retweeted":
			isRetweet = true
		case "replied_to":
			isReply = true
		}
	}
	if len(t.ReferencedTweets) > 0 {
		parentID = t.ReferencedTweets[0].ID
	}

	mediaURLs := make([]string, 0, len(t.Entities.URLs))
	for _, u := range t.Entities.URLs {
		if u.ExpandedURL != "" {
			mediaURLs = append(mediaURLs, u.ExpandedURL)
		}
	}

	var rawData map[string]interface{}
	if err := json.Unmarshal(raw, &rawData); err != nil {
		rawData = map[string]interface{}{"payload": string(raw)}
	}

	return Draft{
		"id":             t.ID,
		"author":         author,
		"content":        utils.CleanText(t.Text),
		"timestamp":      t.CreatedAt,
		"likes":          t.PublicMetrics.LikeCount,
		"comments":       t.PublicMetrics.ReplyCount,
		"shares":         t.PublicMetrics.RetweetCount,
		"views":          t.PublicMetrics.ImpressionCount,
		"url":            fmt.Sprintf("%s/%s/status/%s", a.cfg.BaseURL, author, t.ID),
		"media_urls":     mediaURLs,
		"hashtags":       utils.ExtractHashtags(t.Text),
		"mentions":       utils.ExtractMentions(t.Text),
		"is_verified":    verified,
		"is_retweet":     isRetweet,
		"is_reply":       isReply,
		"parent_post_id": parentID,
		"raw_data":       rawData,
	}, nil
}

// fetchProfile loads the public profile page and digs author metadata out
// of the embedded state blob, falling back to OpenGraph tags.
func (a *TwitterAdapter) fetchProfile(ctx context.Context, username string) (*twitterProfile, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.cfg.BaseURL+"/"+url.PathEscape(username), nil)
	if err != nil {
		return nil, scrapeerrors.Wrap(scrapeerrors.TypeFatal, "building profile request", err)
	}
	req.Header = a.defaultHeaders.Clone()
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	resp, err := a.fetch.Fetch(ctx, types.PlatformTwitter, "user_profile", req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, scrapeerrors.Wrap(scrapeerrors.TypeParse, "parsing profile page", err)
	}

	profile := &twitterProfile{Username: username}

	doc.Find("script").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		m := initialStateRe.FindStringSubmatch(s.Text())
		if m == nil {
			return true
		}
		var state struct {
			User struct {
				UserInfo struct {
					ScreenName string `json:"screen_name"`
					Name       string `json:"name"`
					Verified   bool   `json:"verified"`
				} `json:"userInfo"`
			} `json:"user"`
		}
		if err := json.Unmarshal([]byte(m[1]), &state); err != nil {
			return true
		}
		if state.User.UserInfo.ScreenName != "" {
			profile.Username = state.User.UserInfo.ScreenName
		}
		profile.DisplayName = state.User.UserInfo.Name
		profile.Verified = state.User.UserInfo.Verified
		return false
	})

	if profile.DisplayName == "" {
		if title, ok := doc.Find(`meta[property="og:title"]`).Attr("content"); ok {
			profile.DisplayName = strings.TrimSpace(strings.SplitN(title, "(", 2)[0])
		}
	}

	return profile, nil
}
