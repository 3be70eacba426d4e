// internal/normalize/normalizer.go
package normalize

import (
	"fmt"
	"time"

	"golang.org/x/text/cases"

	"github.com/valpere/SocialScrapexter/internal/config"
	scrapeerrors "github.com/valpere/SocialScrapexter/internal/errors"
	"github.com/valpere/SocialScrapexter/internal/platform"
	"github.com/valpere/SocialScrapexter/internal/utils"
	"github.com/valpere/SocialScrapexter/pkg/types"
)

// Normalizer converts adapter drafts into canonical posts. Conversion is
// deterministic: the same draft and weights always produce the same post,
// apart from the scraped-at stamp.
type Normalizer struct {
	weights map[types.Platform]config.EngagementWeights
	folder  cases.Caser
	now     func() time.Time
}

// New builds a normalizer with per-platform engagement weights.
func New(platforms map[string]config.PlatformConfig) *Normalizer {
	weights := make(map[types.Platform]config.EngagementWeights, len(platforms))
	for name, pc := range platforms {
		weights[types.Platform(name)] = pc.EngagementWeights
	}
	return &Normalizer{
		weights: weights,
		folder:  cases.Fold(),
		now:     time.Now,
	}
}

// Post converts one draft. A draft without an id or content is rejected as
// a parse error so the caller can record it against the session.
func (n *Normalizer) Post(p types.Platform, draft platform.Draft) (*types.Post, error) {
	id := stringField(draft, "id")
	content := stringField(draft, "content")
	if id == "" {
		return nil, scrapeerrors.New(scrapeerrors.TypeParse, "draft missing post id")
	}
	if content == "" {
		return nil, scrapeerrors.New(scrapeerrors.TypeParse, fmt.Sprintf("draft %s has no content", id))
	}

	post := &types.Post{
		ID:           id,
		Platform:     p,
		Author:       stringField(draft, "author"),
		Content:      utils.CleanText(content),
		PublishedAt:  n.publishedAt(draft),
		ScrapedAt:    n.now().UTC(),
		Likes:        countField(draft, "likes"),
		Comments:     countField(draft, "comments"),
		Shares:       countField(draft, "shares"),
		Views:        countField(draft, "views"),
		URL:          stringField(draft, "url"),
		MediaURLs:    stringSliceField(draft, "media_urls"),
		Hashtags:     n.dedupeFolded(stringSliceField(draft, "hashtags")),
		Mentions:     n.dedupeFolded(stringSliceField(draft, "mentions")),
		IsVerified:   boolField(draft, "is_verified"),
		IsRetweet:    boolField(draft, "is_retweet"),
		IsReply:      boolField(draft, "is_reply"),
		ParentPostID: stringField(draft, "parent_post_id"),
	}

	if raw, ok := draft["raw_data"].(map[string]interface{}); ok {
		post.RawData = raw
	}

	post.EngagementScore = n.Score(p, post)
	return post, nil
}

// Score computes the weighted engagement score for a post. Platforms
// without configured weights score zero.
func (n *Normalizer) Score(p types.Platform, post *types.Post) float64 {
	w, ok := n.weights[p]
	if !ok {
		return 0
	}
	return w.Likes*float64(post.Likes) +
		w.Comments*float64(post.Comments) +
		w.Shares*float64(post.Shares) +
		w.Views*float64(post.Views)
}

// Merge resolves a re-scrape of an existing post. The fresh copy wins on
// every field and refreshes the scraped-at stamp; counts, content and flags
// all track the platform's current state. Raw payloads from the earlier
// scrape are kept when the fresh draft carried none.
func (n *Normalizer) Merge(existing, fresh *types.Post) *types.Post {
	merged := *fresh
	if merged.RawData == nil {
		merged.RawData = existing.RawData
	}
	return &merged
}

func (n *Normalizer) publishedAt(draft platform.Draft) time.Time {
	switch v := draft["timestamp"].(type) {
	case time.Time:
		return v.UTC()
	case string:
		if t := utils.ParseDate(v); !t.IsZero() {
			return t.UTC()
		}
	case int64:
		return utils.ParseDate(fmt.Sprint(v)).UTC()
	case float64:
		return utils.ParseDate(fmt.Sprintf("%.0f", v)).UTC()
	}
	return time.Time{}
}

// dedupeFolded removes case-insensitive duplicates, keeping the first
// occurrence's original casing and order.
func (n *Normalizer) dedupeFolded(items []string) []string {
	if len(items) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(items))
	out := make([]string, 0, len(items))
	for _, item := range items {
		key := n.folder.String(item)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, item)
	}
	return out
}

func stringField(draft platform.Draft, key string) string {
	switch v := draft[key].(type) {
	case string:
		return v
	case fmt.Stringer:
		return v.String()
	}
	return ""
}

// countField coerces engagement counts. Missing values are zero; negative
// values from buggy endpoints are clamped to zero rather than poisoning
// scores.
func countField(draft platform.Draft, key string) int64 {
	var n int64
	switch v := draft[key].(type) {
	case int64:
		n = v
	case int:
		n = int64(v)
	case float64:
		n = int64(v)
	case string:
		n = utils.ParseCompactNumber(v)
	}
	if n < 0 {
		return 0
	}
	return n
}

func boolField(draft platform.Draft, key string) bool {
	b, _ := draft[key].(bool)
	return b
}

func stringSliceField(draft platform.Draft, key string) []string {
	switch v := draft[key].(type) {
	case []string:
		return v
	case []interface{}:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}
