// internal/export/csv.go
package export

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/valpere/SocialScrapexter/pkg/types"
)

var csvHeader = []string{
	"platform", "post_id", "author", "content", "url",
	"published_at", "likes", "comments", "shares", "views",
	"engagement_score", "hashtags", "mentions", "is_verified",
}

// csvWriter renders posts as one flat row each. Multi-valued fields are
// joined with commas inside the cell.
type csvWriter struct{}

func (csvWriter) Write(posts []*types.Post, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(csvHeader); err != nil {
		return fmt.Errorf("writing header: %w", err)
	}

	for _, p := range posts {
		published := ""
		if !p.PublishedAt.IsZero() {
			published = p.PublishedAt.UTC().Format(time.RFC3339)
		}
		row := []string{
			string(p.Platform),
			p.ID,
			p.Author,
			p.Content,
			p.URL,
			published,
			strconv.FormatInt(p.Likes, 10),
			strconv.FormatInt(p.Comments, 10),
			strconv.FormatInt(p.Shares, 10),
			strconv.FormatInt(p.Views, 10),
			strconv.FormatFloat(p.EngagementScore, 'f', 2, 64),
			strings.Join(p.Hashtags, ","),
			strings.Join(p.Mentions, ","),
			strconv.FormatBool(p.IsVerified),
		}
		if err := w.Write(row); err != nil {
			return fmt.Errorf("writing post %s: %w", p.NaturalKey(), err)
		}
	}

	w.Flush()
	return w.Error()
}
