// internal/export/json.go
package export

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/valpere/SocialScrapexter/pkg/types"
)

// jsonWriter renders posts as a pretty-printed JSON array in the canonical
// wire shape.
type jsonWriter struct{}

func (jsonWriter) Write(posts []*types.Post, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(posts); err != nil {
		return fmt.Errorf("encoding posts: %w", err)
	}
	return f.Sync()
}
