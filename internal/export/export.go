// internal/export/export.go

// Package export writes collected posts to files in the configured format.
package export

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/valpere/SocialScrapexter/internal/utils"
	"github.com/valpere/SocialScrapexter/pkg/types"
)

var logger = utils.NewComponentLogger("export")

// Writer renders a batch of posts to a file.
type Writer interface {
	Write(posts []*types.Post, path string) error
}

// NewWriter returns the writer for a format.
func NewWriter(format types.OutputFormat) (Writer, error) {
	switch format {
	case types.FormatJSON:
		return &jsonWriter{}, nil
	case types.FormatCSV:
		return &csvWriter{}, nil
	case types.FormatExcel:
		return &excelWriter{}, nil
	default:
		return nil, fmt.Errorf("export: unsupported format %q", format)
	}
}

// DefaultPath builds a timestamped file name under the output directory.
func DefaultPath(dir string, format types.OutputFormat) string {
	name := fmt.Sprintf("posts_%s%s",
		time.Now().UTC().Format("20060102_150405"),
		format.GetFileExtension())
	return filepath.Join(dir, name)
}

// Export writes posts with the format's writer, creating the target
// directory if needed.
func Export(posts []*types.Post, format types.OutputFormat, path string) error {
	w, err := NewWriter(format)
	if err != nil {
		return err
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating output directory: %w", err)
		}
	}
	if err := w.Write(posts, path); err != nil {
		return err
	}
	logger.Infof("exported %d posts to %s", len(posts), path)
	return nil
}
