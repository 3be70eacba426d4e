// internal/export/export_test.go
package export

import (
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/valpere/SocialScrapexter/pkg/types"
)

func samplePosts() []*types.Post {
	return []*types.Post{
		{
			ID:              "1001",
			Platform:        types.PlatformTwitter,
			Author:          "jdoe",
			Content:         "shipping the new collector",
			PublishedAt:     time.Date(2025, 3, 14, 9, 30, 0, 0, time.UTC),
			Likes:           42,
			Comments:        7,
			Shares:          3,
			Views:           1200,
			URL:             "https://twitter.com/jdoe/status/1001",
			Hashtags:        []string{"golang", "scraping"},
			Mentions:        []string{"alice"},
			IsVerified:      true,
			EngagementScore: 68.5,
		},
		{
			ID:          "1002",
			Platform:    types.PlatformTwitter,
			Author:      "jdoe",
			Content:     "quiet day, no metrics",
			PublishedAt: time.Date(2025, 3, 15, 11, 0, 0, 0, time.UTC),
		},
	}
}

func TestExportJSONRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.json")
	require.NoError(t, Export(samplePosts(), types.FormatJSON, path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var decoded []*types.Post
	require.NoError(t, json.Unmarshal(data, &decoded))
	require.Len(t, decoded, 2)
	assert.Equal(t, "1001", decoded[0].ID)
	assert.Equal(t, int64(42), decoded[0].Likes)
	assert.Equal(t, []string{"golang", "scraping"}, decoded[0].Hashtags)
}

func TestExportCSVRows(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.csv")
	require.NoError(t, Export(samplePosts(), types.FormatCSV, path))

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3)

	assert.Equal(t, csvHeader, rows[0])
	assert.Equal(t, "twitter", rows[1][0])
	assert.Equal(t, "1001", rows[1][1])
	assert.Equal(t, "2025-03-14T09:30:00Z", rows[1][5])
	assert.Equal(t, "golang,scraping", rows[1][11])
	assert.Equal(t, "true", rows[1][13])
}

func TestExportExcelReadBack(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.xlsx")
	require.NoError(t, Export(samplePosts(), types.FormatExcel, path))

	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows(excelSheetName)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, "platform", rows[0][0])
	assert.Equal(t, "1001", rows[1][1])
	assert.Equal(t, "shipping the new collector", rows[1][3])
}

func TestExportCreatesOutputDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "deep", "out.json")
	require.NoError(t, Export(samplePosts(), types.FormatJSON, path))

	_, err := os.Stat(path)
	assert.NoError(t, err)
}

func TestExportUnsupportedFormat(t *testing.T) {
	err := Export(nil, types.OutputFormat("parquet"), "out.parquet")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported format")
}

func TestDefaultPathExtensions(t *testing.T) {
	tests := []struct {
		format types.OutputFormat
		ext    string
	}{
		{types.FormatJSON, ".json"},
		{types.FormatCSV, ".csv"},
		{types.FormatExcel, ".xlsx"},
	}
	for _, tt := range tests {
		path := DefaultPath("exports", tt.format)
		assert.True(t, strings.HasPrefix(path, "exports"+string(os.PathSeparator)+"posts_"), path)
		assert.True(t, strings.HasSuffix(path, tt.ext), path)
	}
}
