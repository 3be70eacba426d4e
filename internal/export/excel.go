// internal/export/excel.go
package export

import (
	"fmt"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/valpere/SocialScrapexter/internal/utils"
	"github.com/valpere/SocialScrapexter/pkg/types"
)

const (
	excelSheetName = "Posts"
	// hard Excel limit for characters in one cell
	excelMaxCellLength = 32767
)

// excelWriter renders posts to a single-sheet workbook with a frozen
// header row and an auto filter.
type excelWriter struct{}

func (excelWriter) Write(posts []*types.Post, path string) error {
	f := excelize.NewFile()
	defer f.Close()

	index, err := f.NewSheet(excelSheetName)
	if err != nil {
		return fmt.Errorf("creating sheet: %w", err)
	}
	f.SetActiveSheet(index)
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return fmt.Errorf("removing default sheet: %w", err)
	}

	for col, name := range csvHeader {
		cell, err := excelize.CoordinatesToCellName(col+1, 1)
		if err != nil {
			return err
		}
		if err := f.SetCellValue(excelSheetName, cell, name); err != nil {
			return fmt.Errorf("writing header: %w", err)
		}
	}

	for i, p := range posts {
		published := ""
		if !p.PublishedAt.IsZero() {
			published = p.PublishedAt.UTC().Format(time.RFC3339)
		}
		values := []interface{}{
			string(p.Platform),
			p.ID,
			p.Author,
			utils.TruncateString(p.Content, excelMaxCellLength),
			p.URL,
			published,
			p.Likes,
			p.Comments,
			p.Shares,
			p.Views,
			p.EngagementScore,
			strings.Join(p.Hashtags, ","),
			strings.Join(p.Mentions, ","),
			p.IsVerified,
		}
		for col, v := range values {
			cell, err := excelize.CoordinatesToCellName(col+1, i+2)
			if err != nil {
				return err
			}
			if err := f.SetCellValue(excelSheetName, cell, v); err != nil {
				return fmt.Errorf("writing post %s: %w", p.NaturalKey(), err)
			}
		}
	}

	lastCell, err := excelize.CoordinatesToCellName(len(csvHeader), len(posts)+1)
	if err != nil {
		return err
	}
	if err := f.AutoFilter(excelSheetName, "A1:"+lastCell, nil); err != nil {
		return fmt.Errorf("setting auto filter: %w", err)
	}
	if err := f.SetPanes(excelSheetName, &excelize.Panes{
		Freeze: true, YSplit: 1, TopLeftCell: "A2", ActivePane: "bottomLeft",
	}); err != nil {
		return fmt.Errorf("freezing header: %w", err)
	}

	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("saving %s: %w", path, err)
	}
	return nil
}
