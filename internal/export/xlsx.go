// Package export renders a user's saved analyses as a spreadsheet.
package export

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"onboarding-backend/internal/analyses"
	"onboarding-backend/internal/shared/util"
)

// SheetName is the worksheet that holds the rows.
const SheetName = "Analyses"

// ContentType is the MIME type of WriteXLSX output.
const ContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

var header = []any{
	"ID", "Repository URL", "Repository", "Status", "Favorite",
	"Language", "Complexity", "Tokens", "Created", "Last accessed",
}

// WriteXLSX writes one row per record, in the given order, below a header row.
func WriteXLSX(w io.Writer, records []analyses.Record) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", SheetName); err != nil {
		return err
	}
	if err := f.SetSheetRow(SheetName, "A1", &header); err != nil {
		return err
	}
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return err
	}
	if err := f.SetRowStyle(SheetName, 1, 1, bold); err != nil {
		return err
	}
	if err := f.SetColWidth(SheetName, "A", "C", 40); err != nil {
		return err
	}

	for i, rec := range records {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		row := recordRow(rec)
		if err := f.SetSheetRow(SheetName, cell, &row); err != nil {
			return fmt.Errorf("write row for %s: %w", rec.ID, err)
		}
	}
	return f.Write(w)
}

func recordRow(rec analyses.Record) []any {
	md, _ := rec.Metadata.Get()
	row := []any{
		rec.ID,
		rec.RepoURL,
		rec.RepoName,
		rec.Status,
		yesNo(rec.IsFavorite),
		md.Language,
		md.Complexity,
		"",
		formatTime(rec.CreatedAt),
		formatTime(rec.LastAccessedAt),
	}
	if tu, ok := rec.TokenUsage.Get(); ok {
		row[7] = tu.TotalTokens
	}
	return row
}

func yesNo(v bool) string {
	if v {
		return "yes"
	}
	return "no"
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

// FileName builds the download name for a user's export.
func FileName(userID string, now time.Time) string {
	date := now.UTC().Format("20060102")
	name, err := util.SanitizeFileName(fmt.Sprintf("analyses-%s-%s.xlsx", strings.TrimSpace(userID), date))
	if err != nil || strings.TrimSpace(userID) == "" {
		return "analyses-" + date + ".xlsx"
	}
	return name
}
