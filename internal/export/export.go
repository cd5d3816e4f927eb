// Package export 将候选人列表导出为 XLSX。
package export

import (
	"fmt"
	"io"
	"strings"

	"github.com/xuri/excelize/v2"

	"hirelane/internal/database"
)

const sheetName = "Candidates"

var headers = []string{"Name", "Email", "Status", "AI Score", "AI Summary", "Tags", "Applied At"}

// Filename 返回导出文件名。
func Filename(job database.Job) string {
	return fmt.Sprintf("job-%d-candidates.xlsx", job.ID)
}

// WriteCandidates 把候选人写入一个工作表并输出到 w。
func WriteCandidates(w io.Writer, job database.Job, candidates []database.Candidate) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", sheetName); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}
	if err := f.SetDocProps(&excelize.DocProperties{Title: job.Title, Creator: "hirelane"}); err != nil {
		return fmt.Errorf("set doc props: %w", err)
	}

	header := make([]any, len(headers))
	for i, h := range headers {
		header[i] = h
	}
	if err := f.SetSheetRow(sheetName, "A1", &header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("create header style: %w", err)
	}
	if err := f.SetRowStyle(sheetName, 1, 1, bold); err != nil {
		return fmt.Errorf("style header: %w", err)
	}

	for i, c := range candidates {
		var score any
		if c.AIScore != nil {
			score = *c.AIScore
		}
		names := make([]string, 0, len(c.Tags))
		for _, t := range c.Tags {
			names = append(names, t.Name)
		}
		row := []any{
			c.Name,
			c.Email,
			c.Status,
			score,
			c.AISummary,
			strings.Join(names, ", "),
			c.CreatedAt.UTC().Format("2006-01-02 15:04"),
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheetName, cell, &row); err != nil {
			return fmt.Errorf("write row %d: %w", i+2, err)
		}
	}

	if err := f.SetColWidth(sheetName, "A", "B", 28); err != nil {
		return err
	}
	if err := f.SetColWidth(sheetName, "E", "E", 60); err != nil {
		return err
	}
	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}
