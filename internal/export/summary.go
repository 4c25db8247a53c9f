package export

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/joseph-ayodele/docproc/internal/entity"
)

// BatchResult is one processed document of a batch run.
type BatchResult struct {
	Path        string
	ContentHash string
	Skipped     bool // already archived, not processed again
	Query       *entity.Query
	Err         error
}

// Status is "skipped", "failed" for a fatal error, "warning" when the
// document carries errors, else "success".
func (r BatchResult) Status() string {
	switch {
	case r.Skipped:
		return "skipped"
	case r.Err != nil:
		return "failed"
	case r.Query != nil && r.Query.Metadata != nil && len(r.Query.Metadata.Errors) > 0:
		return "warning"
	}
	return "success"
}

const summarySheet = "Summary"

var summaryHeaders = []string{
	"File Path",
	"Strategy",
	"Status",
	"Prompt Parts",
	"Attachments",
	"Errors",
	"Duration (ms)",
	"Steps",
}

// SummaryXLSX returns an XLSX workbook (as bytes) with one row per document.
func SummaryXLSX(results []BatchResult, logger *slog.Logger) ([]byte, error) {
	if logger == nil {
		logger = slog.Default()
	}
	start := time.Now()

	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	if err := f.SetSheetName("Sheet1", summarySheet); err != nil {
		return nil, err
	}

	for i, h := range summaryHeaders {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(summarySheet, cell, h)
	}
	if err := f.SetPanes(summarySheet, &excelize.Panes{
		Freeze: true, YSplit: 1, TopLeftCell: "A2", ActivePane: "bottomLeft",
	}); err != nil {
		return nil, fmt.Errorf("freeze header: %w", err)
	}

	for i, r := range results {
		row := i + 2
		write := func(col int, v any) {
			cell, _ := excelize.CoordinatesToCellName(col, row)
			_ = f.SetCellValue(summarySheet, cell, v)
		}

		write(1, r.Path)
		write(3, r.Status())

		var errs []string
		if r.Err != nil {
			errs = append(errs, r.Err.Error())
		}
		if q := r.Query; q != nil {
			write(2, q.Strategy)
			write(4, len(q.PromptParts))
			write(5, len(q.Attachments))
			if m := q.Metadata; m != nil {
				for _, e := range m.Errors {
					if r.Err == nil || e != r.Err.Error() {
						errs = append(errs, e)
					}
				}
				write(7, m.TotalDurationMs)
				write(8, stepsSummary(m.Steps))
			}
		}
		write(6, truncate(strings.Join(errs, "; "), 500))
	}

	_ = f.SetColWidth(summarySheet, "A", "A", 60) // path
	_ = f.SetColWidth(summarySheet, "B", "C", 12)
	_ = f.SetColWidth(summarySheet, "D", "E", 13)
	_ = f.SetColWidth(summarySheet, "F", "F", 60) // errors
	_ = f.SetColWidth(summarySheet, "G", "G", 14)
	_ = f.SetColWidth(summarySheet, "H", "H", 48) // steps

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}

	logger.Info("export.xlsx.ok",
		"rows", len(results),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return buf.Bytes(), nil
}

// stepsSummary renders steps as "pdf:success(120ms), image:warning(900ms)".
func stepsSummary(steps []entity.ProcessingStep) string {
	parts := make([]string, 0, len(steps))
	for _, s := range steps {
		parts = append(parts, fmt.Sprintf("%s:%s(%dms)", s.Name, s.Status, s.DurationMs))
	}
	return strings.Join(parts, ", ")
}

func truncate(s string, n int) string {
	r := []rune(s)
	if n <= 0 || len(r) <= n {
		return s
	}
	if n <= 1 {
		return string(r[:n])
	}
	return string(r[:n-1]) + "…"
}
