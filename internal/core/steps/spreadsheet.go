package steps

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/xuri/excelize/v2"

	"github.com/joseph-ayodele/docproc/internal/common"
	"github.com/joseph-ayodele/docproc/internal/core/governor"
)

// Workbook is a read-only view over a spreadsheet container.
type Workbook interface {
	SheetNames() []string
	// ReadSheet returns at most maxRows rows; truncated reports that more
	// rows exist.
	ReadSheet(name string, maxRows int) (rows [][]string, truncated bool, err error)
	Close() error
}

// WorkbookOpener opens the container at path; ext is the normalized extension.
type WorkbookOpener func(path, ext string) (Workbook, error)

// SpreadsheetStep serializes every sheet to CSV text, one part per sheet.
type SpreadsheetStep struct {
	cfg    common.SpreadsheetConfig
	open   WorkbookOpener
	logger *slog.Logger
}

type SpreadsheetOption func(*SpreadsheetStep)

// WithWorkbookOpener replaces the container reader.
func WithWorkbookOpener(open WorkbookOpener) SpreadsheetOption {
	return func(s *SpreadsheetStep) {
		if open != nil {
			s.open = open
		}
	}
}

func NewSpreadsheetStep(cfg common.SpreadsheetConfig, logger *slog.Logger, opts ...SpreadsheetOption) *SpreadsheetStep {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.MaxRows <= 0 {
		cfg.MaxRows = 1000
	}
	if cfg.MaxCols <= 0 {
		cfg.MaxCols = 100
	}
	s := &SpreadsheetStep{cfg: cfg, open: OpenWorkbook, logger: logger}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *SpreadsheetStep) Name() string { return "spreadsheet" }
func (s *SpreadsheetStep) Kind() Kind   { return KindSpreadsheet }

func (s *SpreadsheetStep) Run(ctx context.Context, in Input, b governor.Budget) Outcome {
	wb, err := s.open(in.Query.FilePath, in.Ext)
	if err != nil {
		var pe *common.ProcessError
		if errors.As(err, &pe) {
			return Fail(pe, true)
		}
		return Fail(common.NewProcessError(common.ErrDecode, s.Name(), "open workbook", err), true)
	}
	defer func() {
		if cerr := wb.Close(); cerr != nil {
			s.logger.Warn("spreadsheet.close.failed", "file", in.Query.FilePath, "err", cerr)
		}
	}()

	sheets := wb.SheetNames()
	if len(sheets) == 0 {
		return Skip("spreadsheet: workbook has no sheets")
	}

	texts, errs := governor.ParallelMap(ctx, b.Workers, len(sheets), func(ctx context.Context, i int) (string, error) {
		rows, truncated, err := wb.ReadSheet(sheets[i], s.cfg.MaxRows)
		if err != nil {
			return "", err
		}
		return SheetCSV(rows, s.cfg.MaxCols, truncated, s.cfg.MaxRows)
	})
	if err := ctx.Err(); err != nil {
		return Fail(err, true)
	}

	var (
		parts    []Part
		warnings []string
		failed   int
	)
	for i, name := range sheets {
		if errs[i] != nil {
			failed++
			warnings = append(warnings, fmt.Sprintf("spreadsheet: sheet %q: %v", name, errs[i]))
			s.logger.Warn("spreadsheet.sheet.failed", "file", in.Query.FilePath, "sheet", name, "err", errs[i])
			continue
		}
		if texts[i] == "" {
			continue
		}
		parts = append(parts, Part{Page: i + 1, Text: Extracted(SheetAttr(name), texts[i])})
	}
	if failed == len(sheets) {
		return Fail(common.NewProcessError(common.ErrDecode, s.Name(), "no readable sheets", errors.Join(errs...)), true)
	}
	return Done(parts, nil, warnings)
}

// SheetCSV writes rows as CSV lines. Cells past maxCols and trailing empty
// cells are dropped, as are rows left empty.
func SheetCSV(rows [][]string, maxCols int, truncated bool, maxRows int) (string, error) {
	var b strings.Builder
	w := csv.NewWriter(&b)
	clipped := false
	for _, row := range rows {
		if maxCols > 0 && len(row) > maxCols {
			row = row[:maxCols]
			clipped = true
		}
		row = trimTrailingEmpty(row)
		if len(row) == 0 {
			continue
		}
		if err := w.Write(row); err != nil {
			return "", err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return "", err
	}
	out := strings.TrimRight(b.String(), "\n")
	if out == "" {
		return "", nil
	}
	if truncated {
		out += fmt.Sprintf("\n[truncated at %d rows]", maxRows)
	}
	if clipped {
		out += fmt.Sprintf("\n[truncated at %d columns]", maxCols)
	}
	return out, nil
}

func trimTrailingEmpty(row []string) []string {
	n := len(row)
	for n > 0 && strings.TrimSpace(row[n-1]) == "" {
		n--
	}
	return row[:n]
}

// OpenWorkbook picks a reader by extension.
func OpenWorkbook(path, ext string) (Workbook, error) {
	switch ext {
	case "xlsx", "xlsm":
		f, err := excelize.OpenFile(path)
		if err != nil {
			return nil, err
		}
		return &excelWorkbook{f: f}, nil
	case "csv", "tsv":
		return openDelimited(path, ext)
	case "ods":
		return openODS(path)
	case "xls":
		return nil, common.NewProcessError(common.ErrDecode, "spreadsheet", "legacy .xls workbooks are not supported, save as .xlsx", nil)
	}
	return nil, common.NewProcessError(common.ErrUnsupportedFormat, "spreadsheet", ext, nil)
}

// excelWorkbook serializes sheet reads; excelize streams rows from a shared
// archive.
type excelWorkbook struct {
	mu sync.Mutex
	f  *excelize.File
}

func (w *excelWorkbook) SheetNames() []string { return w.f.GetSheetList() }

func (w *excelWorkbook) ReadSheet(name string, maxRows int) ([][]string, bool, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	rows, err := w.f.Rows(name)
	if err != nil {
		return nil, false, err
	}
	defer rows.Close()

	var out [][]string
	for rows.Next() {
		if len(out) == maxRows {
			return out, true, nil
		}
		cols, err := rows.Columns()
		if err != nil {
			return nil, false, err
		}
		out = append(out, cols)
	}
	if err := rows.Error(); err != nil {
		return nil, false, err
	}
	return out, false, nil
}

func (w *excelWorkbook) Close() error { return w.f.Close() }

// sheetSet is a workbook fully read at open time.
type sheetSet struct {
	names []string
	rows  map[string][][]string
}

func (s *sheetSet) SheetNames() []string { return s.names }

func (s *sheetSet) ReadSheet(name string, maxRows int) ([][]string, bool, error) {
	rows, ok := s.rows[name]
	if !ok {
		return nil, false, fmt.Errorf("sheet %q not found", name)
	}
	if maxRows > 0 && len(rows) > maxRows {
		return rows[:maxRows], true, nil
	}
	return rows, false, nil
}

func (s *sheetSet) Close() error { return nil }

func openDelimited(path, ext string) (Workbook, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, common.NewProcessError(common.ErrIO, "spreadsheet", "read file", err)
	}
	text, err := DecodeText(data)
	if err != nil {
		return nil, err
	}
	r := csv.NewReader(strings.NewReader(text))
	if ext == "tsv" {
		r.Comma = '\t'
	}
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	rows, err := r.ReadAll()
	if err != nil {
		return nil, err
	}
	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	return &sheetSet{names: []string{name}, rows: map[string][][]string{name: rows}}, nil
}
