package steps

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/joseph-ayodele/docproc/internal/common"
)

type fakeWorkbook struct {
	names  []string
	rows   map[string][][]string
	broken map[string]error
	closed bool
}

func (w *fakeWorkbook) SheetNames() []string { return w.names }

func (w *fakeWorkbook) ReadSheet(name string, maxRows int) ([][]string, bool, error) {
	if err := w.broken[name]; err != nil {
		return nil, false, err
	}
	rows := w.rows[name]
	if len(rows) > maxRows {
		return rows[:maxRows], true, nil
	}
	return rows, false, nil
}

func (w *fakeWorkbook) Close() error {
	w.closed = true
	return nil
}

func openerFor(wb Workbook) WorkbookOpener {
	return func(string, string) (Workbook, error) { return wb, nil }
}

func TestSpreadsheetStep_OneCorruptSheetOfThree(t *testing.T) {
	wb := &fakeWorkbook{
		names: []string{"Jan", "Feb", "Mar"},
		rows: map[string][][]string{
			"Jan": {{"item", "amount"}, {"coffee", "3.50"}},
			"Mar": {{"item", "amount"}, {"tea", "2"}},
		},
		broken: map[string]error{"Feb": errors.New("xml: unexpected EOF")},
	}
	step := NewSpreadsheetStep(common.SpreadsheetConfig{}, nil, WithWorkbookOpener(openerFor(wb)))

	out := step.Run(context.Background(), input("/data/book.xlsx"), budget(t, 3))
	require.Equal(t, CompletedWithWarnings, out.Status)
	require.Len(t, out.Warnings, 1)
	assert.Contains(t, out.Warnings[0], `"Feb"`)
	require.Len(t, out.Parts, 2)
	assert.Equal(t, Part{Page: 1, Text: "<EXTRACTED_DATA SHEET=\"Jan\">item,amount\ncoffee,3.50</EXTRACTED_DATA>"}, out.Parts[0])
	assert.Equal(t, Part{Page: 3, Text: "<EXTRACTED_DATA SHEET=\"Mar\">item,amount\ntea,2</EXTRACTED_DATA>"}, out.Parts[1])
	assert.True(t, wb.closed)
}

func TestSpreadsheetStep_AllSheetsCorruptIsFatal(t *testing.T) {
	boom := errors.New("boom")
	wb := &fakeWorkbook{names: []string{"A", "B"}, broken: map[string]error{"A": boom, "B": boom}}
	step := NewSpreadsheetStep(common.SpreadsheetConfig{}, nil, WithWorkbookOpener(openerFor(wb)))

	out := step.Run(context.Background(), input("/data/book.xlsx"), budget(t, 2))
	assert.Equal(t, Failed, out.Status)
	assert.True(t, out.Fatal)
	assert.ErrorIs(t, out.Err, common.ErrDecode)
}

func TestSpreadsheetStep_OpenFailureIsFatal(t *testing.T) {
	step := NewSpreadsheetStep(common.SpreadsheetConfig{}, nil)
	p := writeFile(t, t.TempDir(), "junk.xlsx", []byte("not a zip"))

	out := step.Run(context.Background(), input(p), budget(t, 1))
	assert.Equal(t, Failed, out.Status)
	assert.True(t, out.Fatal)
	assert.ErrorIs(t, out.Err, common.ErrDecode)
}

func TestSpreadsheetStep_LegacyXLS(t *testing.T) {
	p := writeFile(t, t.TempDir(), "old.xls", []byte{0xD0, 0xCF, 0x11, 0xE0})
	out := NewSpreadsheetStep(common.SpreadsheetConfig{}, nil).Run(context.Background(), input(p), budget(t, 1))
	assert.Equal(t, Failed, out.Status)
	assert.ErrorIs(t, out.Err, common.ErrDecode)
	assert.Contains(t, out.Err.Error(), ".xls")
}

func TestSpreadsheetStep_XLSX(t *testing.T) {
	f := excelize.NewFile()
	require.NoError(t, f.SetSheetRow("Sheet1", "A1", &[]any{"name", "qty"}))
	require.NoError(t, f.SetSheetRow("Sheet1", "A2", &[]any{"widget, large", 3}))
	_, err := f.NewSheet("Totals")
	require.NoError(t, err)
	require.NoError(t, f.SetCellValue("Totals", "A1", "sum"))
	require.NoError(t, f.SetCellValue("Totals", "B1", 3))
	p := filepath.Join(t.TempDir(), "stock.xlsx")
	require.NoError(t, f.SaveAs(p))
	require.NoError(t, f.Close())

	out := NewSpreadsheetStep(common.SpreadsheetConfig{}, nil).Run(context.Background(), input(p), budget(t, 2))
	require.Equal(t, Completed, out.Status, out.Warnings)
	require.Len(t, out.Parts, 2)
	assert.Equal(t, "<EXTRACTED_DATA SHEET=\"Sheet1\">name,qty\n\"widget, large\",3</EXTRACTED_DATA>", out.Parts[0].Text)
	assert.Equal(t, "<EXTRACTED_DATA SHEET=\"Totals\">sum,3</EXTRACTED_DATA>", out.Parts[1].Text)
}

func TestSpreadsheetStep_CSVAndTSV(t *testing.T) {
	dir := t.TempDir()
	csvPath := writeFile(t, dir, "ledger.csv", []byte("a,b,,\n\"x,y\",z\n,,\n"))
	tsvPath := writeFile(t, dir, "ledger.tsv", []byte("a\tb\nc\td\n"))
	step := NewSpreadsheetStep(common.SpreadsheetConfig{}, nil)

	out := step.Run(context.Background(), input(csvPath), budget(t, 1))
	require.Len(t, out.Parts, 1)
	assert.Equal(t, "<EXTRACTED_DATA SHEET=\"ledger\">a,b\n\"x,y\",z</EXTRACTED_DATA>", out.Parts[0].Text)

	out = step.Run(context.Background(), input(tsvPath), budget(t, 1))
	require.Len(t, out.Parts, 1)
	assert.Equal(t, "<EXTRACTED_DATA SHEET=\"ledger\">a,b\nc,d</EXTRACTED_DATA>", out.Parts[0].Text)
}

func TestSpreadsheetStep_ODS(t *testing.T) {
	content := `<?xml version="1.0" encoding="UTF-8"?>
<office:document-content xmlns:office="urn:oasis:names:tc:opendocument:xmlns:office:1.0"
  xmlns:table="urn:oasis:names:tc:opendocument:xmlns:table:1.0"
  xmlns:text="urn:oasis:names:tc:opendocument:xmlns:text:1.0">
<office:body><office:spreadsheet>
<table:table table:name="Budget">
  <table:table-row>
    <table:table-cell><text:p>rent</text:p></table:table-cell>
    <table:table-cell table:number-columns-repeated="2"><text:p>900</text:p></table:table-cell>
    <table:table-cell table:number-columns-repeated="1020"/>
  </table:table-row>
  <table:table-row table:number-rows-repeated="1048570"><table:table-cell table:number-columns-repeated="1024"/></table:table-row>
</table:table>
<table:table table:name="Notes">
  <table:table-row><table:table-cell><text:p>line<text:s text:c="2"/>one</text:p></table:table-cell></table:table-row>
</table:table>
</office:spreadsheet></office:body></office:document-content>`
	p := writeZip(t, t.TempDir(), "plan.ods", map[string]string{"content.xml": content})

	out := NewSpreadsheetStep(common.SpreadsheetConfig{}, nil).Run(context.Background(), input(p), budget(t, 2))
	require.Equal(t, Completed, out.Status, out.Warnings)
	require.Len(t, out.Parts, 2)
	assert.Equal(t, "<EXTRACTED_DATA SHEET=\"Budget\">rent,900,900</EXTRACTED_DATA>", out.Parts[0].Text)
	assert.Equal(t, "<EXTRACTED_DATA SHEET=\"Notes\">line  one</EXTRACTED_DATA>", out.Parts[1].Text)
}

func TestSheetCSV_Limits(t *testing.T) {
	rows := [][]string{{"a", "b", "c"}, {"d", "e", "f"}}
	got, err := SheetCSV(rows, 2, true, 2)
	require.NoError(t, err)
	assert.Equal(t, "a,b\nd,e\n[truncated at 2 rows]\n[truncated at 2 columns]", got)

	got, err = SheetCSV([][]string{{"", " "}, {}}, 10, false, 10)
	require.NoError(t, err)
	assert.Empty(t, got)
}
