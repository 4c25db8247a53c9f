package steps

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/joseph-ayodele/docproc/internal/common"
)

// maxRepeat caps ODF repeat counts; trailing filler rows and cells routinely
// claim a million repeats.
const maxRepeat = 1024

func readZipEntry(zr *zip.Reader, name string) ([]byte, error) {
	f, err := zr.Open(name)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	defer f.Close()
	return io.ReadAll(f)
}

func openODS(path string) (Workbook, error) {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return nil, err
	}
	defer zr.Close()

	f, err := zr.Open("content.xml")
	if err != nil {
		return nil, fmt.Errorf("content.xml: %w", err)
	}
	defer f.Close()
	return parseODS(f)
}

func attrValue(t xml.StartElement, local string) string {
	for _, a := range t.Attr {
		if a.Name.Local == local {
			return a.Value
		}
	}
	return ""
}

func repeatAttr(t xml.StartElement, local string) int {
	n, err := strconv.Atoi(attrValue(t, local))
	if err != nil || n < 1 {
		return 1
	}
	return min(n, maxRepeat)
}

// parseODS reads every table of an ODF spreadsheet content.xml.
func parseODS(r io.Reader) (*sheetSet, error) {
	dec := xml.NewDecoder(r)
	set := &sheetSet{rows: map[string][][]string{}}

	var (
		sheet      string
		rows       [][]string
		row        []string
		rowRepeat  int
		cell       strings.Builder
		cellRepeat int
		inCell     bool
		inPara     bool
		paras      int
	)
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "table":
				sheet = attrValue(t, "name")
				if sheet == "" {
					sheet = fmt.Sprintf("Sheet%d", len(set.names)+1)
				}
				rows = nil
			case "table-row":
				row = nil
				rowRepeat = repeatAttr(t, "number-rows-repeated")
			case "table-cell", "covered-table-cell":
				inCell = true
				cell.Reset()
				cellRepeat = repeatAttr(t, "number-columns-repeated")
				paras = 0
			case "p":
				if inCell {
					if paras > 0 {
						cell.WriteByte('\n')
					}
					paras++
					inPara = true
				}
			case "s":
				if inCell {
					cell.WriteString(strings.Repeat(" ", repeatAttr(t, "c")))
				}
			case "tab":
				if inCell {
					cell.WriteByte('\t')
				}
			}
		case xml.CharData:
			if inCell && inPara {
				cell.Write(t)
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "p":
				inPara = false
			case "table-cell", "covered-table-cell":
				v := cell.String()
				for i := 0; i < cellRepeat; i++ {
					row = append(row, v)
				}
				inCell = false
			case "table-row":
				row = trimTrailingEmpty(row)
				if len(row) == 0 {
					continue
				}
				for i := 0; i < rowRepeat; i++ {
					rows = append(rows, row)
				}
			case "table":
				set.names = append(set.names, sheet)
				set.rows[sheet] = rows
			}
		}
	}
	return set, nil
}

// parseODFText returns the paragraphs of an ODF text or presentation
// content.xml. With pageElem set (draw "page" for presentations) text is
// split per page; otherwise everything lands in one page.
func parseODFText(r io.Reader, pageElem string) ([]string, error) {
	dec := xml.NewDecoder(r)
	var (
		pages []string
		cur   strings.Builder
		depth int // open text:p / text:h elements
	)
	flush := func() {
		pages = append(pages, cur.String())
		cur.Reset()
	}
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "p", "h":
				depth++
			case "s":
				if depth > 0 {
					cur.WriteString(strings.Repeat(" ", repeatAttr(t, "c")))
				}
			case "tab":
				if depth > 0 {
					cur.WriteByte('\t')
				}
			case "line-break":
				if depth > 0 {
					cur.WriteByte('\n')
				}
			}
		case xml.CharData:
			if depth > 0 {
				cur.Write(t)
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "p", "h":
				depth--
				cur.WriteByte('\n')
			case pageElem:
				if pageElem != "" {
					flush()
				}
			}
		}
	}
	if pageElem == "" {
		flush()
	}
	return pages, nil
}

func openODFText(path, pageElem string) ([]string, error) {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return nil, common.NewProcessError(common.ErrDecode, "office", "open container", err)
	}
	defer zr.Close()
	data, err := readZipEntry(&zr.Reader, "content.xml")
	if err != nil {
		return nil, common.NewProcessError(common.ErrDecode, "office", "read content", err)
	}
	return parseODFText(bytes.NewReader(data), pageElem)
}
