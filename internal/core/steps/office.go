package steps

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"
	"sort"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/nguyenthenguyen/docx"
	"golang.org/x/text/encoding/charmap"

	"github.com/joseph-ayodele/docproc/internal/common"
	"github.com/joseph-ayodele/docproc/internal/core/governor"
	"github.com/joseph-ayodele/docproc/internal/core/normalize"
)

// OfficeStep extracts text from word-processing and presentation documents.
type OfficeStep struct {
	logger *slog.Logger
}

func NewOfficeStep(logger *slog.Logger) *OfficeStep {
	if logger == nil {
		logger = slog.Default()
	}
	return &OfficeStep{logger: logger}
}

func (s *OfficeStep) Name() string { return "office" }
func (s *OfficeStep) Kind() Kind   { return KindOffice }

func (s *OfficeStep) Run(ctx context.Context, in Input, b governor.Budget) Outcome {
	p := in.Query.FilePath
	switch in.Ext {
	case "docx", "docm":
		text, err := DocxText(p)
		if err != nil {
			return s.fail(err, "open document")
		}
		return s.single(text)
	case "odt":
		pages, err := openODFText(p, "")
		if err != nil {
			return s.fail(err, "parse document")
		}
		return s.single(strings.Join(pages, "\n"))
	case "rtf":
		data, err := os.ReadFile(p)
		if err != nil {
			return Fail(common.NewProcessError(common.ErrIO, s.Name(), "read file", err), true)
		}
		return s.single(RTFText(data))
	case "pptx", "pptm":
		return s.pptx(ctx, p, b)
	case "odp":
		slides, err := openODFText(p, "page")
		if err != nil {
			return s.fail(err, "parse presentation")
		}
		return s.slides(slides, nil)
	case "doc", "ppt":
		data, err := os.ReadFile(p)
		if err != nil {
			return Fail(common.NewProcessError(common.ErrIO, s.Name(), "read file", err), true)
		}
		if !utf8.Valid(data) {
			return Fail(common.NewProcessError(common.ErrDecode, s.Name(),
				fmt.Sprintf("legacy binary .%s documents are not supported", in.Ext), nil), true)
		}
		return s.single(string(data))
	}
	return Fail(common.NewProcessError(common.ErrUnsupportedFormat, s.Name(), in.Ext, nil), true)
}

func (s *OfficeStep) fail(err error, msg string) Outcome {
	var pe *common.ProcessError
	if errors.As(err, &pe) {
		return Fail(pe, true)
	}
	return Fail(common.NewProcessError(common.ErrDecode, s.Name(), msg, err), true)
}

func (s *OfficeStep) single(text string) Outcome {
	text = normalize.Text(text)
	if text == "" {
		return Skip("office: document has no text")
	}
	return Done([]Part{{Text: Extracted("", text)}}, nil, nil)
}

// slides emits one part per non-empty slide; errs holds per-slide failures.
// The presentation fails when no slide could be read.
func (s *OfficeStep) slides(texts []string, errs []error) Outcome {
	var (
		parts    []Part
		warnings []string
		failed   []error
	)
	for i, t := range texts {
		n := i + 1
		if errs != nil && errs[i] != nil {
			failed = append(failed, errs[i])
			warnings = append(warnings, fmt.Sprintf("office: slide %d: %v", n, errs[i]))
			continue
		}
		t = normalize.Text(t)
		if t == "" {
			continue
		}
		parts = append(parts, Part{Page: n, Text: Extracted(SlideAttr(n), t)})
	}
	if len(texts) > 0 && len(failed) == len(texts) {
		return Fail(common.NewProcessError(common.ErrDecode, s.Name(), "no readable slides", errors.Join(failed...)), true)
	}
	if len(parts) == 0 && len(warnings) == 0 {
		return Skip("office: presentation has no text")
	}
	return Done(parts, nil, warnings)
}

func (s *OfficeStep) pptx(ctx context.Context, p string, b governor.Budget) Outcome {
	zr, err := zip.OpenReader(p)
	if err != nil {
		return s.fail(err, "open presentation")
	}
	defer zr.Close()

	names := SlideEntries(&zr.Reader)
	if len(names) == 0 {
		return Skip("office: presentation has no slides")
	}
	texts, errs := governor.ParallelMap(ctx, b.Workers, len(names), func(_ context.Context, i int) (string, error) {
		data, err := readZipEntry(&zr.Reader, names[i])
		if err != nil {
			return "", err
		}
		return drawingText(bytes.NewReader(data))
	})
	if err := ctx.Err(); err != nil {
		return Fail(err, true)
	}
	return s.slides(texts, errs)
}

// SlideEntries lists ppt/slides/slideN.xml entries ordered by N.
func SlideEntries(zr *zip.Reader) []string {
	type entry struct {
		name string
		n    int
	}
	var out []entry
	for _, f := range zr.File {
		dir, base := path.Split(f.Name)
		if dir != "ppt/slides/" || !strings.HasPrefix(base, "slide") || !strings.HasSuffix(base, ".xml") {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSuffix(strings.TrimPrefix(base, "slide"), ".xml"))
		if err != nil {
			continue
		}
		out = append(out, entry{f.Name, n})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].n < out[j].n })
	names := make([]string, len(out))
	for i, e := range out {
		names[i] = e.name
	}
	return names
}

// DocxText returns the body text of a .docx/.docm, one line per paragraph.
func DocxText(p string) (string, error) {
	r, err := docx.ReadDocxFile(p)
	if err != nil {
		return "", err
	}
	defer r.Close()
	return wordprocessingText(strings.NewReader(r.Editable().GetContent()))
}

func wordprocessingText(r io.Reader) (string, error) {
	dec := xml.NewDecoder(r)
	var (
		b   strings.Builder
		inT bool
	)
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			if !strings.Contains(t.Name.Space, "wordprocessingml") {
				continue
			}
			switch t.Name.Local {
			case "t":
				inT = true
			case "tab":
				b.WriteByte('\t')
			case "br", "cr":
				b.WriteByte('\n')
			}
		case xml.EndElement:
			if !strings.Contains(t.Name.Space, "wordprocessingml") {
				continue
			}
			switch t.Name.Local {
			case "t":
				inT = false
			case "p":
				b.WriteByte('\n')
			}
		case xml.CharData:
			if inT {
				b.Write(t)
			}
		}
	}
	return b.String(), nil
}

// drawingText collects DrawingML a:t runs, one line per a:p paragraph.
func drawingText(r io.Reader) (string, error) {
	dec := xml.NewDecoder(r)
	var (
		b   strings.Builder
		inT bool
	)
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			if t.Name.Local == "t" && strings.Contains(t.Name.Space, "drawingml") {
				inT = true
			}
		case xml.EndElement:
			if !strings.Contains(t.Name.Space, "drawingml") {
				continue
			}
			switch t.Name.Local {
			case "t":
				inT = false
			case "p":
				b.WriteByte('\n')
			}
		case xml.CharData:
			if inT {
				b.Write(t)
			}
		}
	}
	return b.String(), nil
}

// rtfSkipDestinations are groups whose content is never body text.
var rtfSkipDestinations = map[string]bool{
	"fonttbl": true, "colortbl": true, "stylesheet": true, "info": true,
	"pict": true, "object": true, "header": true, "footer": true,
	"headerl": true, "headerr": true, "footerl": true, "footerr": true,
	"footnote": true, "listtable": true, "listoverridetable": true,
	"themedata": true, "datastore": true, "latentstyles": true, "xmlnstbl": true,
}

// RTFText strips RTF control words and groups, keeping body text. \'hh
// escapes are read as Windows-1252.
func RTFText(src []byte) string {
	var (
		b     strings.Builder
		stack []bool
		skip  bool
		uc    = 1 // chars to drop after \uN
		drop  int
	)
	dec := charmap.Windows1252
	emit := func(r rune) {
		if drop > 0 {
			drop--
			return
		}
		if !skip {
			b.WriteRune(r)
		}
	}

	for i := 0; i < len(src); i++ {
		c := src[i]
		switch c {
		case '{':
			stack = append(stack, skip)
		case '}':
			if n := len(stack); n > 0 {
				skip = stack[n-1]
				stack = stack[:n-1]
			}
		case '\r', '\n':
		case '\\':
			if i+1 >= len(src) {
				break
			}
			next := src[i+1]
			switch {
			case next == '\\' || next == '{' || next == '}':
				emit(rune(next))
				i++
			case next == '*':
				skip = true
				i++
			case next == '\'':
				if i+3 < len(src) {
					if v, err := strconv.ParseUint(string(src[i+2:i+4]), 16, 8); err == nil {
						emit(dec.DecodeByte(byte(v)))
					}
				}
				i += 3
			case next == '~':
				emit(' ')
				i++
			case isASCIILetter(next):
				j := i + 1
				for j < len(src) && isASCIILetter(src[j]) {
					j++
				}
				word := string(src[i+1 : j])
				k := j
				if k < len(src) && (src[k] == '-' || isASCIIDigit(src[k])) {
					k++
					for k < len(src) && isASCIIDigit(src[k]) {
						k++
					}
				}
				param, hasParam := 0, k > j
				if hasParam {
					param, _ = strconv.Atoi(string(src[j:k]))
				}
				if k < len(src) && src[k] == ' ' {
					k++
				}
				i = k - 1

				switch {
				case rtfSkipDestinations[word]:
					skip = true
				case word == "par" || word == "line" || word == "sect" || word == "page" || word == "row":
					emit('\n')
				case word == "tab" || word == "cell":
					emit('\t')
				case word == "uc" && hasParam:
					uc = param
				case word == "u" && hasParam:
					if param < 0 {
						param += 65536
					}
					emit(rune(param))
					drop = uc
				}
			default:
				i++
			}
		default:
			emit(rune(c))
		}
	}
	return b.String()
}

func isASCIILetter(c byte) bool { return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' }
func isASCIIDigit(c byte) bool  { return c >= '0' && c <= '9' }
