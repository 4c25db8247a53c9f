package steps

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"unicode"

	"github.com/ledongthuc/pdf"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"

	"github.com/joseph-ayodele/docproc/internal/common"
	"github.com/joseph-ayodele/docproc/internal/core/governor"
	"github.com/joseph-ayodele/docproc/internal/core/normalize"
	"github.com/joseph-ayodele/docproc/internal/core/ocr"
	"github.com/joseph-ayodele/docproc/internal/entity"
)

// PDFDocument is an opened PDF. Pages are 1-based.
type PDFDocument interface {
	PageCount() int
	PageText(page int) (string, error)
	Close() error
}

// PDFOpener validates and opens the PDF at path.
type PDFOpener func(path string) (PDFDocument, error)

// PDFStep emits embedded page text and renders scanned pages for OCR.
type PDFStep struct {
	cfg      common.PDFConfig
	open     PDFOpener
	renderer ocr.PageRenderer
	logger   *slog.Logger
}

type PDFOption func(*PDFStep)

func WithPDFOpener(open PDFOpener) PDFOption {
	return func(s *PDFStep) {
		if open != nil {
			s.open = open
		}
	}
}

// NewPDFStep builds the step; a nil renderer leaves scanned pages unrendered.
func NewPDFStep(cfg common.PDFConfig, renderer ocr.PageRenderer, logger *slog.Logger, opts ...PDFOption) *PDFStep {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.RenderScale <= 0 {
		cfg.RenderScale = 1.5
	}
	if cfg.MinPageChars <= 0 {
		cfg.MinPageChars = 50
	}
	if cfg.MaxRenderPages <= 0 {
		cfg.MaxRenderPages = 4
	}
	s := &PDFStep{cfg: cfg, open: OpenPDF, renderer: renderer, logger: logger}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *PDFStep) Name() string { return "pdf" }
func (s *PDFStep) Kind() Kind   { return KindPDF }

func (s *PDFStep) Run(ctx context.Context, in Input, b governor.Budget) Outcome {
	doc, err := s.open(in.Query.FilePath)
	if err != nil {
		return Fail(common.NewProcessError(common.ErrDecode, s.Name(), "open pdf", err), true)
	}
	defer func() {
		if cerr := doc.Close(); cerr != nil {
			s.logger.Warn("pdf.close.failed", "file", in.Query.FilePath, "err", cerr)
		}
	}()

	var (
		parts    []Part
		warnings []string
		scanned  []int
		textErrs []int
		firstErr error
	)
	for n := 1; n <= doc.PageCount(); n++ {
		if err := ctx.Err(); err != nil {
			return Fail(err, true)
		}
		raw, err := doc.PageText(n)
		if err != nil {
			textErrs = append(textErrs, n)
			if firstErr == nil {
				firstErr = err
			}
		}
		text := normalize.Text(raw)
		if countNonSpace(text) < s.cfg.MinPageChars {
			scanned = append(scanned, n)
			continue
		}
		parts = append(parts, Part{Page: n, Text: Extracted(PageAttr(n), text)})
	}
	if len(textErrs) > 0 {
		warnings = append(warnings, fmt.Sprintf("pdf: text extraction failed on pages %v: %v", textErrs, firstErr))
	}
	s.logger.Debug("pdf.pages", "file", in.Query.FilePath, "pages", doc.PageCount(), "text_pages", len(parts), "scanned", len(scanned))

	if len(scanned) == 0 {
		return Done(parts, nil, warnings)
	}
	if s.renderer == nil {
		warnings = append(warnings, fmt.Sprintf("pdf: %d scanned pages not rendered: no renderer configured", len(scanned)))
		return Done(parts, nil, warnings)
	}

	selected, skipped := SelectPages(scanned, s.cfg.MaxRenderPages)
	if len(skipped) > 0 {
		warnings = append(warnings, fmt.Sprintf("pdf: %d scanned pages not rendered (limit %d): %v", len(skipped), s.cfg.MaxRenderPages, skipped))
	}

	images, errs := governor.ParallelMap(ctx, b.Workers, len(selected), func(ctx context.Context, i int) ([]byte, error) {
		return s.renderer.RenderPage(ctx, in.Query.FilePath, selected[i], s.cfg.RenderScale, b.TempDir)
	})
	if err := ctx.Err(); err != nil {
		return Fail(err, true)
	}

	var atts []entity.Attachment
	for i, page := range selected {
		if errs[i] != nil {
			warnings = append(warnings, fmt.Sprintf("pdf: page %d: render failed: %v", page, errs[i]))
			s.logger.Warn("pdf.render.failed", "file", in.Query.FilePath, "page", page, "err", errs[i])
			continue
		}
		atts = append(atts, entity.Attachment{Page: int32(page), Data: images[i]})
	}
	return Done(parts, atts, warnings)
}

// SelectPages bounds the pages sent to rendering. Over the limit it keeps the
// first ceil(limit/2) and the last floor(limit/2) candidates.
func SelectPages(candidates []int, limit int) (selected, skipped []int) {
	if limit <= 0 || len(candidates) <= limit {
		return candidates, nil
	}
	head := (limit + 1) / 2
	tail := limit / 2
	selected = append(selected, candidates[:head]...)
	selected = append(selected, candidates[len(candidates)-tail:]...)
	skipped = append(skipped, candidates[head:len(candidates)-tail]...)
	return selected, skipped
}

func countNonSpace(s string) int {
	n := 0
	for _, r := range s {
		if !unicode.IsSpace(r) {
			n++
		}
	}
	return n
}

// OpenPDF validates the container with pdfcpu (relaxed mode) for the page
// count and reads page text with ledongthuc/pdf. A text layer that cannot be
// read leaves every page textless, so they all become render candidates.
func OpenPDF(path string) (PDFDocument, error) {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	if err := api.ValidateFile(path, conf); err != nil {
		return nil, fmt.Errorf("validate: %w", err)
	}
	count, err := api.PageCountFile(path)
	if err != nil {
		return nil, fmt.Errorf("page count: %w", err)
	}

	d := &pdfDoc{pages: count}
	f, r, err := pdf.Open(path)
	if err != nil {
		d.textErr = err
		return d, nil
	}
	d.file, d.reader = f, r
	return d, nil
}

type pdfDoc struct {
	pages   int
	file    *os.File
	reader  *pdf.Reader
	textErr error
}

func (d *pdfDoc) PageCount() int { return d.pages }

func (d *pdfDoc) PageText(n int) (text string, err error) {
	if d.reader == nil {
		return "", d.textErr
	}
	if n > d.reader.NumPage() {
		return "", nil
	}
	// the text layer parser panics on some malformed content streams
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("page %d: %v", n, r)
		}
	}()
	p := d.reader.Page(n)
	if p.V.IsNull() {
		return "", nil
	}
	text, err = p.GetPlainText(nil)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(text), nil
}

func (d *pdfDoc) Close() error {
	if d.file == nil {
		return nil
	}
	err := d.file.Close()
	if errors.Is(err, os.ErrClosed) {
		return nil
	}
	return err
}
