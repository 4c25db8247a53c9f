package ocr

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// baseDPI is the PDF user-space resolution; render scale multiplies it.
const baseDPI = 72

// PageRenderer rasterizes one PDF page to PNG bytes. outDir is owned by the
// calling step and removed by it.
type PageRenderer interface {
	RenderPage(ctx context.Context, pdfPath string, page int, scale float64, outDir string) ([]byte, error)
}

// Pdftoppm renders pages with poppler's pdftoppm.
type Pdftoppm struct {
	Binary string // binary name or absolute path; if empty -> "pdftoppm"
	runner Runner
	logger *slog.Logger
}

func NewPdftoppm(binary string, runner Runner, logger *slog.Logger) *Pdftoppm {
	if logger == nil {
		logger = slog.Default()
	}
	if runner == nil {
		runner = NewExecRunner(logger)
	}
	if binary == "" {
		binary = "pdftoppm"
	}
	return &Pdftoppm{Binary: binary, runner: runner, logger: logger}
}

// DPIForScale converts a render scale to the DPI handed to the rasterizer.
func DPIForScale(scale float64) int {
	return int(math.Round(baseDPI * scale))
}

// RenderPage runs `pdftoppm -r <dpi> -f n -l n -png -singlefile in out/page-n`.
func (p *Pdftoppm) RenderPage(ctx context.Context, pdfPath string, page int, scale float64, outDir string) ([]byte, error) {
	prefix := filepath.Join(outDir, "page-"+strconv.Itoa(page))
	n := strconv.Itoa(page)
	_, errb, err := p.runner.Run(ctx, p.Binary,
		"-r", strconv.Itoa(DPIForScale(scale)),
		"-f", n, "-l", n,
		"-png", "-singlefile",
		pdfPath, prefix,
	)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("pdftoppm page %d: %w: %s", page, err, strings.TrimSpace(truncate(string(errb), 512)))
	}
	data, err := os.ReadFile(prefix + ".png")
	if err != nil {
		return nil, fmt.Errorf("pdftoppm produced no image for page %d: %w", page, err)
	}
	return data, nil
}
