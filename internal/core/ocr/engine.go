// Package ocr binds the external recognition and rendering engines: tesseract
// for text recognition, pdftoppm for page rendering and the HEIC converters.
package ocr

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/joseph-ayodele/docproc/internal/common"
)

// Result is the raw output of one recognition call.
type Result struct {
	Text string
	// Confidence is the engine's mean word confidence in 0..1, or -1 when the
	// engine did not report one.
	Confidence float64
}

// Recognizer turns an image file into text.
type Recognizer interface {
	Recognize(ctx context.Context, imagePath string) (Result, error)
}

// TesseractConfig configures the tesseract CLI binding.
type TesseractConfig struct {
	Binary        string // binary name or absolute path; if empty -> "tesseract"
	Language      string // default "eng"
	TessdataDir   string
	PSM           int // e.g., 6 is good for uniform block of text
	OEM           int // 1 = LSTM; leave 0 to use default
	TSVConfidence bool
}

// Tesseract runs the tesseract CLI once per call, so it holds no state between
// images. It is still checked out of a Pool to bound concurrent processes.
type Tesseract struct {
	cfg    TesseractConfig
	runner Runner
	logger *slog.Logger
}

func NewTesseract(cfg TesseractConfig, runner Runner, logger *slog.Logger) *Tesseract {
	if logger == nil {
		logger = slog.Default()
	}
	if runner == nil {
		runner = NewExecRunner(logger)
	}
	if cfg.Binary == "" {
		cfg.Binary = "tesseract"
	}
	if cfg.Language == "" {
		cfg.Language = "eng"
	}
	return &Tesseract{cfg: cfg, runner: runner, logger: logger}
}

// Recognize runs `tesseract <file> stdout -l <lang>`.
func (t *Tesseract) Recognize(ctx context.Context, path string) (Result, error) {
	out, errb, err := t.runner.Run(ctx, t.cfg.Binary, t.args(path)...)
	if err != nil {
		if ctx.Err() != nil {
			return Result{}, ctx.Err()
		}
		return Result{}, common.NewProcessError(common.ErrRecognition, "", "tesseract: "+strings.TrimSpace(truncate(string(errb), 512)), err)
	}
	res := Result{Text: string(out), Confidence: -1}

	if t.cfg.TSVConfidence {
		conf, err := t.tsvConfidence(ctx, path)
		if err != nil {
			t.logger.Warn("tesseract tsv confidence failed", "path", path, "error", err)
		} else {
			res.Confidence = conf
		}
	}
	return res, nil
}

func (t *Tesseract) args(path string, extra ...string) []string {
	args := []string{path, "stdout", "-l", t.cfg.Language}
	if t.cfg.PSM > 0 {
		args = append(args, "--psm", strconv.Itoa(t.cfg.PSM))
	}
	if t.cfg.OEM > 0 {
		args = append(args, "--oem", strconv.Itoa(t.cfg.OEM))
	}
	if t.cfg.TessdataDir != "" {
		args = append(args, "--tessdata-dir", t.cfg.TessdataDir)
	}
	return append(args, extra...)
}

// tsvConfidence runs tesseract in TSV mode and returns mean word conf in 0..1.
func (t *Tesseract) tsvConfidence(ctx context.Context, path string) (float64, error) {
	out, _, err := t.runner.Run(ctx, t.cfg.Binary, t.args(path, "tsv")...)
	if err != nil {
		return -1, fmt.Errorf("tesseract tsv: %w", err)
	}
	return MeanTSVConfidence(string(out)), nil
}

// MeanTSVConfidence averages the conf column of tesseract TSV output, skipping
// the header and non-word rows (conf -1). Returns -1 when no word rows exist.
func MeanTSVConfidence(tsv string) float64 {
	var sum, n float64
	for i, ln := range strings.Split(tsv, "\n") {
		if i == 0 || ln == "" {
			continue
		}
		cols := strings.Split(ln, "\t")
		if len(cols) < 12 {
			continue
		}
		confStr := cols[10]
		if confStr == "" || confStr == "-1" {
			continue
		}
		if v, err := strconv.ParseFloat(confStr, 64); err == nil && v >= 0 {
			sum += v
			n++
		}
	}
	if n == 0 {
		return -1
	}
	return sum / n / 100.0
}
