package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/joseph-ayodele/docproc/constants"
	"github.com/joseph-ayodele/docproc/internal/common"
	"github.com/joseph-ayodele/docproc/internal/core/normalize"
	"github.com/joseph-ayodele/docproc/internal/core/ocr"
	"github.com/joseph-ayodele/docproc/internal/core/quality"
)

// report is what runocr prints for one image.
type report struct {
	File       string          `json:"file"`
	Text       string          `json:"text"`
	Confidence float64         `json:"engine_confidence"`
	Verdict    quality.Verdict `json:"verdict"`
	DurationMs int64           `json:"duration_ms"`
}

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if len(os.Args) != 2 {
		logger.Error("usage", "cmd", "runocr <image-file>")
		os.Exit(2)
	}
	path := os.Args[1]

	cfg, err := common.LoadConfig(os.Getenv("DOCPROC_CONFIG"))
	if err != nil {
		logger.Error("load config", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	runner := ocr.NewExecRunner(logger)
	if constants.IsHEICExt(filepath.Ext(path)) {
		tmp, err := os.MkdirTemp(cfg.Processing.TempDir, "runocr-*")
		if err != nil {
			logger.Error("temp dir", "error", err)
			os.Exit(1)
		}
		defer os.RemoveAll(tmp)
		if path, err = ocr.ConvertHEICtoPNG(ctx, runner, cfg.Image.HeicConverter, path, tmp); err != nil {
			logger.Error("heic conversion failed", "file", os.Args[1], "error", err)
			os.Exit(1)
		}
	}

	engine := ocr.NewTesseract(ocr.TesseractConfig{
		Binary:        cfg.OCR.Binary,
		Language:      cfg.OCR.Language,
		TessdataDir:   cfg.OCR.TessdataDir,
		PSM:           cfg.OCR.PSM,
		OEM:           cfg.OCR.OEM,
		TSVConfidence: cfg.OCR.TSVConfidence,
	}, runner, logger)

	start := time.Now()
	res, err := engine.Recognize(ctx, path)
	dur := time.Since(start)
	if err != nil {
		logger.Error("recognition failed", "file", path, "error", err, "duration_ms", dur.Milliseconds())
		os.Exit(1)
	}

	text := normalize.Text(res.Text)
	out := report{
		File:       os.Args[1],
		Text:       text,
		Confidence: res.Confidence,
		Verdict:    quality.NewValidator(cfg.Quality).Validate(text),
		DurationMs: dur.Milliseconds(),
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		logger.Error("write report", "error", err)
		os.Exit(1)
	}
	if !out.Verdict.Pass {
		logger.Warn("text failed quality validation", "reasons", out.Verdict.Reasons)
	}
}
