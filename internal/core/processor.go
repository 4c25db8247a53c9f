package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"time"

	"github.com/joseph-ayodele/docproc/constants"
	"github.com/joseph-ayodele/docproc/internal/common"
	"github.com/joseph-ayodele/docproc/internal/core/governor"
	"github.com/joseph-ayodele/docproc/internal/core/ocr"
	"github.com/joseph-ayodele/docproc/internal/core/quality"
	"github.com/joseph-ayodele/docproc/internal/core/steps"
	"github.com/joseph-ayodele/docproc/internal/entity"
	"github.com/joseph-ayodele/docproc/internal/observability"
)

// Processor runs the step chain for a document's strategy under the resource
// governor and merges every step's outcome into the Query. It is safe for
// concurrent use as long as each call gets its own Query.
type Processor struct {
	cfg      common.Config
	governor *governor.Governor
	chains   map[constants.Strategy][]steps.Step
	metrics  observability.Recorder
	logger   *slog.Logger

	runner     ocr.Runner
	recognizer ocr.Recognizer
	govOpts    []governor.Option
	noOCR      bool
}

type Option func(*Processor)

// WithChain replaces the steps run for strategy.
func WithChain(strategy constants.Strategy, chain ...steps.Step) Option {
	return func(p *Processor) {
		p.chains[strategy] = chain
	}
}

// WithRunner routes every external command (OCR engine, page renderer, HEIC
// converter) through r.
func WithRunner(r ocr.Runner) Option {
	return func(p *Processor) {
		if r != nil {
			p.runner = r
		}
	}
}

// WithRecognizer replaces the pooled OCR engine.
func WithRecognizer(r ocr.Recognizer) Option {
	return func(p *Processor) {
		p.recognizer = r
	}
}

func WithMetrics(m observability.Recorder) Option {
	return func(p *Processor) {
		if m != nil {
			p.metrics = m
		}
	}
}

func WithGovernorOptions(opts ...governor.Option) Option {
	return func(p *Processor) {
		p.govOpts = append(p.govOpts, opts...)
	}
}

func NewProcessor(cfg common.Config, logger *slog.Logger, opts ...Option) *Processor {
	if logger == nil {
		logger = slog.Default()
	}
	p := &Processor{
		cfg:     cfg,
		chains:  map[constants.Strategy][]steps.Step{},
		metrics: observability.Noop(),
		logger:  logger,
		noOCR:   cfg.OCR.Engine == "none",
	}
	for _, o := range opts {
		o(p)
	}
	if p.runner == nil {
		p.runner = ocr.NewExecRunner(logger)
	}

	p.governor = governor.New(governor.Config{
		Timeout:          cfg.Processing.Timeout(),
		MemoryLimitBytes: cfg.Processing.MemoryLimitBytes(),
		Workers:          cfg.Processing.Workers,
		TempDir:          cfg.Processing.TempDir,
		KeepTemps:        cfg.Processing.KeepTemps,
	}, logger, p.govOpts...)

	if p.recognizer == nil && !p.noOCR {
		p.recognizer = p.newEnginePool()
	}
	p.defaultChains()
	return p
}

func (p *Processor) newEnginePool() *ocr.Pool {
	tc := ocr.TesseractConfig{
		Binary:        p.cfg.OCR.Binary,
		Language:      p.cfg.OCR.Language,
		TessdataDir:   p.cfg.OCR.TessdataDir,
		PSM:           p.cfg.OCR.PSM,
		OEM:           p.cfg.OCR.OEM,
		TSVConfidence: p.cfg.OCR.TSVConfidence,
	}
	size := p.cfg.OCR.PoolSize
	if size <= 0 {
		size = p.governor.Workers()
	}
	if bin := tc.Binary; bin != "" && !ocr.Available(bin) {
		p.logger.Warn("processor.ocr.unavailable", "binary", bin)
	}
	return ocr.NewPool(size, func() ocr.Recognizer {
		return ocr.NewTesseract(tc, p.runner, p.logger)
	})
}

func (p *Processor) defaultChains() {
	validator := quality.NewValidator(p.cfg.Quality)
	image := steps.NewImageStep(p.cfg.Image, p.recognizer, validator, p.runner, p.logger)
	renderer := ocr.NewPdftoppm(p.cfg.PDF.Renderer, p.runner, p.logger)

	defaults := map[constants.Strategy][]steps.Step{
		constants.Text:        {steps.NewTextStep(p.logger)},
		constants.Spreadsheet: {steps.NewSpreadsheetStep(p.cfg.Spreadsheet, p.logger)},
		constants.Office:      {steps.NewOfficeStep(p.logger)},
		constants.PDF:         {steps.NewPDFStep(p.cfg.PDF, renderer, p.logger), image},
		constants.Image:       {image},
	}
	for s, chain := range defaults {
		if _, ok := p.chains[s]; !ok {
			p.chains[s] = chain
		}
	}
}

// Process runs q's chain to completion or to the first fatal error. q is
// updated in place and returned; on a fatal error the partially filled Query
// comes back together with that error.
func (p *Processor) Process(ctx context.Context, q *entity.Query) (*entity.Query, error) {
	if q == nil {
		return nil, common.NewAppError("INVALID_INPUT", "query is nil", common.ErrInvalidInput)
	}
	ctx, runID := common.EnsureRequestID(ctx)
	ctx = common.WithFilePath(ctx, q.FilePath)
	logger := p.logger.With("run_id", runID, "file", q.FilePath)

	meta := q.Meta()
	start := time.Now()
	meta.StartedAt = start.UnixMilli()

	strategy, ext, ok := constants.StrategyFor(q.FileType, q.FilePath)
	status := constants.StepSuccess
	defer func() {
		end := time.Now()
		meta.CompletedAt = max(end.UnixMilli(), meta.StartedAt)
		meta.TotalDurationMs = end.Sub(start).Milliseconds()
		if len(meta.Errors) > 0 && status == constants.StepSuccess {
			status = constants.StepWarning
		}
		p.metrics.RecordDocument(ctx, string(strategy), string(status), end.Sub(start))
		logger.Info("processor.done",
			"strategy", strategy,
			"status", status,
			"steps", len(meta.Steps),
			"prompt_parts", len(q.PromptParts),
			"attachments", len(q.Attachments),
			"duration_ms", meta.TotalDurationMs,
		)
	}()

	if !ok {
		status = constants.StepFailure
		err := common.NewProcessError(common.ErrUnsupportedFormat, "", fmt.Sprintf("file type %q", displayType(q.FileType, ext)), nil)
		q.AddError(err.Error())
		return q, err
	}
	q.Strategy = string(strategy)

	fi, err := os.Stat(q.FilePath)
	if err != nil {
		status = constants.StepFailure
		perr := common.NewProcessError(common.ErrIO, "", "stat source", err)
		q.AddError(perr.Error())
		return q, perr
	}
	meta.OriginalFileSize = fi.Size()

	ctx, cancel := p.governor.Begin(ctx)
	defer cancel()

	// pages[i] is the page of q.PromptParts[i]; parts from later steps are
	// slotted in page order.
	pages := make([]int, len(q.PromptParts))
	for _, step := range p.chains[strategy] {
		in := steps.Input{Query: q.Snapshot(), Ext: ext, Strategy: strategy}
		out, usage, runErr := governor.Run(ctx, p.governor, step.Name(), func(ctx context.Context, b governor.Budget) steps.Outcome {
			return step.Run(ctx, in, b)
		})
		if runErr != nil {
			out = steps.Fail(runErr, true)
		}

		stepStatus := out.StepStatus()
		q.AddStep(entity.ProcessingStep{
			Name:       step.Name(),
			DurationMs: usage.Duration.Milliseconds(),
			Status:     string(stepStatus),
			MemoryMb:   usage.MemoryMB(),
		})
		p.metrics.RecordStep(ctx, step.Name(), string(stepStatus), usage.Duration)

		for _, w := range out.Warnings {
			q.AddError(w)
		}
		pages = mergeParts(q, pages, out.Parts)
		if out.ReplaceAttachments {
			q.Attachments = append([]entity.Attachment(nil), out.Attachments...)
		} else {
			q.Attachments = append(q.Attachments, out.Attachments...)
		}
		sort.SliceStable(q.Attachments, func(i, j int) bool { return q.Attachments[i].Page < q.Attachments[j].Page })

		if out.Status != steps.Failed {
			logger.Debug("processor.step.done", "step", step.Name(), "status", stepStatus, "duration_ms", usage.Duration.Milliseconds())
			continue
		}
		q.AddError(stepError(step.Name(), out.Err))
		logger.Warn("processor.step.failed", "step", step.Name(), "fatal", out.Fatal, "duration_ms", usage.Duration.Milliseconds(), "err", out.Err)
		if out.Fatal {
			status = constants.StepFailure
			return q, asProcessError(step.Name(), out.Err)
		}
	}
	return q, nil
}

// mergeParts inserts each part before the first existing part of a higher
// page. Unpaginated parts (page 0) go last.
func mergeParts(q *entity.Query, pages []int, parts []steps.Part) []int {
	for _, part := range parts {
		at := len(pages)
		if part.Page > 0 {
			for i, pg := range pages {
				if pg > part.Page {
					at = i
					break
				}
			}
		}
		pages = append(pages[:at], append([]int{part.Page}, pages[at:]...)...)
		q.PromptParts = append(q.PromptParts[:at], append([]string{part.Text}, q.PromptParts[at:]...)...)
	}
	return pages
}

func stepError(step string, err error) string {
	if err == nil {
		return step + ": failed"
	}
	var pe *common.ProcessError
	if errors.As(err, &pe) && pe.Step != "" {
		return err.Error()
	}
	return step + ": " + err.Error()
}

// asProcessError makes sure callers can match the failure kind.
func asProcessError(step string, err error) error {
	var pe *common.ProcessError
	if errors.As(err, &pe) {
		return err
	}
	kind := common.KindOf(err)
	if kind == nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			kind = common.ErrTimeout
		} else {
			kind = common.ErrDecode
		}
	}
	return common.NewProcessError(kind, step, "", err)
}

func displayType(fileType, ext string) string {
	if fileType != "" {
		return fileType
	}
	return ext
}
