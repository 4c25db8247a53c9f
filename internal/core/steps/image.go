package steps

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strings"

	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/joseph-ayodele/docproc/constants"
	"github.com/joseph-ayodele/docproc/internal/common"
	"github.com/joseph-ayodele/docproc/internal/core/governor"
	"github.com/joseph-ayodele/docproc/internal/core/normalize"
	"github.com/joseph-ayodele/docproc/internal/core/ocr"
	"github.com/joseph-ayodele/docproc/internal/core/quality"
	"github.com/joseph-ayodele/docproc/internal/entity"
)

// areaKernel is a box filter; x/image/draw widens it by the scale factor when
// shrinking, which averages every source pixel under a destination pixel.
var areaKernel = &draw.Kernel{Support: 0.5, At: func(float64) float64 { return 1 }}

// errTooLarge marks an optimized image still above image.max_size_mb.
var errTooLarge = errors.New("optimized image exceeds size limit")

// ImageStep optimizes images for downstream consumers and runs OCR on them.
// For the image strategy it reads the source file; in the PDF chain it
// re-optimizes and recognizes the pages the PDF step rendered.
type ImageStep struct {
	cfg        common.ImageConfig
	recognizer ocr.Recognizer
	validator  *quality.Validator
	runner     ocr.Runner
	logger     *slog.Logger
}

// NewImageStep builds the step. A nil recognizer disables OCR; runner is used
// for HEIC conversion.
func NewImageStep(cfg common.ImageConfig, recognizer ocr.Recognizer, validator *quality.Validator, runner ocr.Runner, logger *slog.Logger) *ImageStep {
	if logger == nil {
		logger = slog.Default()
	}
	if validator == nil {
		validator = quality.NewValidator(quality.DefaultThresholds())
	}
	if runner == nil {
		runner = ocr.NewExecRunner(logger)
	}
	if cfg.MaxDimension <= 0 {
		cfg.MaxDimension = 1600
	}
	return &ImageStep{cfg: cfg, recognizer: recognizer, validator: validator, runner: runner, logger: logger}
}

func (s *ImageStep) Name() string { return "image" }
func (s *ImageStep) Kind() Kind   { return KindImage }

type imageUnit struct {
	page int
	data []byte
}

type unitResult struct {
	part       *Part
	attachment *entity.Attachment
	warnings   []string
}

func (s *ImageStep) Run(ctx context.Context, in Input, b governor.Budget) Outcome {
	var (
		units  []imageUnit
		single = in.Strategy == constants.Image
	)
	if single {
		data, err := s.readSource(ctx, in, b.TempDir)
		if err != nil {
			return s.fail(err, true)
		}
		units = []imageUnit{{page: 1, data: data}}
	} else {
		for _, a := range in.Query.Attachments {
			units = append(units, imageUnit{page: int(a.Page), data: a.Data})
		}
		if len(units) == 0 {
			return Skip("")
		}
	}

	results, errs := governor.ParallelMap(ctx, b.Workers, len(units), func(ctx context.Context, i int) (unitResult, error) {
		return s.process(ctx, units[i], b.TempDir)
	})
	if err := ctx.Err(); err != nil {
		return Fail(err, true)
	}

	var (
		parts    []Part
		atts     []entity.Attachment
		warnings []string
		failed   int
	)
	for i, r := range results {
		if err := errs[i]; err != nil {
			if single || errors.Is(err, common.ErrBufferMismatch) {
				return s.fail(err, true)
			}
			failed++
			warnings = append(warnings, fmt.Sprintf("image: page %d: %v", units[i].page, err))
			s.logger.Warn("image.page.failed", "file", in.Query.FilePath, "page", units[i].page, "err", err)
			continue
		}
		if r.part != nil {
			parts = append(parts, *r.part)
		}
		if r.attachment != nil {
			atts = append(atts, *r.attachment)
		}
		warnings = append(warnings, r.warnings...)
	}

	if failed == len(units) {
		return Fail(common.NewProcessError(common.ErrDecode, s.Name(),
			fmt.Sprintf("all %d rendered pages failed", failed), nil), true)
	}

	out := Done(parts, atts, warnings)
	out.ReplaceAttachments = !single
	return out
}

func (s *ImageStep) fail(err error, fatal bool) Outcome {
	var pe *common.ProcessError
	if errors.As(err, &pe) {
		return Fail(pe, fatal || pe.Fatal())
	}
	return Fail(common.NewProcessError(common.ErrDecode, s.Name(), "", err), fatal)
}

// readSource loads the source image, converting HEIC/HEIF to PNG first.
func (s *ImageStep) readSource(ctx context.Context, in Input, dir string) ([]byte, error) {
	p := in.Query.FilePath
	if constants.IsHEICExt(in.Ext) {
		converted, err := ocr.ConvertHEICtoPNG(ctx, s.runner, s.cfg.HeicConverter, p, dir)
		if err != nil {
			return nil, common.NewProcessError(common.ErrDecode, s.Name(), "convert heic", err)
		}
		p = converted
	}
	data, err := os.ReadFile(p)
	if err != nil {
		return nil, common.NewProcessError(common.ErrIO, s.Name(), "read image", err)
	}
	return data, nil
}

func (s *ImageStep) process(ctx context.Context, u imageUnit, dir string) (unitResult, error) {
	img, format, err := image.Decode(bytes.NewReader(u.data))
	if err != nil {
		return unitResult{}, common.NewProcessError(common.ErrDecode, s.Name(), "decode image", err)
	}
	if err := CheckBuffer(img); err != nil {
		return unitResult{}, common.NewProcessError(common.ErrBufferMismatch, s.Name(), fmt.Sprintf("page %d", u.page), err)
	}

	var res unitResult
	data, ext := u.data, format
	if s.cfg.Compression {
		opt, err := Optimize(img, s.cfg.MaxDimension, mbToBytes(s.cfg.TargetSizeMB), mbToBytes(s.cfg.MaxSizeMB))
		switch {
		case errors.Is(err, errTooLarge):
			res.warnings = append(res.warnings, fmt.Sprintf("image: page %d: %v (%d bytes)", u.page, err, len(opt)))
		case err != nil:
			return unitResult{}, common.NewProcessError(common.ErrDecode, s.Name(), "encode image", err)
		default:
			res.attachment = &entity.Attachment{Page: int32(u.page), Data: opt}
		}
		if len(opt) > 0 {
			data, ext = opt, "png"
		}
	} else {
		res.attachment = &entity.Attachment{Page: int32(u.page), Data: u.data}
	}

	if s.recognizer == nil {
		return res, nil
	}
	part, warn, err := s.recognize(ctx, u.page, data, ext, dir)
	if err != nil {
		return unitResult{}, err
	}
	res.part = part
	if warn != "" {
		res.warnings = append(res.warnings, warn)
	}
	return res, nil
}

// recognize runs OCR on one page. Engine failures are warnings; only context
// errors are returned.
func (s *ImageStep) recognize(ctx context.Context, page int, data []byte, ext, dir string) (*Part, string, error) {
	path := filepath.Join(dir, fmt.Sprintf("ocr-page-%d.%s", page, ext))
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return nil, "", common.NewProcessError(common.ErrIO, s.Name(), "write ocr input", err)
	}
	r, err := s.recognizer.Recognize(ctx, path)
	if err != nil {
		if ctx.Err() != nil {
			return nil, "", ctx.Err()
		}
		if !errors.Is(err, common.ErrRecognition) {
			err = common.NewProcessError(common.ErrRecognition, "", "", err)
		}
		return nil, fmt.Sprintf("image: page %d: %v", page, err), nil
	}

	text := normalize.Text(r.Text)
	if text == "" {
		return nil, fmt.Sprintf("image: page %d: no text recognized", page), nil
	}
	v := s.validator.Validate(text)
	conf := v.Confidence
	if r.Confidence >= 0 {
		conf = 0.7*r.Confidence + 0.3*v.Confidence
	}
	s.logger.Debug("image.ocr", "page", page, "pass", v.Pass, "confidence", conf, "chars", len(text))

	part := &Part{Page: page, Text: OCRText(page, text, !v.Pass)}
	if v.Pass {
		return part, "", nil
	}
	return part, fmt.Sprintf("image: page %d: low OCR quality (confidence %.2f): %s", page, conf, strings.Join(v.Reasons, "; ")), nil
}

func mbToBytes(mb float64) int {
	if mb <= 0 {
		return 0
	}
	return int(mb * (1 << 20))
}

// CheckBuffer verifies that a decoded image's pixel storage covers its bounds.
func CheckBuffer(img image.Image) error {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w <= 0 || h <= 0 {
		return fmt.Errorf("empty bounds %v", b)
	}
	var n, stride, bpp int
	switch m := img.(type) {
	case *image.RGBA:
		n, stride, bpp = len(m.Pix), m.Stride, 4
	case *image.NRGBA:
		n, stride, bpp = len(m.Pix), m.Stride, 4
	case *image.RGBA64:
		n, stride, bpp = len(m.Pix), m.Stride, 8
	case *image.NRGBA64:
		n, stride, bpp = len(m.Pix), m.Stride, 8
	case *image.Gray:
		n, stride, bpp = len(m.Pix), m.Stride, 1
	case *image.Gray16:
		n, stride, bpp = len(m.Pix), m.Stride, 2
	case *image.Alpha:
		n, stride, bpp = len(m.Pix), m.Stride, 1
	case *image.Paletted:
		n, stride, bpp = len(m.Pix), m.Stride, 1
	case *image.CMYK:
		n, stride, bpp = len(m.Pix), m.Stride, 4
	case *image.YCbCr:
		n, stride, bpp = len(m.Y), m.YStride, 1
	default:
		return nil
	}
	if stride < w*bpp || n < stride*(h-1)+w*bpp {
		return fmt.Errorf("%dx%d image needs %d bytes, buffer has %d (stride %d)", w, h, stride*(h-1)+w*bpp, n, stride)
	}
	return nil
}

// Flatten composites img onto an opaque white canvas.
func Flatten(img image.Image) *image.RGBA {
	b := img.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), &image.Uniform{C: color.White}, image.Point{}, draw.Src)
	draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Over)
	return dst
}

// Resize scales img so its longer side is at most maxDim, keeping the aspect
// ratio. Images already within bounds are returned as is.
func Resize(img *image.RGBA, maxDim int) *image.RGBA {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if maxDim <= 0 || (w <= maxDim && h <= maxDim) {
		return img
	}
	scale := float64(maxDim) / float64(max(w, h))
	return scaleTo(img, scale)
}

func scaleTo(img *image.RGBA, scale float64) *image.RGBA {
	b := img.Bounds()
	nw := max(1, int(math.Round(float64(b.Dx())*scale)))
	nh := max(1, int(math.Round(float64(b.Dy())*scale)))
	dst := image.NewRGBA(image.Rect(0, 0, nw, nh))
	areaKernel.Scale(dst, dst.Bounds(), img, b, draw.Src, nil)
	return dst
}

func encodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	enc := png.Encoder{CompressionLevel: png.BestCompression}
	if err := enc.Encode(&buf, img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Optimize flattens, resizes and PNG-encodes img. Output above targetBytes is
// shrunk once more by the size ratio; output still above maxBytes is returned
// together with errTooLarge.
func Optimize(img image.Image, maxDim, targetBytes, maxBytes int) ([]byte, error) {
	flat := Resize(Flatten(img), maxDim)
	out, err := encodePNG(flat)
	if err != nil {
		return nil, err
	}
	if targetBytes > 0 && len(out) > targetBytes {
		smaller := scaleTo(flat, math.Sqrt(float64(targetBytes)/float64(len(out))))
		if out, err = encodePNG(smaller); err != nil {
			return nil, err
		}
	}
	if maxBytes > 0 && len(out) > maxBytes {
		return out, errTooLarge
	}
	return out, nil
}
