package steps

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"os"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/docproc/constants"
	"github.com/joseph-ayodele/docproc/internal/common"
	"github.com/joseph-ayodele/docproc/internal/core/ocr"
	"github.com/joseph-ayodele/docproc/internal/entity"
)

type fakeRecognizer struct {
	mu    sync.Mutex
	res   ocr.Result
	err   error
	paths []string
}

func (f *fakeRecognizer) Recognize(_ context.Context, path string) (ocr.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, err := os.Stat(path); err != nil {
		return ocr.Result{}, err
	}
	f.paths = append(f.paths, path)
	return f.res, f.err
}

func imageConfig(compression bool) common.ImageConfig {
	return common.ImageConfig{MaxDimension: 1600, MaxSizeMB: 3, TargetSizeMB: 2, Compression: compression}
}

func TestImageStep_RecognizesSingleImage(t *testing.T) {
	p := writeFile(t, t.TempDir(), "receipt.png", pngBytes(t, 40, 20, color.Black))
	rec := &fakeRecognizer{res: ocr.Result{Text: "The quick brown fox jumped over the lazy dog", Confidence: 0.9}}
	step := NewImageStep(imageConfig(true), rec, nil, nil, nil)

	out := step.Run(context.Background(), input(p), budget(t, 1))
	require.Equal(t, Completed, out.Status, out.Warnings)
	require.Len(t, out.Parts, 1)
	assert.Equal(t, "<OCR PAGE=1>The quick brown fox jumped over the lazy dog</OCR>", out.Parts[0].Text)
	require.Len(t, out.Attachments, 1)
	assert.Equal(t, int32(1), out.Attachments[0].Page)
	assert.False(t, out.ReplaceAttachments)
	assert.Len(t, rec.paths, 1)
}

func TestImageStep_LowQualityTextIsKeptAndFlagged(t *testing.T) {
	p := writeFile(t, t.TempDir(), "smudged.png", pngBytes(t, 10, 10, color.White))
	rec := &fakeRecognizer{res: ocr.Result{Text: "Th3 qu1ck br0wn f0x jum*ped ov&r th& l@zy d0g", Confidence: -1}}

	out := NewImageStep(imageConfig(true), rec, nil, nil, nil).Run(context.Background(), input(p), budget(t, 1))
	require.Equal(t, CompletedWithWarnings, out.Status)
	require.Len(t, out.Parts, 1)
	assert.Contains(t, out.Parts[0].Text, "<OCR PAGE=1 QUALITY=LOW>")
	require.Len(t, out.Warnings, 1)
	assert.Contains(t, out.Warnings[0], "low OCR quality")
}

func TestImageStep_RecognizerFailureIsWarning(t *testing.T) {
	p := writeFile(t, t.TempDir(), "photo.png", pngBytes(t, 10, 10, color.White))
	rec := &fakeRecognizer{err: errors.New("tesseract: exit status 1")}

	out := NewImageStep(imageConfig(true), rec, nil, nil, nil).Run(context.Background(), input(p), budget(t, 1))
	require.Equal(t, CompletedWithWarnings, out.Status)
	assert.Empty(t, out.Parts)
	assert.Len(t, out.Attachments, 1)
	require.Len(t, out.Warnings, 1)
	assert.Contains(t, out.Warnings[0], common.ErrRecognition.Error())
}

func TestImageStep_NoCompressionKeepsOriginalBytes(t *testing.T) {
	data := pngBytes(t, 12, 8, color.RGBA{R: 200, A: 255})
	p := writeFile(t, t.TempDir(), "raw.png", data)

	out := NewImageStep(imageConfig(false), nil, nil, nil, nil).Run(context.Background(), input(p), budget(t, 1))
	require.Equal(t, Completed, out.Status)
	require.Len(t, out.Attachments, 1)
	assert.Equal(t, data, out.Attachments[0].Data)
	assert.Empty(t, out.Parts)
}

func TestImageStep_DecodeFailureIsFatalForSingleImage(t *testing.T) {
	p := writeFile(t, t.TempDir(), "broken.jpg", []byte("not a jpeg"))
	out := NewImageStep(imageConfig(true), nil, nil, nil, nil).Run(context.Background(), input(p), budget(t, 1))
	assert.Equal(t, Failed, out.Status)
	assert.True(t, out.Fatal)
	assert.ErrorIs(t, out.Err, common.ErrDecode)
}

func TestImageStep_RenderedPages(t *testing.T) {
	in := input("/data/scan.pdf")
	require.Equal(t, constants.PDF, in.Strategy)
	in.Query.Attachments = []entity.Attachment{
		{Page: 2, Data: pngBytes(t, 30, 30, color.White)},
		{Page: 5, Data: []byte("corrupt")},
		{Page: 7, Data: pngBytes(t, 30, 30, color.White)},
	}
	rec := &fakeRecognizer{res: ocr.Result{Text: "Total 1250.00 due 2024/05/01 net 30 days", Confidence: 0.8}}

	out := NewImageStep(imageConfig(true), rec, nil, nil, nil).Run(context.Background(), in, budget(t, 3))
	require.Equal(t, CompletedWithWarnings, out.Status)
	assert.True(t, out.ReplaceAttachments)
	require.Len(t, out.Parts, 2)
	assert.Equal(t, 2, out.Parts[0].Page)
	assert.Equal(t, "<OCR PAGE=7>Total 1250.00 due 2024/05/01 net 30 days</OCR>", out.Parts[1].Text)
	require.Len(t, out.Attachments, 2)
	assert.Equal(t, int32(2), out.Attachments[0].Page)
	assert.Equal(t, int32(7), out.Attachments[1].Page)
	require.Len(t, out.Warnings, 1)
	assert.Contains(t, out.Warnings[0], "page 5")
}

func TestImageStep_AllRenderedPagesFailing(t *testing.T) {
	in := input("/data/scan.pdf")
	in.Query.Attachments = []entity.Attachment{
		{Page: 1, Data: []byte("corrupt")},
		{Page: 2, Data: []byte("also corrupt")},
	}

	out := NewImageStep(imageConfig(true), nil, nil, nil, nil).Run(context.Background(), in, budget(t, 2))
	assert.Equal(t, Failed, out.Status)
	assert.True(t, out.Fatal)
	assert.ErrorIs(t, out.Err, common.ErrDecode)
	assert.False(t, out.ReplaceAttachments)
	assert.Empty(t, out.Attachments)
}

func TestImageStep_NoRenderedPagesIsSkipped(t *testing.T) {
	out := NewImageStep(imageConfig(true), nil, nil, nil, nil).Run(context.Background(), input("/data/scan.pdf"), budget(t, 1))
	assert.Equal(t, Skipped, out.Status)
	assert.Empty(t, out.Warnings)
}

func TestFlatten(t *testing.T) {
	src := image.NewNRGBA(image.Rect(0, 0, 2, 1))
	src.Set(0, 0, color.NRGBA{})
	src.Set(1, 0, color.NRGBA{B: 255, A: 255})

	got := Flatten(src)
	assert.Equal(t, color.RGBA{R: 255, G: 255, B: 255, A: 255}, got.RGBAAt(0, 0))
	assert.Equal(t, color.RGBA{B: 255, A: 255}, got.RGBAAt(1, 0))
}

func TestResize(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 400, 200))
	got := Resize(img, 100)
	assert.Equal(t, 100, got.Bounds().Dx())
	assert.Equal(t, 50, got.Bounds().Dy())

	small := image.NewRGBA(image.Rect(0, 0, 40, 20))
	assert.Same(t, small, Resize(small, 100))
}

func TestCheckBuffer(t *testing.T) {
	ok := image.NewRGBA(image.Rect(0, 0, 4, 4))
	assert.NoError(t, CheckBuffer(ok))

	short := &image.RGBA{Pix: make([]uint8, 10), Stride: 16, Rect: image.Rect(0, 0, 4, 4)}
	assert.Error(t, CheckBuffer(short))

	narrow := &image.Gray{Pix: make([]uint8, 64), Stride: 2, Rect: image.Rect(0, 0, 4, 4)}
	assert.Error(t, CheckBuffer(narrow))
}

func TestOptimize(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 300, 100))
	out, err := Optimize(img, 150, 0, 0)
	require.NoError(t, err)
	cfg, err := png.DecodeConfig(bytes.NewReader(out))
	require.NoError(t, err)
	assert.Equal(t, 150, cfg.Width)
	assert.Equal(t, 50, cfg.Height)

	_, err = Optimize(img, 150, 0, 10)
	assert.ErrorIs(t, err, errTooLarge)
}
