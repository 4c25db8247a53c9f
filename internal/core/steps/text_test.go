package steps

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/docproc/constants"
	"github.com/joseph-ayodele/docproc/internal/common"
)

func TestTextStep_PlainFile(t *testing.T) {
	p := writeFile(t, t.TempDir(), "note.txt", []byte("Hello   world\r\nsecond line\f\n\n- 3 -\n"))

	out := NewTextStep(nil).Run(context.Background(), input(p), budget(t, 1))
	require.Equal(t, Completed, out.Status)
	require.Len(t, out.Parts, 1)
	assert.Equal(t, "<EXTRACTED_DATA>Hello world\nsecond line</EXTRACTED_DATA>", out.Parts[0].Text)
	assert.Equal(t, 0, out.Parts[0].Page)
	assert.Equal(t, constants.StepSuccess, out.StepStatus())
}

func TestTextStep_InvalidUTF8IsFatalDecodeError(t *testing.T) {
	p := writeFile(t, t.TempDir(), "bad.txt", []byte{'o', 'k', 0xff, 0xfe, 0xfd})

	out := NewTextStep(nil).Run(context.Background(), input(p), budget(t, 1))
	assert.Equal(t, Failed, out.Status)
	assert.True(t, out.Fatal)
	assert.ErrorIs(t, out.Err, common.ErrDecode)
	assert.Equal(t, constants.StepFailure, out.StepStatus())
}

func TestTextStep_MissingFileIsIOError(t *testing.T) {
	out := NewTextStep(nil).Run(context.Background(), input("/does/not/exist.txt"), budget(t, 1))
	assert.Equal(t, Failed, out.Status)
	assert.ErrorIs(t, out.Err, common.ErrIO)
}

func TestTextStep_EmptyFileIsSkipped(t *testing.T) {
	p := writeFile(t, t.TempDir(), "empty.md", []byte(" \n\t\n"))
	out := NewTextStep(nil).Run(context.Background(), input(p), budget(t, 1))
	assert.Equal(t, Skipped, out.Status)
	assert.Empty(t, out.Parts)
}

func TestTextStep_HTML(t *testing.T) {
	src := `<html><head><title>T</title><style>p { color: red }</style></head>
<body><p>One</p><script>alert("x")</script><div>Two <b>bold</b></div></body></html>`
	p := writeFile(t, t.TempDir(), "page.html", []byte(src))

	out := NewTextStep(nil).Run(context.Background(), input(p), budget(t, 1))
	require.Len(t, out.Parts, 1)
	assert.Equal(t, "<EXTRACTED_DATA>One\nTwo bold</EXTRACTED_DATA>", out.Parts[0].Text)
}

func TestDecodeText(t *testing.T) {
	tests := []struct {
		name    string
		in      []byte
		want    string
		wantErr bool
	}{
		{"utf8", []byte("plain"), "plain", false},
		{"utf8 bom", append([]byte{0xEF, 0xBB, 0xBF}, "bom"...), "bom", false},
		{"utf16 le", []byte{0xFF, 0xFE, 'h', 0, 'i', 0}, "hi", false},
		{"utf16 be", []byte{0xFE, 0xFF, 0, 'h', 0, 'i'}, "hi", false},
		{"latin1", []byte{'c', 'a', 'f', 0xe9}, "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeText(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestTags(t *testing.T) {
	assert.Equal(t, "<EXTRACTED_DATA PAGE=2>x</EXTRACTED_DATA>", Extracted(PageAttr(2), "x"))
	assert.Equal(t, `<EXTRACTED_DATA SHEET="Q1">x</EXTRACTED_DATA>`, Extracted(SheetAttr("Q1"), "x"))
	assert.Equal(t, "<EXTRACTED_DATA SLIDE=3>x</EXTRACTED_DATA>", Extracted(SlideAttr(3), "x"))
	assert.Equal(t, "<OCR PAGE=1>x</OCR>", OCRText(1, "x", false))
	assert.Equal(t, "<OCR PAGE=4 QUALITY=LOW>x</OCR>", OCRText(4, "x", true))
}

func TestOutcomeStatus(t *testing.T) {
	assert.Equal(t, Completed, Done(nil, nil, nil).Status)
	assert.Equal(t, CompletedWithWarnings, Done(nil, nil, []string{"w"}).Status)
	assert.Equal(t, constants.StepWarning, Done(nil, nil, []string{"w"}).StepStatus())
	assert.Equal(t, constants.StepSkipped, Skip("nothing").StepStatus())
	assert.Equal(t, "image", KindImage.String())
}
