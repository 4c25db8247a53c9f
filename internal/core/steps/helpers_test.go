package steps

import (
	"archive/zip"
	"bytes"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/docproc/constants"
	"github.com/joseph-ayodele/docproc/internal/core/governor"
	"github.com/joseph-ayodele/docproc/internal/entity"
)

const (
	waitFor = 2 * time.Second
	tick    = 5 * time.Millisecond
)

// writeZip writes a zip archive with the given entries into dir.
func writeZip(t *testing.T, dir, name string, entries map[string]string) string {
	t.Helper()
	buf := new(bytes.Buffer)
	w := zip.NewWriter(buf)
	for n, body := range entries {
		f, err := w.Create(n)
		require.NoError(t, err)
		_, err = f.Write([]byte(body))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, buf.Bytes(), 0o644))
	return p
}

func writeFile(t *testing.T, dir, name string, data []byte) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, data, 0o644))
	return p
}

func input(path string) Input {
	s, ext, _ := constants.StrategyFor("", path)
	return Input{Query: *entity.NewQuery(path, ext), Ext: ext, Strategy: s}
}

func budget(t *testing.T, workers int) governor.Budget {
	return governor.Budget{Workers: workers, TempDir: t.TempDir()}
}

// pngBytes encodes a w x h image filled with c.
func pngBytes(t *testing.T, w, h int, c color.Color) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}
