package ocr

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ConvertHEICtoPNG converts a HEIC/HEIF file to PNG inside outDir and returns
// the PNG path. outDir belongs to the calling step, which removes it.
// converter: "heif-convert" | "magick" | "sips"
func ConvertHEICtoPNG(ctx context.Context, r Runner, converter, in, outDir string) (string, error) {
	base := strings.TrimSuffix(filepath.Base(in), filepath.Ext(in))
	out := filepath.Join(outDir, base+".png")

	var (
		errb []byte
		err  error
	)
	switch converter {
	case "heif-convert":
		_, errb, err = r.Run(ctx, "heif-convert", in, out)
	case "magick":
		_, errb, err = r.Run(ctx, "magick", in, out)
	case "sips":
		_, errb, err = r.Run(ctx, "sips", "-s", "format", "png", in, "--out", out)
	default:
		return "", fmt.Errorf("HEIC not supported: set image.heic_converter to one of: heif-convert | magick | sips")
	}
	if err != nil {
		return "", fmt.Errorf("%s convert failed: %w: %s", converter, err, strings.TrimSpace(truncate(string(errb), 512)))
	}

	if _, statErr := os.Stat(out); statErr != nil {
		return "", fmt.Errorf("HEIC conversion produced no output: %v", statErr)
	}
	return out, nil
}
