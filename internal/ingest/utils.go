package ingest

import (
	"crypto/sha256"
	"encoding/hex"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/joseph-ayodele/docproc/constants"
)

// AllowedExt checks a path against exts, or against every extension a
// processing strategy handles when exts is nil.
func AllowedExt(path string, exts map[string]struct{}) bool {
	if exts == nil {
		return constants.SupportedExt(path)
	}
	_, ok := exts[constants.NormalizeExt(filepath.Ext(path))]
	return ok
}

// ParseExts builds an extension set from user input such as ".pdf, PNG".
// It returns nil for an empty list.
func ParseExts(list []string) map[string]struct{} {
	var out map[string]struct{}
	for _, item := range list {
		for _, e := range strings.Split(item, ",") {
			e = constants.NormalizeExt(e)
			if e == "" {
				continue
			}
			if out == nil {
				out = map[string]struct{}{}
			}
			out[e] = struct{}{}
		}
	}
	return out
}

// IsHidden checks if a file or directory is hidden (starts with '.').
func IsHidden(path string) bool {
	base := filepath.Base(path)
	return strings.HasPrefix(base, ".") && base != "." && base != ".."
}

// HashFile returns the hex sha256 of the file's content.
func HashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
