package ingest

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/joseph-ayodele/docproc/constants"
)

// FSIngestor reads from the local filesystem.
type FSIngestor struct {
	Seen        Seen                // nil disables deduplication
	AllowedExts map[string]struct{} // lowercased sans '.'; nil -> every supported extension
	logger      *slog.Logger
}

var _ Ingestor = (*FSIngestor)(nil)

func NewFSIngestor(seen Seen, logger *slog.Logger) *FSIngestor {
	if logger == nil {
		logger = slog.Default()
	}
	return &FSIngestor{Seen: seen, logger: logger}
}

func (i *FSIngestor) IngestPath(ctx context.Context, path string) (IngestionResult, error) {
	var out IngestionResult

	abs, err := filepath.Abs(path)
	if err != nil {
		i.logger.Error("abs path error", "path", path, "error", err)
		return out, err
	}

	ext := constants.NormalizeExt(filepath.Ext(abs))
	if ext == "" || !AllowedExt(abs, i.AllowedExts) {
		i.logger.Debug("unsupported or missing extension", "path", abs, "ext", ext)
		return out, fmt.Errorf("unsupported or missing extension %q", ext)
	}

	fi, err := os.Stat(abs)
	if err != nil {
		return out, err
	}
	if fi.IsDir() {
		return out, fmt.Errorf("%s is a directory", abs)
	}

	sum, err := HashFile(abs)
	if err != nil {
		i.logger.Error("hash error", "path", abs, "error", err)
		return out, fmt.Errorf("hash: %w", err)
	}

	out = IngestionResult{
		SourcePath: abs,
		HashHex:    sum,
		FileExt:    ext,
		Size:       fi.Size(),
		ModifiedAt: fi.ModTime().UTC(),
	}
	if i.Seen != nil {
		dup, err := i.Seen.Exists(ctx, sum)
		if err != nil {
			return out, fmt.Errorf("check archive: %w", err)
		}
		out.Deduplicated = dup
	}
	return out, nil
}

// IngestDirectory walks root, skips hidden if requested,
// and calls IngestPath for each file. Returns per-file results + aggregate stats.
func (i *FSIngestor) IngestDirectory(ctx context.Context, root string, skipHidden bool) ([]IngestionResult, DirStats, error) {
	if strings.TrimSpace(root) == "" {
		return nil, DirStats{}, errors.New("root_path is required")
	}

	var results []IngestionResult
	var stats DirStats

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		stats.Scanned++
		if walkErr != nil {
			results = append(results, IngestionResult{SourcePath: path, Err: walkErr.Error()})
			stats.Failed++
			return nil
		}
		if skipHidden && path != root && IsHidden(path) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		if d.IsDir() {
			return nil
		}
		if !AllowedExt(path, i.AllowedExts) {
			return nil
		}
		stats.Matched++

		r, err := i.IngestPath(ctx, path)
		if err != nil {
			results = append(results, IngestionResult{SourcePath: path, Err: err.Error()})
			stats.Failed++
			return nil
		}

		results = append(results, r)
		stats.Succeeded++
		if r.Deduplicated {
			stats.Deduplicated++
		}
		return nil
	})

	if err != nil {
		return results, stats, fmt.Errorf("walk: %w", err)
	}
	i.logger.Info("ingest.directory.done", "root", root, "matched", stats.Matched, "failed", stats.Failed, "deduplicated", stats.Deduplicated)
	return results, stats, nil
}
