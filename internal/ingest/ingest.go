package ingest

import (
	"context"
	"time"
)

// IngestionResult is the per-file ingest outcome.
type IngestionResult struct {
	SourcePath   string
	HashHex      string
	FileExt      string
	Size         int64
	ModifiedAt   time.Time
	Deduplicated bool // a result for the same content is already archived
	Err          string
}

// DirStats summarizes a directory ingest.
type DirStats struct {
	Scanned      uint32
	Matched      uint32
	Succeeded    uint32
	Deduplicated uint32
	Failed       uint32
}

// Seen reports whether content with the given sha256 has been processed.
// repository.ResultStore satisfies it.
type Seen interface {
	Exists(ctx context.Context, hashHex string) (bool, error)
}

// Ingestor is the behavior the CLI depends on.
type Ingestor interface {
	// IngestPath hashes a single file.
	IngestPath(ctx context.Context, path string) (IngestionResult, error)
	// IngestDirectory ingests all matching files under root.
	IngestDirectory(ctx context.Context, root string, skipHidden bool) ([]IngestionResult, DirStats, error)
}
