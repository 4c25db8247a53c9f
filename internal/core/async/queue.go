package async

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/docproc/internal/entity"
)

// ErrClosed is returned by Enqueue once Shutdown has started.
var ErrClosed = errors.New("queue is shutting down")

// Job asks for one file to be processed.
type Job struct {
	ID          uuid.UUID
	Path        string
	FileType    string // optional MIME type or extension hint
	ContentHash string // hex sha256, empty when the file was not hashed
	Force       bool   // process even if a result is already archived
	SubmittedAt time.Time
}

// NewJob fills ID and SubmittedAt.
func NewJob(path, fileType string) Job {
	return Job{ID: uuid.New(), Path: path, FileType: fileType, SubmittedAt: time.Now()}
}

// Result is handed to the queue's result handler after each job.
type Result struct {
	Job      Job
	Query    *entity.Query
	Err      error
	Duration time.Duration
}

type Queue interface {
	Enqueue(ctx context.Context, job Job) error
	Shutdown(ctx context.Context)
}

// Processor is the part of core.Processor the queue depends on.
type Processor interface {
	Process(ctx context.Context, q *entity.Query) (*entity.Query, error)
}
