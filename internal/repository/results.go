package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/joseph-ayodele/docproc/internal/entity"
)

// ErrNotFound is returned when no result is archived for a hash.
var ErrNotFound = errors.New("result not found")

// StoredResult is one archived processing result.
type StoredResult struct {
	ContentHash string
	FilePath    string
	Strategy    string
	Query       *entity.Query
	Error       string
	CreatedAt   time.Time
}

type ResultStore interface {
	Save(ctx context.Context, hashHex string, q *entity.Query, procErr error) error
	Get(ctx context.Context, hashHex string) (*StoredResult, error)
	Exists(ctx context.Context, hashHex string) (bool, error)
}

type resultStore struct {
	db     *sql.DB
	logger *slog.Logger
	now    func() time.Time
}

func NewResultStore(db *sql.DB, logger *slog.Logger) ResultStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &resultStore{db: db, logger: logger, now: time.Now}
}

// Save archives q under hashHex, replacing an earlier result for the same
// content. The Query is stored in its wire form.
func (r *resultStore) Save(ctx context.Context, hashHex string, q *entity.Query, procErr error) error {
	if hashHex == "" || q == nil {
		return errors.New("save result: hash and query are required")
	}
	var errText string
	if procErr != nil {
		errText = procErr.Error()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO results (content_hash, file_path, strategy, payload, error, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(content_hash) DO UPDATE SET
			file_path = excluded.file_path,
			strategy = excluded.strategy,
			payload = excluded.payload,
			error = excluded.error,
			created_at = excluded.created_at`,
		hashHex, q.FilePath, q.Strategy, entity.Marshal(q), errText, r.now().UnixMilli(),
	)
	if err != nil {
		r.logger.Error("failed to save result", "hash", hashHex, "file", q.FilePath, "error", err)
		return fmt.Errorf("save result: %w", err)
	}
	return nil
}

func (r *resultStore) Get(ctx context.Context, hashHex string) (*StoredResult, error) {
	var (
		res     StoredResult
		payload []byte
		created int64
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT content_hash, file_path, strategy, payload, error, created_at
		FROM results WHERE content_hash = ?`, hashHex,
	).Scan(&res.ContentHash, &res.FilePath, &res.Strategy, &payload, &res.Error, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		r.logger.Error("failed to get result", "hash", hashHex, "error", err)
		return nil, fmt.Errorf("get result: %w", err)
	}
	q, err := entity.Unmarshal(payload)
	if err != nil {
		return nil, fmt.Errorf("decode stored query %s: %w", hashHex, err)
	}
	res.Query = q
	res.CreatedAt = time.UnixMilli(created)
	return &res, nil
}

func (r *resultStore) Exists(ctx context.Context, hashHex string) (bool, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM results WHERE content_hash = ?`, hashHex).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("check result: %w", err)
	}
	return n > 0, nil
}
