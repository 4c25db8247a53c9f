package repository

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/docproc/internal/entity"
)

func openStore(t *testing.T, path string) ResultStore {
	t.Helper()
	db, err := Open(context.Background(), Config{Path: path}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { Close(db, nil) })
	return NewResultStore(db, nil)
}

func sampleQuery() *entity.Query {
	q := entity.NewQuery("/docs/a.pdf", "pdf")
	q.Strategy = "pdf"
	q.PromptParts = []string{"<EXTRACTED_DATA PAGE=1>hello</EXTRACTED_DATA>"}
	q.Attachments = []entity.Attachment{{Page: 2, Data: []byte{0x89, 'P', 'N', 'G'}}}
	q.Metadata.StartedAt = 1000
	q.Metadata.CompletedAt = 1250
	q.Metadata.Steps = []entity.ProcessingStep{{Name: "pdf", DurationMs: 250, Status: "success"}}
	return q
}

func TestResultStore_SaveGet(t *testing.T) {
	store := openStore(t, ":memory:")
	ctx := context.Background()

	ok, err := store.Exists(ctx, "abc")
	require.NoError(t, err)
	assert.False(t, ok)

	q := sampleQuery()
	require.NoError(t, store.Save(ctx, "abc", q, nil))

	ok, err = store.Exists(ctx, "abc")
	require.NoError(t, err)
	assert.True(t, ok)

	got, err := store.Get(ctx, "abc")
	require.NoError(t, err)
	assert.Equal(t, "/docs/a.pdf", got.FilePath)
	assert.Equal(t, "pdf", got.Strategy)
	assert.Empty(t, got.Error)
	require.NotNil(t, got.Query)
	assert.Equal(t, q.PromptParts, got.Query.PromptParts)
	assert.Equal(t, q.Attachments, got.Query.Attachments)
	assert.Equal(t, q.Metadata.Steps, got.Query.Metadata.Steps)
	assert.Equal(t, int64(1250), got.Query.Metadata.CompletedAt)
	assert.False(t, got.CreatedAt.IsZero())
}

func TestResultStore_SaveReplaces(t *testing.T) {
	store := openStore(t, filepath.Join(t.TempDir(), "results.db"))
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, "h1", sampleQuery(), nil))
	second := sampleQuery()
	second.FilePath = "/docs/copy-of-a.pdf"
	require.NoError(t, store.Save(ctx, "h1", second, errors.New("pdf: timeout")))

	got, err := store.Get(ctx, "h1")
	require.NoError(t, err)
	assert.Equal(t, "/docs/copy-of-a.pdf", got.FilePath)
	assert.Equal(t, "pdf: timeout", got.Error)
}

func TestResultStore_NotFound(t *testing.T) {
	store := openStore(t, ":memory:")
	_, err := store.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestResultStore_RejectsEmptyHash(t *testing.T) {
	store := openStore(t, ":memory:")
	assert.Error(t, store.Save(context.Background(), "", sampleQuery(), nil))
}
