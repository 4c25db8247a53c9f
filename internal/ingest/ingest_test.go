package ingest

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type seenSet map[string]bool

func (s seenSet) Exists(_ context.Context, hashHex string) (bool, error) {
	return s[hashHex], nil
}

type brokenSeen struct{}

func (brokenSeen) Exists(context.Context, string) (bool, error) {
	return false, errors.New("database is locked")
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func sum(content string) string {
	h := sha256.Sum256([]byte(content))
	return hex.EncodeToString(h[:])
}

func TestIngestPath(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "notes.TXT")
	writeFile(t, p, "hello")

	ing := NewFSIngestor(seenSet{sum("hello"): true}, nil)
	res, err := ing.IngestPath(context.Background(), p)
	require.NoError(t, err)
	assert.Equal(t, p, res.SourcePath)
	assert.Equal(t, sum("hello"), res.HashHex)
	assert.Equal(t, "txt", res.FileExt)
	assert.EqualValues(t, 5, res.Size)
	assert.True(t, res.Deduplicated)
	assert.False(t, res.ModifiedAt.IsZero())
}

func TestIngestPath_Rejects(t *testing.T) {
	dir := t.TempDir()
	ing := NewFSIngestor(nil, nil)

	writeFile(t, filepath.Join(dir, "blob.xyz"), "x")
	_, err := ing.IngestPath(context.Background(), filepath.Join(dir, "blob.xyz"))
	assert.ErrorContains(t, err, "unsupported")

	_, err = ing.IngestPath(context.Background(), filepath.Join(dir, "missing.pdf"))
	assert.ErrorIs(t, err, os.ErrNotExist)

	writeFile(t, filepath.Join(dir, "a.txt"), "x")
	ing.Seen = brokenSeen{}
	_, err = ing.IngestPath(context.Background(), filepath.Join(dir, "a.txt"))
	assert.ErrorContains(t, err, "database is locked")
}

func TestIngestDirectory(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "a.pdf"), "pdf bytes")
	writeFile(t, filepath.Join(root, "sub", "b.csv"), "a,b")
	writeFile(t, filepath.Join(root, "sub", "skip.bin"), "zz")
	writeFile(t, filepath.Join(root, ".hidden", "c.txt"), "secret")
	writeFile(t, filepath.Join(root, ".d.txt"), "dot")

	ing := NewFSIngestor(seenSet{sum("a,b"): true}, nil)
	results, stats, err := ing.IngestDirectory(context.Background(), root, true)
	require.NoError(t, err)

	var paths []string
	for _, r := range results {
		assert.Empty(t, r.Err)
		paths = append(paths, filepath.Base(r.SourcePath))
	}
	sort.Strings(paths)
	assert.Equal(t, []string{"a.pdf", "b.csv"}, paths)
	assert.EqualValues(t, 2, stats.Matched)
	assert.EqualValues(t, 2, stats.Succeeded)
	assert.EqualValues(t, 1, stats.Deduplicated)
	assert.Zero(t, stats.Failed)

	results, stats, err = ing.IngestDirectory(context.Background(), root, false)
	require.NoError(t, err)
	assert.Len(t, results, 4)
	assert.EqualValues(t, 4, stats.Matched)
}

func TestIngestDirectory_AllowedExts(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "a.pdf"), "1")
	writeFile(t, filepath.Join(root, "b.png"), "2")

	ing := NewFSIngestor(nil, nil)
	ing.AllowedExts = ParseExts([]string{".PNG, jpg"})
	results, _, err := ing.IngestDirectory(context.Background(), root, false)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "png", results[0].FileExt)
}

func TestIngestDirectory_EmptyRoot(t *testing.T) {
	_, _, err := NewFSIngestor(nil, nil).IngestDirectory(context.Background(), " ", false)
	assert.Error(t, err)
}

func TestParseExts(t *testing.T) {
	assert.Nil(t, ParseExts(nil))
	assert.Nil(t, ParseExts([]string{" , "}))
	assert.Equal(t, map[string]struct{}{"pdf": {}, "docx": {}}, ParseExts([]string{"PDF", ".docx,"}))
}

func TestIsHidden(t *testing.T) {
	assert.True(t, IsHidden("/a/.git"))
	assert.False(t, IsHidden("/a/b.txt"))
	assert.False(t, IsHidden("."))
}

func receive(t *testing.T, ch <-chan string, want string) {
	t.Helper()
	deadline := time.After(3 * time.Second)
	for {
		select {
		case p, ok := <-ch:
			require.True(t, ok, "watcher closed before %s", want)
			if p == want {
				return
			}
		case <-deadline:
			t.Fatalf("no event for %s", want)
		}
	}
}

func TestStartWatcher(t *testing.T) {
	root := t.TempDir()
	existing := filepath.Join(root, "old.txt")
	writeFile(t, existing, "old")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	events, errs, err := StartWatcher(ctx, WatchConfig{
		Roots:       []string{root},
		InitialScan: true,
		SkipHidden:  true,
		Debounce:    20 * time.Millisecond,
	}, nil)
	require.NoError(t, err)
	require.NotNil(t, errs)

	receive(t, events, existing)

	fresh := filepath.Join(root, "new.csv")
	writeFile(t, fresh, "a,b")
	receive(t, events, fresh)

	nested := filepath.Join(root, "later", "deep.md")
	writeFile(t, nested, "# hi")
	receive(t, events, nested)

	cancel()
	require.Eventually(t, func() bool {
		select {
		case _, ok := <-events:
			return !ok
		default:
			return false
		}
	}, 3*time.Second, 10*time.Millisecond)
}

func TestStartWatcher_NoRoots(t *testing.T) {
	_, _, err := StartWatcher(context.Background(), WatchConfig{}, nil)
	assert.Error(t, err)
}
