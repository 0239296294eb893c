package hasher

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/syncore-project/syncore/pkg/logging"
	"github.com/syncore-project/syncore/pkg/model"
)

func writeTempFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write temp file: %v", err)
	}
	return path
}

func TestGenerateOrderAndLengthPreserved(t *testing.T) {
	dir := t.TempDir()
	pathA := writeTempFile(t, dir, "a.txt", "hello")
	pathB := writeTempFile(t, dir, "b.txt", "world")

	pool := NewPool(logging.RootLogger.Sublogger("hasher-test"))
	in := []model.FileEntry{
		{Path: pathA, Operation: model.OperationInsert},
		{Path: pathB, Operation: model.OperationUpdate},
	}
	out := pool.Generate(context.Background(), in, nil)

	if len(out) != len(in) {
		t.Fatalf("expected %d results, got %d", len(in), len(out))
	}
	if out[0].Path != pathA || out[1].Path != pathB {
		t.Fatalf("expected input order preserved, got %+v", out)
	}
	if out[0].Hash == "" || out[1].Hash == "" {
		t.Fatal("expected non-empty digests")
	}
	if out[0].Hash == out[1].Hash {
		t.Fatal("distinct content should not collide")
	}
}

func TestGenerateIdenticalContentProducesIdenticalHashes(t *testing.T) {
	dir := t.TempDir()
	pathA := writeTempFile(t, dir, "a.txt", "same bytes")
	pathB := writeTempFile(t, dir, "b.txt", "same bytes")

	pool := NewPool(logging.RootLogger.Sublogger("hasher-test"))
	in := []model.FileEntry{{Path: pathA}, {Path: pathB}}
	out := pool.Generate(context.Background(), in, nil)

	if out[0].Hash != out[1].Hash {
		t.Fatalf("expected identical content to hash identically: %s != %s", out[0].Hash, out[1].Hash)
	}
	if out[0].Path == out[1].Path {
		t.Fatal("paths must remain distinct despite identical hash")
	}
}

func TestGenerateDropsUnreadableFileWithoutAborting(t *testing.T) {
	dir := t.TempDir()
	pathOK := writeTempFile(t, dir, "ok.txt", "readable")
	pathMissing := filepath.Join(dir, "does-not-exist.txt")

	pool := NewPool(logging.RootLogger.Sublogger("hasher-test"))
	in := []model.FileEntry{
		{Path: pathMissing, Operation: model.OperationInsert},
		{Path: pathOK, Operation: model.OperationInsert},
	}
	out := pool.Generate(context.Background(), in, nil)

	if len(out) != 1 {
		t.Fatalf("expected one surviving entry, got %d", len(out))
	}
	if out[0].Path != pathOK {
		t.Fatalf("expected surviving entry to be the readable file, got %s", out[0].Path)
	}
}

func TestGenerateEmptyBatch(t *testing.T) {
	pool := NewPool(logging.RootLogger.Sublogger("hasher-test"))
	out := pool.Generate(context.Background(), nil, nil)
	if len(out) != 0 {
		t.Fatalf("expected empty output for empty input, got %d", len(out))
	}
}

func TestProgressTracksCompletion(t *testing.T) {
	dir := t.TempDir()
	pathA := writeTempFile(t, dir, "a.txt", "x")
	pathB := writeTempFile(t, dir, "b.txt", "y")

	pool := NewPool(logging.RootLogger.Sublogger("hasher-test"))
	progress := &Progress{}
	in := []model.FileEntry{{Path: pathA}, {Path: pathB}}
	pool.Generate(context.Background(), in, progress)

	if progress.Completed() != 2 {
		t.Fatalf("expected progress of 2, got %d", progress.Completed())
	}
}
