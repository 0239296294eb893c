package watch

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/syncore-project/syncore/pkg/logging"
)

func TestWatcherDeliversBatchAfterQuietPeriod(t *testing.T) {
	dir := t.TempDir()

	w, err := New(dir, logging.RootLogger.Sublogger("watch-test"))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer w.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	if err := os.WriteFile(filepath.Join(dir, "a.txt"), []byte("hi"), 0o644); err != nil {
		t.Fatalf("failed to write fixture: %v", err)
	}

	select {
	case batch, ok := <-w.Batches:
		if !ok {
			t.Fatal("batch channel closed unexpectedly")
		}
		if len(batch.Events) == 0 {
			t.Fatal("expected at least one event in batch")
		}
	case <-time.After(QuietPeriod + 5*time.Second):
		t.Fatal("timed out waiting for debounced batch")
	}
}

func TestWatcherClosesBatchesOnContextCancel(t *testing.T) {
	dir := t.TempDir()

	w, err := New(dir, logging.RootLogger.Sublogger("watch-test"))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer w.Close()

	ctx, cancel := context.WithCancel(context.Background())
	go w.Run(ctx)
	cancel()

	select {
	case _, ok := <-w.Batches:
		if ok {
			t.Fatal("expected batches channel to close without delivering a batch")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for batches channel to close")
	}
}
