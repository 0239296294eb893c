// Package watch implements the filesystem-event producer: a recursive watch
// of a root directory that delivers debounced batches of events with a
// 3-second quiet period. Event payloads are treated as opaque triggers by the
// rest of the pipeline (see pkg/reconcile); this package exists only so the
// core can run standalone without an external debouncer process.
//
// It wraps github.com/fsnotify/fsnotify, which watches single directories, so
// the recursive watch is built by registering every directory under the root
// (and every directory created later), and reproduces a batched-debounce
// shape with the idiomatic Go equivalent of a timer-driven quiet period.
package watch

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/syncore-project/syncore/pkg/logging"
)

// QuietPeriod is the debounce interval: the watcher waits for this long
// without seeing a new event before it flushes a batch.
const QuietPeriod = 3 * time.Second

// Batch is a debounced group of filesystem events. Its contents are opaque
// to consumers; Batch exists only as a wakeup signal.
type Batch struct {
	Events []fsnotify.Event
}

// Watcher recursively watches a root directory and delivers debounced event
// batches on Batches.
type Watcher struct {
	Batches chan Batch

	watcher *fsnotify.Watcher
	logger  *logging.Logger
}

// New creates a Watcher recursively watching root. The caller must call Run
// to begin delivering batches and Close to release underlying resources.
func New(root string, logger *logging.Logger) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	w := &Watcher{
		Batches: make(chan Batch, 64),
		watcher: fsw,
		logger:  logger,
	}

	if err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			// Per-entry walk errors are skipped rather than aborting setup;
			// the initial reconciliation pass will surface any paths that
			// remain inaccessible.
			return nil
		}
		if d.IsDir() {
			if addErr := fsw.Add(path); addErr != nil {
				w.logger.Warn(addErr)
			}
		}
		return nil
	}); err != nil {
		fsw.Close()
		return nil, err
	}

	return w, nil
}

// Close releases the underlying OS watch handles.
func (w *Watcher) Close() error {
	return w.watcher.Close()
}

// Run debounces raw filesystem events into batches and delivers them on
// Batches until ctx is cancelled or the underlying watcher's event channel
// closes. It also tracks newly created directories so the recursive watch
// stays complete as the tree grows.
func (w *Watcher) Run(ctx context.Context) {
	defer close(w.Batches)

	var pending []fsnotify.Event
	var timer *time.Timer
	var timerC <-chan time.Time

	flush := func() {
		if len(pending) == 0 {
			return
		}
		batch := Batch{Events: pending}
		pending = nil
		select {
		case w.Batches <- batch:
		case <-ctx.Done():
		}
	}

	for {
		select {
		case <-ctx.Done():
			flush()
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				flush()
				return
			}
			if event.Op&fsnotify.Create == fsnotify.Create {
				if info, err := fsInfoIsDir(event.Name); err == nil && info {
					if addErr := w.watcher.Add(event.Name); addErr != nil {
						w.logger.Warn(addErr)
					}
				}
			}
			pending = append(pending, event)
			if timer != nil {
				timer.Stop()
			}
			timer = time.NewTimer(QuietPeriod)
			timerC = timer.C
		case <-timerC:
			timerC = nil
			flush()
		case err, ok := <-w.watcher.Errors:
			if !ok {
				continue
			}
			w.logger.Warn(err)
		}
	}
}

func fsInfoIsDir(path string) (bool, error) {
	info, err := os.Stat(path)
	if err != nil {
		return false, err
	}
	return info.IsDir(), nil
}
