// Package hasher implements the Hasher Pool: given an ordered batch of
// FileEntry values with an absent Hash, it returns an ordered batch with Hash
// populated, computed in parallel across a worker pool sized to available
// CPU cores. Entries whose content could not be read are dropped rather than
// returned with a zero-value hash, so the output may be shorter than the
// input; each surviving entry keeps its Operation tag so callers can still
// re-bucket the result without needing positional correspondence.
//
// The fan-out/fan-in is built on golang.org/x/sync/errgroup rather than a
// raw sync.WaitGroup-plus-semaphore pattern, since errgroup is the more
// idiomatic bounded-concurrency primitive for this shape once first-error
// semantics aren't needed and cores-capped parallelism is.
package hasher

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"os"
	"runtime"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/syncore-project/syncore/pkg/logging"
	"github.com/syncore-project/syncore/pkg/model"
)

// Pool computes content digests for batches of FileEntry values.
type Pool struct {
	workers int
	logger  *logging.Logger
}

// NewPool creates a Pool sized to the number of available CPU cores.
func NewPool(logger *logging.Logger) *Pool {
	return &Pool{
		workers: runtime.NumCPU(),
		logger:  logger,
	}
}

// Progress reports how many files in the most recent Generate call have
// completed hashing so far. It is updated atomically as a side effect only;
// it never gates correctness and callers may ignore it entirely.
type Progress struct {
	completed atomic.Uint64
}

// Completed returns the number of files hashed so far.
func (p *Progress) Completed() uint64 {
	if p == nil {
		return 0
	}
	return p.completed.Load()
}

// Generate computes digests for every entry in batch, preserving input
// order: surviving entries come back in the same relative order as they were
// submitted, and when nothing is dropped the ith output entry corresponds to
// the ith input entry. A per-file read or hash error (unreadable file,
// permission denied, file changed between stat and read) causes that entry
// to be dropped from the returned batch and logged; it never aborts the
// whole call. Operation tags travel with each entry and are untouched.
//
// progress may be nil, in which case no progress tracking occurs.
func (p *Pool) Generate(ctx context.Context, batch []model.FileEntry, progress *Progress) []model.FileEntry {
	if len(batch) == 0 {
		return nil
	}

	results := make([]*model.FileEntry, len(batch))

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(p.workers)

	for i, entry := range batch {
		i, entry := i, entry
		group.Go(func() error {
			select {
			case <-groupCtx.Done():
				return nil
			default:
			}

			digest, err := hashFile(entry.Path)
			if err != nil {
				p.logger.Warn(err)
				return nil
			}

			entry.Hash = digest
			results[i] = &entry
			if progress != nil {
				progress.completed.Add(1)
			}
			return nil
		})
	}

	// Generate never returns an error: per-file failures are absorbed above
	// and there is no other failure mode for this stage.
	_ = group.Wait()

	out := make([]model.FileEntry, 0, len(batch))
	for _, r := range results {
		if r != nil {
			out = append(out, *r)
		}
	}
	return out
}

// hashFile computes the hex-encoded SHA-256 digest of the file at path.
func hashFile(path string) (string, error) {
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
