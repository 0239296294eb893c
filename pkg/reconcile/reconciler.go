// Package reconcile implements the Reconciler: it consumes filesystem-event
// batches, performs the three-way diff against the index and the directory,
// and drives hashing, indexing, and uploading of the resulting operation set.
//
// It is the orchestration hub of the pipeline: it owns handles to the index
// store, the hasher pool, and the uploader, and is the only component that
// issues mutation commands, a single type holding handles to scanning,
// staging, and transport and driving each in sequence.
package reconcile

import (
	"context"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/syncore-project/syncore/pkg/hasher"
	"github.com/syncore-project/syncore/pkg/index"
	"github.com/syncore-project/syncore/pkg/logging"
	"github.com/syncore-project/syncore/pkg/model"
	"github.com/syncore-project/syncore/pkg/uploader"
	"github.com/syncore-project/syncore/pkg/watch"
)

// Reconciler drives one end-to-end reconciliation pass: walk, diff, hash,
// commit, upload.
type Reconciler struct {
	root       string
	excludeDir string
	idx        *index.Store
	hashers    *hasher.Pool
	uploader   *uploader.Uploader
	logger     *logging.Logger
}

// New creates a Reconciler rooted at root, using idx as its index store,
// hashers as its hasher pool, and up as its uploader. excludeDir, if
// non-empty, is pruned from every directory walk — pass the index's own
// storage directory here when it lives inside root so the index database
// never gets discovered and reconciled as if it were watched content.
func New(root, excludeDir string, idx *index.Store, hashers *hasher.Pool, up *uploader.Uploader, logger *logging.Logger) *Reconciler {
	return &Reconciler{
		root:       root,
		excludeDir: excludeDir,
		idx:        idx,
		hashers:    hashers,
		uploader:   up,
		logger:     logger,
	}
}

// PassResult summarizes one reconciliation pass, mostly useful for tests and
// diagnostic logging.
type PassResult struct {
	Inserted   int
	Updated    int
	Deleted    int
	Unchanged  int
	BytesMoved uint64
}

// Initialize runs the reconciler's diff algorithm against whatever the index
// currently contains. At true cold start the index is empty, so every
// discovered file is forced into the Insert bucket. There is no separate
// bulk-loader code path: this is the same method used for every subsequent
// pass, which is what keeps the reconciler idempotent across passes.
func (r *Reconciler) Initialize(ctx context.Context) (PassResult, error) {
	return r.reconcile(ctx)
}

// Run performs the initial pass and then processes one reconciliation pass
// per incoming batch, in arrival order, until batches closes or ctx is
// cancelled. A batch's contents are never inspected: it is only used as a
// trigger for a full re-diff.
func (r *Reconciler) Run(ctx context.Context, batches <-chan watch.Batch) error {
	if _, err := r.Initialize(ctx); err != nil {
		return errors.Wrap(err, "initialization pass failed")
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case _, ok := <-batches:
			if !ok {
				return nil
			}
			if _, err := r.reconcile(ctx); err != nil {
				if errors.Is(err, index.ErrIndexFailure) {
					// An index-level failure aborts just this pass; the next
					// event batch re-diffs from scratch.
					r.logger.Error(err)
					continue
				}
				return err
			}
		}
	}
}

// reconcile performs one full walk -> diff -> hash -> commit -> upload pass.
func (r *Reconciler) reconcile(ctx context.Context) (PassResult, error) {
	passID := uuid.New()
	log := r.logger.Sublogger(passID.String())

	// Step 1: load the index snapshot.
	indexedEntries, err := r.idx.ScanAll()
	if err != nil {
		return PassResult{}, errors.Wrap(err, "unable to scan index")
	}
	indexed := make(map[string]model.FileEntry, len(indexedEntries))
	for _, e := range indexedEntries {
		indexed[e.Path] = e
	}

	// Step 2: walk the directory.
	disk, err := walkDirectory(r.root, r.excludeDir, log)
	if err != nil {
		return PassResult{}, errors.Wrap(err, "unable to walk directory")
	}

	// Step 3: classify every path.
	insert, update, del, unchanged := Diff(indexed, disk)

	// Step 4: hashing stage. Insert and Update entries are combined into a
	// single ordered list, submitted together, and then split back into
	// buckets using the Operation tag each entry carries.
	toHash := make([]model.FileEntry, 0, len(insert)+len(update))
	toHash = append(toHash, insert...)
	toHash = append(toHash, update...)

	progress := &hasher.Progress{}
	hashed := r.hashers.Generate(ctx, toHash, progress)

	var hashedInsert, hashedUpdate []model.FileEntry
	for _, e := range hashed {
		switch e.Operation {
		case model.OperationInsert:
			hashedInsert = append(hashedInsert, e)
		case model.OperationUpdate:
			hashedUpdate = append(hashedUpdate, e)
		}
	}

	// Step 5: commit stage. Deletes are applied first so that a rename
	// (delete+insert of a distinct path) cannot violate uniqueness mid-pass.
	if err := r.idx.BulkDelete(del); err != nil {
		return PassResult{}, errors.Wrap(err, "unable to commit deletes")
	}
	if err := r.idx.BulkInsert(hashedInsert); err != nil {
		return PassResult{}, errors.Wrap(err, "unable to commit inserts")
	}
	if err := r.idx.BulkUpdate(hashedUpdate); err != nil {
		return PassResult{}, errors.Wrap(err, "unable to commit updates")
	}

	// Step 6: publish stage. An uploader failure is logged but does not
	// abort the pass and is not retried: the local commit has already
	// happened, so the next pass diffs against the updated index and does not
	// re-derive these operations.
	groups := uploader.Groups{Insert: hashedInsert, Update: hashedUpdate, Delete: del}
	if result, err := r.uploader.Sync(ctx, groups); err != nil {
		log.Warn(errors.Wrap(err, "upload failed"))
	} else if result.StatusCode != 0 && (result.StatusCode < 200 || result.StatusCode >= 300) {
		log.Warn(errors.Errorf("upload returned non-2xx status %d: %s", result.StatusCode, result.Body))
	}

	var bytesMoved uint64
	for _, e := range hashedInsert {
		bytesMoved += e.Size
	}
	for _, e := range hashedUpdate {
		bytesMoved += e.Size
	}

	log.Printf("pass complete: %d inserted, %d updated, %d deleted, %d unchanged, %s moved",
		len(hashedInsert), len(hashedUpdate), len(del), unchanged, humanize.Bytes(bytesMoved))

	return PassResult{
		Inserted:   len(hashedInsert),
		Updated:    len(hashedUpdate),
		Deleted:    len(del),
		Unchanged:  unchanged,
		BytesMoved: bytesMoved,
	}, nil
}
