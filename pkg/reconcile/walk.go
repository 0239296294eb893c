package reconcile

import (
	"io/fs"
	"path/filepath"

	"github.com/syncore-project/syncore/pkg/logging"
	"github.com/syncore-project/syncore/pkg/model"
)

// walkDirectory recursively traverses root and returns every regular file
// found, keyed by its canonicalized absolute path. Directories, symlinks, and
// other non-regular files (devices, sockets, pipes) are skipped. excludeDir,
// if non-empty, is pruned entirely rather than descended into — this keeps
// the index's own storage (and its -wal/-shm/-journal siblings) from being
// discovered, hashed, and indexed as if it were watched content, which would
// otherwise change on every commit and prevent the pass from ever converging
// on an empty operation batch. A metadata read error on an individual entry
// skips that entry but does not abort the walk.
func walkDirectory(root, excludeDir string, logger *logging.Logger) (map[string]model.FileEntry, error) {
	absoluteRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}

	var absoluteExclude string
	if excludeDir != "" {
		absoluteExclude, err = filepath.Abs(excludeDir)
		if err != nil {
			return nil, err
		}
	}

	entries := make(map[string]model.FileEntry)

	err = filepath.WalkDir(absoluteRoot, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			logger.Warn(err)
			return nil
		}
		if d.IsDir() {
			if absoluteExclude != "" && path == absoluteExclude {
				return filepath.SkipDir
			}
			return nil
		}
		// Symbolic links are not followed, and other non-regular files
		// (devices, sockets, pipes) are likewise skipped.
		if d.Type()&fs.ModeSymlink != 0 || !d.Type().IsRegular() {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			logger.Warn(err)
			return nil
		}

		entries[path] = model.FileEntry{
			Path:     path,
			Size:     uint64(info.Size()),
			Modified: info.ModTime(),
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return entries, nil
}
