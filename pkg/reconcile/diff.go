package reconcile

import "github.com/syncore-project/syncore/pkg/model"

// Diff performs a three-way classification: given what the index says
// (indexed) and what the directory walk just observed (disk), it returns the
// Insert, Update, and Delete buckets, plus a count of paths that require no
// action. The four sets are pairwise disjoint and their sizes sum to
// len(indexed ∪ disk).
func Diff(indexed, disk map[string]model.FileEntry) (insert, update, del []model.FileEntry, unchanged int) {
	for path, diskEntry := range disk {
		indexedEntry, inIndex := indexed[path]
		if !inIndex {
			entry := diskEntry
			entry.Operation = model.OperationInsert
			insert = append(insert, entry)
			continue
		}
		if indexedEntry.MetadataEqual(diskEntry) {
			unchanged++
			continue
		}
		entry := diskEntry
		entry.Operation = model.OperationUpdate
		update = append(update, entry)
	}

	for path, indexedEntry := range indexed {
		if _, onDisk := disk[path]; !onDisk {
			entry := indexedEntry
			entry.Operation = model.OperationDelete
			del = append(del, entry)
		}
	}

	return insert, update, del, unchanged
}
