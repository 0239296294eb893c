// Package model defines the core data types shared by every component of the
// synchronization pipeline: the index store, the reconciler, the hasher pool,
// and the uploader.
package model

import "time"

// OperationTag identifies the kind of change a FileEntry represents relative
// to the index. It is a closed enumeration; no other operations exist at the
// reconciler boundary (a rename is decomposed into a Delete plus an Insert).
type OperationTag int

const (
	// OperationInsert indicates a path present on disk but absent from the
	// index.
	OperationInsert OperationTag = iota
	// OperationUpdate indicates a path present in both the index and on disk
	// whose metadata has changed.
	OperationUpdate
	// OperationDelete indicates a path present in the index but absent from
	// disk.
	OperationDelete
)

// String returns the lowercase name used as the JSON key for the operation
// when grouping entries for upload.
func (t OperationTag) String() string {
	switch t {
	case OperationInsert:
		return "insert"
	case OperationUpdate:
		return "update"
	case OperationDelete:
		return "delete"
	default:
		return "unknown"
	}
}

// FileEntry is the single record type that flows through every component:
// the directory walk produces it, the hasher populates its Hash, the index
// stores it, and the uploader serializes it.
type FileEntry struct {
	// Path is the canonicalized absolute filesystem path. It is the primary
	// key everywhere this type is used.
	Path string
	// Hash is the hex-encoded content digest. It is empty until the hasher
	// has processed the entry.
	Hash string
	// Size is the byte count reported by the filesystem.
	Size uint64
	// Modified is the modification instant reported by the filesystem. Only
	// whole-second precision is significant for equality comparisons; see
	// MetadataEqual.
	Modified time.Time

	// Operation records which bucket this entry belongs to for the current
	// reconciliation pass. It rides alongside the entry through the hasher so
	// that input order and operation association survive the parallel
	// hashing stage without a separate parallel slice of tags.
	Operation OperationTag
}

// MetadataEqual reports whether two entries are "metadata-equal": size
// matches exactly and modification time matches after truncation to whole
// seconds. Hash is deliberately excluded, since an unhashed disk entry and an
// indexed entry are compared before hashing ever occurs.
func (e FileEntry) MetadataEqual(other FileEntry) bool {
	return e.Size == other.Size &&
		e.Modified.Truncate(time.Second).Equal(other.Modified.Truncate(time.Second))
}
