package reconcile

import (
	"testing"
	"time"

	"github.com/syncore-project/syncore/pkg/model"
)

func TestDiffEmptyBothSides(t *testing.T) {
	insert, update, del, unchanged := Diff(nil, nil)
	if len(insert) != 0 || len(update) != 0 || len(del) != 0 || unchanged != 0 {
		t.Fatalf("expected all-empty result, got insert=%v update=%v delete=%v unchanged=%d", insert, update, del, unchanged)
	}
}

func TestDiffInsertOnly(t *testing.T) {
	disk := map[string]model.FileEntry{
		"/t/a.txt": {Path: "/t/a.txt", Size: 7, Modified: time.Unix(1000, 0)},
	}
	insert, update, del, unchanged := Diff(nil, disk)
	if len(insert) != 1 || insert[0].Operation != model.OperationInsert {
		t.Fatalf("expected one insert, got %+v", insert)
	}
	if len(update) != 0 || len(del) != 0 || unchanged != 0 {
		t.Fatalf("expected no other buckets populated")
	}
}

func TestDiffDeleteOnly(t *testing.T) {
	indexed := map[string]model.FileEntry{
		"/t/a.txt": {Path: "/t/a.txt", Size: 7, Modified: time.Unix(1000, 0)},
	}
	insert, update, del, unchanged := Diff(indexed, nil)
	if len(del) != 1 || del[0].Operation != model.OperationDelete {
		t.Fatalf("expected one delete, got %+v", del)
	}
	if len(insert) != 0 || len(update) != 0 || unchanged != 0 {
		t.Fatalf("expected no other buckets populated")
	}
}

func TestDiffMetadataEqualIsUnchanged(t *testing.T) {
	path := "/t/a.txt"
	entry := model.FileEntry{Path: path, Size: 7, Modified: time.Unix(1000, 0), Hash: "h1"}
	indexed := map[string]model.FileEntry{path: entry}
	disk := map[string]model.FileEntry{path: {Path: path, Size: 7, Modified: time.Unix(1000, 0)}}

	insert, update, del, unchanged := Diff(indexed, disk)
	if unchanged != 1 {
		t.Fatalf("expected unchanged=1, got %d", unchanged)
	}
	if len(insert) != 0 || len(update) != 0 || len(del) != 0 {
		t.Fatalf("expected no operations for a metadata-equal entry")
	}
}

func TestDiffSizeChangeEmitsUpdate(t *testing.T) {
	path := "/t/a.txt"
	indexed := map[string]model.FileEntry{
		path: {Path: path, Size: 7, Modified: time.Unix(1000, 0), Hash: "h1"},
	}
	disk := map[string]model.FileEntry{
		path: {Path: path, Size: 9, Modified: time.Unix(1000, 0)},
	}
	insert, update, del, unchanged := Diff(indexed, disk)
	if len(update) != 1 || update[0].Operation != model.OperationUpdate {
		t.Fatalf("expected one update, got %+v", update)
	}
	if len(insert) != 0 || len(del) != 0 || unchanged != 0 {
		t.Fatalf("expected exactly one update and nothing else")
	}
}

func TestDiffRenameIsDeletePlusInsert(t *testing.T) {
	indexed := map[string]model.FileEntry{
		"/t/a.txt": {Path: "/t/a.txt", Size: 5, Modified: time.Unix(1000, 0), Hash: "h1"},
	}
	disk := map[string]model.FileEntry{
		"/t/b.txt": {Path: "/t/b.txt", Size: 5, Modified: time.Unix(1000, 0)},
	}
	insert, update, del, unchanged := Diff(indexed, disk)
	if len(insert) != 1 || insert[0].Path != "/t/b.txt" {
		t.Fatalf("expected insert of b.txt, got %+v", insert)
	}
	if len(del) != 1 || del[0].Path != "/t/a.txt" {
		t.Fatalf("expected delete of a.txt, got %+v", del)
	}
	if len(update) != 0 || unchanged != 0 {
		t.Fatalf("rename must not produce update or unchanged entries")
	}
}

func TestDiffSetsArePairwiseDisjointAndExhaustive(t *testing.T) {
	indexed := map[string]model.FileEntry{
		"/t/unchanged.txt": {Path: "/t/unchanged.txt", Size: 1, Modified: time.Unix(1, 0)},
		"/t/updated.txt":   {Path: "/t/updated.txt", Size: 1, Modified: time.Unix(1, 0)},
		"/t/deleted.txt":   {Path: "/t/deleted.txt", Size: 1, Modified: time.Unix(1, 0)},
	}
	disk := map[string]model.FileEntry{
		"/t/unchanged.txt": {Path: "/t/unchanged.txt", Size: 1, Modified: time.Unix(1, 0)},
		"/t/updated.txt":   {Path: "/t/updated.txt", Size: 2, Modified: time.Unix(1, 0)},
		"/t/inserted.txt":  {Path: "/t/inserted.txt", Size: 1, Modified: time.Unix(1, 0)},
	}

	union := map[string]bool{}
	for p := range indexed {
		union[p] = true
	}
	for p := range disk {
		union[p] = true
	}

	insert, update, del, unchanged := Diff(indexed, disk)
	total := len(insert) + len(update) + len(del) + unchanged
	if total != len(union) {
		t.Fatalf("expected bucket sizes to sum to |I ∪ D| = %d, got %d", len(union), total)
	}
}
