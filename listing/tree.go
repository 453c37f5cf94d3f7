package listing

import (
	"strings"
)

// FolderRecord holds the file names found directly in one remote folder.
type FolderRecord struct {
	Files []string `json:"files"`
}

// Empty reports whether the folder lists no files.
func (r FolderRecord) Empty() bool {
	return len(r.Files) == 0
}

// Tree maps relative folder paths ("" is the root, children end in "/") to
// their records. Keys iterate in insertion order, which is the pre-order
// depth-first discovery order.
type Tree struct {
	keys    []string
	folders map[string]FolderRecord
}

// NewTree returns an empty tree.
func NewTree() *Tree {
	return &Tree{folders: make(map[string]FolderRecord)}
}

// Set stores rec under path. Replacing an existing path keeps its position.
func (t *Tree) Set(path string, rec FolderRecord) {
	if _, exists := t.folders[path]; !exists {
		t.keys = append(t.keys, path)
	}
	t.folders[path] = rec
}

// Get returns the record stored for path.
func (t *Tree) Get(path string) (FolderRecord, bool) {
	rec, ok := t.folders[path]
	return rec, ok
}

// Keys returns the folder paths in discovery order.
func (t *Tree) Keys() []string {
	out := make([]string, len(t.keys))
	copy(out, t.keys)
	return out
}

// Len returns the number of folders in the tree.
func (t *Tree) Len() int {
	return len(t.keys)
}

// NumFiles returns the number of file entries across all folders.
func (t *Tree) NumFiles() int {
	total := 0
	for _, rec := range t.folders {
		total += len(rec.Files)
	}
	return total
}

// Walk calls fn for every folder in discovery order and stops at the first error.
func (t *Tree) Walk(fn func(path string, rec FolderRecord) error) error {
	for _, key := range t.keys {
		if err := fn(key, t.folders[key]); err != nil {
			return err
		}
	}
	return nil
}

// FolderDepth returns the number of segments in a relative folder path.
func FolderDepth(path string) int {
	return strings.Count(path, "/")
}
