package listing

import (
	"errors"
	"reflect"
	"testing"
)

func TestTreeKeepsInsertionOrder(t *testing.T) {
	tree := NewTree()
	tree.Set("", FolderRecord{Files: []string{"HEAD"}})
	tree.Set("b/", FolderRecord{})
	tree.Set("a/", FolderRecord{Files: []string{"x", "y"}})

	if got, want := tree.Keys(), []string{"", "b/", "a/"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("keys = %v, want %v", got, want)
	}

	// Replacing a record keeps its original position.
	tree.Set("b/", FolderRecord{Files: []string{"z"}})
	if got, want := tree.Keys(), []string{"", "b/", "a/"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("keys after replace = %v, want %v", got, want)
	}
	rec, ok := tree.Get("b/")
	if !ok || !reflect.DeepEqual(rec.Files, []string{"z"}) {
		t.Fatalf("Get(b/) = %v, %v", rec, ok)
	}

	if tree.Len() != 3 {
		t.Errorf("Len = %d, want 3", tree.Len())
	}
	if tree.NumFiles() != 4 {
		t.Errorf("NumFiles = %d, want 4", tree.NumFiles())
	}
}

func TestTreeKeysIsACopy(t *testing.T) {
	tree := NewTree()
	tree.Set("", FolderRecord{})
	keys := tree.Keys()
	keys[0] = "mutated"
	if tree.Keys()[0] != "" {
		t.Fatal("Keys must not expose internal state")
	}
}

func TestTreeWalkStopsAtFirstError(t *testing.T) {
	tree := NewTree()
	tree.Set("", FolderRecord{})
	tree.Set("a/", FolderRecord{})
	tree.Set("b/", FolderRecord{})

	stop := errors.New("stop")
	var visited []string
	err := tree.Walk(func(path string, _ FolderRecord) error {
		visited = append(visited, path)
		if path == "a/" {
			return stop
		}
		return nil
	})
	if !errors.Is(err, stop) {
		t.Fatalf("Walk error = %v, want stop", err)
	}
	if !reflect.DeepEqual(visited, []string{"", "a/"}) {
		t.Errorf("visited = %v", visited)
	}
}

func TestFolderDepth(t *testing.T) {
	tests := map[string]int{
		"":       0,
		"a/":     1,
		"a/b/":   2,
		"a/b/c/": 3,
	}
	for path, want := range tests {
		if got := FolderDepth(path); got != want {
			t.Errorf("FolderDepth(%q) = %d, want %d", path, got, want)
		}
	}
}

func TestFolderRecordEmpty(t *testing.T) {
	if !(FolderRecord{}).Empty() {
		t.Error("zero record should be empty")
	}
	if (FolderRecord{Files: []string{"a"}}).Empty() {
		t.Error("record with a file should not be empty")
	}
}
