package testhelpers

import (
	"os"
	"path/filepath"
	"testing"
)

// MockFileSystem is a temporary destination directory for mirror tests.
type MockFileSystem struct {
	Root string
	t    *testing.T
}

// NewMockFileSystem creates a new mock filesystem in a temp directory that is
// removed when the test ends.
func NewMockFileSystem(t *testing.T) *MockFileSystem {
	t.Helper()
	tempDir, err := os.MkdirTemp("", "dirdump-test-*")
	if err != nil {
		t.Fatalf("Failed to create temp dir: %v", err)
	}

	m := &MockFileSystem{Root: tempDir, t: t}
	t.Cleanup(m.Cleanup)
	return m
}

// Cleanup removes the temporary directory
func (m *MockFileSystem) Cleanup() {
	if err := os.RemoveAll(m.Root); err != nil {
		m.t.Errorf("Failed to cleanup temp dir: %v", err)
	}
}

// Path joins a slash-separated relative path onto Root.
func (m *MockFileSystem) Path(rel string) string {
	return filepath.Join(m.Root, filepath.FromSlash(rel))
}

// CreateFile creates a file with the given content
func (m *MockFileSystem) CreateFile(rel, content string) {
	m.t.Helper()
	fullPath := m.Path(rel)

	if err := os.MkdirAll(filepath.Dir(fullPath), 0o755); err != nil {
		m.t.Fatalf("Failed to create parent dir for %s: %v", rel, err)
	}
	if err := os.WriteFile(fullPath, []byte(content), 0o644); err != nil {
		m.t.Fatalf("Failed to create file %s: %v", rel, err)
	}
}

// ReadFile returns the content of rel and fails the test if it is missing.
func (m *MockFileSystem) ReadFile(rel string) string {
	m.t.Helper()
	data, err := os.ReadFile(m.Path(rel))
	if err != nil {
		m.t.Fatalf("Failed to read file %s: %v", rel, err)
	}
	return string(data)
}

// Exists reports whether rel exists.
func (m *MockFileSystem) Exists(rel string) bool {
	_, err := os.Stat(m.Path(rel))
	return err == nil
}

// CountFiles returns the number of regular files below Root.
func (m *MockFileSystem) CountFiles() int {
	m.t.Helper()
	n := 0
	err := filepath.WalkDir(m.Root, func(_ string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.Type().IsRegular() {
			n++
		}
		return nil
	})
	if err != nil {
		m.t.Fatalf("Failed to walk %s: %v", m.Root, err)
	}
	return n
}

// CreateStandardRepo registers a small .git-like tree on srv: nested
// folders, an empty folder, and files with dots and dashes in their names.
func CreateStandardRepo(srv *ListingServer) {
	srv.AddFile("HEAD", "ref: refs/heads/main\n")
	srv.AddFile("config", "[core]\n\trepositoryformatversion = 0\n")
	srv.AddFile("description", "Unnamed repository\n")
	srv.AddFile("refs/heads/main", "4b825dc642cb6eb9a060e54bf8d69288fbee4904\n")
	srv.AddFile("refs/tags/v1.0.0", "9fceb02d0ae598e95dc970b74767f19372d61af8\n")
	srv.AddFile("objects/4b/825dc642cb6eb9a060e54bf8d69288fbee4904", "blob-data")
	srv.AddFile("logs/HEAD", "0000 4b82 init\n")
	srv.AddFile("hooks/pre-commit.sample", "#!/bin/sh\n")
	srv.AddFolder("branches/")
}
