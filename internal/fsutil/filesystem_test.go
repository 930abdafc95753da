package fsutil

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"testing"
)

func TestOSFileSystem_Exists(t *testing.T) {
	fs := OSFileSystem{}

	if !fs.Exists("filesystem.go") {
		t.Error("expected filesystem.go to exist")
	}

	if fs.Exists("nonexistent_file_xyz.go") {
		t.Error("expected nonexistent file to not exist")
	}
}

func TestOSFileSystem_WriteFileAtomic(t *testing.T) {
	osfs := OSFileSystem{}
	dir := t.TempDir()
	path := filepath.Join(dir, "table.ilut")

	if err := osfs.WriteFileAtomic(path, []byte("first"), 0644); err != nil {
		t.Fatalf("WriteFileAtomic failed: %v", err)
	}
	if err := osfs.WriteFileAtomic(path, []byte("second"), 0600); err != nil {
		t.Fatalf("WriteFileAtomic failed: %v", err)
	}

	data, err := osfs.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	if string(data) != "second" {
		t.Errorf("expected 'second', got %q", data)
	}

	info, err := osfs.Stat(path)
	if err != nil {
		t.Fatalf("Stat failed: %v", err)
	}
	if info.Mode().Perm() != 0600 {
		t.Errorf("expected mode 0600, got %v", info.Mode().Perm())
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir failed: %v", err)
	}
	if len(entries) != 1 {
		t.Errorf("expected temporary files to be cleaned up, found %d entries", len(entries))
	}
}

func TestOSFileSystem_WriteFileAtomicMissingDir(t *testing.T) {
	osfs := OSFileSystem{}
	err := osfs.WriteFileAtomic(filepath.Join(t.TempDir(), "missing", "x"), []byte("x"), 0644)
	if err == nil {
		t.Fatal("expected error writing into a missing directory")
	}
}

func TestOSFileSystem_Glob(t *testing.T) {
	osfs := OSFileSystem{}
	dir := t.TempDir()
	for _, name := range []string{"a.ilut", "b.ilut", "c.txt"} {
		if err := osfs.WriteFileAtomic(filepath.Join(dir, name), []byte(name), 0644); err != nil {
			t.Fatalf("WriteFileAtomic failed: %v", err)
		}
	}
	matches, err := osfs.Glob(filepath.Join(dir, "*.ilut"))
	if err != nil {
		t.Fatalf("Glob failed: %v", err)
	}
	if len(matches) != 2 {
		t.Errorf("expected 2 matches, got %v", matches)
	}
}

func TestMemoryFileSystem_WriteAndRead(t *testing.T) {
	mfs := NewMemoryFileSystem()

	testData := []byte("hello, world")
	if err := mfs.WriteFileAtomic("/test.txt", testData, 0644); err != nil {
		t.Fatalf("WriteFileAtomic failed: %v", err)
	}

	data, err := mfs.ReadFile("/test.txt")
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	if string(data) != string(testData) {
		t.Errorf("expected %q, got %q", testData, data)
	}

	// Mutating the returned slice must not affect the stored file.
	data[0] = 'X'
	again, _ := mfs.ReadFile("/test.txt")
	if string(again) != string(testData) {
		t.Errorf("stored data was aliased: %q", again)
	}
}

func TestMemoryFileSystem_WriteRequiresDirectory(t *testing.T) {
	mfs := NewMemoryFileSystem()

	err := mfs.WriteFileAtomic("/missing/file.txt", []byte("x"), 0644)
	if !errors.Is(err, fs.ErrNotExist) {
		t.Fatalf("expected ErrNotExist, got %v", err)
	}

	if err := mfs.MkdirAll("/missing", 0755); err != nil {
		t.Fatalf("MkdirAll failed: %v", err)
	}
	if err := mfs.WriteFileAtomic("/missing/file.txt", []byte("x"), 0644); err != nil {
		t.Fatalf("WriteFileAtomic failed: %v", err)
	}
}

func TestMemoryFileSystem_ModTimeAdvances(t *testing.T) {
	mfs := NewMemoryFileSystem()

	if err := mfs.WriteFileAtomic("/a", []byte("1"), 0644); err != nil {
		t.Fatal(err)
	}
	first, err := mfs.Stat("/a")
	if err != nil {
		t.Fatal(err)
	}
	if err := mfs.WriteFileAtomic("/a", []byte("1"), 0644); err != nil {
		t.Fatal(err)
	}
	second, err := mfs.Stat("/a")
	if err != nil {
		t.Fatal(err)
	}
	if !second.ModTime().After(first.ModTime()) {
		t.Errorf("expected modification time to advance: %v then %v", first.ModTime(), second.ModTime())
	}
}

func TestMemoryFileSystem_Stat(t *testing.T) {
	mfs := NewMemoryFileSystem()

	if err := mfs.WriteFileAtomic("/stattest.txt", []byte("stat content"), 0644); err != nil {
		t.Fatalf("WriteFileAtomic failed: %v", err)
	}

	info, err := mfs.Stat("/stattest.txt")
	if err != nil {
		t.Fatalf("Stat failed: %v", err)
	}
	if info.Name() != "stattest.txt" {
		t.Errorf("expected name 'stattest.txt', got %q", info.Name())
	}
	if info.Size() != int64(len("stat content")) {
		t.Errorf("expected size %d, got %d", len("stat content"), info.Size())
	}
	if info.IsDir() {
		t.Error("expected file, not directory")
	}

	if _, err := mfs.Stat("/nonexistent.txt"); err == nil {
		t.Error("expected error for non-existent file")
	}
}

func TestMemoryFileSystem_MkdirAll(t *testing.T) {
	mfs := NewMemoryFileSystem()

	if err := mfs.MkdirAll("/a/b/c", 0755); err != nil {
		t.Fatalf("MkdirAll failed: %v", err)
	}

	for _, p := range []string{"/a/b/c", "/a/b", "/a"} {
		if !mfs.Exists(p) {
			t.Errorf("expected %s to exist", p)
		}
	}

	info, err := mfs.Stat("/a/b")
	if err != nil {
		t.Fatalf("Stat failed: %v", err)
	}
	if !info.IsDir() {
		t.Error("expected directory")
	}
}

func TestMemoryFileSystem_Remove(t *testing.T) {
	mfs := NewMemoryFileSystem()
	if err := mfs.MkdirAll("/d", 0755); err != nil {
		t.Fatal(err)
	}
	if err := mfs.WriteFileAtomic("/d/removeme.txt", []byte("delete"), 0644); err != nil {
		t.Fatalf("WriteFileAtomic failed: %v", err)
	}

	if err := mfs.Remove("/d"); err == nil {
		t.Error("expected error removing a non-empty directory")
	}

	if err := mfs.Remove("/d/removeme.txt"); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}
	if mfs.Exists("/d/removeme.txt") {
		t.Error("expected file to not exist after removal")
	}
	if err := mfs.Remove("/d"); err != nil {
		t.Fatalf("Remove dir failed: %v", err)
	}
	if err := mfs.Remove("/d"); !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("expected ErrNotExist, got %v", err)
	}
}

func TestMemoryFileSystem_Glob(t *testing.T) {
	mfs := NewMemoryFileSystem()
	if err := mfs.MkdirAll("/root/x", 0755); err != nil {
		t.Fatal(err)
	}
	for _, name := range []string{"/root/x/b.ilut", "/root/x/a.ilut", "/root/x/c.json"} {
		if err := mfs.WriteFileAtomic(name, nil, 0644); err != nil {
			t.Fatal(err)
		}
	}

	matches, err := mfs.Glob("/root/x/*.ilut")
	if err != nil {
		t.Fatalf("Glob failed: %v", err)
	}
	if len(matches) != 2 || matches[0] != "/root/x/a.ilut" || matches[1] != "/root/x/b.ilut" {
		t.Errorf("unexpected matches %v", matches)
	}

	if _, err := mfs.Glob("["); err == nil {
		t.Error("expected bad pattern error")
	}
}
