package remote

import (
	"os"
	"path/filepath"
	"testing"
)

func TestNewFileSystemStore(t *testing.T) {
	t.Run("creates root", func(t *testing.T) {
		root := filepath.Join(t.TempDir(), "remote", "nested")
		if _, err := NewFileSystemStore(root); err != nil {
			t.Fatalf("NewFileSystemStore() error = %v", err)
		}
		if info, err := os.Stat(root); err != nil || !info.IsDir() {
			t.Errorf("root not created: %v", err)
		}
	})

	t.Run("works with existing directory", func(t *testing.T) {
		if _, err := NewFileSystemStore(t.TempDir()); err != nil {
			t.Fatalf("NewFileSystemStore() error = %v", err)
		}
	})
}

func TestFileSystemStore_RoundTrip(t *testing.T) {
	root := t.TempDir()
	store, err := NewFileSystemStore(root)
	if err != nil {
		t.Fatalf("NewFileSystemStore() error = %v", err)
	}

	local := writeLocal(t, t.TempDir(), "stage.zip", "PK zip bytes")
	if err := store.Upload(local, "backup_stage_2024-01-15_10-30-00.zip"); err != nil {
		t.Fatalf("Upload() error = %v", err)
	}
	// Replacing is allowed.
	if err := store.Upload(local, "backup_stage_2024-01-15_10-30-00.zip"); err != nil {
		t.Fatalf("second Upload() error = %v", err)
	}

	// Leftover temp files are not listed.
	writeLocal(t, root, ".tmp-999", "partial")

	files, err := store.List()
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(files) != 1 || files[0].Name != "backup_stage_2024-01-15_10-30-00.zip" {
		t.Fatalf("List() = %+v", files)
	}
	if files[0].Size != int64(len("PK zip bytes")) {
		t.Errorf("size = %d", files[0].Size)
	}

	dst := t.TempDir()
	got, err := store.Download(files[0].Name, dst)
	if err != nil {
		t.Fatalf("Download() error = %v", err)
	}
	data, _ := os.ReadFile(got)
	if string(data) != "PK zip bytes" {
		t.Errorf("downloaded content = %q", data)
	}

	if _, err := store.Download("missing.zip", dst); err == nil {
		t.Error("Download() of missing object should fail")
	}

	if err := store.Delete(files[0].Name); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if err := store.Delete(files[0].Name); err != nil {
		t.Errorf("Delete() twice error = %v", err)
	}
	if err := store.Delete("../escape"); err == nil {
		t.Error("Delete() with path separator should fail")
	}
}
