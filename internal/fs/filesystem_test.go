package fs

import (
	"archive/zip"
	"os"
	"path/filepath"
	"sort"
	"testing"
	"time"
)

func writeTestFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func TestOSFilesystemManager_List(t *testing.T) {
	t.Run("missing directory is empty", func(t *testing.T) {
		m := NewOSFilesystemManager()
		files, err := m.List(filepath.Join(t.TempDir(), "nope"))
		if err != nil {
			t.Fatalf("List() error = %v", err)
		}
		if len(files) != 0 {
			t.Errorf("len = %d, want 0", len(files))
		}
	})

	t.Run("lists regular files only with mtimes", func(t *testing.T) {
		m := NewOSFilesystemManager()
		dir := t.TempDir()
		writeTestFile(t, filepath.Join(dir, "a.json"), "a")
		writeTestFile(t, filepath.Join(dir, "sub", "b.json"), "b")
		mtime := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
		if err := os.Chtimes(filepath.Join(dir, "a.json"), mtime, mtime); err != nil {
			t.Fatalf("chtimes: %v", err)
		}

		files, err := m.List(dir)
		if err != nil {
			t.Fatalf("List() error = %v", err)
		}
		if len(files) != 1 || files[0].Name != "a.json" {
			t.Fatalf("files = %+v", files)
		}
		if !files[0].Modified.Equal(mtime) {
			t.Errorf("Modified = %v, want %v", files[0].Modified, mtime)
		}
	})
}

func TestOSFilesystemManager_Remove(t *testing.T) {
	m := NewOSFilesystemManager()
	path := filepath.Join(t.TempDir(), "x")
	writeTestFile(t, path, "x")

	if err := m.Remove(path); err != nil {
		t.Fatalf("Remove() error = %v", err)
	}
	if err := m.Remove(path); err != nil {
		t.Errorf("Remove() of missing file error = %v, want nil", err)
	}
	info, err := m.Stat(path)
	if err != nil || info != nil {
		t.Errorf("Stat() = %v, %v, want nil, nil", info, err)
	}
}

func TestOSFilesystemManager_CopyFile(t *testing.T) {
	m := NewOSFilesystemManager()
	dir := t.TempDir()
	src := filepath.Join(dir, "src")
	dst := filepath.Join(dir, "dst")
	writeTestFile(t, src, "new content")
	writeTestFile(t, dst, "a much longer old content")

	if err := m.CopyFile(src, dst); err != nil {
		t.Fatalf("CopyFile() error = %v", err)
	}
	got, _ := os.ReadFile(dst)
	if string(got) != "new content" {
		t.Errorf("dst = %q, want %q", got, "new content")
	}

	if err := m.CopyFile(filepath.Join(dir, "missing"), dst); err == nil {
		t.Error("CopyFile() from missing source succeeded")
	}
}

func TestOSFilesystemManager_WriteFile(t *testing.T) {
	m := NewOSFilesystemManager()
	path := filepath.Join(t.TempDir(), "deep", "nested", "f.json")

	if err := m.WriteFile(path, []byte("{}")); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	got, err := m.ReadFile(path)
	if err != nil || string(got) != "{}" {
		t.Errorf("ReadFile() = %q, %v", got, err)
	}

	entries, _ := os.ReadDir(filepath.Dir(path))
	if len(entries) != 1 {
		t.Errorf("temp files left behind: %d entries", len(entries))
	}
}

func TestOSFilesystemManager_ZipUnzip(t *testing.T) {
	t.Run("round trip with forward slash names", func(t *testing.T) {
		m := NewOSFilesystemManager()
		src := t.TempDir()
		writeTestFile(t, filepath.Join(src, "book", "bookList.json"), "[]")
		writeTestFile(t, filepath.Join(src, "book", "1", "content", "100.json"), `{"content":"hi"}`)
		writeTestFile(t, filepath.Join(src, "materials.json"), "[]")

		dest := filepath.Join(t.TempDir(), "backup_stage_2024-01-15_10-30-00.zip")
		if err := m.Zip(src, dest); err != nil {
			t.Fatalf("Zip() error = %v", err)
		}

		r, err := zip.OpenReader(dest)
		if err != nil {
			t.Fatalf("open zip: %v", err)
		}
		var names []string
		for _, f := range r.File {
			names = append(names, f.Name)
		}
		r.Close()
		sort.Strings(names)
		want := []string{"book/1/content/100.json", "book/bookList.json", "materials.json"}
		if len(names) != len(want) {
			t.Fatalf("names = %v, want %v", names, want)
		}
		for i := range want {
			if names[i] != want[i] {
				t.Errorf("names[%d] = %q, want %q", i, names[i], want[i])
			}
		}

		out := t.TempDir()
		if err := m.Unzip(dest, out); err != nil {
			t.Fatalf("Unzip() error = %v", err)
		}
		got, _ := os.ReadFile(filepath.Join(out, "book", "1", "content", "100.json"))
		if string(got) != `{"content":"hi"}` {
			t.Errorf("extracted = %q", got)
		}
	})

	t.Run("refuses to overwrite", func(t *testing.T) {
		m := NewOSFilesystemManager()
		src := t.TempDir()
		writeTestFile(t, filepath.Join(src, "a"), "a")
		dest := filepath.Join(t.TempDir(), "out.zip")
		writeTestFile(t, dest, "existing")

		if err := m.Zip(src, dest); err == nil {
			t.Fatal("Zip() over existing file succeeded")
		}
		got, _ := os.ReadFile(dest)
		if string(got) != "existing" {
			t.Errorf("existing file changed to %q", got)
		}
	})

	t.Run("rejects path traversal", func(t *testing.T) {
		m := NewOSFilesystemManager()
		dest := filepath.Join(t.TempDir(), "evil.zip")
		f, err := os.Create(dest)
		if err != nil {
			t.Fatalf("create: %v", err)
		}
		zw := zip.NewWriter(f)
		w, _ := zw.Create("../escaped.txt")
		w.Write([]byte("gotcha"))
		zw.Close()
		f.Close()

		out := filepath.Join(t.TempDir(), "out")
		if err := m.Unzip(dest, out); err == nil {
			t.Fatal("Unzip() accepted a traversal entry")
		}
		if _, err := os.Stat(filepath.Join(filepath.Dir(out), "escaped.txt")); err == nil {
			t.Error("traversal entry was written")
		}
	})
}
