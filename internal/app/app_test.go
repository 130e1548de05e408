package app

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"quill/internal/config"
	"quill/internal/quill"
	"quill/internal/remote"
)

func newTestConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.NewConfig(t.TempDir())
	cfg.LogLevel = "error"
	return cfg
}

func newTestApp(t *testing.T, cfg *config.Config) *App {
	t.Helper()
	a, err := NewApp(cfg, "test")
	if err != nil {
		t.Fatalf("NewApp() error = %v", err)
	}
	t.Cleanup(func() { a.Close() })
	return a
}

func seed(t *testing.T, a *App) {
	t.Helper()
	bookID, err := a.Store().AddBook("B1", "", "", "")
	if err != nil {
		t.Fatalf("AddBook() error = %v", err)
	}
	chID, err := a.Store().AddChapter(bookID, "Vol1", "Ch1")
	if err != nil {
		t.Fatalf("AddChapter() error = %v", err)
	}
	if err := a.Store().UpdateChapterContent(chID, "# Ch1\n\nhello"); err != nil {
		t.Fatalf("UpdateChapterContent() error = %v", err)
	}
}

func TestNewApp(t *testing.T) {
	t.Run("rejects unknown log level", func(t *testing.T) {
		cfg := newTestConfig(t)
		cfg.LogLevel = "loud"
		if _, err := NewApp(cfg, "test"); err == nil {
			t.Error("NewApp() expected error for bad log level")
		}
	})

	t.Run("rejects unknown remote", func(t *testing.T) {
		cfg := newTestConfig(t)
		cfg.Remote.Type = "ftp"
		if _, err := NewApp(cfg, "test"); err == nil {
			t.Error("NewApp() expected error for unknown remote type")
		}
	})

	t.Run("writes log file", func(t *testing.T) {
		cfg := newTestConfig(t)
		a := newTestApp(t, cfg)
		if _, err := os.Stat(filepath.Join(cfg.LogDir, "quill.log")); err != nil {
			t.Errorf("log file not created: %v", err)
		}
		if a.RemoteEnabled() {
			t.Error("RemoteEnabled() = true with remote type none")
		}
	})
}

func TestApp_BackupAndRestore(t *testing.T) {
	a := newTestApp(t, newTestConfig(t))
	seed(t, a)

	res := a.Manager().RunBackup(quill.KindStage)
	if !res.Success || res.Filename == "" {
		t.Fatalf("RunBackup() = %+v", res)
	}

	entries, err := a.Manager().ListBackups()
	if err != nil {
		t.Fatalf("ListBackups() error = %v", err)
	}
	if len(entries) != 1 || entries[0].Type != quill.ArtifactStage {
		t.Fatalf("ListBackups() = %+v", entries)
	}

	rr := a.Manager().RestoreFromBackup(res.Filename)
	if !rr.Success || !rr.RestartRequired {
		t.Fatalf("RestoreFromBackup() = %+v", rr)
	}

	if got := len(a.DatabaseFiles()); got == 0 {
		t.Error("DatabaseFiles() empty for a file database")
	}
}

func TestApp_EncryptedRemote(t *testing.T) {
	cfg := newTestConfig(t)
	cfg.Encryption.Type = "test"
	cfg.Remote = config.RemoteConfig{Type: "filesystem", Encrypt: true, FSRoot: filepath.Join(t.TempDir(), "remote")}
	a := newTestApp(t, cfg)
	seed(t, a)

	res := a.Manager().RunBackup(quill.KindStage)
	if !res.Success {
		t.Fatalf("RunBackup() = %+v", res)
	}

	if _, err := os.Stat(filepath.Join(cfg.Remote.FSRoot, res.Filename+".age")); err != nil {
		t.Fatalf("encrypted copy not on remote: %v", err)
	}

	if err := a.Manager().DeleteBackup(res.Filename); err != nil {
		t.Fatalf("DeleteBackup() error = %v", err)
	}
	if _, err := a.Manager().PullBackup(res.Filename); !errors.Is(err, remote.ErrLocked) {
		t.Fatalf("PullBackup() locked error = %v, want ErrLocked", err)
	}

	if err := a.UnlockRemote(""); err != nil {
		t.Fatalf("UnlockRemote() error = %v", err)
	}
	path, err := a.Manager().PullBackup(res.Filename)
	if err != nil {
		t.Fatalf("PullBackup() error = %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(string(data), "PK") {
		t.Errorf("pulled file is not a zip: %q", data[:min(len(data), 8)])
	}
}

func TestApp_Serve(t *testing.T) {
	cfg := newTestConfig(t)
	cfg.Schedule = config.ScheduleConfig{SnapshotInterval: "1h", StageInterval: "1h"}
	a := newTestApp(t, cfg)
	seed(t, a)

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	if err := a.Serve(ctx); err != nil {
		t.Fatalf("Serve() error = %v", err)
	}

	entries, err := a.Manager().ListBackups()
	if err != nil {
		t.Fatalf("ListBackups() error = %v", err)
	}
	if len(entries) != 1 || entries[0].Type != quill.ArtifactArchive {
		t.Errorf("after Serve() backups = %+v, want one archive", entries)
	}
}

func TestApp_CopyDatabase(t *testing.T) {
	a := newTestApp(t, newTestConfig(t))
	seed(t, a)

	dest := filepath.Join(t.TempDir(), "copy.db")
	if err := a.CopyDatabase(dest); err != nil {
		t.Fatalf("CopyDatabase() error = %v", err)
	}
	if err := a.CopyDatabase(dest); err == nil {
		t.Error("CopyDatabase() over an existing file should fail")
	}
}

func TestApp_ChangePassphraseNeedsAge(t *testing.T) {
	cfg := newTestConfig(t)
	cfg.Encryption.Type = "test"
	a := newTestApp(t, cfg)
	if err := a.ChangePassphrase("a", "b"); err == nil {
		t.Error("ChangePassphrase() with test encryptor should fail")
	}
}
