package quill_test

import (
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"quill/internal/database"
	"quill/internal/fs"
	"quill/internal/quill"
	"quill/internal/testutil"
)

type harness struct {
	clock *testutil.StubClock
	db    *database.SQLiteDatabase
	dir   string
	mgr   *quill.Manager
}

type harnessOption func(*harnessConfig)

type harnessConfig struct {
	db     func(*database.SQLiteDatabase) quill.Database
	fsmgr  quill.FilesystemManager
	remote quill.RemoteStore
}

func withDatabase(wrap func(*database.SQLiteDatabase) quill.Database) harnessOption {
	return func(c *harnessConfig) { c.db = wrap }
}

func withFilesystem(f quill.FilesystemManager) harnessOption {
	return func(c *harnessConfig) { c.fsmgr = f }
}

func withRemote(r quill.RemoteStore) harnessOption {
	return func(c *harnessConfig) { c.remote = r }
}

func newHarness(t *testing.T, opts ...harnessOption) *harness {
	t.Helper()

	cfg := harnessConfig{
		db:    func(db *database.SQLiteDatabase) quill.Database { return db },
		fsmgr: fs.NewOSFilesystemManager(),
	}
	for _, o := range opts {
		o(&cfg)
	}

	clock := testutil.FixedClock()
	db := testutil.NewTestDatabase(t, clock)
	dir := filepath.Join(t.TempDir(), "backups")
	mgr := quill.NewManager(cfg.db(db), cfg.fsmgr, cfg.remote, dir, quill.DefaultRetention,
		quill.NewNopLogger(), clock, testutil.NewStubIDGenerator())
	t.Cleanup(mgr.Wait)

	return &harness{clock: clock, db: db, dir: dir, mgr: mgr}
}

// backup runs one backup and fails the test unless it wrote an artifact.
func (h *harness) backup(t *testing.T, kind quill.Kind) string {
	t.Helper()
	res := h.mgr.RunBackup(kind)
	require.True(t, res.Success, res.Message)
	require.False(t, res.Skipped, res.Message)
	require.NotEmpty(t, res.Filename)
	h.clock.Advance(time.Second)
	return res.Filename
}

func (h *harness) seedNovel(t *testing.T) (int64, []int64) {
	t.Helper()
	return testutil.SeedBook(t, h.db, "B1",
		testutil.ChapterSeed{Volume: "Vol1", Title: "Ch1", Content: "# Ch1\n\nhello"},
		testutil.ChapterSeed{Volume: "Vol1", Title: "Ch2", Content: "# Ch2\n\nworld"},
	)
}

// touch creates name in dir with the given modification time.
func touch(t *testing.T, dir, name string, mtime time.Time) {
	t.Helper()
	require.NoError(t, os.MkdirAll(dir, 0755))
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte(name), 0644))
	require.NoError(t, os.Chtimes(p, mtime, mtime))
}

func dirNames(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

func itoa(n int64) string { return strconv.FormatInt(n, 10) }
