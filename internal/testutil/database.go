package testutil

import (
	"path/filepath"
	"testing"

	"quill/internal/database"
	"quill/internal/quill"
)

// NewTestDatabase creates a file-backed SQLite database in a temp directory
// with the schema applied. File-backed so restore tests have real files to
// copy. The database is closed when the test completes.
func NewTestDatabase(t *testing.T, clock quill.Clock) *database.SQLiteDatabase {
	t.Helper()

	db, err := database.NewSQLiteDatabase(filepath.Join(t.TempDir(), "novels.db"), clock, nil)
	if err != nil {
		t.Fatalf("failed to create database: %v", err)
	}
	t.Cleanup(func() {
		db.Close()
	})
	return db
}

// ChapterSeed is one chapter for SeedBook.
type ChapterSeed struct {
	Volume  string
	Title   string
	Content string
}

// SeedBook adds a book with the given chapters, in order, and returns the
// book id and chapter ids.
func SeedBook(t *testing.T, store quill.Store, title string, chapters ...ChapterSeed) (int64, []int64) {
	t.Helper()

	bookID, err := store.AddBook(title, "", "", "")
	if err != nil {
		t.Fatalf("AddBook(%q): %v", title, err)
	}
	var ids []int64
	for _, ch := range chapters {
		id, err := store.AddChapter(bookID, ch.Volume, ch.Title)
		if err != nil {
			t.Fatalf("AddChapter(%q): %v", ch.Title, err)
		}
		if ch.Content != "" {
			if err := store.UpdateChapterContent(id, ch.Content); err != nil {
				t.Fatalf("UpdateChapterContent(%q): %v", ch.Title, err)
			}
		}
		ids = append(ids, id)
	}
	return bookID, ids
}
