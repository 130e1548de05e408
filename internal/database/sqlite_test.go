package database

import (
	"bytes"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"quill/internal/model"
	"quill/internal/quill"
)

// testClock is a settable clock; testutil cannot be imported from here.
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// newTestDB creates a file-backed database with the schema applied.
func newTestDB(t *testing.T) (*SQLiteDatabase, *testClock) {
	t.Helper()

	clock := &testClock{now: time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC)}
	db, err := NewSQLiteDatabase(filepath.Join(t.TempDir(), "novels.db"), clock, nil)
	if err != nil {
		t.Fatalf("failed to create database: %v", err)
	}
	t.Cleanup(func() {
		db.Close()
	})
	return db, clock
}

func mustAddBook(t *testing.T, s quill.Store, title string) int64 {
	t.Helper()
	id, err := s.AddBook(title, "", "", "")
	if err != nil {
		t.Fatalf("AddBook(%q) error = %v", title, err)
	}
	return id
}

func mustAddChapter(t *testing.T, s quill.Store, bookID int64, volume, title string) int64 {
	t.Helper()
	id, err := s.AddChapter(bookID, volume, title)
	if err != nil {
		t.Fatalf("AddChapter(%q) error = %v", title, err)
	}
	return id
}

func TestSQLiteDatabase_Books(t *testing.T) {
	t.Run("returns nil when book not found", func(t *testing.T) {
		db, _ := newTestDB(t)

		book, err := db.GetBook(999)
		if err != nil {
			t.Fatalf("GetBook() error = %v", err)
		}
		if book != nil {
			t.Errorf("GetBook() = %v, want nil", book)
		}
	})

	t.Run("adds book with default group and timestamps", func(t *testing.T) {
		db, clock := newTestDB(t)

		id := mustAddBook(t, db, "B1")
		book, err := db.GetBook(id)
		if err != nil {
			t.Fatalf("GetBook() error = %v", err)
		}
		if book.Group != model.DefaultGroup {
			t.Errorf("Group = %q, want %q", book.Group, model.DefaultGroup)
		}
		want := clock.Now().UnixMilli()
		if book.CreatedAt != want || book.LastEditedAt != want {
			t.Errorf("timestamps = %d/%d, want %d", book.CreatedAt, book.LastEditedAt, want)
		}
	})

	t.Run("restores book with explicit id", func(t *testing.T) {
		db, _ := newTestDB(t)

		id, err := db.AddBookFromBackup(&model.Book{ID: 42, Title: "Old", CreatedAt: 1000})
		if err != nil {
			t.Fatalf("AddBookFromBackup() error = %v", err)
		}
		if id != 42 {
			t.Errorf("id = %d, want 42", id)
		}
		book, _ := db.GetBook(42)
		if book.LastEditedAt != 1000 {
			t.Errorf("LastEditedAt = %d, want createTime fallback 1000", book.LastEditedAt)
		}
	})
}

func TestSQLiteDatabase_AddChapter(t *testing.T) {
	t.Run("seeds heading and bumps book", func(t *testing.T) {
		db, clock := newTestDB(t)
		bookID := mustAddBook(t, db, "B1")
		clock.Advance(time.Minute)

		id := mustAddChapter(t, db, bookID, "", "Ch1")

		ch, err := db.GetChapter(id)
		if err != nil {
			t.Fatalf("GetChapter() error = %v", err)
		}
		if ch.Content != "# Ch1\n\n" {
			t.Errorf("Content = %q, want seeded heading", ch.Content)
		}
		if ch.Volume != model.DefaultVolume {
			t.Errorf("Volume = %q, want %q", ch.Volume, model.DefaultVolume)
		}
		if ch.WordCount != len("# Ch1") {
			t.Errorf("WordCount = %d, want %d", ch.WordCount, len("# Ch1"))
		}
		if ch.Hash != ContentHash(ch.Content) {
			t.Errorf("Hash = %q, want %q", ch.Hash, ContentHash(ch.Content))
		}

		book, _ := db.GetBook(bookID)
		if book.LastEditedAt != clock.Now().UnixMilli() {
			t.Errorf("book LastEditedAt = %d, want %d", book.LastEditedAt, clock.Now().UnixMilli())
		}
	})

	t.Run("keeps createTime unique within a book", func(t *testing.T) {
		db, _ := newTestDB(t)
		bookID := mustAddBook(t, db, "B1")

		a := mustAddChapter(t, db, bookID, "Vol1", "A")
		b := mustAddChapter(t, db, bookID, "Vol1", "B")

		chA, _ := db.GetChapter(a)
		chB, _ := db.GetChapter(b)
		if chB.CreatedAt <= chA.CreatedAt {
			t.Errorf("createTime %d not after %d", chB.CreatedAt, chA.CreatedAt)
		}
	})

	t.Run("fails for missing book", func(t *testing.T) {
		db, _ := newTestDB(t)

		_, err := db.AddChapter(404, "", "Lost")
		if !errors.Is(err, quill.ErrNotFound) {
			t.Errorf("AddChapter() error = %v, want ErrNotFound", err)
		}
	})
}

func TestSQLiteDatabase_UpdateChapterContent(t *testing.T) {
	t.Run("recomputes count and hash and bumps book", func(t *testing.T) {
		db, clock := newTestDB(t)
		bookID := mustAddBook(t, db, "B1")
		chID := mustAddChapter(t, db, bookID, "Vol1", "Ch1")
		before, _ := db.GetBook(bookID)
		clock.Advance(time.Second)

		text := "  \n你好，世界  \n"
		if err := db.UpdateChapterContent(chID, text); err != nil {
			t.Fatalf("UpdateChapterContent() error = %v", err)
		}

		content, count, err := db.GetChapterContent(chID)
		if err != nil {
			t.Fatalf("GetChapterContent() error = %v", err)
		}
		if content != text {
			t.Errorf("content = %q, want %q", content, text)
		}
		if count != 5 {
			t.Errorf("count = %d, want 5", count)
		}

		ch, _ := db.GetChapter(chID)
		if ch.Hash != ContentHash(text) {
			t.Errorf("Hash not recomputed")
		}
		after, _ := db.GetBook(bookID)
		if after.LastEditedAt < before.LastEditedAt || after.LastEditedAt != clock.Now().UnixMilli() {
			t.Errorf("book LastEditedAt = %d, before %d", after.LastEditedAt, before.LastEditedAt)
		}
	})

	t.Run("missing chapter is a silent no-op", func(t *testing.T) {
		db, _ := newTestDB(t)

		if err := db.UpdateChapterContent(12345, "ghost"); err != nil {
			t.Errorf("UpdateChapterContent() error = %v, want nil", err)
		}
	})
}

func TestSQLiteDatabase_GetChaptersModifiedSince(t *testing.T) {
	db, clock := newTestDB(t)
	bookID := mustAddBook(t, db, "B1")
	old := mustAddChapter(t, db, bookID, "Vol1", "Old")
	fresh := mustAddChapter(t, db, bookID, "Vol1", "Fresh")

	clock.Advance(time.Minute)
	watermark := clock.Now().UnixMilli()
	clock.Advance(time.Second)
	if err := db.UpdateChapterContent(fresh, "new words"); err != nil {
		t.Fatalf("UpdateChapterContent() error = %v", err)
	}

	got, err := db.GetChaptersModifiedSince(watermark)
	if err != nil {
		t.Fatalf("GetChaptersModifiedSince() error = %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("len = %d, want 1", len(got))
	}
	if got[0].ID != fresh || got[0].BookTitle != "B1" || got[0].Content != "new words" {
		t.Errorf("got %+v", got[0])
	}
	_ = old
}

func TestSQLiteDatabase_ClearAllWritingData(t *testing.T) {
	db, _ := newTestDB(t)
	bookID := mustAddBook(t, db, "B1")
	mustAddChapter(t, db, bookID, "Vol1", "Ch1")
	if _, err := db.AddMaterial(&model.Material{Name: "Hero", Type: model.MaterialText}); err != nil {
		t.Fatalf("AddMaterial() error = %v", err)
	}
	if _, err := db.AddTimeline(bookID, "Main"); err != nil {
		t.Fatalf("AddTimeline() error = %v", err)
	}
	if _, err := db.AddInspirationFragment(&model.InspirationFragment{Content: "idea"}); err != nil {
		t.Fatalf("AddInspirationFragment() error = %v", err)
	}
	if err := db.SetPreference("theme", "dark"); err != nil {
		t.Fatalf("SetPreference() error = %v", err)
	}

	for i := 0; i < 2; i++ {
		if err := db.ClearAllWritingData(); err != nil {
			t.Fatalf("ClearAllWritingData() call %d error = %v", i+1, err)
		}

		books, _ := db.GetAllBooks()
		materials, _ := db.GetAllMaterials()
		frags, _ := db.GetInspirationFragments()
		if len(books) != 0 || len(materials) != 0 || len(frags) != 0 {
			t.Errorf("after call %d: %d books, %d materials, %d fragments remain", i+1, len(books), len(materials), len(frags))
		}
	}

	theme, _ := db.GetPreference("theme", "light")
	if theme != "dark" {
		t.Errorf("preference wiped: theme = %q", theme)
	}
}

func TestSQLiteDatabase_Materials(t *testing.T) {
	t.Run("name unique per scope", func(t *testing.T) {
		db, _ := newTestDB(t)
		bookID := mustAddBook(t, db, "B1")

		if _, err := db.AddMaterial(&model.Material{Name: "Hero", Type: model.MaterialText}); err != nil {
			t.Fatalf("global AddMaterial() error = %v", err)
		}
		if _, err := db.AddMaterial(&model.Material{Name: "Hero", Type: model.MaterialText, BookID: &bookID}); err != nil {
			t.Fatalf("book AddMaterial() error = %v", err)
		}

		_, err := db.AddMaterial(&model.Material{Name: "Hero", Type: model.MaterialList})
		if !errors.Is(err, quill.ErrDuplicateName) {
			t.Errorf("duplicate global AddMaterial() error = %v, want ErrDuplicateName", err)
		}
		_, err = db.AddMaterial(&model.Material{Name: "Hero", Type: model.MaterialList, BookID: &bookID})
		if !errors.Is(err, quill.ErrDuplicateName) {
			t.Errorf("duplicate book AddMaterial() error = %v, want ErrDuplicateName", err)
		}

		global, _ := db.GetMaterials(nil)
		scoped, _ := db.GetMaterials(&bookID)
		if len(global) != 1 || len(scoped) != 1 {
			t.Errorf("global = %d, scoped = %d, want 1 each", len(global), len(scoped))
		}
	})

	t.Run("tagged attribute values round trip", func(t *testing.T) {
		db, _ := newTestDB(t)

		sword, err := db.AddMaterial(&model.Material{Name: "Sword", Type: model.MaterialText,
			Content: model.MaterialContent{Text: "sharp"}})
		if err != nil {
			t.Fatalf("AddMaterial() error = %v", err)
		}

		hero := &model.Material{
			Name: "Hero",
			Type: model.MaterialObject,
			Content: model.MaterialContent{Attributes: []model.Attribute{
				{Name: "Age", Value: model.TextValue("17")},
				{Name: "Weapon", Value: model.ReferenceValue{MaterialID: sword, Name: "Sword"}},
				{Name: "Allies", Value: model.CollectionValue{"Ann", "Bo"}},
			}},
		}
		id, err := db.AddMaterial(hero)
		if err != nil {
			t.Fatalf("AddMaterial() error = %v", err)
		}

		got, err := db.GetMaterial(id)
		if err != nil {
			t.Fatalf("GetMaterial() error = %v", err)
		}
		attrs := got.Content.Attributes
		if len(attrs) != 3 {
			t.Fatalf("len(Attributes) = %d, want 3", len(attrs))
		}
		if v, ok := attrs[0].Value.(model.TextValue); !ok || v != "17" {
			t.Errorf("Age = %#v", attrs[0].Value)
		}
		if v, ok := attrs[1].Value.(model.ReferenceValue); !ok || v.MaterialID != sword {
			t.Errorf("Weapon = %#v", attrs[1].Value)
		}
		if v, ok := attrs[2].Value.(model.CollectionValue); !ok || len(v) != 2 || v[1] != "Bo" {
			t.Errorf("Allies = %#v", attrs[2].Value)
		}
	})

	t.Run("rejects unknown type", func(t *testing.T) {
		db, _ := newTestDB(t)

		if _, err := db.AddMaterial(&model.Material{Name: "X", Type: "Weapon"}); err == nil {
			t.Error("AddMaterial() with unknown type succeeded")
		}
	})
}

func TestSQLiteDatabase_ReplaceTimelineEvents(t *testing.T) {
	db, _ := newTestDB(t)
	bookID := mustAddBook(t, db, "B1")
	tlID, err := db.AddTimeline(bookID, "Main")
	if err != nil {
		t.Fatalf("AddTimeline() error = %v", err)
	}

	parent := int64(10)
	events := []*model.TimelineEvent{
		{ID: 11, ParentID: &parent, Title: "Child", OrderIndex: 0, Status: model.StatusInProgress},
		{ID: 10, Title: "Root", OrderIndex: 0,
			ReferencedMaterials: []model.MaterialRef{{ID: 1, Name: "Hero"}}},
	}
	if err := db.ReplaceTimelineEvents(tlID, events); err != nil {
		t.Fatalf("ReplaceTimelineEvents() error = %v", err)
	}

	got, err := db.GetTimelineEvents(tlID)
	if err != nil {
		t.Fatalf("GetTimelineEvents() error = %v", err)
	}
	forest := model.BuildEventForest(got)
	if len(forest) != 1 || forest[0].Event.Title != "Root" {
		t.Fatalf("forest roots = %+v", forest)
	}
	if len(forest[0].Children) != 1 || forest[0].Children[0].Event.Status != model.StatusInProgress {
		t.Errorf("children = %+v", forest[0].Children)
	}
	if forest[0].Event.Status != model.StatusNotStarted {
		t.Errorf("root status = %q, want default", forest[0].Event.Status)
	}
	if refs := forest[0].Event.ReferencedMaterials; len(refs) != 1 || refs[0].Name != "Hero" {
		t.Errorf("refs = %+v", refs)
	}

	if err := db.ReplaceTimelineEvents(tlID, nil); err != nil {
		t.Fatalf("ReplaceTimelineEvents(nil) error = %v", err)
	}
	got, _ = db.GetTimelineEvents(tlID)
	if len(got) != 0 {
		t.Errorf("len = %d after clearing, want 0", len(got))
	}
}

func TestSQLiteDatabase_RecycleBin(t *testing.T) {
	t.Run("deleted book comes back with its chapters", func(t *testing.T) {
		db, _ := newTestDB(t)
		bookID := mustAddBook(t, db, "B1")
		ch := mustAddChapter(t, db, bookID, "Vol1", "Ch1")
		if err := db.UpdateChapterContent(ch, "kept text"); err != nil {
			t.Fatalf("UpdateChapterContent() error = %v", err)
		}

		if err := db.DeleteBook(bookID); err != nil {
			t.Fatalf("DeleteBook() error = %v", err)
		}
		if b, _ := db.GetBook(bookID); b != nil {
			t.Fatal("book still live after DeleteBook()")
		}
		if c, _ := db.GetChapter(ch); c != nil {
			t.Fatal("chapter still live after DeleteBook()")
		}

		items, err := db.GetRecycleBinItems()
		if err != nil {
			t.Fatalf("GetRecycleBinItems() error = %v", err)
		}
		if len(items) != 1 || items[0].ItemType != model.RecycleBook || items[0].ItemID != bookID {
			t.Fatalf("items = %+v", items)
		}

		if err := db.RestoreRecycleItem(items[0].ID); err != nil {
			t.Fatalf("RestoreRecycleItem() error = %v", err)
		}
		chapters, _ := db.GetChaptersForBook(bookID)
		if len(chapters) != 1 || chapters[0].Content != "kept text" {
			t.Errorf("restored chapters = %+v", chapters)
		}
		items, _ = db.GetRecycleBinItems()
		if len(items) != 0 {
			t.Errorf("recycle bin still has %d items", len(items))
		}
	})

	t.Run("chapter restore needs its book", func(t *testing.T) {
		db, _ := newTestDB(t)
		bookID := mustAddBook(t, db, "B1")
		ch := mustAddChapter(t, db, bookID, "Vol1", "Ch1")

		if err := db.DeleteChapter(ch); err != nil {
			t.Fatalf("DeleteChapter() error = %v", err)
		}
		items, _ := db.GetRecycleBinItems()
		if err := db.DeleteBook(bookID); err != nil {
			t.Fatalf("DeleteBook() error = %v", err)
		}

		err := db.RestoreRecycleItem(items[0].ID)
		if !errors.Is(err, quill.ErrNotFound) {
			t.Errorf("RestoreRecycleItem() error = %v, want ErrNotFound", err)
		}
	})

	t.Run("missing entry", func(t *testing.T) {
		db, _ := newTestDB(t)

		if err := db.RestoreRecycleItem(77); !errors.Is(err, quill.ErrNotFound) {
			t.Errorf("RestoreRecycleItem() error = %v, want ErrNotFound", err)
		}
	})
}

func TestSQLiteDatabase_ExportImportRows(t *testing.T) {
	src, _ := newTestDB(t)
	bookID := mustAddBook(t, src, "B1")
	if _, err := src.AddMaterial(&model.Material{Name: "Hero", Type: model.MaterialList,
		Content: model.MaterialContent{Items: []string{"a", "b"}}, BookID: &bookID}); err != nil {
		t.Fatalf("AddMaterial() error = %v", err)
	}

	rows, err := src.ExportTable(quill.TableMaterials)
	if err != nil {
		t.Fatalf("ExportTable() error = %v", err)
	}
	if len(rows) != 1 || rows[0]["name"] != "Hero" {
		t.Fatalf("rows = %+v", rows)
	}

	// Simulate the trip through a JSON file.
	data, err := json.Marshal(rows)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var decoded []map[string]any
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&decoded); err != nil {
		t.Fatalf("decode: %v", err)
	}
	decoded[0]["legacy_column"] = "ignored"

	dst, _ := newTestDB(t)
	if _, err := dst.AddBookFromBackup(&model.Book{ID: bookID, Title: "B1"}); err != nil {
		t.Fatalf("AddBookFromBackup() error = %v", err)
	}
	if err := dst.ImportRows(quill.TableMaterials, decoded); err != nil {
		t.Fatalf("ImportRows() error = %v", err)
	}

	got, _ := dst.GetMaterials(&bookID)
	if len(got) != 1 || len(got[0].Content.Items) != 2 {
		t.Errorf("imported materials = %+v", got)
	}

	if _, err := dst.ExportTable("preferences"); err == nil {
		t.Error("ExportTable(preferences) should be refused")
	}
}

func TestSQLiteDatabase_RunInTx(t *testing.T) {
	db, _ := newTestDB(t)

	boom := errors.New("boom")
	err := db.RunInTx(func(tx quill.Store) error {
		if _, err := tx.AddBook("Doomed", "", "", ""); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("RunInTx() error = %v, want boom", err)
	}

	books, _ := db.GetAllBooks()
	if len(books) != 0 {
		t.Errorf("len(books) = %d after rollback, want 0", len(books))
	}
}

func TestSQLiteDatabase_Sessions(t *testing.T) {
	t.Run("sessions share data", func(t *testing.T) {
		for _, path := range []string{"file", ":memory:"} {
			t.Run(path, func(t *testing.T) {
				p := path
				if p == "file" {
					p = filepath.Join(t.TempDir(), "novels.db")
				}
				db, err := NewSQLiteDatabase(p, nil, nil)
				if err != nil {
					t.Fatalf("NewSQLiteDatabase() error = %v", err)
				}
				defer db.Close()

				mustAddBook(t, db, "Shared")

				sess, err := db.OpenSession()
				if err != nil {
					t.Fatalf("OpenSession() error = %v", err)
				}
				books, err := sess.GetAllBooks()
				if err != nil {
					t.Fatalf("GetAllBooks() error = %v", err)
				}
				if len(books) != 1 {
					t.Errorf("session sees %d books, want 1", len(books))
				}

				if err := sess.Close(); err != nil {
					t.Fatalf("Close() error = %v", err)
				}
				if _, err := sess.GetAllBooks(); err == nil {
					t.Error("closed session still usable")
				}
			})
		}
	})

	t.Run("concurrent writers are serialized", func(t *testing.T) {
		db, _ := newTestDB(t)
		bookID := mustAddBook(t, db, "B1")

		const workers, perWorker = 4, 10
		var wg sync.WaitGroup
		errs := make(chan error, workers)
		for w := 0; w < workers; w++ {
			wg.Add(1)
			go func(w int) {
				defer wg.Done()
				sess, err := db.OpenSession()
				if err != nil {
					errs <- err
					return
				}
				defer sess.Close()
				for i := 0; i < perWorker; i++ {
					if _, err := sess.AddChapter(bookID, "Vol", fmt.Sprintf("w%d-%d", w, i)); err != nil {
						errs <- err
						return
					}
				}
			}(w)
		}
		wg.Wait()
		close(errs)
		for err := range errs {
			t.Fatalf("worker error = %v", err)
		}

		chapters, _ := db.GetChaptersForBook(bookID)
		if len(chapters) != workers*perWorker {
			t.Errorf("len(chapters) = %d, want %d", len(chapters), workers*perWorker)
		}
	})
}

func TestSQLiteDatabase_Schema(t *testing.T) {
	db, _ := newTestDB(t)

	schema, err := db.Schema()
	if err != nil {
		t.Fatalf("Schema() error = %v", err)
	}
	for _, want := range []string{"books (", "timeline_events (", "idx_materials_scope_name"} {
		if !strings.Contains(schema, want) {
			t.Errorf("schema missing %q", want)
		}
	}
	if strings.Contains(schema, "schema_migrations") {
		t.Error("schema includes migration bookkeeping")
	}
}
