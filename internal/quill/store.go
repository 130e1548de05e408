package quill

import "quill/internal/model"

// Tables whose rows are exported verbatim into full backups.
const (
	TableMaterials            = "materials"
	TableInspirationItems     = "inspiration_items"
	TableInspirationFragments = "inspiration_fragments"
	TableTimelines            = "timelines"
	TableTimelineEvents       = "timeline_events"
)

// Store is a handle onto the writing database. Each handle owns one
// connection; every statement it runs is serialized against all other
// handles of the same Database by a process-wide lock.
//
// Lookups return nil, nil when the row does not exist.
type Store interface {
	// Book operations

	// AddBook creates a book and returns its id. An empty group becomes
	// model.DefaultGroup.
	AddBook(title, description, coverPath, group string) (int64, error)

	// AddBookFromBackup inserts a book with the timestamps it carries.
	// A non-zero book.ID is preserved.
	AddBookFromBackup(book *model.Book) (int64, error)

	GetBook(id int64) (*model.Book, error)
	GetAllBooks() ([]*model.Book, error)
	UpdateBook(book *model.Book) error

	// DeleteBook moves the book and its chapters into the recycle bin.
	DeleteBook(id int64) error

	// Chapter operations

	// AddChapter creates a chapter seeded with a "# <title>" heading and
	// bumps the owning book's lastEditedAt.
	AddChapter(bookID int64, volume, title string) (int64, error)

	// AddChapterFromBackup inserts a chapter as found in a backup, keeping
	// its timestamps. Word count and hash are recomputed from the content.
	AddChapterFromBackup(chapter *model.Chapter) (int64, error)

	GetChapter(id int64) (*model.Chapter, error)

	// GetChapterContent returns the content and word count of a chapter.
	GetChapterContent(id int64) (string, int, error)

	// GetChaptersForBook returns chapters ordered by volume, then creation.
	GetChaptersForBook(bookID int64) ([]*model.Chapter, error)

	// UpdateChapterContent rewrites content, word count and hash and bumps
	// the chapter's and the book's lastEditedAt. A missing chapter id is a
	// silent no-op.
	UpdateChapterContent(id int64, content string) error

	UpdateChapterTitle(id int64, title string) error

	// DeleteChapter moves the chapter into the recycle bin.
	DeleteChapter(id int64) error

	// GetChaptersModifiedSince returns chapters whose lastEditedAt is
	// strictly greater than since (epoch milliseconds).
	GetChaptersModifiedSince(since int64) ([]*model.ModifiedChapter, error)

	// Material operations

	// AddMaterial returns ErrDuplicateName when a material with the same
	// name already exists in the same scope.
	AddMaterial(m *model.Material) (int64, error)
	UpdateMaterial(m *model.Material) error
	GetMaterial(id int64) (*model.Material, error)

	// GetMaterials returns the global materials when bookID is nil, and the
	// book's own materials otherwise.
	GetMaterials(bookID *int64) ([]*model.Material, error)
	GetAllMaterials() ([]*model.Material, error)
	DeleteMaterial(id int64) error

	// Timeline operations

	AddTimeline(bookID int64, name string) (int64, error)
	GetTimelines(bookID int64) ([]*model.Timeline, error)
	DeleteTimeline(id int64) error
	GetTimelineEvents(timelineID int64) ([]*model.TimelineEvent, error)

	// ReplaceTimelineEvents atomically swaps the whole event forest of a
	// timeline. Events with a non-zero ID keep it so parent links survive.
	ReplaceTimelineEvents(timelineID int64, events []*model.TimelineEvent) error

	// Inspiration operations

	AddInspirationItem(item *model.InspirationItem) (int64, error)
	UpdateInspirationItem(item *model.InspirationItem) error
	GetInspirationItems() ([]*model.InspirationItem, error)
	DeleteInspirationItem(id int64) error
	AddInspirationFragment(f *model.InspirationFragment) (int64, error)
	GetInspirationFragments() ([]*model.InspirationFragment, error)
	DeleteInspirationFragment(id int64) error

	// Recycle bin operations

	GetRecycleBinItems() ([]*model.RecycleBinEntry, error)

	// RestoreRecycleItem puts a deleted book (with its chapters) or chapter
	// back. Returns ErrNotFound if the entry does not exist.
	RestoreRecycleItem(id int64) error
	PurgeRecycleItem(id int64) error
	EmptyRecycleBin() error

	// Preference operations

	GetPreference(key, fallback string) (string, error)
	SetPreference(key, value string) error

	// Bulk operations

	// ExportTable returns every row of one of the Table* tables as a
	// column-name keyed map.
	ExportTable(table string) ([]map[string]any, error)

	// ImportRows inserts raw rows into one of the Table* tables. Keys that
	// are not columns of the table are ignored.
	ImportRows(table string, rows []map[string]any) error

	// ClearAllWritingData deletes every book, chapter, material, timeline,
	// timeline event and inspiration row in one transaction. Preferences
	// and the recycle bin are kept.
	ClearAllWritingData() error

	// RunInTx runs fn inside a transaction on this handle. The store lock
	// is held until the transaction ends. Nested calls join the outer
	// transaction.
	RunInTx(fn func(tx Store) error) error

	// Close releases the handle's connection.
	Close() error
}

// Database is the shared store. It is itself a Store bound to the primary
// connection, and hands out private sessions to background workers.
type Database interface {
	Store

	// OpenSession returns a new handle on its own connection. The caller
	// must Close it.
	OpenSession() (Store, error)

	// Files returns the on-disk files backing the database, or nil for an
	// in-memory database.
	Files() []string
}
