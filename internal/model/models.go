package model

// Default labels applied when a book or chapter is created without one.
const (
	DefaultGroup  = "Ungrouped"
	DefaultVolume = "Unvolumed"
)

// Book is the top-level writing project. Timestamps are epoch milliseconds.
type Book struct {
	ID           int64
	Title        string
	Description  string
	CoverPath    string // opaque path to a cover image
	Group        string
	CreatedAt    int64
	LastEditedAt int64
}

// Chapter belongs to exactly one Book. WordCount and Hash are derived from
// Content and are rewritten together with it.
type Chapter struct {
	ID           int64
	BookID       int64
	Volume       string
	Title        string
	Content      string
	WordCount    int
	CreatedAt    int64
	LastEditedAt int64
	Hash         string // hex MD5 of Content
}

// ModifiedChapter is a chapter row joined with its book title, as returned
// by the modified-since query that feeds incremental snapshots.
type ModifiedChapter struct {
	ID           int64
	Title        string
	BookID       int64
	BookTitle    string
	Content      string
	LastEditedAt int64
}

// InspirationItem is a node in the free-form inspiration tree.
type InspirationItem struct {
	ID       int64
	Title    string
	Content  string
	Tags     string
	ParentID *int64
}

// InspirationFragment is a short captured idea.
type InspirationFragment struct {
	ID        int64
	Type      string
	Content   string
	Source    string
	CreatedAt int64
}

// RecycleItemType identifies what kind of row a recycle-bin entry holds.
type RecycleItemType string

const (
	RecycleBook    RecycleItemType = "book"
	RecycleChapter RecycleItemType = "chapter"
)

// RecycleBinEntry holds a serialized copy of a deleted book or chapter.
// Data is the JSON snapshot written at deletion time.
type RecycleBinEntry struct {
	ID        int64
	ItemType  RecycleItemType
	ItemID    int64
	Data      string
	DeletedAt int64
}
