package quill

import (
	"fmt"
	"path/filepath"
	"strconv"

	"quill/internal/model"
)

// Layout of a full backup tree.
const (
	bookRootDir         = "book"
	bookListFile        = "bookList.json"
	bookFile            = "book.json"
	contentDir          = "content"
	legacyMaterialsFile = "settings.json"
	noChaptersInfo      = "No chapters"
	treeIndent          = "    "
)

// flatTables are dumped as raw row arrays next to the book tree, in the
// order a restore must load them.
var flatTables = []string{
	TableMaterials,
	TableInspirationItems,
	TableInspirationFragments,
	TableTimelines,
	TableTimelineEvents,
}

func flatTableFile(table string) string { return table + ".json" }

type bookListEntry struct {
	Name         string `json:"name"`
	Author       string `json:"author"`
	CreateTime   int64  `json:"createTime"`
	TotalCount   int    `json:"totalCount"`
	LastEditInfo string `json:"lastEditInfo"`
	ID           int64  `json:"id,omitempty"`
}

type chapterEntry struct {
	Name       string `json:"name"`
	Count      int    `json:"count"`
	CreateTime int64  `json:"createTime"`
	VolumeName string `json:"volumeName"`
}

type volumeEntry struct {
	Name       string         `json:"name"`
	Children   []chapterEntry `json:"children"`
	CreateTime *int64         `json:"createTime"`
}

type bookDocument struct {
	Name         string        `json:"name"`
	Summary      string        `json:"summary"`
	Children     []volumeEntry `json:"children"`
	CreateTime   int64         `json:"createTime"`
	LastEditTime int64         `json:"lastEditTime"`
	Group        string        `json:"group"`
}

type contentDocument struct {
	Content string `json:"content"`
	Count   int    `json:"count"`
	Hash    string `json:"hash"`
}

// exporter writes the full backup tree of one store under root.
type exporter struct {
	store  Store
	fsmgr  FilesystemManager
	root   string
	logger Logger
}

// export writes the tree and reports whether there was anything to write.
func (e *exporter) export() (bool, error) {
	books, err := e.store.GetAllBooks()
	if err != nil {
		return false, fmt.Errorf("listing books: %w", err)
	}

	wrote := false
	if len(books) > 0 {
		list := make([]bookListEntry, 0, len(books))
		for _, b := range books {
			entry, err := e.exportBook(b)
			if err != nil {
				return false, err
			}
			list = append(list, entry)
		}
		if err := e.writeJSON(filepath.Join(e.root, bookRootDir, bookListFile), list); err != nil {
			return false, err
		}
		wrote = true
	}

	for _, table := range flatTables {
		rows, err := e.store.ExportTable(table)
		if err != nil {
			return false, err
		}
		if len(rows) == 0 {
			continue
		}
		if err := e.writeJSON(filepath.Join(e.root, flatTableFile(table)), rows); err != nil {
			return false, err
		}
		wrote = true
	}
	return wrote, nil
}

func (e *exporter) exportBook(b *model.Book) (bookListEntry, error) {
	chapters, err := e.store.GetChaptersForBook(b.ID)
	if err != nil {
		return bookListEntry{}, fmt.Errorf("listing chapters of %q: %w", b.Title, err)
	}

	bookDir := filepath.Join(e.root, bookRootDir, strconv.FormatInt(b.ID, 10))
	entry := bookListEntry{
		Name:         b.Title,
		CreateTime:   b.CreatedAt,
		LastEditInfo: noChaptersInfo,
		ID:           b.ID,
	}

	var (
		volumes    []volumeEntry
		volumeIdx  = map[string]int{}
		lastEdited int64
	)
	for _, ch := range chapters {
		entry.TotalCount += ch.WordCount
		if ch.LastEditedAt >= lastEdited {
			lastEdited = ch.LastEditedAt
			entry.LastEditInfo = ch.Title
		}

		content := contentDocument{Content: ch.Content, Count: ch.WordCount, Hash: ch.Hash}
		name := strconv.FormatInt(ch.CreatedAt, 10) + ".json"
		if err := e.writeJSON(filepath.Join(bookDir, contentDir, name), content); err != nil {
			return bookListEntry{}, err
		}

		vol := ch.Volume
		if vol == "" {
			vol = model.DefaultVolume
		}
		i, ok := volumeIdx[vol]
		if !ok {
			i = len(volumes)
			volumeIdx[vol] = i
			volumes = append(volumes, volumeEntry{Name: vol})
		}
		volumes[i].Children = append(volumes[i].Children, chapterEntry{
			Name:       ch.Title,
			Count:      ch.WordCount,
			CreateTime: ch.CreatedAt,
			VolumeName: vol,
		})
	}

	doc := bookDocument{
		Name:         b.Title,
		Summary:      b.Description,
		Children:     volumes,
		CreateTime:   b.CreatedAt,
		LastEditTime: b.LastEditedAt,
		Group:        b.Group,
	}
	if doc.Children == nil {
		doc.Children = []volumeEntry{}
	}
	if err := e.writeJSON(filepath.Join(bookDir, bookFile), doc); err != nil {
		return bookListEntry{}, err
	}

	e.logger.Debug("book exported", "book_id", b.ID, "chapters", len(chapters))
	return entry, nil
}

func (e *exporter) writeJSON(path string, v any) error {
	data, err := encodeJSON(v, treeIndent)
	if err != nil {
		return fmt.Errorf("encoding %s: %w", filepath.Base(path), err)
	}
	if err := e.fsmgr.WriteFile(path, data); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}
