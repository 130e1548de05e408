package quill

import (
	"bytes"
	"errors"
	"fmt"
	"path/filepath"
	"strconv"

	"github.com/goccy/go-json"

	"quill/internal/model"
)

// RollbackStatus says what happened to the live database after a failed
// restore.
type RollbackStatus string

const (
	RollbackNone        RollbackStatus = "none"
	RollbackFull        RollbackStatus = "full"
	RollbackPartial     RollbackStatus = "partial"
	RollbackFailed      RollbackStatus = "failed"
	RollbackUnavailable RollbackStatus = "unavailable"
)

// RestoreResult is the outcome of a restore.
type RestoreResult struct {
	Filename string
	Success  bool
	Message  string
	Rollback RollbackStatus

	// RestartRequired is set after a full restore: handles opened before
	// it may still hold stale state.
	RestartRequired bool

	BooksRestored    int
	ChaptersRestored int
	ChaptersSkipped  int
}

// defensiveSuffix is appended to each database file for the pre-restore copy.
const defensiveSuffix = ".backup"

type restoreBook struct {
	book     model.Book
	chapters []model.Chapter
}

// restorePlan is a fully parsed backup, loaded before anything is wiped.
type restorePlan struct {
	books  []restoreBook
	tables map[string][]map[string]any
}

// RestoreFromBackup replaces all writing data with the content of a full
// backup. Snapshot files are replayed with RestoreFromSnapshot instead.
func (m *Manager) RestoreFromBackup(filename string) RestoreResult {
	if typ, ok := ClassifyArtifact(filename); ok && typ == ArtifactSnapshot {
		return m.RestoreFromSnapshot(filename)
	}

	if !m.acquire() {
		return RestoreResult{Filename: filename, Message: ErrBusy.Error()}
	}
	defer m.release()

	res := m.restoreFull(filename)
	res.Filename = filename
	if res.Success {
		m.logger.Info("restore complete", "file", filename, "books", res.BooksRestored, "chapters", res.ChaptersRestored)
	} else {
		m.logger.Error("restore failed", "file", filename, "rollback", res.Rollback, "message", res.Message)
	}
	m.observer.RestoreFinished(res)
	return res
}

func (m *Manager) restoreFull(filename string) RestoreResult {
	fail := func(format string, args ...any) RestoreResult {
		return RestoreResult{Message: fmt.Sprintf(format, args...), Rollback: RollbackNone}
	}

	path, err := m.BackupPath(filename)
	if err != nil {
		return fail("Restore failed: %v", err)
	}
	info, err := m.fsmgr.Stat(path)
	if err != nil {
		return fail("Restore failed: %v", err)
	}
	if info == nil {
		return fail("Restore failed: backup %s does not exist", filename)
	}

	tmp, err := m.fsmgr.MkdirTemp("", "quill-restore-*")
	if err != nil {
		return fail("Restore failed: creating temp directory: %v", err)
	}
	defer func() {
		if err := m.fsmgr.RemoveAll(tmp); err != nil {
			m.logger.Warn("removing temp directory", "path", tmp, "error", err)
		}
	}()

	if err := m.fsmgr.Unzip(path, tmp); err != nil {
		return fail("Restore failed: extracting %s: %v", filename, err)
	}
	plan, err := loadRestorePlan(m.fsmgr, tmp)
	if err != nil {
		return fail("Restore failed: %v. Nothing was changed.", err)
	}

	copies, err := m.defensiveCopy()
	if err != nil {
		return fail("Restore aborted: could not copy the current database (%v). Nothing was changed.", err)
	}

	books, chapters, err := m.applyPlan(plan)
	if err != nil {
		return m.rollback(err, copies)
	}

	return RestoreResult{
		Success:          true,
		Rollback:         RollbackNone,
		RestartRequired:  true,
		BooksRestored:    books,
		ChaptersRestored: chapters,
		Message: fmt.Sprintf("Restored %d books and %d chapters from %s. Restart quill before making further changes.",
			books, chapters, filename),
	}
}

// defensiveCopy copies every database file to a .backup sibling and
// returns the files copied.
func (m *Manager) defensiveCopy() ([]string, error) {
	files := m.db.Files()
	for _, f := range files {
		if err := m.fsmgr.CopyFile(f, f+defensiveSuffix); err != nil {
			return nil, fmt.Errorf("copying %s: %w", filepath.Base(f), err)
		}
	}
	if len(files) == 0 {
		m.logger.Warn("no database files to copy before restore")
	}
	return files, nil
}

// rollback copies the defensive copies back over the live files.
func (m *Manager) rollback(cause error, files []string) RestoreResult {
	res := RestoreResult{}
	if len(files) == 0 {
		res.Rollback = RollbackUnavailable
		res.Message = fmt.Sprintf("Restore failed: %v. No copy of the previous database exists; data may have been lost.", cause)
		return res
	}

	var errs []error
	for _, f := range files {
		if err := m.fsmgr.CopyFile(f+defensiveSuffix, f); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", filepath.Base(f), err))
		}
	}

	switch {
	case len(errs) == 0:
		res.Rollback = RollbackFull
		res.Message = fmt.Sprintf("Restore failed: %v. The database was rolled back to its previous state.", cause)
	case len(errs) < len(files):
		res.Rollback = RollbackPartial
		res.Message = fmt.Sprintf("Restore failed: %v. Rollback only partly succeeded (%v); the previous database is kept in the %s files.",
			cause, errors.Join(errs...), defensiveSuffix)
	default:
		res.Rollback = RollbackFailed
		res.Message = fmt.Sprintf("Restore failed: %v. Rollback failed (%v); the previous database is kept in the %s files.",
			cause, errors.Join(errs...), defensiveSuffix)
	}
	return res
}

// applyPlan wipes and repopulates the store in one transaction on a
// private session.
func (m *Manager) applyPlan(plan *restorePlan) (int, int, error) {
	sess, err := m.db.OpenSession()
	if err != nil {
		return 0, 0, fmt.Errorf("opening session: %w", err)
	}
	defer func() {
		if err := sess.Close(); err != nil {
			m.logger.Warn("closing restore session", "error", err)
		}
	}()

	var books, chapters int
	err = sess.RunInTx(func(tx Store) error {
		books, chapters = 0, 0
		if err := tx.ClearAllWritingData(); err != nil {
			return err
		}

		restored := map[int64]bool{}
		for _, rb := range plan.books {
			b := rb.book
			id, err := tx.AddBookFromBackup(&b)
			if err != nil {
				return fmt.Errorf("restoring book %q: %w", b.Title, err)
			}
			restored[id] = true
			books++

			for _, ch := range rb.chapters {
				ch.BookID = id
				if _, err := tx.AddChapterFromBackup(&ch); err != nil {
					return fmt.Errorf("restoring chapter %q of %q: %w", ch.Title, b.Title, err)
				}
				chapters++
			}
		}

		timelines := map[int64]bool{}
		for _, table := range flatTables {
			rows := m.keepRows(table, plan.tables[table], restored, timelines)
			if table == TableTimelines {
				for _, row := range rows {
					if id, ok := rowID(row, "id"); ok {
						timelines[id] = true
					}
				}
			}
			if err := tx.ImportRows(table, rows); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, 0, err
	}
	return books, chapters, nil
}

// keepRows drops rows that point at books or timelines which were not
// restored.
func (m *Manager) keepRows(table string, rows []map[string]any, books, timelines map[int64]bool) []map[string]any {
	kept := rows[:0:0]
	for _, row := range rows {
		if id, ok := rowID(row, "book_id"); ok && !books[id] {
			m.logger.Warn("skipping row of a book missing from the backup", "table", table, "book_id", id)
			continue
		}
		if table == TableTimelineEvents {
			if id, ok := rowID(row, "timeline_id"); ok && !timelines[id] {
				m.logger.Warn("skipping event of a missing timeline", "timeline_id", id)
				continue
			}
		}
		kept = append(kept, row)
	}
	return kept
}

// rowID reads a non-null integer column from a decoded row.
func rowID(row map[string]any, col string) (int64, bool) {
	switch v := row[col].(type) {
	case json.Number:
		n, err := v.Int64()
		return n, err == nil
	case float64:
		return int64(v), true
	case int64:
		return v, true
	}
	return 0, false
}

// loadRestorePlan parses an extracted full backup rooted at dir.
func loadRestorePlan(fsmgr FilesystemManager, dir string) (*restorePlan, error) {
	listPath := filepath.Join(dir, bookRootDir, bookListFile)
	info, err := fsmgr.Stat(listPath)
	if err != nil {
		return nil, err
	}
	if info == nil {
		return nil, fmt.Errorf("not a quill backup: %s/%s is missing", bookRootDir, bookListFile)
	}

	var list []bookListEntry
	if err := readJSON(fsmgr, listPath, &list); err != nil {
		return nil, err
	}

	plan := &restorePlan{tables: map[string][]map[string]any{}}
	for _, entry := range list {
		rb, err := loadBook(fsmgr, dir, entry)
		if err != nil {
			return nil, err
		}
		plan.books = append(plan.books, rb)
	}

	for _, table := range flatTables {
		path := filepath.Join(dir, flatTableFile(table))
		info, err := fsmgr.Stat(path)
		if err != nil {
			return nil, err
		}
		if info == nil && table == TableMaterials {
			path = filepath.Join(dir, legacyMaterialsFile)
			if info, err = fsmgr.Stat(path); err != nil {
				return nil, err
			}
		}
		if info == nil {
			continue
		}

		data, err := fsmgr.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", filepath.Base(path), err)
		}
		var rows []map[string]any
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.UseNumber()
		if err := dec.Decode(&rows); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", filepath.Base(path), err)
		}
		plan.tables[table] = rows
	}
	return plan, nil
}

// loadBook reads one book directory. Older backups keyed directories by
// createTime and carried no id.
func loadBook(fsmgr FilesystemManager, dir string, entry bookListEntry) (restoreBook, error) {
	root := filepath.Join(dir, bookRootDir)
	bookDir := filepath.Join(root, strconv.FormatInt(entry.CreateTime, 10))
	if entry.ID != 0 {
		byID := filepath.Join(root, strconv.FormatInt(entry.ID, 10))
		info, err := fsmgr.Stat(filepath.Join(byID, bookFile))
		if err != nil {
			return restoreBook{}, err
		}
		if info != nil {
			bookDir = byID
		}
	}

	var doc bookDocument
	if err := readJSON(fsmgr, filepath.Join(bookDir, bookFile), &doc); err != nil {
		return restoreBook{}, fmt.Errorf("book %q: %w", entry.Name, err)
	}

	rb := restoreBook{book: model.Book{
		ID:           entry.ID,
		Title:        doc.Name,
		Description:  doc.Summary,
		Group:        doc.Group,
		CreatedAt:    doc.CreateTime,
		LastEditedAt: doc.LastEditTime,
	}}

	for _, vol := range doc.Children {
		for _, ch := range vol.Children {
			var content contentDocument
			name := strconv.FormatInt(ch.CreateTime, 10) + ".json"
			if err := readJSON(fsmgr, filepath.Join(bookDir, contentDir, name), &content); err != nil {
				return restoreBook{}, fmt.Errorf("chapter %q of %q: %w", ch.Name, doc.Name, err)
			}
			volume := ch.VolumeName
			if volume == "" {
				volume = vol.Name
			}
			rb.chapters = append(rb.chapters, model.Chapter{
				Volume:       volume,
				Title:        ch.Name,
				Content:      content.Content,
				CreatedAt:    ch.CreateTime,
				LastEditedAt: ch.CreateTime,
			})
		}
	}
	return rb, nil
}

func readJSON(fsmgr FilesystemManager, path string, v any) error {
	data, err := fsmgr.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading %s: %w", filepath.Base(path), err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("parsing %s: %w", filepath.Base(path), err)
	}
	return nil
}

// RestoreFromSnapshot writes each chapter's content from a snapshot file
// back into the store. Nothing is wiped; chapters that no longer exist are
// skipped.
func (m *Manager) RestoreFromSnapshot(filename string) RestoreResult {
	if !m.acquire() {
		return RestoreResult{Filename: filename, Message: ErrBusy.Error()}
	}
	defer m.release()

	res := m.restoreSnapshot(filename)
	res.Filename = filename
	if res.Success {
		m.logger.Info("snapshot restored", "file", filename, "chapters", res.ChaptersRestored, "skipped", res.ChaptersSkipped)
	} else {
		m.logger.Error("snapshot restore failed", "file", filename, "message", res.Message)
	}
	m.observer.RestoreFinished(res)
	return res
}

func (m *Manager) restoreSnapshot(filename string) RestoreResult {
	path, err := m.BackupPath(filename)
	if err != nil {
		return RestoreResult{Message: fmt.Sprintf("Snapshot restore failed: %v", err)}
	}
	data, err := m.fsmgr.ReadFile(path)
	if err != nil {
		return RestoreResult{Message: fmt.Sprintf("Snapshot restore failed: %v", err)}
	}
	doc, err := parseSnapshot(data)
	if err != nil {
		return RestoreResult{Message: fmt.Sprintf("Snapshot restore failed: %v", err)}
	}

	sess, err := m.db.OpenSession()
	if err != nil {
		return RestoreResult{Message: fmt.Sprintf("Snapshot restore failed: %v", err)}
	}
	defer sess.Close()

	var restored, skipped int
	err = sess.RunInTx(func(tx Store) error {
		restored, skipped = 0, 0
		for _, ch := range doc.Chapters {
			existing, err := tx.GetChapter(ch.ID)
			if err != nil {
				return err
			}
			if existing == nil {
				m.logger.Warn("snapshot chapter no longer exists", "chapter_id", ch.ID, "title", ch.Title)
				skipped++
				continue
			}
			if err := tx.UpdateChapterContent(ch.ID, ch.Content); err != nil {
				return err
			}
			restored++
		}
		return nil
	})
	if err != nil {
		return RestoreResult{Message: fmt.Sprintf("Snapshot restore failed: %v. No chapter was changed.", err)}
	}

	return RestoreResult{
		Success:          true,
		Rollback:         RollbackNone,
		ChaptersRestored: restored,
		ChaptersSkipped:  skipped,
		Message:          fmt.Sprintf("Restored %d chapters from %s (%d skipped).", restored, filename, skipped),
	}
}
