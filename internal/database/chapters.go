package database

import (
	"crypto/md5"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"quill/internal/model"
	"quill/internal/quill"
)

// WordCount is the stored "word count" of a chapter: the number of
// characters left after trimming surrounding whitespace.
func WordCount(content string) int {
	return utf8.RuneCountInString(strings.TrimSpace(content))
}

// ContentHash is the change-detection hash stored with chapter content.
func ContentHash(content string) string {
	sum := md5.Sum([]byte(content))
	return hex.EncodeToString(sum[:])
}

const chapterColumns = `id, book_id, COALESCE(volume, 'Unvolumed'), COALESCE(title, ''), COALESCE(content, ''),
	COALESCE(word_count, 0), COALESCE(createTime, 0), COALESCE(lastEditTime, 0), COALESCE(hash, '')`

func scanChapter(scan func(dest ...any) error) (*model.Chapter, error) {
	var ch model.Chapter
	if err := scan(&ch.ID, &ch.BookID, &ch.Volume, &ch.Title, &ch.Content,
		&ch.WordCount, &ch.CreatedAt, &ch.LastEditedAt, &ch.Hash); err != nil {
		return nil, err
	}
	return &ch, nil
}

// chapterRecord is the recycle-bin form of a chapter.
type chapterRecord struct {
	ID           int64  `json:"id"`
	BookID       int64  `json:"book_id"`
	Volume       string `json:"volume"`
	Title        string `json:"title"`
	Content      string `json:"content"`
	WordCount    int    `json:"word_count"`
	CreatedAt    int64  `json:"createTime"`
	LastEditedAt int64  `json:"lastEditTime"`
	Hash         string `json:"hash"`
}

func newChapterRecord(ch *model.Chapter) chapterRecord {
	return chapterRecord{
		ID:           ch.ID,
		BookID:       ch.BookID,
		Volume:       ch.Volume,
		Title:        ch.Title,
		Content:      ch.Content,
		WordCount:    ch.WordCount,
		CreatedAt:    ch.CreatedAt,
		LastEditedAt: ch.LastEditedAt,
		Hash:         ch.Hash,
	}
}

func (r chapterRecord) chapter() *model.Chapter {
	return &model.Chapter{
		ID:           r.ID,
		BookID:       r.BookID,
		Volume:       r.Volume,
		Title:        r.Title,
		Content:      r.Content,
		WordCount:    r.WordCount,
		CreatedAt:    r.CreatedAt,
		LastEditedAt: r.LastEditedAt,
		Hash:         r.Hash,
	}
}

func (c *Conn) AddChapter(bookID int64, volume, title string) (int64, error) {
	if volume == "" {
		volume = model.DefaultVolume
	}

	var id int64
	err := c.withTx(func(tx *Conn) error {
		ok, err := tx.bookExists(bookID)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("book %d: %w", bookID, quill.ErrNotFound)
		}

		// createTime names the chapter's file in full backups, so it must
		// be unique within the book.
		var last int64
		if err := tx.queryRow(`SELECT COALESCE(MAX(createTime), 0) FROM chapters WHERE book_id = ?`,
			[]any{bookID}, &last); err != nil {
			return err
		}
		now := tx.now()
		created := max(now, last+1)

		content := "# " + title + "\n\n"
		id, err = tx.insertChapter(&model.Chapter{
			BookID:       bookID,
			Volume:       volume,
			Title:        title,
			Content:      content,
			CreatedAt:    created,
			LastEditedAt: now,
		})
		if err != nil {
			return err
		}
		return tx.touchBook(bookID, now)
	})
	if err != nil {
		return 0, fmt.Errorf("adding chapter %q: %w", title, err)
	}
	return id, nil
}

func (c *Conn) AddChapterFromBackup(chapter *model.Chapter) (int64, error) {
	ch := *chapter
	if ch.Volume == "" {
		ch.Volume = model.DefaultVolume
	}
	if ch.CreatedAt == 0 {
		ch.CreatedAt = c.now()
	}
	if ch.LastEditedAt == 0 {
		ch.LastEditedAt = ch.CreatedAt
	}
	id, err := c.insertChapter(&ch)
	if err != nil {
		return 0, fmt.Errorf("restoring chapter %q: %w", ch.Title, err)
	}
	return id, nil
}

// insertChapter writes ch with word count and hash derived from its
// content. A zero ID lets SQLite assign one.
func (c *Conn) insertChapter(ch *model.Chapter) (int64, error) {
	var id any
	if ch.ID != 0 {
		id = ch.ID
	}
	return lastInsertID(c.exec(
		`INSERT INTO chapters (id, book_id, volume, title, content, word_count, createTime, lastEditTime, hash)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, ch.BookID, ch.Volume, ch.Title, ch.Content, WordCount(ch.Content),
		ch.CreatedAt, ch.LastEditedAt, ContentHash(ch.Content)))
}

// touchBook moves the book's lastEditTime forward to at least ts.
func (c *Conn) touchBook(bookID, ts int64) error {
	if _, err := c.exec(`UPDATE books SET lastEditTime = MAX(COALESCE(lastEditTime, 0), ?) WHERE id = ?`, ts, bookID); err != nil {
		return fmt.Errorf("touching book %d: %w", bookID, err)
	}
	return nil
}

func (c *Conn) GetChapter(id int64) (*model.Chapter, error) {
	ch, err := scanChapter(func(dest ...any) error {
		return c.queryRow(`SELECT `+chapterColumns+` FROM chapters WHERE id = ?`, []any{id}, dest...)
	})
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("getting chapter %d: %w", id, err)
	}
	return ch, nil
}

func (c *Conn) GetChapterContent(id int64) (string, int, error) {
	var (
		content string
		count   int
	)
	err := c.queryRow(`SELECT COALESCE(content, ''), COALESCE(word_count, 0) FROM chapters WHERE id = ?`,
		[]any{id}, &content, &count)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", 0, nil
		}
		return "", 0, fmt.Errorf("getting chapter %d content: %w", id, err)
	}
	return content, count, nil
}

func (c *Conn) GetChaptersForBook(bookID int64) ([]*model.Chapter, error) {
	var chapters []*model.Chapter
	err := c.queryEach(`SELECT `+chapterColumns+` FROM chapters WHERE book_id = ?
		ORDER BY volume, createTime, id`, []any{bookID}, func(rows *sql.Rows) error {
		ch, err := scanChapter(rows.Scan)
		if err != nil {
			return err
		}
		chapters = append(chapters, ch)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("listing chapters of book %d: %w", bookID, err)
	}
	return chapters, nil
}

func (c *Conn) UpdateChapterContent(id int64, content string) error {
	err := c.withTx(func(tx *Conn) error {
		now := tx.now()
		res, err := tx.exec(
			`UPDATE chapters SET content = ?, word_count = ?, hash = ?, lastEditTime = ? WHERE id = ?`,
			content, WordCount(content), ContentHash(content), now, id)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			tx.logger.Warn("chapter content update ignored: chapter not found", "chapter_id", id)
			return nil
		}
		_, err = tx.exec(`UPDATE books SET lastEditTime = MAX(COALESCE(lastEditTime, 0), ?)
			WHERE id = (SELECT book_id FROM chapters WHERE id = ?)`, now, id)
		return err
	})
	if err != nil {
		return fmt.Errorf("updating chapter %d content: %w", id, err)
	}
	return nil
}

func (c *Conn) UpdateChapterTitle(id int64, title string) error {
	if _, err := c.exec(`UPDATE chapters SET title = ?, lastEditTime = ? WHERE id = ?`, title, c.now(), id); err != nil {
		return fmt.Errorf("renaming chapter %d: %w", id, err)
	}
	return nil
}

func (c *Conn) DeleteChapter(id int64) error {
	return c.withTx(func(tx *Conn) error {
		ch, err := tx.GetChapter(id)
		if err != nil {
			return err
		}
		if ch == nil {
			return nil
		}
		data, err := marshalRecord(newChapterRecord(ch))
		if err != nil {
			return fmt.Errorf("serializing chapter %d: %w", id, err)
		}
		if err := tx.addRecycleEntry(model.RecycleChapter, id, data); err != nil {
			return err
		}
		if _, err := tx.exec(`DELETE FROM chapters WHERE id = ?`, id); err != nil {
			return fmt.Errorf("deleting chapter %d: %w", id, err)
		}
		return nil
	})
}

func (c *Conn) GetChaptersModifiedSince(since int64) ([]*model.ModifiedChapter, error) {
	var out []*model.ModifiedChapter
	err := c.queryEach(
		`SELECT c.id, COALESCE(c.title, ''), c.book_id, COALESCE(b.title, ''), COALESCE(c.content, ''), c.lastEditTime
		 FROM chapters c JOIN books b ON b.id = c.book_id
		 WHERE c.lastEditTime > ?
		 ORDER BY c.lastEditTime, c.id`,
		[]any{since}, func(rows *sql.Rows) error {
			var m model.ModifiedChapter
			if err := rows.Scan(&m.ID, &m.Title, &m.BookID, &m.BookTitle, &m.Content, &m.LastEditedAt); err != nil {
				return err
			}
			out = append(out, &m)
			return nil
		})
	if err != nil {
		return nil, fmt.Errorf("listing chapters modified since %d: %w", since, err)
	}
	return out, nil
}
