package database

import (
	"database/sql"
	"errors"
	"fmt"

	"quill/internal/model"
)

const bookColumns = `id, title, COALESCE(description, ''), COALESCE(cover_path, ''),
	COALESCE("group", 'Ungrouped'), COALESCE(createTime, 0), COALESCE(lastEditTime, 0)`

func scanBook(scan func(dest ...any) error) (*model.Book, error) {
	var b model.Book
	if err := scan(&b.ID, &b.Title, &b.Description, &b.CoverPath, &b.Group, &b.CreatedAt, &b.LastEditedAt); err != nil {
		return nil, err
	}
	return &b, nil
}

func (c *Conn) AddBook(title, description, coverPath, group string) (int64, error) {
	if group == "" {
		group = model.DefaultGroup
	}
	now := c.now()
	id, err := lastInsertID(c.exec(
		`INSERT INTO books (title, description, cover_path, "group", createTime, lastEditTime)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		title, description, coverPath, group, now, now))
	if err != nil {
		return 0, fmt.Errorf("adding book: %w", err)
	}
	return id, nil
}

func (c *Conn) AddBookFromBackup(book *model.Book) (int64, error) {
	b := *book
	if b.Title == "" {
		b.Title = "Untitled"
	}
	if b.Group == "" {
		b.Group = model.DefaultGroup
	}
	if b.CreatedAt == 0 {
		b.CreatedAt = c.now()
	}
	if b.LastEditedAt == 0 {
		b.LastEditedAt = b.CreatedAt
	}
	return c.insertBook(&b)
}

// insertBook writes b as is; a zero ID lets SQLite assign one.
func (c *Conn) insertBook(b *model.Book) (int64, error) {
	var id any
	if b.ID != 0 {
		id = b.ID
	}
	newID, err := lastInsertID(c.exec(
		`INSERT INTO books (id, title, description, cover_path, "group", createTime, lastEditTime)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		id, b.Title, b.Description, b.CoverPath, b.Group, b.CreatedAt, b.LastEditedAt))
	if err != nil {
		return 0, fmt.Errorf("inserting book %q: %w", b.Title, err)
	}
	return newID, nil
}

func (c *Conn) GetBook(id int64) (*model.Book, error) {
	book, err := scanBook(func(dest ...any) error {
		return c.queryRow(`SELECT `+bookColumns+` FROM books WHERE id = ?`, []any{id}, dest...)
	})
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("getting book %d: %w", id, err)
	}
	return book, nil
}

func (c *Conn) GetAllBooks() ([]*model.Book, error) {
	var books []*model.Book
	err := c.queryEach(`SELECT `+bookColumns+` FROM books ORDER BY id`, nil, func(rows *sql.Rows) error {
		b, err := scanBook(rows.Scan)
		if err != nil {
			return err
		}
		books = append(books, b)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("listing books: %w", err)
	}
	return books, nil
}

func (c *Conn) UpdateBook(book *model.Book) error {
	group := book.Group
	if group == "" {
		group = model.DefaultGroup
	}
	_, err := c.exec(
		`UPDATE books SET title = ?, description = ?, cover_path = ?, "group" = ?, lastEditTime = ?
		 WHERE id = ?`,
		book.Title, book.Description, book.CoverPath, group, c.now(), book.ID)
	if err != nil {
		return fmt.Errorf("updating book %d: %w", book.ID, err)
	}
	return nil
}

// bookRecord is the recycle-bin form of a deleted book.
type bookRecord struct {
	ID           int64           `json:"id"`
	Title        string          `json:"title"`
	Description  string          `json:"description"`
	CoverPath    string          `json:"cover_path"`
	Group        string          `json:"group"`
	CreatedAt    int64           `json:"createTime"`
	LastEditedAt int64           `json:"lastEditTime"`
	Chapters     []chapterRecord `json:"chapters"`
}

func (c *Conn) DeleteBook(id int64) error {
	return c.withTx(func(tx *Conn) error {
		book, err := tx.GetBook(id)
		if err != nil {
			return err
		}
		if book == nil {
			return nil
		}
		chapters, err := tx.GetChaptersForBook(id)
		if err != nil {
			return err
		}

		rec := bookRecord{
			ID:           book.ID,
			Title:        book.Title,
			Description:  book.Description,
			CoverPath:    book.CoverPath,
			Group:        book.Group,
			CreatedAt:    book.CreatedAt,
			LastEditedAt: book.LastEditedAt,
			Chapters:     make([]chapterRecord, 0, len(chapters)),
		}
		for _, ch := range chapters {
			rec.Chapters = append(rec.Chapters, newChapterRecord(ch))
		}
		data, err := marshalRecord(rec)
		if err != nil {
			return fmt.Errorf("serializing book %d: %w", id, err)
		}

		if err := tx.addRecycleEntry(model.RecycleBook, id, data); err != nil {
			return err
		}
		if _, err := tx.exec(`DELETE FROM books WHERE id = ?`, id); err != nil {
			return fmt.Errorf("deleting book %d: %w", id, err)
		}
		return nil
	})
}

// bookExists reports whether a book row with id is present.
func (c *Conn) bookExists(id int64) (bool, error) {
	var n int
	err := c.queryRow(`SELECT COUNT(*) FROM books WHERE id = ?`, []any{id}, &n)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return false, err
	}
	return n > 0, nil
}
