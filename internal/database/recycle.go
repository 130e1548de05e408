package database

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/goccy/go-json"

	"quill/internal/model"
	"quill/internal/quill"
)

func marshalRecord(v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func (c *Conn) addRecycleEntry(itemType model.RecycleItemType, itemID int64, data string) error {
	_, err := c.exec(`INSERT INTO recycle_bin (item_type, item_id, item_data, deleted_at) VALUES (?, ?, ?, ?)`,
		string(itemType), itemID, data, c.now())
	if err != nil {
		return fmt.Errorf("recording %s %d in recycle bin: %w", itemType, itemID, err)
	}
	return nil
}

func (c *Conn) getRecycleEntry(id int64) (*model.RecycleBinEntry, error) {
	var (
		e        model.RecycleBinEntry
		itemType string
	)
	err := c.queryRow(`SELECT id, item_type, item_id, item_data, deleted_at FROM recycle_bin WHERE id = ?`,
		[]any{id}, &e.ID, &itemType, &e.ItemID, &e.Data, &e.DeletedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	e.ItemType = model.RecycleItemType(itemType)
	return &e, nil
}

func (c *Conn) GetRecycleBinItems() ([]*model.RecycleBinEntry, error) {
	var items []*model.RecycleBinEntry
	err := c.queryEach(`SELECT id, item_type, item_id, item_data, deleted_at FROM recycle_bin
		ORDER BY deleted_at DESC, id DESC`, nil, func(rows *sql.Rows) error {
		var (
			e        model.RecycleBinEntry
			itemType string
		)
		if err := rows.Scan(&e.ID, &itemType, &e.ItemID, &e.Data, &e.DeletedAt); err != nil {
			return err
		}
		e.ItemType = model.RecycleItemType(itemType)
		items = append(items, &e)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("listing recycle bin: %w", err)
	}
	return items, nil
}

func (c *Conn) RestoreRecycleItem(id int64) error {
	err := c.withTx(func(tx *Conn) error {
		entry, err := tx.getRecycleEntry(id)
		if err != nil {
			return err
		}
		if entry == nil {
			return fmt.Errorf("recycle bin entry %d: %w", id, quill.ErrNotFound)
		}

		switch entry.ItemType {
		case model.RecycleBook:
			err = tx.restoreBookRecord(entry.Data)
		case model.RecycleChapter:
			err = tx.restoreChapterRecord(entry.Data)
		default:
			err = fmt.Errorf("unknown recycle item type %q", entry.ItemType)
		}
		if err != nil {
			return err
		}

		_, err = tx.exec(`DELETE FROM recycle_bin WHERE id = ?`, id)
		return err
	})
	if err != nil {
		return fmt.Errorf("restoring recycle bin entry %d: %w", id, err)
	}
	return nil
}

func (c *Conn) restoreBookRecord(data string) error {
	var rec bookRecord
	if err := json.Unmarshal([]byte(data), &rec); err != nil {
		return fmt.Errorf("decoding book record: %w", err)
	}

	book := &model.Book{
		ID:           rec.ID,
		Title:        rec.Title,
		Description:  rec.Description,
		CoverPath:    rec.CoverPath,
		Group:        rec.Group,
		CreatedAt:    rec.CreatedAt,
		LastEditedAt: rec.LastEditedAt,
	}
	taken, err := c.bookExists(book.ID)
	if err != nil {
		return err
	}
	if taken {
		book.ID = 0
	}
	bookID, err := c.insertBook(book)
	if err != nil {
		return err
	}

	for _, cr := range rec.Chapters {
		ch := cr.chapter()
		ch.BookID = bookID
		if err := c.insertRecycledChapter(ch); err != nil {
			return err
		}
	}
	return nil
}

func (c *Conn) restoreChapterRecord(data string) error {
	var rec chapterRecord
	if err := json.Unmarshal([]byte(data), &rec); err != nil {
		return fmt.Errorf("decoding chapter record: %w", err)
	}
	ok, err := c.bookExists(rec.BookID)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("book %d of chapter %q: %w", rec.BookID, rec.Title, quill.ErrNotFound)
	}
	return c.insertRecycledChapter(rec.chapter())
}

// insertRecycledChapter keeps the chapter's old id when it is still free.
func (c *Conn) insertRecycledChapter(ch *model.Chapter) error {
	existing, err := c.GetChapter(ch.ID)
	if err != nil {
		return err
	}
	if existing != nil {
		ch.ID = 0
	}
	if _, err := c.insertChapter(ch); err != nil {
		return fmt.Errorf("restoring chapter %q: %w", ch.Title, err)
	}
	return nil
}

func (c *Conn) PurgeRecycleItem(id int64) error {
	if _, err := c.exec(`DELETE FROM recycle_bin WHERE id = ?`, id); err != nil {
		return fmt.Errorf("purging recycle bin entry %d: %w", id, err)
	}
	return nil
}

func (c *Conn) EmptyRecycleBin() error {
	if _, err := c.exec(`DELETE FROM recycle_bin`); err != nil {
		return fmt.Errorf("emptying recycle bin: %w", err)
	}
	return nil
}
