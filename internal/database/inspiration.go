package database

import (
	"database/sql"
	"fmt"

	"quill/internal/model"
)

func (c *Conn) AddInspirationItem(item *model.InspirationItem) (int64, error) {
	id, err := lastInsertID(c.exec(`INSERT INTO inspiration_items (title, content, tags, parent_id) VALUES (?, ?, ?, ?)`,
		item.Title, item.Content, item.Tags, nullableID(item.ParentID)))
	if err != nil {
		return 0, fmt.Errorf("adding inspiration item %q: %w", item.Title, err)
	}
	return id, nil
}

func (c *Conn) UpdateInspirationItem(item *model.InspirationItem) error {
	_, err := c.exec(`UPDATE inspiration_items SET title = ?, content = ?, tags = ?, parent_id = ? WHERE id = ?`,
		item.Title, item.Content, item.Tags, nullableID(item.ParentID), item.ID)
	if err != nil {
		return fmt.Errorf("updating inspiration item %d: %w", item.ID, err)
	}
	return nil
}

func (c *Conn) GetInspirationItems() ([]*model.InspirationItem, error) {
	var out []*model.InspirationItem
	err := c.queryEach(`SELECT id, title, COALESCE(content, ''), COALESCE(tags, ''), parent_id
		FROM inspiration_items ORDER BY id`, nil, func(rows *sql.Rows) error {
		var (
			it     model.InspirationItem
			parent sql.NullInt64
		)
		if err := rows.Scan(&it.ID, &it.Title, &it.Content, &it.Tags, &parent); err != nil {
			return err
		}
		it.ParentID = idPtr(parent)
		out = append(out, &it)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("listing inspiration items: %w", err)
	}
	return out, nil
}

func (c *Conn) DeleteInspirationItem(id int64) error {
	if _, err := c.exec(`DELETE FROM inspiration_items WHERE id = ?`, id); err != nil {
		return fmt.Errorf("deleting inspiration item %d: %w", id, err)
	}
	return nil
}

func (c *Conn) AddInspirationFragment(f *model.InspirationFragment) (int64, error) {
	created := f.CreatedAt
	if created == 0 {
		created = c.now()
	}
	typ := f.Type
	if typ == "" {
		typ = "text"
	}
	id, err := lastInsertID(c.exec(`INSERT INTO inspiration_fragments (type, content, source, created_at) VALUES (?, ?, ?, ?)`,
		typ, f.Content, f.Source, created))
	if err != nil {
		return 0, fmt.Errorf("adding inspiration fragment: %w", err)
	}
	return id, nil
}

func (c *Conn) GetInspirationFragments() ([]*model.InspirationFragment, error) {
	var out []*model.InspirationFragment
	err := c.queryEach(`SELECT id, COALESCE(type, ''), COALESCE(content, ''), COALESCE(source, ''), COALESCE(created_at, 0)
		FROM inspiration_fragments ORDER BY created_at DESC, id DESC`, nil, func(rows *sql.Rows) error {
		var f model.InspirationFragment
		if err := rows.Scan(&f.ID, &f.Type, &f.Content, &f.Source, &f.CreatedAt); err != nil {
			return err
		}
		out = append(out, &f)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("listing inspiration fragments: %w", err)
	}
	return out, nil
}

func (c *Conn) DeleteInspirationFragment(id int64) error {
	if _, err := c.exec(`DELETE FROM inspiration_fragments WHERE id = ?`, id); err != nil {
		return fmt.Errorf("deleting inspiration fragment %d: %w", id, err)
	}
	return nil
}
