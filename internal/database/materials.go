package database

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/mattn/go-sqlite3"

	"quill/internal/model"
	"quill/internal/quill"
)

const materialColumns = `id, name, type, COALESCE(description, ''), COALESCE(content, ''), book_id`

func scanMaterial(scan func(dest ...any) error) (*model.Material, error) {
	var (
		m       model.Material
		typ     string
		content string
		bookID  sql.NullInt64
	)
	if err := scan(&m.ID, &m.Name, &typ, &m.Description, &content, &bookID); err != nil {
		return nil, err
	}
	m.Type = model.MaterialType(typ)
	m.BookID = idPtr(bookID)

	// Rows imported from older releases may carry types or content this
	// version does not understand; keep them readable as text.
	c, err := model.DecodeContent(m.Type, content)
	if err != nil {
		c = model.MaterialContent{Text: content}
	}
	m.Content = c
	return &m, nil
}

// isUniqueViolation reports whether err is a UNIQUE constraint failure.
func isUniqueViolation(err error) bool {
	var se sqlite3.Error
	return errors.As(err, &se) && se.ExtendedCode == sqlite3.ErrConstraintUnique
}

func (c *Conn) AddMaterial(m *model.Material) (int64, error) {
	if _, err := model.ParseMaterialType(string(m.Type)); err != nil {
		return 0, err
	}
	content, err := model.EncodeContent(m.Type, m.Content)
	if err != nil {
		return 0, err
	}

	id, err := lastInsertID(c.exec(
		`INSERT INTO materials (name, type, description, content, book_id) VALUES (?, ?, ?, ?, ?)`,
		m.Name, string(m.Type), m.Description, content, nullableID(m.BookID)))
	if err != nil {
		if isUniqueViolation(err) {
			return 0, fmt.Errorf("material %q: %w", m.Name, quill.ErrDuplicateName)
		}
		return 0, fmt.Errorf("adding material %q: %w", m.Name, err)
	}
	return id, nil
}

func (c *Conn) UpdateMaterial(m *model.Material) error {
	if _, err := model.ParseMaterialType(string(m.Type)); err != nil {
		return err
	}
	content, err := model.EncodeContent(m.Type, m.Content)
	if err != nil {
		return err
	}

	_, err = c.exec(`UPDATE materials SET name = ?, type = ?, description = ?, content = ?, book_id = ? WHERE id = ?`,
		m.Name, string(m.Type), m.Description, content, nullableID(m.BookID), m.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("material %q: %w", m.Name, quill.ErrDuplicateName)
		}
		return fmt.Errorf("updating material %d: %w", m.ID, err)
	}
	return nil
}

func (c *Conn) GetMaterial(id int64) (*model.Material, error) {
	m, err := scanMaterial(func(dest ...any) error {
		return c.queryRow(`SELECT `+materialColumns+` FROM materials WHERE id = ?`, []any{id}, dest...)
	})
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("getting material %d: %w", id, err)
	}
	return m, nil
}

func (c *Conn) GetMaterials(bookID *int64) ([]*model.Material, error) {
	if bookID == nil {
		return c.listMaterials(`WHERE book_id IS NULL`, nil)
	}
	return c.listMaterials(`WHERE book_id = ?`, []any{*bookID})
}

func (c *Conn) GetAllMaterials() ([]*model.Material, error) {
	return c.listMaterials("", nil)
}

func (c *Conn) listMaterials(where string, args []any) ([]*model.Material, error) {
	var out []*model.Material
	err := c.queryEach(`SELECT `+materialColumns+` FROM materials `+where+` ORDER BY id`, args, func(rows *sql.Rows) error {
		m, err := scanMaterial(rows.Scan)
		if err != nil {
			return err
		}
		out = append(out, m)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("listing materials: %w", err)
	}
	return out, nil
}

func (c *Conn) DeleteMaterial(id int64) error {
	if _, err := c.exec(`DELETE FROM materials WHERE id = ?`, id); err != nil {
		return fmt.Errorf("deleting material %d: %w", id, err)
	}
	return nil
}
