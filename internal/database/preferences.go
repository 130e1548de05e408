package database

import (
	"database/sql"
	"errors"
	"fmt"
)

func (c *Conn) GetPreference(key, fallback string) (string, error) {
	var value sql.NullString
	err := c.queryRow(`SELECT value FROM preferences WHERE key = ?`, []any{key}, &value)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fallback, nil
		}
		return "", fmt.Errorf("reading preference %s: %w", key, err)
	}
	if !value.Valid {
		return fallback, nil
	}
	return value.String, nil
}

func (c *Conn) SetPreference(key, value string) error {
	_, err := c.exec(`INSERT INTO preferences (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, value)
	if err != nil {
		return fmt.Errorf("writing preference %s: %w", key, err)
	}
	return nil
}
