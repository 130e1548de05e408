package database

import (
	"database/sql"
	"fmt"
	"strings"
)

// Schema returns the CREATE statements of the migrated schema, tables
// first. Migration bookkeeping and SQLite internals are left out.
func (c *Conn) Schema() (string, error) {
	var b strings.Builder
	err := c.queryEach(`
		SELECT sql || ';'
		FROM sqlite_master
		WHERE type IN ('table', 'index')
		  AND sql IS NOT NULL
		  AND name NOT LIKE 'sqlite_%'
		  AND tbl_name != 'schema_migrations'
		ORDER BY
		  CASE type WHEN 'table' THEN 1 WHEN 'index' THEN 2 END,
		  name`, nil, func(rows *sql.Rows) error {
		var stmt string
		if err := rows.Scan(&stmt); err != nil {
			return err
		}
		b.WriteString(stmt)
		b.WriteString("\n\n")
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("reading schema: %w", err)
	}
	return b.String(), nil
}
