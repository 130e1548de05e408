package migrations

import (
	"database/sql"
	"fmt"
)

// legacyColumns lists columns that older releases did not have, with the
// definition used to add them.
var legacyColumns = []struct {
	table, column, definition string
}{
	{"books", "description", "TEXT NOT NULL DEFAULT ''"},
	{"books", "cover_path", "TEXT NOT NULL DEFAULT ''"},
	{"books", "group", "TEXT NOT NULL DEFAULT 'Ungrouped'"},
	{"books", "lastEditTime", "INTEGER NOT NULL DEFAULT 0"},
	{"chapters", "volume", "TEXT NOT NULL DEFAULT 'Unvolumed'"},
	{"chapters", "word_count", "INTEGER NOT NULL DEFAULT 0"},
	{"chapters", "lastEditTime", "INTEGER NOT NULL DEFAULT 0"},
	{"chapters", "hash", "TEXT NOT NULL DEFAULT ''"},
	{"materials", "description", "TEXT NOT NULL DEFAULT ''"},
	{"materials", "book_id", "INTEGER REFERENCES books(id) ON DELETE CASCADE"},
	{"inspiration_items", "parent_id", "INTEGER REFERENCES inspiration_items(id) ON DELETE CASCADE"},
}

// UpgradeLegacy patches a database created before versioned migrations:
// the old "settings" table becomes "materials" and missing columns are
// added. Databases already under migration control, and empty ones, are left
// alone. Running it twice is harmless.
func UpgradeLegacy(db *sql.DB) error {
	managed, err := tableExists(db, "schema_migrations")
	if err != nil {
		return err
	}
	if managed {
		return nil
	}

	hasSettings, err := tableExists(db, "settings")
	if err != nil {
		return err
	}
	hasMaterials, err := tableExists(db, "materials")
	if err != nil {
		return err
	}
	if hasSettings && !hasMaterials {
		if _, err := db.Exec(`ALTER TABLE settings RENAME TO materials`); err != nil {
			return fmt.Errorf("renaming settings to materials: %w", err)
		}
	}

	for _, lc := range legacyColumns {
		exists, err := tableExists(db, lc.table)
		if err != nil {
			return err
		}
		if !exists {
			continue
		}
		cols, err := tableColumns(db, lc.table)
		if err != nil {
			return err
		}
		if cols[lc.column] {
			continue
		}
		stmt := fmt.Sprintf(`ALTER TABLE %s ADD COLUMN "%s" %s`, lc.table, lc.column, lc.definition)
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("adding %s.%s: %w", lc.table, lc.column, err)
		}
	}
	return nil
}

func tableExists(db *sql.DB, name string) (bool, error) {
	var n int
	err := db.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?`, name).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("checking table %s: %w", name, err)
	}
	return n > 0, nil
}

// tableColumns returns the column names of table. table must be a trusted
// identifier.
func tableColumns(db *sql.DB, table string) (map[string]bool, error) {
	rows, err := db.Query(fmt.Sprintf(`PRAGMA table_info("%s")`, table))
	if err != nil {
		return nil, fmt.Errorf("reading columns of %s: %w", table, err)
	}
	defer rows.Close()

	cols := make(map[string]bool)
	for rows.Next() {
		var (
			cid       int
			name, typ string
			notNull   int
			dflt      sql.NullString
			pk        int
		)
		if err := rows.Scan(&cid, &name, &typ, &notNull, &dflt, &pk); err != nil {
			return nil, fmt.Errorf("scanning columns of %s: %w", table, err)
		}
		cols[name] = true
	}
	return cols, rows.Err()
}
