package migrations

import (
	"database/sql"
	"path/filepath"
	"testing"

	_ "github.com/mattn/go-sqlite3"
)

func TestMigrateUp_FreshDatabase(t *testing.T) {
	db := openTestDB(t)

	if err := MigrateUp(db); err != nil {
		t.Fatalf("MigrateUp() failed: %v", err)
	}

	tables := []string{
		"books", "chapters", "materials", "timelines", "timeline_events",
		"inspiration_items", "inspiration_fragments", "recycle_bin",
		"preferences", "schema_migrations",
	}
	for _, table := range tables {
		ok, err := tableExists(db, table)
		if err != nil {
			t.Fatalf("tableExists(%s) error = %v", table, err)
		}
		if !ok {
			t.Errorf("table %s was not created", table)
		}
	}
}

func TestCheckDBMigrationStatus_FreshDatabase(t *testing.T) {
	db := openTestDB(t)

	err := CheckDBMigrationStatus(db)
	if err == nil {
		t.Fatal("CheckDBMigrationStatus() expected error for fresh database, got nil")
	}
	if err.Error() != "database has no schema version (needs migration)" {
		t.Errorf("CheckDBMigrationStatus() error = %q, want error about needing migration", err.Error())
	}
}

func TestApply_Idempotent(t *testing.T) {
	db := openTestDB(t)

	for i := 0; i < 3; i++ {
		if err := Apply(db); err != nil {
			t.Fatalf("Apply() run %d failed: %v", i+1, err)
		}
	}

	if err := CheckDBMigrationStatus(db); err != nil {
		t.Errorf("CheckDBMigrationStatus() after repeated Apply returned error: %v", err)
	}
}

func TestLatestVersion(t *testing.T) {
	v, err := LatestVersion()
	if err != nil {
		t.Fatalf("LatestVersion() error = %v", err)
	}
	if v != 2 {
		t.Errorf("LatestVersion() = %d, want 2", v)
	}
}

func TestForeignKeyConstraints(t *testing.T) {
	db := openTestDB(t)
	if err := MigrateUp(db); err != nil {
		t.Fatalf("MigrateUp() failed: %v", err)
	}

	_, err := db.Exec(`INSERT INTO chapters (book_id, title, createTime) VALUES (42, 'orphan', 1)`)
	if err == nil {
		t.Error("expected foreign key violation for chapter without book, insert succeeded")
	}
}

func TestSchema_MaterialNameUniquePerScope(t *testing.T) {
	db := openTestDB(t)
	if err := MigrateUp(db); err != nil {
		t.Fatalf("MigrateUp() failed: %v", err)
	}

	mustExec(t, db, `INSERT INTO books (id, title, createTime, lastEditTime) VALUES (1, 'B1', 1, 1)`)
	mustExec(t, db, `INSERT INTO materials (name, type) VALUES ('Hero', 'Text')`)
	mustExec(t, db, `INSERT INTO materials (name, type, book_id) VALUES ('Hero', 'Text', 1)`)

	if _, err := db.Exec(`INSERT INTO materials (name, type) VALUES ('Hero', 'Text')`); err == nil {
		t.Error("expected unique violation for second global 'Hero'")
	}
	if _, err := db.Exec(`INSERT INTO materials (name, type, book_id) VALUES ('Hero', 'List', 1)`); err == nil {
		t.Error("expected unique violation for second book-scoped 'Hero'")
	}
}

func TestUpgradeLegacy(t *testing.T) {
	t.Run("renames settings and adds missing columns", func(t *testing.T) {
		db := openTestDB(t)
		mustExec(t, db, `CREATE TABLE books (id INTEGER PRIMARY KEY AUTOINCREMENT, title TEXT NOT NULL, createTime INTEGER)`)
		mustExec(t, db, `CREATE TABLE chapters (id INTEGER PRIMARY KEY AUTOINCREMENT, book_id INTEGER, title TEXT, content TEXT, createTime INTEGER)`)
		mustExec(t, db, `CREATE TABLE settings (id INTEGER PRIMARY KEY AUTOINCREMENT, name TEXT, type TEXT, content TEXT, UNIQUE(name))`)
		mustExec(t, db, `INSERT INTO books (title, createTime) VALUES ('Old', 1000)`)
		mustExec(t, db, `INSERT INTO settings (name, type, content) VALUES ('Sword', 'Text', '{"value":"sharp"}')`)

		if err := Apply(db); err != nil {
			t.Fatalf("Apply() error = %v", err)
		}

		ok, _ := tableExists(db, "settings")
		if ok {
			t.Error("settings table still exists after upgrade")
		}

		var name string
		if err := db.QueryRow(`SELECT name FROM materials`).Scan(&name); err != nil {
			t.Fatalf("reading migrated material: %v", err)
		}
		if name != "Sword" {
			t.Errorf("material name = %q, want Sword", name)
		}

		cols, err := tableColumns(db, "chapters")
		if err != nil {
			t.Fatalf("tableColumns() error = %v", err)
		}
		for _, c := range []string{"hash", "lastEditTime", "volume", "word_count"} {
			if !cols[c] {
				t.Errorf("chapters.%s missing after upgrade", c)
			}
		}

		var group string
		if err := db.QueryRow(`SELECT "group" FROM books`).Scan(&group); err != nil {
			t.Fatalf("reading book group: %v", err)
		}
		if group != "Ungrouped" {
			t.Errorf("group = %q, want Ungrouped", group)
		}
	})

	t.Run("ignores managed databases", func(t *testing.T) {
		db := openTestDB(t)
		if err := MigrateUp(db); err != nil {
			t.Fatalf("MigrateUp() failed: %v", err)
		}
		mustExec(t, db, `CREATE TABLE settings (id INTEGER PRIMARY KEY)`)

		if err := UpgradeLegacy(db); err != nil {
			t.Fatalf("UpgradeLegacy() error = %v", err)
		}
		ok, _ := tableExists(db, "settings")
		if !ok {
			t.Error("UpgradeLegacy() touched a migrated database")
		}
	})
}

func mustExec(t *testing.T, db *sql.DB, query string) {
	t.Helper()
	if _, err := db.Exec(query); err != nil {
		t.Fatalf("exec %q: %v", query, err)
	}
}

// openTestDB opens a file-backed SQLite database with foreign keys enabled
// on every pooled connection.
func openTestDB(t *testing.T) *sql.DB {
	t.Helper()

	path := filepath.Join(t.TempDir(), "test.db")
	db, err := sql.Open("sqlite3", path+"?_foreign_keys=on")
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}
