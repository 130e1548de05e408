package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/google/uuid"

	"quill/internal/database/migrations"
	"quill/internal/quill"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// SQLiteDatabase is the shared writing database. It embeds the primary
// connection, so it can be used directly as a quill.Store, and hands out
// private sessions to background workers. All connections share one lock.
type SQLiteDatabase struct {
	*Conn
	db     *sql.DB
	path   string
	memory bool
	mu     *sync.Mutex
	clock  quill.Clock
	logger quill.Logger
}

// Compile-time checks.
var (
	_ quill.Database = (*SQLiteDatabase)(nil)
	_ quill.Store    = (*Conn)(nil)
)

// NewSQLiteDatabase opens (creating if needed) the database at path and
// brings its schema up to date. An empty path or ":memory:" gives a private
// in-memory database shared by all sessions of the returned value.
// nil clock or logger select the real clock and a no-op logger.
func NewSQLiteDatabase(path string, clock quill.Clock, logger quill.Logger) (*SQLiteDatabase, error) {
	if clock == nil {
		clock = quill.RealClock{}
	}
	if logger == nil {
		logger = quill.NewNopLogger()
	}

	memory := path == "" || path == ":memory:"
	db, err := OpenConnection(path)
	if err != nil {
		return nil, err
	}

	if err := migrations.Apply(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrating database: %w", err)
	}

	s := &SQLiteDatabase{
		db:     db,
		path:   path,
		memory: memory,
		mu:     &sync.Mutex{},
		clock:  clock,
		logger: logger,
	}

	primary, err := s.openConn()
	if err != nil {
		db.Close()
		return nil, err
	}
	s.Conn = primary
	return s, nil
}

// OpenConnection opens a connection pool with the pragmas every connection
// needs. Pragmas travel in the DSN so each pooled connection gets them, not
// only the first.
func OpenConnection(path string) (*sql.DB, error) {
	var dsn string
	if path == "" || path == ":memory:" {
		// A named shared-cache database lives as long as one connection
		// is open, and every session sees the same data.
		dsn = fmt.Sprintf("file:quill-%s?mode=memory&cache=shared&_foreign_keys=on&_busy_timeout=5000", uuid.NewString())
	} else {
		dsn = path + "?_foreign_keys=on&_busy_timeout=5000&_journal_mode=DELETE"
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxIdleConns(2)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return db, nil
}

func (s *SQLiteDatabase) openConn() (*Conn, error) {
	c, err := s.db.Conn(context.Background())
	if err != nil {
		return nil, fmt.Errorf("opening connection: %w", err)
	}
	return &Conn{q: c, conn: c, mu: s.mu, clock: s.clock, logger: s.logger}, nil
}

// OpenSession returns a handle on a dedicated connection.
func (s *SQLiteDatabase) OpenSession() (quill.Store, error) {
	return s.openConn()
}

// Path returns the database file path as given to NewSQLiteDatabase.
func (s *SQLiteDatabase) Path() string {
	return s.path
}

// Files returns the database file and whichever of its journal siblings
// currently exist.
func (s *SQLiteDatabase) Files() []string {
	if s.memory {
		return nil
	}
	files := []string{s.path}
	for _, suffix := range []string{"-journal", "-wal", "-shm"} {
		if _, err := os.Stat(s.path + suffix); err == nil {
			files = append(files, s.path+suffix)
		}
	}
	return files
}

// CheckMigrations reports whether the schema is current.
func (s *SQLiteDatabase) CheckMigrations() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return migrations.CheckDBMigrationStatus(s.db)
}

// BackupTo writes a consistent copy of the whole database to destPath.
func (s *SQLiteDatabase) BackupTo(destPath string) error {
	if _, err := s.exec(`VACUUM INTO ?`, destPath); err != nil {
		return fmt.Errorf("backing up database: %w", err)
	}
	return nil
}

// Close closes the primary connection and the pool. Sessions still open
// become unusable.
func (s *SQLiteDatabase) Close() error {
	var firstErr error
	if s.Conn != nil {
		if err := s.Conn.Close(); err != nil {
			firstErr = err
		}
	}
	if err := s.db.Close(); err != nil && firstErr == nil {
		firstErr = fmt.Errorf("closing database: %w", err)
	}
	return firstErr
}

// querier is satisfied by both *sql.Conn and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Conn is one handle onto the database: either a dedicated connection or a
// transaction running on one.
type Conn struct {
	q      querier
	conn   *sql.Conn // nil for a transaction handle
	mu     *sync.Mutex
	inTx   bool
	closed bool
	clock  quill.Clock
	logger quill.Logger
}

// lock acquires the shared lock unless a transaction on this handle
// already holds it.
func (c *Conn) lock() func() {
	if c.inTx {
		return func() {}
	}
	c.mu.Lock()
	return c.mu.Unlock
}

func (c *Conn) usable() error {
	if c.closed {
		return errors.New("database handle is closed")
	}
	return nil
}

func (c *Conn) exec(query string, args ...any) (sql.Result, error) {
	if err := c.usable(); err != nil {
		return nil, err
	}
	defer c.lock()()
	return c.q.ExecContext(context.Background(), query, args...)
}

// queryRow scans one row into dest. It returns sql.ErrNoRows unchanged.
func (c *Conn) queryRow(query string, args []any, dest ...any) error {
	if err := c.usable(); err != nil {
		return err
	}
	defer c.lock()()
	return c.q.QueryRowContext(context.Background(), query, args...).Scan(dest...)
}

// queryEach calls fn for every row. The lock is held until the rows are
// drained.
func (c *Conn) queryEach(query string, args []any, fn func(*sql.Rows) error) error {
	if err := c.usable(); err != nil {
		return err
	}
	defer c.lock()()

	rows, err := c.q.QueryContext(context.Background(), query, args...)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		if err := fn(rows); err != nil {
			return err
		}
	}
	return rows.Err()
}

// withTx runs fn in a transaction, joining the current one if there is one.
func (c *Conn) withTx(fn func(tx *Conn) error) error {
	if c.inTx {
		return fn(c)
	}
	if err := c.usable(); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	tx, err := c.conn.BeginTx(context.Background(), nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	txc := &Conn{q: tx, mu: c.mu, inTx: true, clock: c.clock, logger: c.logger}
	if err := fn(txc); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// RunInTx runs fn inside a transaction on this handle.
func (c *Conn) RunInTx(fn func(tx quill.Store) error) error {
	return c.withTx(func(tx *Conn) error { return fn(tx) })
}

// Close releases the connection. Closing a transaction handle is a no-op.
func (c *Conn) Close() error {
	if c.inTx || c.closed {
		return nil
	}
	c.closed = true
	if err := c.conn.Close(); err != nil {
		return fmt.Errorf("closing connection: %w", err)
	}
	return nil
}

func (c *Conn) now() int64 {
	return quill.NowMillis(c.clock)
}

// lastInsertID unwraps the id of an INSERT.
func lastInsertID(res sql.Result, err error) (int64, error) {
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// nullableID converts an optional id for binding.
func nullableID(id *int64) any {
	if id == nil {
		return nil
	}
	return *id
}

// idPtr converts a scanned nullable id back to a pointer.
func idPtr(n sql.NullInt64) *int64 {
	if !n.Valid {
		return nil
	}
	v := n.Int64
	return &v
}
