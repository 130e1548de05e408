package database

import (
	"fmt"
	"os"
	"path/filepath"

	"quill/internal/config"
	"quill/internal/quill"
)

// NewDatabaseFromConfig opens the database selected by cfg.Type.
func NewDatabaseFromConfig(cfg config.DatabaseConfig, clock quill.Clock, logger quill.Logger) (*SQLiteDatabase, error) {
	switch cfg.Type {
	case "sqlite":
		if cfg.Path == "" {
			return nil, fmt.Errorf("path required for sqlite database")
		}
		if err := os.MkdirAll(filepath.Dir(cfg.Path), 0755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
		return NewSQLiteDatabase(cfg.Path, clock, logger)
	case "memory":
		return NewSQLiteDatabase(":memory:", clock, logger)
	default:
		return nil, fmt.Errorf("unknown database type: %s", cfg.Type)
	}
}
