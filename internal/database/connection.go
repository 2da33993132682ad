package database

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

// Config selects the database backend
type Config struct {
	// Type is "sqlite" (default) or "postgres"
	Type string
	// URL is the postgres DSN or the sqlite file path. Empty means DataDir/quizbox.db for sqlite.
	URL string
	// DataDir is created for the sqlite file when URL is empty
	DataDir string
}

// Connect opens the database and makes sure the schema exists
func Connect(cfg Config) (*sqlx.DB, error) {
	driver, dsn, err := resolve(cfg)
	if err != nil {
		return nil, err
	}

	db, err := sqlx.Connect(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if driver == "sqlite3" {
		if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set busy timeout: %w", err)
		}
		// SQLite doesn't support multiple writers
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	}

	if err := initializeSchema(db); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

func resolve(cfg Config) (driver, dsn string, err error) {
	switch cfg.Type {
	case "", "sqlite", "sqlite3":
		dsn = cfg.URL
		if dsn == "" {
			dataDir := cfg.DataDir
			if dataDir == "" {
				dataDir = "data"
			}
			if err := os.MkdirAll(dataDir, 0755); err != nil {
				return "", "", fmt.Errorf("failed to create data directory: %w", err)
			}
			dsn = filepath.Join(dataDir, "quizbox.db")
		}
		return "sqlite3", dsn, nil
	case "postgres":
		if cfg.URL == "" {
			return "", "", fmt.Errorf("postgres requires a database URL")
		}
		return "postgres", cfg.URL, nil
	default:
		return "", "", fmt.Errorf("unsupported database type %q", cfg.Type)
	}
}

// initializeSchema creates necessary tables if they don't exist
func initializeSchema(db *sqlx.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS kv_store (
			store_key TEXT PRIMARY KEY,
			value TEXT NOT NULL,
			version BIGINT NOT NULL DEFAULT 0,
			origin TEXT NOT NULL DEFAULT '',
			updated_at TIMESTAMP NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create kv_store table: %w", err)
	}
	return nil
}
