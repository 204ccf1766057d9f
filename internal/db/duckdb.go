// Package db owns the DuckDB connection that stores host datasets and
// plugin settings.
package db

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "github.com/marcboeker/go-duckdb"
)

var (
	instance *sql.DB
	once     sync.Once
	initErr  error
)

// Config holds database configuration.
type Config struct {
	DataDir string
	DBName  string
	// InMemory opens a private in-memory database; DataDir is ignored.
	InMemory bool
	// Extensions are installed and loaded on open. Failures are ignored.
	Extensions []string
}

// Get returns the singleton DuckDB connection.
func Get(cfg Config) (*sql.DB, error) {
	once.Do(func() {
		instance, initErr = Open(cfg)
	})
	return instance, initErr
}

// Open opens a new DuckDB connection and creates the schema.
func Open(cfg Config) (*sql.DB, error) {
	dsn := ""
	if !cfg.InMemory {
		duckdbDir := filepath.Join(cfg.DataDir, "duckdb")
		if err := os.MkdirAll(duckdbDir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create duckdb directory: %w", err)
		}
		dsn = filepath.Join(duckdbDir, cfg.DBName+".duckdb")
	}

	conn, err := sql.Open("duckdb", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open duckdb: %w", err)
	}

	for _, ext := range cfg.Extensions {
		// Extensions might already be installed or be unavailable offline
		_, _ = conn.Exec(fmt.Sprintf("INSTALL %s; LOAD %s;", ext, ext))
	}

	if err := migrate(conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migration failed: %w", err)
	}
	return conn, nil
}

func migrate(conn *sql.DB) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS datasets (
			id VARCHAR PRIMARY KEY,
			doc VARCHAR NOT NULL,
			updated_at TIMESTAMP DEFAULT current_timestamp
		);`,
		`CREATE TABLE IF NOT EXISTS plugin_settings (
			dataset_id VARCHAR NOT NULL,
			plugin VARCHAR NOT NULL,
			settings VARCHAR NOT NULL,
			PRIMARY KEY (dataset_id, plugin)
		);`,
		`CREATE TABLE IF NOT EXISTS table_rows (
			dataset_id VARCHAR NOT NULL,
			table_name VARCHAR NOT NULL,
			row_id VARCHAR NOT NULL,
			position INTEGER NOT NULL DEFAULT 0,
			cells VARCHAR
		);`,
		`ALTER TABLE table_rows ADD COLUMN IF NOT EXISTS position INTEGER DEFAULT 0;`,
	}
	for _, q := range queries {
		if _, err := conn.Exec(q); err != nil {
			return err
		}
	}
	return nil
}

// Close closes the singleton connection.
func Close() error {
	if instance != nil {
		return instance.Close()
	}
	return nil
}

// ListTables returns the names of all tables in the database.
func ListTables(ctx context.Context, conn *sql.DB) ([]string, error) {
	rows, err := conn.QueryContext(ctx, "SHOW TABLES")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	tables := []string{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		tables = append(tables, name)
	}
	return tables, rows.Err()
}
