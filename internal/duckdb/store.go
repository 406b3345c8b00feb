// Package duckdb persists fetched junctions, inferred edges and coverage tracks.
// Junction feeds are cached per (locus, compilation, filters) so repeated
// analyses of the same locus do not hit Snaptron again. Coverage tracks are
// bulk-loaded from bedGraph files and queried per region.
package duckdb

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	_ "github.com/marcboeker/go-duckdb"
)

// Store manages a DuckDB connection.
type Store struct {
	db   *sql.DB
	path string

	// junctionMu makes a feed replacement atomic for readers.
	junctionMu sync.RWMutex
}

// Open opens or creates a DuckDB database at the given path.
// Use an empty string for an in-memory database.
func Open(path string) (*Store, error) {
	if path != "" {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create cache directory: %w", err)
		}
	}

	db, err := sql.Open("duckdb", path)
	if err != nil {
		return nil, fmt.Errorf("open duckdb: %w", err)
	}

	s := &Store{db: db, path: path}
	if err := s.ensureSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}

	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB returns the underlying *sql.DB for direct access.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Path returns the database path, empty for in-memory stores.
func (s *Store) Path() string {
	return s.path
}

// ensureSchema creates tables if they don't exist.
func (s *Store) ensureSchema() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS junction_fetches (
			source VARCHAR,
			compilation VARCHAR,
			lenient BOOLEAN,
			locus VARCHAR,
			filters VARCHAR,
			record_count BIGINT,
			fetched_at TIMESTAMP,
			PRIMARY KEY (source, compilation, lenient, locus, filters)
		)`,
		`CREATE TABLE IF NOT EXISTS junctions (
			source VARCHAR,
			compilation VARCHAR,
			lenient BOOLEAN,
			locus VARCHAR,
			filters VARCHAR,
			seq INTEGER,
			snaptron_id VARCHAR,
			chrom VARCHAR,
			strand VARCHAR,
			junction_start BIGINT,
			junction_end BIGINT,
			coverage DOUBLE
		)`,
		`CREATE TABLE IF NOT EXISTS edge_results (
			run_id VARCHAR,
			seq INTEGER,
			locus VARCHAR,
			threshold DOUBLE,
			end_mode VARCHAR,
			edge_index INTEGER,
			edge_start BIGINT,
			edge_end BIGINT,
			created_at TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS tracks (
			name VARCHAR PRIMARY KEY,
			path VARCHAR,
			size BIGINT,
			mod_time_ns BIGINT,
			interval_count BIGINT
		)`,
		`CREATE TABLE IF NOT EXISTS coverage (
			track VARCHAR,
			chrom VARCHAR,
			chrom_start BIGINT,
			chrom_end BIGINT,
			value DOUBLE
		)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	// Index for region lookups
	s.db.Exec(`CREATE INDEX IF NOT EXISTS idx_coverage_region ON coverage (track, chrom, chrom_start)`)
	return nil
}

// sqlString quotes s as a SQL string literal.
func sqlString(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}
