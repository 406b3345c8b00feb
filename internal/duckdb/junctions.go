package duckdb

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"strings"
	"time"

	goduckdb "github.com/marcboeker/go-duckdb"

	"github.com/inodb/exonedge/internal/junction"
	"github.com/inodb/exonedge/internal/locus"
)

// FetchScope describes the junction source a cached feed came from.
// Feeds from different servers, compilations or parse modes never mix.
type FetchScope struct {
	Source      string // base URL of the Snaptron server
	Compilation string
	Lenient     bool // malformed feed lines were skipped rather than rejected
}

// FetchKey identifies one Snaptron query.
type FetchKey struct {
	Source      string
	Compilation string
	Lenient     bool
	Locus       string
	Filters     string
}

// NewFetchKey builds the cache key for a query of l with the given filters.
func NewFetchKey(l locus.Locus, scope FetchScope, filters []string) FetchKey {
	return FetchKey{
		Source:      scope.Source,
		Compilation: scope.Compilation,
		Lenient:     scope.Lenient,
		Locus:       l.String(),
		Filters:     strings.Join(filters, "&"),
	}
}

const keyPredicate = `source=? AND compilation=? AND lenient=? AND locus=? AND filters=?`

func (k FetchKey) args() []any {
	return []any{k.Source, k.Compilation, k.Lenient, k.Locus, k.Filters}
}

// WriteJunctions replaces the cached records for key. An empty records
// slice is cached too, so an empty feed is remembered as zero records.
// Writes are serialized; a concurrent LookupJunctions sees either the old
// or the new feed.
func (s *Store) WriteJunctions(key FetchKey, records []junction.Record) error {
	s.junctionMu.Lock()
	defer s.junctionMu.Unlock()

	if _, err := s.db.Exec(`DELETE FROM junction_fetches WHERE `+keyPredicate, key.args()...); err != nil {
		return fmt.Errorf("clear cached fetch: %w", err)
	}
	if _, err := s.db.Exec(`DELETE FROM junctions WHERE `+keyPredicate, key.args()...); err != nil {
		return fmt.Errorf("clear cached junctions: %w", err)
	}

	if len(records) > 0 {
		if err := s.appendJunctions(key, records); err != nil {
			return err
		}
	}

	if _, err := s.db.Exec(`INSERT INTO junction_fetches VALUES (?, ?, ?, ?, ?, ?, ?)`,
		key.Source, key.Compilation, key.Lenient, key.Locus, key.Filters,
		int64(len(records)), time.Now().UTC()); err != nil {
		return fmt.Errorf("record fetch: %w", err)
	}
	return nil
}

func (s *Store) appendJunctions(key FetchKey, records []junction.Record) error {
	conn, err := s.db.Conn(context.Background())
	if err != nil {
		return fmt.Errorf("get connection: %w", err)
	}
	defer conn.Close()

	var appender *goduckdb.Appender
	if err := conn.Raw(func(driverConn any) error {
		var err error
		appender, err = goduckdb.NewAppenderFromConn(driverConn.(driver.Conn), "", "junctions")
		return err
	}); err != nil {
		return fmt.Errorf("create appender: %w", err)
	}
	defer appender.Close()

	for i, r := range records {
		if err := appender.AppendRow(
			key.Source, key.Compilation, key.Lenient, key.Locus, key.Filters, int32(i),
			r.SnaptronID, r.Chrom, r.Strand,
			r.Start, r.End, r.Coverage,
		); err != nil {
			return fmt.Errorf("append junction: %w", err)
		}
	}

	return appender.Flush()
}

// LookupJunctions returns the cached records for key in their original
// feed order. found is false when the query was never cached.
func (s *Store) LookupJunctions(key FetchKey) (records []junction.Record, found bool, err error) {
	s.junctionMu.RLock()
	defer s.junctionMu.RUnlock()

	var count int64
	err = s.db.QueryRow(`SELECT record_count FROM junction_fetches WHERE `+keyPredicate, key.args()...).Scan(&count)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("query fetch: %w", err)
	}

	rows, err := s.db.Query(`SELECT snaptron_id, chrom, strand, junction_start, junction_end, coverage
		FROM junctions
		WHERE `+keyPredicate+`
		ORDER BY seq`,
		key.args()...)
	if err != nil {
		return nil, false, fmt.Errorf("query junctions: %w", err)
	}
	defer rows.Close()

	records = make([]junction.Record, 0, count)
	for rows.Next() {
		var r junction.Record
		if err := rows.Scan(&r.SnaptronID, &r.Chrom, &r.Strand, &r.Start, &r.End, &r.Coverage); err != nil {
			return nil, false, fmt.Errorf("scan junction: %w", err)
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, false, fmt.Errorf("iterate junctions: %w", err)
	}
	return records, true, nil
}

// ClearJunctions removes all cached junction feeds.
func (s *Store) ClearJunctions() error {
	s.junctionMu.Lock()
	defer s.junctionMu.Unlock()

	if _, err := s.db.Exec("DELETE FROM junction_fetches"); err != nil {
		return err
	}
	_, err := s.db.Exec("DELETE FROM junctions")
	return err
}
