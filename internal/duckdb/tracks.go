package duckdb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/guregu/null.v3"
)

// ErrTrackNotFound is returned when a track name has not been loaded.
var ErrTrackNotFound = errors.New("coverage track not loaded")

// ErrRegionTooLarge is returned by Values for regions wider than MaxValuesSpan.
var ErrRegionTooLarge = errors.New("region too large for per-base values")

// MaxValuesSpan bounds the number of bases Values materializes. SumRange has
// no such limit.
const MaxValuesSpan = 10_000_000

// TrackInfo describes a loaded coverage track.
type TrackInfo struct {
	Name          string
	Path          string
	IntervalCount int64
}

// LoadTrack bulk-loads a bedGraph file (chrom, start, end, value; 0-based,
// half-open) under name using DuckDB's read_csv. Header lines such as
// "track ..." or "browser ..." do not parse as intervals and are skipped.
// An unchanged file that is already loaded under name is not re-read;
// reloaded reports whether rows were (re)inserted.
func (s *Store) LoadTrack(name, path string) (reloaded bool, err error) {
	if name == "" {
		name = filepath.Base(path)
	}

	info, err := os.Stat(path)
	if err != nil {
		return false, fmt.Errorf("stat track file: %w", err)
	}
	fp := trackFile{path: path, size: info.Size(), modTimeNS: info.ModTime().UnixNano()}

	if prev, ok, err := s.trackFingerprint(name); err != nil {
		return false, err
	} else if ok && prev == fp {
		return false, nil
	}

	if _, err := s.db.Exec(`DELETE FROM coverage WHERE track=?`, name); err != nil {
		return false, fmt.Errorf("clear track: %w", err)
	}
	if _, err := s.db.Exec(`DELETE FROM tracks WHERE name=?`, name); err != nil {
		return false, fmt.Errorf("clear track metadata: %w", err)
	}

	query := fmt.Sprintf(`INSERT INTO coverage
		SELECT %s, column0, column1, column2, column3
		FROM read_csv(%s, delim='\t', header=false, auto_detect=false, ignore_errors=true,
			columns={
				'column0': 'VARCHAR',
				'column1': 'BIGINT',
				'column2': 'BIGINT',
				'column3': 'DOUBLE'
			})`, sqlString(name), sqlString(path))
	res, err := s.db.Exec(query)
	if err != nil {
		return false, fmt.Errorf("load bedGraph %s: %w", path, err)
	}
	n, _ := res.RowsAffected()

	if _, err := s.db.Exec(`INSERT INTO tracks VALUES (?, ?, ?, ?, ?)`,
		name, fp.path, fp.size, fp.modTimeNS, n); err != nil {
		return false, fmt.Errorf("record track: %w", err)
	}
	return true, nil
}

// trackFile identifies the file a track was loaded from. A changed size or
// mtime means the track must be reloaded.
type trackFile struct {
	path      string
	size      int64
	modTimeNS int64
}

func (s *Store) trackFingerprint(name string) (trackFile, bool, error) {
	var fp trackFile
	err := s.db.QueryRow(`SELECT path, size, mod_time_ns FROM tracks WHERE name=?`, name).
		Scan(&fp.path, &fp.size, &fp.modTimeNS)
	if errors.Is(err, sql.ErrNoRows) {
		return trackFile{}, false, nil
	}
	if err != nil {
		return trackFile{}, false, fmt.Errorf("query track: %w", err)
	}
	return fp, true, nil
}

// Tracks lists the loaded tracks by name.
func (s *Store) Tracks() ([]TrackInfo, error) {
	rows, err := s.db.Query(`SELECT name, path, interval_count FROM tracks ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("query tracks: %w", err)
	}
	defer rows.Close()

	var infos []TrackInfo
	for rows.Next() {
		var ti TrackInfo
		if err := rows.Scan(&ti.Name, &ti.Path, &ti.IntervalCount); err != nil {
			return nil, fmt.Errorf("scan track: %w", err)
		}
		infos = append(infos, ti)
	}
	return infos, rows.Err()
}

// Track returns a handle for querying a loaded track.
func (s *Store) Track(name string) (*Track, error) {
	_, ok, err := s.trackFingerprint(name)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTrackNotFound, name)
	}
	return &Track{store: s, name: name}, nil
}

// Track serves per-base values of one loaded coverage track.
type Track struct {
	store *Store
	name  string
}

// Name returns the track name.
func (t *Track) Name() string {
	return t.name
}

// Values returns one value per base in [start, end). Bases not covered by
// any bedGraph interval are absent.
func (t *Track) Values(ctx context.Context, chrom string, start, end int64) ([]null.Float, error) {
	if end <= start {
		return []null.Float{}, nil
	}
	if end-start > MaxValuesSpan {
		return nil, fmt.Errorf("%w: %s:%d-%d spans %d bases (max %d)",
			ErrRegionTooLarge, chrom, start, end, end-start, int64(MaxValuesSpan))
	}

	rows, err := t.store.db.QueryContext(ctx, `SELECT chrom_start, chrom_end, value
		FROM coverage
		WHERE track=? AND chrom=? AND chrom_end > ? AND chrom_start < ?
		ORDER BY chrom_start`,
		t.name, chrom, start, end)
	if err != nil {
		return nil, fmt.Errorf("query coverage: %w", err)
	}
	defer rows.Close()

	values := make([]null.Float, end-start)
	for rows.Next() {
		var (
			ivStart, ivEnd int64
			value          float64
		)
		if err := rows.Scan(&ivStart, &ivEnd, &value); err != nil {
			return nil, fmt.Errorf("scan coverage: %w", err)
		}
		for pos := max(ivStart, start); pos < min(ivEnd, end); pos++ {
			values[pos-start] = null.FloatFrom(value)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate coverage: %w", err)
	}
	return values, nil
}

// SumRange totals the track over [start, end): each overlapping interval
// contributes value times the number of its bases inside the range. Only the
// overlap is computed, so the range may span a whole chromosome.
func (t *Track) SumRange(ctx context.Context, chrom string, start, end int64) (float64, error) {
	if end <= start {
		return 0, nil
	}

	var total float64
	err := t.store.db.QueryRowContext(ctx, `SELECT COALESCE(SUM(value * (LEAST(chrom_end, ?) - GREATEST(chrom_start, ?))), 0)::DOUBLE
		FROM coverage
		WHERE track=? AND chrom=? AND chrom_end > ? AND chrom_start < ?`,
		end, start, t.name, chrom, start, end).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("sum coverage: %w", err)
	}
	return total, nil
}
