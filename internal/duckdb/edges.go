package duckdb

import (
	"fmt"
	"time"

	"github.com/inodb/exonedge/internal/edge"
)

// EdgeResult is one stored exon edge together with the run that produced it.
type EdgeResult struct {
	RunID     string
	Locus     string
	Threshold float64
	EndMode   string
	Edge      edge.Edge
}

// WriteEdges stores the edges inferred for locus under runID. seq is the
// locus position in the run's input and orders LookupEdges.
// A locus with no edges leaves no rows.
func (s *Store) WriteEdges(runID string, seq int, locus string, opts edge.Options, edges []edge.Edge) error {
	if len(edges) == 0 {
		return nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin edge write: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`INSERT INTO edge_results VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare edge insert: %w", err)
	}
	defer stmt.Close()

	now := time.Now().UTC()
	for i, e := range edges {
		if _, err := stmt.Exec(runID, int32(seq), locus, opts.Threshold, opts.Mode.String(), int32(i), e.Start, e.End, now); err != nil {
			return fmt.Errorf("insert edge: %w", err)
		}
	}

	return tx.Commit()
}

// LookupEdges returns the edges of a run in input order, then edge position.
func (s *Store) LookupEdges(runID string) ([]EdgeResult, error) {
	rows, err := s.db.Query(`SELECT run_id, locus, threshold, end_mode, edge_start, edge_end
		FROM edge_results
		WHERE run_id=?
		ORDER BY seq, edge_index`, runID)
	if err != nil {
		return nil, fmt.Errorf("query edges: %w", err)
	}
	defer rows.Close()

	var results []EdgeResult
	for rows.Next() {
		var r EdgeResult
		if err := rows.Scan(&r.RunID, &r.Locus, &r.Threshold, &r.EndMode, &r.Edge.Start, &r.Edge.End); err != nil {
			return nil, fmt.Errorf("scan edge: %w", err)
		}
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate edges: %w", err)
	}
	return results, nil
}

// SearchEdgesByLocus returns every stored edge for locus across runs.
func (s *Store) SearchEdgesByLocus(locus string) ([]EdgeResult, error) {
	rows, err := s.db.Query(`SELECT run_id, locus, threshold, end_mode, edge_start, edge_end
		FROM edge_results
		WHERE locus=?
		ORDER BY created_at, run_id, edge_index`, locus)
	if err != nil {
		return nil, fmt.Errorf("query edges: %w", err)
	}
	defer rows.Close()

	var results []EdgeResult
	for rows.Next() {
		var r EdgeResult
		if err := rows.Scan(&r.RunID, &r.Locus, &r.Threshold, &r.EndMode, &r.Edge.Start, &r.Edge.End); err != nil {
			return nil, fmt.Errorf("scan edge: %w", err)
		}
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate edges: %w", err)
	}
	return results, nil
}
