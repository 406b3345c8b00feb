// Package edge infers exon edges from splice-junction coverage.
//
// Junctions are sorted by start and scanned once. A run of consecutive
// junctions whose coverage exceeds the threshold collapses into one Edge
// spanning the first junction's start to the run's end. How the run's end
// is tracked depends on the EndMode.
package edge

import (
	"fmt"
	"slices"
	"strings"

	"github.com/inodb/exonedge/internal/junction"
)

// DefaultThreshold is the coverage a junction must strictly exceed to join a run.
const DefaultThreshold = 0.5

// EndMode selects how a run's end coordinate is updated.
type EndMode int

const (
	// EndOverwrite sets the run end to the end of the latest qualifying
	// junction, even when that shrinks the edge.
	EndOverwrite EndMode = iota
	// EndMax keeps the largest end seen during the run.
	EndMax
)

func (m EndMode) String() string {
	switch m {
	case EndOverwrite:
		return "overwrite"
	case EndMax:
		return "max"
	}
	return fmt.Sprintf("EndMode(%d)", int(m))
}

// ParseEndMode converts "overwrite" or "max" to an EndMode.
func ParseEndMode(s string) (EndMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "overwrite":
		return EndOverwrite, nil
	case "max":
		return EndMax, nil
	}
	return EndOverwrite, fmt.Errorf("unknown end mode %q (want overwrite or max)", s)
}

// Options configures Infer.
type Options struct {
	Threshold float64
	Mode      EndMode
}

// DefaultOptions returns a 0.5 threshold with overwrite semantics.
func DefaultOptions() Options {
	return Options{Threshold: DefaultThreshold, Mode: EndOverwrite}
}

// Edge is an inferred exon edge.
type Edge struct {
	Start int64
	End   int64
}

// Infer returns the exon edges implied by records, ordered by the start of
// the run that produced them. records is not modified.
func Infer(records []junction.Record, opts Options) []Edge {
	sorted := slices.Clone(records)
	slices.SortStableFunc(sorted, func(a, b junction.Record) int {
		switch {
		case a.Start < b.Start:
			return -1
		case a.Start > b.Start:
			return 1
		}
		return 0
	})

	edges := []Edge{}
	var (
		open bool
		cur  Edge
	)

	for _, r := range sorted {
		if r.Coverage > opts.Threshold {
			if !open {
				open = true
				cur = Edge{Start: r.Start, End: r.End}
				continue
			}
			if opts.Mode == EndMax {
				cur.End = max(cur.End, r.End)
			} else {
				cur.End = r.End
			}
			continue
		}

		if open {
			edges = append(edges, cur)
			open = false
		}
	}

	if open {
		edges = append(edges, cur)
	}

	return edges
}
