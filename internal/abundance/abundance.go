// Package abundance sums per-base coverage over a locus.
package abundance

import (
	"context"
	"fmt"

	"gopkg.in/guregu/null.v3"

	"github.com/inodb/exonedge/internal/locus"
)

// TrackSource supplies per-base coverage values for a region.
type TrackSource interface {
	// Name identifies the source in results, e.g. a track file name.
	Name() string

	// Values returns one entry per base in [start, end). Positions without
	// coverage are returned as invalid (absent) values.
	Values(ctx context.Context, chrom string, start, end int64) ([]null.Float, error)
}

// RangeSummer is implemented by sources that can total a region without
// materializing per-base values. Measure prefers it over Values, which keeps
// whole-chromosome loci cheap.
type RangeSummer interface {
	SumRange(ctx context.Context, chrom string, start, end int64) (float64, error)
}

// Result is the abundance of one source over a locus.
type Result struct {
	Source string
	Value  float64
}

// Sum adds all present values. Absent values contribute nothing and an
// empty slice sums to 0.
func Sum(values []null.Float) float64 {
	var total float64
	for _, v := range values {
		if v.Valid {
			total += v.Float64
		}
	}
	return total
}

// Measure computes one abundance per source over l, in source order.
// Sources are independent; no normalization is applied across them.
func Measure(ctx context.Context, l locus.Locus, sources []TrackSource) ([]Result, error) {
	results := make([]Result, 0, len(sources))
	for _, src := range sources {
		value, err := measureOne(ctx, l, src)
		if err != nil {
			return nil, fmt.Errorf("read track %s at %s: %w", src.Name(), l.Region(), err)
		}
		results = append(results, Result{Source: src.Name(), Value: value})
	}
	return results, nil
}

func measureOne(ctx context.Context, l locus.Locus, src TrackSource) (float64, error) {
	if rs, ok := src.(RangeSummer); ok {
		return rs.SumRange(ctx, l.Chrom, l.Start, l.End)
	}
	values, err := src.Values(ctx, l.Chrom, l.Start, l.End)
	if err != nil {
		return 0, err
	}
	return Sum(values), nil
}
