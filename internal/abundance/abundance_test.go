package abundance

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/guregu/null.v3"

	"github.com/inodb/exonedge/internal/locus"
)

// sliceSource serves a fixed per-base slice anchored at offset.
type sliceSource struct {
	name   string
	offset int64
	values []null.Float
	err    error
}

func (s *sliceSource) Name() string { return s.name }

func (s *sliceSource) Values(_ context.Context, _ string, start, end int64) ([]null.Float, error) {
	if s.err != nil {
		return nil, s.err
	}
	var out []null.Float
	for pos := start; pos < end; pos++ {
		i := pos - s.offset
		if i >= 0 && i < int64(len(s.values)) {
			out = append(out, s.values[i])
		} else {
			out = append(out, null.Float{})
		}
	}
	return out, nil
}

func TestSum_WithAbsentValues(t *testing.T) {
	values := []null.Float{null.FloatFrom(5), {}, null.FloatFrom(3), {}}
	assert.Equal(t, float64(8), Sum(values))
}

func TestSum_Empty(t *testing.T) {
	assert.Zero(t, Sum(nil))
	assert.Zero(t, Sum([]null.Float{{}, {}}))
}

func TestSum_Fractional(t *testing.T) {
	values := []null.Float{null.FloatFrom(0.25), null.FloatFrom(0.5), null.NewFloat(9, false)}
	assert.InDelta(t, 0.75, Sum(values), 1e-12)
}

func TestMeasure_PerSource(t *testing.T) {
	l, err := locus.Parse("chr1:100-104_+")
	require.NoError(t, err)

	a := &sliceSource{name: "a.bedGraph", offset: 100, values: []null.Float{
		null.FloatFrom(1), null.FloatFrom(2), {}, null.FloatFrom(4),
	}}
	b := &sliceSource{name: "b.bedGraph", offset: 500}

	results, err := Measure(context.Background(), l, []TrackSource{a, b})
	require.NoError(t, err)
	assert.Equal(t, []Result{
		{Source: "a.bedGraph", Value: 7},
		{Source: "b.bedGraph", Value: 0},
	}, results)
}

func TestMeasure_NoSources(t *testing.T) {
	results, err := Measure(context.Background(), locus.Locus{Chrom: "chr1", Start: 1, End: 2}, nil)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestMeasure_SourceError(t *testing.T) {
	boom := errors.New("boom")
	src := &sliceSource{name: "broken", err: boom}

	_, err := Measure(context.Background(), locus.Locus{Chrom: "chr1", Start: 1, End: 2}, []TrackSource{src})
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "broken")
}

// totalSource only knows its total; Values must never be called.
type totalSource struct {
	total float64
	asked [2]int64
}

func (s *totalSource) Name() string { return "total" }

func (s *totalSource) Values(context.Context, string, int64, int64) ([]null.Float, error) {
	panic("Values called on a RangeSummer")
}

func (s *totalSource) SumRange(_ context.Context, _ string, start, end int64) (float64, error) {
	s.asked = [2]int64{start, end}
	return s.total, nil
}

func TestMeasure_PrefersRangeSummer(t *testing.T) {
	l, err := locus.Parse("chr1:0-9000000000000000000_+")
	require.NoError(t, err)

	src := &totalSource{total: 42}
	results, err := Measure(context.Background(), l, []TrackSource{src})
	require.NoError(t, err)
	assert.Equal(t, []Result{{Source: "total", Value: 42}}, results)
	assert.Equal(t, [2]int64{0, 9000000000000000000}, src.asked)
}
