package batch

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
	"gopkg.in/guregu/null.v3"

	"github.com/inodb/exonedge/internal/abundance"
	"github.com/inodb/exonedge/internal/duckdb"
	"github.com/inodb/exonedge/internal/edge"
	"github.com/inodb/exonedge/internal/junction"
	"github.com/inodb/exonedge/internal/locus"
	"github.com/inodb/exonedge/internal/snaptron"
)

// fakeSource returns one qualifying junction spanning the locus, and fails
// for loci on chr99.
type fakeSource struct {
	mu    sync.Mutex
	calls int
}

func (f *fakeSource) Fetch(_ context.Context, l locus.Locus, filters ...string) ([]junction.Record, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if l.Chrom == "chr99" {
		return nil, errors.New("upstream unavailable")
	}
	return []junction.Record{
		{Start: l.Start, End: l.End, Coverage: 2},
		{Start: l.End + 10, End: l.End + 20, Coverage: 0.1},
	}, nil
}

func (f *fakeSource) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type constTrack struct{ name string }

func (c constTrack) Name() string { return c.name }

func (c constTrack) Values(_ context.Context, _ string, start, end int64) ([]null.Float, error) {
	out := make([]null.Float, 0, end-start)
	for pos := start; pos < end; pos++ {
		out = append(out, null.FloatFrom(1))
	}
	return out, nil
}

func TestRunner_Analyze(t *testing.T) {
	r := NewRunner(&fakeSource{}, edge.DefaultOptions())
	r.SetTracks([]abundance.TrackSource{constTrack{"ones"}})

	res, err := r.Analyze(context.Background(), locus.Locus{Chrom: "chr1", Start: 100, End: 110, Strand: "+"})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Records)
	assert.Equal(t, []edge.Edge{{Start: 100, End: 110}}, res.Edges)
	assert.Equal(t, []abundance.Result{{Source: "ones", Value: 10}}, res.Abundance)
}

func TestRunner_AbundanceOnly(t *testing.T) {
	r := NewRunner(nil, edge.DefaultOptions())
	r.SetTracks([]abundance.TrackSource{constTrack{"a"}, constTrack{"b"}})

	res, err := r.Analyze(context.Background(), locus.Locus{Chrom: "chr1", Start: 0, End: 3})
	require.NoError(t, err)
	assert.Nil(t, res.Edges)
	assert.Len(t, res.Abundance, 2)
}

func TestRunner_Run_OrderAndFailureIsolation(t *testing.T) {
	var inputs []string
	for i := 0; i < 100; i++ {
		chrom := "chr1"
		if i%10 == 3 {
			chrom = "chr99"
		}
		inputs = append(inputs, fmt.Sprintf("%s:%d-%d_+", chrom, i*100, i*100+50))
	}
	inputs = append(inputs, "not-a-locus")
	entries := EntriesFromStrings(inputs)

	core, logs := observer.New(zap.WarnLevel)
	src := &fakeSource{}
	r := NewRunner(src, edge.DefaultOptions())
	r.SetWorkers(8)
	r.SetLogger(zap.New(core))

	var seen []int
	summary, err := r.Run(context.Background(), entries, func(res WorkResult) error {
		seen = append(seen, res.Seq)
		switch {
		case res.Entry.Input == "not-a-locus":
			assert.ErrorIs(t, res.Err, locus.ErrInvalidCoordinateFormat)
		case res.Entry.Locus.Chrom == "chr99":
			assert.Error(t, res.Err)
		default:
			require.NoError(t, res.Err)
			assert.Equal(t, []edge.Edge{{Start: res.Entry.Locus.Start, End: res.Entry.Locus.End}}, res.Edges)
		}
		return nil
	})
	require.NoError(t, err)

	require.Len(t, seen, 101)
	for i, seq := range seen {
		assert.Equal(t, i, seq, "result %d out of order", i)
	}
	assert.Equal(t, Summary{Total: 101, Failed: 11}, summary)
	assert.Equal(t, 11, logs.Len())
	assert.Equal(t, 100, src.Calls(), "invalid entries are never fetched")
}

func TestRunner_Run_CallbackErrorStops(t *testing.T) {
	entries := EntriesFromStrings([]string{"chr1:1-2_+", "chr1:3-4_+", "chr1:5-6_+"})
	r := NewRunner(&fakeSource{}, edge.DefaultOptions())
	r.SetWorkers(2)

	stop := errors.New("stop")
	calls := 0
	_, err := r.Run(context.Background(), entries, func(WorkResult) error {
		calls++
		return stop
	})
	assert.ErrorIs(t, err, stop)
	assert.Equal(t, 1, calls)
}

func TestRunner_Run_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	src := &fakeSource{}
	r := NewRunner(src, edge.DefaultOptions())
	summary, err := r.Run(ctx, EntriesFromStrings([]string{"chr1:1-2_+", "chr1:3-4_+"}), func(res WorkResult) error {
		assert.ErrorIs(t, res.Err, context.Canceled)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Failed)
	assert.Zero(t, src.Calls())
}

func TestRunner_Run_Empty(t *testing.T) {
	r := NewRunner(&fakeSource{}, edge.DefaultOptions())
	summary, err := r.Run(context.Background(), nil, func(WorkResult) error { return nil })
	require.NoError(t, err)
	assert.Zero(t, summary.Total)
}

func TestOrderedCollect_OutOfOrder(t *testing.T) {
	ch := make(chan WorkResult, 3)
	ch <- WorkResult{Seq: 2}
	ch <- WorkResult{Seq: 0}
	ch <- WorkResult{Seq: 1}
	close(ch)

	var order []int
	require.NoError(t, OrderedCollect(ch, func(r WorkResult) error {
		order = append(order, r.Seq)
		return nil
	}))
	assert.Equal(t, []int{0, 1, 2}, order)
}

func TestCachedSource(t *testing.T) {
	store, err := duckdb.Open("")
	require.NoError(t, err)
	defer store.Close()

	src := &fakeSource{}
	cached := NewCachedSource(src, store, duckdb.FetchScope{Source: "http://snaptron.test", Compilation: "srav2"})
	l := locus.Locus{Chrom: "chr1", Start: 100, End: 200, Strand: "+"}

	first, err := cached.Fetch(context.Background(), l)
	require.NoError(t, err)
	second, err := cached.Fetch(context.Background(), l)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, src.Calls())

	_, err = cached.Fetch(context.Background(), l, "annotated:1")
	require.NoError(t, err)
	assert.Equal(t, 2, src.Calls(), "filters are part of the cache key")

	cached.SetRefresh(true)
	_, err = cached.Fetch(context.Background(), l)
	require.NoError(t, err)
	assert.Equal(t, 3, src.Calls())

	_, err = cached.Fetch(context.Background(), locus.Locus{Chrom: "chr99", Start: 1, End: 2, Strand: "+"})
	assert.Error(t, err)
}

func TestCachedSource_DuplicateLociInParallel(t *testing.T) {
	store, err := duckdb.Open("")
	require.NoError(t, err)
	defer store.Close()

	scope := duckdb.FetchScope{Source: "http://snaptron.test", Compilation: "srav2"}
	src := &fakeSource{}
	r := NewRunner(NewCachedSource(src, store, scope), edge.DefaultOptions())
	r.SetWorkers(8)

	inputs := make([]string, 16)
	for i := range inputs {
		inputs[i] = "chr1:100-200_+"
	}
	summary, err := r.Run(context.Background(), EntriesFromStrings(inputs), func(res WorkResult) error {
		require.NoError(t, res.Err)
		assert.Equal(t, 2, res.Records, "entry %d", res.Seq)
		assert.Equal(t, []edge.Edge{{Start: 100, End: 200}}, res.Edges, "entry %d", res.Seq)
		return nil
	})
	require.NoError(t, err)
	assert.Zero(t, summary.Failed)

	l := locus.Locus{Chrom: "chr1", Start: 100, End: 200, Strand: "+"}
	records, found, err := store.LookupJunctions(duckdb.NewFetchKey(l, scope, nil))
	require.NoError(t, err)
	require.True(t, found)
	assert.Len(t, records, 2)
}

const snaptronHeader = "DataSource:Type\tsnaptron_id\tchromosome\tstart\tend\tlength\tstrand\tannotated\tleft_motif\tright_motif\tleft_annotated\tright_annotated\tsamples\tsamples_count\tcoverage_sum\tcoverage_avg\tcoverage_median\tsource_dataset_id\n"

func snaptronServer(t *testing.T, feed string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(snaptronHeader + feed))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func clientSource(store *duckdb.Store, c *snaptron.Client) *CachedSource {
	return NewCachedSource(c, store, duckdb.FetchScope{
		Source:      c.BaseURL(),
		Compilation: c.Compilation(),
		Lenient:     c.SkipMalformed(),
	})
}

func TestCachedSource_LenientFetchNotServedToStrict(t *testing.T) {
	srv := snaptronServer(t, "I\t1\tchr1\t100\t150\t51\t+\t0\tGT\tAG\t0\t0\t,1:2\t1\t2\t2\t2\t0\n"+
		"I\t2\tchr1\tnot-a-number\n")
	store, err := duckdb.Open("")
	require.NoError(t, err)
	defer store.Close()
	l := locus.Locus{Chrom: "chr1", Start: 100, End: 200, Strand: "+"}

	lenient := snaptron.NewClient(srv.URL, "srav2", 0)
	lenient.SetSkipMalformed(true)
	records, err := clientSource(store, lenient).Fetch(context.Background(), l)
	require.NoError(t, err)
	assert.Len(t, records, 1)

	strict := snaptron.NewClient(srv.URL, "srav2", 0)
	_, err = clientSource(store, strict).Fetch(context.Background(), l)
	assert.ErrorIs(t, err, junction.ErrMalformedRecord)
}

func TestCachedSource_ScopedByServer(t *testing.T) {
	a := snaptronServer(t, "I\t1\tchr1\t100\t150\t51\t+\t0\tGT\tAG\t0\t0\t,1:2\t1\t2\t2\t2\t0\n")
	b := snaptronServer(t, "I\t7\tchr1\t120\t180\t61\t+\t0\tGT\tAG\t0\t0\t,1:2\t1\t5\t5\t5\t0\n")
	store, err := duckdb.Open("")
	require.NoError(t, err)
	defer store.Close()
	l := locus.Locus{Chrom: "chr1", Start: 100, End: 200, Strand: "+"}

	fromA, err := clientSource(store, snaptron.NewClient(a.URL, "srav2", 0)).Fetch(context.Background(), l)
	require.NoError(t, err)
	require.Len(t, fromA, 1)
	assert.Equal(t, int64(100), fromA[0].Start)

	fromB, err := clientSource(store, snaptron.NewClient(b.URL, "srav2", 0)).Fetch(context.Background(), l)
	require.NoError(t, err)
	require.Len(t, fromB, 1)
	assert.Equal(t, int64(120), fromB[0].Start)
}
