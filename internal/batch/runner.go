package batch

import (
	"context"
	"fmt"
	"runtime"
	"sync"

	"go.uber.org/zap"

	"github.com/inodb/exonedge/internal/abundance"
	"github.com/inodb/exonedge/internal/edge"
	"github.com/inodb/exonedge/internal/junction"
	"github.com/inodb/exonedge/internal/locus"
)

// JunctionSource supplies the junction records overlapping a locus.
type JunctionSource interface {
	Fetch(ctx context.Context, l locus.Locus, filters ...string) ([]junction.Record, error)
}

// WorkItem is one batch entry waiting to be analyzed.
type WorkItem struct {
	Seq   int
	Entry Entry
}

// WorkResult holds the analysis output for a single entry.
type WorkResult struct {
	Seq       int
	Entry     Entry
	Records   int
	Edges     []edge.Edge
	Abundance []abundance.Result
	Err       error
}

// Summary counts the outcome of a Run.
type Summary struct {
	Total  int
	Failed int
}

// Runner analyzes loci: exon edges when it has a junction source, and
// abundance when it has coverage tracks.
type Runner struct {
	source  JunctionSource
	opts    edge.Options
	filters []string
	tracks  []abundance.TrackSource
	workers int
	logger  *zap.Logger
}

// NewRunner creates a runner. source may be nil for abundance-only runs.
func NewRunner(source JunctionSource, opts edge.Options) *Runner {
	return &Runner{
		source: source,
		opts:   opts,
		logger: zap.NewNop(),
	}
}

// SetFilters sets extra Snaptron rfilter expressions applied to every fetch.
func (r *Runner) SetFilters(filters []string) {
	r.filters = filters
}

// SetTracks sets the coverage tracks measured for every locus.
func (r *Runner) SetTracks(tracks []abundance.TrackSource) {
	r.tracks = tracks
}

// SetWorkers sets the worker count. 0 means runtime.NumCPU().
func (r *Runner) SetWorkers(n int) {
	r.workers = n
}

// SetLogger sets the logger for warning and info messages.
func (r *Runner) SetLogger(l *zap.Logger) {
	r.logger = l
}

// Options returns the edge inference options in use.
func (r *Runner) Options() edge.Options {
	return r.opts
}

// Analyze runs every configured analysis for one locus.
func (r *Runner) Analyze(ctx context.Context, l locus.Locus) (WorkResult, error) {
	var res WorkResult

	if r.source != nil {
		records, err := r.source.Fetch(ctx, l, r.filters...)
		if err != nil {
			return res, fmt.Errorf("fetch junctions: %w", err)
		}
		res.Records = len(records)
		res.Edges = edge.Infer(records, r.opts)
	}

	if len(r.tracks) > 0 {
		results, err := abundance.Measure(ctx, l, r.tracks)
		if err != nil {
			return res, fmt.Errorf("measure abundance: %w", err)
		}
		res.Abundance = results
	}

	return res, nil
}

// ParallelAnalyze analyzes work items using a pool of workers.
// Results are sent to the returned channel in arrival order (not sequence order).
// Use OrderedCollect to consume results in sequence-number order.
// Entries that already carry an error are passed through without analysis.
// If workers is 0, runtime.NumCPU() is used.
func (r *Runner) ParallelAnalyze(ctx context.Context, items <-chan WorkItem, workers int) <-chan WorkResult {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	results := make(chan WorkResult, 2*workers)

	var wg sync.WaitGroup
	wg.Add(workers)

	for w := 0; w < workers; w++ {
		go func() {
			defer wg.Done()
			for item := range items {
				var res WorkResult
				switch {
				case item.Entry.Err != nil:
					res.Err = item.Entry.Err
				case ctx.Err() != nil:
					res.Err = ctx.Err()
				default:
					var err error
					res, err = r.Analyze(ctx, item.Entry.Locus)
					res.Err = err
				}
				res.Seq = item.Seq
				res.Entry = item.Entry
				results <- res
			}
		}()
	}

	go func() {
		wg.Wait()
		close(results)
	}()

	return results
}

// OrderedCollect calls fn for each result in sequence-number order.
// It buffers out-of-order results in a pending map and emits them
// as soon as the next expected sequence number is available.
// Blocks until the results channel is closed.
func OrderedCollect(results <-chan WorkResult, fn func(WorkResult) error) error {
	pending := make(map[int]WorkResult)
	nextSeq := 0

	for r := range results {
		pending[r.Seq] = r

		for {
			rr, ok := pending[nextSeq]
			if !ok {
				break
			}
			delete(pending, nextSeq)
			nextSeq++
			if err := fn(rr); err != nil {
				// Drain remaining results to unblock workers.
				for range results {
				}
				return err
			}
		}
	}

	return nil
}

// Run analyzes entries in parallel and hands each result to fn in input
// order. A failed entry is logged and counted but does not stop the run;
// only an error returned by fn does.
func (r *Runner) Run(ctx context.Context, entries []Entry, fn func(WorkResult) error) (Summary, error) {
	workers := r.workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	items := make(chan WorkItem, 2*workers)
	go func() {
		defer close(items)
		for i, e := range entries {
			items <- WorkItem{Seq: i, Entry: e}
		}
	}()

	var summary Summary
	err := OrderedCollect(r.ParallelAnalyze(ctx, items, workers), func(res WorkResult) error {
		summary.Total++
		if res.Err != nil {
			summary.Failed++
			r.logger.Warn("failed to analyze locus",
				zap.String("locus", res.Entry.Input),
				zap.Int("line", res.Entry.Line),
				zap.Error(res.Err))
		}
		return fn(res)
	})
	if err != nil {
		return summary, err
	}

	if summary.Total == 0 {
		r.logger.Info("0 loci processed")
	}
	return summary, nil
}
