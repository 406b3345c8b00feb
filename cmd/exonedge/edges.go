package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/inodb/exonedge/internal/abundance"
	"github.com/inodb/exonedge/internal/batch"
	"github.com/inodb/exonedge/internal/duckdb"
	"github.com/inodb/exonedge/internal/edge"
	"github.com/inodb/exonedge/internal/output"
)

// fetchFlags are shared by commands that query Snaptron.
type fetchFlags struct {
	filters       []string
	noCache       bool
	refresh       bool
	skipMalformed bool
}

func (f *fetchFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringArrayVar(&f.filters, "filter", nil, "Extra Snaptron rfilter, e.g. samples_count>:5 (repeatable)")
	cmd.Flags().BoolVar(&f.noCache, "no-cache", false, "Do not read or write the junction cache")
	cmd.Flags().BoolVar(&f.refresh, "refresh", false, "Refetch junctions even when cached")
	cmd.Flags().BoolVar(&f.skipMalformed, "skip-malformed", false, "Skip malformed junction lines instead of failing the locus")
}

func newEdgesCmd(a *app) *cobra.Command {
	var (
		fetch      fetchFlags
		outputFile string
	)

	cmd := &cobra.Command{
		Use:   "edges <locus>...",
		Short: "Infer exon edges for one or more loci",
		Long:  "Fetch splice junctions for each locus from Snaptron and print the inferred exon edges.",
		Example: `  exonedge edges chr18:79930227-79930311_+
  exonedge edges --threshold 2 --end-mode max chr1:1000-5000_-
  exonedge edges --filter samples_count>:5 -o edges.tsv chr18:79930227-79930311_+`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store := a.maybeOpenStore(fetch.noCache)
			if store != nil {
				defer store.Close()
			}

			opts, err := edgeOptions()
			if err != nil {
				return err
			}

			runner := batch.NewRunner(a.junctionSource(store, fetch.skipMalformed, fetch.refresh), opts)
			runner.SetFilters(fetch.filters)
			runner.SetWorkers(viper.GetInt("workers"))
			runner.SetLogger(a.logger)

			out, closeOut, err := createOutput(cmd, outputFile)
			if err != nil {
				return err
			}
			defer closeOut()

			w := output.NewEdgeWriter(out)
			if err := w.WriteHeader(); err != nil {
				return fmt.Errorf("writing header: %w", err)
			}
			summary, err := runner.Run(cmd.Context(), batch.EntriesFromStrings(args), w.Write)
			if err != nil {
				return err
			}
			if err := w.Flush(); err != nil {
				return fmt.Errorf("flushing output: %w", err)
			}
			return checkSummary(summary)
		},
	}

	fetch.register(cmd)
	cmd.Flags().StringVarP(&outputFile, "output", "o", "", "Output file (default: stdout)")
	return cmd
}

func newAbundanceCmd(a *app) *cobra.Command {
	var (
		tracks     []string
		outputFile string
	)

	cmd := &cobra.Command{
		Use:   "abundance <locus>...",
		Short: "Sum coverage-track abundance over one or more loci",
		Long: `Sum the per-base values of loaded coverage tracks over each locus.
Bases without coverage contribute nothing. Load tracks first with "exonedge track load".`,
		Example: `  exonedge abundance chr1:100-200_+
  exonedge abundance --track brain.bedGraph --track liver.bedGraph chr1:100-200_+`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := a.openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			sources, err := resolveTracks(store, tracks)
			if err != nil {
				return err
			}

			runner := batch.NewRunner(nil, edge.DefaultOptions())
			runner.SetTracks(sources)
			runner.SetWorkers(viper.GetInt("workers"))
			runner.SetLogger(a.logger)

			out, closeOut, err := createOutput(cmd, outputFile)
			if err != nil {
				return err
			}
			defer closeOut()

			w := output.NewAbundanceWriter(out)
			if err := w.WriteHeader(); err != nil {
				return fmt.Errorf("writing header: %w", err)
			}
			summary, err := runner.Run(cmd.Context(), batch.EntriesFromStrings(args), w.Write)
			if err != nil {
				return err
			}
			if err := w.Flush(); err != nil {
				return fmt.Errorf("flushing output: %w", err)
			}
			return checkSummary(summary)
		},
	}

	cmd.Flags().StringArrayVar(&tracks, "track", nil, "Coverage track name (repeatable, default: all loaded tracks)")
	cmd.Flags().StringVarP(&outputFile, "output", "o", "", "Output file (default: stdout)")
	return cmd
}

// maybeOpenStore opens the cache unless disabled. A cache that cannot be
// opened is logged and the command continues uncached.
func (a *app) maybeOpenStore(disabled bool) *duckdb.Store {
	if disabled {
		return nil
	}
	store, err := a.openStore()
	if err != nil {
		a.logger.Warn("junction cache unavailable, continuing without it", zap.Error(err))
		fmt.Fprintf(os.Stderr, "Hint: use --no-cache or --cache <path> to choose another location\n")
		return nil
	}
	return store
}

// resolveTracks returns the named tracks, or every loaded track when names is empty.
func resolveTracks(store *duckdb.Store, names []string) ([]abundance.TrackSource, error) {
	if len(names) == 0 {
		infos, err := store.Tracks()
		if err != nil {
			return nil, err
		}
		if len(infos) == 0 {
			return nil, fmt.Errorf("no coverage tracks loaded (use: exonedge track load <file.bedGraph>)")
		}
		for _, ti := range infos {
			names = append(names, ti.Name)
		}
	}

	sources := make([]abundance.TrackSource, 0, len(names))
	for _, name := range names {
		t, err := store.Track(name)
		if err != nil {
			return nil, err
		}
		sources = append(sources, t)
	}
	return sources, nil
}
