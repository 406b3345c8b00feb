package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/inodb/exonedge/internal/batch"
	"github.com/inodb/exonedge/internal/output"
)

func newBatchCmd(a *app) *cobra.Command {
	var (
		fetch           fetchFlags
		outputFile      string
		abundanceOutput string
		tracks          []string
		noSave          bool
	)

	cmd := &cobra.Command{
		Use:   "batch <loci-file>",
		Short: "Infer exon edges for every locus in a CSV/TSV file",
		Long: `Analyze every row of a CSV or TSV file with columns chromosome, start, end
and strand. The delimiter is detected automatically. A row that fails is
reported and skipped; the rest of the batch continues.

Edges are saved in the cache under a run ID printed at the end, so they can
be listed again with "exonedge results <run-id>".`,
		Example: `  exonedge batch loci.csv
  exonedge batch -o edges.tsv --workers 8 loci.tsv
  exonedge batch --track brain.bedGraph --abundance-output abundance.tsv loci.csv
  cat loci.csv | exonedge batch -`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(tracks) > 0 && abundanceOutput == "" {
				return errors.New("--abundance-output is required with --track")
			}

			entries, err := batch.LoadFile(args[0])
			if err != nil {
				if errors.Is(err, fs.ErrNotExist) {
					fmt.Fprintf(os.Stderr, "Hint: Check that the file path is correct\n")
				}
				return err
			}
			a.logger.Info("loaded loci", zap.String("file", args[0]), zap.Int("count", len(entries)))

			opts, err := edgeOptions()
			if err != nil {
				return err
			}

			store := a.maybeOpenStore(fetch.noCache)
			if store != nil {
				defer store.Close()
			}

			runner := batch.NewRunner(a.junctionSource(store, fetch.skipMalformed, fetch.refresh), opts)
			runner.SetFilters(fetch.filters)
			runner.SetWorkers(viper.GetInt("workers"))
			runner.SetLogger(a.logger)

			if len(tracks) > 0 {
				if store == nil {
					return errors.New("--track needs the cache; drop --no-cache")
				}
				sources, err := resolveTracks(store, tracks)
				if err != nil {
					return err
				}
				runner.SetTracks(sources)
			}

			out, closeOut, err := createOutput(cmd, outputFile)
			if err != nil {
				return err
			}
			defer closeOut()

			writers := []output.ResultWriter{output.NewEdgeWriter(out)}
			if abundanceOutput != "" {
				abOut, closeAb, err := createOutput(cmd, abundanceOutput)
				if err != nil {
					return err
				}
				defer closeAb()
				writers = append(writers, output.NewAbundanceWriter(abOut))
			}
			for _, w := range writers {
				if err := w.WriteHeader(); err != nil {
					return fmt.Errorf("writing header: %w", err)
				}
			}

			runID := uuid.NewString()
			save := store != nil && !noSave

			summary, err := runner.Run(cmd.Context(), entries, func(res batch.WorkResult) error {
				for _, w := range writers {
					if err := w.Write(res); err != nil {
						return fmt.Errorf("writing result: %w", err)
					}
				}
				if save && res.Err == nil {
					if err := store.WriteEdges(runID, res.Seq, res.Entry.Locus.String(), opts, res.Edges); err != nil {
						a.logger.Warn("failed to save edges", zap.String("locus", res.Entry.Input), zap.Error(err))
					}
				}
				return nil
			})
			if err != nil {
				return err
			}

			for _, w := range writers {
				if err := w.Flush(); err != nil {
					return fmt.Errorf("flushing output: %w", err)
				}
			}

			output.WriteSummary(cmd.ErrOrStderr(), summary)
			if save {
				fmt.Fprintf(cmd.ErrOrStderr(), "  Run ID:      %s\n", runID)
			}
			return checkSummary(summary)
		},
	}

	fetch.register(cmd)
	cmd.Flags().StringVarP(&outputFile, "output", "o", "", "Edge output file (default: stdout)")
	cmd.Flags().StringVar(&abundanceOutput, "abundance-output", "", "Abundance output file")
	cmd.Flags().StringArrayVar(&tracks, "track", nil, "Coverage track to measure (repeatable)")
	cmd.Flags().BoolVar(&noSave, "no-save", false, "Do not save edges in the cache")
	cmd.Flags().Int("workers", 0, "Number of parallel workers (default: number of CPUs)")
	if err := viper.BindPFlag("workers", cmd.Flags().Lookup("workers")); err != nil {
		panic(err)
	}

	return cmd
}
