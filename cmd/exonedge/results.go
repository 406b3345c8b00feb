package main

import (
	"bufio"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/inodb/exonedge/internal/duckdb"
	"github.com/inodb/exonedge/internal/locus"
)

func newResultsCmd(a *app) *cobra.Command {
	var locusArg string

	cmd := &cobra.Command{
		Use:   "results [run-id]",
		Short: "Show saved exon edges",
		Long:  "List the edges saved by a batch run, or every saved edge of one locus with --locus.",
		Example: `  exonedge results 0b5c7f4e-3f0e-4b59-9d55-2d1c0f6b2e8a
  exonedge results --locus chr18:79930227-79930311_+`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if (len(args) == 0) == (locusArg == "") {
				return errors.New("give either a run ID or --locus")
			}

			store, err := a.openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			var results []duckdb.EdgeResult
			if locusArg != "" {
				l, err := locus.Parse(locusArg)
				if err != nil {
					return err
				}
				results, err = store.SearchEdgesByLocus(l.String())
				if err != nil {
					return err
				}
			} else {
				results, err = store.LookupEdges(args[0])
				if err != nil {
					return err
				}
			}

			w := bufio.NewWriter(cmd.OutOrStdout())
			fmt.Fprintln(w, strings.Join([]string{"#RunID", "Locus", "Threshold", "EndMode", "Start", "End"}, "\t"))
			for _, r := range results {
				fmt.Fprintln(w, strings.Join([]string{
					r.RunID,
					r.Locus,
					strconv.FormatFloat(r.Threshold, 'f', -1, 64),
					r.EndMode,
					strconv.FormatInt(r.Edge.Start, 10),
					strconv.FormatInt(r.Edge.End, 10),
				}, "\t"))
			}
			return w.Flush()
		},
	}

	cmd.Flags().StringVar(&locusArg, "locus", "", "Show saved edges for this locus across runs")
	return cmd
}

func newCacheCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Manage the junction cache",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "clear",
		Short: "Drop every cached junction feed",
		Long:  "Drop every cached junction feed. Saved edges and coverage tracks are kept.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := a.openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			if err := store.ClearJunctions(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Cleared junction cache in %s\n", store.Path())
			return nil
		},
	})
	return cmd
}
