package main

import (
	"bufio"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newTrackCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "track",
		Short: "Manage coverage tracks",
		Long:  "Load bedGraph coverage tracks into the cache and list the loaded tracks.",
	}

	cmd.AddCommand(newTrackLoadCmd(a))
	cmd.AddCommand(newTrackListCmd(a))
	return cmd
}

func newTrackLoadCmd(a *app) *cobra.Command {
	var name string

	cmd := &cobra.Command{
		Use:   "load <file.bedGraph>",
		Short: "Load a bedGraph coverage track",
		Long: `Load a bedGraph file (chrom, start, end, value; 0-based half-open) into the
cache. The track is named after the file unless --name is given. Reloading an
unchanged file is a no-op.`,
		Example: `  exonedge track load brain.bedGraph
  exonedge track load --name brain sample42.bedGraph`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := a.openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			reloaded, err := store.LoadTrack(name, args[0])
			if err != nil {
				if errors.Is(err, fs.ErrNotExist) {
					fmt.Fprintf(os.Stderr, "Hint: Check that the file path is correct\n")
				}
				return err
			}
			if !reloaded {
				fmt.Fprintf(cmd.OutOrStdout(), "Track %s is up to date\n", trackName(name, args[0]))
				return nil
			}

			a.logger.Info("loaded coverage track", zap.String("file", args[0]))
			fmt.Fprintf(cmd.OutOrStdout(), "Loaded track %s from %s\n", trackName(name, args[0]), args[0])
			return nil
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "Track name (default: file name)")
	return cmd
}

func newTrackListCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List loaded coverage tracks",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := a.openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			infos, err := store.Tracks()
			if err != nil {
				return err
			}

			w := bufio.NewWriter(cmd.OutOrStdout())
			fmt.Fprintln(w, strings.Join([]string{"#Name", "Intervals", "Path"}, "\t"))
			for _, ti := range infos {
				fmt.Fprintf(w, "%s\t%d\t%s\n", ti.Name, ti.IntervalCount, ti.Path)
			}
			return w.Flush()
		},
	}
}

// trackName mirrors the default naming of LoadTrack for messages.
func trackName(name, path string) string {
	if name != "" {
		return name
	}
	return path[strings.LastIndexAny(path, `/\`)+1:]
}
