// Package main provides the exonedge command-line tool.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/inodb/exonedge/internal/batch"
	"github.com/inodb/exonedge/internal/duckdb"
	"github.com/inodb/exonedge/internal/edge"
	"github.com/inodb/exonedge/internal/snaptron"
)

// Exit codes
const (
	ExitSuccess = 0
	ExitError   = 1
	ExitUsage   = 2
)

// Version information (set at build time)
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// errAllFailed marks a run in which no locus could be analyzed.
var errAllFailed = errors.New("every locus failed")

// app holds state shared by subcommands.
type app struct {
	logger  *zap.Logger
	verbose bool
	cfgFile string
}

func main() {
	os.Exit(run())
}

func run() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a := &app{logger: zap.NewNop()}
	root := newRootCmd(a)
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		if isUsageError(err) {
			return ExitUsage
		}
		return ExitError
	}
	_ = a.logger.Sync()
	return ExitSuccess
}

// isUsageError reports whether cobra rejected the command line itself.
func isUsageError(err error) bool {
	msg := err.Error()
	return strings.HasPrefix(msg, "unknown command") ||
		strings.HasPrefix(msg, "unknown flag") ||
		strings.HasPrefix(msg, "unknown shorthand flag") ||
		strings.Contains(msg, "arg(s)")
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   "exonedge",
		Short: "Infer exon edges from Snaptron splice-junction coverage",
		Long: `exonedge fetches splice-junction coverage for a genomic locus from Snaptron,
collapses well-supported junctions into exon edges and sums coverage-track
abundance over the locus.

Loci are written as chr<N>:<start>-<end>_<strand>, e.g. chr18:79930227-79930311_+.`,
		Version:       fmt.Sprintf("%s (%s) built %s", version, commit, date),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := initConfig(a.cfgFile); err != nil {
				return err
			}
			logger, err := newLogger(a.verbose)
			if err != nil {
				return fmt.Errorf("create logger: %w", err)
			}
			a.logger = logger
			return nil
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&a.cfgFile, "config", "", "Config file (default: ~/.exonedge.yaml)")
	pf.BoolVarP(&a.verbose, "verbose", "v", false, "Enable debug logging")
	pf.String("snaptron-url", snaptron.DefaultBaseURL, "Snaptron base URL")
	pf.String("compilation", snaptron.DefaultCompilation, "Snaptron compilation")
	pf.Duration("timeout", snaptron.DefaultTimeout, "Snaptron request timeout")
	pf.Float64("threshold", edge.DefaultThreshold, "Coverage a junction must exceed to extend an edge")
	pf.String("end-mode", "overwrite", "How an edge end is updated: overwrite or max")
	pf.String("cache", defaultCachePath(), "DuckDB cache path")

	for key, name := range map[string]string{
		"snaptron.url":         "snaptron-url",
		"snaptron.compilation": "compilation",
		"snaptron.timeout":     "timeout",
		"edges.threshold":      "threshold",
		"edges.end_mode":       "end-mode",
		"cache.path":           "cache",
	} {
		if err := viper.BindPFlag(key, pf.Lookup(name)); err != nil {
			panic(err)
		}
	}

	root.AddCommand(newEdgesCmd(a))
	root.AddCommand(newBatchCmd(a))
	root.AddCommand(newAbundanceCmd(a))
	root.AddCommand(newTrackCmd(a))
	root.AddCommand(newResultsCmd(a))
	root.AddCommand(newCacheCmd(a))
	root.AddCommand(newServeCmd(a))
	root.AddCommand(newConfigCmd())

	return root
}

// initConfig reads ~/.exonedge.yaml (or cfgFile) and EXONEDGE_* variables.
// A missing config file is not an error.
func initConfig(cfgFile string) error {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(home)
		}
		viper.SetConfigName(".exonedge")
		viper.SetConfigType("yaml")
	}

	viper.SetEnvPrefix("EXONEDGE")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	viper.SetDefault("workers", 0)
	viper.SetDefault("serve.addr", ":8080")

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) || (cfgFile == "" && os.IsNotExist(err)) {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

func newLogger(verbose bool) (*zap.Logger, error) {
	if verbose {
		return zap.NewDevelopment()
	}
	cfg := zap.NewProductionConfig()
	cfg.Encoding = "console"
	cfg.DisableStacktrace = true
	return cfg.Build()
}

// defaultCachePath returns ~/.exonedge/cache.duckdb.
func defaultCachePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".exonedge", "cache.duckdb")
	}
	return filepath.Join(home, ".exonedge", "cache.duckdb")
}

// edgeOptions builds inference options from config and flags.
func edgeOptions() (edge.Options, error) {
	mode, err := edge.ParseEndMode(viper.GetString("edges.end_mode"))
	if err != nil {
		return edge.Options{}, err
	}
	return edge.Options{
		Threshold: viper.GetFloat64("edges.threshold"),
		Mode:      mode,
	}, nil
}

// newSnaptronClient builds a client from config.
func (a *app) newSnaptronClient(skipMalformed bool) *snaptron.Client {
	c := snaptron.NewClient(
		viper.GetString("snaptron.url"),
		viper.GetString("snaptron.compilation"),
		viper.GetDuration("snaptron.timeout"),
	)
	c.SetLogger(a.logger)
	c.SetSkipMalformed(skipMalformed)
	return c
}

// openStore opens the configured DuckDB cache.
func (a *app) openStore() (*duckdb.Store, error) {
	path := viper.GetString("cache.path")
	store, err := duckdb.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open cache %s: %w", path, err)
	}
	a.logger.Debug("opened cache", zap.String("path", path))
	return store, nil
}

// junctionSource returns the Snaptron client, wrapped with the DuckDB cache
// when store is non-nil.
func (a *app) junctionSource(store *duckdb.Store, skipMalformed, refresh bool) batch.JunctionSource {
	client := a.newSnaptronClient(skipMalformed)
	if store == nil {
		return client
	}
	cached := batch.NewCachedSource(client, store, duckdb.FetchScope{
		Source:      client.BaseURL(),
		Compilation: client.Compilation(),
		Lenient:     client.SkipMalformed(),
	})
	cached.SetRefresh(refresh)
	cached.SetLogger(a.logger)
	return cached
}

// createOutput opens path for writing, or returns the command's stdout for "" and "-".
func createOutput(cmd *cobra.Command, path string) (io.Writer, func() error, error) {
	if path == "" || path == "-" {
		return cmd.OutOrStdout(), func() error { return nil }, nil
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, nil, fmt.Errorf("create output file: %w", err)
	}
	return f, f.Close, nil
}

// checkSummary turns a run in which every locus failed into an error.
func checkSummary(s batch.Summary) error {
	if s.Total > 0 && s.Failed == s.Total {
		return fmt.Errorf("%w (%d of %d)", errAllFailed, s.Failed, s.Total)
	}
	return nil
}
