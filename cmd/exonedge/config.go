package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/inodb/exonedge/internal/edge"
)

// configKeys are the settings "config set" accepts.
var configKeys = []string{
	"snaptron.url",
	"snaptron.compilation",
	"snaptron.timeout",
	"edges.threshold",
	"edges.end_mode",
	"cache.path",
	"workers",
	"serve.addr",
}

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage exonedge configuration",
		Long:  "Show, get, or set configuration values. Config is stored in ~/.exonedge.yaml.",
		Example: `  exonedge config                             # show all config
  exonedge config set edges.threshold 2       # require coverage above 2
  exonedge config set edges.end_mode max      # keep the largest end of a run
  exonedge config get snaptron.compilation    # get a value`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigShow(cmd.OutOrStdout())
		},
	}

	cmd.AddCommand(newConfigSetCmd())
	cmd.AddCommand(newConfigGetCmd())

	return cmd
}

func newConfigSetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Set a configuration value",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigSet(cmd.OutOrStdout(), args[0], args[1])
		},
	}
}

func newConfigGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <key>",
		Short: "Get a configuration value",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigGet(cmd.OutOrStdout(), args[0])
		},
	}
}

func runConfigShow(w io.Writer) error {
	settings := viper.AllSettings()
	if len(settings) == 0 {
		fmt.Fprintln(w, "# No configuration set. Config file: ~/.exonedge.yaml")
		return nil
	}

	out, err := yaml.Marshal(settings)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	fmt.Fprint(w, string(out))
	return nil
}

// parseConfigValue checks value against key and converts it to the stored type.
func parseConfigValue(key, value string) (any, error) {
	switch key {
	case "edges.threshold":
		v, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return nil, fmt.Errorf("%s must be a number: %w", key, err)
		}
		return v, nil
	case "edges.end_mode":
		mode, err := edge.ParseEndMode(value)
		if err != nil {
			return nil, err
		}
		return mode.String(), nil
	case "snaptron.timeout":
		if _, err := time.ParseDuration(value); err != nil {
			return nil, fmt.Errorf("%s must be a duration such as 30s: %w", key, err)
		}
		return value, nil
	case "workers":
		v, err := strconv.Atoi(value)
		if err != nil || v < 0 {
			return nil, fmt.Errorf("%s must be a non-negative integer", key)
		}
		return v, nil
	}
	return value, nil
}

func runConfigSet(w io.Writer, key, value string) error {
	if !slices.Contains(configKeys, key) {
		return fmt.Errorf("unknown config key %q", key)
	}
	v, err := parseConfigValue(key, value)
	if err != nil {
		return err
	}
	viper.Set(key, v)

	// Ensure config file exists
	cfgFile := viper.ConfigFileUsed()
	if cfgFile == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("cannot determine home directory: %w", err)
		}
		cfgFile = filepath.Join(home, ".exonedge.yaml")
	}

	if err := viper.WriteConfigAs(cfgFile); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}

	fmt.Fprintf(w, "Set %s = %v in %s\n", key, v, cfgFile)
	return nil
}

func runConfigGet(w io.Writer, key string) error {
	val := viper.Get(key)
	if val == nil {
		return fmt.Errorf("key %q is not set", key)
	}
	fmt.Fprintln(w, val)
	return nil
}
