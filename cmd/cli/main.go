package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"oncostats/internal/dataset"
	"oncostats/internal/dispatch"
	"oncostats/internal/logging"
	"oncostats/internal/registry"
	"oncostats/pkg/utils"
)

var (
	// Global flags
	verbose    bool
	configPath string

	cfg    utils.Config
	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "oncostats",
	Short: "Browse cancer category datasets from the terminal",
	Long: `oncostats reads the category catalog and its datasets the same way the
API server does, and prints them as styled text, JSON or PNG charts.

It also moves datasets between the CSV directory and the database, and can
follow a running server's sync stream.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = utils.LoadConfig(configPath)
		if err != nil {
			return err
		}
		if verbose {
			logger, err = logging.Verbose()
		} else {
			logger, err = logging.New(cfg.LogLevel, "console")
		}
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "YAML config file (default $ONCOSTATS_CONFIG)")

	rootCmd.AddCommand(categoriesCmd)
	rootCmd.AddCommand(overviewCmd)
	rootCmd.AddCommand(showCmd)
	rootCmd.AddCommand(renderCmd)
	rootCmd.AddCommand(importCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(importsCmd)
	rootCmd.AddCommand(watchCmd)
}

// openDispatcher wires the catalog and the configured table source. The
// returned func closes the source.
func openDispatcher() (*dispatch.Dispatcher, *registry.Registry, func() error, error) {
	reg, err := registry.Load(cfg.Catalog)
	if err != nil {
		return nil, nil, nil, err
	}
	src, closeSrc, err := dataset.Open(cfg)
	if err != nil {
		return nil, nil, nil, err
	}
	d := dispatch.New(reg, src, logger)
	d.LoadTimeout = cfg.LoadTimeout
	return d, reg, closeSrc, nil
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
