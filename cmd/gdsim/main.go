package main

import (
	"fmt"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"gdsim/internal/config"
	"gdsim/internal/logging"
)

func newRootCmd() *cobra.Command {
	var (
		logLevel  string
		logFormat string
		cfg       config.Config
	)

	root := &cobra.Command{
		Use:           "gdsim",
		Short:         "Practice group discussions against a moderated AI panel",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			loaded, err := config.Load()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("log-level") {
				loaded.Log.Level = logLevel
			}
			if cmd.Flags().Changed("log-format") {
				loaded.Log.Format = logFormat
			}
			cfg = loaded
			logging.Configure("gdsim", logging.Options{Level: cfg.Log.Level, Format: cfg.Log.Format})
			if cfg.File != "" {
				log.Debug().Str("file", cfg.File).Msg("loaded config file")
			}
			return nil
		},
	}
	root.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (trace, debug, info, warn, error)")
	root.PersistentFlags().StringVar(&logFormat, "log-format", "", "log format (console or json)")

	loadedConfig := func() config.Config { return cfg }
	root.AddCommand(newRunCmd(loadedConfig), newSnapshotCmd(loadedConfig))
	return root
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
