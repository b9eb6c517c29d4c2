package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/aretw0/espalier/internal/config"
	"github.com/aretw0/espalier/internal/logging"
	"github.com/spf13/cobra"
)

var (
	cfg    *config.Config
	logger *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "espalier",
	Short: "espalier runs human-task workflows over process graphs",
	Long: `espalier tracks the task state of process instances and lets actors move
them forward, back, or jump, while nodes no actor owns run automatically.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		path, _ := cmd.Flags().GetString("config")
		loaded, err := config.Load(path)
		if err != nil {
			return err
		}
		if cmd.Flags().Changed("dir") {
			loaded.GraphsDir, _ = cmd.Flags().GetString("dir")
		}
		if cmd.Flags().Changed("log-level") {
			loaded.Log.Level, _ = cmd.Flags().GetString("log-level")
		}
		if err := loaded.Validate(); err != nil {
			return err
		}

		level, err := logging.ParseLevel(loaded.Log.Level)
		if err != nil {
			return err
		}
		cfg = loaded
		logger = logging.NewWithFormat(cfg.Log.Format, level)
		slog.SetDefault(logger)
		return nil
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringP("config", "c", "", "Path to a YAML config file")
	rootCmd.PersistentFlags().String("dir", ".", "Directory containing the graph files")
	rootCmd.PersistentFlags().String("log-level", "info", "Log level: debug, info, warn or error")
}
