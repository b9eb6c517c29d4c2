package main

import (
	"fmt"

	"github.com/aretw0/espalier/pkg/adapters/file"
	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate [dir]",
	Short: "Check the graph files for consistency",
	Long: `Parses every graph file of the directory, checks it against the graph schema
and reports dead links, missing start nodes and duplicate ids.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		dir := cfg.GraphsDir
		if len(args) > 0 {
			dir = args[0]
		}

		graphs, err := file.New(dir, file.WithLogger(logger)).Load(cmd.Context())
		if err != nil {
			return fmt.Errorf("validation failed: %w", err)
		}
		for _, g := range graphs {
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %d nodes\n", g.ID, g.Len())
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%d graphs are valid\n", len(graphs))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
}
