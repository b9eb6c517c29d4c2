package main

import (
	"fmt"

	"github.com/aretw0/espalier/internal/presentation/graph"
	"github.com/spf13/cobra"
)

// graphCmd represents the graph command
var graphCmd = &cobra.Command{
	Use:   "graph <graph>",
	Short: "Export the process graph visualization",
	Long: `Outputs a Mermaid diagram (graph TD) of the process graph. With --instance the
nodes are coloured by the task states stored for that instance.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, err := newEngine(cmd.Context())
		if err != nil {
			return err
		}
		defer eng.Close()

		g, err := eng.Graph(args[0])
		if err != nil {
			return err
		}

		var overlay graph.StateOverlay
		if instanceID, _ := cmd.Flags().GetString("instance"); instanceID != "" {
			overlay, err = eng.Executor().Snapshot(cmd.Context(), instanceID)
			if err != nil {
				return err
			}
		}

		fmt.Fprint(cmd.OutOrStdout(), graph.GenerateMermaid(g, overlay))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(graphCmd)
	graphCmd.Flags().String("instance", "", "Instance whose states colour the diagram")
}
