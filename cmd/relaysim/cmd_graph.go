package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/nvandessel/relaysim/internal/visualization"
)

func newGraphCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "graph [schematic.yaml | -]",
		Short: "Render a resolved schematic as DOT or JSON",
		Long:  `Output the resolved circuit in DOT (Graphviz) or JSON format. Hot and faulted nodes are colored.`,
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			format, _ := cmd.Flags().GetString("format")
			output, _ := cmd.Flags().GetString("output")

			a, err := loadApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			c, _, err := a.buildCircuit(cmd, args)
			if err != nil {
				return err
			}
			view := visualization.FromCircuit(c)

			out := cmd.OutOrStdout()
			if output != "" {
				f, err := os.Create(output)
				if err != nil {
					return fmt.Errorf("create output file: %w", err)
				}
				defer f.Close()
				out = f
			}

			switch visualization.Format(format) {
			case visualization.FormatDOT:
				fmt.Fprint(out, visualization.RenderDOT(view))
			case visualization.FormatJSON:
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				if err := enc.Encode(visualization.RenderJSON(view)); err != nil {
					return fmt.Errorf("encode JSON: %w", err)
				}
			default:
				return fmt.Errorf("unsupported format %q (use 'dot' or 'json')", format)
			}

			if output != "" {
				fmt.Fprintf(cmd.OutOrStdout(), "Graph written to %s\n", output)
			}
			return nil
		},
	}

	addNameFlag(cmd)
	cmd.Flags().String("format", "dot", "Output format: dot or json")
	cmd.Flags().StringP("output", "o", "", "Write to this file instead of stdout")

	return cmd
}
