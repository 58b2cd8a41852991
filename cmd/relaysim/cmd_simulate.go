package main

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/prometheus/common/expfmt"
	"github.com/spf13/cobra"

	"github.com/nvandessel/relaysim/internal/circuit"
	"github.com/nvandessel/relaysim/internal/metrics"
	"github.com/nvandessel/relaysim/internal/netgraph"
	"github.com/nvandessel/relaysim/internal/visualization"
)

func newSimulateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "simulate [schematic.yaml | -]",
		Short: "Resolve a schematic and report its electrical state",
		Long: `Load a schematic, resolve it to a fixed point and report device states,
faults and motor rotation.

Overrides are applied on top of the schematic in this order: wires,
phase sources, neutral sources, power switches.

Examples:
  relaysim simulate start-stop.yaml
  relaysim simulate --name start-stop --power PS=off
  relaysim simulate start-stop.yaml --wire PS_L1=K1_A1 --json
  relaysim simulate start-stop.yaml --metrics`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			showMetrics, _ := cmd.Flags().GetBool("metrics")

			a, err := loadApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			c, doc, err := a.buildCircuit(cmd, args)
			if err != nil {
				return err
			}
			if err := applyOverrides(cmd, c); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if jsonOut {
				result := visualization.RenderJSON(visualization.FromCircuit(c))
				result["name"] = doc.Name
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				if err := enc.Encode(result); err != nil {
					return fmt.Errorf("encode JSON: %w", err)
				}
			} else {
				fmt.Fprint(out, renderReport(doc.Name, c))
			}

			if showMetrics {
				return writeMetrics(cmd, a.metrics)
			}
			return nil
		},
	}

	addNameFlag(cmd)
	cmd.Flags().StringSlice("wire", nil, "Extra plain wire as FROM=TO (repeatable)")
	cmd.Flags().StringSlice("phase", nil, "Extra phase source node (repeatable)")
	cmd.Flags().StringSlice("neutral", nil, "Extra neutral source node (repeatable)")
	cmd.Flags().StringSlice("power", nil, "Switch a supply as PREFIX=on|off (repeatable)")
	cmd.Flags().Bool("metrics", false, "Print solver metrics in Prometheus text format")

	return cmd
}

// applyOverrides applies the command-line edits to c.
func applyOverrides(cmd *cobra.Command, c *circuit.Circuit) error {
	wires, _ := cmd.Flags().GetStringSlice("wire")
	phases, _ := cmd.Flags().GetStringSlice("phase")
	neutrals, _ := cmd.Flags().GetStringSlice("neutral")
	power, _ := cmd.Flags().GetStringSlice("power")

	for _, w := range wires {
		from, to, ok := strings.Cut(w, "=")
		if !ok || from == "" || to == "" || from == to {
			return fmt.Errorf("invalid --wire %q (want FROM=TO)", w)
		}
		c.AddLink(from, to, netgraph.Always())
	}
	for _, n := range phases {
		c.SetPhaseSource(n, true)
	}
	for _, n := range neutrals {
		c.SetNeutralSource(n, true)
	}
	for _, p := range power {
		prefix, value, ok := strings.Cut(p, "=")
		on, err := parseSwitch(value)
		if !ok || prefix == "" || err != nil {
			return fmt.Errorf("invalid --power %q (want PREFIX=on|off)", p)
		}
		if !isSupply(c, prefix) {
			return fmt.Errorf("--power %q: no power supply with prefix %q", p, prefix)
		}
		c.SetPower(prefix, on)
	}
	return nil
}

func parseSwitch(s string) (bool, error) {
	switch strings.ToLower(s) {
	case "on":
		return true, nil
	case "off":
		return false, nil
	default:
		return strconv.ParseBool(s)
	}
}

func isSupply(c *circuit.Circuit, prefix string) bool {
	for _, p := range c.Placements() {
		if p.Prefix == prefix && p.Kind == circuit.KindPower {
			return true
		}
	}
	return false
}

// writeMetrics dumps the registry in the Prometheus text exposition format.
func writeMetrics(cmd *cobra.Command, reg *metrics.Registry) error {
	families, err := reg.GetPrometheusRegistry().Gather()
	if err != nil {
		return fmt.Errorf("gather metrics: %w", err)
	}
	enc := expfmt.NewEncoder(cmd.OutOrStdout(), expfmt.NewFormat(expfmt.TypeTextPlain))
	for _, mf := range families {
		if err := enc.Encode(mf); err != nil {
			return fmt.Errorf("encode metrics: %w", err)
		}
	}
	return nil
}
