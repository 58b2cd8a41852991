package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	version = "0.1.0-dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "relaysim",
		Short: "Relay and contactor circuit simulator",
		Long: `relaysim resolves relay/contactor control circuits to a fixed point.

It reports which nodes carry phase or neutral, which coils are energized,
where shorts and inter-phase faults occur, and which way three-phase
motors turn. Circuits are described as YAML schematics and can be saved
to a local SQLite store.`,
		SilenceUsage: true,
	}

	// Global flags
	rootCmd.PersistentFlags().Bool("json", false, "Output as JSON")
	rootCmd.PersistentFlags().String("root", ".", "Project root directory")
	rootCmd.PersistentFlags().String("log-level", "", "Log level: info, debug or trace (overrides config)")

	rootCmd.AddCommand(
		newVersionCmd(),
		newSimulateCmd(),
		newGraphCmd(),
		newServeCmd(),
		newSaveCmd(),
		newLoadCmd(),
		newListCmd(),
		newDeleteCmd(),
		newBackupCmd(),
		newRestoreCmd(),
		newConfigCmd(),
	)
	return rootCmd
}
