package main

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/nvandessel/relaysim/internal/circuit"
	"github.com/nvandessel/relaysim/internal/config"
	"github.com/nvandessel/relaysim/internal/logging"
	"github.com/nvandessel/relaysim/internal/metrics"
	"github.com/nvandessel/relaysim/internal/propagation"
	"github.com/nvandessel/relaysim/internal/schematic"
	"github.com/nvandessel/relaysim/internal/store"
)

// app bundles everything a command needs to build and inspect circuits.
type app struct {
	root    string
	config  *config.RelaysimConfig
	logger  *slog.Logger
	trace   *logging.TraceLogger
	metrics *metrics.Registry
}

// loadApp reads configuration, applies the --log-level flag and opens
// the trace log under <root>/.relaysim when tracing is enabled.
func loadApp(cmd *cobra.Command) (*app, error) {
	root, _ := cmd.Flags().GetString("root")
	level, _ := cmd.Flags().GetString("log-level")

	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if level != "" {
		cfg.Logging.Level = level
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &app{
		root:    root,
		config:  cfg,
		logger:  logging.NewLogger(cfg.Logging.Level, cmd.ErrOrStderr()),
		trace:   logging.NewTraceLogger(store.LocalDir(root), cfg.Logging.Level),
		metrics: metrics.NewRegistry(),
	}, nil
}

// Close releases the trace log.
func (a *app) Close() {
	a.trace.Close()
}

// newCircuit creates an empty circuit wired to the app's logging,
// metrics and solver settings.
func (a *app) newCircuit() *circuit.Circuit {
	return circuit.New(
		circuit.WithLogger(a.logger),
		circuit.WithTrace(a.trace),
		circuit.WithMetrics(a.metrics),
		circuit.WithEngineConfig(propagation.Config{MaxIterations: a.config.Solver.MaxIterations}),
		circuit.WithClassifier(a.config.Classifier()),
	)
}

// openStore opens the SQLite schematic store for the project root.
func (a *app) openStore() (*store.SQLiteStore, error) {
	s, err := store.NewSQLiteStore(a.config.StorePath(a.root))
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}
	return s, nil
}

// loadDocument resolves the schematic a command operates on: the stored
// schematic named by --name, a YAML file argument, or stdin for "-".
func (a *app) loadDocument(cmd *cobra.Command, args []string) (*schematic.Document, error) {
	name, _ := cmd.Flags().GetString("name")

	switch {
	case name != "" && len(args) > 0:
		return nil, fmt.Errorf("pass either a schematic file or --name, not both")
	case name != "":
		s, err := a.openStore()
		if err != nil {
			return nil, err
		}
		defer s.Close()
		rec, err := s.Load(cmd.Context(), name)
		if err != nil {
			return nil, err
		}
		return rec.Document, nil
	case len(args) == 0:
		return nil, fmt.Errorf("a schematic file or --name is required")
	case args[0] == "-":
		data, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return nil, fmt.Errorf("reading stdin: %w", err)
		}
		return schematic.Parse(data)
	default:
		return schematic.LoadFile(args[0])
	}
}

// buildCircuit loads the schematic and replays it onto a fresh circuit.
func (a *app) buildCircuit(cmd *cobra.Command, args []string) (*circuit.Circuit, *schematic.Document, error) {
	doc, err := a.loadDocument(cmd, args)
	if err != nil {
		return nil, nil, err
	}
	c := a.newCircuit()
	if err := schematic.Apply(doc, c); err != nil {
		return nil, nil, err
	}
	a.logger.Debug("schematic applied", "name", doc.Name, "devices", len(doc.Devices), "wires", len(doc.Wires))
	return c, doc, nil
}

// addNameFlag registers --name for commands that accept stored schematics.
func addNameFlag(cmd *cobra.Command) {
	cmd.Flags().String("name", "", "Use the stored schematic with this name instead of a file")
}
