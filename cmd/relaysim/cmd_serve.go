package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"

	"github.com/nvandessel/relaysim/internal/visualization"
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve [schematic.yaml | -]",
		Short: "Serve a live circuit over HTTP",
		Long: `Load a schematic and serve it until interrupted.

Endpoints:
  GET  /                          circuit as DOT
  GET  /api/state                 resolved state as JSON
  POST /api/power?prefix=PS&on=1  switch a power supply
  GET  /metrics                   Prometheus metrics`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			addr, _ := cmd.Flags().GetString("addr")

			a, err := loadApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			c, doc, err := a.buildCircuit(cmd, args)
			if err != nil {
				return err
			}

			srv := visualization.NewServer(c, a.metrics)
			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			sigCh := make(chan os.Signal, 1)
			notifySignals(sigCh)
			defer signal.Stop(sigCh)
			go func() {
				select {
				case <-sigCh:
					cancel()
				case <-ctx.Done():
				}
			}()

			errCh := make(chan error, 1)
			go func() { errCh <- srv.ListenAndServe(ctx, addr) }()

			deadline := time.Now().Add(3 * time.Second)
			for srv.Addr() == "" && time.Now().Before(deadline) {
				select {
				case err := <-errCh:
					return fmt.Errorf("server error: %w", err)
				case <-time.After(10 * time.Millisecond):
				}
			}
			if srv.Addr() == "" {
				return fmt.Errorf("server failed to start")
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Serving %s at http://%s\n", doc.Name, srv.Addr())
			fmt.Fprintf(cmd.OutOrStdout(), "Press Ctrl-C to stop.\n")
			a.logger.Info("server started", "addr", srv.Addr(), "schematic", doc.Name)

			if err := <-errCh; err != nil {
				return fmt.Errorf("server error: %w", err)
			}
			return nil
		},
	}

	addNameFlag(cmd)
	cmd.Flags().String("addr", "localhost:8080", "Listen address (localhost:0 picks a free port)")

	return cmd
}
