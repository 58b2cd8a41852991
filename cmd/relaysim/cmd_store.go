package main

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nvandessel/relaysim/internal/store"
)

func newSaveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "save <schematic.yaml | ->",
		Short: "Store a schematic under its name",
		Long: `Validate a schematic file and store it in the project database.
Saving under an existing name replaces the stored document.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			as, _ := cmd.Flags().GetString("as")

			a, err := loadApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			doc, err := a.loadDocument(cmd, args)
			if err != nil {
				return err
			}
			if as != "" {
				doc.Name = as
			}

			s, err := a.openStore()
			if err != nil {
				return err
			}
			defer s.Close()

			rec, err := s.Save(cmd.Context(), doc)
			if err != nil {
				return err
			}
			a.logger.Debug("schematic saved", "name", rec.Name, "id", rec.ID, "path", s.Path())

			if jsonOut {
				return json.NewEncoder(cmd.OutOrStdout()).Encode(map[string]string{
					"status": "saved",
					"id":     rec.ID,
					"name":   rec.Name,
				})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Saved %s (%s)\n", rec.Name, rec.ID)
			return nil
		},
	}
	cmd.Flags().String("as", "", "Store under this name instead of the document's name")
	return cmd
}

func newLoadCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "load <name>",
		Short: "Print a stored schematic as YAML",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")

			rec, err := withStore(cmd, func(s store.SchematicStore) (*store.Record, error) {
				return s.Load(cmd.Context(), args[0])
			})
			if err != nil {
				return notFoundHint(err)
			}

			if jsonOut {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(rec)
			}
			data, err := rec.Document.Marshal()
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}
}

func newListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List stored schematics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")

			var records []store.Record
			_, err := withStore(cmd, func(s store.SchematicStore) (*store.Record, error) {
				var err error
				records, err = s.List(cmd.Context())
				return nil, err
			})
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if jsonOut {
				summaries := make([]map[string]any, 0, len(records))
				for _, r := range records {
					summaries = append(summaries, summarize(r))
				}
				return json.NewEncoder(out).Encode(map[string]any{
					"schematics": summaries,
					"count":      len(summaries),
				})
			}

			if len(records) == 0 {
				fmt.Fprintln(out, "No schematics stored.")
				return nil
			}
			for _, r := range records {
				fmt.Fprintf(out, "%-24s %2d devices %3d wires  updated %s\n",
					r.Name, len(r.Document.Devices), len(r.Document.Wires), r.UpdatedAt.Format("2006-01-02 15:04"))
			}
			return nil
		},
	}
}

func newDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <name>",
		Short: "Remove a stored schematic",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")

			_, err := withStore(cmd, func(s store.SchematicStore) (*store.Record, error) {
				return nil, s.Delete(cmd.Context(), args[0])
			})
			if err != nil {
				return notFoundHint(err)
			}

			if jsonOut {
				return json.NewEncoder(cmd.OutOrStdout()).Encode(map[string]string{
					"status": "deleted",
					"name":   args[0],
				})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s\n", args[0])
			return nil
		},
	}
}

// withStore opens the project store, runs fn and closes the store.
func withStore(cmd *cobra.Command, fn func(store.SchematicStore) (*store.Record, error)) (*store.Record, error) {
	a, err := loadApp(cmd)
	if err != nil {
		return nil, err
	}
	defer a.Close()

	s, err := a.openStore()
	if err != nil {
		return nil, err
	}
	defer s.Close()

	return fn(s)
}

func summarize(r store.Record) map[string]any {
	return map[string]any{
		"id":         r.ID,
		"name":       r.Name,
		"devices":    len(r.Document.Devices),
		"wires":      len(r.Document.Wires),
		"created_at": r.CreatedAt,
		"updated_at": r.UpdatedAt,
	}
}

func notFoundHint(err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("%w (run 'relaysim list' to see stored schematics)", err)
	}
	return err
}
