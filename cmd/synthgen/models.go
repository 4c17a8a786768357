package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/synthgen/internal/core"
)

// NewModelsCmd lists the model roster.
func NewModelsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "models",
		Short: "List available generator models",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tNAME\tINPUT\tROWS\t")
			def := a.registry.DefaultModel()
			for _, m := range a.registry.All() {
				id := m.ID
				if id == def {
					id += " *"
				}
				input := "theme"
				if m.Modality == core.ModalityFile {
					input = "csv file"
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%d-%d\t\n", id, m.Label, input, m.RowsMin, m.RowsMax)
			}
			return w.Flush()
		},
	}
}

// NewPromptsCmd prints sample themes.
func NewPromptsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "prompts",
		Short: "Show example themes for text models",
		Args:  cobra.NoArgs,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			for i, p := range core.ExamplePrompts {
				fmt.Fprintf(cmd.OutOrStdout(), "%d. %s\n", i+1, p)
			}
			return nil
		},
	}
}
