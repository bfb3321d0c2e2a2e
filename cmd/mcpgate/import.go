package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mcpgate/mcpgate/pkg/output"
	"github.com/mcpgate/mcpgate/pkg/specfile"
	"github.com/mcpgate/mcpgate/pkg/store"
)

var importCmd = &cobra.Command{
	Use:   "import <mcp.json>",
	Short: "Import servers from a desktop-client mcp.json",
	Long: `Reads a Claude-Desktop-style mcp.json (comments and trailing commas
are tolerated) and registers its mcpServers entries in the gateway store.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runImport(cmd, args[0])
	},
}

func runImport(cmd *cobra.Command, path string) error {
	printer := output.New()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	specs, err := specfile.ImportMCPJSON(path)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	st, err := store.OpenSQLite(ctx, cfg.StorePath)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer st.Close()

	for _, spec := range specs {
		if err := st.Upsert(ctx, spec); err != nil {
			return fmt.Errorf("saving server %q: %w", spec.ID, err)
		}
		printer.Info("imported server", "id", spec.ID, "transport", spec.Type)
	}

	printer.Info("import complete", "servers", len(specs), "store", cfg.StorePath)
	return nil
}
