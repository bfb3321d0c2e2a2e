package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/mcpgate/mcpgate/pkg/output"
)

var configPath string

// Build metadata, stamped through -ldflags at release time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

var rootCmd = &cobra.Command{
	Use:   "mcpgate",
	Short: "MCP gateway daemon",
	Long: `Mcpgate is a gateway for MCP (Model Context Protocol) servers.

It maintains connections to stdio, SSE, and streamable HTTP servers,
supervises reconnects with exponential backoff, and exposes the
aggregated tool surface over a single gRPC facade.`,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to the gateway config file")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(importCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(chatCmd)
	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Show build information",
		Run: func(*cobra.Command, []string) {
			output.New().Banner(version)
			fmt.Printf("  commit %s, built %s\n", commit, date)
		},
	})
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
