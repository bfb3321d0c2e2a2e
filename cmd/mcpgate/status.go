package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/mcpgate/mcpgate/pkg/output"
	"github.com/mcpgate/mcpgate/pkg/registry"
)

var (
	statusAddr  string
	statusToken string
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show server health from a running gateway",
	Long: `Queries the operational API of a running mcpgate daemon and renders
the per-server health view.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runStatus()
	},
}

func init() {
	statusCmd.Flags().StringVar(&statusAddr, "addr", "", "Ops API address (default from config, else http://localhost:8080)")
	statusCmd.Flags().StringVar(&statusToken, "token", "", "Bearer token for the ops API")
}

func runStatus() error {
	printer := output.New()

	addr := statusAddr
	token := statusToken
	if addr == "" || token == "" {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if addr == "" {
			addr = fmt.Sprintf("http://localhost:%d", cfg.API.Port)
		}
		if token == "" {
			token = cfg.API.Token
		}
	}

	req, err := http.NewRequest(http.MethodGet, addr+"/api/servers", nil)
	if err != nil {
		return err
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("reaching gateway at %s: %w", addr, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("gateway returned %s", resp.Status)
	}

	var healths []registry.Health
	if err := json.NewDecoder(resp.Body).Decode(&healths); err != nil {
		return fmt.Errorf("decoding health response: %w", err)
	}

	summaries := make([]output.ServerSummary, 0, len(healths))
	for _, h := range healths {
		state := h.State
		if h.Disabled {
			state = "DISABLED"
		}
		summaries = append(summaries, output.ServerSummary{
			ID:        h.ID,
			Name:      h.Name,
			Transport: h.Transport,
			State:     state,
			LatencyMs: h.ResponseTimeMs,
			Failures:  h.RetryStatus.ConsecutiveFailures,
			LastError: h.LastError,
		})
	}
	printer.Servers(summaries)
	return nil
}
