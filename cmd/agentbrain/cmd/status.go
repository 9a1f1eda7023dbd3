package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/agent-brain/agentbrain/internal/health"
	"github.com/agent-brain/agentbrain/internal/output"
)

func newStatusCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Report the running instance's health",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(cmd, asJSON)
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the raw health snapshot as JSON")
	return cmd
}

func runStatus(cmd *cobra.Command, asJSON bool) error {
	out := output.New(cmd.OutOrStdout())
	ctx := cmd.Context()

	state, err := resolveRunning(ctx, ".")
	if err != nil {
		return err
	}

	var snap health.Snapshot
	if err := apiCall(ctx, state.BaseURL, "GET", "/health/status", nil, &snap); err != nil {
		return err
	}

	if asJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(snap)
	}

	out.Success(fmt.Sprintf("%s (%s)", snap.Status, snap.Mode))
	out.Status("", fmt.Sprintf("instance: %s", snap.InstanceID))
	out.Status("", fmt.Sprintf("base url: %s", snap.BaseURL))
	out.Status("", fmt.Sprintf("documents: %d", snap.DocumentCount))
	out.Status("", fmt.Sprintf("queue: %d pending, progress %.0f%%", snap.Queue.Pending, snap.Queue.Progress*100))
	if snap.Graph.Enabled {
		out.Status("", fmt.Sprintf("graph: %d entities, %d relationships (%s)",
			snap.Graph.EntityCount, snap.Graph.RelationshipCount, snap.Graph.StoreType))
	}
	return nil
}
