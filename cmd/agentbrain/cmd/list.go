package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/agent-brain/agentbrain/internal/apperrors"
	"github.com/agent-brain/agentbrain/internal/output"
	"github.com/agent-brain/agentbrain/internal/rendezvous"
)

func newListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List every agent-brain instance running on this machine",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runList(cmd)
		},
	}
}

func runList(cmd *cobra.Command) error {
	out := output.New(cmd.OutOrStdout())
	ctx := cmd.Context()

	instances, err := rendezvous.ListRegisteredInstances()
	if err != nil {
		return apperrors.Wrap(apperrors.KindInternal, err, "read instance registry")
	}
	if len(instances) == 0 {
		out.Status("", "no known instances")
		return nil
	}

	for _, state := range instances {
		alive := rendezvous.ProbeHealth(ctx, state.BaseURL, probeTimeout)
		status := "stale"
		if alive {
			status = "running"
		}
		out.Status("", fmt.Sprintf("%s  %-8s %-8s %s", state.InstanceID, state.Mode, status, state.ProjectRoot))
	}
	return nil
}
