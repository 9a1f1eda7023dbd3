package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/agent-brain/agentbrain/internal/output"
)

func newStopCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Stop the running instance for this project",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStop(cmd)
		},
	}
}

func runStop(cmd *cobra.Command) error {
	out := output.New(cmd.OutOrStdout())
	ctx := cmd.Context()

	state, err := resolveRunning(ctx, ".")
	if err != nil {
		return err
	}

	if err := apiCall(ctx, state.BaseURL, "POST", "/shutdown", nil, nil); err != nil {
		return err
	}

	out.Success(fmt.Sprintf("stop requested for instance %s", state.InstanceID))
	return nil
}
