package cmd

import (
	"bufio"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/agent-brain/agentbrain/internal/apperrors"
	"github.com/agent-brain/agentbrain/internal/output"
)

func newResetCmd() *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Clear all indexed documents for this project",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReset(cmd, yes)
		},
	}
	cmd.Flags().BoolVar(&yes, "yes", false, "skip the confirmation prompt")
	return cmd
}

func runReset(cmd *cobra.Command, yes bool) error {
	out := output.New(cmd.OutOrStdout())
	ctx := cmd.Context()

	if !yes {
		out.Warning("this deletes every indexed document and graph entity for this project")
		fmt.Fprint(cmd.OutOrStdout(), "continue? [y/N] ")
		reader := bufio.NewReader(cmd.InOrStdin())
		line, _ := reader.ReadString('\n')
		if strings.ToLower(strings.TrimSpace(line)) != "y" {
			return apperrors.New(apperrors.KindCancelled, "reset cancelled")
		}
	}

	state, err := resolveRunning(ctx, ".")
	if err != nil {
		return err
	}
	if err := apiCall(ctx, state.BaseURL, "POST", "/reset", nil, nil); err != nil {
		return err
	}

	out.Success("index reset")
	return nil
}
