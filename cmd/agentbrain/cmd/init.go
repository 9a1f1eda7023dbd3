package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/agent-brain/agentbrain/internal/apperrors"
	"github.com/agent-brain/agentbrain/internal/config"
	"github.com/agent-brain/agentbrain/internal/output"
	"github.com/agent-brain/agentbrain/internal/rootresolve"
	"github.com/agent-brain/agentbrain/internal/statepaths"
)

func newInitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Create the state directory and default configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInit(cmd)
		},
	}
}

func runInit(cmd *cobra.Command) error {
	out := output.New(cmd.OutOrStdout())

	root, err := rootresolve.Resolve(cmd.Context(), ".")
	if err != nil {
		return apperrors.Wrap(apperrors.KindInvalidArgument, err, "resolve project root")
	}
	paths := statepaths.For(root)
	if err := paths.MkdirAll(); err != nil {
		return apperrors.Wrap(apperrors.KindInternal, err, "create state directory")
	}

	cfg := config.NewConfig()
	if err := cfg.WriteYAML(paths.ConfigFile); err != nil {
		return apperrors.Wrap(apperrors.KindInternal, err, "write default config")
	}

	out.Success(fmt.Sprintf("initialized agent-brain state in %s", paths.StateDir))
	out.Status("", fmt.Sprintf("config: %s", paths.ConfigFile))
	return nil
}
