// Package cmd provides the CLI commands for Agent Brain.
package cmd

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/agent-brain/agentbrain/internal/apperrors"
	"github.com/agent-brain/agentbrain/pkg/version"
)

// NewRootCmd creates the root command for the agentbrain CLI.
func NewRootCmd() *cobra.Command {
	var debug bool

	root := &cobra.Command{
		Use:     "agentbrain",
		Short:   "Per-project local retrieval service for AI coding agents",
		Version: version.Version,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			level := slog.LevelInfo
			if debug {
				level = slog.LevelDebug
			}
			slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
		},
	}
	root.SetVersionTemplate("agentbrain version {{.Version}}\n")
	root.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")

	root.AddCommand(newInitCmd())
	root.AddCommand(newStartCmd())
	root.AddCommand(newStopCmd())
	root.AddCommand(newStatusCmd())
	root.AddCommand(newListCmd())
	root.AddCommand(newIndexCmd())
	root.AddCommand(newQueryCmd())
	root.AddCommand(newResetCmd())
	root.AddCommand(newJobsCmd())

	return root
}

// Execute runs the root command and returns the process exit code, mapping
// apperrors.Kind to the documented exit codes (0/2/3/4/5) when the returned
// error carries one, and 1 for anything else.
func Execute() int {
	cmd := NewRootCmd()
	err := cmd.Execute()
	if err == nil {
		return apperrors.ExitOK
	}
	fmt.Fprintln(os.Stderr, "error:", err.Error())
	var ae *apperrors.Error
	if errors.As(err, &ae) {
		return apperrors.ExitCode(ae.Kind)
	}
	return apperrors.ExitGeneralError
}
