package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/agent-brain/agentbrain/internal/output"
)

func newIndexCmd() *cobra.Command {
	var includeCode bool
	var languages string
	var exclude string
	var rebuild bool

	cmd := &cobra.Command{
		Use:   "index <path>",
		Short: "Submit a folder for ingestion",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runIndex(cmd, args[0], includeCode, splitCSV(languages), splitCSV(exclude), rebuild)
		},
	}
	cmd.Flags().BoolVar(&includeCode, "include-code", true, "chunk source code with tree-sitter, not just docs")
	cmd.Flags().StringVar(&languages, "languages", "", "comma-separated language filter (e.g. go,python)")
	cmd.Flags().StringVar(&exclude, "exclude", "", "comma-separated glob patterns to skip")
	cmd.Flags().BoolVar(&rebuild, "rebuild", false, "re-ingest even if the folder was already indexed")
	return cmd
}

func runIndex(cmd *cobra.Command, folderPath string, includeCode bool, languages, exclude []string, rebuild bool) error {
	out := output.New(cmd.OutOrStdout())
	ctx := cmd.Context()

	state, err := resolveRunning(ctx, ".")
	if err != nil {
		return err
	}

	req := map[string]any{
		"folder_path":      folderPath,
		"include_code":     includeCode,
		"languages":        languages,
		"exclude_patterns": exclude,
		"rebuild":          rebuild,
	}
	var resp struct {
		JobID string `json:"job_id"`
	}
	if err := apiCall(ctx, state.BaseURL, "POST", "/index", req, &resp); err != nil {
		return err
	}

	out.Success(fmt.Sprintf("submitted job %s", resp.JobID))
	out.Status("", fmt.Sprintf("check progress with: agentbrain jobs %s --watch", resp.JobID))
	return nil
}

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
