package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/agent-brain/agentbrain/internal/output"
)

func newQueryCmd() *cobra.Command {
	var mode string
	var topK int
	var threshold float64
	var alpha float64
	var languages string
	var sourceTypes string
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "query <text>",
		Short: "Run a retrieval query against the running instance",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQuery(cmd, args[0], mode, topK, threshold, alpha, splitCSV(languages), splitCSV(sourceTypes), asJSON)
		},
	}
	cmd.Flags().StringVar(&mode, "mode", "hybrid", "retrieval mode: vector, bm25, hybrid, graph, multi")
	cmd.Flags().IntVar(&topK, "top-k", 5, "number of results to return")
	cmd.Flags().Float64Var(&threshold, "threshold", 0.3, "minimum score to include a result")
	cmd.Flags().Float64Var(&alpha, "alpha", 0.5, "hybrid mode's vector-vs-keyword weighting")
	cmd.Flags().StringVar(&languages, "languages", "", "comma-separated language filter")
	cmd.Flags().StringVar(&sourceTypes, "source-types", "", "comma-separated source type filter")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print raw JSON results")
	return cmd
}

func runQuery(cmd *cobra.Command, text, mode string, topK int, threshold, alpha float64, languages, sourceTypes []string, asJSON bool) error {
	out := output.New(cmd.OutOrStdout())
	ctx := cmd.Context()

	state, err := resolveRunning(ctx, ".")
	if err != nil {
		return err
	}

	// query.Request carries no json tags, so keys must match its Go field
	// names case-insensitively (no underscores) for encoding/json to bind them.
	req := map[string]any{
		"query":       text,
		"mode":        mode,
		"topk":        topK,
		"threshold":   threshold,
		"alpha":       alpha,
		"languages":   languages,
		"sourcetypes": sourceTypes,
	}
	var results []struct {
		ChunkID      string  `json:"chunk_id"`
		Text         string  `json:"text"`
		Source       string  `json:"source"`
		Score        float64 `json:"score"`
		VectorScore  float64 `json:"vector_score,omitempty"`
		KeywordScore float64 `json:"keyword_score,omitempty"`
	}
	if err := apiCall(ctx, state.BaseURL, "POST", "/query", req, &results); err != nil {
		return err
	}

	if asJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(results)
	}

	if len(results) == 0 {
		out.Status("", "no results")
		return nil
	}
	for i, r := range results {
		out.Status("", fmt.Sprintf("%d. [%.3f] %s", i+1, r.Score, r.Source))
		out.Status("", "   "+truncate(r.Text, 160))
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
