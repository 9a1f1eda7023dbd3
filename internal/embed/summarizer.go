package embed

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Summarizer produces a short contextual gloss for a chunk, paired with
// Embedder for the embed+summarize capability set.
type Summarizer interface {
	Summarize(ctx context.Context, content string) (string, error)
	Available(ctx context.Context) bool
	Close() error
}

// OllamaSummarizer calls Ollama's /api/generate endpoint with a short,
// fixed prompt, ported from OllamaEmbedder's HTTP client shape but talking
// to the generation endpoint instead of /api/embed.
type OllamaSummarizer struct {
	client *http.Client
	host   string
	model  string
}

var _ Summarizer = (*OllamaSummarizer)(nil)

// NewOllamaSummarizer builds a summarizer against host (default
// DefaultOllamaHost) using model for generation.
func NewOllamaSummarizer(host, model string) *OllamaSummarizer {
	if host == "" {
		host = DefaultOllamaHost
	}
	return &OllamaSummarizer{
		client: &http.Client{Timeout: 30 * time.Second},
		host:   host,
		model:  model,
	}
}

type ollamaGenerateRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	Stream bool   `json:"stream"`
}

type ollamaGenerateResponse struct {
	Response string `json:"response"`
}

// Summarize returns a one-sentence gloss of content, truncated to a single
// line. Failures are the caller's to treat as skip-and-warn; this method
// itself does not retry.
func (s *OllamaSummarizer) Summarize(ctx context.Context, content string) (string, error) {
	prompt := fmt.Sprintf(
		"Summarize the following code or document excerpt in one short sentence, no preamble:\n\n%s",
		truncateForPrompt(content, 4000),
	)
	body, err := json.Marshal(ollamaGenerateRequest{Model: s.model, Prompt: prompt, Stream: false})
	if err != nil {
		return "", fmt.Errorf("marshal summarize request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.host+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("summarize request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("summarize failed: status %d: %s", resp.StatusCode, string(data))
	}

	var out ollamaGenerateResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode summarize response: %w", err)
	}
	return strings.TrimSpace(firstLine(out.Response)), nil
}

// Available probes /api/tags the same way OllamaEmbedder would, without
// pulling in its internal state.
func (s *OllamaSummarizer) Available(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.host+"/api/tags", nil)
	if err != nil {
		return false
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

func (s *OllamaSummarizer) Close() error {
	s.client.CloseIdleConnections()
	return nil
}

func truncateForPrompt(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}

func firstLine(s string) string {
	if idx := strings.IndexByte(s, '\n'); idx >= 0 {
		return s[:idx]
	}
	return s
}
