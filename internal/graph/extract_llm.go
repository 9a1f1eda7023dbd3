package graph

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/agent-brain/agentbrain/internal/chunk"
)

// MaxTripletsPerChunk bounds the prose extractor's output per chunk.
const MaxTripletsPerChunk = 10

// llmPredicates is the out-of-vocabulary guard: any predicate the model
// returns outside this set is dropped rather than stored.
var llmPredicates = map[string]Predicate{
	string(PredImports):    PredImports,
	string(PredContains):   PredContains,
	string(PredExtends):    PredExtends,
	string(PredCalls):      PredCalls,
	string(PredUses):       PredUses,
	string(PredReferences): PredReferences,
	string(PredDefinedIn):  PredDefinedIn,
}

// LLMExtractor calls a generation endpoint with a constrained-predicate
// prompt to mine relationship triples out of prose (docs, comments) that
// the AST extractor can't see. Failures are non-fatal: skip and warn, so
// a failed call yields an empty Extraction, never an error that aborts
// ingestion.
type LLMExtractor struct {
	client *http.Client
	host   string
	model  string
	logger *slog.Logger
}

// NewLLMExtractor builds an extractor against an Ollama-compatible
// generation endpoint.
func NewLLMExtractor(host, model string, logger *slog.Logger) *LLMExtractor {
	if logger == nil {
		logger = slog.Default()
	}
	return &LLMExtractor{
		client: &http.Client{Timeout: 30 * time.Second},
		host:   host,
		model:  model,
		logger: logger,
	}
}

type llmTriplet struct {
	Subject   string `json:"subject"`
	Predicate string `json:"predicate"`
	Object    string `json:"object"`
}

type generateRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	Stream bool   `json:"stream"`
}

type generateResponse struct {
	Response string `json:"response"`
}

// Extract runs the bounded prose extraction for one chunk. On any failure
// (network, parse, empty) it logs a warning and returns an empty
// Extraction rather than propagating the error.
func (e *LLMExtractor) Extract(ctx context.Context, c *chunk.Chunk) *Extraction {
	prompt := buildExtractionPrompt(c.Content)

	body, err := json.Marshal(generateRequest{Model: e.model, Prompt: prompt, Stream: false})
	if err != nil {
		e.logger.Warn("graph llm extraction: marshal failed", slog.String("chunk_id", c.ID), slog.String("error", err.Error()))
		return &Extraction{}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.host+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return &Extraction{}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		e.logger.Warn("graph llm extraction: request failed", slog.String("chunk_id", c.ID), slog.String("error", err.Error()))
		return &Extraction{}
	}
	defer resp.Body.Close()

	var out generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		e.logger.Warn("graph llm extraction: decode failed", slog.String("chunk_id", c.ID), slog.String("error", err.Error()))
		return &Extraction{}
	}

	triplets := parseTriplets(out.Response)
	ext := &Extraction{}
	for i, t := range triplets {
		if i >= MaxTripletsPerChunk {
			e.logger.Debug("graph llm extraction: truncated", slog.String("chunk_id", c.ID), slog.Int("max", MaxTripletsPerChunk))
			break
		}
		pred, ok := llmPredicates[strings.ToLower(t.Predicate)]
		if !ok {
			continue // out-of-vocabulary predicate, dropped.
		}
		subj := NewEntity(t.Subject, EntityConcept)
		obj := NewEntity(t.Object, EntityConcept)
		ext.Entities = append(ext.Entities, subj, obj)
		ext.Triples = append(ext.Triples, &Triple{
			Subject:       subj.ID,
			Predicate:     pred,
			Object:        obj.ID,
			SourceChunkID: c.ID,
		})
	}
	return ext
}

func buildExtractionPrompt(content string) string {
	return fmt.Sprintf(`Extract up to %d subject-predicate-object relationship triples from the
text below. Valid predicates are exactly: imports, contains, extends, calls,
uses, references, defined_in. Respond with one JSON object per line, each
shaped {"subject": "...", "predicate": "...", "object": "..."}. No prose.

Text:
%s`, MaxTripletsPerChunk, truncateForPrompt(content, 4000))
}

func parseTriplets(response string) []llmTriplet {
	var out []llmTriplet
	for _, line := range strings.Split(response, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || line[0] != '{' {
			continue
		}
		var t llmTriplet
		if err := json.Unmarshal([]byte(line), &t); err != nil {
			continue
		}
		if t.Subject == "" || t.Object == "" || t.Predicate == "" {
			continue
		}
		out = append(out, t)
	}
	return out
}

func truncateForPrompt(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
