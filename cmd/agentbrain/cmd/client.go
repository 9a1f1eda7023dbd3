package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/agent-brain/agentbrain/internal/apperrors"
	"github.com/agent-brain/agentbrain/internal/rendezvous"
	"github.com/agent-brain/agentbrain/internal/rootresolve"
	"github.com/agent-brain/agentbrain/internal/statepaths"
)

const probeTimeout = 2 * time.Second

// resolveRunning finds the project's state directory and verifies a running
// instance answers its health endpoint, the same trust contract
// rendezvous.RecoverStale applies before reusing a descriptor.
func resolveRunning(ctx context.Context, startPath string) (rendezvous.RuntimeState, error) {
	root, err := rootresolve.Resolve(ctx, startPath)
	if err != nil {
		return rendezvous.RuntimeState{}, apperrors.Wrap(apperrors.KindInvalidArgument, err, "resolve project root")
	}
	paths := statepaths.For(root)
	state, ok := rendezvous.ReadAndVerify(ctx, paths.RuntimeJSON, probeTimeout)
	if !ok {
		return rendezvous.RuntimeState{}, apperrors.New(apperrors.KindNotFound, "no running agent-brain instance for this project").
			WithSuggestion("run 'agentbrain start' first")
	}
	return state, nil
}

// apiCall issues an HTTP request against a running instance and decodes its
// JSON response into out (if non-nil). Non-2xx responses are translated
// into apperrors using the body's "kind" field.
func apiCall(ctx context.Context, baseURL, method, path string, body any, out any) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return apperrors.Wrap(apperrors.KindInvalidArgument, err, "encode request")
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, baseURL+path, reqBody)
	if err != nil {
		return apperrors.Wrap(apperrors.KindInvalidArgument, err, "build request")
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return apperrors.Wrap(apperrors.KindBackendUnavailable, err, "call agent-brain instance")
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		var errBody struct {
			Error string `json:"error"`
			Kind  string `json:"kind"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&errBody)
		if errBody.Error == "" {
			errBody.Error = fmt.Sprintf("request failed with status %d", resp.StatusCode)
		}
		kind := apperrors.Kind(errBody.Kind)
		if kind == "" {
			kind = apperrors.KindInternal
		}
		return apperrors.New(kind, errBody.Error)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return apperrors.Wrap(apperrors.KindInternal, err, "decode response")
	}
	return nil
}
