package httpapi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/agent-brain/agentbrain/internal/embed"
	"github.com/agent-brain/agentbrain/internal/health"
	"github.com/agent-brain/agentbrain/internal/jobqueue"
	"github.com/agent-brain/agentbrain/internal/query"
	"github.com/agent-brain/agentbrain/internal/store"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	embedder := embed.NewStaticEmbedder()
	vectors, err := store.NewHNSWStore(store.DefaultVectorStoreConfig(embedder.Dimensions()))
	require.NoError(t, err)
	keyword, err := store.NewBM25IndexWithBackend("", store.DefaultBM25Config(), "")
	require.NoError(t, err)
	backend := store.NewEmbeddedBackend(vectors, keyword, embedder.Dimensions())

	q, err := jobqueue.Open(filepath.Join(t.TempDir(), "queue.log"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = q.Close() })

	agg := health.New(health.Identity{Mode: "project"}, backend, q, nil)
	qo := query.New(backend, embedder, nil, nil)

	return &Server{Health: agg, Queue: q, Query: qo, Backend: backend}
}

func TestHandleHealth_Returns200(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestHandleIndexSubmit_ReturnsJobID(t *testing.T) {
	s := newTestServer(t)
	body := strings.NewReader(`{"folder_path": ".", "include_code": true}`)
	req := httptest.NewRequest(http.MethodPost, "/index", body)
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	require.Equal(t, http.StatusAccepted, rec.Code)

	var resp indexResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.NotEmpty(t, resp.JobID)
}

func TestHandleJobGet_UnknownIDReturns404(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/jobs/does-not-exist", nil)
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleQuery_UnknownModeReturns400(t *testing.T) {
	s := newTestServer(t)
	body := strings.NewReader(`{"query": "x", "mode": "nonsense"}`)
	req := httptest.NewRequest(http.MethodPost, "/query", body)
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleJobCancel_UnknownIDReturns404(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodPost, "/jobs/does-not-exist/cancel", nil)
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleReset_ClearsBackend(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodPost, "/reset", nil)
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	require.Equal(t, http.StatusNoContent, rec.Code)

	count, err := s.Backend.GetCount(req.Context())
	require.NoError(t, err)
	require.Equal(t, 0, count)
}
