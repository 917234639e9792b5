package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/54b3r/pantryai-go/internal/format"
	"github.com/54b3r/pantryai-go/internal/index"
	"github.com/54b3r/pantryai-go/internal/pipeline"
	"github.com/54b3r/pantryai-go/internal/prompts"
)

// ---------------------------------------------------------------------------
// fakes and harness
// ---------------------------------------------------------------------------

// fakeRunner is a test double for the queryRunner interface.
type fakeRunner struct {
	// qs is returned on success.
	qs *pipeline.QueryState
	// err forces a pipeline failure.
	err error
	// gotMode records the mode of the last run.
	gotMode prompts.Mode
	// gotTenant records the tenant of the last run.
	gotTenant string
}

func (f *fakeRunner) Run(_ context.Context, query, tenantID string, mode prompts.Mode) (*pipeline.QueryState, error) {
	f.gotMode = mode
	f.gotTenant = tenantID
	if f.err != nil {
		return nil, f.err
	}
	if f.qs != nil {
		return f.qs, nil
	}
	return &pipeline.QueryState{Query: query, TenantID: tenantID, Mode: mode}, nil
}

// fakeRefresher is a test double for the indexRefresher interface.
type fakeRefresher struct {
	result    index.RefreshResult
	gotTenant string
}

func (f *fakeRefresher) Refresh(_ context.Context, tenantID string) index.RefreshResult {
	f.gotTenant = tenantID
	return f.result
}

// newTestServer builds a minimal *Server for handler tests.
func newTestServer() *Server {
	s, err := New(&fakeRunner{}, &fakeRefresher{}, &Config{
		Registry: prometheus.NewRegistry(),
	})
	if err != nil {
		panic(err)
	}
	return s
}

// postJSON runs a POST request with the given JSON body through the server's
// full handler chain and returns the recorder.
func postJSON(t *testing.T, s *Server, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.httpServer.Handler.ServeHTTP(w, req)
	return w
}

// ---------------------------------------------------------------------------
// POST /api/rag — free-text answers
// ---------------------------------------------------------------------------

func TestHandleRag_Success(t *testing.T) {
	t.Parallel()

	runner := &fakeRunner{qs: &pipeline.QueryState{Response: "You have 5kg of rice."}}
	s, err := New(runner, &fakeRefresher{}, &Config{Registry: prometheus.NewRegistry()})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	w := postJSON(t, s, "/api/rag", `{"query": "how much rice?", "tenant_id": "tenant-a"}`)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d — body: %s", w.Code, w.Body.String())
	}
	var resp textAnswerResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Answer != "You have 5kg of rice." {
		t.Errorf("answer: got %q", resp.Answer)
	}
	if runner.gotMode != prompts.ModeText {
		t.Errorf("mode: want %s, got %s", prompts.ModeText, runner.gotMode)
	}
	if runner.gotTenant != "tenant-a" {
		t.Errorf("tenant: got %q", runner.gotTenant)
	}
}

func TestHandleRag_PipelineErrorReturns500(t *testing.T) {
	t.Parallel()

	runner := &fakeRunner{err: errors.New("model backend down")}
	s, err := New(runner, &fakeRefresher{}, &Config{Registry: prometheus.NewRegistry()})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	w := postJSON(t, s, "/api/rag", `{"query": "q", "tenant_id": "tenant-a"}`)

	if w.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", w.Code)
	}
	var resp errorResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Error == "" {
		t.Error("expected non-empty error message")
	}
}

func TestQueryEndpoints_MissingFieldsReturn400(t *testing.T) {
	t.Parallel()

	s := newTestServer()

	cases := []struct {
		name string
		path string
		body string
	}{
		{"rag/missing query", "/api/rag", `{"tenant_id": "t"}`},
		{"rag/missing tenant", "/api/rag", `{"query": "q"}`},
		{"rag/empty body", "/api/rag", `{}`},
		{"rag/invalid json", "/api/rag", `{not json`},
		{"items/missing query", "/api/rag/items", `{"tenant_id": "t"}`},
		{"items/missing tenant", "/api/rag/items", `{"query": "q"}`},
		{"suggestions/missing query", "/api/rag/suggestions", `{"tenant_id": "t"}`},
		{"suggestions/missing tenant", "/api/rag/suggestions", `{"query": "q"}`},
		{"refresh/missing tenant", "/api/index/refresh", `{}`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			w := postJSON(t, s, tc.path, tc.body)
			if w.Code != http.StatusBadRequest {
				t.Errorf("expected 400, got %d — body: %s", w.Code, w.Body.String())
			}
		})
	}
}

// ---------------------------------------------------------------------------
// POST /api/rag/items — recipe name lists
// ---------------------------------------------------------------------------

func TestHandleRagItems_Success(t *testing.T) {
	t.Parallel()

	runner := &fakeRunner{qs: &pipeline.QueryState{
		RecipeList: []string{"Rice and Curry", "Kottu Roti"},
	}}
	s, err := New(runner, &fakeRefresher{}, &Config{Registry: prometheus.NewRegistry()})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	w := postJSON(t, s, "/api/rag/items", `{"query": "lunch", "tenant_id": "tenant-a"}`)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var resp listAnswerResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Answer) != 2 || resp.Answer[0] != "Rice and Curry" {
		t.Errorf("answer: got %v", resp.Answer)
	}
	if runner.gotMode != prompts.ModeRecipeList {
		t.Errorf("mode: want %s, got %s", prompts.ModeRecipeList, runner.gotMode)
	}
}

func TestHandleRagItems_PipelineErrorDegradesTo200(t *testing.T) {
	t.Parallel()

	runner := &fakeRunner{err: errors.New("model backend down")}
	s, err := New(runner, &fakeRefresher{}, &Config{Registry: prometheus.NewRegistry()})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	w := postJSON(t, s, "/api/rag/items", `{"query": "lunch", "tenant_id": "tenant-a"}`)

	if w.Code != http.StatusOK {
		t.Fatalf("failures must degrade to 200, got %d", w.Code)
	}
	var resp listAnswerResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Answer) != 1 || !strings.HasPrefix(resp.Answer[0], "Error generating recipes:") {
		t.Errorf("expected single error entry, got %v", resp.Answer)
	}
}

func TestHandleRagItems_EmptyListNotNull(t *testing.T) {
	t.Parallel()

	s := newTestServer()

	w := postJSON(t, s, "/api/rag/items", `{"query": "lunch", "tenant_id": "tenant-a"}`)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), `"answer":[]`) {
		t.Errorf("empty list must serialize as [], got %s", w.Body.String())
	}
}

// ---------------------------------------------------------------------------
// POST /api/rag/suggestions — structured suggestions
// ---------------------------------------------------------------------------

func TestHandleRagSuggestions_Success(t *testing.T) {
	t.Parallel()

	runner := &fakeRunner{qs: &pipeline.QueryState{
		Suggestions: []format.Suggestion{
			{RecipeName: "Fried Rice", Additions: []string{"soy sauce"}, BaseIngredients: []string{"rice"}},
		},
	}}
	s, err := New(runner, &fakeRefresher{}, &Config{Registry: prometheus.NewRegistry()})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	w := postJSON(t, s, "/api/rag/suggestions", `{"query": "new item", "tenant_id": "tenant-a"}`)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var resp struct {
		Suggestions []format.Suggestion `json:"suggestions"`
	}
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Suggestions) != 1 || resp.Suggestions[0].RecipeName != "Fried Rice" {
		t.Errorf("suggestions: got %+v", resp.Suggestions)
	}
	if runner.gotMode != prompts.ModeStructured {
		t.Errorf("mode: want %s, got %s", prompts.ModeStructured, runner.gotMode)
	}
}

func TestHandleRagSuggestions_PipelineErrorDegradesTo200(t *testing.T) {
	t.Parallel()

	runner := &fakeRunner{err: errors.New("model backend down")}
	s, err := New(runner, &fakeRefresher{}, &Config{Registry: prometheus.NewRegistry()})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	w := postJSON(t, s, "/api/rag/suggestions", `{"query": "new item", "tenant_id": "tenant-a"}`)

	if w.Code != http.StatusOK {
		t.Fatalf("failures must degrade to 200, got %d", w.Code)
	}
	var resp struct {
		Suggestions []format.Suggestion `json:"suggestions"`
	}
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Suggestions) != 1 || resp.Suggestions[0].Error == "" {
		t.Errorf("expected single error-marker suggestion, got %+v", resp.Suggestions)
	}
}

// ---------------------------------------------------------------------------
// POST /api/index/refresh
// ---------------------------------------------------------------------------

func TestHandleRefresh_Success(t *testing.T) {
	t.Parallel()

	refresher := &fakeRefresher{result: index.RefreshResult{
		Status:        index.RefreshSuccess,
		Message:       "Index refreshed successfully",
		DocumentCount: 7,
	}}
	s, err := New(&fakeRunner{}, refresher, &Config{Registry: prometheus.NewRegistry()})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	w := postJSON(t, s, "/api/index/refresh", `{"tenant_id": "tenant-a"}`)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var resp index.RefreshResult
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Status != index.RefreshSuccess || resp.DocumentCount != 7 {
		t.Errorf("result: %+v", resp)
	}
	if refresher.gotTenant != "tenant-a" {
		t.Errorf("tenant: got %q", refresher.gotTenant)
	}
}

func TestHandleRefresh_BuildFailureStillReturns200(t *testing.T) {
	t.Parallel()

	refresher := &fakeRefresher{result: index.RefreshResult{
		Status:  index.RefreshError,
		Message: "Failed to refresh index: fetch failed",
	}}
	s, err := New(&fakeRunner{}, refresher, &Config{Registry: prometheus.NewRegistry()})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	w := postJSON(t, s, "/api/index/refresh", `{"tenant_id": "tenant-a"}`)

	if w.Code != http.StatusOK {
		t.Fatalf("refresh failures must still return 200, got %d", w.Code)
	}
	var resp index.RefreshResult
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Status != index.RefreshError || resp.DocumentCount != 0 {
		t.Errorf("result: %+v", resp)
	}
}

// ---------------------------------------------------------------------------
// routing and auth wiring
// ---------------------------------------------------------------------------

func TestRouting_QueryEndpointsRequireAuthWhenConfigured(t *testing.T) {
	t.Parallel()

	s, err := New(&fakeRunner{}, &fakeRefresher{}, &Config{
		APIKey:   "secret",
		Registry: prometheus.NewRegistry(),
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	// No token — protected endpoints reject.
	w := postJSON(t, s, "/api/rag", `{"query": "q", "tenant_id": "t"}`)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("unauthenticated /api/rag: expected 401, got %d", w.Code)
	}

	// Health stays open for probes.
	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	hw := httptest.NewRecorder()
	s.httpServer.Handler.ServeHTTP(hw, req)
	if hw.Code != http.StatusOK {
		t.Errorf("/api/health should not require auth, got %d", hw.Code)
	}

	// With the token the request goes through.
	areq := httptest.NewRequest(http.MethodPost, "/api/rag", bytes.NewBufferString(`{"query": "q", "tenant_id": "t"}`))
	areq.Header.Set("Authorization", "Bearer secret")
	aw := httptest.NewRecorder()
	s.httpServer.Handler.ServeHTTP(aw, areq)
	if aw.Code != http.StatusOK {
		t.Errorf("authenticated /api/rag: expected 200, got %d — body: %s", aw.Code, aw.Body.String())
	}
}

func TestRouting_MethodNotAllowed(t *testing.T) {
	t.Parallel()

	s := newTestServer()

	req := httptest.NewRequest(http.MethodGet, "/api/rag", nil)
	w := httptest.NewRecorder()
	s.httpServer.Handler.ServeHTTP(w, req)

	if w.Code != http.StatusMethodNotAllowed {
		t.Errorf("GET /api/rag: expected 405, got %d", w.Code)
	}
}

func TestNew_Validation(t *testing.T) {
	t.Parallel()

	if _, err := New(nil, &fakeRefresher{}, nil); err == nil {
		t.Error("nil runner should be rejected")
	}
	if _, err := New(&fakeRunner{}, nil, nil); err == nil {
		t.Error("nil refresher should be rejected")
	}
}
