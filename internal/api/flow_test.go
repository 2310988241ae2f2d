//nolint:revive // "api" package name is intentionally concise for this layer.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/semihsipahi/climblearn-api/internal/domain"
	"github.com/semihsipahi/climblearn-api/internal/flow"
	"github.com/semihsipahi/climblearn-api/internal/interaction"
	"github.com/semihsipahi/climblearn-api/internal/store"
	"github.com/semihsipahi/climblearn-api/internal/workflow"
)

type testServer struct {
	router   chi.Router
	repo     *store.MemoryStore
	recorder *interaction.Recorder
}

// newTestServer wires the real orchestrator against an offline workflow
// client and an in-memory store.
func newTestServer(t *testing.T) *testServer {
	t.Helper()

	repo := store.NewMemory()
	recorder := interaction.NewRecorder(repo, nil)
	t.Cleanup(recorder.Close)
	orch := flow.New(repo, workflow.NewClient(nil), recorder)

	r := chi.NewRouter()
	NewFlowHandler(orch).RegisterRoutes(r)
	NewLogHandler(recorder).RegisterRoutes(r)
	NewHealthHandler(repo).RegisterHealth(r)

	return &testServer{router: r, repo: repo, recorder: recorder}
}

func (s *testServer) do(t *testing.T, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, bytes.NewBufferString(body))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func decodeResult(t *testing.T, w *httptest.ResponseRecorder) flow.Result {
	t.Helper()
	var res flow.Result
	require.NoError(t, json.NewDecoder(w.Body).Decode(&res))
	return res
}

func TestFlowStart(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodPost, "/api/ai/flow/start", `{"externalStudentId":"stu-1","studentName":"Ayşe"}`)
	require.Equal(t, http.StatusCreated, w.Code)

	res := decodeResult(t, w)
	assert.NotEmpty(t, res.SessionID)
	assert.Equal(t, domain.StageReadyCheck, res.Stage)
	assert.Contains(t, res.Text, "Ayşe")

	session, err := s.repo.GetSession(context.Background(), res.SessionID)
	require.NoError(t, err)
	assert.Equal(t, "stu-1", session.ExternalStudentID)
	assert.Equal(t, domain.StageReadyCheck, session.CurrentStage)
}

func TestFlowStartEmptyBody(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodPost, "/api/ai/flow/start", "")
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Contains(t, decodeResult(t, w).Text, flow.DefaultTopic)
}

func TestFlowStartMalformedBody(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodPost, "/api/ai/flow/start", `{"externalStudentId":`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestFlowNextErrors(t *testing.T) {
	s := newTestServer(t)

	tests := []struct {
		name string
		body string
		want int
	}{
		{"missing session id", `{"input":{"text":"evet"}}`, http.StatusBadRequest},
		{"blank session id", `{"sessionId":"   "}`, http.StatusBadRequest},
		{"unknown session", `{"sessionId":"does-not-exist"}`, http.StatusNotFound},
		{"input not an object", `{"sessionId":"x","input":[1,2]}`, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := s.do(t, http.MethodPost, "/api/ai/flow/next", tt.body)
			assert.Equal(t, tt.want, w.Code)

			var body map[string]string
			require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
			assert.NotEmpty(t, body["error"])
		})
	}
}

func TestFlowDialogueOverHTTP(t *testing.T) {
	s := newTestServer(t)

	start := decodeResult(t, s.do(t, http.MethodPost, "/api/ai/flow/start", `{"externalStudentId":"stu-2"}`))
	id := start.SessionID

	next := func(input string) flow.Result {
		t.Helper()
		w := s.do(t, http.MethodPost, "/api/ai/flow/next", `{"sessionId":"`+id+`","input":`+input+`}`)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		return decodeResult(t, w)
	}

	res := next(`"Evet, hazırım"`)
	assert.Equal(t, domain.StageTopicInit, res.Stage)

	res = next(`{}`)
	assert.Equal(t, domain.StageSeparation, res.Stage)

	res = next(`{}`)
	assert.Equal(t, domain.StageLearning, res.Stage)
	assert.Equal(t, "İlk Yardımın Temel İlkeleri", res.CurrentTopic)

	res = next(`{"answer":""}`)
	assert.Equal(t, flow.StatusRetry, res.Status)
	assert.Equal(t, flow.RetryMessage, res.Message)

	for i := 0; i < 5; i++ {
		res = next(`{"answer":"Olay yerinin güvenliği sağlanır."}`)
	}
	assert.Equal(t, domain.StageCompleted, res.Stage)
	assert.Equal(t, flow.StatusCompleted, res.Status)
	assert.Equal(t, flow.CompletionText, res.Text)

	w := s.do(t, http.MethodGet, "/api/ai?sessionId="+id, "")
	require.Equal(t, http.StatusOK, w.Code)
	var logs []domain.InteractionLog
	require.NoError(t, json.NewDecoder(w.Body).Decode(&logs))
	assert.NotEmpty(t, logs)
	for i := 1; i < len(logs); i++ {
		assert.False(t, logs[i].CreatedAt.Before(logs[i-1].CreatedAt), "logs must be ordered oldest first")
	}
}

func TestParseInput(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    map[string]any
		wantErr bool
	}{
		{"absent", "", map[string]any{}, false},
		{"null", "null", map[string]any{}, false},
		{"object", `{"answer":"x"}`, map[string]any{"answer": "x"}, false},
		{"string", `"evet"`, map[string]any{"text": "evet"}, false},
		{"number", `42`, nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseInput(json.RawMessage(tt.raw))
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestHealthReady(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodGet, "/health/ready", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, strings.Contains(w.Body.String(), `"healthy"`))
}

type downPinger struct{}

func (downPinger) Ping(context.Context) error { return context.DeadlineExceeded }

func TestHealthDegraded(t *testing.T) {
	w := httptest.NewRecorder()
	NewHealthHandler(downPinger{}).Ready(w, httptest.NewRequest(http.MethodGet, "/health/ready", nil))

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "degraded")
}
