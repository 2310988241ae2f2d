package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInvoke_SendsBlockingRunRequest(t *testing.T) {
	var gotAuth, gotPath string
	var gotBody map[string]any

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotPath = r.URL.Path
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"workflow_run_id":"run-1","data":{"status":"succeeded","outputs":{"text":"Merhaba!","score":8}}}`))
	}))
	defer srv.Close()

	c := NewClient(Keys{FlowWelcoming: "app-welcome"}, WithBaseURL(srv.URL+"/v1"))
	out, err := c.Invoke(context.Background(), FlowWelcoming, map[string]any{"topic": "İlk Yardım", "name": "Ayşe"}, "STU_1", "")
	require.NoError(t, err)

	assert.Equal(t, "Bearer app-welcome", gotAuth)
	assert.Equal(t, "/v1/workflows/run", gotPath)
	assert.Equal(t, "blocking", gotBody["response_mode"])
	assert.Equal(t, "STU_1", gotBody["user"])
	assert.NotContains(t, gotBody, "conversation_id")
	inputs, ok := gotBody["inputs"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "Ayşe", inputs["name"])

	assert.Equal(t, "Merhaba!", out.Text)
	assert.Equal(t, float64(8), out.Extra["score"])
	assert.NotContains(t, out.Extra, "text")
}

func TestInvoke_SendsConversationID(t *testing.T) {
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		_, _ = w.Write([]byte(`{"data":{"outputs":{"text":"ok"}}}`))
	}))
	defer srv.Close()

	c := NewClient(Keys{FlowQuestion: "k"}, WithBaseURL(srv.URL))
	_, err := c.Invoke(context.Background(), FlowQuestion, nil, "u", "conv-9")
	require.NoError(t, err)
	assert.Equal(t, "conv-9", gotBody["conversation_id"])
}

func TestInvoke_NonSuccessStatus(t *testing.T) {
	tests := []struct {
		name        string
		status      int
		body        string
		wantMessage string
	}{
		{"engine message", http.StatusBadRequest, `{"code":"invalid_param","message":"inputs.topic is required"}`, "inputs.topic is required"},
		{"status text fallback", http.StatusBadGateway, `<html>bad gateway</html>`, "Bad Gateway"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			c := NewClient(Keys{FlowAnswer: "k"}, WithBaseURL(srv.URL))
			_, err := c.Invoke(context.Background(), FlowAnswer, map[string]any{}, "u", "")

			var gwErr *GatewayError
			require.True(t, errors.As(err, &gwErr), "expected GatewayError, got %v", err)
			assert.Equal(t, FlowAnswer, gwErr.Flow)
			assert.Equal(t, tt.status, gwErr.StatusCode)
			assert.Equal(t, tt.wantMessage, gwErr.Message)
			assert.Contains(t, err.Error(), tt.wantMessage)
		})
	}
}

func TestInvoke_FailedRun(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data":{"status":"failed","outputs":null,"error":"node llm timed out"}}`))
	}))
	defer srv.Close()

	c := NewClient(Keys{FlowSeparation: "k"}, WithBaseURL(srv.URL))
	_, err := c.Invoke(context.Background(), FlowSeparation, nil, "u", "")

	var gwErr *GatewayError
	require.ErrorAs(t, err, &gwErr)
	assert.Equal(t, "node llm timed out", gwErr.Message)
}

func TestInvoke_UndecodableBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`not json`))
	}))
	defer srv.Close()

	c := NewClient(Keys{FlowTopicInit: "k"}, WithBaseURL(srv.URL))
	_, err := c.Invoke(context.Background(), FlowTopicInit, nil, "u", "")
	assert.True(t, IsGatewayError(err), "expected GatewayError, got %v", err)
}

func TestInvoke_TransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	c := NewClient(Keys{FlowReLesson: "k"}, WithBaseURL(url), WithTimeout(time.Second))
	_, err := c.Invoke(context.Background(), FlowReLesson, nil, "u", "")

	var gwErr *GatewayError
	require.ErrorAs(t, err, &gwErr)
	assert.Zero(t, gwErr.StatusCode)
	assert.NotNil(t, errors.Unwrap(gwErr))
}

func TestInvoke_DoesNotRetry(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := NewClient(Keys{FlowQuestion: "k"}, WithBaseURL(srv.URL))
	_, err := c.Invoke(context.Background(), FlowQuestion, nil, "u", "")
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestInvoke_MissingKeyUsesSubstitute(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("no HTTP call expected for unconfigured flow")
	}))
	defer srv.Close()

	c := NewClient(Keys{FlowWelcoming: "   "}, WithBaseURL(srv.URL))
	before := testutil.ToFloat64(c.metrics.RequestsTotal.WithLabelValues(string(FlowWelcoming), OutcomeSubstitute))

	out, err := c.Invoke(context.Background(), FlowWelcoming, map[string]any{"topic": "İlk Yardım", "name": "Ayşe"}, "u", "")
	require.NoError(t, err)
	assert.Contains(t, out.Text, "Ayşe")
	assert.Contains(t, out.Text, "İlk Yardım")

	after := testutil.ToFloat64(c.metrics.RequestsTotal.WithLabelValues(string(FlowWelcoming), OutcomeSubstitute))
	assert.Equal(t, before+1, after)
}

func TestInvoke_EveryFlowWorksOffline(t *testing.T) {
	c := NewClient(nil)
	for _, f := range AllFlows() {
		out, err := c.Invoke(context.Background(), f, map[string]any{"topic": "T", "name": "N", "answer": "cevap"}, "u", "")
		require.NoError(t, err, f)
		assert.NotEmpty(t, out.Text, f)
		assert.NotNil(t, out.Extra, f)
	}
}

func TestInvoke_UnknownFlow(t *testing.T) {
	c := NewClient(nil)
	_, err := c.Invoke(context.Background(), Flow("nope"), nil, "u", "")
	assert.True(t, IsGatewayError(err))
}

func TestSubstitute_AnswerScore(t *testing.T) {
	blank := Substitute(FlowAnswer, map[string]any{"answer": "  "})
	assert.Equal(t, substituteLowScore, blank.Extra["score"])
	assert.True(t, strings.HasSuffix(blank.Text, "Puanın: 2"))

	given := Substitute(FlowAnswer, map[string]any{"answer": "Hava yolunu açarım"})
	assert.Equal(t, substituteHighScore, given.Extra["score"])
	assert.True(t, strings.HasSuffix(given.Text, "Puanın: 7"))
}

func TestSubstitute_SeparationHasTopicsBlock(t *testing.T) {
	out := Substitute(FlowSeparation, map[string]any{"topic": "Temel İlk Yardım Eğitimi"})
	assert.Contains(t, out.Text, "<topics>")
	assert.Contains(t, out.Text, "</topics>")
}

func TestKeysValidate(t *testing.T) {
	full := Keys{}
	for _, f := range AllFlows() {
		full[f] = "key-" + string(f)
	}
	assert.NoError(t, full.Validate(true))
	assert.Empty(t, full.Missing())

	partial := Keys{FlowWelcoming: "k"}
	assert.NoError(t, partial.Validate(false))
	err := partial.Validate(true)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "re-lesson")
	assert.NotContains(t, err.Error(), "welcoming")
	assert.Len(t, partial.Missing(), len(AllFlows())-1)
}
