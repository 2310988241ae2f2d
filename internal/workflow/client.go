package workflow

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

const (
	DefaultBaseURL = "https://api.dify.ai/v1"
	DefaultTimeout = 60 * time.Second
)

// Output is the structured result of one workflow run.
type Output struct {
	Text  string
	Extra map[string]any
}

// runRequest is the blocking /workflows/run request body.
type runRequest struct {
	Inputs         map[string]any `json:"inputs"`
	ResponseMode   string         `json:"response_mode"`
	User           string         `json:"user"`
	ConversationID string         `json:"conversation_id,omitempty"`
}

type runResponse struct {
	WorkflowRunID string `json:"workflow_run_id"`
	Data          *struct {
		Status  string         `json:"status"`
		Outputs map[string]any `json:"outputs"`
		Error   string         `json:"error"`
	} `json:"data"`
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Client invokes workflows on a Dify-compatible engine. Flows without a key
// are answered by Substitute.
type Client struct {
	baseURL    string
	keys       Keys
	httpClient *http.Client
	logger     *slog.Logger
	metrics    *Metrics
}

type Option func(*Client)

func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		c.baseURL = strings.TrimSpace(baseURL)
	}
}

func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithTimeout sets the per-request timeout of the default HTTP client.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		c.httpClient = &http.Client{Timeout: timeout}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// NewClient creates a Client for the given per-flow keys.
func NewClient(keys Keys, opts ...Option) *Client {
	copied := make(Keys, len(keys))
	for f, k := range keys {
		copied[f] = strings.TrimSpace(k)
	}
	c := &Client{
		baseURL:    DefaultBaseURL,
		keys:       copied,
		httpClient: &http.Client{Timeout: DefaultTimeout},
		logger:     slog.Default(),
		metrics:    NewMetrics(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	if c.httpClient == nil {
		c.httpClient = &http.Client{Timeout: DefaultTimeout}
	}
	return c
}

func runURL(baseURL string) string {
	base := strings.TrimRight(baseURL, "/")
	if base == "" {
		base = DefaultBaseURL
	}
	return base + "/workflows/run"
}

// Invoke runs flow once with inputs on behalf of user. conversationID is sent
// only when non-empty. No retries are attempted.
func (c *Client) Invoke(ctx context.Context, flow Flow, inputs map[string]any, user, conversationID string) (Output, error) {
	if !flow.Valid() {
		return Output{}, &GatewayError{Flow: flow, Message: "unknown flow"}
	}
	if inputs == nil {
		inputs = map[string]any{}
	}

	key := c.keys[flow]
	if key == "" {
		c.logger.Debug("no workflow key configured, using substitute", "flow", flow)
		c.metrics.RequestsTotal.WithLabelValues(string(flow), OutcomeSubstitute).Inc()
		return Substitute(flow, inputs), nil
	}

	start := time.Now()
	out, err := c.run(ctx, flow, key, inputs, user, conversationID)
	c.metrics.RequestDuration.WithLabelValues(string(flow)).Observe(time.Since(start).Seconds())
	if err != nil {
		c.metrics.RequestsTotal.WithLabelValues(string(flow), OutcomeError).Inc()
		c.logger.Error("workflow call failed", "flow", flow, "error", err)
		return Output{}, err
	}
	c.metrics.RequestsTotal.WithLabelValues(string(flow), OutcomeOK).Inc()
	return out, nil
}

func (c *Client) run(ctx context.Context, flow Flow, key string, inputs map[string]any, user, conversationID string) (Output, error) {
	body, err := json.Marshal(runRequest{
		Inputs:         inputs,
		ResponseMode:   "blocking",
		User:           user,
		ConversationID: conversationID,
	})
	if err != nil {
		return Output{}, &GatewayError{Flow: flow, Message: "marshal request", Err: err}
	}

	url := runURL(c.baseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return Output{}, &GatewayError{Flow: flow, Message: "create request", Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+key)

	res, err := c.httpClient.Do(req)
	if err != nil {
		return Output{}, &GatewayError{Flow: flow, Message: err.Error(), Err: err}
	}
	defer func() { _ = res.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if err != nil {
		return Output{}, &GatewayError{Flow: flow, StatusCode: res.StatusCode, Message: "read response body", Err: err}
	}

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		var payload errorResponse
		message := http.StatusText(res.StatusCode)
		if json.Unmarshal(raw, &payload) == nil && payload.Message != "" {
			message = payload.Message
		}
		return Output{}, &GatewayError{Flow: flow, StatusCode: res.StatusCode, Message: message}
	}

	var payload runResponse
	if err := json.Unmarshal(raw, &payload); err != nil {
		return Output{}, &GatewayError{Flow: flow, StatusCode: res.StatusCode, Message: "decode response", Err: err}
	}
	if payload.Data == nil {
		return Output{}, &GatewayError{Flow: flow, StatusCode: res.StatusCode, Message: "response has no data"}
	}
	if payload.Data.Status == "failed" {
		message := payload.Data.Error
		if message == "" {
			message = "workflow run failed"
		}
		return Output{}, &GatewayError{Flow: flow, StatusCode: res.StatusCode, Message: message}
	}

	return splitOutputs(payload.Data.Outputs), nil
}

// splitOutputs separates the text output from the remaining output fields.
func splitOutputs(outputs map[string]any) Output {
	out := Output{Extra: map[string]any{}}
	for k, v := range outputs {
		if k == "text" {
			if s, ok := v.(string); ok {
				out.Text = s
				continue
			}
		}
		out.Extra[k] = v
	}
	return out
}

// IsGatewayError reports whether err is or wraps a *GatewayError.
func IsGatewayError(err error) bool {
	var gwErr *GatewayError
	return errors.As(err, &gwErr)
}

