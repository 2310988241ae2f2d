package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/semihsipahi/climblearn-api/internal/domain"
	"github.com/semihsipahi/climblearn-api/internal/flow"
)

// FlowService runs the learning dialogue.
type FlowService interface {
	Start(ctx context.Context, req flow.StartRequest) (*flow.Result, error)
	Step(ctx context.Context, sessionID string, input map[string]any) (*flow.Result, error)
}

// FlowHandler handles the learner-facing flow endpoints.
type FlowHandler struct {
	flows FlowService
}

// NewFlowHandler creates a new flow handler.
func NewFlowHandler(flows FlowService) *FlowHandler {
	return &FlowHandler{flows: flows}
}

// RegisterRoutes registers flow routes.
func (h *FlowHandler) RegisterRoutes(r chi.Router) {
	r.Post("/api/ai/flow/start", h.Start)
	r.Post("/api/ai/flow/next", h.Next)
}

type nextRequest struct {
	SessionID string          `json:"sessionId"`
	Input     json.RawMessage `json:"input"`
}

// Start creates a learning session and returns the welcoming message.
func (h *FlowHandler) Start(w http.ResponseWriter, r *http.Request) {
	var req flow.StartRequest
	if err := decodeJSON(w, r, &req); err != nil {
		WriteError(w, err)
		return
	}

	res, err := h.flows.Start(r.Context(), req)
	if err != nil {
		WriteError(w, err)
		return
	}

	slog.Info("Learning flow started", "session_id", res.SessionID, "stage", res.Stage)
	JSON(w, http.StatusCreated, res)
}

// Next submits the learner's input for the session's current stage.
func (h *FlowHandler) Next(w http.ResponseWriter, r *http.Request) {
	var req nextRequest
	if err := decodeJSON(w, r, &req); err != nil {
		WriteError(w, err)
		return
	}
	if strings.TrimSpace(req.SessionID) == "" {
		WriteError(w, domain.Required("sessionId"))
		return
	}

	input, err := parseInput(req.Input)
	if err != nil {
		WriteError(w, err)
		return
	}

	res, err := h.flows.Step(r.Context(), req.SessionID, input)
	if err != nil {
		WriteError(w, err)
		return
	}
	JSON(w, http.StatusOK, res)
}

// parseInput accepts an object, a bare string (treated as {"text": s}) or
// nothing.
func parseInput(raw json.RawMessage) (map[string]any, error) {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" || trimmed == "null" {
		return map[string]any{}, nil
	}

	var obj map[string]any
	if err := json.Unmarshal(raw, &obj); err == nil {
		if obj == nil {
			obj = map[string]any{}
		}
		return obj, nil
	}

	var text string
	if err := json.Unmarshal(raw, &text); err == nil {
		return map[string]any{"text": text}, nil
	}
	return nil, &domain.ValidationError{Field: "input", Reason: "must be an object or a string"}
}
