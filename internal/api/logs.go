package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/semihsipahi/climblearn-api/internal/domain"
)

// LogService records and lists interaction logs.
type LogService interface {
	Record(ctx context.Context, entry domain.InteractionLog) (domain.InteractionLog, error)
	Query(ctx context.Context, sessionID string) ([]domain.InteractionLog, error)
}

// LogHandler serves the admin interaction-log endpoints.
type LogHandler struct {
	logs LogService
}

// NewLogHandler creates a new log handler.
func NewLogHandler(logs LogService) *LogHandler {
	return &LogHandler{logs: logs}
}

// RegisterRoutes registers interaction log routes.
func (h *LogHandler) RegisterRoutes(r chi.Router) {
	r.Get("/api/ai", h.List)
	r.Post("/api/ai", h.Create)
}

type createLogRequest struct {
	SessionID string         `json:"sessionId"`
	Type      domain.LogType `json:"type"`
	Prompt    string         `json:"prompt"`
	Response  string         `json:"response"`
	Model     string         `json:"model,omitempty"`
	FlowID    string         `json:"flowId,omitempty"`
}

// List returns a session's logs, oldest first.
func (h *LogHandler) List(w http.ResponseWriter, r *http.Request) {
	logs, err := h.logs.Query(r.Context(), r.URL.Query().Get("sessionId"))
	if err != nil {
		WriteError(w, err)
		return
	}
	JSON(w, http.StatusOK, logs)
}

// Create records a manual log entry.
func (h *LogHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createLogRequest
	if err := decodeJSON(w, r, &req); err != nil {
		WriteError(w, err)
		return
	}

	stored, err := h.logs.Record(r.Context(), domain.InteractionLog{
		SessionID: req.SessionID,
		Type:      req.Type,
		Prompt:    req.Prompt,
		Response:  req.Response,
		Model:     req.Model,
		FlowID:    req.FlowID,
	})
	if err != nil {
		WriteError(w, err)
		return
	}
	JSON(w, http.StatusCreated, stored)
}
