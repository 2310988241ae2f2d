// Package api provides HTTP handlers for the ClimbLearn API.
package api

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/semihsipahi/climblearn-api/internal/domain"
	"github.com/semihsipahi/climblearn-api/internal/flow"
	"github.com/semihsipahi/climblearn-api/internal/store"
	"github.com/semihsipahi/climblearn-api/internal/workflow"
)

const maxBodyBytes = 1 << 20

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error": "failed to encode response"}`, http.StatusInternalServerError)
	}
}

// Error writes a JSON error response.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]string{"error": message})
}

// WriteError maps err to a status code and writes it as a JSON error.
func WriteError(w http.ResponseWriter, err error) {
	var gwErr *workflow.GatewayError
	switch {
	case errors.Is(err, domain.ErrValidation):
		Error(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, flow.ErrSessionNotFound):
		Error(w, http.StatusNotFound, err.Error())
	case errors.Is(err, flow.ErrStepInProgress), errors.Is(err, store.ErrVersionConflict):
		Error(w, http.StatusConflict, err.Error())
	case errors.As(err, &gwErr):
		slog.Warn("Workflow call failed", "error", err)
		message := gwErr.Message
		if message == "" {
			message = gwErr.Error()
		}
		Error(w, http.StatusBadGateway, message)
	case errors.Is(err, flow.ErrInvalidState):
		slog.Error("Session in invalid state", "error", err)
		Error(w, http.StatusInternalServerError, err.Error())
	default:
		slog.Error("Request failed", "error", err)
		Error(w, http.StatusInternalServerError, "internal server error")
	}
}

// decodeJSON reads a JSON body into v. An empty body leaves v untouched.
func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return &domain.ValidationError{Field: "body", Reason: "must be valid JSON"}
	}
	return nil
}

// Root answers the service banner on GET /.
func Root(w http.ResponseWriter, _ *http.Request) {
	JSON(w, http.StatusOK, map[string]string{"message": "ClimbLearn API is running"})
}
