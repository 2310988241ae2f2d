package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// LogType categorizes a recorded AI exchange.
type LogType string

const (
	LogTypeExplanation LogType = "explanation"
	LogTypeQuestion    LogType = "question"
	LogTypeEvaluation  LogType = "evaluation"
)

// Valid reports whether t is one of the known log types.
func (t LogType) Valid() bool {
	switch t {
	case LogTypeExplanation, LogTypeQuestion, LogTypeEvaluation:
		return true
	}
	return false
}

// InteractionLog is one immutable record of an AI exchange within a session.
type InteractionLog struct {
	ID        string    `json:"id" bson:"_id"`
	SessionID string    `json:"sessionId" bson:"session_id"`
	Type      LogType   `json:"type" bson:"type"`
	Prompt    string    `json:"prompt" bson:"prompt"`
	Response  string    `json:"response" bson:"response"`
	Model     string    `json:"model,omitempty" bson:"model,omitempty"`
	FlowID    string    `json:"flowId,omitempty" bson:"flow_id,omitempty"`
	CreatedAt time.Time `json:"createdAt" bson:"created_at"`
}

// ErrValidation is the sentinel every ValidationError unwraps to.
var ErrValidation = errors.New("validation failed")

// ValidationError reports a missing or malformed caller-supplied field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

// Required returns a ValidationError for a missing field.
func Required(field string) *ValidationError {
	return &ValidationError{Field: field, Reason: "is required"}
}

// Validate checks the fields a caller must supply for a manual log entry.
func (l *InteractionLog) Validate() error {
	if strings.TrimSpace(l.SessionID) == "" {
		return Required("sessionId")
	}
	if l.Type == "" {
		return Required("type")
	}
	if !l.Type.Valid() {
		return &ValidationError{Field: "type", Reason: "must be one of explanation, question, evaluation"}
	}
	if l.Prompt == "" {
		return Required("prompt")
	}
	if l.Response == "" {
		return Required("response")
	}
	return nil
}
