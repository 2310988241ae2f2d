// Package store provides data persistence interfaces and implementations.
package store

import (
	"context"
	"errors"

	"github.com/semihsipahi/climblearn-api/internal/domain"
)

var (
	// ErrNotFound is returned when a session does not exist.
	ErrNotFound = errors.New("session not found")

	// ErrVersionConflict is returned when a save races with another writer of the same session.
	ErrVersionConflict = errors.New("session was modified concurrently")
)

// Repository defines the interface for persisting learning sessions and interaction logs.
type Repository interface {
	// CreateSession inserts a new session record. The session's Version is set to 1.
	CreateSession(ctx context.Context, session *domain.LearningSession) error

	// GetSession loads a session by id. Returns ErrNotFound if it does not exist.
	GetSession(ctx context.Context, id string) (*domain.LearningSession, error)

	// SaveSession persists every field of the session and refreshes UpdatedAt.
	// The write only succeeds if the stored version still equals session.Version
	// (optimistic locking); on success session.Version is incremented.
	SaveSession(ctx context.Context, session *domain.LearningSession) error

	// InsertLog appends an interaction log entry.
	InsertLog(ctx context.Context, entry *domain.InteractionLog) error

	// ListLogs returns a session's log entries ordered by creation time ascending.
	ListLogs(ctx context.Context, sessionID string) ([]domain.InteractionLog, error)

	// Ping verifies database connectivity.
	Ping(ctx context.Context) error

	// Close releases the underlying connection.
	Close() error
}
