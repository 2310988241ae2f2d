package flow

import (
	"errors"

	"github.com/semihsipahi/climblearn-api/internal/domain"
)

var (
	// ErrValidation is returned (wrapped in *domain.ValidationError) for bad caller input.
	ErrValidation = domain.ErrValidation

	// ErrSessionNotFound is returned when the session id is unknown.
	ErrSessionNotFound = errors.New("session not found")

	// ErrInvalidState is returned when a stored session has a stage outside the known set.
	ErrInvalidState = errors.New("invalid session stage")

	// ErrStepInProgress is returned when another step for the same session is running.
	ErrStepInProgress = errors.New("a step is already in progress for this session")
)
