package session

import (
	"errors"
	"fmt"
)

// Error kinds. Callers classify with errors.Is.
var (
	ErrNotFound     = errors.New("session not found")
	ErrForbidden    = errors.New("forbidden")
	ErrConflict     = errors.New("conflict")
	ErrInvalidInput = errors.New("invalid input")
)

// Conflict refinements
var (
	ErrSessionFull     = fmt.Errorf("%w: session is full", ErrConflict)
	ErrAlreadyJoined   = fmt.Errorf("%w: already joined", ErrConflict)
	ErrNotActive       = fmt.Errorf("%w: session is not active", ErrConflict)
	ErrSessionFinished = fmt.Errorf("%w: session is finished", ErrConflict)
)

// ErrInvalidDifficulty is returned for an unknown synthetic opponent tier
var ErrInvalidDifficulty = fmt.Errorf("%w: unknown difficulty", ErrInvalidInput)
