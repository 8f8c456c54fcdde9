package newsletter

import "errors"

// Sentinel errors for the newsletter service layer.
var (
	ErrNotFound           = errors.New("newsletter not found")
	ErrRevisionConflict   = errors.New("newsletter progress was modified concurrently")
	ErrAlreadyDispatching = errors.New("newsletter is already being dispatched")
	ErrNoRecipients       = errors.New("newsletter has no recipients")
	ErrChunkOutOfRange    = errors.New("chunk index out of range")
	ErrNotRetrying        = errors.New("newsletter has no pending retry")
)
