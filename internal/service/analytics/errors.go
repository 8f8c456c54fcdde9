package analytics

import "errors"

// Sentinel errors for the analytics service layer.
var (
	ErrNotFound   = errors.New("analytics record not found")
	ErrInvalidURL = errors.New("invalid tracked url")
)
