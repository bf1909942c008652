package services

import "errors"

// Critical-path error taxonomy. Best-effort failures are never surfaced as
// errors to the webhook caller; they are logged where they happen.
var (
	ErrInvalidPayload = errors.New("invalid payload")
	ErrUnauthorized   = errors.New("unauthorized")
	ErrRateLimited    = errors.New("rate limited")
	ErrNotFound       = errors.New("not found")
)
