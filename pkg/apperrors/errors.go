package apperrors

import "errors"

var (
	ErrNotFound         = errors.New("not found")
	ErrUnauthorized     = errors.New("unauthorized")
	ErrForbidden        = errors.New("forbidden")
	ErrInvalidRequest   = errors.New("invalid request")
	ErrStoreUnavailable = errors.New("document store unavailable")
	ErrNotConfigured    = errors.New("feature not configured")
)
