package domain

import "errors"

var (
	// ErrNotFound indicates resource not found. It is also returned when the
	// caller may not see the resource, so existence is never leaked.
	ErrNotFound = errors.New("resource not found")
	// ErrInvalidInput indicates a request missing required fields
	ErrInvalidInput = errors.New("invalid input")
	// ErrUnauthorized indicates no caller identity could be resolved
	ErrUnauthorized = errors.New("unauthorized")
	// ErrForbidden indicates the caller's role may not use the operation
	ErrForbidden = errors.New("forbidden")
	// ErrRateLimited indicates rate limit exceeded
	ErrRateLimited = errors.New("rate limit exceeded")
	// ErrConflict indicates a uniqueness violation
	ErrConflict = errors.New("conflict")
)
