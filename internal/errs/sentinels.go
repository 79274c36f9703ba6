// Package errs contains sentinel and typed errors used across layers for stable error mapping.
package errs

import "errors"

// Common sentinels across repo/service layers.
var (
	// ErrNotFound indicates the requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidInput indicates a caller supplied an unusable argument (empty window, bad id).
	ErrInvalidInput = errors.New("invalid input")

	// ErrBlocked indicates the account is temporarily excluded from sync after repeated credential failures.
	ErrBlocked = errors.New("account sync blocked")

	// ErrNoDocument indicates a finished report job that carries no document.
	ErrNoDocument = errors.New("report has no document")
)
