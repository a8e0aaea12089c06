// Package common defines shared constants and sentinel errors used across
// the authcore server layers. Callers should use errors.Is to match these
// values; wrapped causes are for logs only and never reach a response body.
package common

import "errors"

var (
	// Repository-level errors.
	ErrorNotFound = errors.New("not found")

	// Service-level errors.
	ErrorValidation = errors.New("validation error")

	// Account errors.
	ErrAccountExists      = errors.New("account already exists")
	ErrInvalidCredentials = errors.New("invalid credentials")

	// Auth errors. Every token or session failure wraps ErrInvalidToken or
	// ErrInvalidSession so transports can collapse them into one response.
	ErrInvalidToken   = errors.New("invalid token")
	ErrInvalidSession = errors.New("invalid or expired session")

	// Session store errors.
	ErrDuplicateToken  = errors.New("duplicate token handle")
	ErrSessionNotFound = errors.New("session not found")
	ErrSessionExpired  = errors.New("session expired")
	ErrAlreadyRotated  = errors.New("session already rotated")

	// Password reset errors. Not found, expired and used all map here.
	ErrInvalidResetToken = errors.New("invalid or expired token")

	// Rate limiting.
	ErrRateLimited = errors.New("rate limit exceeded")

	// Secret storage.
	ErrDecryption = errors.New("decryption failed")

	// Store availability; never to be read as a pass.
	ErrStoreUnavailable = errors.New("store unavailable")
)
