package app

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrInvalidInput      = errors.New("invalid input")
	ErrUnauthenticated   = errors.New("authentication required")
	ErrDuplicateAccount  = errors.New("username or email already exists")
	ErrInvalidCredential = errors.New("invalid credentials")
	ErrNotRegistered     = errors.New("feature requires a registered account")
	ErrMessageEmpty      = errors.New("message content is empty")
)

// ValidationError carries every violated signup rule so the caller can
// surface them field by field, not just the first.
type ValidationError struct {
	Violations []string
}

func (e *ValidationError) Error() string {
	return "validation failed: " + strings.Join(e.Violations, "; ")
}

// RateLimitError reports the remaining cooldown before the window resets.
type RateLimitError struct {
	RetryAfterSeconds int
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limit exceeded, retry in %d seconds", e.RetryAfterSeconds)
}
