package dispatch

import (
	"fmt"
	"time"
)

// AuthError means the platform rejected the account's credentials or
// the interactive challenge failed. The job aborts; siblings continue.
type AuthError struct {
	Handle string
	Err    error
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("auth failed for %s: %v", e.Handle, e.Err)
}

func (e *AuthError) Unwrap() error { return e.Err }

// RateLimitedError is a platform-imposed cooldown. The session sleeps
// RetryAfter and retries the same group.
type RateLimitedError struct {
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("rate limited, retry after %s", e.RetryAfter)
}

// ForbiddenError means the account is blocked from one specific group.
// The group is skipped; the session continues.
type ForbiddenError struct {
	GroupID int64
}

func (e *ForbiddenError) Error() string {
	return fmt.Sprintf("forbidden in group %d", e.GroupID)
}
