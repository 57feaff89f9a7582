package genai

import "errors"

// Classification tags a generation failure for the retry policy.
type Classification int

const (
	// ClassFatal marks failures that will not improve on retry: bad
	// requests, missing credentials, malformed payloads.
	ClassFatal Classification = iota
	// ClassRetryable marks transient failures: 5xx responses, network
	// errors, responses without image data.
	ClassRetryable
	// ClassRateLimited marks 429 responses; retried with a longer backoff.
	ClassRateLimited
)

// Error wraps an upstream failure with its retry classification.
type Error struct {
	Class Classification
	Err   error
}

func (e *Error) Error() string { return e.Err.Error() }
func (e *Error) Unwrap() error { return e.Err }

// Fatal wraps err as a non-retryable failure.
func Fatal(err error) error { return &Error{Class: ClassFatal, Err: err} }

// Retryable wraps err as a transient failure.
func Retryable(err error) error { return &Error{Class: ClassRetryable, Err: err} }

// RateLimited wraps err as a rate-limit failure.
func RateLimited(err error) error { return &Error{Class: ClassRateLimited, Err: err} }

// ClassOf extracts the classification; unclassified errors are treated as
// fatal so unknown conditions are never retried blindly.
func ClassOf(err error) Classification {
	var ge *Error
	if errors.As(err, &ge) {
		return ge.Class
	}
	return ClassFatal
}

// IsRetryable reports whether the retry policy may attempt the call again.
func IsRetryable(err error) bool {
	class := ClassOf(err)
	return class == ClassRetryable || class == ClassRateLimited
}
