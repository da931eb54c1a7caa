package errors

import (
	"errors"
	"fmt"
	"time"
)

// Base error types
var (
	ErrNotFound          = errors.New("not found")
	ErrUnauthorized      = errors.New("unauthorized")
	ErrNotAuthor         = errors.New("not the author")
	ErrPremiumRequired   = errors.New("premium subscription required")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrQuotaExceeded     = errors.New("usage quota exceeded")
	ErrUnresolvedSubject = errors.New("event carries no subject identity")
	ErrVersionConflict   = errors.New("version conflict")
	ErrTimeout           = errors.New("timeout")
	ErrInternal          = errors.New("internal error")
)

// ErrorType represents the category of error
type ErrorType string

const (
	ErrorTypeAuth       ErrorType = "auth"
	ErrorTypeValidation ErrorType = "validation"
	ErrorTypeNotFound   ErrorType = "not_found"
	ErrorTypeQuota      ErrorType = "quota"
	ErrorTypeConflict   ErrorType = "conflict"
	ErrorTypeTimeout    ErrorType = "timeout"
	ErrorTypeInternal   ErrorType = "internal"
)

// PlatformError is a structured error for platform operations.
type PlatformError struct {
	Type      ErrorType
	Op        string // Operation that failed (e.g., "reconcile", "toggle_like")
	Subject   string // User identity or post ID the operation targeted
	Err       error  // Underlying error
	Timestamp time.Time
	Retryable bool
}

func (e *PlatformError) Error() string {
	if e.Subject != "" {
		return fmt.Sprintf("%s failed for %s: %v", e.Op, e.Subject, e.Err)
	}
	return fmt.Sprintf("%s failed: %v", e.Op, e.Err)
}

func (e *PlatformError) Unwrap() error {
	return e.Err
}

// Is implements errors.Is. A sentinel wrapped in the chain is
// authoritative; the error-type class answers only when the chain
// carries no sentinel of that class.
func (e *PlatformError) Is(target error) bool {
	if target == nil {
		return false
	}
	if e.Err != nil && errors.Is(e.Err, target) {
		return true
	}

	switch target {
	case ErrNotFound:
		return e.Type == ErrorTypeNotFound && !wrapsAny(e.Err, ErrNotFound)
	case ErrUnauthorized, ErrNotAuthor, ErrPremiumRequired:
		// Three sentinels share the auth class. Matching on the class
		// alone would make ErrNotAuthor pass as ErrUnauthorized.
		return e.Type == ErrorTypeAuth && !wrapsAny(e.Err, ErrUnauthorized, ErrNotAuthor, ErrPremiumRequired)
	case ErrQuotaExceeded:
		return e.Type == ErrorTypeQuota && !wrapsAny(e.Err, ErrQuotaExceeded)
	case ErrVersionConflict:
		return e.Type == ErrorTypeConflict && !wrapsAny(e.Err, ErrVersionConflict)
	case ErrTimeout:
		return e.Type == ErrorTypeTimeout && !wrapsAny(e.Err, ErrTimeout)
	}

	return false
}

func wrapsAny(err error, sentinels ...error) bool {
	if err == nil {
		return false
	}
	for _, s := range sentinels {
		if errors.Is(err, s) {
			return true
		}
	}
	return false
}

// New creates a new PlatformError.
func New(errorType ErrorType, op, subject string, err error) *PlatformError {
	return &PlatformError{
		Type:      errorType,
		Op:        op,
		Subject:   subject,
		Err:       err,
		Timestamp: time.Now(),
		Retryable: isRetryable(errorType, err),
	}
}

// isRetryable determines if an error should be retried. Authorization
// and validation failures never are; conflicts and timeouts always are.
func isRetryable(errorType ErrorType, err error) bool {
	switch errorType {
	case ErrorTypeConflict, ErrorTypeTimeout:
		return true
	case ErrorTypeAuth, ErrorTypeValidation, ErrorTypeNotFound, ErrorTypeQuota:
		return false
	default:
		if err != nil {
			return !errors.Is(err, ErrUnresolvedSubject)
		}
		return true
	}
}

// IsRetryable checks if an error should be retried.
func IsRetryable(err error) bool {
	var perr *PlatformError
	if errors.As(err, &perr) {
		return perr.Retryable
	}
	return errors.Is(err, ErrTimeout) || errors.Is(err, ErrVersionConflict)
}

// Wrap wraps err with operation context, inferring the error type from
// the sentinel chain.
func Wrap(op, subject string, err error) error {
	if err == nil {
		return nil
	}
	return New(typeOf(err), op, subject, err)
}

func typeOf(err error) ErrorType {
	switch {
	case errors.Is(err, ErrNotFound):
		return ErrorTypeNotFound
	case errors.Is(err, ErrUnauthorized), errors.Is(err, ErrNotAuthor), errors.Is(err, ErrPremiumRequired):
		return ErrorTypeAuth
	case errors.Is(err, ErrInvalidTransition), errors.Is(err, ErrUnresolvedSubject):
		return ErrorTypeValidation
	case errors.Is(err, ErrQuotaExceeded):
		return ErrorTypeQuota
	case errors.Is(err, ErrVersionConflict):
		return ErrorTypeConflict
	case errors.Is(err, ErrTimeout):
		return ErrorTypeTimeout
	default:
		return ErrorTypeInternal
	}
}
