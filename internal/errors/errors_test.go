package errors

import (
	stderrors "errors"
	"testing"
)

func TestIsMatchesConcreteAuthSentinel(t *testing.T) {
	tests := []struct {
		name    string
		wrapped error
		match   error
		noMatch []error
	}{
		{"not author", ErrNotAuthor, ErrNotAuthor, []error{ErrUnauthorized, ErrPremiumRequired}},
		{"premium required", ErrPremiumRequired, ErrPremiumRequired, []error{ErrUnauthorized, ErrNotAuthor}},
		{"unauthorized", ErrUnauthorized, ErrUnauthorized, []error{ErrNotAuthor, ErrPremiumRequired}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := New(ErrorTypeAuth, "submit_post", "post-1", tc.wrapped)
			if !stderrors.Is(err, tc.match) {
				t.Errorf("Is(%v) = false, want true", tc.match)
			}
			for _, other := range tc.noMatch {
				if stderrors.Is(err, other) {
					t.Errorf("Is(%v) = true; sibling auth sentinel must not match", other)
				}
			}
		})
	}
}

func TestIsClassFallbackWithoutSentinel(t *testing.T) {
	// No concrete sentinel in the chain: the type class answers.
	err := New(ErrorTypeAuth, "authenticate", "", stderrors.New("token store offline"))
	if !stderrors.Is(err, ErrUnauthorized) {
		t.Error("auth-typed error without a sentinel should match the class")
	}

	nf := New(ErrorTypeNotFound, "get_post", "p1", stderrors.New("sql: no rows"))
	if !stderrors.Is(nf, ErrNotFound) {
		t.Error("not-found-typed error without a sentinel should match ErrNotFound")
	}
}

func TestWrapInfersTypeFromChain(t *testing.T) {
	err := Wrap("get_post", "p1", ErrNotFound)
	if !stderrors.Is(err, ErrNotFound) {
		t.Error("wrapped ErrNotFound lost through Wrap")
	}

	var perr *PlatformError
	if !stderrors.As(err, &perr) || perr.Type != ErrorTypeNotFound {
		t.Errorf("inferred type = %v, want not_found", perr.Type)
	}
}

func TestIsRetryable(t *testing.T) {
	if !IsRetryable(New(ErrorTypeConflict, "cas", "u1", ErrVersionConflict)) {
		t.Error("version conflict should be retryable")
	}
	if IsRetryable(New(ErrorTypeAuth, "submit", "u1", ErrNotAuthor)) {
		t.Error("authorization failure should not be retryable")
	}
	if IsRetryable(New(ErrorTypeQuota, "reserve", "u1", ErrQuotaExceeded)) {
		t.Error("quota denial should not be retryable")
	}
}
