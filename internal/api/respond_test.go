package api

import (
	"net/http"
	"testing"

	"github.com/quillworks/quill/internal/errors"
)

func TestStatusForDomainErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"not found", errors.New(errors.ErrorTypeNotFound, "get_post", "p1", errors.ErrNotFound), http.StatusNotFound},
		{"unauthorized", errors.New(errors.ErrorTypeAuth, "authenticate", "", errors.ErrUnauthorized), http.StatusUnauthorized},
		{"not author", errors.New(errors.ErrorTypeAuth, "submit_post", "p1", errors.ErrNotAuthor), http.StatusForbidden},
		{"premium required", errors.New(errors.ErrorTypeAuth, "ai.generate", "u1", errors.ErrPremiumRequired), http.StatusForbidden},
		{"quota exceeded", errors.New(errors.ErrorTypeQuota, "reserve", "u1", errors.ErrQuotaExceeded), http.StatusTooManyRequests},
		{"invalid transition", errors.Wrap("approve", "p1", errors.ErrInvalidTransition), http.StatusConflict},
		{"version conflict", errors.New(errors.ErrorTypeConflict, "cas", "u1", errors.ErrVersionConflict), http.StatusServiceUnavailable},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := statusFor(tc.err); got != tc.want {
				t.Errorf("statusFor() = %d, want %d", got, tc.want)
			}
		})
	}
}

func TestPublicMessageDistinguishesAuthErrors(t *testing.T) {
	notAuthor := errors.New(errors.ErrorTypeAuth, "remove_comment", "c1", errors.ErrNotAuthor)
	if got := publicMessage(notAuthor); got != "not the author of this resource" {
		t.Errorf("not-author message = %q", got)
	}
	premium := errors.New(errors.ErrorTypeAuth, "ai.generate", "u1", errors.ErrPremiumRequired)
	if got := publicMessage(premium); got != "premium subscription required" {
		t.Errorf("premium message = %q", got)
	}
}
