package api

import (
	"encoding/json"
	stderrors "errors"
	"net/http"

	"github.com/quillworks/quill/internal/errors"
	"github.com/rs/zerolog/log"
)

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Int("status", status).Msg("api: encode response")
	}
}

// writeError maps a domain error to an HTTP status and JSON body.
func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, statusFor(err), errorResponse{Error: publicMessage(err)})
}

func statusFor(err error) int {
	switch {
	case stderrors.Is(err, errors.ErrNotFound):
		return http.StatusNotFound
	case stderrors.Is(err, errors.ErrUnauthorized):
		return http.StatusUnauthorized
	case stderrors.Is(err, errors.ErrNotAuthor), stderrors.Is(err, errors.ErrPremiumRequired):
		return http.StatusForbidden
	case stderrors.Is(err, errors.ErrQuotaExceeded):
		return http.StatusTooManyRequests
	case stderrors.Is(err, errors.ErrInvalidTransition):
		return http.StatusConflict
	case stderrors.Is(err, errors.ErrVersionConflict), stderrors.Is(err, errors.ErrTimeout):
		return http.StatusServiceUnavailable
	default:
		if errors.IsRetryable(err) {
			return http.StatusServiceUnavailable
		}
		return http.StatusInternalServerError
	}
}

func publicMessage(err error) string {
	switch {
	case stderrors.Is(err, errors.ErrNotFound):
		return "not found"
	case stderrors.Is(err, errors.ErrUnauthorized):
		return "authentication required"
	case stderrors.Is(err, errors.ErrNotAuthor):
		return "not the author of this resource"
	case stderrors.Is(err, errors.ErrPremiumRequired):
		return "premium subscription required"
	case stderrors.Is(err, errors.ErrQuotaExceeded):
		return "AI usage limit reached. Upgrade to premium for unlimited access."
	case stderrors.Is(err, errors.ErrInvalidTransition):
		return "invalid state transition"
	case stderrors.Is(err, errors.ErrVersionConflict), stderrors.Is(err, errors.ErrTimeout):
		return "temporarily unavailable, retry shortly"
	default:
		return "internal error"
	}
}

// decodeBody reads a JSON request body into v with a size cap.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, 1024*1024)
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "malformed request body"})
		return false
	}
	return true
}
