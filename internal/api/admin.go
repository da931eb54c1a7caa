package api

import (
	stderrors "errors"
	"net/http"

	"github.com/quillworks/quill/internal/content"
	"github.com/quillworks/quill/internal/errors"
	"github.com/quillworks/quill/internal/identity"
	"github.com/quillworks/quill/internal/store"
)

// handleAdminStats returns the dashboard census.
func handleAdminStats(stats store.StatsStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		st, err := stats.Stats(r.Context())
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, st)
	}
}

func handleAdminListUsers(users store.UserStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit, offset := pagination(r)
		list, err := users.ListUsers(r.Context(), limit, offset)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, list)
	}
}

type rolePayload struct {
	Role string `json:"role"`
}

// handleAdminSetRole overrides a user's role. This is the only path
// that assigns admin; the reconciliation engine never does.
func handleAdminSetRole(users store.UserStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var payload rolePayload
		if !decodeBody(w, r, &payload) {
			return
		}
		role, ok := identity.ParseRole(payload.Role)
		if !ok {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid role"})
			return
		}

		subject := r.PathValue("identity")
		for attempt := 0; attempt < 3; attempt++ {
			rec, err := users.GetUser(r.Context(), subject)
			if err != nil {
				writeError(w, err)
				return
			}
			rec.Role = role
			err = users.CompareAndSwapUser(r.Context(), rec)
			if stderrors.Is(err, errors.ErrVersionConflict) {
				continue
			}
			if err != nil {
				writeError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, rec)
			return
		}
		writeError(w, errors.ErrVersionConflict)
	}
}

// handleAdminPending lists posts waiting for moderation.
func handleAdminPending(svc *content.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit, offset := pagination(r)
		posts, err := svc.ListByStatus(r.Context(), store.PostStatusPending, limit, offset)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, posts)
	}
}

func handleAdminApprove(svc *content.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		post, err := svc.Approve(r.Context(), r.PathValue("id"))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, post)
	}
}

type rejectPayload struct {
	Reason string `json:"reason"`
}

func handleAdminReject(svc *content.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var payload rejectPayload
		if !decodeBody(w, r, &payload) {
			return
		}
		post, err := svc.Reject(r.Context(), r.PathValue("id"), payload.Reason)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, post)
	}
}
