package api

import (
	"net/http"

	"github.com/quillworks/quill/internal/content"
	"github.com/quillworks/quill/internal/identity"
)

type commentPayload struct {
	Content string `json:"content"`
}

func handleListComments(svc *content.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit, offset := pagination(r)
		comments, err := svc.ListComments(r.Context(), r.PathValue("id"), limit, offset)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, comments)
	}
}

func handleAddComment(svc *content.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, _ := identity.ActorFrom(r.Context())

		var payload commentPayload
		if !decodeBody(w, r, &payload) {
			return
		}
		comment, err := svc.AddComment(r.Context(), actor, r.PathValue("id"), payload.Content)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, comment)
	}
}

func handleDeleteComment(svc *content.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, _ := identity.ActorFrom(r.Context())
		if err := svc.RemoveComment(r.Context(), actor, r.PathValue("id")); err != nil {
			writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}
