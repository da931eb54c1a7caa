package api

import (
	"net/http"
	"strconv"

	"github.com/quillworks/quill/internal/content"
	"github.com/quillworks/quill/internal/identity"
	"github.com/quillworks/quill/internal/store"
)

type postPayload struct {
	Title    string   `json:"title"`
	Content  string   `json:"content"`
	Excerpt  string   `json:"excerpt"`
	Category string   `json:"category"`
	Tags     []string `json:"tags"`
}

func (p postPayload) draft() content.Draft {
	return content.Draft{
		Title:    p.Title,
		Content:  p.Content,
		Excerpt:  p.Excerpt,
		Category: p.Category,
		Tags:     p.Tags,
	}
}

type likeResponse struct {
	Liked     bool  `json:"liked"`
	LikeCount int64 `json:"like_count"`
}

// handleCreatePost creates a new draft for the acting author.
func handleCreatePost(svc *content.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, _ := identity.ActorFrom(r.Context())

		var payload postPayload
		if !decodeBody(w, r, &payload) {
			return
		}
		post, err := svc.CreatePost(r.Context(), actor, payload.draft())
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, post)
	}
}

// handleListPublished returns the public feed of published posts.
func handleListPublished(svc *content.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit, offset := pagination(r)
		posts, err := svc.ListByStatus(r.Context(), store.PostStatusPublished, limit, offset)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, posts)
	}
}

// handleListMine returns every post authored by the acting user.
func handleListMine(svc *content.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, _ := identity.ActorFrom(r.Context())
		posts, err := svc.ListByAuthor(r.Context(), actor, actor.Identity)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, posts)
	}
}

// handleGetPost fetches one post and records the view. The view write
// never blocks the read.
func handleGetPost(svc *content.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		postID := r.PathValue("id")
		post, err := svc.GetPost(r.Context(), postID)
		if err != nil {
			writeError(w, err)
			return
		}
		svc.IncrementView(r.Context(), postID)
		writeJSON(w, http.StatusOK, post)
	}
}

func handleUpdatePost(svc *content.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, _ := identity.ActorFrom(r.Context())

		var payload postPayload
		if !decodeBody(w, r, &payload) {
			return
		}
		post, err := svc.UpdateContent(r.Context(), actor, r.PathValue("id"), payload.draft())
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, post)
	}
}

func handleDeletePost(svc *content.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, _ := identity.ActorFrom(r.Context())
		if err := svc.DeletePost(r.Context(), actor, r.PathValue("id")); err != nil {
			writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// handleSubmitPost moves a draft or rejected post into review.
func handleSubmitPost(svc *content.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, _ := identity.ActorFrom(r.Context())
		post, err := svc.Submit(r.Context(), actor, r.PathValue("id"))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, post)
	}
}

// handleToggleLike flips the actor's like on a post.
func handleToggleLike(svc *content.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, _ := identity.ActorFrom(r.Context())
		liked, count, err := svc.ToggleLike(r.Context(), actor, r.PathValue("id"))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, likeResponse{Liked: liked, LikeCount: count})
	}
}

func pagination(r *http.Request) (limit, offset int) {
	limit = 20
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 100 {
			limit = n
		}
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			offset = n
		}
	}
	return limit, offset
}
