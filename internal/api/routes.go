package api

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/quillworks/quill/internal/ai"
	"github.com/quillworks/quill/internal/content"
	"github.com/quillworks/quill/internal/quota"
	"github.com/quillworks/quill/internal/store"
)

// Deps holds shared dependencies injected into HTTP handlers.
type Deps struct {
	Store     store.Store
	Content   *content.Service
	Tracker   *quota.Tracker
	Assistant *ai.Assistant // nil disables the AI endpoints
	Auth      Authenticator

	// Webhook intake handlers, authenticated by their own schemes.
	StripeWebhook   http.Handler
	IdentityWebhook http.Handler

	// Pinger backs the readiness probe; nil means always ready.
	Pinger  Pinger
	Version string
}

// RegisterRoutes wires all HTTP handlers onto the given ServeMux.
func RegisterRoutes(mux *http.ServeMux, deps *Deps) {
	authed := func(next http.Handler) http.Handler {
		return requireActor(deps.Auth, next)
	}
	adminOnly := func(next http.Handler) http.Handler {
		return authed(requireAdmin(next))
	}

	// Health / readiness are unauthenticated liveness/readiness probes.
	mux.HandleFunc("/healthz", handleHealthz)
	mux.HandleFunc("/readyz", handleReadyz(deps.Pinger))
	mux.HandleFunc("/api/version", handleVersion(deps.Version))
	mux.Handle("/metrics", promhttp.Handler())

	// Webhook intake (signature- or secret-authenticated).
	if deps.StripeWebhook != nil {
		mux.Handle("/api/webhooks/stripe", deps.StripeWebhook)
	}
	if deps.IdentityWebhook != nil {
		mux.Handle("/api/webhooks/identity", deps.IdentityWebhook)
	}

	// Posts. Reads are public, writes require an authenticated actor.
	listPublished := handleListPublished(deps.Content)
	createPost := authed(handleCreatePost(deps.Content))
	mux.Handle("/api/posts", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			listPublished(w, r)
		case http.MethodPost:
			createPost.ServeHTTP(w, r)
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	}))

	mux.Handle("/api/posts/mine", authed(handleListMine(deps.Content)))

	getPost := handleGetPost(deps.Content)
	updatePost := authed(handleUpdatePost(deps.Content))
	deletePost := authed(handleDeletePost(deps.Content))
	mux.Handle("/api/posts/{id}", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			getPost(w, r)
		case http.MethodPut:
			updatePost.ServeHTTP(w, r)
		case http.MethodDelete:
			deletePost.ServeHTTP(w, r)
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	}))

	mux.Handle("/api/posts/{id}/submit", authed(postOnly(handleSubmitPost(deps.Content))))
	mux.Handle("/api/posts/{id}/like", authed(postOnly(handleToggleLike(deps.Content))))

	listComments := handleListComments(deps.Content)
	addComment := authed(handleAddComment(deps.Content))
	mux.Handle("/api/posts/{id}/comments", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			listComments(w, r)
		case http.MethodPost:
			addComment.ServeHTTP(w, r)
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	}))

	deleteComment := authed(handleDeleteComment(deps.Content))
	mux.Handle("/api/comments/{id}", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodDelete {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		deleteComment.ServeHTTP(w, r)
	}))

	mux.Handle("/api/me", authed(getOnly(handleMe(deps.Store, deps.Tracker))))

	// AI assistance.
	if deps.Assistant != nil {
		mux.Handle("/api/ai/suggestions", authed(postOnly(handleAISuggestions(deps.Assistant))))
		mux.Handle("/api/ai/generate", authed(postOnly(handleAIGenerate(deps.Assistant))))
		mux.Handle("/api/ai/seo-optimize", authed(postOnly(handleAIOptimizeSEO(deps.Assistant))))
	}

	// Admin API.
	mux.Handle("/api/admin/stats", adminOnly(getOnly(handleAdminStats(deps.Store))))
	mux.Handle("/api/admin/users", adminOnly(getOnly(handleAdminListUsers(deps.Store))))
	mux.Handle("/api/admin/users/{identity}/role", adminOnly(putOnly(handleAdminSetRole(deps.Store))))
	mux.Handle("/api/admin/posts/pending", adminOnly(getOnly(handleAdminPending(deps.Content))))
	mux.Handle("/api/admin/posts/{id}/approve", adminOnly(putOnly(handleAdminApprove(deps.Content))))
	mux.Handle("/api/admin/posts/{id}/reject", adminOnly(putOnly(handleAdminReject(deps.Content))))
}

func postOnly(next http.Handler) http.Handler {
	return methodOnly(http.MethodPost, next)
}

func getOnly(next http.Handler) http.Handler {
	return methodOnly(http.MethodGet, next)
}

func putOnly(next http.Handler) http.Handler {
	return methodOnly(http.MethodPut, next)
}

func methodOnly(method string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != method {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Handler wraps the mux with the request-context middleware.
func Handler(deps *Deps) http.Handler {
	mux := http.NewServeMux()
	RegisterRoutes(mux, deps)
	return withRequestContext(mux)
}
