package api

import (
	"net/http"

	"github.com/quillworks/quill/internal/identity"
	"github.com/quillworks/quill/internal/quota"
	"github.com/quillworks/quill/internal/store"
)

// Pinger checks backing-store connectivity for readiness probes.
type Pinger interface {
	Ping() error
}

// handleHealthz returns 200 "ok" unconditionally (liveness probe).
func handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// handleReadyz checks database connectivity (readiness probe).
func handleReadyz(pinger Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		if pinger != nil {
			if err := pinger.Ping(); err != nil {
				w.WriteHeader(http.StatusServiceUnavailable)
				_, _ = w.Write([]byte("not ready"))
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	}
}

type versionResponse struct {
	Version string `json:"version"`
}

// handleVersion reports the running build.
func handleVersion(version string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, versionResponse{Version: version})
	}
}

type meResponse struct {
	*store.UserRecord
	AIRemaining int `json:"ai_remaining"`
}

// handleMe returns the acting user's record and remaining AI quota.
func handleMe(users store.UserStore, tracker *quota.Tracker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, _ := identity.ActorFrom(r.Context())
		rec, err := users.GetUser(r.Context(), actor.Identity)
		if err != nil {
			writeError(w, err)
			return
		}
		remaining, err := tracker.Remaining(r.Context(), actor.Identity)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, meResponse{UserRecord: rec, AIRemaining: remaining})
	}
}
