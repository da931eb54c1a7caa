package intake

import (
	"crypto/subtle"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/quillworks/quill/internal/entitlement"
	"github.com/quillworks/quill/internal/logging"
	"github.com/quillworks/quill/internal/qmetrics"
	"github.com/rs/zerolog/log"
)

// IdentityHandler handles webhook events from the identity provider.
// Authentication is a shared secret carried in a request header.
type IdentityHandler struct {
	secret string
	engine Reconciler
	dedup  *Deduper
}

// identityEvent is the identity provider's webhook envelope.
type identityEvent struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Data struct {
		ID     string `json:"id"`
		Email  string `json:"email"`
		Name   string `json:"name"`
		Avatar string `json:"avatar"`
	} `json:"data"`
}

// NewIdentityHandler creates an identity webhook HTTP handler.
func NewIdentityHandler(secret string, engine Reconciler, dedup *Deduper) *IdentityHandler {
	return &IdentityHandler{
		secret: secret,
		engine: engine,
		dedup:  dedup,
	}
}

func (h *IdentityHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	eventType := "unknown"
	status := http.StatusOK
	defer func() {
		qmetrics.WebhookRequestsTotal.WithLabelValues("identity", eventType, strconv.Itoa(status)).Inc()
		qmetrics.WebhookDuration.WithLabelValues("identity").Observe(time.Since(start).Seconds())
	}()

	if r.Method != http.MethodPost {
		status = http.StatusMethodNotAllowed
		writeJSON(w, status, webhookErrorResponse{Error: "method not allowed"})
		return
	}
	if strings.TrimSpace(h.secret) == "" {
		status = http.StatusServiceUnavailable
		writeJSON(w, status, webhookErrorResponse{Error: "webhook secret not configured"})
		return
	}

	provided := r.Header.Get("X-Webhook-Secret")
	if subtle.ConstantTimeCompare([]byte(provided), []byte(h.secret)) != 1 {
		status = http.StatusUnauthorized
		writeJSON(w, status, webhookErrorResponse{Error: "invalid webhook secret"})
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, webhookBodyLimit)
	payload, err := io.ReadAll(r.Body)
	if err != nil {
		status = http.StatusBadRequest
		writeJSON(w, status, webhookErrorResponse{Error: "failed to read request body"})
		return
	}

	var raw identityEvent
	if err := json.Unmarshal(payload, &raw); err != nil {
		status = http.StatusBadRequest
		writeJSON(w, status, webhookErrorResponse{Error: "malformed event payload"})
		return
	}
	eventType = raw.Type

	if raw.ID != "" && h.dedup.Seen(raw.ID) {
		qmetrics.DuplicateEventsTotal.WithLabelValues("identity").Inc()
		log.Info().Str("event_id", raw.ID).Str("type", raw.Type).Msg("duplicate identity event dropped")
		writeJSON(w, http.StatusOK, webhookReceivedResponse{Received: true})
		return
	}

	ev, ok := mapIdentityEvent(raw)
	if !ok {
		log.Info().Str("type", raw.Type).Str("event_id", raw.ID).Msg("identity webhook ignored (unhandled type)")
		writeJSON(w, http.StatusOK, webhookReceivedResponse{Received: true})
		return
	}

	outcome, err := h.engine.Reconcile(r.Context(), ev)
	if err != nil {
		// Leave the event unmarked so the provider's redelivery retries it.
		log.Error().Err(err).
			Str("request_id", logging.RequestIDFrom(r.Context())).
			Str("event_id", raw.ID).
			Str("type", raw.Type).
			Msg("identity webhook processing failed")
		status = http.StatusInternalServerError
		writeJSON(w, status, webhookErrorResponse{Error: "processing failed"})
		return
	}
	h.dedup.Mark(raw.ID)
	qmetrics.ReconcileOutcomesTotal.WithLabelValues(ev.Type, string(outcome.Status)).Inc()

	writeJSON(w, http.StatusOK, webhookReceivedResponse{Received: true})
}

func mapIdentityEvent(raw identityEvent) (entitlement.InboundEvent, bool) {
	ev := entitlement.InboundEvent{
		Source:          entitlement.SourceIdentity,
		EventID:         raw.ID,
		SubjectIdentity: strings.TrimSpace(raw.Data.ID),
		Profile: entitlement.Profile{
			Email:  raw.Data.Email,
			Name:   raw.Data.Name,
			Avatar: raw.Data.Avatar,
		},
		ReceivedAt: time.Now().UTC(),
	}

	switch raw.Type {
	case "user.created":
		ev.Type = entitlement.TypeUserCreated
	case "user.updated":
		ev.Type = entitlement.TypeUserUpdated
	case "user.deleted":
		ev.Type = entitlement.TypeUserDeleted
	default:
		return ev, false
	}
	return ev, true
}
