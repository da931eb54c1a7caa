package intake

import (
	"context"
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
	stripelib "github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/webhook"
)

const webhookBodyLimit = 1024 * 1024 // 1 MiB

// Reconciler consumes authenticated, deduplicated events.
type Reconciler interface {
	Reconcile(ctx context.Context, ev entitlement.InboundEvent) (entitlement.Outcome, error)
}

// StripeHandler handles incoming billing webhook events.
type StripeHandler struct {
	secret string
	engine Reconciler
	dedup  *Deduper
}

type webhookErrorResponse struct {
	Error string `json:"error"`
}

type webhookReceivedResponse struct {
	Received bool `json:"received"`
}

// NewStripeHandler creates a Stripe webhook HTTP handler.
func NewStripeHandler(secret string, engine Reconciler, dedup *Deduper) *StripeHandler {
	return &StripeHandler{
		secret: secret,
		engine: engine,
		dedup:  dedup,
	}
}

// ServeHTTP verifies the Stripe signature, deduplicates, and hands the
// event to the reconciliation engine. Processing failures answer 5xx so
// the provider's redelivery acts as the retry loop.
func (h *StripeHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	eventType := "unknown"
	status := http.StatusOK
	defer func() {
		qmetrics.WebhookRequestsTotal.WithLabelValues("stripe", eventType, strconv.Itoa(status)).Inc()
		qmetrics.WebhookDuration.WithLabelValues("stripe").Observe(time.Since(start).Seconds())
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

	r.Body = http.MaxBytesReader(w, r.Body, webhookBodyLimit)
	payload, err := io.ReadAll(r.Body)
	if err != nil {
		status = http.StatusBadRequest
		writeJSON(w, status, webhookErrorResponse{Error: "failed to read request body"})
		return
	}

	sigHeader := r.Header.Get("Stripe-Signature")
	if strings.TrimSpace(sigHeader) == "" {
		status = http.StatusBadRequest
		writeJSON(w, status, webhookErrorResponse{Error: "missing Stripe signature"})
		return
	}

	event, err := webhook.ConstructEventWithOptions(payload, sigHeader, h.secret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		status = http.StatusBadRequest
		writeJSON(w, status, webhookErrorResponse{Error: "invalid Stripe signature"})
		return
	}
	eventType = string(event.Type)

	if h.dedup.Seen(event.ID) {
		qmetrics.DuplicateEventsTotal.WithLabelValues("stripe").Inc()
		log.Info().Str("event_id", event.ID).Str("type", eventType).Msg("duplicate billing event dropped")
		writeJSON(w, http.StatusOK, webhookReceivedResponse{Received: true})
		return
	}

	ev, ok, err := mapStripeEvent(&event)
	if err != nil {
		status = http.StatusBadRequest
		writeJSON(w, status, webhookErrorResponse{Error: "malformed event payload"})
		return
	}
	if !ok {
		log.Info().Str("type", eventType).Str("event_id", event.ID).Msg("billing webhook ignored (unhandled type)")
		writeJSON(w, http.StatusOK, webhookReceivedResponse{Received: true})
		return
	}

	outcome, err := h.engine.Reconcile(r.Context(), ev)
	if err != nil {
		// Leave the event unmarked so the provider's redelivery retries it.
		log.Error().Err(err).
			Str("request_id", logging.RequestIDFrom(r.Context())).
			Str("event_id", event.ID).
			Str("type", eventType).
			Msg("billing webhook processing failed")
		status = http.StatusInternalServerError
		writeJSON(w, status, webhookErrorResponse{Error: "processing failed"})
		return
	}
	h.dedup.Mark(event.ID)
	qmetrics.ReconcileOutcomesTotal.WithLabelValues(ev.Type, string(outcome.Status)).Inc()

	writeJSON(w, http.StatusOK, webhookReceivedResponse{Received: true})
}

// mapStripeEvent translates a verified provider event into an inbound
// event. ok is false for event types the platform does not consume.
func mapStripeEvent(event *stripelib.Event) (entitlement.InboundEvent, bool, error) {
	ev := entitlement.InboundEvent{
		Source:     entitlement.SourceBilling,
		EventID:    event.ID,
		ReceivedAt: time.Now().UTC(),
	}

	switch event.Type {
	case "checkout.session.completed":
		var session checkoutSession
		if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
			return ev, false, err
		}
		ev.Type = entitlement.TypeCheckoutCompleted
		ev.SubjectIdentity = strings.TrimSpace(session.Metadata["identity"])
		return ev, true, nil

	case "customer.subscription.updated":
		var sub subscription
		if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
			return ev, false, err
		}
		ev.Type = entitlement.TypeSubscriptionUpdated
		ev.SubjectIdentity = strings.TrimSpace(sub.Metadata["identity"])
		ev.SubscriptionActive = sub.Status == "active"
		return ev, true, nil

	case "customer.subscription.deleted":
		var sub subscription
		if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
			return ev, false, err
		}
		ev.Type = entitlement.TypeSubscriptionDeleted
		ev.SubjectIdentity = strings.TrimSpace(sub.Metadata["identity"])
		return ev, true, nil

	default:
		return ev, false, nil
	}
}

// checkoutSession is a minimal representation of a checkout.session event.
type checkoutSession struct {
	ID       string            `json:"id"`
	Mode     string            `json:"mode"`
	Customer string            `json:"customer"`
	Metadata map[string]string `json:"metadata"`
}

// subscription is a minimal representation of a subscription event.
type subscription struct {
	ID       string            `json:"id"`
	Customer string            `json:"customer"`
	Status   string            `json:"status"`
	Metadata map[string]string `json:"metadata"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Int("status", status).Msg("intake: encode webhook response")
	}
}
