package entitlement

import "time"

// Source identifies which external system emitted an event.
type Source string

const (
	SourceBilling  Source = "billing"
	SourceIdentity Source = "identity"
)

// Event types by source.
const (
	TypeCheckoutCompleted   = "checkout_completed"
	TypeSubscriptionUpdated = "subscription_updated"
	TypeSubscriptionDeleted = "subscription_deleted"

	TypeUserCreated = "user_created"
	TypeUserUpdated = "user_updated"
	TypeUserDeleted = "user_deleted"
)

// Profile carries the denormalized profile fields an identity event may
// refresh. Role and usage are never touched through these.
type Profile struct {
	Email  string
	Name   string
	Avatar string
}

// InboundEvent is one authenticated, deduplicated external notification.
// The intake boundary builds these from provider payloads; the engine
// folds them into the user entitlement record.
type InboundEvent struct {
	Source  Source
	Type    string
	EventID string

	// SubjectIdentity is the stable identity the event is about. Empty
	// means the event is unresolvable and will be dropped.
	SubjectIdentity string

	// SubscriptionActive applies to subscription_updated events.
	SubscriptionActive bool

	Profile Profile

	ReceivedAt time.Time
}

// OutcomeStatus is the result class of reconciling one event.
type OutcomeStatus string

const (
	OutcomeApplied OutcomeStatus = "applied"
	OutcomeDropped OutcomeStatus = "dropped"
)

// Outcome reports what reconciliation did with an event.
type Outcome struct {
	Status OutcomeStatus
	Reason string // set when dropped
}

func applied() Outcome {
	return Outcome{Status: OutcomeApplied}
}

func dropped(reason string) Outcome {
	return Outcome{Status: OutcomeDropped, Reason: reason}
}
