// Package entitlement folds billing and identity lifecycle events into
// each user's role projection. Delivery is at-least-once, possibly
// duplicated and out of order, so the fold is a precedence rule over
// the current record rather than a replay of event order: admin
// outranks billing for role, billing only moves standard and premium,
// identity events only create and delete.
package entitlement

import (
	"context"
	stderrors "errors"
	"time"

	"github.com/quillworks/quill/internal/errors"
	"github.com/quillworks/quill/internal/identity"
	"github.com/quillworks/quill/internal/store"
	"github.com/rs/zerolog/log"
)

// Engine reconciles inbound events against the ledger. It performs no
// internal retries: a store failure propagates to the intake boundary,
// which answers the provider so its redelivery acts as the retry loop.
type Engine struct {
	users    store.UserStore
	posts    store.PostStore
	likes    store.LikeStore
	comments store.CommentStore
	now      func() time.Time
}

// NewEngine creates a reconciliation engine over the given ledger.
func NewEngine(s store.Store) *Engine {
	return &Engine{
		users:    s,
		posts:    s,
		likes:    s,
		comments: s,
		now:      time.Now,
	}
}

// Reconcile applies one authenticated, deduplicated event. A returned
// error means the write failed and the event should be redelivered;
// a Dropped outcome means redelivery cannot help and the event is done.
func (e *Engine) Reconcile(ctx context.Context, ev InboundEvent) (Outcome, error) {
	if ev.SubjectIdentity == "" {
		// Retrying cannot supply missing data.
		log.Warn().
			Str("source", string(ev.Source)).
			Str("type", ev.Type).
			Str("event_id", ev.EventID).
			Err(errors.ErrUnresolvedSubject).
			Msg("event dropped")
		return dropped("unresolved subject"), nil
	}

	switch ev.Source {
	case SourceBilling:
		return e.reconcileBilling(ctx, ev)
	case SourceIdentity:
		return e.reconcileIdentity(ctx, ev)
	default:
		log.Info().
			Str("source", string(ev.Source)).
			Str("type", ev.Type).
			Str("event_id", ev.EventID).
			Msg("event ignored (unknown source)")
		return dropped("unknown source"), nil
	}
}

func (e *Engine) reconcileBilling(ctx context.Context, ev InboundEvent) (Outcome, error) {
	switch ev.Type {
	case TypeCheckoutCompleted:
		return e.applyCheckout(ctx, ev)
	case TypeSubscriptionUpdated:
		target := identity.RoleStandard
		if ev.SubscriptionActive {
			target = identity.RolePremium
		}
		return e.applyBillingRole(ctx, ev, target)
	case TypeSubscriptionDeleted:
		return e.applyBillingRole(ctx, ev, identity.RoleStandard)
	default:
		log.Info().Str("type", ev.Type).Str("event_id", ev.EventID).Msg("billing event ignored (unhandled type)")
		return dropped("unhandled billing type"), nil
	}
}

// applyCheckout upgrades the subject to premium and grants a fresh
// quota period. A checkout for an identity whose create event has not
// arrived yet creates the record so the upgrade is not lost to delivery
// disorder; the late user_created is then a no-op for role and usage.
func (e *Engine) applyCheckout(ctx context.Context, ev InboundEvent) (Outcome, error) {
	now := e.now().UTC()

	rec, err := e.users.GetUser(ctx, ev.SubjectIdentity)
	if stderrors.Is(err, errors.ErrNotFound) {
		rec = &store.UserRecord{
			Identity:     ev.SubjectIdentity,
			Role:         identity.RolePremium,
			UsageCount:   0,
			UsageResetAt: now,
		}
		if err := e.users.CreateUser(ctx, rec); err != nil {
			return Outcome{}, errors.Wrap("reconcile_checkout", ev.SubjectIdentity, err)
		}
		log.Info().Str("identity", ev.SubjectIdentity).Msg("user upgraded to premium")
		return applied(), nil
	}
	if err != nil {
		return Outcome{}, errors.Wrap("reconcile_checkout", ev.SubjectIdentity, err)
	}

	// Admin is never billing-derived and never billing-downgraded.
	if rec.Role != identity.RoleAdmin {
		rec.Role = identity.RolePremium
	}
	rec.UsageCount = 0
	rec.UsageResetAt = now
	if err := e.users.CompareAndSwapUser(ctx, rec); err != nil {
		return Outcome{}, errors.Wrap("reconcile_checkout", ev.SubjectIdentity, err)
	}
	log.Info().Str("identity", ev.SubjectIdentity).Str("role", rec.Role.String()).Msg("checkout applied")
	return applied(), nil
}

// applyBillingRole moves the subject between standard and premium.
// Unknown identities are dropped rather than created: identity events
// govern existence, and materializing a record from a downgrade would
// resurrect a deleted user.
func (e *Engine) applyBillingRole(ctx context.Context, ev InboundEvent, target identity.Role) (Outcome, error) {
	rec, err := e.users.GetUser(ctx, ev.SubjectIdentity)
	if stderrors.Is(err, errors.ErrNotFound) {
		log.Info().Str("identity", ev.SubjectIdentity).Str("type", ev.Type).Msg("billing event for unknown identity dropped")
		return dropped("unknown identity"), nil
	}
	if err != nil {
		return Outcome{}, errors.Wrap("reconcile_subscription", ev.SubjectIdentity, err)
	}

	if rec.Role == identity.RoleAdmin {
		return applied(), nil
	}
	if rec.Role == target {
		return applied(), nil
	}

	rec.Role = target
	if err := e.users.CompareAndSwapUser(ctx, rec); err != nil {
		return Outcome{}, errors.Wrap("reconcile_subscription", ev.SubjectIdentity, err)
	}
	log.Info().Str("identity", ev.SubjectIdentity).Str("role", target.String()).Msg("subscription state applied")
	return applied(), nil
}

func (e *Engine) reconcileIdentity(ctx context.Context, ev InboundEvent) (Outcome, error) {
	switch ev.Type {
	case TypeUserCreated:
		return e.applyUserCreated(ctx, ev)
	case TypeUserUpdated:
		return e.applyUserUpdated(ctx, ev)
	case TypeUserDeleted:
		return e.applyUserDeleted(ctx, ev)
	default:
		log.Info().Str("type", ev.Type).Str("event_id", ev.EventID).Msg("identity event ignored (unhandled type)")
		return dropped("unhandled identity type"), nil
	}
}

// applyUserCreated is an idempotent create. When the record already
// exists (a replay, or a checkout that arrived first) role and usage
// are left alone and only profile fields refresh.
func (e *Engine) applyUserCreated(ctx context.Context, ev InboundEvent) (Outcome, error) {
	rec, err := e.users.GetUser(ctx, ev.SubjectIdentity)
	if stderrors.Is(err, errors.ErrNotFound) {
		now := e.now().UTC()
		rec = &store.UserRecord{
			Identity:     ev.SubjectIdentity,
			Email:        ev.Profile.Email,
			Name:         ev.Profile.Name,
			Avatar:       ev.Profile.Avatar,
			Role:         identity.RoleStandard,
			UsageCount:   0,
			UsageResetAt: now,
		}
		if err := e.users.CreateUser(ctx, rec); err != nil {
			return Outcome{}, errors.Wrap("reconcile_user_created", ev.SubjectIdentity, err)
		}
		log.Info().Str("identity", ev.SubjectIdentity).Msg("user created")
		return applied(), nil
	}
	if err != nil {
		return Outcome{}, errors.Wrap("reconcile_user_created", ev.SubjectIdentity, err)
	}

	if !refreshProfile(rec, ev.Profile) {
		return applied(), nil
	}
	if err := e.users.CompareAndSwapUser(ctx, rec); err != nil {
		return Outcome{}, errors.Wrap("reconcile_user_created", ev.SubjectIdentity, err)
	}
	return applied(), nil
}

func (e *Engine) applyUserUpdated(ctx context.Context, ev InboundEvent) (Outcome, error) {
	rec, err := e.users.GetUser(ctx, ev.SubjectIdentity)
	if stderrors.Is(err, errors.ErrNotFound) {
		return dropped("unknown identity"), nil
	}
	if err != nil {
		return Outcome{}, errors.Wrap("reconcile_user_updated", ev.SubjectIdentity, err)
	}

	if !refreshProfile(rec, ev.Profile) {
		return applied(), nil
	}
	if err := e.users.CompareAndSwapUser(ctx, rec); err != nil {
		return Outcome{}, errors.Wrap("reconcile_user_updated", ev.SubjectIdentity, err)
	}
	return applied(), nil
}

// applyUserDeleted removes the subject and everything they authored:
// their comments on other posts (with counter adjustments on the
// surviving posts), their likes, their posts with dependent comments
// and likes, and finally the entitlement record. Every step is
// idempotent so a redelivered event after a partial failure converges.
func (e *Engine) applyUserDeleted(ctx context.Context, ev InboundEvent) (Outcome, error) {
	subject := ev.SubjectIdentity
	wrap := func(err error) (Outcome, error) {
		return Outcome{}, errors.Wrap("reconcile_user_deleted", subject, err)
	}

	comments, err := e.comments.ListCommentsByAuthor(ctx, subject)
	if err != nil {
		return wrap(err)
	}
	for _, c := range comments {
		if err := e.comments.DeleteComment(ctx, c.ID); err != nil {
			return wrap(err)
		}
		if _, err := e.posts.AdjustCommentCount(ctx, c.PostID, -1); err != nil && !stderrors.Is(err, errors.ErrNotFound) {
			return wrap(err)
		}
	}

	likedPosts, err := e.likes.ListLikesByUser(ctx, subject)
	if err != nil {
		return wrap(err)
	}
	for _, postID := range likedPosts {
		removed, err := e.likes.RemoveLike(ctx, postID, subject)
		if err != nil {
			return wrap(err)
		}
		if !removed {
			continue
		}
		if _, err := e.posts.AdjustLikeCount(ctx, postID, -1); err != nil && !stderrors.Is(err, errors.ErrNotFound) {
			return wrap(err)
		}
	}

	posts, err := e.posts.ListPostsByAuthor(ctx, subject)
	if err != nil {
		return wrap(err)
	}
	for _, p := range posts {
		if err := e.comments.DeleteCommentsByPost(ctx, p.ID); err != nil {
			return wrap(err)
		}
		if err := e.likes.DeleteLikesByPost(ctx, p.ID); err != nil {
			return wrap(err)
		}
		if err := e.posts.DeletePost(ctx, p.ID); err != nil {
			return wrap(err)
		}
	}

	if err := e.users.DeleteUser(ctx, subject); err != nil {
		return wrap(err)
	}
	log.Info().
		Str("identity", subject).
		Int("posts", len(posts)).
		Int("comments", len(comments)).
		Msg("user deleted with cascade")
	return applied(), nil
}

// refreshProfile copies non-empty profile fields onto rec, reporting
// whether anything changed.
func refreshProfile(rec *store.UserRecord, p Profile) bool {
	changed := false
	if p.Email != "" && p.Email != rec.Email {
		rec.Email = p.Email
		changed = true
	}
	if p.Name != "" && p.Name != rec.Name {
		rec.Name = p.Name
		changed = true
	}
	if p.Avatar != "" && p.Avatar != rec.Avatar {
		rec.Avatar = p.Avatar
		changed = true
	}
	return changed
}
