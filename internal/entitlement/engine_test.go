package entitlement

import (
	"context"
	"testing"

	"github.com/quillworks/quill/internal/identity"
	"github.com/quillworks/quill/internal/store"
)

func billingEvent(eventType, subject string) InboundEvent {
	return InboundEvent{
		Source:          SourceBilling,
		Type:            eventType,
		EventID:         "evt_" + eventType + "_" + subject,
		SubjectIdentity: subject,
	}
}

func identityEvent(eventType, subject string, profile Profile) InboundEvent {
	return InboundEvent{
		Source:          SourceIdentity,
		Type:            eventType,
		EventID:         "evt_" + eventType + "_" + subject,
		SubjectIdentity: subject,
		Profile:         profile,
	}
}

func mustApply(t *testing.T, engine *Engine, ev InboundEvent) {
	t.Helper()
	outcome, err := engine.Reconcile(context.Background(), ev)
	if err != nil {
		t.Fatalf("reconcile %s: %v", ev.Type, err)
	}
	if outcome.Status != OutcomeApplied {
		t.Fatalf("reconcile %s: got %s (%s), want applied", ev.Type, outcome.Status, outcome.Reason)
	}
}

func mustDrop(t *testing.T, engine *Engine, ev InboundEvent) Outcome {
	t.Helper()
	outcome, err := engine.Reconcile(context.Background(), ev)
	if err != nil {
		t.Fatalf("reconcile %s: %v", ev.Type, err)
	}
	if outcome.Status != OutcomeDropped {
		t.Fatalf("reconcile %s: got %s, want dropped", ev.Type, outcome.Status)
	}
	return outcome
}

func TestCheckoutCreatesMissingUser(t *testing.T) {
	s := store.NewMemoryStore()
	engine := NewEngine(s)

	mustApply(t, engine, billingEvent(TypeCheckoutCompleted, "user-1"))

	rec, err := s.GetUser(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("get user: %v", err)
	}
	if rec.Role != identity.RolePremium {
		t.Errorf("role = %s, want premium", rec.Role)
	}
	if rec.UsageCount != 0 {
		t.Errorf("usage count = %d, want 0", rec.UsageCount)
	}
}

func TestCheckoutBeforeUserCreatedKeepsPremium(t *testing.T) {
	s := store.NewMemoryStore()
	engine := NewEngine(s)

	// Checkout arrives before the identity create event.
	mustApply(t, engine, billingEvent(TypeCheckoutCompleted, "user-1"))
	mustApply(t, engine, identityEvent(TypeUserCreated, "user-1", Profile{Email: "a@b.c", Name: "Ada"}))

	rec, err := s.GetUser(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("get user: %v", err)
	}
	if rec.Role != identity.RolePremium {
		t.Errorf("role = %s, want premium (late user_created must not downgrade)", rec.Role)
	}
	if rec.Email != "a@b.c" || rec.Name != "Ada" {
		t.Errorf("profile not refreshed: %+v", rec)
	}
}

func TestCheckoutResetsUsage(t *testing.T) {
	s := store.NewMemoryStore()
	engine := NewEngine(s)

	mustApply(t, engine, identityEvent(TypeUserCreated, "user-1", Profile{}))
	rec, _ := s.GetUser(context.Background(), "user-1")
	rec.UsageCount = 4
	if err := s.CompareAndSwapUser(context.Background(), rec); err != nil {
		t.Fatalf("seed usage: %v", err)
	}

	mustApply(t, engine, billingEvent(TypeCheckoutCompleted, "user-1"))

	rec, _ = s.GetUser(context.Background(), "user-1")
	if rec.UsageCount != 0 {
		t.Errorf("usage count = %d, want 0 after checkout", rec.UsageCount)
	}
}

func TestSubscriptionLifecycle(t *testing.T) {
	s := store.NewMemoryStore()
	engine := NewEngine(s)

	mustApply(t, engine, identityEvent(TypeUserCreated, "user-1", Profile{}))

	active := billingEvent(TypeSubscriptionUpdated, "user-1")
	active.SubscriptionActive = true
	mustApply(t, engine, active)

	rec, _ := s.GetUser(context.Background(), "user-1")
	if rec.Role != identity.RolePremium {
		t.Fatalf("role = %s, want premium after active subscription", rec.Role)
	}

	mustApply(t, engine, billingEvent(TypeSubscriptionDeleted, "user-1"))
	rec, _ = s.GetUser(context.Background(), "user-1")
	if rec.Role != identity.RoleStandard {
		t.Fatalf("role = %s, want standard after cancellation", rec.Role)
	}

	// Redelivery of the cancellation converges on the same state.
	mustApply(t, engine, billingEvent(TypeSubscriptionDeleted, "user-1"))
	rec, _ = s.GetUser(context.Background(), "user-1")
	if rec.Role != identity.RoleStandard {
		t.Fatalf("role = %s after replay, want standard", rec.Role)
	}
}

func TestSubscriptionEventForUnknownIdentityDropped(t *testing.T) {
	s := store.NewMemoryStore()
	engine := NewEngine(s)

	mustDrop(t, engine, billingEvent(TypeSubscriptionDeleted, "ghost"))

	if _, err := s.GetUser(context.Background(), "ghost"); err == nil {
		t.Fatal("downgrade event must not materialize a user record")
	}
}

func TestAdminRoleSurvivesBillingEvents(t *testing.T) {
	s := store.NewMemoryStore()
	engine := NewEngine(s)

	mustApply(t, engine, identityEvent(TypeUserCreated, "root", Profile{}))
	rec, _ := s.GetUser(context.Background(), "root")
	rec.Role = identity.RoleAdmin
	if err := s.CompareAndSwapUser(context.Background(), rec); err != nil {
		t.Fatalf("promote admin: %v", err)
	}

	mustApply(t, engine, billingEvent(TypeCheckoutCompleted, "root"))
	mustApply(t, engine, billingEvent(TypeSubscriptionDeleted, "root"))

	rec, _ = s.GetUser(context.Background(), "root")
	if rec.Role != identity.RoleAdmin {
		t.Fatalf("role = %s, want admin regardless of billing", rec.Role)
	}
}

func TestUnresolvedSubjectDropped(t *testing.T) {
	engine := NewEngine(store.NewMemoryStore())

	outcome := mustDrop(t, engine, billingEvent(TypeCheckoutCompleted, ""))
	if outcome.Reason != "unresolved subject" {
		t.Errorf("reason = %q", outcome.Reason)
	}
}

func TestUserCreatedIsIdempotent(t *testing.T) {
	s := store.NewMemoryStore()
	engine := NewEngine(s)

	mustApply(t, engine, identityEvent(TypeUserCreated, "user-1", Profile{Email: "a@b.c"}))
	mustApply(t, engine, identityEvent(TypeUserCreated, "user-1", Profile{Email: "a@b.c"}))

	rec, err := s.GetUser(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("get user: %v", err)
	}
	if rec.Role != identity.RoleStandard {
		t.Errorf("role = %s, want standard", rec.Role)
	}
}

func TestUserUpdatedRefreshesProfileOnly(t *testing.T) {
	s := store.NewMemoryStore()
	engine := NewEngine(s)

	mustApply(t, engine, identityEvent(TypeUserCreated, "user-1", Profile{Email: "old@b.c"}))
	mustApply(t, engine, billingEvent(TypeCheckoutCompleted, "user-1"))
	mustApply(t, engine, identityEvent(TypeUserUpdated, "user-1", Profile{Email: "new@b.c", Name: "Ada"}))

	rec, _ := s.GetUser(context.Background(), "user-1")
	if rec.Email != "new@b.c" || rec.Name != "Ada" {
		t.Errorf("profile not refreshed: %+v", rec)
	}
	if rec.Role != identity.RolePremium {
		t.Errorf("role = %s, update must not touch role", rec.Role)
	}
}

func TestUserUpdatedForUnknownIdentityDropped(t *testing.T) {
	engine := NewEngine(store.NewMemoryStore())
	mustDrop(t, engine, identityEvent(TypeUserUpdated, "ghost", Profile{Email: "x@y.z"}))
}

func TestUserDeletedCascades(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()
	engine := NewEngine(s)

	mustApply(t, engine, identityEvent(TypeUserCreated, "alice", Profile{}))
	mustApply(t, engine, identityEvent(TypeUserCreated, "bob", Profile{}))

	// Alice authors a post; Bob likes and comments on it.
	alicePost := &store.PostRecord{ID: "p-alice", AuthorIdentity: "alice", Title: "t", Status: store.PostStatusPublished}
	if err := s.CreatePost(ctx, alicePost); err != nil {
		t.Fatalf("create post: %v", err)
	}
	if _, err := s.AddLike(ctx, "p-alice", "bob"); err != nil {
		t.Fatal(err)
	}
	if _, err := s.AdjustLikeCount(ctx, "p-alice", 1); err != nil {
		t.Fatal(err)
	}
	if err := s.CreateComment(ctx, &store.CommentRecord{ID: "c-bob", PostID: "p-alice", AuthorIdentity: "bob"}); err != nil {
		t.Fatal(err)
	}
	if _, err := s.AdjustCommentCount(ctx, "p-alice", 1); err != nil {
		t.Fatal(err)
	}

	// Bob authors a post; Alice likes and comments on it.
	bobPost := &store.PostRecord{ID: "p-bob", AuthorIdentity: "bob", Title: "t", Status: store.PostStatusPublished}
	if err := s.CreatePost(ctx, bobPost); err != nil {
		t.Fatal(err)
	}
	if _, err := s.AddLike(ctx, "p-bob", "alice"); err != nil {
		t.Fatal(err)
	}
	if _, err := s.AdjustLikeCount(ctx, "p-bob", 1); err != nil {
		t.Fatal(err)
	}
	if err := s.CreateComment(ctx, &store.CommentRecord{ID: "c-alice", PostID: "p-bob", AuthorIdentity: "alice"}); err != nil {
		t.Fatal(err)
	}
	if _, err := s.AdjustCommentCount(ctx, "p-bob", 1); err != nil {
		t.Fatal(err)
	}

	mustApply(t, engine, identityEvent(TypeUserDeleted, "alice", Profile{}))

	if _, err := s.GetUser(ctx, "alice"); err == nil {
		t.Error("alice's record should be gone")
	}
	if _, err := s.GetPost(ctx, "p-alice"); err == nil {
		t.Error("alice's post should be gone")
	}
	if _, err := s.GetComment(ctx, "c-bob"); err == nil {
		t.Error("comments on alice's post should be gone")
	}

	// Bob's post survives with alice's marks removed.
	rec, err := s.GetPost(ctx, "p-bob")
	if err != nil {
		t.Fatalf("bob's post: %v", err)
	}
	if rec.LikeCount != 0 {
		t.Errorf("bob's post like count = %d, want 0", rec.LikeCount)
	}
	if rec.CommentCount != 0 {
		t.Errorf("bob's post comment count = %d, want 0", rec.CommentCount)
	}
	if _, err := s.GetComment(ctx, "c-alice"); err == nil {
		t.Error("alice's comment on bob's post should be gone")
	}

	// Redelivery after completion converges without error.
	mustApply(t, engine, identityEvent(TypeUserDeleted, "alice", Profile{}))
}
