package quota

import (
	"context"
	stderrors "errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/quillworks/quill/internal/errors"
	"github.com/quillworks/quill/internal/identity"
	"github.com/quillworks/quill/internal/store"
	"golang.org/x/sync/errgroup"
)

func seedUser(t *testing.T, s *store.MemoryStore, subject string, role identity.Role, usage int, resetAt time.Time) {
	t.Helper()
	rec := &store.UserRecord{
		Identity:     subject,
		Role:         role,
		UsageCount:   usage,
		UsageResetAt: resetAt,
	}
	if err := s.CreateUser(context.Background(), rec); err != nil {
		t.Fatalf("seed user: %v", err)
	}
}

func TestCheckAndReserveConsumesAllowance(t *testing.T) {
	s := store.NewMemoryStore()
	seedUser(t, s, "user-1", identity.RoleStandard, 0, time.Now().UTC())
	tracker := NewTracker(s, 5)

	for i := 0; i < 5; i++ {
		if err := tracker.CheckAndReserve(context.Background(), "user-1"); err != nil {
			t.Fatalf("reservation %d: %v", i+1, err)
		}
	}

	err := tracker.CheckAndReserve(context.Background(), "user-1")
	if !stderrors.Is(err, errors.ErrQuotaExceeded) {
		t.Fatalf("sixth reservation: got %v, want quota exceeded", err)
	}

	rec, _ := s.GetUser(context.Background(), "user-1")
	if rec.UsageCount != 5 {
		t.Errorf("usage count = %d, want 5 (denied attempt must not count)", rec.UsageCount)
	}
}

func TestPremiumAndAdminUnlimited(t *testing.T) {
	s := store.NewMemoryStore()
	seedUser(t, s, "prem", identity.RolePremium, 0, time.Now().UTC())
	seedUser(t, s, "root", identity.RoleAdmin, 0, time.Now().UTC())
	tracker := NewTracker(s, 2)

	for i := 0; i < 10; i++ {
		if err := tracker.CheckAndReserve(context.Background(), "prem"); err != nil {
			t.Fatalf("premium reservation %d: %v", i+1, err)
		}
		if err := tracker.CheckAndReserve(context.Background(), "root"); err != nil {
			t.Fatalf("admin reservation %d: %v", i+1, err)
		}
	}

	rec, _ := s.GetUser(context.Background(), "prem")
	if rec.UsageCount != 0 {
		t.Errorf("premium usage count = %d, counter must not move", rec.UsageCount)
	}
}

func TestLazyMonthRollover(t *testing.T) {
	s := store.NewMemoryStore()
	lastMonth := time.Date(2026, time.July, 20, 0, 0, 0, 0, time.UTC)
	seedUser(t, s, "user-1", identity.RoleStandard, 5, lastMonth)

	tracker := NewTracker(s, 5)
	tracker.now = func() time.Time {
		return time.Date(2026, time.August, 2, 0, 0, 0, 0, time.UTC)
	}

	if err := tracker.CheckAndReserve(context.Background(), "user-1"); err != nil {
		t.Fatalf("first reservation of a new month: %v", err)
	}

	rec, _ := s.GetUser(context.Background(), "user-1")
	if rec.UsageCount != 1 {
		t.Errorf("usage count = %d, want 1 after rollover", rec.UsageCount)
	}
	if !sameQuotaPeriod(rec.UsageResetAt, tracker.now()) {
		t.Errorf("reset anchor %v not moved into current period", rec.UsageResetAt)
	}
}

func TestYearBoundaryRollover(t *testing.T) {
	s := store.NewMemoryStore()
	// December of one year vs December fields a year later.
	anchor := time.Date(2025, time.December, 31, 23, 0, 0, 0, time.UTC)
	seedUser(t, s, "user-1", identity.RoleStandard, 5, anchor)

	tracker := NewTracker(s, 5)
	tracker.now = func() time.Time {
		return time.Date(2026, time.December, 1, 0, 0, 0, 0, time.UTC)
	}

	if err := tracker.CheckAndReserve(context.Background(), "user-1"); err != nil {
		t.Fatalf("same month, different year must reset: %v", err)
	}
}

func TestRemaining(t *testing.T) {
	s := store.NewMemoryStore()
	seedUser(t, s, "user-1", identity.RoleStandard, 3, time.Now().UTC())
	tracker := NewTracker(s, 5)

	remaining, err := tracker.Remaining(context.Background(), "user-1")
	if err != nil {
		t.Fatal(err)
	}
	if remaining != 2 {
		t.Errorf("remaining = %d, want 2", remaining)
	}
}

func TestConcurrentReservationsNeverOvershoot(t *testing.T) {
	s := store.NewMemoryStore()
	seedUser(t, s, "user-1", identity.RoleStandard, 4, time.Now().UTC())
	tracker := NewTracker(s, 5)

	// One unit left; many racing callers; exactly one may win.
	var granted atomic.Int32
	var g errgroup.Group
	for i := 0; i < 8; i++ {
		g.Go(func() error {
			err := tracker.CheckAndReserve(context.Background(), "user-1")
			if err == nil {
				granted.Add(1)
				return nil
			}
			if stderrors.Is(err, errors.ErrQuotaExceeded) || stderrors.Is(err, errors.ErrVersionConflict) {
				return nil
			}
			return err
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatalf("unexpected reservation error: %v", err)
	}

	if got := granted.Load(); got > 1 {
		t.Fatalf("granted = %d, want at most 1", got)
	}
	rec, _ := s.GetUser(context.Background(), "user-1")
	if rec.UsageCount > 5 {
		t.Fatalf("usage count = %d, exceeded the limit", rec.UsageCount)
	}
}
