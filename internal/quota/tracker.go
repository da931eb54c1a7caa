// Package quota meters the monthly allowance of AI completions for
// non-premium users. The check and the increment are one atomic unit
// against the ledger, implemented as a bounded optimistic-retry loop
// over the user record version.
package quota

import (
	"context"
	stderrors "errors"
	"time"

	"github.com/quillworks/quill/internal/errors"
	"github.com/quillworks/quill/internal/identity"
	"github.com/quillworks/quill/internal/qmetrics"
	"github.com/quillworks/quill/internal/store"
	"github.com/rs/zerolog/log"
)

const (
	// DefaultMonthlyLimit is the number of metered AI actions a standard
	// user gets per calendar month.
	DefaultMonthlyLimit = 5

	// casAttempts bounds the optimistic-retry loop before surfacing a
	// transient failure.
	casAttempts = 3
)

// Tracker gates and meters AI usage per user per calendar month.
type Tracker struct {
	users store.UserStore
	limit int
	now   func() time.Time
}

// NewTracker creates a tracker over the given user store. A limit of
// zero or less falls back to the default.
func NewTracker(users store.UserStore, limit int) *Tracker {
	if limit <= 0 {
		limit = DefaultMonthlyLimit
	}
	return &Tracker{
		users: users,
		limit: limit,
		now:   time.Now,
	}
}

// Limit returns the configured monthly allowance.
func (t *Tracker) Limit() int {
	return t.limit
}

// CheckAndReserve consumes one unit of the subject's monthly allowance.
// Premium and admin users are unlimited and the counter is not touched.
// Rollover is lazy: the first access in a new calendar month resets the
// counter before the limit check. Usage is metered on attempt; a failed
// provider call after a successful reservation is not refunded.
func (t *Tracker) CheckAndReserve(ctx context.Context, subject string) error {
	for attempt := 0; attempt < casAttempts; attempt++ {
		rec, err := t.users.GetUser(ctx, subject)
		if err != nil {
			return errors.Wrap("check_and_reserve", subject, err)
		}

		if rec.Role == identity.RolePremium || rec.Role == identity.RoleAdmin {
			return nil
		}

		now := t.now().UTC()
		if !sameQuotaPeriod(now, rec.UsageResetAt) {
			rec.UsageCount = 0
			rec.UsageResetAt = now
		}

		if rec.UsageCount >= t.limit {
			qmetrics.QuotaDenialsTotal.Inc()
			return errors.New(errors.ErrorTypeQuota, "check_and_reserve", subject, errors.ErrQuotaExceeded)
		}

		rec.UsageCount++
		err = t.users.CompareAndSwapUser(ctx, rec)
		if err == nil {
			return nil
		}
		if !stderrors.Is(err, errors.ErrVersionConflict) {
			return errors.Wrap("check_and_reserve", subject, err)
		}
		// Lost the race; re-read and re-decide from current state.
	}

	log.Warn().Str("identity", subject).Int("attempts", casAttempts).Msg("quota reservation contended")
	return errors.New(errors.ErrorTypeConflict, "check_and_reserve", subject, errors.ErrVersionConflict)
}

// Remaining reports how many units the subject has left this period
// without consuming one. Premium and admin report the full limit.
func (t *Tracker) Remaining(ctx context.Context, subject string) (int, error) {
	rec, err := t.users.GetUser(ctx, subject)
	if err != nil {
		return 0, errors.Wrap("quota_remaining", subject, err)
	}
	if rec.Role == identity.RolePremium || rec.Role == identity.RoleAdmin {
		return t.limit, nil
	}
	if !sameQuotaPeriod(t.now().UTC(), rec.UsageResetAt) {
		return t.limit, nil
	}
	remaining := t.limit - rec.UsageCount
	if remaining < 0 {
		remaining = 0
	}
	return remaining, nil
}

// sameQuotaPeriod reports whether two instants fall in the same
// calendar month. The window is month+year, not a rolling 30 days.
func sameQuotaPeriod(a, b time.Time) bool {
	return a.Year() == b.Year() && a.Month() == b.Month()
}
