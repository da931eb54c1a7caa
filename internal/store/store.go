// Package store is the ledger layer: point reads and writes keyed by
// user identity or post ID, versioned compare-and-swap updates, and
// atomic counter increments. It is the sole shared mutable resource;
// the engines achieve correctness through atomicity here, not through
// mutual exclusion in application code.
package store

import "context"

// UserStore persists user entitlement records.
type UserStore interface {
	// GetUser returns the record for identity, or ErrNotFound.
	GetUser(ctx context.Context, identity string) (*UserRecord, error)

	// CreateUser inserts a new record with Version 1. A concurrent or
	// replayed create of the same identity fails with ErrVersionConflict,
	// which callers treat as retryable (the record now exists).
	CreateUser(ctx context.Context, rec *UserRecord) error

	// CompareAndSwapUser writes rec conditioned on its Version matching
	// the stored row, bumping the version on success. A mismatch fails
	// with ErrVersionConflict and leaves the row unchanged.
	CompareAndSwapUser(ctx context.Context, rec *UserRecord) error

	// DeleteUser removes the record. Deleting an absent identity is a
	// no-op, not an error (idempotent-delete).
	DeleteUser(ctx context.Context, identity string) error

	// ListUsers returns user records newest first.
	ListUsers(ctx context.Context, limit, offset int) ([]*UserRecord, error)
}

// PostStore persists post records and their counters.
type PostStore interface {
	GetPost(ctx context.Context, id string) (*PostRecord, error)
	CreatePost(ctx context.Context, rec *PostRecord) error
	CompareAndSwapPost(ctx context.Context, rec *PostRecord) error
	DeletePost(ctx context.Context, id string) error

	// ListPostsByAuthor returns all posts authored by identity, any status.
	ListPostsByAuthor(ctx context.Context, identity string) ([]*PostRecord, error)

	// ListPostsByStatus returns posts in the given status, newest first.
	ListPostsByStatus(ctx context.Context, status PostStatus, limit, offset int) ([]*PostRecord, error)

	// IncrementViews atomically adds one to the view counter.
	IncrementViews(ctx context.Context, id string) (int64, error)

	// AdjustLikeCount atomically adds delta to the like counter.
	AdjustLikeCount(ctx context.Context, id string, delta int64) (int64, error)

	// AdjustCommentCount atomically adds delta to the comment counter.
	AdjustCommentCount(ctx context.Context, id string, delta int64) (int64, error)
}

// LikeStore persists the like relation. Add and Remove report whether
// they changed membership, so a caller can derive the exact counter
// delta from the observed state transition.
type LikeStore interface {
	HasLike(ctx context.Context, postID, userIdentity string) (bool, error)
	AddLike(ctx context.Context, postID, userIdentity string) (added bool, err error)
	RemoveLike(ctx context.Context, postID, userIdentity string) (removed bool, err error)
	ListLikesByUser(ctx context.Context, userIdentity string) ([]string, error)
	DeleteLikesByPost(ctx context.Context, postID string) error
}

// CommentStore persists comments.
type CommentStore interface {
	GetComment(ctx context.Context, id string) (*CommentRecord, error)
	CreateComment(ctx context.Context, rec *CommentRecord) error
	DeleteComment(ctx context.Context, id string) error
	ListCommentsByPost(ctx context.Context, postID string, limit, offset int) ([]*CommentRecord, error)
	ListCommentsByAuthor(ctx context.Context, identity string) ([]*CommentRecord, error)
	DeleteCommentsByPost(ctx context.Context, postID string) error
}

// Stats is a point-in-time census across the ledger tables.
type Stats struct {
	TotalUsers     int64 `json:"total_users"`
	PremiumUsers   int64 `json:"premium_users"`
	TotalPosts     int64 `json:"total_posts"`
	PendingPosts   int64 `json:"pending_posts"`
	PublishedPosts int64 `json:"published_posts"`
	TotalComments  int64 `json:"total_comments"`
}

// StatsStore reports aggregate counts for the admin dashboard.
type StatsStore interface {
	Stats(ctx context.Context) (*Stats, error)
}

// Store bundles the repositories a full deployment provides.
type Store interface {
	UserStore
	PostStore
	LikeStore
	CommentStore
	StatsStore
}
