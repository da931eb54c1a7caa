package store

import (
	"time"

	"github.com/quillworks/quill/internal/identity"
)

// UserRecord is one user's entitlement projection: the access tier
// reconciled from billing and identity events, plus the metered AI
// usage for the current calendar-month window.
type UserRecord struct {
	// Identity is the stable external identity reference (opaque).
	Identity string `json:"identity"`

	Email  string `json:"email"`
	Name   string `json:"name"`
	Avatar string `json:"avatar,omitempty"`

	Role identity.Role `json:"role"`

	// UsageCount is the number of metered AI actions consumed this period.
	UsageCount int `json:"usage_count"`

	// UsageResetAt anchors the current counting period. Rollover compares
	// month and year against now, not a rolling 30-day window.
	UsageResetAt time.Time `json:"usage_reset_at"`

	// Version guards compare-and-swap writes.
	Version int64 `json:"version"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// PostStatus represents the moderation lifecycle state of a post.
type PostStatus string

const (
	PostStatusDraft     PostStatus = "draft"
	PostStatusPending   PostStatus = "pending"
	PostStatusPublished PostStatus = "published"
	PostStatusRejected  PostStatus = "rejected"
)

// Valid reports whether s is one of the closed set of statuses.
func (s PostStatus) Valid() bool {
	switch s {
	case PostStatusDraft, PostStatusPending, PostStatusPublished, PostStatusRejected:
		return true
	}
	return false
}

// PostRecord is one authored content item.
//
// PublishedAt is set if and only if Status is published. RejectionReason
// is set only after a rejection; a resubmission keeps the last reason.
// Counters move only through the increment/adjust store primitives,
// never through a content edit.
type PostRecord struct {
	ID             string     `json:"id"`
	AuthorIdentity string     `json:"author_identity"`
	Title          string     `json:"title"`
	Content        string     `json:"content"`
	Excerpt        string     `json:"excerpt,omitempty"`
	Category       string     `json:"category,omitempty"`
	Tags           []string   `json:"tags,omitempty"`
	Status         PostStatus `json:"status"`

	Views        int64 `json:"views"`
	LikeCount    int64 `json:"like_count"`
	CommentCount int64 `json:"comment_count"`

	PublishedAt     *time.Time `json:"published_at,omitempty"`
	RejectionReason string     `json:"rejection_reason,omitempty"`

	Version   int64     `json:"version"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// CommentRecord is one comment on a post. The owning post's
// CommentCount is adjusted in the same logical operation as the
// comment row's creation or deletion.
type CommentRecord struct {
	ID             string    `json:"id"`
	PostID         string    `json:"post_id"`
	AuthorIdentity string    `json:"author_identity"`
	Content        string    `json:"content"`
	CreatedAt      time.Time `json:"created_at"`
}

// Like is one (user, post) pair in the like relation. Existence of the
// pair is authoritative; PostRecord.LikeCount is a derived cache.
type Like struct {
	PostID       string    `json:"post_id"`
	UserIdentity string    `json:"user_identity"`
	CreatedAt    time.Time `json:"created_at"`
}
