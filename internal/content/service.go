// Package content governs the post moderation lifecycle and the
// counter mutations attached to posts. Status moves only along the
// defined transitions; counters move only through the dedicated
// operations, never through an edit.
package content

import (
	"context"
	stderrors "errors"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/quillworks/quill/internal/errors"
	"github.com/quillworks/quill/internal/identity"
	"github.com/quillworks/quill/internal/store"
)

// transitions is the closed set of legal status moves. Published is
// terminal for status; the post may still be deleted.
var transitions = map[store.PostStatus]map[store.PostStatus]bool{
	store.PostStatusDraft: {
		store.PostStatusPending:   true,
		store.PostStatusPublished: true,
	},
	store.PostStatusPending: {
		store.PostStatusPublished: true,
		store.PostStatusRejected:  true,
	},
	store.PostStatusRejected: {
		store.PostStatusPending: true,
	},
	store.PostStatusPublished: {},
}

func canTransition(from, to store.PostStatus) bool {
	return transitions[from][to]
}

// Service applies lifecycle transitions and counter mutations.
type Service struct {
	posts    store.PostStore
	likes    store.LikeStore
	comments store.CommentStore
	now      func() time.Time
	newID    func() string
}

// NewService creates a content service over the given ledger.
func NewService(s store.Store) *Service {
	return &Service{
		posts:    s,
		likes:    s,
		comments: s,
		now:      time.Now,
		newID:    func() string { return ulid.Make().String() },
	}
}

// Draft is the author-supplied content of a new post.
type Draft struct {
	Title    string
	Content  string
	Excerpt  string
	Category string
	Tags     []string
}

// CreatePost creates a new post in draft for the acting author.
func (s *Service) CreatePost(ctx context.Context, actor identity.Actor, draft Draft) (*store.PostRecord, error) {
	title := strings.TrimSpace(draft.Title)
	if title == "" {
		return nil, errors.New(errors.ErrorTypeValidation, "create_post", actor.Identity, stderrors.New("title is required"))
	}

	rec := &store.PostRecord{
		ID:             s.newID(),
		AuthorIdentity: actor.Identity,
		Title:          title,
		Content:        draft.Content,
		Excerpt:        draft.Excerpt,
		Category:       draft.Category,
		Tags:           draft.Tags,
		Status:         store.PostStatusDraft,
	}
	if err := s.posts.CreatePost(ctx, rec); err != nil {
		return nil, errors.Wrap("create_post", rec.ID, err)
	}
	return rec, nil
}

// GetPost returns the post, or ErrNotFound.
func (s *Service) GetPost(ctx context.Context, postID string) (*store.PostRecord, error) {
	rec, err := s.posts.GetPost(ctx, postID)
	if err != nil {
		return nil, errors.Wrap("get_post", postID, err)
	}
	return rec, nil
}

// ListByStatus returns posts in the given status, newest first.
func (s *Service) ListByStatus(ctx context.Context, status store.PostStatus, limit, offset int) ([]*store.PostRecord, error) {
	if !status.Valid() {
		return nil, errors.New(errors.ErrorTypeValidation, "list_posts", string(status), stderrors.New("unknown status"))
	}
	return s.posts.ListPostsByStatus(ctx, status, limit, offset)
}

// ListByAuthor returns all of an author's posts. Only the author or an
// admin may see unpublished statuses.
func (s *Service) ListByAuthor(ctx context.Context, actor identity.Actor, author string) ([]*store.PostRecord, error) {
	if actor.Identity != author && !actor.IsAdmin() {
		return nil, errors.New(errors.ErrorTypeAuth, "list_author_posts", author, errors.ErrUnauthorized)
	}
	return s.posts.ListPostsByAuthor(ctx, author)
}

// UpdateContent edits a post's authored fields. Counters and status are
// untouched; a content edit never rewrites them.
func (s *Service) UpdateContent(ctx context.Context, actor identity.Actor, postID string, draft Draft) (*store.PostRecord, error) {
	rec, err := s.posts.GetPost(ctx, postID)
	if err != nil {
		return nil, errors.Wrap("update_post", postID, err)
	}
	if rec.AuthorIdentity != actor.Identity && !actor.IsAdmin() {
		return nil, errors.New(errors.ErrorTypeAuth, "update_post", postID, errors.ErrNotAuthor)
	}

	if title := strings.TrimSpace(draft.Title); title != "" {
		rec.Title = title
	}
	if draft.Content != "" {
		rec.Content = draft.Content
	}
	if draft.Excerpt != "" {
		rec.Excerpt = draft.Excerpt
	}
	if draft.Category != "" {
		rec.Category = draft.Category
	}
	if draft.Tags != nil {
		rec.Tags = draft.Tags
	}

	if err := s.posts.CompareAndSwapPost(ctx, rec); err != nil {
		return nil, errors.Wrap("update_post", postID, err)
	}
	return rec, nil
}

// Submit moves a draft or rejected post into the moderation queue.
// The prior rejection reason is kept through resubmission so moderators
// can see what the author was asked to fix.
func (s *Service) Submit(ctx context.Context, actor identity.Actor, postID string) (*store.PostRecord, error) {
	rec, err := s.posts.GetPost(ctx, postID)
	if err != nil {
		return nil, errors.Wrap("submit_post", postID, err)
	}
	if rec.AuthorIdentity != actor.Identity && !actor.IsAdmin() {
		return nil, errors.New(errors.ErrorTypeAuth, "submit_post", postID, errors.ErrNotAuthor)
	}
	if !canTransition(rec.Status, store.PostStatusPending) {
		return nil, errors.New(errors.ErrorTypeValidation, "submit_post", postID, errors.ErrInvalidTransition)
	}

	rec.Status = store.PostStatusPending
	if err := s.posts.CompareAndSwapPost(ctx, rec); err != nil {
		return nil, errors.Wrap("submit_post", postID, err)
	}
	return rec, nil
}

// Approve publishes a pending post and stamps PublishedAt. The caller
// gates this to admins.
func (s *Service) Approve(ctx context.Context, postID string) (*store.PostRecord, error) {
	rec, err := s.posts.GetPost(ctx, postID)
	if err != nil {
		return nil, errors.Wrap("approve_post", postID, err)
	}
	if !canTransition(rec.Status, store.PostStatusPublished) || rec.Status != store.PostStatusPending {
		return nil, errors.New(errors.ErrorTypeValidation, "approve_post", postID, errors.ErrInvalidTransition)
	}

	now := s.now().UTC()
	rec.Status = store.PostStatusPublished
	rec.PublishedAt = &now
	if err := s.posts.CompareAndSwapPost(ctx, rec); err != nil {
		return nil, errors.Wrap("approve_post", postID, err)
	}
	return rec, nil
}

// Reject returns a pending post to its author with a reason. The
// caller gates this to admins.
func (s *Service) Reject(ctx context.Context, postID, reason string) (*store.PostRecord, error) {
	rec, err := s.posts.GetPost(ctx, postID)
	if err != nil {
		return nil, errors.Wrap("reject_post", postID, err)
	}
	if !canTransition(rec.Status, store.PostStatusRejected) {
		return nil, errors.New(errors.ErrorTypeValidation, "reject_post", postID, errors.ErrInvalidTransition)
	}

	rec.Status = store.PostStatusRejected
	rec.RejectionReason = reason
	if err := s.posts.CompareAndSwapPost(ctx, rec); err != nil {
		return nil, errors.Wrap("reject_post", postID, err)
	}
	return rec, nil
}

// DeletePost removes a post in any status, for the author or an admin.
// Dependent comments and likes go first so nothing is left referencing
// a missing post.
func (s *Service) DeletePost(ctx context.Context, actor identity.Actor, postID string) error {
	rec, err := s.posts.GetPost(ctx, postID)
	if err != nil {
		return errors.Wrap("delete_post", postID, err)
	}
	if rec.AuthorIdentity != actor.Identity && !actor.IsAdmin() {
		return errors.New(errors.ErrorTypeAuth, "delete_post", postID, errors.ErrNotAuthor)
	}

	if err := s.comments.DeleteCommentsByPost(ctx, postID); err != nil {
		return errors.Wrap("delete_post", postID, err)
	}
	if err := s.likes.DeleteLikesByPost(ctx, postID); err != nil {
		return errors.Wrap("delete_post", postID, err)
	}
	if err := s.posts.DeletePost(ctx, postID); err != nil {
		return errors.Wrap("delete_post", postID, err)
	}
	return nil
}
