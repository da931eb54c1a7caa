package content

import (
	"context"
	stderrors "errors"
	"strings"

	"github.com/quillworks/quill/internal/errors"
	"github.com/quillworks/quill/internal/identity"
	"github.com/quillworks/quill/internal/store"
	"github.com/rs/zerolog/log"
)

// IncrementView bumps the view counter. It is read-path telemetry:
// callable on any status, and a failure must never fail the read that
// triggered it, so errors are logged and swallowed.
func (s *Service) IncrementView(ctx context.Context, postID string) {
	if _, err := s.posts.IncrementViews(ctx, postID); err != nil {
		log.Debug().Err(err).Str("post_id", postID).Msg("view increment failed")
	}
}

// ToggleLike flips the actor's membership in the post's like relation
// and adjusts the cached counter by the observed change. The outcome is
// a function of current membership, never a client-supplied boolean, so
// duplicate calls converge instead of double-counting. The counter
// delta follows the membership write that actually happened, so two
// racing toggles from the same user settle to one net change.
func (s *Service) ToggleLike(ctx context.Context, actor identity.Actor, postID string) (liked bool, likeCount int64, err error) {
	if _, err := s.posts.GetPost(ctx, postID); err != nil {
		return false, 0, errors.Wrap("toggle_like", postID, err)
	}

	has, err := s.likes.HasLike(ctx, postID, actor.Identity)
	if err != nil {
		return false, 0, errors.Wrap("toggle_like", postID, err)
	}

	if has {
		removed, err := s.likes.RemoveLike(ctx, postID, actor.Identity)
		if err != nil {
			return false, 0, errors.Wrap("toggle_like", postID, err)
		}
		var count int64
		if removed {
			count, err = s.posts.AdjustLikeCount(ctx, postID, -1)
		} else {
			// A racing toggle already removed the membership; report
			// the counter as it stands.
			count, err = s.currentLikeCount(ctx, postID)
		}
		if err != nil {
			return false, 0, errors.Wrap("toggle_like", postID, err)
		}
		return false, count, nil
	}

	added, err := s.likes.AddLike(ctx, postID, actor.Identity)
	if err != nil {
		return false, 0, errors.Wrap("toggle_like", postID, err)
	}
	var count int64
	if added {
		count, err = s.posts.AdjustLikeCount(ctx, postID, 1)
	} else {
		count, err = s.currentLikeCount(ctx, postID)
	}
	if err != nil {
		return false, 0, errors.Wrap("toggle_like", postID, err)
	}
	return true, count, nil
}

func (s *Service) currentLikeCount(ctx context.Context, postID string) (int64, error) {
	post, err := s.posts.GetPost(ctx, postID)
	if err != nil {
		return 0, err
	}
	return post.LikeCount, nil
}

// AddComment creates a comment and bumps the owning post's counter in
// the same logical operation.
func (s *Service) AddComment(ctx context.Context, actor identity.Actor, postID, content string) (*store.CommentRecord, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, errors.New(errors.ErrorTypeValidation, "add_comment", postID, stderrors.New("content is required"))
	}

	if _, err := s.posts.GetPost(ctx, postID); err != nil {
		return nil, errors.Wrap("add_comment", postID, err)
	}

	rec := &store.CommentRecord{
		ID:             s.newID(),
		PostID:         postID,
		AuthorIdentity: actor.Identity,
		Content:        content,
	}
	if err := s.comments.CreateComment(ctx, rec); err != nil {
		return nil, errors.Wrap("add_comment", postID, err)
	}
	if _, err := s.posts.AdjustCommentCount(ctx, postID, 1); err != nil {
		return nil, errors.Wrap("add_comment", postID, err)
	}
	return rec, nil
}

// RemoveComment deletes a comment, for its author or an admin, and
// decrements the owning post's counter in the same logical operation.
func (s *Service) RemoveComment(ctx context.Context, actor identity.Actor, commentID string) error {
	rec, err := s.comments.GetComment(ctx, commentID)
	if err != nil {
		return errors.Wrap("remove_comment", commentID, err)
	}
	if rec.AuthorIdentity != actor.Identity && !actor.IsAdmin() {
		return errors.New(errors.ErrorTypeAuth, "remove_comment", commentID, errors.ErrNotAuthor)
	}

	if err := s.comments.DeleteComment(ctx, commentID); err != nil {
		return errors.Wrap("remove_comment", commentID, err)
	}
	if _, err := s.posts.AdjustCommentCount(ctx, rec.PostID, -1); err != nil && !stderrors.Is(err, errors.ErrNotFound) {
		return errors.Wrap("remove_comment", commentID, err)
	}
	return nil
}

// ListComments returns a post's comments, newest first.
func (s *Service) ListComments(ctx context.Context, postID string, limit, offset int) ([]*store.CommentRecord, error) {
	return s.comments.ListCommentsByPost(ctx, postID, limit, offset)
}
