package store

import (
	"context"
	stderrors "errors"
	"testing"
	"time"

	"github.com/quillworks/quill/internal/errors"
	"github.com/quillworks/quill/internal/identity"
	"github.com/stretchr/testify/require"
)

func newTestSQLite(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := OpenSQLite(t.TempDir())
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func testUser(id string) *UserRecord {
	return &UserRecord{
		Identity:     id,
		Email:        id + "@example.com",
		Name:         id,
		Role:         identity.RoleStandard,
		UsageResetAt: time.Now().UTC().Truncate(time.Second),
	}
}

func testPost(id, author string) *PostRecord {
	return &PostRecord{
		ID:             id,
		AuthorIdentity: author,
		Title:          "A title",
		Content:        "Some content.",
		Tags:           []string{"go", "sqlite"},
		Status:         PostStatusDraft,
	}
}

func TestSQLiteUserLifecycle(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()

	rec := testUser("alice")
	if err := s.CreateUser(ctx, rec); err != nil {
		t.Fatalf("create: %v", err)
	}
	if rec.Version != 1 {
		t.Errorf("version = %d, want 1", rec.Version)
	}

	// A replayed create of the same identity reports a conflict.
	if err := s.CreateUser(ctx, testUser("alice")); !stderrors.Is(err, errors.ErrVersionConflict) {
		t.Errorf("duplicate create: err = %v, want ErrVersionConflict", err)
	}

	got, err := s.GetUser(ctx, "alice")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Email != "alice@example.com" || got.Role != identity.RoleStandard {
		t.Errorf("round trip mismatch: %+v", got)
	}

	got.Role = identity.RolePremium
	if err := s.CompareAndSwapUser(ctx, got); err != nil {
		t.Fatalf("cas: %v", err)
	}
	if got.Version != 2 {
		t.Errorf("version after cas = %d, want 2", got.Version)
	}

	// A writer holding the old version loses.
	stale := testUser("alice")
	stale.Version = 1
	if err := s.CompareAndSwapUser(ctx, stale); !stderrors.Is(err, errors.ErrVersionConflict) {
		t.Errorf("stale cas: err = %v, want ErrVersionConflict", err)
	}
	fresh, _ := s.GetUser(ctx, "alice")
	if fresh.Role != identity.RolePremium {
		t.Errorf("stale cas changed the row: role = %s", fresh.Role)
	}

	if err := s.DeleteUser(ctx, "alice"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := s.GetUser(ctx, "alice"); !stderrors.Is(err, errors.ErrNotFound) {
		t.Errorf("get after delete: err = %v, want ErrNotFound", err)
	}
	// Deleting an absent identity is a no-op.
	if err := s.DeleteUser(ctx, "alice"); err != nil {
		t.Errorf("second delete: %v", err)
	}
}

func TestSQLiteListUsers(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()

	base := time.Now().UTC().Add(-time.Hour)
	for i, id := range []string{"u1", "u2", "u3"} {
		rec := testUser(id)
		rec.CreatedAt = base.Add(time.Duration(i) * time.Minute)
		if err := s.CreateUser(ctx, rec); err != nil {
			t.Fatalf("create %s: %v", id, err)
		}
	}

	users, err := s.ListUsers(ctx, 2, 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(users) != 2 {
		t.Fatalf("len = %d, want 2", len(users))
	}
	if users[0].Identity != "u3" {
		t.Errorf("first = %s, want newest first", users[0].Identity)
	}

	rest, err := s.ListUsers(ctx, 10, 2)
	if err != nil {
		t.Fatalf("list offset: %v", err)
	}
	if len(rest) != 1 || rest[0].Identity != "u1" {
		t.Errorf("offset page = %+v", rest)
	}
}

func TestSQLitePostCASPreservesCounters(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()

	post := testPost("p1", "alice")
	if err := s.CreatePost(ctx, post); err != nil {
		t.Fatalf("create: %v", err)
	}

	if _, err := s.IncrementViews(ctx, "p1"); err != nil {
		t.Fatalf("views: %v", err)
	}
	if _, err := s.AdjustLikeCount(ctx, "p1", 2); err != nil {
		t.Fatalf("likes: %v", err)
	}

	// A content edit through CAS must not clobber counters that moved
	// since the record was read.
	post.Title = "A better title"
	if err := s.CompareAndSwapPost(ctx, post); err != nil {
		t.Fatalf("cas: %v", err)
	}

	got, err := s.GetPost(ctx, "p1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Title != "A better title" {
		t.Errorf("title = %q", got.Title)
	}
	if got.Views != 1 || got.LikeCount != 2 {
		t.Errorf("counters lost through cas: views=%d likes=%d", got.Views, got.LikeCount)
	}
	if len(got.Tags) != 2 || got.Tags[0] != "go" {
		t.Errorf("tags round trip: %v", got.Tags)
	}
}

func TestSQLiteCounterFloor(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()

	if err := s.CreatePost(ctx, testPost("p1", "alice")); err != nil {
		t.Fatalf("create: %v", err)
	}

	n, err := s.AdjustLikeCount(ctx, "p1", -5)
	if err != nil {
		t.Fatalf("adjust: %v", err)
	}
	if n != 0 {
		t.Errorf("counter went negative: %d", n)
	}

	if _, err := s.IncrementViews(ctx, "missing"); !stderrors.Is(err, errors.ErrNotFound) {
		t.Errorf("missing post: err = %v, want ErrNotFound", err)
	}
}

func TestSQLiteLikeRelation(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()

	if err := s.CreatePost(ctx, testPost("p1", "alice")); err != nil {
		t.Fatalf("create: %v", err)
	}

	added, err := s.AddLike(ctx, "p1", "bob")
	if err != nil || !added {
		t.Fatalf("first add: added=%v err=%v", added, err)
	}
	added, err = s.AddLike(ctx, "p1", "bob")
	if err != nil || added {
		t.Fatalf("repeat add: added=%v err=%v", added, err)
	}

	has, err := s.HasLike(ctx, "p1", "bob")
	if err != nil || !has {
		t.Fatalf("has: %v %v", has, err)
	}

	posts, err := s.ListLikesByUser(ctx, "bob")
	if err != nil || len(posts) != 1 || posts[0] != "p1" {
		t.Fatalf("list by user: %v %v", posts, err)
	}

	removed, err := s.RemoveLike(ctx, "p1", "bob")
	if err != nil || !removed {
		t.Fatalf("remove: removed=%v err=%v", removed, err)
	}
	removed, err = s.RemoveLike(ctx, "p1", "bob")
	if err != nil || removed {
		t.Fatalf("repeat remove: removed=%v err=%v", removed, err)
	}
}

func TestSQLiteComments(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()

	if err := s.CreatePost(ctx, testPost("p1", "alice")); err != nil {
		t.Fatalf("create post: %v", err)
	}
	for _, id := range []string{"c1", "c2"} {
		err := s.CreateComment(ctx, &CommentRecord{
			ID:             id,
			PostID:         "p1",
			AuthorIdentity: "bob",
			Content:        "nice post",
		})
		if err != nil {
			t.Fatalf("create comment %s: %v", id, err)
		}
	}

	comments, err := s.ListCommentsByPost(ctx, "p1", 10, 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(comments) != 2 {
		t.Fatalf("len = %d, want 2", len(comments))
	}

	byAuthor, err := s.ListCommentsByAuthor(ctx, "bob")
	if err != nil || len(byAuthor) != 2 {
		t.Fatalf("by author: %v %v", byAuthor, err)
	}

	if err := s.DeleteComment(ctx, "c1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := s.GetComment(ctx, "c1"); !stderrors.Is(err, errors.ErrNotFound) {
		t.Errorf("get deleted: err = %v, want ErrNotFound", err)
	}

	if err := s.DeleteCommentsByPost(ctx, "p1"); err != nil {
		t.Fatalf("delete by post: %v", err)
	}
	comments, _ = s.ListCommentsByPost(ctx, "p1", 10, 0)
	if len(comments) != 0 {
		t.Errorf("comments remain after cascade: %d", len(comments))
	}
}

func TestSQLiteListPostsByStatus(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()

	for i, st := range []PostStatus{PostStatusDraft, PostStatusPublished, PostStatusPublished, PostStatusPending} {
		post := testPost("p"+string(rune('1'+i)), "alice")
		post.Status = st
		post.CreatedAt = time.Now().UTC().Add(time.Duration(i) * time.Minute)
		if err := s.CreatePost(ctx, post); err != nil {
			t.Fatalf("create: %v", err)
		}
	}

	published, err := s.ListPostsByStatus(ctx, PostStatusPublished, 10, 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(published) != 2 {
		t.Fatalf("published = %d, want 2", len(published))
	}
	if published[0].ID != "p3" {
		t.Errorf("first = %s, want newest first", published[0].ID)
	}

	mine, err := s.ListPostsByAuthor(ctx, "alice")
	if err != nil || len(mine) != 4 {
		t.Fatalf("by author: %d %v", len(mine), err)
	}
}

func TestSQLiteStats(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()

	prem := testUser("prem")
	prem.Role = identity.RolePremium
	require.NoError(t, s.CreateUser(ctx, prem))
	require.NoError(t, s.CreateUser(ctx, testUser("std")))

	for id, st := range map[string]PostStatus{
		"p1": PostStatusPublished,
		"p2": PostStatusPending,
		"p3": PostStatusDraft,
	} {
		post := testPost(id, "std")
		post.Status = st
		require.NoError(t, s.CreatePost(ctx, post))
	}
	require.NoError(t, s.CreateComment(ctx, &CommentRecord{ID: "c1", PostID: "p1", AuthorIdentity: "prem", Content: "hi"}))

	stats, err := s.Stats(ctx)
	require.NoError(t, err)
	require.Equal(t, Stats{
		TotalUsers:     2,
		PremiumUsers:   1,
		TotalPosts:     3,
		PendingPosts:   1,
		PublishedPosts: 1,
		TotalComments:  1,
	}, *stats)
}
