package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/quillworks/quill/internal/errors"
)

// MemoryStore is an in-process Store used by tests and by mock mode.
// It honors the same version discipline as the SQLite store so the
// optimistic-retry paths in the engines are exercised for real.
type MemoryStore struct {
	mu       sync.Mutex
	users    map[string]*UserRecord
	posts    map[string]*PostRecord
	likes    map[likeKey]time.Time
	comments map[string]*CommentRecord
}

type likeKey struct {
	postID string
	user   string
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:    make(map[string]*UserRecord),
		posts:    make(map[string]*PostRecord),
		likes:    make(map[likeKey]time.Time),
		comments: make(map[string]*CommentRecord),
	}
}

func (m *MemoryStore) GetUser(ctx context.Context, id string) (*UserRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.users[id]
	if !ok {
		return nil, errors.ErrNotFound
	}
	cp := *rec
	return &cp, nil
}

func (m *MemoryStore) CreateUser(ctx context.Context, rec *UserRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.users[rec.Identity]; exists {
		return errors.ErrVersionConflict
	}
	now := time.Now().UTC()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	rec.UpdatedAt = now
	rec.Version = 1
	cp := *rec
	m.users[rec.Identity] = &cp
	return nil
}

func (m *MemoryStore) CompareAndSwapUser(ctx context.Context, rec *UserRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	current, ok := m.users[rec.Identity]
	if !ok || current.Version != rec.Version {
		return errors.ErrVersionConflict
	}
	rec.Version++
	rec.UpdatedAt = time.Now().UTC()
	cp := *rec
	m.users[rec.Identity] = &cp
	return nil
}

func (m *MemoryStore) DeleteUser(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.users, id)
	return nil
}

func (m *MemoryStore) ListUsers(ctx context.Context, limit, offset int) ([]*UserRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*UserRecord
	for _, rec := range m.users {
		cp := *rec
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].Identity > out[j].Identity
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if limit <= 0 {
		limit = 20
	}
	if offset >= len(out) {
		return nil, nil
	}
	out = out[offset:]
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemoryStore) GetPost(ctx context.Context, id string) (*PostRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.posts[id]
	if !ok {
		return nil, errors.ErrNotFound
	}
	cp := *rec
	return &cp, nil
}

func (m *MemoryStore) CreatePost(ctx context.Context, rec *PostRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.posts[rec.ID]; exists {
		return errors.ErrVersionConflict
	}
	now := time.Now().UTC()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	rec.UpdatedAt = now
	rec.Version = 1
	cp := *rec
	m.posts[rec.ID] = &cp
	return nil
}

func (m *MemoryStore) CompareAndSwapPost(ctx context.Context, rec *PostRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	current, ok := m.posts[rec.ID]
	if !ok || current.Version != rec.Version {
		return errors.ErrVersionConflict
	}
	// Counters stay authoritative to the stored row; a content edit or
	// status change never overwrites them.
	rec.Views = current.Views
	rec.LikeCount = current.LikeCount
	rec.CommentCount = current.CommentCount
	rec.Version++
	rec.UpdatedAt = time.Now().UTC()
	cp := *rec
	m.posts[rec.ID] = &cp
	return nil
}

func (m *MemoryStore) DeletePost(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.posts, id)
	return nil
}

func (m *MemoryStore) ListPostsByAuthor(ctx context.Context, author string) ([]*PostRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*PostRecord
	for _, rec := range m.posts {
		if rec.AuthorIdentity == author {
			cp := *rec
			out = append(out, &cp)
		}
	}
	sortPostsNewestFirst(out)
	return out, nil
}

func (m *MemoryStore) ListPostsByStatus(ctx context.Context, status PostStatus, limit, offset int) ([]*PostRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*PostRecord
	for _, rec := range m.posts {
		if rec.Status == status {
			cp := *rec
			out = append(out, &cp)
		}
	}
	sortPostsNewestFirst(out)
	if limit <= 0 {
		limit = 10
	}
	if offset >= len(out) {
		return nil, nil
	}
	out = out[offset:]
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemoryStore) IncrementViews(ctx context.Context, id string) (int64, error) {
	return m.adjustCounter(id, func(rec *PostRecord) *int64 { return &rec.Views }, 1)
}

func (m *MemoryStore) AdjustLikeCount(ctx context.Context, id string, delta int64) (int64, error) {
	return m.adjustCounter(id, func(rec *PostRecord) *int64 { return &rec.LikeCount }, delta)
}

func (m *MemoryStore) AdjustCommentCount(ctx context.Context, id string, delta int64) (int64, error) {
	return m.adjustCounter(id, func(rec *PostRecord) *int64 { return &rec.CommentCount }, delta)
}

func (m *MemoryStore) adjustCounter(id string, field func(*PostRecord) *int64, delta int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.posts[id]
	if !ok {
		return 0, errors.ErrNotFound
	}
	counter := field(rec)
	*counter += delta
	if *counter < 0 {
		*counter = 0
	}
	return *counter, nil
}

func (m *MemoryStore) HasLike(ctx context.Context, postID, user string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.likes[likeKey{postID, user}]
	return ok, nil
}

func (m *MemoryStore) AddLike(ctx context.Context, postID, user string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := likeKey{postID, user}
	if _, exists := m.likes[key]; exists {
		return false, nil
	}
	m.likes[key] = time.Now().UTC()
	return true, nil
}

func (m *MemoryStore) RemoveLike(ctx context.Context, postID, user string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := likeKey{postID, user}
	if _, exists := m.likes[key]; !exists {
		return false, nil
	}
	delete(m.likes, key)
	return true, nil
}

func (m *MemoryStore) ListLikesByUser(ctx context.Context, user string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for key := range m.likes {
		if key.user == user {
			out = append(out, key.postID)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (m *MemoryStore) DeleteLikesByPost(ctx context.Context, postID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for key := range m.likes {
		if key.postID == postID {
			delete(m.likes, key)
		}
	}
	return nil
}

func (m *MemoryStore) GetComment(ctx context.Context, id string) (*CommentRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.comments[id]
	if !ok {
		return nil, errors.ErrNotFound
	}
	cp := *rec
	return &cp, nil
}

func (m *MemoryStore) CreateComment(ctx context.Context, rec *CommentRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.comments[rec.ID]; exists {
		return errors.ErrVersionConflict
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	cp := *rec
	m.comments[rec.ID] = &cp
	return nil
}

func (m *MemoryStore) DeleteComment(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.comments, id)
	return nil
}

func (m *MemoryStore) ListCommentsByPost(ctx context.Context, postID string, limit, offset int) ([]*CommentRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*CommentRecord
	for _, rec := range m.comments {
		if rec.PostID == postID {
			cp := *rec
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit <= 0 {
		limit = 20
	}
	if offset >= len(out) {
		return nil, nil
	}
	out = out[offset:]
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemoryStore) ListCommentsByAuthor(ctx context.Context, author string) ([]*CommentRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*CommentRecord
	for _, rec := range m.comments {
		if rec.AuthorIdentity == author {
			cp := *rec
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *MemoryStore) DeleteCommentsByPost(ctx context.Context, postID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, rec := range m.comments {
		if rec.PostID == postID {
			delete(m.comments, id)
		}
	}
	return nil
}

func (m *MemoryStore) Stats(ctx context.Context) (*Stats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st := &Stats{
		TotalUsers:    int64(len(m.users)),
		TotalPosts:    int64(len(m.posts)),
		TotalComments: int64(len(m.comments)),
	}
	for _, rec := range m.users {
		if rec.Role == "premium" {
			st.PremiumUsers++
		}
	}
	for _, rec := range m.posts {
		switch rec.Status {
		case PostStatusPending:
			st.PendingPosts++
		case PostStatusPublished:
			st.PublishedPosts++
		}
	}
	return st, nil
}

func sortPostsNewestFirst(posts []*PostRecord) {
	sort.Slice(posts, func(i, j int) bool {
		if posts[i].CreatedAt.Equal(posts[j].CreatedAt) {
			return posts[i].ID > posts[j].ID
		}
		return posts[i].CreatedAt.After(posts[j].CreatedAt)
	})
}
