package store

import (
	"context"
	"database/sql"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/quillworks/quill/internal/errors"
	"github.com/quillworks/quill/internal/identity"
	_ "modernc.org/sqlite"
)

// SQLiteStore provides ledger operations backed by SQLite.
type SQLiteStore struct {
	db *sql.DB
}

var _ Store = (*SQLiteStore)(nil)

// OpenSQLite opens (or creates) the ledger database in dir.
func OpenSQLite(dir string) (*SQLiteStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create ledger dir: %w", err)
	}

	dbPath := filepath.Join(dir, "ledger.db")
	dsn := dbPath + "?" + url.Values{
		"_pragma": []string{
			"busy_timeout(30000)",
			"journal_mode(WAL)",
			"synchronous(NORMAL)",
			"foreign_keys(ON)",
		},
	}.Encode()

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open ledger db: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	s := &SQLiteStore{db: db}
	if err := s.initSchema(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS users (
		identity       TEXT PRIMARY KEY,
		email          TEXT NOT NULL DEFAULT '',
		name           TEXT NOT NULL DEFAULT '',
		avatar         TEXT NOT NULL DEFAULT '',
		role           TEXT NOT NULL DEFAULT 'standard',
		usage_count    INTEGER NOT NULL DEFAULT 0,
		usage_reset_at INTEGER NOT NULL,
		version        INTEGER NOT NULL DEFAULT 1,
		created_at     INTEGER NOT NULL,
		updated_at     INTEGER NOT NULL
	);
	CREATE TABLE IF NOT EXISTS posts (
		id               TEXT PRIMARY KEY,
		author_identity  TEXT NOT NULL,
		title            TEXT NOT NULL DEFAULT '',
		content          TEXT NOT NULL DEFAULT '',
		excerpt          TEXT NOT NULL DEFAULT '',
		category         TEXT NOT NULL DEFAULT '',
		tags             TEXT NOT NULL DEFAULT '[]',
		status           TEXT NOT NULL DEFAULT 'draft',
		views            INTEGER NOT NULL DEFAULT 0,
		like_count       INTEGER NOT NULL DEFAULT 0,
		comment_count    INTEGER NOT NULL DEFAULT 0,
		published_at     INTEGER,
		rejection_reason TEXT NOT NULL DEFAULT '',
		version          INTEGER NOT NULL DEFAULT 1,
		created_at       INTEGER NOT NULL,
		updated_at       INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_posts_author ON posts(author_identity);
	CREATE INDEX IF NOT EXISTS idx_posts_status ON posts(status, created_at DESC);
	CREATE TABLE IF NOT EXISTS likes (
		post_id       TEXT NOT NULL,
		user_identity TEXT NOT NULL,
		created_at    INTEGER NOT NULL,
		PRIMARY KEY (post_id, user_identity)
	);
	CREATE INDEX IF NOT EXISTS idx_likes_user ON likes(user_identity);
	CREATE TABLE IF NOT EXISTS comments (
		id              TEXT PRIMARY KEY,
		post_id         TEXT NOT NULL,
		author_identity TEXT NOT NULL,
		content         TEXT NOT NULL DEFAULT '',
		created_at      INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_comments_post ON comments(post_id, created_at DESC);
	CREATE INDEX IF NOT EXISTS idx_comments_author ON comments(author_identity);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("init ledger schema: %w", err)
	}
	return nil
}

// Ping checks database connectivity (used for readiness probes).
func (s *SQLiteStore) Ping() error {
	return s.db.Ping()
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// --- users ---

const userColumns = `identity, email, name, avatar, role, usage_count, usage_reset_at, version, created_at, updated_at`

func (s *SQLiteStore) GetUser(ctx context.Context, id string) (*UserRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE identity = ?`, id)
	return scanUser(row)
}

func (s *SQLiteStore) CreateUser(ctx context.Context, rec *UserRecord) error {
	if rec == nil {
		return fmt.Errorf("user record is nil")
	}
	now := time.Now().UTC()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	rec.UpdatedAt = now
	rec.Version = 1

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (`+userColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.Identity, rec.Email, rec.Name, rec.Avatar, string(rec.Role),
		rec.UsageCount, rec.UsageResetAt.Unix(), rec.Version,
		rec.CreatedAt.Unix(), rec.UpdatedAt.Unix(),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return errors.ErrVersionConflict
		}
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

func (s *SQLiteStore) CompareAndSwapUser(ctx context.Context, rec *UserRecord) error {
	if rec == nil {
		return fmt.Errorf("user record is nil")
	}
	rec.UpdatedAt = time.Now().UTC()

	res, err := s.db.ExecContext(ctx, `
		UPDATE users SET
			email = ?, name = ?, avatar = ?, role = ?,
			usage_count = ?, usage_reset_at = ?,
			version = version + 1, updated_at = ?
		WHERE identity = ? AND version = ?`,
		rec.Email, rec.Name, rec.Avatar, string(rec.Role),
		rec.UsageCount, rec.UsageResetAt.Unix(), rec.UpdatedAt.Unix(),
		rec.Identity, rec.Version,
	)
	if err != nil {
		return fmt.Errorf("cas user: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("cas user rows affected: %w", err)
	}
	if n == 0 {
		return errors.ErrVersionConflict
	}
	rec.Version++
	return nil
}

func (s *SQLiteStore) DeleteUser(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM users WHERE identity = ?`, id); err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	return nil
}

func (s *SQLiteStore) ListUsers(ctx context.Context, limit, offset int) ([]*UserRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+userColumns+` FROM users ORDER BY created_at DESC LIMIT ? OFFSET ?`,
		limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	var out []*UserRecord
	for rows.Next() {
		var rec UserRecord
		var role string
		var resetAt, createdAt, updatedAt int64
		err := rows.Scan(&rec.Identity, &rec.Email, &rec.Name, &rec.Avatar, &role,
			&rec.UsageCount, &resetAt, &rec.Version, &createdAt, &updatedAt)
		if err != nil {
			return nil, fmt.Errorf("scan user row: %w", err)
		}
		rec.Role = identity.Role(role)
		rec.UsageResetAt = time.Unix(resetAt, 0).UTC()
		rec.CreatedAt = time.Unix(createdAt, 0).UTC()
		rec.UpdatedAt = time.Unix(updatedAt, 0).UTC()
		out = append(out, &rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate users: %w", err)
	}
	return out, nil
}

func scanUser(row *sql.Row) (*UserRecord, error) {
	var rec UserRecord
	var role string
	var resetAt, createdAt, updatedAt int64
	err := row.Scan(&rec.Identity, &rec.Email, &rec.Name, &rec.Avatar, &role,
		&rec.UsageCount, &resetAt, &rec.Version, &createdAt, &updatedAt)
	if err != nil {
		if stderrors.Is(err, sql.ErrNoRows) {
			return nil, errors.ErrNotFound
		}
		return nil, fmt.Errorf("scan user: %w", err)
	}
	rec.Role = identity.Role(role)
	rec.UsageResetAt = time.Unix(resetAt, 0).UTC()
	rec.CreatedAt = time.Unix(createdAt, 0).UTC()
	rec.UpdatedAt = time.Unix(updatedAt, 0).UTC()
	return &rec, nil
}

// --- posts ---

const postColumns = `id, author_identity, title, content, excerpt, category, tags, status,
	views, like_count, comment_count, published_at, rejection_reason, version, created_at, updated_at`

func (s *SQLiteStore) GetPost(ctx context.Context, id string) (*PostRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+postColumns+` FROM posts WHERE id = ?`, id)
	return scanPost(row)
}

func (s *SQLiteStore) CreatePost(ctx context.Context, rec *PostRecord) error {
	if rec == nil {
		return fmt.Errorf("post record is nil")
	}
	now := time.Now().UTC()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	rec.UpdatedAt = now
	rec.Version = 1

	tags, err := json.Marshal(rec.Tags)
	if err != nil {
		return fmt.Errorf("encode post tags: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO posts (`+postColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.AuthorIdentity, rec.Title, rec.Content, rec.Excerpt,
		rec.Category, string(tags), string(rec.Status),
		rec.Views, rec.LikeCount, rec.CommentCount,
		nullableTimeUnix(rec.PublishedAt), rec.RejectionReason, rec.Version,
		rec.CreatedAt.Unix(), rec.UpdatedAt.Unix(),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return errors.ErrVersionConflict
		}
		return fmt.Errorf("create post: %w", err)
	}
	return nil
}

// CompareAndSwapPost writes lifecycle and content fields conditioned on
// Version. Counters are intentionally excluded: they move only through
// the atomic increment primitives and a racing increment must not be
// lost to a concurrent content edit.
func (s *SQLiteStore) CompareAndSwapPost(ctx context.Context, rec *PostRecord) error {
	if rec == nil {
		return fmt.Errorf("post record is nil")
	}
	rec.UpdatedAt = time.Now().UTC()

	tags, err := json.Marshal(rec.Tags)
	if err != nil {
		return fmt.Errorf("encode post tags: %w", err)
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE posts SET
			title = ?, content = ?, excerpt = ?, category = ?, tags = ?,
			status = ?, published_at = ?, rejection_reason = ?,
			version = version + 1, updated_at = ?
		WHERE id = ? AND version = ?`,
		rec.Title, rec.Content, rec.Excerpt, rec.Category, string(tags),
		string(rec.Status), nullableTimeUnix(rec.PublishedAt), rec.RejectionReason,
		rec.UpdatedAt.Unix(),
		rec.ID, rec.Version,
	)
	if err != nil {
		return fmt.Errorf("cas post: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("cas post rows affected: %w", err)
	}
	if n == 0 {
		return errors.ErrVersionConflict
	}
	rec.Version++
	return nil
}

func (s *SQLiteStore) DeletePost(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM posts WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete post: %w", err)
	}
	return nil
}

func (s *SQLiteStore) ListPostsByAuthor(ctx context.Context, author string) ([]*PostRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+postColumns+` FROM posts WHERE author_identity = ? ORDER BY created_at DESC`, author)
	if err != nil {
		return nil, fmt.Errorf("list posts by author: %w", err)
	}
	defer rows.Close()
	return collectPosts(rows)
}

func (s *SQLiteStore) ListPostsByStatus(ctx context.Context, status PostStatus, limit, offset int) ([]*PostRecord, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+postColumns+` FROM posts WHERE status = ? ORDER BY created_at DESC LIMIT ? OFFSET ?`,
		string(status), limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list posts by status: %w", err)
	}
	defer rows.Close()
	return collectPosts(rows)
}

func (s *SQLiteStore) IncrementViews(ctx context.Context, id string) (int64, error) {
	return s.adjustCounter(ctx, id, "views", 1)
}

func (s *SQLiteStore) AdjustLikeCount(ctx context.Context, id string, delta int64) (int64, error) {
	return s.adjustCounter(ctx, id, "like_count", delta)
}

func (s *SQLiteStore) AdjustCommentCount(ctx context.Context, id string, delta int64) (int64, error) {
	return s.adjustCounter(ctx, id, "comment_count", delta)
}

// adjustCounter is the atomic-increment primitive. MAX(0, ...) keeps a
// decrement racing a cascade delete from driving a counter negative.
func (s *SQLiteStore) adjustCounter(ctx context.Context, id, column string, delta int64) (int64, error) {
	// column is always one of the fixed counter names above.
	var newValue int64
	err := s.db.QueryRowContext(ctx,
		`UPDATE posts SET `+column+` = MAX(0, `+column+` + ?) WHERE id = ? RETURNING `+column,
		delta, id).Scan(&newValue)
	if err != nil {
		if stderrors.Is(err, sql.ErrNoRows) {
			return 0, errors.ErrNotFound
		}
		return 0, fmt.Errorf("adjust %s: %w", column, err)
	}
	return newValue, nil
}

func scanPost(row *sql.Row) (*PostRecord, error) {
	var rec PostRecord
	var status, tags string
	var publishedAt sql.NullInt64
	var createdAt, updatedAt int64
	err := row.Scan(&rec.ID, &rec.AuthorIdentity, &rec.Title, &rec.Content,
		&rec.Excerpt, &rec.Category, &tags, &status,
		&rec.Views, &rec.LikeCount, &rec.CommentCount,
		&publishedAt, &rec.RejectionReason, &rec.Version, &createdAt, &updatedAt)
	if err != nil {
		if stderrors.Is(err, sql.ErrNoRows) {
			return nil, errors.ErrNotFound
		}
		return nil, fmt.Errorf("scan post: %w", err)
	}
	finishPost(&rec, status, tags, publishedAt, createdAt, updatedAt)
	return &rec, nil
}

func collectPosts(rows *sql.Rows) ([]*PostRecord, error) {
	var out []*PostRecord
	for rows.Next() {
		var rec PostRecord
		var status, tags string
		var publishedAt sql.NullInt64
		var createdAt, updatedAt int64
		err := rows.Scan(&rec.ID, &rec.AuthorIdentity, &rec.Title, &rec.Content,
			&rec.Excerpt, &rec.Category, &tags, &status,
			&rec.Views, &rec.LikeCount, &rec.CommentCount,
			&publishedAt, &rec.RejectionReason, &rec.Version, &createdAt, &updatedAt)
		if err != nil {
			return nil, fmt.Errorf("scan post row: %w", err)
		}
		finishPost(&rec, status, tags, publishedAt, createdAt, updatedAt)
		out = append(out, &rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate posts: %w", err)
	}
	return out, nil
}

func finishPost(rec *PostRecord, status, tags string, publishedAt sql.NullInt64, createdAt, updatedAt int64) {
	rec.Status = PostStatus(status)
	if tags != "" {
		_ = json.Unmarshal([]byte(tags), &rec.Tags)
	}
	if publishedAt.Valid {
		t := time.Unix(publishedAt.Int64, 0).UTC()
		rec.PublishedAt = &t
	}
	rec.CreatedAt = time.Unix(createdAt, 0).UTC()
	rec.UpdatedAt = time.Unix(updatedAt, 0).UTC()
}

// --- likes ---

func (s *SQLiteStore) HasLike(ctx context.Context, postID, user string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx,
		`SELECT 1 FROM likes WHERE post_id = ? AND user_identity = ?`, postID, user).Scan(&one)
	if err != nil {
		if stderrors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("has like: %w", err)
	}
	return true, nil
}

func (s *SQLiteStore) AddLike(ctx context.Context, postID, user string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO likes (post_id, user_identity, created_at) VALUES (?, ?, ?)`,
		postID, user, time.Now().UTC().Unix())
	if err != nil {
		return false, fmt.Errorf("add like: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("add like rows affected: %w", err)
	}
	return n > 0, nil
}

func (s *SQLiteStore) RemoveLike(ctx context.Context, postID, user string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM likes WHERE post_id = ? AND user_identity = ?`, postID, user)
	if err != nil {
		return false, fmt.Errorf("remove like: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("remove like rows affected: %w", err)
	}
	return n > 0, nil
}

func (s *SQLiteStore) ListLikesByUser(ctx context.Context, user string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT post_id FROM likes WHERE user_identity = ?`, user)
	if err != nil {
		return nil, fmt.Errorf("list likes by user: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var postID string
		if err := rows.Scan(&postID); err != nil {
			return nil, fmt.Errorf("scan like row: %w", err)
		}
		out = append(out, postID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate likes: %w", err)
	}
	return out, nil
}

func (s *SQLiteStore) DeleteLikesByPost(ctx context.Context, postID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM likes WHERE post_id = ?`, postID); err != nil {
		return fmt.Errorf("delete likes by post: %w", err)
	}
	return nil
}

// --- comments ---

const commentColumns = `id, post_id, author_identity, content, created_at`

func (s *SQLiteStore) GetComment(ctx context.Context, id string) (*CommentRecord, error) {
	var rec CommentRecord
	var createdAt int64
	err := s.db.QueryRowContext(ctx,
		`SELECT `+commentColumns+` FROM comments WHERE id = ?`, id).
		Scan(&rec.ID, &rec.PostID, &rec.AuthorIdentity, &rec.Content, &createdAt)
	if err != nil {
		if stderrors.Is(err, sql.ErrNoRows) {
			return nil, errors.ErrNotFound
		}
		return nil, fmt.Errorf("get comment: %w", err)
	}
	rec.CreatedAt = time.Unix(createdAt, 0).UTC()
	return &rec, nil
}

func (s *SQLiteStore) CreateComment(ctx context.Context, rec *CommentRecord) error {
	if rec == nil {
		return fmt.Errorf("comment record is nil")
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO comments (`+commentColumns+`) VALUES (?, ?, ?, ?, ?)`,
		rec.ID, rec.PostID, rec.AuthorIdentity, rec.Content, rec.CreatedAt.Unix())
	if err != nil {
		if isUniqueViolation(err) {
			return errors.ErrVersionConflict
		}
		return fmt.Errorf("create comment: %w", err)
	}
	return nil
}

func (s *SQLiteStore) DeleteComment(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM comments WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete comment: %w", err)
	}
	return nil
}

func (s *SQLiteStore) ListCommentsByPost(ctx context.Context, postID string, limit, offset int) ([]*CommentRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+commentColumns+` FROM comments WHERE post_id = ? ORDER BY created_at DESC LIMIT ? OFFSET ?`,
		postID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list comments by post: %w", err)
	}
	defer rows.Close()
	return collectComments(rows)
}

func (s *SQLiteStore) ListCommentsByAuthor(ctx context.Context, author string) ([]*CommentRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+commentColumns+` FROM comments WHERE author_identity = ? ORDER BY created_at DESC`, author)
	if err != nil {
		return nil, fmt.Errorf("list comments by author: %w", err)
	}
	defer rows.Close()
	return collectComments(rows)
}

func (s *SQLiteStore) DeleteCommentsByPost(ctx context.Context, postID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM comments WHERE post_id = ?`, postID); err != nil {
		return fmt.Errorf("delete comments by post: %w", err)
	}
	return nil
}

func collectComments(rows *sql.Rows) ([]*CommentRecord, error) {
	var out []*CommentRecord
	for rows.Next() {
		var rec CommentRecord
		var createdAt int64
		if err := rows.Scan(&rec.ID, &rec.PostID, &rec.AuthorIdentity, &rec.Content, &createdAt); err != nil {
			return nil, fmt.Errorf("scan comment row: %w", err)
		}
		rec.CreatedAt = time.Unix(createdAt, 0).UTC()
		out = append(out, &rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate comments: %w", err)
	}
	return out, nil
}

// --- stats ---

func (s *SQLiteStore) Stats(ctx context.Context) (*Stats, error) {
	var st Stats
	err := s.db.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM users),
			(SELECT COUNT(*) FROM users WHERE role = 'premium'),
			(SELECT COUNT(*) FROM posts),
			(SELECT COUNT(*) FROM posts WHERE status = 'pending'),
			(SELECT COUNT(*) FROM posts WHERE status = 'published'),
			(SELECT COUNT(*) FROM comments)`).
		Scan(&st.TotalUsers, &st.PremiumUsers, &st.TotalPosts,
			&st.PendingPosts, &st.PublishedPosts, &st.TotalComments)
	if err != nil {
		return nil, fmt.Errorf("select stats: %w", err)
	}
	return &st, nil
}

// --- helpers ---

func nullableTimeUnix(t *time.Time) any {
	if t == nil || t.IsZero() {
		return nil
	}
	return t.Unix()
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "constraint failed")
}
