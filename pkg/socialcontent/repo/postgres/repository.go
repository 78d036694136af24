package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/tendant/social-content/pkg/socialcontent"
)

// DBTX is an interface that allows us to use either a database connection or a transaction
type DBTX interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
}

// beginner is implemented by pools, connections and transactions.
type beginner interface {
	Begin(context.Context) (pgx.Tx, error)
}

// Repository implements socialcontent.Repository and
// socialcontent.FeedRepository using PostgreSQL
type Repository struct {
	db DBTX
}

var (
	_ socialcontent.Repository     = (*Repository)(nil)
	_ socialcontent.FeedRepository = (*Repository)(nil)
)

// New creates a new PostgreSQL repository
func New(db DBTX) *Repository {
	return &Repository{db: db}
}

// NewWithPool creates a new PostgreSQL repository with connection pool
func NewWithPool(pool *pgxpool.Pool) *Repository {
	return &Repository{db: pool}
}

// Error handling helper
func (r *Repository) handlePostgresError(operation string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505": // unique_violation
			return fmt.Errorf("%w: %s violates %s", socialcontent.ErrConflict, operation, pgErr.ConstraintName)
		case "23503": // foreign_key_violation
			return fmt.Errorf("%w: %s references a missing record (%s)", socialcontent.ErrNotFound, operation, pgErr.ConstraintName)
		case "23502": // not_null_violation
			return fmt.Errorf("%w: required field %s is missing", socialcontent.ErrInvalidInput, pgErr.ColumnName)
		case "42P01": // undefined_table
			return fmt.Errorf("table does not exist - database migration required")
		default:
			return fmt.Errorf("database error in %s: %s (code: %s)", operation, pgErr.Message, pgErr.Code)
		}
	}
	return fmt.Errorf("database error in %s: %w", operation, err)
}

// inTx runs fn inside a transaction when the underlying DBTX can open one.
func (r *Repository) inTx(ctx context.Context, fn func(DBTX) error) error {
	b, ok := r.db.(beginner)
	if !ok {
		return fn(r.db)
	}
	tx, err := b.Begin(ctx)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	return tx.Commit(ctx)
}

func purgeColumn(p socialcontent.PurgeState) *time.Time {
	if !p.Pending {
		return nil
	}
	at := p.MarkedAt
	return &at
}

func purgeState(markedAt *time.Time) socialcontent.PurgeState {
	if markedAt == nil {
		return socialcontent.PurgeState{}
	}
	return socialcontent.PendingPurge(*markedAt)
}

func nullUUID(id *uuid.UUID) uuid.NullUUID {
	if id == nil {
		return uuid.NullUUID{}
	}
	return uuid.NullUUID{UUID: *id, Valid: true}
}

func uuidPtr(n uuid.NullUUID) *uuid.UUID {
	if !n.Valid {
		return nil
	}
	id := n.UUID
	return &id
}

// File operations

const fileColumns = `id, fingerprint, media_type, category, file_name, size_bytes,
	duration_ms, url, cover_id, purge_marked_at, created_at`

func scanFile(row pgx.Row) (*socialcontent.StoredFile, error) {
	var (
		f          socialcontent.StoredFile
		category   string
		durationMS int64
		cover      uuid.NullUUID
		markedAt   *time.Time
	)
	err := row.Scan(&f.ID, &f.Fingerprint, &f.MediaType, &category, &f.FileName, &f.SizeBytes,
		&durationMS, &f.URL, &cover, &markedAt, &f.CreatedAt)
	if err != nil {
		return nil, err
	}
	f.Category = socialcontent.Category(category)
	f.Duration = time.Duration(durationMS) * time.Millisecond
	f.CoverID = uuidPtr(cover)
	f.Purge = purgeState(markedAt)
	return &f, nil
}

func (r *Repository) queryFiles(ctx context.Context, operation, query string, args ...interface{}) ([]*socialcontent.StoredFile, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, r.handlePostgresError(operation, err)
	}
	defer rows.Close()

	var files []*socialcontent.StoredFile
	for rows.Next() {
		f, err := scanFile(rows)
		if err != nil {
			return nil, r.handlePostgresError(operation, err)
		}
		files = append(files, f)
	}
	if err := rows.Err(); err != nil {
		return nil, r.handlePostgresError(operation, err)
	}
	return files, nil
}

func (r *Repository) CreateFiles(ctx context.Context, files []*socialcontent.StoredFile) error {
	query := `
		INSERT INTO stored_files (` + fileColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (fingerprint) DO NOTHING`

	return r.inTx(ctx, func(db DBTX) error {
		for _, f := range files {
			_, err := db.Exec(ctx, query,
				f.ID, f.Fingerprint, f.MediaType, string(f.Category), f.FileName, f.SizeBytes,
				f.Duration.Milliseconds(), f.URL, nullUUID(f.CoverID), purgeColumn(f.Purge), f.CreatedAt)
			if err != nil {
				return r.handlePostgresError("create files", err)
			}
		}
		return nil
	})
}

func (r *Repository) GetFiles(ctx context.Context, ids []uuid.UUID) ([]*socialcontent.StoredFile, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	query := `SELECT ` + fileColumns + ` FROM stored_files WHERE id = ANY($1)`
	return r.queryFiles(ctx, "get files", query, ids)
}

func (r *Repository) FindFilesByFingerprints(ctx context.Context, fingerprints []string) ([]*socialcontent.StoredFile, error) {
	if len(fingerprints) == 0 {
		return nil, nil
	}
	query := `SELECT ` + fileColumns + ` FROM stored_files WHERE fingerprint = ANY($1)`
	return r.queryFiles(ctx, "find files by fingerprint", query, fingerprints)
}

func (r *Repository) SetFileCover(ctx context.Context, fileID, coverID uuid.UUID) error {
	tag, err := r.db.Exec(ctx, `UPDATE stored_files SET cover_id = $2 WHERE id = $1`, fileID, coverID)
	if err != nil {
		return r.handlePostgresError("set file cover", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", socialcontent.ErrFileNotFound, fileID)
	}
	return nil
}

func (r *Repository) MarkFilesForPurge(ctx context.Context, ids []uuid.UUID, at time.Time) error {
	if len(ids) == 0 {
		return nil
	}
	query := `UPDATE stored_files SET purge_marked_at = $2 WHERE id = ANY($1) AND purge_marked_at IS NULL`
	if _, err := r.db.Exec(ctx, query, ids, at.UTC()); err != nil {
		return r.handlePostgresError("mark files for purge", err)
	}
	return nil
}

func (r *Repository) RestoreFiles(ctx context.Context, ids []uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}
	if _, err := r.db.Exec(ctx, `UPDATE stored_files SET purge_marked_at = NULL WHERE id = ANY($1)`, ids); err != nil {
		return r.handlePostgresError("restore files", err)
	}
	return nil
}

func (r *Repository) DeleteFiles(ctx context.Context, ids []uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}
	if _, err := r.db.Exec(ctx, `DELETE FROM stored_files WHERE id = ANY($1)`, ids); err != nil {
		return r.handlePostgresError("delete files", err)
	}
	return nil
}

func (r *Repository) ListExpiredFiles(ctx context.Context, cutoff time.Time, limit int) ([]*socialcontent.StoredFile, error) {
	query := `
		SELECT ` + fileColumns + ` FROM stored_files
		WHERE purge_marked_at IS NOT NULL AND purge_marked_at <= $1
		ORDER BY purge_marked_at
		LIMIT $2`
	return r.queryFiles(ctx, "list expired files", query, cutoff.UTC(), nullLimit(limit))
}

// Attachment operations

const attachmentColumns = `id, parent_id, parent_kind, file_id, category, body, position,
	purge_marked_at, created_at, updated_at`

func scanAttachment(row pgx.Row) (*socialcontent.Attachment, error) {
	var (
		a        socialcontent.Attachment
		kind     string
		category string
		fileID   uuid.NullUUID
		markedAt *time.Time
	)
	err := row.Scan(&a.ID, &a.ParentID, &kind, &fileID, &category, &a.Body, &a.Position,
		&markedAt, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}
	a.ParentKind = socialcontent.ParentKind(kind)
	a.Category = socialcontent.Category(category)
	a.FileID = uuidPtr(fileID)
	a.Purge = purgeState(markedAt)
	return &a, nil
}

func (r *Repository) queryAttachments(ctx context.Context, operation, query string, args ...interface{}) ([]*socialcontent.Attachment, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, r.handlePostgresError(operation, err)
	}
	defer rows.Close()

	var attachments []*socialcontent.Attachment
	for rows.Next() {
		a, err := scanAttachment(rows)
		if err != nil {
			return nil, r.handlePostgresError(operation, err)
		}
		attachments = append(attachments, a)
	}
	if err := rows.Err(); err != nil {
		return nil, r.handlePostgresError(operation, err)
	}
	return attachments, nil
}

func (r *Repository) CreateAttachments(ctx context.Context, attachments []*socialcontent.Attachment) error {
	query := `
		INSERT INTO attachments (` + attachmentColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	return r.inTx(ctx, func(db DBTX) error {
		for _, a := range attachments {
			_, err := db.Exec(ctx, query,
				a.ID, a.ParentID, string(a.ParentKind), nullUUID(a.FileID), string(a.Category), a.Body,
				a.Position, purgeColumn(a.Purge), a.CreatedAt, a.UpdatedAt)
			if err != nil {
				return r.handlePostgresError("create attachments", err)
			}
		}
		return nil
	})
}

func (r *Repository) GetAttachments(ctx context.Context, ids []uuid.UUID) ([]*socialcontent.Attachment, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	query := `SELECT ` + attachmentColumns + ` FROM attachments WHERE id = ANY($1)`
	return r.queryAttachments(ctx, "get attachments", query, ids)
}

func (r *Repository) ListAttachments(ctx context.Context, parentID uuid.UUID, includePending bool) ([]*socialcontent.Attachment, error) {
	query := `
		SELECT ` + attachmentColumns + ` FROM attachments
		WHERE parent_id = $1 AND ($2 OR purge_marked_at IS NULL)
		ORDER BY position, created_at`
	return r.queryAttachments(ctx, "list attachments", query, parentID, includePending)
}

func (r *Repository) UpdateAttachments(ctx context.Context, attachments []*socialcontent.Attachment) error {
	query := `
		UPDATE attachments SET
			file_id = $2, category = $3, body = $4, position = $5,
			purge_marked_at = $6, updated_at = $7
		WHERE id = $1`

	return r.inTx(ctx, func(db DBTX) error {
		for _, a := range attachments {
			tag, err := db.Exec(ctx, query,
				a.ID, nullUUID(a.FileID), string(a.Category), a.Body, a.Position,
				purgeColumn(a.Purge), a.UpdatedAt)
			if err != nil {
				return r.handlePostgresError("update attachments", err)
			}
			if tag.RowsAffected() == 0 {
				return fmt.Errorf("%w: %s", socialcontent.ErrAttachmentNotFound, a.ID)
			}
		}
		return nil
	})
}

func (r *Repository) MarkAttachmentsForPurge(ctx context.Context, ids []uuid.UUID, at time.Time) error {
	if len(ids) == 0 {
		return nil
	}
	query := `UPDATE attachments SET purge_marked_at = $2 WHERE id = ANY($1) AND purge_marked_at IS NULL`
	if _, err := r.db.Exec(ctx, query, ids, at.UTC()); err != nil {
		return r.handlePostgresError("mark attachments for purge", err)
	}
	return nil
}

func (r *Repository) DeleteAttachments(ctx context.Context, ids []uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}
	if _, err := r.db.Exec(ctx, `DELETE FROM attachments WHERE id = ANY($1)`, ids); err != nil {
		return r.handlePostgresError("delete attachments", err)
	}
	return nil
}

func (r *Repository) ListExpiredAttachments(ctx context.Context, cutoff time.Time, limit int) ([]*socialcontent.Attachment, error) {
	query := `
		SELECT ` + attachmentColumns + ` FROM attachments
		WHERE purge_marked_at IS NOT NULL AND purge_marked_at <= $1
		ORDER BY purge_marked_at
		LIMIT $2`
	return r.queryAttachments(ctx, "list expired attachments", query, cutoff.UTC(), nullLimit(limit))
}

func (r *Repository) ReferencedFileIDs(ctx context.Context, fileIDs []uuid.UUID, liveOnly bool) (map[uuid.UUID]bool, error) {
	referenced := make(map[uuid.UUID]bool)
	if len(fileIDs) == 0 {
		return referenced, nil
	}
	query := `
		SELECT file_id FROM attachments
		WHERE file_id = ANY($1) AND (NOT $2 OR purge_marked_at IS NULL)
		UNION
		SELECT cover_id FROM stored_files
		WHERE cover_id = ANY($1) AND cover_id <> id AND (NOT $2 OR purge_marked_at IS NULL)`

	rows, err := r.db.Query(ctx, query, fileIDs, liveOnly)
	if err != nil {
		return nil, r.handlePostgresError("referenced files", err)
	}
	defer rows.Close()
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, r.handlePostgresError("referenced files", err)
		}
		referenced[id] = true
	}
	if err := rows.Err(); err != nil {
		return nil, r.handlePostgresError("referenced files", err)
	}
	return referenced, nil
}

// Post operations

const postColumns = `id, author_id, body, state, created_at, updated_at`

func scanPost(row pgx.Row) (*socialcontent.Post, error) {
	var (
		p     socialcontent.Post
		state string
	)
	if err := row.Scan(&p.ID, &p.AuthorID, &p.Body, &state, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	p.State = socialcontent.EditorialState(state)
	return &p, nil
}

func (r *Repository) queryPosts(ctx context.Context, operation, query string, args ...interface{}) ([]*socialcontent.Post, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, r.handlePostgresError(operation, err)
	}
	defer rows.Close()

	var posts []*socialcontent.Post
	for rows.Next() {
		p, err := scanPost(rows)
		if err != nil {
			return nil, r.handlePostgresError(operation, err)
		}
		posts = append(posts, p)
	}
	if err := rows.Err(); err != nil {
		return nil, r.handlePostgresError(operation, err)
	}
	return posts, nil
}

func (r *Repository) CreatePost(ctx context.Context, post *socialcontent.Post) error {
	query := `INSERT INTO posts (` + postColumns + `) VALUES ($1, $2, $3, $4, $5, $6)`
	_, err := r.db.Exec(ctx, query,
		post.ID, post.AuthorID, post.Body, string(post.State), post.CreatedAt, post.UpdatedAt)
	if err != nil {
		return r.handlePostgresError("create post", err)
	}
	return nil
}

func (r *Repository) GetPost(ctx context.Context, id uuid.UUID) (*socialcontent.Post, error) {
	query := `SELECT ` + postColumns + ` FROM posts WHERE id = $1`
	post, err := scanPost(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", socialcontent.ErrPostNotFound, id)
		}
		return nil, r.handlePostgresError("get post", err)
	}
	return post, nil
}

func (r *Repository) UpdatePost(ctx context.Context, post *socialcontent.Post) error {
	query := `UPDATE posts SET body = $2, state = $3, updated_at = $4 WHERE id = $1`
	tag, err := r.db.Exec(ctx, query, post.ID, post.Body, string(post.State), post.UpdatedAt)
	if err != nil {
		return r.handlePostgresError("update post", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", socialcontent.ErrPostNotFound, post.ID)
	}
	return nil
}

func (r *Repository) FindPostsByIDs(ctx context.Context, ids []uuid.UUID) ([]*socialcontent.Post, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	query := `SELECT ` + postColumns + ` FROM posts WHERE id = ANY($1)`
	return r.queryPosts(ctx, "find posts", query, ids)
}

func (r *Repository) ListRecentPosts(ctx context.Context, excludeAuthor *uuid.UUID, page socialcontent.PageRequest) ([]*socialcontent.Post, int64, error) {
	exclude := nullUUID(excludeAuthor)
	where := `state = 'validated' AND ($1::uuid IS NULL OR author_id <> $1)`

	var total int64
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM posts WHERE `+where, exclude).Scan(&total); err != nil {
		return nil, 0, r.handlePostgresError("count recent posts", err)
	}
	query := `
		SELECT ` + postColumns + ` FROM posts WHERE ` + where + `
		ORDER BY created_at DESC, id DESC
		LIMIT $2 OFFSET $3`
	posts, err := r.queryPosts(ctx, "list recent posts", query, exclude, page.Size, page.Offset())
	if err != nil {
		return nil, 0, err
	}
	return posts, total, nil
}

// Social graph operations

func (r *Repository) ListFollowers(ctx context.Context, accountID uuid.UUID) ([]uuid.UUID, error) {
	rows, err := r.db.Query(ctx, `SELECT follower_id FROM membership_edges WHERE following_id = $1`, accountID)
	if err != nil {
		return nil, r.handlePostgresError("list followers", err)
	}
	defer rows.Close()

	var followers []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, r.handlePostgresError("list followers", err)
		}
		followers = append(followers, id)
	}
	if err := rows.Err(); err != nil {
		return nil, r.handlePostgresError("list followers", err)
	}
	return followers, nil
}

func (r *Repository) FindEdge(ctx context.Context, followingID, followerID uuid.UUID) (*socialcontent.MembershipEdge, error) {
	query := `
		SELECT following_id, follower_id, created_at FROM membership_edges
		WHERE following_id = $1 AND follower_id = $2`

	var edge socialcontent.MembershipEdge
	err := r.db.QueryRow(ctx, query, followingID, followerID).Scan(&edge.FollowingID, &edge.FollowerID, &edge.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s -> %s", socialcontent.ErrEdgeNotFound, followerID, followingID)
		}
		return nil, r.handlePostgresError("find edge", err)
	}
	return &edge, nil
}

func (r *Repository) CreateEdge(ctx context.Context, edge *socialcontent.MembershipEdge) error {
	query := `INSERT INTO membership_edges (following_id, follower_id, created_at) VALUES ($1, $2, $3)`
	if _, err := r.db.Exec(ctx, query, edge.FollowingID, edge.FollowerID, edge.CreatedAt); err != nil {
		return r.handlePostgresError("create edge", err)
	}
	return nil
}

func (r *Repository) DeleteEdge(ctx context.Context, followingID, followerID uuid.UUID) error {
	query := `DELETE FROM membership_edges WHERE following_id = $1 AND follower_id = $2`
	tag, err := r.db.Exec(ctx, query, followingID, followerID)
	if err != nil {
		return r.handlePostgresError("delete edge", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s -> %s", socialcontent.ErrEdgeNotFound, followerID, followingID)
	}
	return nil
}

// Account operations

func (r *Repository) scanAccount(row pgx.Row, notFound error) (*socialcontent.Account, error) {
	var a socialcontent.Account
	if err := row.Scan(&a.ID, &a.PrincipalID, &a.Handle, &a.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, notFound
		}
		return nil, r.handlePostgresError("get account", err)
	}
	return &a, nil
}

func (r *Repository) FindAccountForPrincipal(ctx context.Context, principalID string) (*socialcontent.Account, error) {
	row := r.db.QueryRow(ctx, `SELECT id, principal_id, handle, created_at FROM accounts WHERE principal_id = $1`, principalID)
	return r.scanAccount(row, fmt.Errorf("%w: principal %s", socialcontent.ErrAccountNotFound, principalID))
}

func (r *Repository) GetAccount(ctx context.Context, id uuid.UUID) (*socialcontent.Account, error) {
	row := r.db.QueryRow(ctx, `SELECT id, principal_id, handle, created_at FROM accounts WHERE id = $1`, id)
	return r.scanAccount(row, fmt.Errorf("%w: %s", socialcontent.ErrAccountNotFound, id))
}

func (r *Repository) CreateAccount(ctx context.Context, account *socialcontent.Account) error {
	query := `INSERT INTO accounts (id, principal_id, handle, created_at) VALUES ($1, $2, $3, $4)`
	if _, err := r.db.Exec(ctx, query, account.ID, account.PrincipalID, account.Handle, account.CreatedAt); err != nil {
		return r.handlePostgresError("create account", err)
	}
	return nil
}

// Feed operations

func (r *Repository) InsertFeedEntries(ctx context.Context, entries []*socialcontent.FeedEntry) (int, error) {
	query := `
		INSERT INTO feed_entries (owner_id, post_id, post_created_at, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (owner_id, post_id) DO NOTHING`

	inserted := 0
	err := r.inTx(ctx, func(db DBTX) error {
		inserted = 0
		for _, e := range entries {
			tag, err := db.Exec(ctx, query, e.OwnerID, e.PostID, e.PostCreatedAt, e.CreatedAt)
			if err != nil {
				return r.handlePostgresError("insert feed entries", err)
			}
			inserted += int(tag.RowsAffected())
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return inserted, nil
}

func (r *Repository) ListFeedEntries(ctx context.Context, ownerID uuid.UUID, page socialcontent.PageRequest) ([]*socialcontent.FeedEntry, int64, error) {
	var total int64
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM feed_entries WHERE owner_id = $1`, ownerID).Scan(&total); err != nil {
		return nil, 0, r.handlePostgresError("count feed entries", err)
	}

	query := `
		SELECT owner_id, post_id, post_created_at, created_at FROM feed_entries
		WHERE owner_id = $1
		ORDER BY post_created_at DESC, post_id DESC
		LIMIT $2 OFFSET $3`
	rows, err := r.db.Query(ctx, query, ownerID, page.Size, page.Offset())
	if err != nil {
		return nil, 0, r.handlePostgresError("list feed entries", err)
	}
	defer rows.Close()

	var entries []*socialcontent.FeedEntry
	for rows.Next() {
		var e socialcontent.FeedEntry
		if err := rows.Scan(&e.OwnerID, &e.PostID, &e.PostCreatedAt, &e.CreatedAt); err != nil {
			return nil, 0, r.handlePostgresError("list feed entries", err)
		}
		entries = append(entries, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, r.handlePostgresError("list feed entries", err)
	}
	return entries, total, nil
}

func (r *Repository) DeleteFeedEntriesForPost(ctx context.Context, postID uuid.UUID) error {
	if _, err := r.db.Exec(ctx, `DELETE FROM feed_entries WHERE post_id = $1`, postID); err != nil {
		return r.handlePostgresError("delete feed entries", err)
	}
	return nil
}

// nullLimit turns a non-positive limit into SQL NULL, which LIMIT treats as
// no limit.
func nullLimit(limit int) *int {
	if limit <= 0 {
		return nil
	}
	return &limit
}
