package socialcontent

import (
	"context"
	"io"
	"time"

	"github.com/google/uuid"
)

// BlobStore defines the interface for storage backends. Keys are derived
// file names; writing the same key twice must overwrite idempotently.
// Missing keys are reported with an error matching ErrBlobNotFound.
type BlobStore interface {
	// UploadWithParams uploads content with additional parameters
	UploadWithParams(ctx context.Context, reader io.Reader, params UploadParams) error

	// Download downloads content directly
	Download(ctx context.Context, objectKey string) (io.ReadCloser, error)

	// Delete deletes content
	Delete(ctx context.Context, objectKey string) error

	// GetObjectMeta retrieves metadata for an object
	GetObjectMeta(ctx context.Context, objectKey string) (*ObjectMeta, error)
}

// ObjectMeta contains metadata about an object in storage
type ObjectMeta struct {
	Key         string
	Size        int64
	ContentType string
	UpdatedAt   time.Time
	ETag        string
	Metadata    map[string]string
}

// UploadParams contains parameters for uploading an object
type UploadParams struct {
	ObjectKey string
	MimeType  string
	Size      int64
}

// FileRepository persists StoredFile records.
type FileRepository interface {
	// CreateFiles inserts the given records, skipping any whose fingerprint
	// already exists. Callers re-read by fingerprint to get canonical rows.
	CreateFiles(ctx context.Context, files []*StoredFile) error
	// GetFiles returns the records with the given ids, including pending ones.
	GetFiles(ctx context.Context, ids []uuid.UUID) ([]*StoredFile, error)
	FindFilesByFingerprints(ctx context.Context, fingerprints []string) ([]*StoredFile, error)
	SetFileCover(ctx context.Context, fileID, coverID uuid.UUID) error
	MarkFilesForPurge(ctx context.Context, ids []uuid.UUID, at time.Time) error
	RestoreFiles(ctx context.Context, ids []uuid.UUID) error
	DeleteFiles(ctx context.Context, ids []uuid.UUID) error
	// ListExpiredFiles returns pending files marked at or before cutoff.
	ListExpiredFiles(ctx context.Context, cutoff time.Time, limit int) ([]*StoredFile, error)
}

// AttachmentRepository persists Attachment records.
type AttachmentRepository interface {
	CreateAttachments(ctx context.Context, attachments []*Attachment) error
	// GetAttachments returns the records with the given ids, including pending ones.
	GetAttachments(ctx context.Context, ids []uuid.UUID) ([]*Attachment, error)
	// ListAttachments returns a parent's attachments ordered by position.
	ListAttachments(ctx context.Context, parentID uuid.UUID, includePending bool) ([]*Attachment, error)
	UpdateAttachments(ctx context.Context, attachments []*Attachment) error
	MarkAttachmentsForPurge(ctx context.Context, ids []uuid.UUID, at time.Time) error
	DeleteAttachments(ctx context.Context, ids []uuid.UUID) error
	// ListExpiredAttachments returns pending attachments marked at or before cutoff.
	ListExpiredAttachments(ctx context.Context, cutoff time.Time, limit int) ([]*Attachment, error)
}

// FeedRepository persists materialized feed entries.
type FeedRepository interface {
	// InsertFeedEntries writes entries, skipping (owner, post) pairs that
	// already exist, and returns the number of new rows.
	InsertFeedEntries(ctx context.Context, entries []*FeedEntry) (int, error)
	// ListFeedEntries returns one page of an owner's feed, newest post first,
	// and the owner's total entry count.
	ListFeedEntries(ctx context.Context, ownerID uuid.UUID, page PageRequest) ([]*FeedEntry, int64, error)
	DeleteFeedEntriesForPost(ctx context.Context, postID uuid.UUID) error
}

// PostRepository persists posts.
type PostRepository interface {
	CreatePost(ctx context.Context, post *Post) error
	GetPost(ctx context.Context, id uuid.UUID) (*Post, error)
	UpdatePost(ctx context.Context, post *Post) error
	// FindPostsByIDs returns the posts that exist; missing ids are skipped.
	FindPostsByIDs(ctx context.Context, ids []uuid.UUID) ([]*Post, error)
	// ListRecentPosts returns published (validated) posts newest first,
	// optionally excluding one author, and the total number of matching posts.
	ListRecentPosts(ctx context.Context, excludeAuthor *uuid.UUID, page PageRequest) ([]*Post, int64, error)
}

// SocialGraph is the follow relation consumed by fan-out.
type SocialGraph interface {
	// ListFollowers returns the ids of accounts following accountID.
	ListFollowers(ctx context.Context, accountID uuid.UUID) ([]uuid.UUID, error)
	FindEdge(ctx context.Context, followingID, followerID uuid.UUID) (*MembershipEdge, error)
	CreateEdge(ctx context.Context, edge *MembershipEdge) error
	DeleteEdge(ctx context.Context, followingID, followerID uuid.UUID) error
}

// AccountDirectory resolves accounts.
type AccountDirectory interface {
	FindAccountForPrincipal(ctx context.Context, principalID string) (*Account, error)
	GetAccount(ctx context.Context, id uuid.UUID) (*Account, error)
	CreateAccount(ctx context.Context, account *Account) error
}

// Repository is the relational store behind the pipeline.
type Repository interface {
	FileRepository
	AttachmentRepository
	PostRepository
	SocialGraph
	AccountDirectory

	// ReferencedFileIDs reports which of fileIDs are still referenced by an
	// attachment or as another file's cover. With liveOnly, references held
	// by records pending purge are ignored.
	ReferencedFileIDs(ctx context.Context, fileIDs []uuid.UUID, liveOnly bool) (map[uuid.UUID]bool, error)
}

// RecommendationSource supplies posts to merge into a feed.
type RecommendationSource interface {
	// Recommend returns one page of recommended posts for viewer (nil for
	// anonymous) and the total number available.
	Recommend(ctx context.Context, viewer *uuid.UUID, page PageRequest) ([]*Post, int64, error)
}
