package socialcontent

import (
	"context"
	"io"
	"time"

	"github.com/google/uuid"
)

// Service defines the main interface for the social-content library.
// Every operation that acts on behalf of an account takes its id explicitly.
type Service interface {
	// File operations
	Ingest(ctx context.Context, uploads []Upload) ([]*StoredFile, error)
	Resolve(ctx context.Context, url string) (io.ReadCloser, error)
	StatFile(ctx context.Context, url string) (*ObjectMeta, error)
	GetFiles(ctx context.Context, ids []uuid.UUID) ([]*StoredFile, error)
	MarkFilesForDeletion(ctx context.Context, ids []uuid.UUID, now time.Time) error
	PurgeFiles(ctx context.Context, ids []uuid.UUID) error

	// Post operations
	CreatePost(ctx context.Context, authorID uuid.UUID, req CreatePostRequest) (*CreatePostResult, error)
	GetPost(ctx context.Context, id uuid.UUID) (*Post, error)
	PublishPost(ctx context.Context, actorID, postID uuid.UUID) (*Post, error)
	DeletePost(ctx context.Context, actorID, postID uuid.UUID) error

	// Attachment operations
	ListAttachments(ctx context.Context, postID uuid.UUID) ([]*Attachment, error)
	UpdatePostAttachments(ctx context.Context, actorID uuid.UUID, req UpdateAttachmentsRequest) ([]*Attachment, error)
	DeleteAttachments(ctx context.Context, actorID, postID uuid.UUID, ids []uuid.UUID) error

	// Feed operations
	Propagate(ctx context.Context, postID uuid.UUID) (*PropagationResult, error)
	ReadFeed(ctx context.Context, viewer *uuid.UUID, page PageRequest) (*FeedPage, error)

	// Account and graph operations
	RegisterAccount(ctx context.Context, req RegisterAccountRequest) (*Account, error)
	ResolveAccount(ctx context.Context, principalID string) (*Account, error)
	Follow(ctx context.Context, followerID, followingID uuid.UUID) error
	Unfollow(ctx context.Context, followerID, followingID uuid.UUID) error
}
