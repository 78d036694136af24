package socialcontent

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
)

// service implements the Service interface
type service struct {
	repository      Repository
	blobStore       BlobStore
	backendName     string
	feedRepository  FeedRepository
	recommendations RecommendationSource
	logger          *slog.Logger
	now             func() time.Time
	publicBaseURL   string
	maxUploadBytes  int64
	fanoutBatchSize int
	fanoutWorkers   int

	store     *ContentStore
	lifecycle *AttachmentLifecycle
	fanout    *FeedFanout
}

// Option represents a functional option for configuring the service
type Option func(*service)

// WithRepository sets the repository for the service
func WithRepository(repo Repository) Option {
	return func(s *service) {
		s.repository = repo
	}
}

// WithBlobStore sets the blob storage backend
func WithBlobStore(name string, store BlobStore) Option {
	return func(s *service) {
		s.backendName = name
		s.blobStore = store
	}
}

// WithFeedRepository sets where feed entries are materialized. Without it the
// repository is used if it implements FeedRepository.
func WithFeedRepository(feed FeedRepository) Option {
	return func(s *service) {
		s.feedRepository = feed
	}
}

// WithRecommendations sets the recommendation source merged into feeds
func WithRecommendations(source RecommendationSource) Option {
	return func(s *service) {
		s.recommendations = source
	}
}

// WithLogger sets the structured logger
func WithLogger(logger *slog.Logger) Option {
	return func(s *service) {
		s.logger = logger
	}
}

// WithClock overrides the time source
func WithClock(now func() time.Time) Option {
	return func(s *service) {
		s.now = now
	}
}

// WithPublicBaseURL sets the prefix of stored file URLs
func WithPublicBaseURL(baseURL string) Option {
	return func(s *service) {
		s.publicBaseURL = baseURL
	}
}

// WithMaxUploadBytes sets the per-upload size limit
func WithMaxUploadBytes(n int64) Option {
	return func(s *service) {
		s.maxUploadBytes = n
	}
}

// WithFanout sets the fan-out batch size and number of concurrent batches
func WithFanout(batchSize, workers int) Option {
	return func(s *service) {
		s.fanoutBatchSize = batchSize
		s.fanoutWorkers = workers
	}
}

// New creates a new service instance with the given options
func New(options ...Option) (Service, error) {
	s := &service{
		logger:        slog.Default(),
		now:           time.Now,
		publicBaseURL: "/files",
	}

	for _, option := range options {
		option(s)
	}

	if s.repository == nil {
		return nil, fmt.Errorf("repository is required")
	}
	if s.blobStore == nil {
		return nil, fmt.Errorf("blob store is required")
	}
	if s.feedRepository == nil {
		feed, ok := s.repository.(FeedRepository)
		if !ok {
			return nil, fmt.Errorf("feed repository is required")
		}
		s.feedRepository = feed
	}
	if s.recommendations == nil {
		s.recommendations = RecentPostsRecommendations{Posts: s.repository}
	}

	var err error
	s.store, err = NewContentStore(ContentStoreConfig{
		Files:          s.repository,
		Blobs:          s.blobStore,
		BackendName:    s.backendName,
		PublicBaseURL:  s.publicBaseURL,
		MaxUploadBytes: s.maxUploadBytes,
		Logger:         s.logger,
		Now:            s.now,
	})
	if err != nil {
		return nil, err
	}
	s.lifecycle = NewAttachmentLifecycle(s.repository, s.store, s.logger, s.now)
	s.fanout, err = NewFeedFanout(FeedFanoutConfig{
		Graph:           s.repository,
		Feed:            s.feedRepository,
		Posts:           s.repository,
		Recommendations: s.recommendations,
		BatchSize:       s.fanoutBatchSize,
		Concurrency:     s.fanoutWorkers,
		Logger:          s.logger,
		Now:             s.now,
	})
	if err != nil {
		return nil, err
	}

	return s, nil
}

// File operations

func (s *service) Ingest(ctx context.Context, uploads []Upload) ([]*StoredFile, error) {
	return s.store.Ingest(ctx, uploads)
}

func (s *service) Resolve(ctx context.Context, url string) (io.ReadCloser, error) {
	return s.store.Resolve(ctx, url)
}

func (s *service) StatFile(ctx context.Context, url string) (*ObjectMeta, error) {
	return s.store.Stat(ctx, url)
}

func (s *service) GetFiles(ctx context.Context, ids []uuid.UUID) ([]*StoredFile, error) {
	return s.store.Get(ctx, ids)
}

func (s *service) MarkFilesForDeletion(ctx context.Context, ids []uuid.UUID, now time.Time) error {
	return s.store.MarkForDeletion(ctx, ids, now)
}

func (s *service) PurgeFiles(ctx context.Context, ids []uuid.UUID) error {
	return s.store.Purge(ctx, ids)
}

// Post operations

func (s *service) CreatePost(ctx context.Context, authorID uuid.UUID, req CreatePostRequest) (*CreatePostResult, error) {
	if strings.TrimSpace(req.Body) == "" && len(req.Attachments) == 0 {
		return nil, invalidInput("post has neither body nor attachments")
	}
	if _, err := s.repository.GetAccount(ctx, authorID); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	post := &Post{
		ID:        uuid.New(),
		AuthorID:  authorID,
		Body:      req.Body,
		State:     EditorialStatePending,
		CreatedAt: now,
		UpdatedAt: now,
	}

	// Attachments are written first; a failed save leaves no post and no
	// attachments behind.
	attachments, err := s.lifecycle.Save(ctx, post.AsParent(), req.Attachments)
	if err != nil {
		if cleanupErr := s.lifecycle.Remove(ctx, post.AsParent()); cleanupErr != nil {
			s.logger.Error("failed to clean up attachments of unsaved post", "post_id", post.ID, "error", cleanupErr)
		}
		return nil, err
	}

	if err := s.repository.CreatePost(ctx, post); err != nil {
		if cleanupErr := s.lifecycle.Remove(ctx, post.AsParent()); cleanupErr != nil {
			s.logger.Error("failed to clean up attachments of unsaved post", "post_id", post.ID, "error", cleanupErr)
		}
		return nil, fmt.Errorf("failed to create post: %w", err)
	}

	result := &CreatePostResult{Post: post, Attachments: attachments}
	result.Propagation, result.FanoutErr = s.fanout.Propagate(ctx, post)
	if result.FanoutErr != nil {
		s.logger.Warn("post created with incomplete fan-out", "post_id", post.ID, "error", result.FanoutErr)
	}
	return result, nil
}

func (s *service) GetPost(ctx context.Context, id uuid.UUID) (*Post, error) {
	post, err := s.repository.GetPost(ctx, id)
	if err != nil {
		return nil, err
	}
	if post.State == EditorialStateRemoved {
		return nil, fmt.Errorf("%w: %s", ErrPostNotFound, id)
	}
	return post, nil
}

func (s *service) PublishPost(ctx context.Context, actorID, postID uuid.UUID) (*Post, error) {
	post, err := s.ownedPost(ctx, actorID, postID)
	if err != nil {
		return nil, err
	}
	if post.State == EditorialStateValidated {
		return post, nil
	}
	post.State = EditorialStateValidated
	post.UpdatedAt = s.now().UTC()
	if err := s.repository.UpdatePost(ctx, post); err != nil {
		return nil, fmt.Errorf("failed to publish post: %w", err)
	}
	return post, nil
}

func (s *service) DeletePost(ctx context.Context, actorID, postID uuid.UUID) error {
	post, err := s.ownedPost(ctx, actorID, postID)
	if err != nil {
		return err
	}

	if err := s.lifecycle.Remove(ctx, post.AsParent()); err != nil {
		return err
	}
	post.State = EditorialStateRemoved
	post.UpdatedAt = s.now().UTC()
	if err := s.repository.UpdatePost(ctx, post); err != nil {
		return fmt.Errorf("failed to remove post: %w", err)
	}
	if err := s.feedRepository.DeleteFeedEntriesForPost(ctx, post.ID); err != nil {
		// Readers already skip removed posts.
		s.logger.Warn("failed to delete feed entries", "post_id", post.ID, "error", err)
	}
	return nil
}

// Attachment operations

func (s *service) ListAttachments(ctx context.Context, postID uuid.UUID) ([]*Attachment, error) {
	if _, err := s.GetPost(ctx, postID); err != nil {
		return nil, err
	}
	return s.lifecycle.List(ctx, postID)
}

func (s *service) UpdatePostAttachments(ctx context.Context, actorID uuid.UUID, req UpdateAttachmentsRequest) ([]*Attachment, error) {
	post, err := s.ownedPost(ctx, actorID, req.PostID)
	if err != nil {
		return nil, err
	}
	return s.lifecycle.Update(ctx, post.AsParent(), req.Attachments)
}

func (s *service) DeleteAttachments(ctx context.Context, actorID, postID uuid.UUID, ids []uuid.UUID) error {
	post, err := s.ownedPost(ctx, actorID, postID)
	if err != nil {
		return err
	}
	return s.lifecycle.Delete(ctx, post.AsParent(), ids)
}

// Feed operations

func (s *service) Propagate(ctx context.Context, postID uuid.UUID) (*PropagationResult, error) {
	post, err := s.GetPost(ctx, postID)
	if err != nil {
		return nil, err
	}
	return s.fanout.Propagate(ctx, post)
}

func (s *service) ReadFeed(ctx context.Context, viewer *uuid.UUID, page PageRequest) (*FeedPage, error) {
	return s.fanout.Read(ctx, viewer, page)
}

// Account and graph operations

func (s *service) RegisterAccount(ctx context.Context, req RegisterAccountRequest) (*Account, error) {
	if strings.TrimSpace(req.PrincipalID) == "" || strings.TrimSpace(req.Handle) == "" {
		return nil, invalidInput("principal and handle are required")
	}
	_, err := s.repository.FindAccountForPrincipal(ctx, req.PrincipalID)
	if err == nil {
		return nil, fmt.Errorf("%w: principal %s already has an account", ErrConflict, req.PrincipalID)
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	account := &Account{
		ID:          uuid.New(),
		PrincipalID: req.PrincipalID,
		Handle:      req.Handle,
		CreatedAt:   s.now().UTC(),
	}
	if err := s.repository.CreateAccount(ctx, account); err != nil {
		return nil, fmt.Errorf("failed to create account: %w", err)
	}
	return account, nil
}

func (s *service) ResolveAccount(ctx context.Context, principalID string) (*Account, error) {
	if strings.TrimSpace(principalID) == "" {
		return nil, invalidInput("empty principal")
	}
	return s.repository.FindAccountForPrincipal(ctx, principalID)
}

func (s *service) Follow(ctx context.Context, followerID, followingID uuid.UUID) error {
	if followerID == followingID {
		return invalidInput("an account cannot follow itself")
	}
	if _, err := s.repository.GetAccount(ctx, followingID); err != nil {
		return err
	}
	_, err := s.repository.FindEdge(ctx, followingID, followerID)
	if err == nil {
		return fmt.Errorf("%w: %s already follows %s", ErrConflict, followerID, followingID)
	}
	if !errors.Is(err, ErrEdgeNotFound) {
		return err
	}
	return s.repository.CreateEdge(ctx, &MembershipEdge{
		FollowerID:  followerID,
		FollowingID: followingID,
		CreatedAt:   s.now().UTC(),
	})
}

func (s *service) Unfollow(ctx context.Context, followerID, followingID uuid.UUID) error {
	if _, err := s.repository.FindEdge(ctx, followingID, followerID); err != nil {
		return err
	}
	return s.repository.DeleteEdge(ctx, followingID, followerID)
}

// ownedPost loads a live post and checks actorID wrote it.
func (s *service) ownedPost(ctx context.Context, actorID, postID uuid.UUID) (*Post, error) {
	post, err := s.GetPost(ctx, postID)
	if err != nil {
		return nil, err
	}
	if post.AuthorID != actorID {
		return nil, fmt.Errorf("%w: post %s belongs to another account", ErrForbidden, postID)
	}
	return post, nil
}
