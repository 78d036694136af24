package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/tendant/social-content/pkg/socialcontent"
)

type feedKey struct {
	owner uuid.UUID
	post  uuid.UUID
}

type edgeKey struct {
	following uuid.UUID
	follower  uuid.UUID
}

// Repository implements socialcontent.Repository and
// socialcontent.FeedRepository using in-memory storage
type Repository struct {
	mu                  sync.RWMutex
	files               map[uuid.UUID]*socialcontent.StoredFile
	filesByFingerprint  map[string]uuid.UUID
	attachments         map[uuid.UUID]*socialcontent.Attachment
	attachmentsByParent map[uuid.UUID][]uuid.UUID
	posts               map[uuid.UUID]*socialcontent.Post
	accounts            map[uuid.UUID]*socialcontent.Account
	accountsByPrincipal map[string]uuid.UUID
	edges               map[edgeKey]*socialcontent.MembershipEdge
	feed                map[feedKey]*socialcontent.FeedEntry
	feedByOwner         map[uuid.UUID][]uuid.UUID // owner -> []post_id
}

// New creates a new in-memory repository
func New() *Repository {
	return &Repository{
		files:               make(map[uuid.UUID]*socialcontent.StoredFile),
		filesByFingerprint:  make(map[string]uuid.UUID),
		attachments:         make(map[uuid.UUID]*socialcontent.Attachment),
		attachmentsByParent: make(map[uuid.UUID][]uuid.UUID),
		posts:               make(map[uuid.UUID]*socialcontent.Post),
		accounts:            make(map[uuid.UUID]*socialcontent.Account),
		accountsByPrincipal: make(map[string]uuid.UUID),
		edges:               make(map[edgeKey]*socialcontent.MembershipEdge),
		feed:                make(map[feedKey]*socialcontent.FeedEntry),
		feedByOwner:         make(map[uuid.UUID][]uuid.UUID),
	}
}

var (
	_ socialcontent.Repository     = (*Repository)(nil)
	_ socialcontent.FeedRepository = (*Repository)(nil)
)

// File operations

func (r *Repository) CreateFiles(ctx context.Context, files []*socialcontent.StoredFile) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, f := range files {
		if _, exists := r.filesByFingerprint[f.Fingerprint]; exists {
			continue
		}
		r.files[f.ID] = copyFile(f)
		r.filesByFingerprint[f.Fingerprint] = f.ID
	}
	return nil
}

func (r *Repository) GetFiles(ctx context.Context, ids []uuid.UUID) ([]*socialcontent.StoredFile, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []*socialcontent.StoredFile
	for _, id := range uniq(ids) {
		if f, exists := r.files[id]; exists {
			result = append(result, copyFile(f))
		}
	}
	return result, nil
}

func (r *Repository) FindFilesByFingerprints(ctx context.Context, fingerprints []string) ([]*socialcontent.StoredFile, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []*socialcontent.StoredFile
	seen := make(map[string]bool)
	for _, fp := range fingerprints {
		if seen[fp] {
			continue
		}
		seen[fp] = true
		if id, exists := r.filesByFingerprint[fp]; exists {
			result = append(result, copyFile(r.files[id]))
		}
	}
	return result, nil
}

func (r *Repository) SetFileCover(ctx context.Context, fileID, coverID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	f, exists := r.files[fileID]
	if !exists {
		return fmt.Errorf("%w: %s", socialcontent.ErrFileNotFound, fileID)
	}
	if _, exists := r.files[coverID]; !exists {
		return fmt.Errorf("%w: cover %s", socialcontent.ErrFileNotFound, coverID)
	}
	f.CoverID = &coverID
	return nil
}

func (r *Repository) MarkFilesForPurge(ctx context.Context, ids []uuid.UUID, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, id := range ids {
		if f, exists := r.files[id]; exists && f.Purge.IsActive() {
			f.Purge = socialcontent.PendingPurge(at)
		}
	}
	return nil
}

func (r *Repository) RestoreFiles(ctx context.Context, ids []uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, id := range ids {
		if f, exists := r.files[id]; exists {
			f.Purge = socialcontent.PurgeState{}
		}
	}
	return nil
}

func (r *Repository) DeleteFiles(ctx context.Context, ids []uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, id := range ids {
		if f, exists := r.files[id]; exists {
			delete(r.filesByFingerprint, f.Fingerprint)
			delete(r.files, id)
		}
	}
	return nil
}

func (r *Repository) ListExpiredFiles(ctx context.Context, cutoff time.Time, limit int) ([]*socialcontent.StoredFile, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []*socialcontent.StoredFile
	for _, f := range r.files {
		if f.Purge.ExpiredAt(cutoff) {
			result = append(result, copyFile(f))
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Purge.MarkedAt.Before(result[j].Purge.MarkedAt)
	})
	return truncate(result, limit), nil
}

// Attachment operations

func (r *Repository) CreateAttachments(ctx context.Context, attachments []*socialcontent.Attachment) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, a := range attachments {
		if a.FileID != nil {
			if _, exists := r.files[*a.FileID]; !exists {
				return fmt.Errorf("%w: %s", socialcontent.ErrFileNotFound, *a.FileID)
			}
		}
	}
	for _, a := range attachments {
		if _, exists := r.attachments[a.ID]; !exists {
			r.attachmentsByParent[a.ParentID] = append(r.attachmentsByParent[a.ParentID], a.ID)
		}
		r.attachments[a.ID] = copyAttachment(a)
	}
	return nil
}

func (r *Repository) GetAttachments(ctx context.Context, ids []uuid.UUID) ([]*socialcontent.Attachment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []*socialcontent.Attachment
	for _, id := range uniq(ids) {
		if a, exists := r.attachments[id]; exists {
			result = append(result, copyAttachment(a))
		}
	}
	return result, nil
}

func (r *Repository) ListAttachments(ctx context.Context, parentID uuid.UUID, includePending bool) ([]*socialcontent.Attachment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []*socialcontent.Attachment
	for _, id := range r.attachmentsByParent[parentID] {
		a := r.attachments[id]
		if includePending || a.Purge.IsActive() {
			result = append(result, copyAttachment(a))
		}
	}
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].Position < result[j].Position
	})
	return result, nil
}

func (r *Repository) UpdateAttachments(ctx context.Context, attachments []*socialcontent.Attachment) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, a := range attachments {
		if _, exists := r.attachments[a.ID]; !exists {
			return fmt.Errorf("%w: %s", socialcontent.ErrAttachmentNotFound, a.ID)
		}
	}
	for _, a := range attachments {
		r.attachments[a.ID] = copyAttachment(a)
	}
	return nil
}

func (r *Repository) MarkAttachmentsForPurge(ctx context.Context, ids []uuid.UUID, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, id := range ids {
		if a, exists := r.attachments[id]; exists && a.Purge.IsActive() {
			a.Purge = socialcontent.PendingPurge(at)
		}
	}
	return nil
}

func (r *Repository) DeleteAttachments(ctx context.Context, ids []uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, id := range ids {
		a, exists := r.attachments[id]
		if !exists {
			continue
		}
		delete(r.attachments, id)
		siblings := r.attachmentsByParent[a.ParentID]
		for i, sid := range siblings {
			if sid == id {
				r.attachmentsByParent[a.ParentID] = append(siblings[:i], siblings[i+1:]...)
				break
			}
		}
	}
	return nil
}

func (r *Repository) ListExpiredAttachments(ctx context.Context, cutoff time.Time, limit int) ([]*socialcontent.Attachment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []*socialcontent.Attachment
	for _, a := range r.attachments {
		if a.Purge.ExpiredAt(cutoff) {
			result = append(result, copyAttachment(a))
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Purge.MarkedAt.Before(result[j].Purge.MarkedAt)
	})
	return truncate(result, limit), nil
}

func (r *Repository) ReferencedFileIDs(ctx context.Context, fileIDs []uuid.UUID, liveOnly bool) (map[uuid.UUID]bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	wanted := make(map[uuid.UUID]bool, len(fileIDs))
	for _, id := range fileIDs {
		wanted[id] = true
	}
	referenced := make(map[uuid.UUID]bool)
	for _, a := range r.attachments {
		if a.FileID != nil && wanted[*a.FileID] && (!liveOnly || a.Purge.IsActive()) {
			referenced[*a.FileID] = true
		}
	}
	for _, f := range r.files {
		if f.CoverID != nil && *f.CoverID != f.ID && wanted[*f.CoverID] && (!liveOnly || f.Purge.IsActive()) {
			referenced[*f.CoverID] = true
		}
	}
	return referenced, nil
}

// Post operations

func (r *Repository) CreatePost(ctx context.Context, post *socialcontent.Post) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.posts[post.ID]; exists {
		return fmt.Errorf("%w: post %s already exists", socialcontent.ErrConflict, post.ID)
	}
	postCopy := *post
	r.posts[post.ID] = &postCopy
	return nil
}

func (r *Repository) GetPost(ctx context.Context, id uuid.UUID) (*socialcontent.Post, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	post, exists := r.posts[id]
	if !exists {
		return nil, fmt.Errorf("%w: %s", socialcontent.ErrPostNotFound, id)
	}
	postCopy := *post
	return &postCopy, nil
}

func (r *Repository) UpdatePost(ctx context.Context, post *socialcontent.Post) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.posts[post.ID]; !exists {
		return fmt.Errorf("%w: %s", socialcontent.ErrPostNotFound, post.ID)
	}
	postCopy := *post
	r.posts[post.ID] = &postCopy
	return nil
}

func (r *Repository) FindPostsByIDs(ctx context.Context, ids []uuid.UUID) ([]*socialcontent.Post, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []*socialcontent.Post
	for _, id := range uniq(ids) {
		if post, exists := r.posts[id]; exists {
			postCopy := *post
			result = append(result, &postCopy)
		}
	}
	return result, nil
}

func (r *Repository) ListRecentPosts(ctx context.Context, excludeAuthor *uuid.UUID, page socialcontent.PageRequest) ([]*socialcontent.Post, int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var matched []*socialcontent.Post
	for _, post := range r.posts {
		if post.State != socialcontent.EditorialStateValidated {
			continue
		}
		if excludeAuthor != nil && post.AuthorID == *excludeAuthor {
			continue
		}
		postCopy := *post
		matched = append(matched, &postCopy)
	}
	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].CreatedAt.After(matched[j].CreatedAt)
		}
		return matched[i].ID.String() > matched[j].ID.String()
	})
	return window(matched, page), int64(len(matched)), nil
}

// Social graph operations

func (r *Repository) ListFollowers(ctx context.Context, accountID uuid.UUID) ([]uuid.UUID, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []uuid.UUID
	for key := range r.edges {
		if key.following == accountID {
			result = append(result, key.follower)
		}
	}
	return result, nil
}

func (r *Repository) FindEdge(ctx context.Context, followingID, followerID uuid.UUID) (*socialcontent.MembershipEdge, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	edge, exists := r.edges[edgeKey{following: followingID, follower: followerID}]
	if !exists {
		return nil, fmt.Errorf("%w: %s -> %s", socialcontent.ErrEdgeNotFound, followerID, followingID)
	}
	edgeCopy := *edge
	return &edgeCopy, nil
}

func (r *Repository) CreateEdge(ctx context.Context, edge *socialcontent.MembershipEdge) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := edgeKey{following: edge.FollowingID, follower: edge.FollowerID}
	if _, exists := r.edges[key]; exists {
		return fmt.Errorf("%w: edge already exists", socialcontent.ErrConflict)
	}
	edgeCopy := *edge
	r.edges[key] = &edgeCopy
	return nil
}

func (r *Repository) DeleteEdge(ctx context.Context, followingID, followerID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := edgeKey{following: followingID, follower: followerID}
	if _, exists := r.edges[key]; !exists {
		return fmt.Errorf("%w: %s -> %s", socialcontent.ErrEdgeNotFound, followerID, followingID)
	}
	delete(r.edges, key)
	return nil
}

// Account operations

func (r *Repository) FindAccountForPrincipal(ctx context.Context, principalID string) (*socialcontent.Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, exists := r.accountsByPrincipal[principalID]
	if !exists {
		return nil, fmt.Errorf("%w: principal %s", socialcontent.ErrAccountNotFound, principalID)
	}
	accountCopy := *r.accounts[id]
	return &accountCopy, nil
}

func (r *Repository) GetAccount(ctx context.Context, id uuid.UUID) (*socialcontent.Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	account, exists := r.accounts[id]
	if !exists {
		return nil, fmt.Errorf("%w: %s", socialcontent.ErrAccountNotFound, id)
	}
	accountCopy := *account
	return &accountCopy, nil
}

func (r *Repository) CreateAccount(ctx context.Context, account *socialcontent.Account) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.accountsByPrincipal[account.PrincipalID]; exists {
		return fmt.Errorf("%w: principal %s already has an account", socialcontent.ErrConflict, account.PrincipalID)
	}
	accountCopy := *account
	r.accounts[account.ID] = &accountCopy
	r.accountsByPrincipal[account.PrincipalID] = account.ID
	return nil
}

// Feed operations

func (r *Repository) InsertFeedEntries(ctx context.Context, entries []*socialcontent.FeedEntry) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	inserted := 0
	for _, e := range entries {
		key := feedKey{owner: e.OwnerID, post: e.PostID}
		if _, exists := r.feed[key]; exists {
			continue
		}
		entryCopy := *e
		r.feed[key] = &entryCopy
		r.feedByOwner[e.OwnerID] = append(r.feedByOwner[e.OwnerID], e.PostID)
		inserted++
	}
	return inserted, nil
}

func (r *Repository) ListFeedEntries(ctx context.Context, ownerID uuid.UUID, page socialcontent.PageRequest) ([]*socialcontent.FeedEntry, int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	postIDs := r.feedByOwner[ownerID]
	entries := make([]*socialcontent.FeedEntry, 0, len(postIDs))
	for _, postID := range postIDs {
		entryCopy := *r.feed[feedKey{owner: ownerID, post: postID}]
		entries = append(entries, &entryCopy)
	}
	sort.Slice(entries, func(i, j int) bool {
		if !entries[i].PostCreatedAt.Equal(entries[j].PostCreatedAt) {
			return entries[i].PostCreatedAt.After(entries[j].PostCreatedAt)
		}
		return entries[i].PostID.String() > entries[j].PostID.String()
	})
	return window(entries, page), int64(len(entries)), nil
}

func (r *Repository) DeleteFeedEntriesForPost(ctx context.Context, postID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for key := range r.feed {
		if key.post != postID {
			continue
		}
		delete(r.feed, key)
		owned := r.feedByOwner[key.owner]
		for i, id := range owned {
			if id == postID {
				r.feedByOwner[key.owner] = append(owned[:i], owned[i+1:]...)
				break
			}
		}
	}
	return nil
}

func copyFile(f *socialcontent.StoredFile) *socialcontent.StoredFile {
	fileCopy := *f
	if f.CoverID != nil {
		coverID := *f.CoverID
		fileCopy.CoverID = &coverID
	}
	return &fileCopy
}

func copyAttachment(a *socialcontent.Attachment) *socialcontent.Attachment {
	attachmentCopy := *a
	if a.FileID != nil {
		fileID := *a.FileID
		attachmentCopy.FileID = &fileID
	}
	return &attachmentCopy
}

func uniq(ids []uuid.UUID) []uuid.UUID {
	seen := make(map[uuid.UUID]bool, len(ids))
	out := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}

func truncate[T any](items []T, limit int) []T {
	if limit > 0 && len(items) > limit {
		return items[:limit]
	}
	return items
}

func window[T any](items []T, page socialcontent.PageRequest) []T {
	start := page.Offset()
	if start >= len(items) {
		return nil
	}
	end := start + page.Size
	if page.Size <= 0 || end > len(items) {
		end = len(items)
	}
	return items[start:end]
}
