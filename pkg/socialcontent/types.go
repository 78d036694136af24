package socialcontent

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Category is the kind of media an attachment or stored file carries.
type Category string

// Category constants (typed).
const (
	CategoryImage Category = "image"
	CategoryVideo Category = "video"
	CategoryAudio Category = "audio"
	CategoryText  Category = "text"
)

// HasPhysicalPayload reports whether records of this category own bytes in a
// BlobStore. Text attachments are stored inline.
func (c Category) HasPhysicalPayload() bool {
	return c != CategoryText
}

// Valid reports whether c is one of the known categories.
func (c Category) Valid() bool {
	switch c {
	case CategoryImage, CategoryVideo, CategoryAudio, CategoryText:
		return true
	}
	return false
}

// CategoryFromMediaType maps a declared media type (e.g. "image/png") onto a
// Category. Unknown top-level types are treated as images.
func CategoryFromMediaType(mediaType string) Category {
	mediaType = strings.ToLower(strings.TrimSpace(mediaType))
	if i := strings.IndexByte(mediaType, ';'); i >= 0 {
		mediaType = strings.TrimSpace(mediaType[:i])
	}
	switch {
	case strings.HasPrefix(mediaType, "video/"):
		return CategoryVideo
	case strings.HasPrefix(mediaType, "audio/"):
		return CategoryAudio
	case strings.HasPrefix(mediaType, "text/"):
		return CategoryText
	default:
		return CategoryImage
	}
}

// PurgeState is the two-phase deletion state shared by stored files and
// attachments: active, then pending purge from MarkedAt, then gone.
type PurgeState struct {
	Pending  bool      `json:"pending"`
	MarkedAt time.Time `json:"marked_at,omitempty"`
}

// PendingPurge returns a PurgeState marked for purge at the given instant.
func PendingPurge(at time.Time) PurgeState {
	return PurgeState{Pending: true, MarkedAt: at.UTC()}
}

// IsActive reports whether the record is still live.
func (p PurgeState) IsActive() bool {
	return !p.Pending
}

// ExpiredAt reports whether a pending record was marked at or before cutoff.
func (p PurgeState) ExpiredAt(cutoff time.Time) bool {
	return p.Pending && !p.MarkedAt.After(cutoff)
}

// EditorialState is the lifecycle state of a parent content entity.
type EditorialState string

// Editorial state constants (typed).
const (
	EditorialStatePending   EditorialState = "pending"
	EditorialStateValidated EditorialState = "validated"
	EditorialStateRemoved   EditorialState = "removed"
)

// ParentKind names the kind of entity owning an attachment set.
type ParentKind string

// Parent kind constants (typed).
const (
	ParentKindPost    ParentKind = "post"
	ParentKindArticle ParentKind = "article"
)

// StoredFile is a deduplicated, content-addressed file record. At most one
// record exists per Fingerprint.
type StoredFile struct {
	ID          uuid.UUID     `json:"id"`
	Fingerprint string        `json:"fingerprint"`
	MediaType   string        `json:"media_type"`
	Category    Category      `json:"category"`
	FileName    string        `json:"file_name"`
	SizeBytes   int64         `json:"size_bytes"`
	Duration    time.Duration `json:"duration,omitempty"`
	URL         string        `json:"url"`
	CoverID     *uuid.UUID    `json:"cover_id,omitempty"`
	Purge       PurgeState    `json:"purge"`
	CreatedAt   time.Time     `json:"created_at"`
}

// Attachment links a parent entity to zero or one stored file.
type Attachment struct {
	ID         uuid.UUID  `json:"id"`
	ParentID   uuid.UUID  `json:"parent_id"`
	ParentKind ParentKind `json:"parent_kind"`
	FileID     *uuid.UUID `json:"file_id,omitempty"`
	Category   Category   `json:"category"`
	Body       string     `json:"body,omitempty"`
	Position   int        `json:"position"`
	Purge      PurgeState `json:"purge"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// Parent is the view of a post or article that attachment handling needs.
type Parent struct {
	ID    uuid.UUID      `json:"id"`
	Kind  ParentKind     `json:"kind"`
	State EditorialState `json:"state"`
}

// FeedEntry marks a post as visible in an account's feed. PostCreatedAt is
// denormalized so feeds can be ordered without loading posts.
type FeedEntry struct {
	OwnerID       uuid.UUID `json:"owner_id"`
	PostID        uuid.UUID `json:"post_id"`
	PostCreatedAt time.Time `json:"post_created_at"`
	CreatedAt     time.Time `json:"created_at"`
}

// MembershipEdge is a follow relation: FollowerID follows FollowingID.
type MembershipEdge struct {
	FollowerID  uuid.UUID `json:"follower_id"`
	FollowingID uuid.UUID `json:"following_id"`
	CreatedAt   time.Time `json:"created_at"`
}

// Account is a resolved actor.
type Account struct {
	ID          uuid.UUID `json:"id"`
	PrincipalID string    `json:"principal_id"`
	Handle      string    `json:"handle"`
	CreatedAt   time.Time `json:"created_at"`
}

// Post is the primary parent entity of the pipeline.
type Post struct {
	ID        uuid.UUID      `json:"id"`
	AuthorID  uuid.UUID      `json:"author_id"`
	Body      string         `json:"body"`
	State     EditorialState `json:"state"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// AsParent returns the attachment-owner view of the post.
func (p *Post) AsParent() Parent {
	return Parent{ID: p.ID, Kind: ParentKindPost, State: p.State}
}

// PageRequest selects a zero-based page of a collection.
type PageRequest struct {
	Page int `json:"page"`
	Size int `json:"size"`
}

// Offset returns the number of items preceding the page.
func (p PageRequest) Offset() int {
	return p.Page * p.Size
}

// FeedItem is one entry of a merged feed page.
type FeedItem struct {
	Post        *Post `json:"post"`
	Recommended bool  `json:"recommended"`
}

// FeedPage is a merged, time-ordered feed page. Size is the requested page
// size; Items may hold more because each source is paginated independently.
// Total, HasNext and HasPrevious are best-effort over both sources.
type FeedPage struct {
	Items       []FeedItem `json:"items"`
	Page        int        `json:"page"`
	Size        int        `json:"size"`
	Total       int64      `json:"total"`
	HasNext     bool       `json:"has_next"`
	HasPrevious bool       `json:"has_previous"`
	Degraded    bool       `json:"degraded"`
}
