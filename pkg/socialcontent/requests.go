package socialcontent

import "github.com/google/uuid"

// Request/Response DTOs

// CreatePostRequest contains parameters for creating a post
type CreatePostRequest struct {
	Body        string
	Attachments []AttachmentInput
}

// CreatePostResult is returned by CreatePost. The post is durable even when
// FanoutErr is set; FanoutErr then describes which followers were missed.
type CreatePostResult struct {
	Post        *Post
	Attachments []*Attachment
	Propagation *PropagationResult
	FanoutErr   error
}

// UpdateAttachmentsRequest contains parameters for editing a post's attachments
type UpdateAttachmentsRequest struct {
	PostID      uuid.UUID
	Attachments []AttachmentInput
}

// RegisterAccountRequest contains parameters for registering an account
type RegisterAccountRequest struct {
	PrincipalID string
	Handle      string
}
