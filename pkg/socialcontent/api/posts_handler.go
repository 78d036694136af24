package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/google/uuid"
	"github.com/tendant/social-content/pkg/socialcontent"
)

// PostsHandler serves post, attachment and fan-out endpoints
type PostsHandler struct {
	service        socialcontent.Service
	logger         *slog.Logger
	maxUploadBytes int64
}

// NewPostsHandler creates a new posts handler
func NewPostsHandler(service socialcontent.Service, logger *slog.Logger, maxUploadBytes int64) *PostsHandler {
	if logger == nil {
		logger = slog.Default()
	}
	if maxUploadBytes <= 0 {
		maxUploadBytes = socialcontent.DefaultMaxUploadBytes
	}
	return &PostsHandler{service: service, logger: logger, maxUploadBytes: maxUploadBytes}
}

// Routes returns the routes for posts
func (h *PostsHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Post("/", h.CreatePost)
	r.Get("/{id}", h.GetPost)
	r.Delete("/{id}", h.DeletePost)
	r.Post("/{id}/publish", h.PublishPost)
	r.Post("/{id}/propagate", h.Propagate)

	r.Get("/{id}/attachments", h.ListAttachments)
	r.Put("/{id}/attachments", h.UpdateAttachments)
	r.Delete("/{id}/attachments", h.DeleteAttachments)

	return r
}

// CreatePostResponse is the response body for a created post
type CreatePostResponse struct {
	Post        *socialcontent.Post              `json:"post"`
	Attachments []*socialcontent.Attachment      `json:"attachments"`
	Propagation *socialcontent.PropagationResult `json:"propagation,omitempty"`
	FanoutError string                           `json:"fanout_error,omitempty"`
}

// DeleteAttachmentsRequest is the request body for deleting attachments
type DeleteAttachmentsRequest struct {
	IDs []string `json:"ids"`
}

// CreatePost creates a post with its attachments and fans it out to followers
func (h *PostsHandler) CreatePost(w http.ResponseWriter, r *http.Request) {
	account, ok := requireAccount(w, r)
	if !ok {
		return
	}

	decoded, err := decodePostPayload(w, r, h.maxUploadBytes)
	if err != nil {
		badBody(w, r, err.Error(), err)
		return
	}
	defer decoded.close()

	result, err := h.service.CreatePost(r.Context(), account.ID, socialcontent.CreatePostRequest{
		Body:        decoded.Body,
		Attachments: decoded.Inputs,
	})
	if err != nil {
		writeError(w, r, h.logger, "Failed to create post", err)
		return
	}

	resp := CreatePostResponse{
		Post:        result.Post,
		Attachments: result.Attachments,
		Propagation: result.Propagation,
	}
	if result.FanoutErr != nil {
		resp.FanoutError = result.FanoutErr.Error()
	}

	h.logger.Info("Post created", "post_id", result.Post.ID, "author_id", account.ID, "attachments", len(result.Attachments))
	render.Status(r, http.StatusCreated)
	render.JSON(w, r, resp)
}

// GetPost returns a live post
func (h *PostsHandler) GetPost(w http.ResponseWriter, r *http.Request) {
	postID, ok := h.postID(w, r)
	if !ok {
		return
	}
	post, err := h.service.GetPost(r.Context(), postID)
	if err != nil {
		writeError(w, r, h.logger, "Failed to get post", err)
		return
	}
	render.JSON(w, r, post)
}

// PublishPost moves a pending post to validated
func (h *PostsHandler) PublishPost(w http.ResponseWriter, r *http.Request) {
	account, ok := requireAccount(w, r)
	if !ok {
		return
	}
	postID, ok := h.postID(w, r)
	if !ok {
		return
	}
	post, err := h.service.PublishPost(r.Context(), account.ID, postID)
	if err != nil {
		writeError(w, r, h.logger, "Failed to publish post", err)
		return
	}
	render.JSON(w, r, post)
}

// DeletePost removes a post and releases its attachments
func (h *PostsHandler) DeletePost(w http.ResponseWriter, r *http.Request) {
	account, ok := requireAccount(w, r)
	if !ok {
		return
	}
	postID, ok := h.postID(w, r)
	if !ok {
		return
	}
	if err := h.service.DeletePost(r.Context(), account.ID, postID); err != nil {
		writeError(w, r, h.logger, "Failed to delete post", err)
		return
	}
	h.logger.Info("Post deleted", "post_id", postID)
	w.WriteHeader(http.StatusNoContent)
}

// Propagate re-runs fan-out for a post. Followers that already have the
// post are skipped.
func (h *PostsHandler) Propagate(w http.ResponseWriter, r *http.Request) {
	account, ok := requireAccount(w, r)
	if !ok {
		return
	}
	postID, ok := h.postID(w, r)
	if !ok {
		return
	}
	post, err := h.service.GetPost(r.Context(), postID)
	if err != nil {
		writeError(w, r, h.logger, "Failed to get post", err)
		return
	}
	if post.AuthorID != account.ID {
		writeError(w, r, h.logger, "Failed to propagate post", socialcontent.ErrForbidden)
		return
	}

	result, err := h.service.Propagate(r.Context(), postID)
	if err != nil && result == nil {
		writeError(w, r, h.logger, "Failed to propagate post", err)
		return
	}
	if err != nil {
		h.logger.Warn("Fan-out incomplete", "post_id", postID, "error", err)
		render.Status(r, http.StatusAccepted)
	}
	render.JSON(w, r, result)
}

// ListAttachments returns the live attachments of a post
func (h *PostsHandler) ListAttachments(w http.ResponseWriter, r *http.Request) {
	postID, ok := h.postID(w, r)
	if !ok {
		return
	}
	attachments, err := h.service.ListAttachments(r.Context(), postID)
	if err != nil {
		writeError(w, r, h.logger, "Failed to list attachments", err)
		return
	}
	render.JSON(w, r, attachments)
}

// UpdateAttachments adds, edits and deletes attachments of a post
func (h *PostsHandler) UpdateAttachments(w http.ResponseWriter, r *http.Request) {
	account, ok := requireAccount(w, r)
	if !ok {
		return
	}
	postID, ok := h.postID(w, r)
	if !ok {
		return
	}

	decoded, err := decodePostPayload(w, r, h.maxUploadBytes)
	if err != nil {
		badBody(w, r, err.Error(), err)
		return
	}
	defer decoded.close()

	attachments, err := h.service.UpdatePostAttachments(r.Context(), account.ID, socialcontent.UpdateAttachmentsRequest{
		PostID:      postID,
		Attachments: decoded.Inputs,
	})
	if err != nil {
		writeError(w, r, h.logger, "Failed to update attachments", err)
		return
	}
	render.JSON(w, r, attachments)
}

// DeleteAttachments deletes the listed attachments of a post
func (h *PostsHandler) DeleteAttachments(w http.ResponseWriter, r *http.Request) {
	account, ok := requireAccount(w, r)
	if !ok {
		return
	}
	postID, ok := h.postID(w, r)
	if !ok {
		return
	}

	var req DeleteAttachmentsRequest
	if err := decodeJSON(w, r, maxJSONBodyBytes, &req); err != nil {
		badBody(w, r, "Invalid request body", err)
		return
	}
	ids := make([]uuid.UUID, 0, len(req.IDs))
	for _, raw := range req.IDs {
		id, err := uuid.Parse(raw)
		if err != nil {
			badRequest(w, r, "Invalid attachment ID")
			return
		}
		ids = append(ids, id)
	}

	if err := h.service.DeleteAttachments(r.Context(), account.ID, postID, ids); err != nil {
		writeError(w, r, h.logger, "Failed to delete attachments", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *PostsHandler) postID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	raw := chi.URLParam(r, "id")
	id, err := uuid.Parse(raw)
	if err != nil {
		h.logger.Debug("Invalid post ID", "post_id", raw, "error", err)
		badRequest(w, r, "Invalid post ID")
		return uuid.Nil, false
	}
	return id, true
}
