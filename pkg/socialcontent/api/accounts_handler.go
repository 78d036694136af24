package api

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/google/uuid"
	"github.com/tendant/social-content/pkg/socialcontent"
)

// AccountsHandler serves account registration, follow and feed endpoints
type AccountsHandler struct {
	service socialcontent.Service
	logger  *slog.Logger
}

// NewAccountsHandler creates a new accounts handler
func NewAccountsHandler(service socialcontent.Service, logger *slog.Logger) *AccountsHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &AccountsHandler{service: service, logger: logger}
}

// Routes returns the routes for accounts
func (h *AccountsHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/", h.Register)
	r.Get("/me", h.Me)
	r.Post("/{id}/follow", h.Follow)
	r.Delete("/{id}/follow", h.Unfollow)
	return r
}

// RegisterAccountRequest is the request body for registering an account
type RegisterAccountRequest struct {
	Handle string `json:"handle"`
}

// Register creates the account of the calling principal
func (h *AccountsHandler) Register(w http.ResponseWriter, r *http.Request) {
	principal := r.Header.Get(PrincipalHeader)
	if principal == "" {
		writeErrorStatus(w, r, http.StatusUnauthorized, "unauthorized", "Missing "+PrincipalHeader+" header")
		return
	}

	var req RegisterAccountRequest
	if err := decodeJSON(w, r, maxJSONBodyBytes, &req); err != nil {
		badBody(w, r, "Invalid request body", err)
		return
	}

	account, err := h.service.RegisterAccount(r.Context(), socialcontent.RegisterAccountRequest{
		PrincipalID: principal,
		Handle:      req.Handle,
	})
	if err != nil {
		writeError(w, r, h.logger, "Failed to register account", err)
		return
	}

	h.logger.Info("Account registered", "account_id", account.ID, "handle", account.Handle)
	render.Status(r, http.StatusCreated)
	render.JSON(w, r, account)
}

// Me returns the account of the calling principal
func (h *AccountsHandler) Me(w http.ResponseWriter, r *http.Request) {
	account, ok := requireAccount(w, r)
	if !ok {
		return
	}
	render.JSON(w, r, account)
}

// Follow makes the caller follow the account in the path
func (h *AccountsHandler) Follow(w http.ResponseWriter, r *http.Request) {
	h.changeFollow(w, r, h.service.Follow)
}

// Unfollow removes the caller's follow of the account in the path
func (h *AccountsHandler) Unfollow(w http.ResponseWriter, r *http.Request) {
	h.changeFollow(w, r, h.service.Unfollow)
}

func (h *AccountsHandler) changeFollow(w http.ResponseWriter, r *http.Request, op func(ctx context.Context, followerID, followingID uuid.UUID) error) {
	account, ok := requireAccount(w, r)
	if !ok {
		return
	}
	targetID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		badRequest(w, r, "Invalid account ID")
		return
	}
	if err := op(r.Context(), account.ID, targetID); err != nil {
		writeError(w, r, h.logger, "Failed to update follow", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// FeedHandler serves the merged home feed
type FeedHandler struct {
	service socialcontent.Service
	logger  *slog.Logger
}

// NewFeedHandler creates a new feed handler
func NewFeedHandler(service socialcontent.Service, logger *slog.Logger) *FeedHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &FeedHandler{service: service, logger: logger}
}

// ReadFeed returns one page of the caller's feed. Anonymous callers get
// recommendations only.
func (h *FeedHandler) ReadFeed(w http.ResponseWriter, r *http.Request) {
	page, err := parsePage(r)
	if err != nil {
		badRequest(w, r, err.Error())
		return
	}

	var viewer *uuid.UUID
	if account, ok := AccountFromContext(r.Context()); ok {
		viewer = &account.ID
	}

	feed, err := h.service.ReadFeed(r.Context(), viewer, page)
	if err != nil {
		writeError(w, r, h.logger, "Failed to read feed", err)
		return
	}
	render.JSON(w, r, feed)
}
