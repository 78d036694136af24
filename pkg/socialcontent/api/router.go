// Package api exposes the social-content service over HTTP with chi.
package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"
	"github.com/tendant/social-content/pkg/socialcontent"
	"github.com/tendant/social-content/pkg/socialcontent/sweep"
)

// RouterConfig configures NewRouter
type RouterConfig struct {
	Service        socialcontent.Service
	Sweeper        *sweep.Sweeper // optional; enables /admin
	Logger         *slog.Logger
	MaxUploadBytes int64
	RequestTimeout time.Duration
	// FilesPrefix is where public file URLs are served; it should match the
	// service's public base URL.
	FilesPrefix string
}

// NewRouter builds the full HTTP surface
func NewRouter(cfg RouterConfig) http.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 60 * time.Second
	}
	if cfg.FilesPrefix == "" {
		cfg.FilesPrefix = "/files"
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(LoggingMiddleware(logger))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(cfg.RequestTimeout))
	r.Use(render.SetContentType(render.ContentTypeJSON))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		render.JSON(w, r, map[string]string{"status": "ok"})
	})

	files := NewFilesHandler(cfg.Service, logger, cfg.MaxUploadBytes)
	r.Group(func(r chi.Router) {
		r.Use(AccountMiddleware(cfg.Service, logger))
		r.Mount(cfg.FilesPrefix, files.Routes())

		r.Route("/api/v1", func(r chi.Router) {
			r.Mount("/accounts", NewAccountsHandler(cfg.Service, logger).Routes())
			r.Mount("/posts", NewPostsHandler(cfg.Service, logger, cfg.MaxUploadBytes).Routes())
			r.Get("/feed", NewFeedHandler(cfg.Service, logger).ReadFeed)
			r.Mount("/files", files.Routes())
			if cfg.Sweeper != nil {
				r.Mount("/admin", NewAdminHandler(cfg.Sweeper, logger).Routes())
			}
		})
	})

	return r
}
