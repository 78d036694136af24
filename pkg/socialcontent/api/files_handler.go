package api

import (
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/google/uuid"
	"github.com/tendant/social-content/pkg/socialcontent"
)

const maxFilesPerRequest = 50

// FilesHandler serves uploads and public file URLs
type FilesHandler struct {
	service        socialcontent.Service
	logger         *slog.Logger
	maxUploadBytes int64
}

// NewFilesHandler creates a new files handler
func NewFilesHandler(service socialcontent.Service, logger *slog.Logger, maxUploadBytes int64) *FilesHandler {
	if logger == nil {
		logger = slog.Default()
	}
	if maxUploadBytes <= 0 {
		maxUploadBytes = socialcontent.DefaultMaxUploadBytes
	}
	return &FilesHandler{service: service, logger: logger, maxUploadBytes: maxUploadBytes}
}

// Routes returns the routes for files
func (h *FilesHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/", h.Upload)
	r.Get("/", h.GetFiles)
	r.Get("/*", h.Download)
	return r
}

// Upload ingests one multipart "file" part with an optional "cover" part.
// Identical bytes resolve to the existing stored file.
func (h *FilesHandler) Upload(w http.ResponseWriter, r *http.Request) {
	if _, ok := requireAccount(w, r); !ok {
		return
	}
	if err := r.ParseMultipartForm(h.maxUploadBytes); err != nil {
		badRequest(w, r, "Invalid multipart form")
		return
	}

	headers := r.MultipartForm.File["file"]
	if len(headers) == 0 {
		badRequest(w, r, "Missing file part")
		return
	}
	upload, f, err := uploadFromHeader(headers[0])
	if err != nil {
		badRequest(w, r, err.Error())
		return
	}
	defer f.Close()

	if raw := r.FormValue("duration_ms"); raw != "" {
		ms, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			badRequest(w, r, "Invalid duration_ms")
			return
		}
		upload.Duration = time.Duration(ms) * time.Millisecond
	}
	if covers := r.MultipartForm.File["cover"]; len(covers) > 0 {
		cover, cf, err := uploadFromHeader(covers[0])
		if err != nil {
			badRequest(w, r, err.Error())
			return
		}
		defer cf.Close()
		upload.Cover = &socialcontent.CoverUpload{
			Reader:       cover.Reader,
			OriginalName: cover.OriginalName,
			MediaType:    cover.MediaType,
		}
	}

	files, err := h.service.Ingest(r.Context(), []socialcontent.Upload{*upload})
	if err != nil {
		writeError(w, r, h.logger, "Failed to ingest upload", err)
		return
	}

	h.logger.Info("File ingested", "file_id", files[0].ID, "fingerprint", files[0].Fingerprint)
	render.Status(r, http.StatusCreated)
	render.JSON(w, r, files[0])
}

// GetFiles returns stored file records for the id query parameters
func (h *FilesHandler) GetFiles(w http.ResponseWriter, r *http.Request) {
	idStrings := r.URL.Query()["id"]
	if len(idStrings) == 0 {
		badRequest(w, r, "Missing required 'id' parameter")
		return
	}
	if len(idStrings) > maxFilesPerRequest {
		badRequest(w, r, "Too many IDs requested")
		return
	}

	ids := make([]uuid.UUID, 0, len(idStrings))
	for _, raw := range idStrings {
		id, err := uuid.Parse(raw)
		if err != nil {
			badRequest(w, r, "Invalid file ID")
			return
		}
		ids = append(ids, id)
	}

	files, err := h.service.GetFiles(r.Context(), ids)
	if err != nil {
		writeError(w, r, h.logger, "Failed to get files", err)
		return
	}
	render.JSON(w, r, files)
}

// Download streams the bytes behind a public file URL
func (h *FilesHandler) Download(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "*")
	if name == "" {
		badRequest(w, r, "Missing file name")
		return
	}

	meta, err := h.service.StatFile(r.Context(), name)
	if err != nil {
		writeError(w, r, h.logger, "Failed to resolve file", err)
		return
	}
	rc, err := h.service.Resolve(r.Context(), name)
	if err != nil {
		writeError(w, r, h.logger, "Failed to resolve file", err)
		return
	}
	defer rc.Close()

	contentType := meta.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", contentType)
	if meta.Size > 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(meta.Size, 10))
	}
	// Names are content fingerprints, so the bytes never change.
	w.Header().Set("Cache-Control", "public, max-age=31536000, immutable")
	if _, err := io.Copy(w, rc); err != nil {
		h.logger.Warn("Failed to stream file", "name", name, "error", err)
	}
}
