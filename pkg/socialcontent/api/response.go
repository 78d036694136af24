package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/render"
	"github.com/tendant/social-content/pkg/socialcontent"
)

// ErrorBody is the JSON envelope for every error response
type ErrorBody struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail describes a failed request
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// statusFor maps service errors onto HTTP status codes and error codes.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, socialcontent.ErrInvalidInput):
		return http.StatusBadRequest, "invalid_input"
	case errors.Is(err, socialcontent.ErrForbidden):
		return http.StatusForbidden, "forbidden"
	case errors.Is(err, socialcontent.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, socialcontent.ErrConflict):
		return http.StatusConflict, "conflict"
	case errors.Is(err, socialcontent.ErrStorageFailure), errors.Is(err, socialcontent.ErrFanoutFailed):
		return http.StatusServiceUnavailable, "unavailable"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

func writeError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, msg string, err error) {
	status, code := statusFor(err)
	if status >= http.StatusInternalServerError {
		logger.Error(msg, "method", r.Method, "path", r.URL.Path, "error", err)
	} else {
		logger.Debug(msg, "method", r.Method, "path", r.URL.Path, "status", status, "error", err)
	}
	message := err.Error()
	if status == http.StatusInternalServerError {
		message = "An internal server error occurred"
	}
	writeErrorStatus(w, r, status, code, message)
}

func writeErrorStatus(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	render.Status(r, status)
	render.JSON(w, r, ErrorBody{Error: ErrorDetail{Code: code, Message: message}})
}

func badRequest(w http.ResponseWriter, r *http.Request, message string) {
	writeErrorStatus(w, r, http.StatusBadRequest, "invalid_input", message)
}
