package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/render"

	"github.com/tikgrab/tikgrab/pkg/tikgrab"
	"github.com/tikgrab/tikgrab/pkg/tikgrab/tiktok"
)

// ErrorPayload is the body of every non-2xx response.
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ErrorEnvelope wraps the payload under an "error" key.
type ErrorEnvelope struct {
	Error ErrorPayload `json:"error"`
}

func writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	render.Status(r, status)
	render.JSON(w, r, ErrorEnvelope{Error: ErrorPayload{Code: code, Message: message}})
}

// writeServiceError translates tikgrab errors into HTTP responses. Bad input
// gets 400, unknown records 404, exhausted download methods and everything
// else 500.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, tikgrab.ErrInvalidURL),
		errors.Is(err, tiktok.ErrUsernameNotFound),
		errors.Is(err, tiktok.ErrVideoIDNotFound),
		errors.Is(err, tiktok.ErrResolveFailed):
		writeError(w, r, http.StatusBadRequest, "invalid_url", err.Error())
	case errors.Is(err, tikgrab.ErrPhotoNotSupported):
		writeError(w, r, http.StatusBadRequest, "photo_not_supported", "Only video downloads are supported")
	case errors.Is(err, tikgrab.ErrVideoNotFound):
		writeError(w, r, http.StatusNotFound, "not_found", "video not found")
	case errors.Is(err, tikgrab.ErrAllExtractorsFailed),
		errors.Is(err, tikgrab.ErrNoExtractors):
		writeError(w, r, http.StatusInternalServerError, "download_failed", err.Error())
	default:
		writeError(w, r, http.StatusInternalServerError, "internal_error", err.Error())
	}
}
