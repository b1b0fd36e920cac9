package api

import (
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/tikgrab/tikgrab/pkg/tikgrab"
)

// DownloadsHandler handles video download requests using pkg/tikgrab
type DownloadsHandler struct {
	service tikgrab.Service
}

// NewDownloadsHandler creates a new downloads handler
func NewDownloadsHandler(service tikgrab.Service) *DownloadsHandler {
	return &DownloadsHandler{service: service}
}

// Routes returns the router for the download endpoint
func (h *DownloadsHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.Download)
	return r
}

// Download resolves the TikTok URL in the "url" query parameter and streams
// the post's video back as an attachment.
func (h *DownloadsHandler) Download(w http.ResponseWriter, r *http.Request) {
	rawURL := r.URL.Query().Get("url")
	if rawURL == "" {
		writeError(w, r, http.StatusBadRequest, "invalid_url", "missing required 'url' parameter")
		return
	}

	result, err := h.service.DownloadVideo(r.Context(), tikgrab.DownloadRequest{URL: rawURL})
	if err != nil {
		slog.Error("Download failed", "url", rawURL, "error", err)
		writeServiceError(w, r, err)
		return
	}
	defer result.Body.Close()

	video := result.Video
	contentType := video.ContentType
	if contentType == "" {
		contentType = tikgrab.DefaultContentType
	}

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", video.FileName))
	w.Header().Set("Accept-Ranges", "bytes")
	if video.SizeBytes > 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(video.SizeBytes, 10))
	}
	if result.FromCache {
		w.Header().Set("X-Cache", "HIT")
	} else {
		w.Header().Set("X-Cache", "MISS")
	}

	if _, err := io.Copy(w, result.Body); err != nil {
		// Headers are gone by now; all we can do is log the broken stream.
		slog.Error("Streaming interrupted", "video_id", video.VideoID, "error", err)
	}
}
