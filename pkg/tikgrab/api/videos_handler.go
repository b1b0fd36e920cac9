package api

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"github.com/tikgrab/tikgrab/pkg/tikgrab"
)

// VideosHandler exposes stored download records using pkg/tikgrab
type VideosHandler struct {
	service tikgrab.Service
}

// NewVideosHandler creates a new videos handler
func NewVideosHandler(service tikgrab.Service) *VideosHandler {
	return &VideosHandler{service: service}
}

// Routes returns the router for video record endpoints
func (h *VideosHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.ListVideos)
	r.Get("/{videoID}", h.GetVideo)
	return r
}

// VideoResponse is the response body for a stored video record
type VideoResponse struct {
	ID            string     `json:"id"`
	VideoID       string     `json:"video_id"`
	Username      string     `json:"username"`
	SourceURL     string     `json:"source_url"`
	Provider      string     `json:"provider"`
	FileName      string     `json:"file_name"`
	ContentType   string     `json:"content_type"`
	SizeBytes     int64      `json:"size_bytes"`
	DownloadCount int64      `json:"download_count"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
	ExpiresAt     *time.Time `json:"expires_at,omitempty"`
}

// ListVideosResponse is the response body for listing video records
type ListVideosResponse struct {
	Videos []VideoResponse `json:"videos"`
	Count  int             `json:"count"`
}

func toVideoResponse(video *tikgrab.Video) VideoResponse {
	resp := VideoResponse{
		ID:            video.ID.String(),
		VideoID:       video.VideoID,
		Username:      video.Username,
		SourceURL:     video.SourceURL,
		Provider:      video.Provider,
		FileName:      video.FileName,
		ContentType:   video.ContentType,
		SizeBytes:     video.SizeBytes,
		DownloadCount: video.DownloadCount,
		CreatedAt:     video.CreatedAt,
		UpdatedAt:     video.UpdatedAt,
	}
	if !video.ExpiresAt.IsZero() {
		expiresAt := video.ExpiresAt
		resp.ExpiresAt = &expiresAt
	}
	return resp
}

// ListVideos returns stored records, most recently updated first
func (h *VideosHandler) ListVideos(w http.ResponseWriter, r *http.Request) {
	var req tikgrab.ListVideosRequest

	if v := r.URL.Query().Get("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit < 0 {
			writeError(w, r, http.StatusBadRequest, "invalid_limit", "limit must be a non-negative integer")
			return
		}
		req.Limit = limit
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		offset, err := strconv.Atoi(v)
		if err != nil || offset < 0 {
			writeError(w, r, http.StatusBadRequest, "invalid_offset", "offset must be a non-negative integer")
			return
		}
		req.Offset = offset
	}

	videos, err := h.service.ListVideos(r.Context(), req)
	if err != nil {
		slog.Error("Failed to list videos", "error", err)
		writeServiceError(w, r, err)
		return
	}

	resp := ListVideosResponse{
		Videos: make([]VideoResponse, 0, len(videos)),
		Count:  len(videos),
	}
	for _, video := range videos {
		resp.Videos = append(resp.Videos, toVideoResponse(video))
	}

	render.JSON(w, r, resp)
}

// GetVideo returns the stored record for a TikTok video ID
func (h *VideosHandler) GetVideo(w http.ResponseWriter, r *http.Request) {
	videoID := chi.URLParam(r, "videoID")

	video, err := h.service.GetVideo(r.Context(), videoID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	render.JSON(w, r, toVideoResponse(video))
}
