package tikgrab

import (
	"time"

	"github.com/google/uuid"

	"github.com/tikgrab/tikgrab/pkg/tikgrab/tiktok"
)

// Video is the persisted record of a downloaded post. It is both download
// history and cache index: StorageBackend plus ObjectKey locate the stored
// bytes, ExpiresAt bounds how long they are re-served.
type Video struct {
	ID             uuid.UUID   `json:"id"`
	VideoID        string      `json:"video_id"`
	Username       string      `json:"username"`
	Kind           tiktok.Kind `json:"kind"`
	SourceURL      string      `json:"source_url"`
	Provider       string      `json:"provider"`
	StorageBackend string      `json:"storage_backend"`
	ObjectKey      string      `json:"object_key"`
	FileName       string      `json:"file_name"`
	ContentType    string      `json:"content_type"`
	SizeBytes      int64       `json:"size_bytes"`
	DownloadCount  int64       `json:"download_count"`
	CreatedAt      time.Time   `json:"created_at"`
	UpdatedAt      time.Time   `json:"updated_at"`
	ExpiresAt      time.Time   `json:"expires_at"`
}

// Expired reports whether the cached copy should no longer be served.
// A zero ExpiresAt means the record never expires.
func (v *Video) Expired(now time.Time) bool {
	return !v.ExpiresAt.IsZero() && !v.ExpiresAt.After(now)
}

// ObjectKeyFor returns the blob storage key used for a post's video bytes.
// Keys are deterministic so a re-download of the same post overwrites the
// previous copy instead of leaking objects.
func ObjectKeyFor(videoID string) string {
	return "videos/" + videoID + ".mp4"
}

// DefaultContentType is assumed when an upstream response does not declare
// one.
const DefaultContentType = "video/mp4"
