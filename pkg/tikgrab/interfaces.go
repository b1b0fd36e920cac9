package tikgrab

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/tikgrab/tikgrab/pkg/tikgrab/tiktok"
)

// Extractor turns a TikTok post into a direct video URL by driving one of
// the third-party download sites.
type Extractor interface {
	// Name identifies the extractor in records and logs (e.g., "tmate").
	Name() string

	// Extract returns a direct link for the post's video. sourceURL is the
	// resolved canonical post URL, which the sites expect as form input.
	Extract(ctx context.Context, post tiktok.Post, sourceURL string) (*ExtractedLink, error)
}

// ExtractedLink is a direct, fetchable video URL produced by an Extractor.
type ExtractedLink struct {
	URL      string
	Provider string

	// Headers to present when fetching the URL. Some CDNs check Referer or
	// User-Agent; extractors fill in whatever their site requires.
	Headers http.Header
}

// VideoFetcher streams the bytes behind an extracted link.
type VideoFetcher interface {
	Fetch(ctx context.Context, link *ExtractedLink) (*VideoPayload, error)
}

// VideoPayload is an open upstream video stream.
type VideoPayload struct {
	Body io.ReadCloser

	// Size is the upstream Content-Length, or -1 when unknown.
	Size int64

	ContentType string
}

// URLResolver expands shortened share links to canonical post URLs.
// *tiktok.Resolver is the production implementation.
type URLResolver interface {
	Resolve(ctx context.Context, rawURL string) (string, error)
}

// BlobStore defines the interface for storage backends
type BlobStore interface {
	// Upload uploads content directly
	Upload(ctx context.Context, objectKey string, reader io.Reader) error

	// UploadWithParams uploads content with additional parameters
	UploadWithParams(ctx context.Context, reader io.Reader, params UploadParams) error

	// Download downloads content directly
	Download(ctx context.Context, objectKey string) (io.ReadCloser, error)

	// Delete deletes content
	Delete(ctx context.Context, objectKey string) error

	// GetObjectMeta retrieves metadata for an object
	GetObjectMeta(ctx context.Context, objectKey string) (*ObjectMeta, error)
}

// Repository defines the interface for video record persistence
type Repository interface {
	// UpsertVideo inserts the record or replaces the existing record with
	// the same VideoID.
	UpsertVideo(ctx context.Context, video *Video) error

	// GetVideo returns the record for a TikTok video ID.
	GetVideo(ctx context.Context, videoID string) (*Video, error)

	// TouchVideo bumps the download counter and slides the expiry window.
	TouchVideo(ctx context.Context, videoID string, expiresAt time.Time) error

	// ListVideos returns records ordered by most recently updated.
	ListVideos(ctx context.Context, req ListVideosRequest) ([]*Video, error)

	// ListExpired returns up to limit records whose expiry precedes now.
	ListExpired(ctx context.Context, now time.Time, limit int) ([]*Video, error)

	// DeleteVideo removes the record for a TikTok video ID.
	DeleteVideo(ctx context.Context, videoID string) error
}

// EventSink defines the interface for download lifecycle notifications
type EventSink interface {
	// VideoCached is fired when a fresh download lands in storage
	VideoCached(ctx context.Context, video *Video) error

	// CacheHit is fired when a request is served from storage
	CacheHit(ctx context.Context, video *Video) error

	// DownloadFailed is fired when every extractor failed for a URL
	DownloadFailed(ctx context.Context, sourceURL string, err error) error
}

// ObjectMeta contains metadata about an object in storage
type ObjectMeta struct {
	Key         string
	Size        int64
	ContentType string
	UpdatedAt   time.Time
	ETag        string
	Metadata    map[string]string
}

// UploadParams contains parameters for uploading an object
type UploadParams struct {
	ObjectKey string
	MimeType  string
}
