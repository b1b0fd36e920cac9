package tikgrab

import (
	"context"
	"time"
)

// Service defines the main interface for the tikgrab library
type Service interface {
	// DownloadVideo resolves and parses url, then streams the post's video,
	// serving from storage when an unexpired copy exists and otherwise
	// walking the configured extractors until one yields a fetchable link.
	DownloadVideo(ctx context.Context, req DownloadRequest) (*DownloadResult, error)

	// GetVideo returns the stored record for a TikTok video ID.
	GetVideo(ctx context.Context, videoID string) (*Video, error)

	// ListVideos returns stored records, most recently updated first.
	ListVideos(ctx context.Context, req ListVideosRequest) ([]*Video, error)

	// PurgeExpired deletes records whose expiry precedes now along with
	// their stored objects, and reports how many were removed.
	PurgeExpired(ctx context.Context, now time.Time) (int, error)

	// Storage backend operations
	RegisterBackend(name string, backend BlobStore)
	GetBackend(name string) (BlobStore, error)
}
