package tikgrab

import "io"

// DownloadRequest contains parameters for downloading a post's video.
type DownloadRequest struct {
	// URL is a TikTok post URL, canonical or shortened.
	URL string

	// Backend optionally overrides the service's default storage backend
	// for a fresh download. Cached copies are always read from the backend
	// they were stored on.
	Backend string
}

// DownloadResult is an open video stream plus the metadata needed to serve
// it. The caller owns Body and must close it.
type DownloadResult struct {
	Video *Video
	Body  io.ReadCloser

	// FromCache is true when Body reads a previously stored copy.
	FromCache bool
}

// ListVideosRequest contains parameters for listing video records.
type ListVideosRequest struct {
	Limit  int
	Offset int
}

// List bounds applied by the service when a request leaves them unset.
const (
	DefaultListLimit = 20
	MaxListLimit     = 100
)
