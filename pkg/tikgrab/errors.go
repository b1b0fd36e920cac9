package tikgrab

import (
	"errors"
	"fmt"
)

// Error types
var (
	// ErrInvalidURL indicates the request URL was empty or not a TikTok URL
	ErrInvalidURL = errors.New("invalid TikTok URL")

	// ErrPhotoNotSupported indicates the post is a photo carousel
	ErrPhotoNotSupported = errors.New("only video downloads are supported")

	// ErrVideoNotFound indicates a video record was not found
	ErrVideoNotFound = errors.New("video not found")

	// ErrStorageBackendNotFound indicates a storage backend was not found
	ErrStorageBackendNotFound = errors.New("storage backend not found")

	// ErrNoExtractors indicates the service has no extractors configured
	ErrNoExtractors = errors.New("no extractors configured")

	// ErrAllExtractorsFailed indicates every configured extractor failed
	ErrAllExtractorsFailed = errors.New("all download methods failed")

	// ErrNoDownloadLink indicates an extractor page carried no usable link
	ErrNoDownloadLink = errors.New("no download link found")
)

// ExtractError represents an error from a single extractor attempt
type ExtractError struct {
	Provider string
	Op       string
	Err      error
}

func (e *ExtractError) Error() string {
	return fmt.Sprintf("extractor %s failed during %s: %v", e.Provider, e.Op, e.Err)
}

func (e *ExtractError) Unwrap() error {
	return e.Err
}

// VideoError represents an error related to video record operations
type VideoError struct {
	VideoID string
	Op      string
	Err     error
}

func (e *VideoError) Error() string {
	return fmt.Sprintf("video operation %s failed for video %s: %v", e.Op, e.VideoID, e.Err)
}

func (e *VideoError) Unwrap() error {
	return e.Err
}

// StorageError represents an error related to storage operations
type StorageError struct {
	Backend string
	Key     string
	Op      string
	Err     error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage operation %s failed for key %s on backend %s: %v", e.Op, e.Key, e.Backend, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}
