package tikgrab

import (
	"context"
	"log/slog"
)

// NoopEventSink is a no-operation implementation of EventSink
// Useful when you don't need event handling or for testing
type NoopEventSink struct{}

// NewNoopEventSink creates a new no-operation event sink
func NewNoopEventSink() EventSink {
	return &NoopEventSink{}
}

// VideoCached does nothing and returns nil
func (n *NoopEventSink) VideoCached(ctx context.Context, video *Video) error {
	return nil
}

// CacheHit does nothing and returns nil
func (n *NoopEventSink) CacheHit(ctx context.Context, video *Video) error {
	return nil
}

// DownloadFailed does nothing and returns nil
func (n *NoopEventSink) DownloadFailed(ctx context.Context, sourceURL string, err error) error {
	return nil
}

// LoggingEventSink is an event sink that logs events but takes no other
// action. Useful for development and as the default production sink.
type LoggingEventSink struct {
	logger *slog.Logger
}

// NewLoggingEventSink creates a new logging event sink
func NewLoggingEventSink(logger *slog.Logger) EventSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &LoggingEventSink{logger: logger}
}

// VideoCached logs the stored download
func (l *LoggingEventSink) VideoCached(ctx context.Context, video *Video) error {
	l.logger.InfoContext(ctx, "video cached",
		"video_id", video.VideoID,
		"username", video.Username,
		"provider", video.Provider,
		"backend", video.StorageBackend,
		"size_bytes", video.SizeBytes)
	return nil
}

// CacheHit logs the cache hit
func (l *LoggingEventSink) CacheHit(ctx context.Context, video *Video) error {
	l.logger.InfoContext(ctx, "cache hit",
		"video_id", video.VideoID,
		"download_count", video.DownloadCount)
	return nil
}

// DownloadFailed logs the exhausted extractor chain
func (l *LoggingEventSink) DownloadFailed(ctx context.Context, sourceURL string, err error) error {
	l.logger.ErrorContext(ctx, "download failed",
		"source_url", sourceURL,
		"error", err)
	return nil
}
