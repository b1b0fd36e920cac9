package tikgrab

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/tikgrab/tikgrab/pkg/tikgrab/tiktok"
)

// service implements the Service interface
type service struct {
	repository     Repository
	blobStores     map[string]BlobStore
	defaultBackend string
	extractors     []Extractor
	fetcher        VideoFetcher
	resolver       URLResolver
	eventSink      EventSink
	cacheTTL       time.Duration
	logger         *slog.Logger

	// group collapses concurrent downloads of the same post into one
	// upstream fetch.
	group singleflight.Group
}

// Option represents a functional option for configuring the service
type Option func(*service)

// WithRepository sets the repository for the service
func WithRepository(repo Repository) Option {
	return func(s *service) {
		s.repository = repo
	}
}

// WithBlobStore adds a blob storage backend
func WithBlobStore(name string, store BlobStore) Option {
	return func(s *service) {
		if s.blobStores == nil {
			s.blobStores = make(map[string]BlobStore)
		}
		s.blobStores[name] = store
	}
}

// WithDefaultBackend names the backend fresh downloads are stored on.
func WithDefaultBackend(name string) Option {
	return func(s *service) {
		s.defaultBackend = name
	}
}

// WithExtractors sets the extractor chain, tried in order.
func WithExtractors(extractors ...Extractor) Option {
	return func(s *service) {
		s.extractors = extractors
	}
}

// WithFetcher sets the fetcher used to stream extracted links.
func WithFetcher(fetcher VideoFetcher) Option {
	return func(s *service) {
		s.fetcher = fetcher
	}
}

// WithResolver sets the resolver for shortened share links.
func WithResolver(resolver URLResolver) Option {
	return func(s *service) {
		s.resolver = resolver
	}
}

// WithEventSink sets the event sink for the service
func WithEventSink(sink EventSink) Option {
	return func(s *service) {
		s.eventSink = sink
	}
}

// WithCacheTTL sets how long stored copies are re-served before purge.
// Zero or negative disables expiry.
func WithCacheTTL(ttl time.Duration) Option {
	return func(s *service) {
		s.cacheTTL = ttl
	}
}

// WithLogger sets the logger used for best-effort failures that do not
// abort an operation.
func WithLogger(logger *slog.Logger) Option {
	return func(s *service) {
		s.logger = logger
	}
}

// New creates a new service instance with the given options
func New(options ...Option) (Service, error) {
	s := &service{
		blobStores: make(map[string]BlobStore),
	}

	for _, option := range options {
		option(s)
	}

	if s.repository == nil {
		return nil, fmt.Errorf("repository is required")
	}
	if s.defaultBackend == "" && len(s.blobStores) == 1 {
		for name := range s.blobStores {
			s.defaultBackend = name
		}
	}
	if s.defaultBackend != "" {
		if _, ok := s.blobStores[s.defaultBackend]; !ok {
			return nil, fmt.Errorf("%w: default backend %q", ErrStorageBackendNotFound, s.defaultBackend)
		}
	}
	if len(s.extractors) > 0 && s.fetcher == nil {
		return nil, fmt.Errorf("fetcher is required when extractors are configured")
	}
	if s.resolver == nil {
		s.resolver = tiktok.NewResolver(nil)
	}
	if s.eventSink == nil {
		s.eventSink = NewNoopEventSink()
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}

	return s, nil
}

// RegisterBackend adds a storage backend after construction.
func (s *service) RegisterBackend(name string, backend BlobStore) {
	if s.blobStores == nil {
		s.blobStores = make(map[string]BlobStore)
	}
	s.blobStores[name] = backend
	if s.defaultBackend == "" {
		s.defaultBackend = name
	}
}

// GetBackend returns a registered storage backend by name.
func (s *service) GetBackend(name string) (BlobStore, error) {
	backend, ok := s.blobStores[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrStorageBackendNotFound, name)
	}
	return backend, nil
}

func (s *service) DownloadVideo(ctx context.Context, req DownloadRequest) (*DownloadResult, error) {
	sourceURL := strings.TrimSpace(req.URL)
	if sourceURL == "" {
		return nil, ErrInvalidURL
	}

	if tiktok.IsShortLink(sourceURL) {
		resolved, err := s.resolver.Resolve(ctx, sourceURL)
		if err != nil {
			return nil, err
		}
		sourceURL = resolved
	}

	post, err := tiktok.Parse(sourceURL)
	if err != nil {
		return nil, err
	}
	if post.Kind == tiktok.KindPhoto {
		return nil, fmt.Errorf("%w: %s", ErrPhotoNotSupported, sourceURL)
	}

	if result, ok := s.serveCached(ctx, post.ID); ok {
		return result, nil
	}

	backendName := req.Backend
	if backendName == "" {
		backendName = s.defaultBackend
	}
	store, err := s.GetBackend(backendName)
	if err != nil {
		return nil, err
	}
	if len(s.extractors) == 0 {
		return nil, ErrNoExtractors
	}

	v, err, _ := s.group.Do(post.ID, func() (interface{}, error) {
		return s.fetchAndStore(ctx, post, sourceURL, backendName, store)
	})
	if err != nil {
		return nil, err
	}
	video := v.(*Video)

	body, err := s.openStored(ctx, video)
	if err != nil {
		return nil, err
	}
	return &DownloadResult{Video: video, Body: body, FromCache: false}, nil
}

// serveCached attempts to satisfy the request from storage. A record whose
// stored object has gone missing is treated as a miss so the post gets
// re-downloaded.
func (s *service) serveCached(ctx context.Context, videoID string) (*DownloadResult, bool) {
	video, err := s.repository.GetVideo(ctx, videoID)
	if err != nil || video == nil {
		return nil, false
	}

	now := time.Now().UTC()
	if video.Expired(now) {
		return nil, false
	}

	body, err := s.openStored(ctx, video)
	if err != nil {
		s.logger.Warn("cached object unreadable, re-downloading",
			"video_id", videoID, "backend", video.StorageBackend, "error", err)
		return nil, false
	}

	expiresAt := video.ExpiresAt
	if s.cacheTTL > 0 {
		expiresAt = now.Add(s.cacheTTL)
	}
	if err := s.repository.TouchVideo(ctx, videoID, expiresAt); err != nil {
		s.logger.Warn("touch failed", "video_id", videoID, "error", err)
	} else {
		video.DownloadCount++
		video.UpdatedAt = now
		video.ExpiresAt = expiresAt
	}

	if err := s.eventSink.CacheHit(ctx, video); err != nil {
		s.logger.Warn("event sink error", "event", "cache_hit", "error", err)
	}

	return &DownloadResult{Video: video, Body: body, FromCache: true}, true
}

// fetchAndStore walks the extractor chain until one yields a fetchable
// link, stores the bytes, and records the download. Extractor and fetch
// failures move on to the next extractor; storage and repository failures
// abort, since no extractor can fix those.
func (s *service) fetchAndStore(ctx context.Context, post tiktok.Post, sourceURL, backendName string, store BlobStore) (*Video, error) {
	var lastErr error
	for _, ex := range s.extractors {
		link, err := ex.Extract(ctx, post, sourceURL)
		if err != nil {
			s.logger.Warn("extractor failed", "provider", ex.Name(), "video_id", post.ID, "error", err)
			lastErr = err
			continue
		}

		payload, err := s.fetcher.Fetch(ctx, link)
		if err != nil {
			s.logger.Warn("fetch failed", "provider", link.Provider, "video_id", post.ID, "error", err)
			lastErr = err
			continue
		}

		video, err := s.storeVideo(ctx, post, sourceURL, link, payload, backendName, store)
		if err != nil {
			return nil, err
		}

		if err := s.eventSink.VideoCached(ctx, video); err != nil {
			s.logger.Warn("event sink error", "event", "video_cached", "error", err)
		}
		return video, nil
	}

	if err := s.eventSink.DownloadFailed(ctx, sourceURL, lastErr); err != nil {
		s.logger.Warn("event sink error", "event", "download_failed", "error", err)
	}
	return nil, fmt.Errorf("%w: last error: %v", ErrAllExtractorsFailed, lastErr)
}

func (s *service) storeVideo(ctx context.Context, post tiktok.Post, sourceURL string, link *ExtractedLink, payload *VideoPayload, backendName string, store BlobStore) (*Video, error) {
	defer payload.Body.Close()

	objectKey := ObjectKeyFor(post.ID)
	contentType := payload.ContentType
	if contentType == "" {
		contentType = DefaultContentType
	} else if !strings.HasPrefix(contentType, "video/") && contentType != "application/octet-stream" {
		s.logger.Warn("unexpected content type from provider",
			"provider", link.Provider,
			"content_type", contentType)
	}

	err := store.UploadWithParams(ctx, payload.Body, UploadParams{
		ObjectKey: objectKey,
		MimeType:  contentType,
	})
	if err != nil {
		return nil, &StorageError{Backend: backendName, Key: objectKey, Op: "upload", Err: err}
	}

	size := payload.Size
	if size < 0 {
		if meta, err := store.GetObjectMeta(ctx, objectKey); err == nil {
			size = meta.Size
		}
	}

	now := time.Now().UTC()
	video := &Video{
		ID:             uuid.New(),
		VideoID:        post.ID,
		Username:       post.Username,
		Kind:           post.Kind,
		SourceURL:      sourceURL,
		Provider:       link.Provider,
		StorageBackend: backendName,
		ObjectKey:      objectKey,
		FileName:       tiktok.Filename(post.ID),
		ContentType:    contentType,
		SizeBytes:      size,
		DownloadCount:  1,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if s.cacheTTL > 0 {
		video.ExpiresAt = now.Add(s.cacheTTL)
	}

	if err := s.repository.UpsertVideo(ctx, video); err != nil {
		return nil, &VideoError{VideoID: post.ID, Op: "upsert", Err: err}
	}
	return video, nil
}

func (s *service) openStored(ctx context.Context, video *Video) (io.ReadCloser, error) {
	store, err := s.GetBackend(video.StorageBackend)
	if err != nil {
		return nil, err
	}
	reader, err := store.Download(ctx, video.ObjectKey)
	if err != nil {
		return nil, &StorageError{Backend: video.StorageBackend, Key: video.ObjectKey, Op: "download", Err: err}
	}
	return reader, nil
}

func (s *service) GetVideo(ctx context.Context, videoID string) (*Video, error) {
	video, err := s.repository.GetVideo(ctx, videoID)
	if err != nil {
		return nil, err
	}
	return video, nil
}

func (s *service) ListVideos(ctx context.Context, req ListVideosRequest) ([]*Video, error) {
	if req.Limit <= 0 {
		req.Limit = DefaultListLimit
	}
	if req.Limit > MaxListLimit {
		req.Limit = MaxListLimit
	}
	if req.Offset < 0 {
		req.Offset = 0
	}
	return s.repository.ListVideos(ctx, req)
}

func (s *service) PurgeExpired(ctx context.Context, now time.Time) (int, error) {
	const batchSize = 100

	purged := 0
	for {
		expired, err := s.repository.ListExpired(ctx, now, batchSize)
		if err != nil {
			return purged, err
		}
		if len(expired) == 0 {
			return purged, nil
		}

		progress := false
		for _, video := range expired {
			if store, err := s.GetBackend(video.StorageBackend); err == nil {
				if err := store.Delete(ctx, video.ObjectKey); err != nil {
					// Keep the record so the next run retries the delete.
					s.logger.Warn("purge: object delete failed",
						"video_id", video.VideoID, "backend", video.StorageBackend, "error", err)
					continue
				}
			}
			if err := s.repository.DeleteVideo(ctx, video.VideoID); err != nil {
				s.logger.Warn("purge: record delete failed", "video_id", video.VideoID, "error", err)
				continue
			}
			purged++
			progress = true
		}

		if !progress || len(expired) < batchSize {
			return purged, nil
		}
	}
}
