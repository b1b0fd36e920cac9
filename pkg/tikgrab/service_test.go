package tikgrab_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tikgrab/tikgrab/pkg/tikgrab"
	"github.com/tikgrab/tikgrab/pkg/tikgrab/repo/memory"
	memorystorage "github.com/tikgrab/tikgrab/pkg/tikgrab/storage/memory"
	"github.com/tikgrab/tikgrab/pkg/tikgrab/tiktok"
)

const (
	testVideoURL = "https://www.tiktok.com/@someone/video/7310188583311445279"
	testVideoID  = "7310188583311445279"
)

var testPayload = []byte("fake mp4 bytes")

// stubExtractor returns a fixed link or error and counts calls.
type stubExtractor struct {
	name  string
	err   error
	calls atomic.Int64
	delay time.Duration

	mu        sync.Mutex
	lastURL   string
	lastPost  tiktok.Post
}

func (s *stubExtractor) Name() string { return s.name }

func (s *stubExtractor) Extract(ctx context.Context, post tiktok.Post, sourceURL string) (*tikgrab.ExtractedLink, error) {
	s.calls.Add(1)
	if s.delay > 0 {
		time.Sleep(s.delay)
	}
	s.mu.Lock()
	s.lastURL = sourceURL
	s.lastPost = post
	s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	return &tikgrab.ExtractedLink{
		URL:      "https://cdn.example.com/" + post.ID + ".mp4",
		Provider: s.name,
		Headers:  http.Header{"Referer": []string{"https://example.com/"}},
	}, nil
}

// stubFetcher serves testPayload for any link.
type stubFetcher struct {
	err  error
	size int64
}

func (f *stubFetcher) Fetch(ctx context.Context, link *tikgrab.ExtractedLink) (*tikgrab.VideoPayload, error) {
	if f.err != nil {
		return nil, f.err
	}
	size := f.size
	if size == 0 {
		size = int64(len(testPayload))
	}
	return &tikgrab.VideoPayload{
		Body:        io.NopCloser(bytes.NewReader(testPayload)),
		Size:        size,
		ContentType: "video/mp4",
	}, nil
}

type stubResolver struct {
	resolved string
	err      error
	calls    atomic.Int64
}

func (r *stubResolver) Resolve(ctx context.Context, rawURL string) (string, error) {
	r.calls.Add(1)
	return r.resolved, r.err
}

func TestServiceCreation(t *testing.T) {
	tests := []struct {
		name        string
		options     []tikgrab.Option
		expectError bool
	}{
		{
			name:        "no options should fail",
			options:     []tikgrab.Option{},
			expectError: true,
		},
		{
			name: "with repository should succeed",
			options: []tikgrab.Option{
				tikgrab.WithRepository(memory.New()),
			},
			expectError: false,
		},
		{
			name: "with repository and blob store should succeed",
			options: []tikgrab.Option{
				tikgrab.WithRepository(memory.New()),
				tikgrab.WithBlobStore("memory", memorystorage.New()),
			},
			expectError: false,
		},
		{
			name: "unknown default backend should fail",
			options: []tikgrab.Option{
				tikgrab.WithRepository(memory.New()),
				tikgrab.WithBlobStore("memory", memorystorage.New()),
				tikgrab.WithDefaultBackend("s3"),
			},
			expectError: true,
		},
		{
			name: "extractors without fetcher should fail",
			options: []tikgrab.Option{
				tikgrab.WithRepository(memory.New()),
				tikgrab.WithExtractors(&stubExtractor{name: "tmate"}),
			},
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, err := tikgrab.New(tt.options...)

			if tt.expectError {
				assert.Error(t, err)
				assert.Nil(t, svc)
			} else {
				assert.NoError(t, err)
				assert.NotNil(t, svc)
			}
		})
	}
}

func setupTestService(t *testing.T, extra []tikgrab.Option, extractors ...tikgrab.Extractor) (tikgrab.Service, tikgrab.Repository, tikgrab.BlobStore) {
	t.Helper()

	repo := memory.New()
	store := memorystorage.New()

	options := []tikgrab.Option{
		tikgrab.WithRepository(repo),
		tikgrab.WithBlobStore("memory", store),
		tikgrab.WithExtractors(extractors...),
		tikgrab.WithFetcher(&stubFetcher{}),
		tikgrab.WithEventSink(tikgrab.NewNoopEventSink()),
		tikgrab.WithCacheTTL(time.Hour),
	}
	options = append(options, extra...)

	svc, err := tikgrab.New(options...)
	require.NoError(t, err)
	require.NotNil(t, svc)

	return svc, repo, store
}

func TestDownloadVideoFresh(t *testing.T) {
	ex := &stubExtractor{name: "tmate"}
	svc, _, store := setupTestService(t, nil, ex)
	ctx := context.Background()

	result, err := svc.DownloadVideo(ctx, tikgrab.DownloadRequest{URL: testVideoURL})
	require.NoError(t, err)
	defer result.Body.Close()

	assert.False(t, result.FromCache)
	assert.Equal(t, testVideoID, result.Video.VideoID)
	assert.Equal(t, "someone", result.Video.Username)
	assert.Equal(t, tiktok.KindVideo, result.Video.Kind)
	assert.Equal(t, "tmate", result.Video.Provider)
	assert.Equal(t, "memory", result.Video.StorageBackend)
	assert.Equal(t, "videos/"+testVideoID+".mp4", result.Video.ObjectKey)
	assert.Equal(t, "tiktok_"+testVideoID+".mp4", result.Video.FileName)
	assert.Equal(t, "video/mp4", result.Video.ContentType)
	assert.Equal(t, int64(len(testPayload)), result.Video.SizeBytes)
	assert.Equal(t, int64(1), result.Video.DownloadCount)
	assert.NotEqual(t, uuid.Nil, result.Video.ID)
	assert.False(t, result.Video.ExpiresAt.IsZero())

	data, err := io.ReadAll(result.Body)
	require.NoError(t, err)
	assert.Equal(t, testPayload, data)

	// Bytes must be in blob storage under the deterministic key.
	meta, err := store.GetObjectMeta(ctx, result.Video.ObjectKey)
	require.NoError(t, err)
	assert.Equal(t, int64(len(testPayload)), meta.Size)
}

func TestDownloadVideoCacheHit(t *testing.T) {
	ex := &stubExtractor{name: "tmate"}
	svc, _, _ := setupTestService(t, nil, ex)
	ctx := context.Background()

	first, err := svc.DownloadVideo(ctx, tikgrab.DownloadRequest{URL: testVideoURL})
	require.NoError(t, err)
	first.Body.Close()

	second, err := svc.DownloadVideo(ctx, tikgrab.DownloadRequest{URL: testVideoURL})
	require.NoError(t, err)
	defer second.Body.Close()

	assert.True(t, second.FromCache)
	assert.Equal(t, int64(2), second.Video.DownloadCount)
	assert.True(t, second.Video.ExpiresAt.After(first.Video.ExpiresAt) ||
		second.Video.ExpiresAt.Equal(first.Video.ExpiresAt))
	assert.Equal(t, int64(1), ex.calls.Load(), "cache hit must not touch extractors")

	data, err := io.ReadAll(second.Body)
	require.NoError(t, err)
	assert.Equal(t, testPayload, data)
}

func TestDownloadVideoPhotoRejected(t *testing.T) {
	ex := &stubExtractor{name: "tmate"}
	svc, _, _ := setupTestService(t, nil, ex)

	_, err := svc.DownloadVideo(context.Background(), tikgrab.DownloadRequest{
		URL: "https://www.tiktok.com/@artist/photo/7312345678901234567",
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, tikgrab.ErrPhotoNotSupported))
	assert.Equal(t, int64(0), ex.calls.Load())
}

func TestDownloadVideoInvalidURL(t *testing.T) {
	svc, _, _ := setupTestService(t, nil, &stubExtractor{name: "tmate"})

	t.Run("empty", func(t *testing.T) {
		_, err := svc.DownloadVideo(context.Background(), tikgrab.DownloadRequest{URL: "   "})
		assert.True(t, errors.Is(err, tikgrab.ErrInvalidURL))
	})

	t.Run("no username", func(t *testing.T) {
		_, err := svc.DownloadVideo(context.Background(), tikgrab.DownloadRequest{
			URL: "https://www.tiktok.com/video/123",
		})
		assert.True(t, errors.Is(err, tiktok.ErrUsernameNotFound))
	})
}

func TestDownloadVideoShortLink(t *testing.T) {
	ex := &stubExtractor{name: "tmate"}
	resolver := &stubResolver{resolved: testVideoURL}
	svc, _, _ := setupTestService(t, []tikgrab.Option{tikgrab.WithResolver(resolver)}, ex)

	result, err := svc.DownloadVideo(context.Background(), tikgrab.DownloadRequest{
		URL: "https://vm.tiktok.com/ZGeSJ6YRA/",
	})
	require.NoError(t, err)
	defer result.Body.Close()

	assert.Equal(t, int64(1), resolver.calls.Load())
	assert.Equal(t, testVideoURL, result.Video.SourceURL)
	ex.mu.Lock()
	assert.Equal(t, testVideoURL, ex.lastURL, "extractor must see the resolved URL")
	ex.mu.Unlock()
}

func TestDownloadVideoShortLinkResolveError(t *testing.T) {
	resolver := &stubResolver{err: fmt.Errorf("%w: connection refused", tiktok.ErrResolveFailed)}
	svc, _, _ := setupTestService(t, []tikgrab.Option{tikgrab.WithResolver(resolver)}, &stubExtractor{name: "tmate"})

	_, err := svc.DownloadVideo(context.Background(), tikgrab.DownloadRequest{
		URL: "https://vt.tiktok.com/ZS8kQuWjr/",
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, tiktok.ErrResolveFailed))
}

func TestDownloadVideoExtractorFallback(t *testing.T) {
	failing := &stubExtractor{name: "musicaldown", err: errors.New("token not found")}
	working := &stubExtractor{name: "tiktokio"}
	svc, _, _ := setupTestService(t, nil, failing, working)

	result, err := svc.DownloadVideo(context.Background(), tikgrab.DownloadRequest{URL: testVideoURL})
	require.NoError(t, err)
	defer result.Body.Close()

	assert.Equal(t, "tiktokio", result.Video.Provider)
	assert.Equal(t, int64(1), failing.calls.Load())
	assert.Equal(t, int64(1), working.calls.Load())
}

func TestDownloadVideoAllExtractorsFail(t *testing.T) {
	first := &stubExtractor{name: "musicaldown", err: errors.New("token not found")}
	second := &stubExtractor{name: "tmate", err: errors.New("bad gateway")}
	svc, _, _ := setupTestService(t, nil, first, second)

	_, err := svc.DownloadVideo(context.Background(), tikgrab.DownloadRequest{URL: testVideoURL})
	require.Error(t, err)
	assert.True(t, errors.Is(err, tikgrab.ErrAllExtractorsFailed))
	assert.Contains(t, err.Error(), "bad gateway", "message must carry the last extractor error")
}

func TestDownloadVideoFetchFailureFallsThrough(t *testing.T) {
	ex := &stubExtractor{name: "tmate"}
	svc, _, _ := setupTestService(t, []tikgrab.Option{
		tikgrab.WithFetcher(&stubFetcher{err: errors.New("403 from cdn")}),
	}, ex)

	_, err := svc.DownloadVideo(context.Background(), tikgrab.DownloadRequest{URL: testVideoURL})
	require.Error(t, err)
	assert.True(t, errors.Is(err, tikgrab.ErrAllExtractorsFailed))
	assert.Contains(t, err.Error(), "403 from cdn")
}

func TestDownloadVideoNoExtractors(t *testing.T) {
	svc, _, _ := setupTestService(t, nil)

	_, err := svc.DownloadVideo(context.Background(), tikgrab.DownloadRequest{URL: testVideoURL})
	require.Error(t, err)
	assert.True(t, errors.Is(err, tikgrab.ErrNoExtractors))
}

func TestDownloadVideoExpiredRecordRedownloads(t *testing.T) {
	ex := &stubExtractor{name: "tmate"}
	svc, repo, store := setupTestService(t, nil, ex)
	ctx := context.Background()

	// Seed an expired record with its object still present.
	past := time.Now().UTC().Add(-time.Minute)
	require.NoError(t, store.Upload(ctx, tikgrab.ObjectKeyFor(testVideoID), bytes.NewReader([]byte("stale"))))
	require.NoError(t, repo.UpsertVideo(ctx, &tikgrab.Video{
		ID:             uuid.New(),
		VideoID:        testVideoID,
		Username:       "someone",
		Kind:           tiktok.KindVideo,
		SourceURL:      testVideoURL,
		Provider:       "tmate",
		StorageBackend: "memory",
		ObjectKey:      tikgrab.ObjectKeyFor(testVideoID),
		FileName:       tiktok.Filename(testVideoID),
		ContentType:    "video/mp4",
		SizeBytes:      5,
		DownloadCount:  3,
		CreatedAt:      past.Add(-time.Hour),
		UpdatedAt:      past,
		ExpiresAt:      past,
	}))

	result, err := svc.DownloadVideo(ctx, tikgrab.DownloadRequest{URL: testVideoURL})
	require.NoError(t, err)
	defer result.Body.Close()

	assert.False(t, result.FromCache)
	assert.Equal(t, int64(1), ex.calls.Load())

	data, err := io.ReadAll(result.Body)
	require.NoError(t, err)
	assert.Equal(t, testPayload, data, "stale object must be replaced")
}

func TestDownloadVideoMissingObjectRedownloads(t *testing.T) {
	ex := &stubExtractor{name: "tmate"}
	svc, repo, _ := setupTestService(t, nil, ex)
	ctx := context.Background()

	// Record exists and is fresh, but the object vanished from storage.
	now := time.Now().UTC()
	require.NoError(t, repo.UpsertVideo(ctx, &tikgrab.Video{
		ID:             uuid.New(),
		VideoID:        testVideoID,
		Username:       "someone",
		Kind:           tiktok.KindVideo,
		SourceURL:      testVideoURL,
		Provider:       "tmate",
		StorageBackend: "memory",
		ObjectKey:      tikgrab.ObjectKeyFor(testVideoID),
		FileName:       tiktok.Filename(testVideoID),
		ContentType:    "video/mp4",
		SizeBytes:      5,
		DownloadCount:  1,
		CreatedAt:      now,
		UpdatedAt:      now,
		ExpiresAt:      now.Add(time.Hour),
	}))

	result, err := svc.DownloadVideo(ctx, tikgrab.DownloadRequest{URL: testVideoURL})
	require.NoError(t, err)
	defer result.Body.Close()

	assert.False(t, result.FromCache)
	assert.Equal(t, int64(1), ex.calls.Load())
}

func TestDownloadVideoSizeFromStorageMeta(t *testing.T) {
	ex := &stubExtractor{name: "tmate"}
	svc, _, _ := setupTestService(t, []tikgrab.Option{
		tikgrab.WithFetcher(&stubFetcher{size: -1}),
	}, ex)

	result, err := svc.DownloadVideo(context.Background(), tikgrab.DownloadRequest{URL: testVideoURL})
	require.NoError(t, err)
	defer result.Body.Close()

	assert.Equal(t, int64(len(testPayload)), result.Video.SizeBytes,
		"unknown upstream size must be filled in from storage metadata")
}

func TestDownloadVideoConcurrent(t *testing.T) {
	ex := &stubExtractor{name: "tmate", delay: 100 * time.Millisecond}
	svc, _, _ := setupTestService(t, nil, ex)

	const workers = 5
	var wg sync.WaitGroup
	errs := make([]error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			result, err := svc.DownloadVideo(context.Background(), tikgrab.DownloadRequest{URL: testVideoURL})
			if err != nil {
				errs[i] = err
				return
			}
			result.Body.Close()
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		require.NoError(t, err, "worker %d", i)
	}
	assert.Equal(t, int64(1), ex.calls.Load(), "concurrent downloads of one post must share a single fetch")
}

func TestGetVideo(t *testing.T) {
	svc, _, _ := setupTestService(t, nil, &stubExtractor{name: "tmate"})
	ctx := context.Background()

	t.Run("not found", func(t *testing.T) {
		_, err := svc.GetVideo(ctx, "0")
		assert.True(t, errors.Is(err, tikgrab.ErrVideoNotFound))
	})

	t.Run("found after download", func(t *testing.T) {
		result, err := svc.DownloadVideo(ctx, tikgrab.DownloadRequest{URL: testVideoURL})
		require.NoError(t, err)
		result.Body.Close()

		video, err := svc.GetVideo(ctx, testVideoID)
		require.NoError(t, err)
		assert.Equal(t, testVideoID, video.VideoID)
		assert.Equal(t, "someone", video.Username)
	})
}

func TestListVideos(t *testing.T) {
	svc, repo, _ := setupTestService(t, nil, &stubExtractor{name: "tmate"})
	ctx := context.Background()

	base := time.Now().UTC()
	for i := 0; i < 3; i++ {
		require.NoError(t, repo.UpsertVideo(ctx, &tikgrab.Video{
			ID:             uuid.New(),
			VideoID:        fmt.Sprintf("700000000000000000%d", i),
			Username:       "someone",
			Kind:           tiktok.KindVideo,
			StorageBackend: "memory",
			ObjectKey:      fmt.Sprintf("videos/700000000000000000%d.mp4", i),
			FileName:       fmt.Sprintf("tiktok_700000000000000000%d.mp4", i),
			CreatedAt:      base.Add(time.Duration(i) * time.Second),
			UpdatedAt:      base.Add(time.Duration(i) * time.Second),
		}))
	}

	videos, err := svc.ListVideos(ctx, tikgrab.ListVideosRequest{})
	require.NoError(t, err)
	require.Len(t, videos, 3)
	assert.Equal(t, "7000000000000000002", videos[0].VideoID, "most recently updated first")

	limited, err := svc.ListVideos(ctx, tikgrab.ListVideosRequest{Limit: 2})
	require.NoError(t, err)
	assert.Len(t, limited, 2)

	offset, err := svc.ListVideos(ctx, tikgrab.ListVideosRequest{Limit: 2, Offset: 2})
	require.NoError(t, err)
	require.Len(t, offset, 1)
	assert.Equal(t, "7000000000000000000", offset[0].VideoID)
}

func TestPurgeExpired(t *testing.T) {
	svc, repo, store := setupTestService(t, nil, &stubExtractor{name: "tmate"})
	ctx := context.Background()
	now := time.Now().UTC()

	seed := func(id string, expiresAt time.Time) {
		key := tikgrab.ObjectKeyFor(id)
		require.NoError(t, store.Upload(ctx, key, bytes.NewReader([]byte("v"))))
		require.NoError(t, repo.UpsertVideo(ctx, &tikgrab.Video{
			ID:             uuid.New(),
			VideoID:        id,
			Username:       "someone",
			Kind:           tiktok.KindVideo,
			StorageBackend: "memory",
			ObjectKey:      key,
			FileName:       tiktok.Filename(id),
			CreatedAt:      now.Add(-2 * time.Hour),
			UpdatedAt:      now.Add(-2 * time.Hour),
			ExpiresAt:      expiresAt,
		}))
	}

	seed("7000000000000000001", now.Add(-time.Minute)) // expired
	seed("7000000000000000002", now.Add(time.Hour))    // fresh
	seed("7000000000000000003", time.Time{})           // never expires

	purged, err := svc.PurgeExpired(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, 1, purged)

	_, err = repo.GetVideo(ctx, "7000000000000000001")
	assert.True(t, errors.Is(err, tikgrab.ErrVideoNotFound))
	_, err = store.Download(ctx, tikgrab.ObjectKeyFor("7000000000000000001"))
	assert.Error(t, err, "purged object must be deleted from storage")

	_, err = repo.GetVideo(ctx, "7000000000000000002")
	assert.NoError(t, err)
	_, err = repo.GetVideo(ctx, "7000000000000000003")
	assert.NoError(t, err)
}

func TestBackendRegistration(t *testing.T) {
	svc, _, _ := setupTestService(t, nil, &stubExtractor{name: "tmate"})

	_, err := svc.GetBackend("s3")
	assert.True(t, errors.Is(err, tikgrab.ErrStorageBackendNotFound))

	svc.RegisterBackend("s3", memorystorage.New())
	backend, err := svc.GetBackend("s3")
	require.NoError(t, err)
	assert.NotNil(t, backend)
}
