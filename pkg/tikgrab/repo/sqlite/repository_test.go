package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tikgrab/tikgrab/pkg/tikgrab"
	"github.com/tikgrab/tikgrab/pkg/tikgrab/tiktok"
)

func setupRepo(t *testing.T) *Repository {
	t.Helper()

	db, err := Open(filepath.Join(t.TempDir(), "videos.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	repo, err := New(db)
	require.NoError(t, err)
	return repo
}

func testVideo(videoID string) *tikgrab.Video {
	now := time.Now().UTC().Truncate(time.Second)
	return &tikgrab.Video{
		ID:             uuid.New(),
		VideoID:        videoID,
		Username:       "someone",
		Kind:           tiktok.KindVideo,
		SourceURL:      "https://www.tiktok.com/@someone/video/" + videoID,
		Provider:       "musicaldown",
		StorageBackend: "fs",
		ObjectKey:      tikgrab.ObjectKeyFor(videoID),
		FileName:       "tiktok_" + videoID + ".mp4",
		ContentType:    "video/mp4",
		SizeBytes:      1024,
		DownloadCount:  1,
		CreatedAt:      now,
		UpdatedAt:      now,
		ExpiresAt:      now.Add(24 * time.Hour),
	}
}

func TestUpsertAndGetVideo(t *testing.T) {
	repo := setupRepo(t)
	ctx := context.Background()

	video := testVideo("7310188583311445279")
	require.NoError(t, repo.UpsertVideo(ctx, video))

	got, err := repo.GetVideo(ctx, video.VideoID)
	require.NoError(t, err)
	assert.Equal(t, video.ID, got.ID)
	assert.Equal(t, video.VideoID, got.VideoID)
	assert.Equal(t, video.Username, got.Username)
	assert.Equal(t, video.Kind, got.Kind)
	assert.Equal(t, video.Provider, got.Provider)
	assert.Equal(t, video.ObjectKey, got.ObjectKey)
	assert.Equal(t, video.SizeBytes, got.SizeBytes)
	assert.True(t, video.CreatedAt.Equal(got.CreatedAt))
	assert.True(t, video.ExpiresAt.Equal(got.ExpiresAt))
}

func TestGetVideoNotFound(t *testing.T) {
	repo := setupRepo(t)

	_, err := repo.GetVideo(context.Background(), "0000000000000000000")
	assert.ErrorIs(t, err, tikgrab.ErrVideoNotFound)
}

func TestUpsertReplacesOnConflict(t *testing.T) {
	repo := setupRepo(t)
	ctx := context.Background()

	video := testVideo("7310188583311445279")
	require.NoError(t, repo.UpsertVideo(ctx, video))

	// A re-download of the same post writes a fresh record under the same
	// video_id.
	replacement := testVideo(video.VideoID)
	replacement.Provider = "tmate"
	replacement.SizeBytes = 2048
	require.NoError(t, repo.UpsertVideo(ctx, replacement))

	got, err := repo.GetVideo(ctx, video.VideoID)
	require.NoError(t, err)
	assert.Equal(t, replacement.ID, got.ID)
	assert.Equal(t, "tmate", got.Provider)
	assert.Equal(t, int64(2048), got.SizeBytes)
}

func TestUpsertPersistsZeroExpiry(t *testing.T) {
	repo := setupRepo(t)
	ctx := context.Background()

	video := testVideo("7310188583311445279")
	video.ExpiresAt = time.Time{}
	require.NoError(t, repo.UpsertVideo(ctx, video))

	got, err := repo.GetVideo(ctx, video.VideoID)
	require.NoError(t, err)
	assert.True(t, got.ExpiresAt.IsZero())
	assert.False(t, got.Expired(time.Now().Add(1000*time.Hour)))
}

func TestTouchVideo(t *testing.T) {
	repo := setupRepo(t)
	ctx := context.Background()

	video := testVideo("7310188583311445279")
	require.NoError(t, repo.UpsertVideo(ctx, video))

	newExpiry := time.Now().UTC().Add(48 * time.Hour).Truncate(time.Second)
	require.NoError(t, repo.TouchVideo(ctx, video.VideoID, newExpiry))

	got, err := repo.GetVideo(ctx, video.VideoID)
	require.NoError(t, err)
	assert.Equal(t, video.DownloadCount+1, got.DownloadCount)
	assert.True(t, newExpiry.Equal(got.ExpiresAt))
	assert.True(t, got.UpdatedAt.After(video.UpdatedAt) || got.UpdatedAt.Equal(video.UpdatedAt))
}

func TestTouchVideoNotFound(t *testing.T) {
	repo := setupRepo(t)

	err := repo.TouchVideo(context.Background(), "0000000000000000000", time.Now())
	assert.ErrorIs(t, err, tikgrab.ErrVideoNotFound)
}

func TestListVideosOrderAndPaging(t *testing.T) {
	repo := setupRepo(t)
	ctx := context.Background()

	base := time.Now().UTC().Truncate(time.Second)
	ids := []string{"7000000000000000001", "7000000000000000002", "7000000000000000003"}
	for i, id := range ids {
		v := testVideo(id)
		v.UpdatedAt = base.Add(time.Duration(i) * time.Minute)
		require.NoError(t, repo.UpsertVideo(ctx, v))
	}

	// Most recently updated first.
	videos, err := repo.ListVideos(ctx, tikgrab.ListVideosRequest{})
	require.NoError(t, err)
	require.Len(t, videos, 3)
	assert.Equal(t, ids[2], videos[0].VideoID)
	assert.Equal(t, ids[0], videos[2].VideoID)

	videos, err = repo.ListVideos(ctx, tikgrab.ListVideosRequest{Limit: 1, Offset: 1})
	require.NoError(t, err)
	require.Len(t, videos, 1)
	assert.Equal(t, ids[1], videos[0].VideoID)
}

func TestListExpired(t *testing.T) {
	repo := setupRepo(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)

	expired := testVideo("7000000000000000001")
	expired.ExpiresAt = now.Add(-time.Hour)
	require.NoError(t, repo.UpsertVideo(ctx, expired))

	fresh := testVideo("7000000000000000002")
	fresh.ExpiresAt = now.Add(time.Hour)
	require.NoError(t, repo.UpsertVideo(ctx, fresh))

	forever := testVideo("7000000000000000003")
	forever.ExpiresAt = time.Time{}
	require.NoError(t, repo.UpsertVideo(ctx, forever))

	got, err := repo.ListExpired(ctx, now, 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, expired.VideoID, got[0].VideoID)
}

func TestDeleteVideo(t *testing.T) {
	repo := setupRepo(t)
	ctx := context.Background()

	video := testVideo("7310188583311445279")
	require.NoError(t, repo.UpsertVideo(ctx, video))
	require.NoError(t, repo.DeleteVideo(ctx, video.VideoID))

	_, err := repo.GetVideo(ctx, video.VideoID)
	assert.ErrorIs(t, err, tikgrab.ErrVideoNotFound)

	assert.ErrorIs(t, repo.DeleteVideo(ctx, video.VideoID), tikgrab.ErrVideoNotFound)
}
