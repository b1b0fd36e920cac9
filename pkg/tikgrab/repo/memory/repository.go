package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/tikgrab/tikgrab/pkg/tikgrab"
)

// Repository implements tikgrab.Repository using in-memory storage
type Repository struct {
	mu     sync.RWMutex
	videos map[string]*tikgrab.Video // video_id -> record
}

// New creates a new in-memory repository
func New() tikgrab.Repository {
	return &Repository{
		videos: make(map[string]*tikgrab.Video),
	}
}

func (r *Repository) UpsertVideo(ctx context.Context, video *tikgrab.Video) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	// Create a copy to avoid external modifications
	videoCopy := *video
	r.videos[video.VideoID] = &videoCopy

	return nil
}

func (r *Repository) GetVideo(ctx context.Context, videoID string) (*tikgrab.Video, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	video, exists := r.videos[videoID]
	if !exists {
		return nil, tikgrab.ErrVideoNotFound
	}

	// Return a copy to prevent external modifications
	videoCopy := *video
	return &videoCopy, nil
}

func (r *Repository) TouchVideo(ctx context.Context, videoID string, expiresAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	video, exists := r.videos[videoID]
	if !exists {
		return tikgrab.ErrVideoNotFound
	}

	video.DownloadCount++
	video.UpdatedAt = time.Now().UTC()
	video.ExpiresAt = expiresAt
	return nil
}

func (r *Repository) ListVideos(ctx context.Context, req tikgrab.ListVideosRequest) ([]*tikgrab.Video, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	all := make([]*tikgrab.Video, 0, len(r.videos))
	for _, video := range r.videos {
		videoCopy := *video
		all = append(all, &videoCopy)
	}

	sort.Slice(all, func(i, j int) bool {
		return all[i].UpdatedAt.After(all[j].UpdatedAt)
	})

	if req.Offset >= len(all) {
		return []*tikgrab.Video{}, nil
	}
	all = all[req.Offset:]
	if req.Limit > 0 && req.Limit < len(all) {
		all = all[:req.Limit]
	}
	return all, nil
}

func (r *Repository) ListExpired(ctx context.Context, now time.Time, limit int) ([]*tikgrab.Video, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	expired := make([]*tikgrab.Video, 0)
	for _, video := range r.videos {
		if !video.Expired(now) {
			continue
		}
		videoCopy := *video
		expired = append(expired, &videoCopy)
		if limit > 0 && len(expired) >= limit {
			break
		}
	}

	sort.Slice(expired, func(i, j int) bool {
		return expired[i].ExpiresAt.Before(expired[j].ExpiresAt)
	})
	return expired, nil
}

func (r *Repository) DeleteVideo(ctx context.Context, videoID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.videos[videoID]; !exists {
		return tikgrab.ErrVideoNotFound
	}

	delete(r.videos, videoID)
	return nil
}
