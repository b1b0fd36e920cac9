// Package sqlite provides a tikgrab.Repository backed by an embedded SQLite
// database. The schema is created on first use, so a fresh deployment needs
// no separate migration step.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/tikgrab/tikgrab/pkg/tikgrab"
)

const schema = `
CREATE TABLE IF NOT EXISTS videos (
    id              TEXT PRIMARY KEY,
    video_id        TEXT NOT NULL UNIQUE,
    username        TEXT NOT NULL,
    kind            TEXT NOT NULL,
    source_url      TEXT NOT NULL,
    provider        TEXT NOT NULL,
    storage_backend TEXT NOT NULL,
    object_key      TEXT NOT NULL,
    file_name       TEXT NOT NULL,
    content_type    TEXT NOT NULL,
    size_bytes      INTEGER NOT NULL DEFAULT 0,
    download_count  INTEGER NOT NULL DEFAULT 0,
    created_at      TIMESTAMP NOT NULL,
    updated_at      TIMESTAMP NOT NULL,
    expires_at      TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_videos_updated_at ON videos(updated_at);
CREATE INDEX IF NOT EXISTS idx_videos_expires_at ON videos(expires_at) WHERE expires_at IS NOT NULL;
`

// Repository implements tikgrab.Repository using SQLite.
type Repository struct {
	db *sql.DB
}

// Open opens (creating if necessary) the SQLite database at path. The busy
// timeout keeps concurrent request handlers from failing on transient locks.
func Open(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}
	return db, nil
}

// New creates a repository on top of db and ensures the schema exists.
func New(db *sql.DB) (*Repository, error) {
	// WAL lets readers proceed while a download is being recorded.
	if _, err := db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}
	return &Repository{db: db}, nil
}

func (r *Repository) UpsertVideo(ctx context.Context, video *tikgrab.Video) error {
	query := `
		INSERT INTO videos (id, video_id, username, kind, source_url, provider,
			storage_backend, object_key, file_name, content_type, size_bytes,
			download_count, created_at, updated_at, expires_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(video_id) DO UPDATE SET
			id = excluded.id,
			username = excluded.username,
			kind = excluded.kind,
			source_url = excluded.source_url,
			provider = excluded.provider,
			storage_backend = excluded.storage_backend,
			object_key = excluded.object_key,
			file_name = excluded.file_name,
			content_type = excluded.content_type,
			size_bytes = excluded.size_bytes,
			download_count = excluded.download_count,
			created_at = excluded.created_at,
			updated_at = excluded.updated_at,
			expires_at = excluded.expires_at`

	_, err := r.db.ExecContext(ctx, query,
		video.ID, video.VideoID, video.Username, string(video.Kind),
		video.SourceURL, video.Provider, video.StorageBackend, video.ObjectKey,
		video.FileName, video.ContentType, video.SizeBytes, video.DownloadCount,
		video.CreatedAt.UTC(), video.UpdatedAt.UTC(), nullTime(video.ExpiresAt))
	if err != nil {
		return fmt.Errorf("failed to upsert video: %w", err)
	}
	return nil
}

func (r *Repository) GetVideo(ctx context.Context, videoID string) (*tikgrab.Video, error) {
	query := `
		SELECT id, video_id, username, kind, source_url, provider,
			storage_backend, object_key, file_name, content_type, size_bytes,
			download_count, created_at, updated_at, expires_at
		FROM videos WHERE video_id = ?`

	video, err := scanVideo(r.db.QueryRowContext(ctx, query, videoID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, tikgrab.ErrVideoNotFound
		}
		return nil, fmt.Errorf("failed to get video: %w", err)
	}
	return video, nil
}

func (r *Repository) TouchVideo(ctx context.Context, videoID string, expiresAt time.Time) error {
	query := `
		UPDATE videos
		SET download_count = download_count + 1, updated_at = ?, expires_at = ?
		WHERE video_id = ?`

	res, err := r.db.ExecContext(ctx, query, time.Now().UTC(), nullTime(expiresAt), videoID)
	if err != nil {
		return fmt.Errorf("failed to touch video: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to touch video: %w", err)
	}
	if affected == 0 {
		return tikgrab.ErrVideoNotFound
	}
	return nil
}

func (r *Repository) ListVideos(ctx context.Context, req tikgrab.ListVideosRequest) ([]*tikgrab.Video, error) {
	limit := req.Limit
	if limit <= 0 {
		limit = -1 // no limit
	}
	query := `
		SELECT id, video_id, username, kind, source_url, provider,
			storage_backend, object_key, file_name, content_type, size_bytes,
			download_count, created_at, updated_at, expires_at
		FROM videos ORDER BY updated_at DESC LIMIT ? OFFSET ?`

	rows, err := r.db.QueryContext(ctx, query, limit, req.Offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list videos: %w", err)
	}
	defer rows.Close()
	return collectVideos(rows)
}

func (r *Repository) ListExpired(ctx context.Context, now time.Time, limit int) ([]*tikgrab.Video, error) {
	if limit <= 0 {
		limit = -1
	}
	query := `
		SELECT id, video_id, username, kind, source_url, provider,
			storage_backend, object_key, file_name, content_type, size_bytes,
			download_count, created_at, updated_at, expires_at
		FROM videos
		WHERE expires_at IS NOT NULL AND expires_at <= ?
		ORDER BY expires_at LIMIT ?`

	rows, err := r.db.QueryContext(ctx, query, now.UTC(), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list expired videos: %w", err)
	}
	defer rows.Close()
	return collectVideos(rows)
}

func (r *Repository) DeleteVideo(ctx context.Context, videoID string) error {
	res, err := r.db.ExecContext(ctx, "DELETE FROM videos WHERE video_id = ?", videoID)
	if err != nil {
		return fmt.Errorf("failed to delete video: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to delete video: %w", err)
	}
	if affected == 0 {
		return tikgrab.ErrVideoNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanVideo(row rowScanner) (*tikgrab.Video, error) {
	var v tikgrab.Video
	var expiresAt sql.NullTime
	err := row.Scan(&v.ID, &v.VideoID, &v.Username, &v.Kind, &v.SourceURL,
		&v.Provider, &v.StorageBackend, &v.ObjectKey, &v.FileName,
		&v.ContentType, &v.SizeBytes, &v.DownloadCount, &v.CreatedAt,
		&v.UpdatedAt, &expiresAt)
	if err != nil {
		return nil, err
	}
	if expiresAt.Valid {
		v.ExpiresAt = expiresAt.Time
	}
	return &v, nil
}

func collectVideos(rows *sql.Rows) ([]*tikgrab.Video, error) {
	videos := make([]*tikgrab.Video, 0)
	for rows.Next() {
		video, err := scanVideo(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan video: %w", err)
		}
		videos = append(videos, video)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate videos: %w", err)
	}
	return videos, nil
}

// nullTime maps the zero time to NULL so "never expires" stays distinguishable.
func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.UTC()
}
