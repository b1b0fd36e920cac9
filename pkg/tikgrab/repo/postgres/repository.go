// Package postgres provides a tikgrab.Repository backed by PostgreSQL.
// The videos table is managed by the SQL in migrations/postgres; the
// repository expects it to exist.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tikgrab/tikgrab/pkg/tikgrab"
)

// DBTX is an interface that allows us to use either a database connection or a transaction
type DBTX interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
}

// Repository implements tikgrab.Repository using PostgreSQL
type Repository struct {
	db DBTX
}

// New creates a new PostgreSQL repository
func New(db DBTX) *Repository {
	return &Repository{db: db}
}

// NewWithPool creates a new PostgreSQL repository with connection pool
func NewWithPool(pool *pgxpool.Pool) *Repository {
	return &Repository{db: pool}
}

func (r *Repository) handlePostgresError(operation string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505": // unique_violation
			return fmt.Errorf("video already recorded")
		case "23502": // not_null_violation
			return fmt.Errorf("required field %s is missing", pgErr.ColumnName)
		case "42P01": // undefined_table
			return fmt.Errorf("videos table does not exist - database migration required")
		default:
			return fmt.Errorf("database error in %s: %s (code: %s)", operation, pgErr.Message, pgErr.Code)
		}
	}

	return fmt.Errorf("database error in %s: %w", operation, err)
}

func (r *Repository) UpsertVideo(ctx context.Context, video *tikgrab.Video) error {
	query := `
		INSERT INTO videos (
			id, video_id, username, kind, source_url, provider,
			storage_backend, object_key, file_name, content_type, size_bytes,
			download_count, created_at, updated_at, expires_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		ON CONFLICT (video_id) DO UPDATE SET
			id = EXCLUDED.id,
			username = EXCLUDED.username,
			kind = EXCLUDED.kind,
			source_url = EXCLUDED.source_url,
			provider = EXCLUDED.provider,
			storage_backend = EXCLUDED.storage_backend,
			object_key = EXCLUDED.object_key,
			file_name = EXCLUDED.file_name,
			content_type = EXCLUDED.content_type,
			size_bytes = EXCLUDED.size_bytes,
			download_count = EXCLUDED.download_count,
			created_at = EXCLUDED.created_at,
			updated_at = EXCLUDED.updated_at,
			expires_at = EXCLUDED.expires_at`

	_, err := r.db.Exec(ctx, query,
		video.ID, video.VideoID, video.Username, string(video.Kind),
		video.SourceURL, video.Provider, video.StorageBackend, video.ObjectKey,
		video.FileName, video.ContentType, video.SizeBytes, video.DownloadCount,
		video.CreatedAt, video.UpdatedAt, nullTime(video.ExpiresAt))

	if err != nil {
		return r.handlePostgresError("upsert video", err)
	}

	return nil
}

func (r *Repository) GetVideo(ctx context.Context, videoID string) (*tikgrab.Video, error) {
	query := `
		SELECT id, video_id, username, kind, source_url, provider,
		       storage_backend, object_key, file_name, content_type, size_bytes,
		       download_count, created_at, updated_at, expires_at
		FROM videos WHERE video_id = $1`

	video, err := scanVideo(r.db.QueryRow(ctx, query, videoID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, tikgrab.ErrVideoNotFound
		}
		return nil, r.handlePostgresError("get video", err)
	}

	return video, nil
}

func (r *Repository) TouchVideo(ctx context.Context, videoID string, expiresAt time.Time) error {
	query := `
		UPDATE videos
		SET download_count = download_count + 1, updated_at = NOW(), expires_at = $2
		WHERE video_id = $1`

	tag, err := r.db.Exec(ctx, query, videoID, nullTime(expiresAt))
	if err != nil {
		return r.handlePostgresError("touch video", err)
	}
	if tag.RowsAffected() == 0 {
		return tikgrab.ErrVideoNotFound
	}

	return nil
}

func (r *Repository) ListVideos(ctx context.Context, req tikgrab.ListVideosRequest) ([]*tikgrab.Video, error) {
	query := `
		SELECT id, video_id, username, kind, source_url, provider,
		       storage_backend, object_key, file_name, content_type, size_bytes,
		       download_count, created_at, updated_at, expires_at
		FROM videos ORDER BY updated_at DESC`

	args := []interface{}{}
	if req.Limit > 0 {
		query += " LIMIT $1 OFFSET $2"
		args = append(args, req.Limit, req.Offset)
	} else if req.Offset > 0 {
		query += " OFFSET $1"
		args = append(args, req.Offset)
	}

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, r.handlePostgresError("list videos", err)
	}
	defer rows.Close()

	return collectVideos(rows)
}

func (r *Repository) ListExpired(ctx context.Context, now time.Time, limit int) ([]*tikgrab.Video, error) {
	query := `
		SELECT id, video_id, username, kind, source_url, provider,
		       storage_backend, object_key, file_name, content_type, size_bytes,
		       download_count, created_at, updated_at, expires_at
		FROM videos
		WHERE expires_at IS NOT NULL AND expires_at <= $1
		ORDER BY expires_at`

	args := []interface{}{now}
	if limit > 0 {
		query += " LIMIT $2"
		args = append(args, limit)
	}

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, r.handlePostgresError("list expired videos", err)
	}
	defer rows.Close()

	return collectVideos(rows)
}

func (r *Repository) DeleteVideo(ctx context.Context, videoID string) error {
	tag, err := r.db.Exec(ctx, "DELETE FROM videos WHERE video_id = $1", videoID)
	if err != nil {
		return r.handlePostgresError("delete video", err)
	}
	if tag.RowsAffected() == 0 {
		return tikgrab.ErrVideoNotFound
	}

	return nil
}

func scanVideo(row pgx.Row) (*tikgrab.Video, error) {
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

func collectVideos(rows pgx.Rows) ([]*tikgrab.Video, error) {
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

func nullTime(t time.Time) interface{} {
	if t.IsZero() {
		return nil
	}
	return t
}
