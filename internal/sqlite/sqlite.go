// Package sqlite stores image records and access tokens in a single SQLite file.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/notes-bin/imghost/internal/model"
	"github.com/notes-bin/imghost/internal/sqlite/migrations"

	"github.com/mattn/go-sqlite3"
)

const imageColumns = `id, storage_path, original_filename, file_size, content_hash, width, height,
	mime_type, uploader_ip, owner_user, created_at, view_count, is_temporary, expires_at`

type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the database at path and migrates it to the latest schema.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating database dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// 单连接串行写入，避免 SQLITE_BUSY
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := migrations.Up(db); err != nil {
		db.Close()
		return nil, err
	}
	version, dirty, err := migrations.Version(db)
	if err != nil {
		db.Close()
		return nil, err
	}
	if dirty {
		db.Close()
		return nil, fmt.Errorf("database schema version %d is dirty", version)
	}
	slog.Info("SQLite schema ready", "path", path, "version", version)
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) InsertImage(ctx context.Context, img *model.Image) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO images (`+imageColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		img.ID, img.StoragePath, img.OriginalFilename, img.FileSize, img.ContentHash,
		img.Width, img.Height, img.MimeType, img.UploaderIP, img.OwnerUser,
		img.CreatedAt.UnixNano(), img.ViewCount, img.IsTemporary, nullableTime(img.ExpiresAt))
	if err != nil {
		return classifyInsert(err)
	}
	return nil
}

func (s *Store) FindByID(ctx context.Context, id string) (*model.Image, error) {
	return s.findOne(ctx, "id", id)
}

func (s *Store) FindByHash(ctx context.Context, digest string) (*model.Image, error) {
	return s.findOne(ctx, "content_hash", digest)
}

func (s *Store) FindByPath(ctx context.Context, path string) (*model.Image, error) {
	return s.findOne(ctx, "storage_path", path)
}

func (s *Store) findOne(ctx context.Context, column, value string) (*model.Image, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+imageColumns+` FROM images WHERE `+column+` = ?`, value)
	img, err := scanImage(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("finding image by %s: %w", column, err)
	}
	return img, nil
}

func (s *Store) RemoveImage(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM images WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting image: %w", err)
	}
	return requireAffected(res)
}

func (s *Store) IncrementView(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE images SET view_count = view_count + 1 WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("incrementing views: %w", err)
	}
	return requireAffected(res)
}

func (s *Store) ListImages(ctx context.Context, offset, limit int) ([]*model.Image, int, error) {
	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM images`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("counting images: %w", err)
	}
	if limit <= 0 || offset >= total {
		return []*model.Image{}, total, nil
	}
	images, err := s.query(ctx, `SELECT `+imageColumns+` FROM images
		ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`, limit, offset)
	return images, total, err
}

func (s *Store) ListExpired(ctx context.Context, now time.Time) ([]*model.Image, error) {
	return s.query(ctx, `SELECT `+imageColumns+` FROM images
		WHERE is_temporary = 1 AND expires_at IS NOT NULL AND expires_at < ?
		ORDER BY expires_at`, now.UnixNano())
}

func (s *Store) query(ctx context.Context, q string, args ...any) ([]*model.Image, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("listing images: %w", err)
	}
	defer rows.Close()

	images := []*model.Image{}
	for rows.Next() {
		img, err := scanImage(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning image: %w", err)
		}
		images = append(images, img)
	}
	return images, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanImage(row scanner) (*model.Image, error) {
	var (
		img       model.Image
		createdAt int64
		expiresAt sql.NullInt64
	)
	err := row.Scan(&img.ID, &img.StoragePath, &img.OriginalFilename, &img.FileSize, &img.ContentHash,
		&img.Width, &img.Height, &img.MimeType, &img.UploaderIP, &img.OwnerUser,
		&createdAt, &img.ViewCount, &img.IsTemporary, &expiresAt)
	if err != nil {
		return nil, err
	}
	img.CreatedAt = time.Unix(0, createdAt).UTC()
	img.ExpiresAt = timeFromNull(expiresAt)
	return &img, nil
}

// classifyInsert maps unique violations to the domain errors callers branch on.
// access_tokens.token is the primary key, so its violations carry a different code.
func classifyInsert(err error) error {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) && isUniqueViolation(sqliteErr.ExtendedCode) {
		msg := sqliteErr.Error()
		switch {
		case strings.Contains(msg, "images.content_hash"):
			return model.ErrDuplicateHash
		case strings.Contains(msg, "images.storage_path"):
			return model.ErrPathConflict
		case strings.Contains(msg, "access_tokens.token"):
			return model.ErrTokenExists
		}
	}
	return fmt.Errorf("inserting: %w", err)
}

func isUniqueViolation(code sqlite3.ErrNoExtended) bool {
	return code == sqlite3.ErrConstraintUnique || code == sqlite3.ErrConstraintPrimaryKey
}

func requireAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return model.ErrNotFound
	}
	return nil
}

func nullableTime(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.UnixNano(), Valid: true}
}

func timeFromNull(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := time.Unix(0, v.Int64).UTC()
	return &t
}
