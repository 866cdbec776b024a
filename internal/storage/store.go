// Package storage keeps image payload bytes. Keys are the record's storage
// path ("20240115/1a2b3c4d.jpg") and are never overwritten once written.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/notes-bin/imghost/internal/config"
)

var (
	ErrExists   = errors.New("object already exists")
	ErrNotExist = errors.New("object does not exist")
	ErrBadKey   = errors.New("invalid storage key")
)

type Object struct {
	Body    io.ReadCloser
	Size    int64
	ModTime time.Time
}

type Store interface {
	// Put writes data under key and fails with ErrExists instead of overwriting.
	Put(ctx context.Context, key string, data []byte) error
	// Open fails with ErrNotExist when the bytes are missing.
	Open(ctx context.Context, key string) (*Object, error)
	// Delete fails with ErrNotExist when there was nothing to remove.
	Delete(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)
}

// NewKey returns "{UTC YYYYMMDD}/{8 hex}{ext}".
func NewKey(now time.Time, ext string) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return now.UTC().Format("20060102") + "/" + suffix + strings.ToLower(ext)
}

// CheckKey rejects keys that could escape the storage root.
func CheckKey(key string) error {
	if key == "" || strings.HasPrefix(key, "/") || strings.Contains(key, `\`) {
		return fmt.Errorf("%w: %q", ErrBadKey, key)
	}
	for _, part := range strings.Split(key, "/") {
		if part == "" || part == "." || part == ".." {
			return fmt.Errorf("%w: %q", ErrBadKey, key)
		}
	}
	return nil
}

func NewFromConfig(ctx context.Context, cfg *config.Config) (Store, error) {
	switch cfg.Storage.Driver {
	case "disk", "":
		return NewDisk(cfg.MediaRoot)
	case "s3":
		return NewS3(ctx, cfg.Storage.S3)
	default:
		return nil, fmt.Errorf("unknown storage driver: %s", cfg.Storage.Driver)
	}
}
