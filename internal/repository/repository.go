// Package repository pairs a metadata store with a payload store so callers
// see one Storage Repository.
package repository

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/notes-bin/imghost/internal/digest"
	"github.com/notes-bin/imghost/internal/model"
	"github.com/notes-bin/imghost/internal/storage"
)

// Metadata is implemented by the redis and sqlite stores. The unique
// constraints on content hash and storage path are enforced here, not by callers.
type Metadata interface {
	InsertImage(ctx context.Context, img *model.Image) error
	FindByID(ctx context.Context, id string) (*model.Image, error)
	FindByHash(ctx context.Context, digest string) (*model.Image, error)
	FindByPath(ctx context.Context, path string) (*model.Image, error)
	RemoveImage(ctx context.Context, id string) error
	IncrementView(ctx context.Context, id string) error
	ListImages(ctx context.Context, offset, limit int) ([]*model.Image, int, error)
	ListExpired(ctx context.Context, now time.Time) ([]*model.Image, error)
}

type Repository struct {
	meta  Metadata
	files storage.Store
}

func New(meta Metadata, files storage.Store) *Repository {
	return &Repository{meta: meta, files: files}
}

// DeleteResult reports the two deletion steps separately.
type DeleteResult struct {
	Image         *model.Image
	RecordRemoved bool
	FileRemoved   bool
	FileMissing   bool
	FileErr       error
}

// Complete reports whether no payload was left behind. A record already removed
// by a concurrent delete still counts as complete.
func (r *DeleteResult) Complete() bool {
	return r.FileErr == nil
}

// FindByHash looks up the record for a content digest. A malformed digest
// never matches a record.
func (r *Repository) FindByHash(ctx context.Context, sum string) (*model.Image, error) {
	if !digest.Valid(sum) {
		return nil, model.ErrNotFound
	}
	return r.meta.FindByHash(ctx, sum)
}

func (r *Repository) FindByPath(ctx context.Context, path string) (*model.Image, error) {
	return r.meta.FindByPath(ctx, path)
}

func (r *Repository) FindByID(ctx context.Context, id string) (*model.Image, error) {
	return r.meta.FindByID(ctx, id)
}

func (r *Repository) List(ctx context.Context, offset, limit int) ([]*model.Image, int, error) {
	return r.meta.ListImages(ctx, offset, limit)
}

func (r *Repository) ListExpired(ctx context.Context, now time.Time) ([]*model.Image, error) {
	return r.meta.ListExpired(ctx, now)
}

func (r *Repository) IncrementView(ctx context.Context, id string) error {
	return r.meta.IncrementView(ctx, id)
}

// Create writes the payload exclusively and then the record. A payload whose
// record was rejected is removed again.
func (r *Repository) Create(ctx context.Context, img *model.Image, payload []byte) error {
	if err := r.files.Put(ctx, img.StoragePath, payload); err != nil {
		if errors.Is(err, storage.ErrExists) {
			return model.ErrPathConflict
		}
		return fmt.Errorf("%w: %w", model.ErrStorageWrite, err)
	}

	err := r.meta.InsertImage(ctx, img)
	if err == nil {
		return nil
	}
	if rmErr := r.files.Delete(ctx, img.StoragePath); rmErr != nil && !errors.Is(rmErr, storage.ErrNotExist) {
		slog.Error("Failed to remove orphaned payload", "path", img.StoragePath, "error", rmErr)
	}
	if errors.Is(err, model.ErrDuplicateHash) || errors.Is(err, model.ErrPathConflict) {
		return err
	}
	return fmt.Errorf("%w: %w", model.ErrStorageWrite, err)
}

// Delete removes the record first and the payload second. The payload is only
// touched once the record is gone, so a record never points at missing bytes
// because of a delete.
func (r *Repository) Delete(ctx context.Context, id string) (*DeleteResult, error) {
	img, err := r.meta.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	res := &DeleteResult{Image: img}

	switch err := r.meta.RemoveImage(ctx, id); {
	case err == nil:
		res.RecordRemoved = true
	case errors.Is(err, model.ErrNotFound):
		// 并发删除已经移除了记录
	default:
		return res, fmt.Errorf("removing record: %w", err)
	}

	switch err := r.files.Delete(ctx, img.StoragePath); {
	case err == nil:
		res.FileRemoved = true
	case errors.Is(err, storage.ErrNotExist):
		res.FileMissing = true
	default:
		res.FileErr = err
		slog.Error("Failed to delete payload", "image_id", id, "path", img.StoragePath, "error", err)
	}
	return res, nil
}

// Open streams the payload for a record. Missing bytes are reported as ErrNotFound.
func (r *Repository) Open(ctx context.Context, img *model.Image) (*storage.Object, error) {
	obj, err := r.files.Open(ctx, img.StoragePath)
	if errors.Is(err, storage.ErrNotExist) {
		return nil, model.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("opening payload: %w", err)
	}
	return obj, nil
}
