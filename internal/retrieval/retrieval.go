// Package retrieval serves stored payloads by capability path and pages
// through the catalogue.
package retrieval

import (
	"context"
	"errors"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/notes-bin/imghost/internal/cache"
	"github.com/notes-bin/imghost/internal/model"
	"github.com/notes-bin/imghost/internal/repository"
	"github.com/notes-bin/imghost/internal/storage"
)

const (
	DefaultPerPage = 20
	MaxPerPage     = 100
	GalleryPerPage = 24
)

var servesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "imghost_serves_total",
	Help: "Payload serve attempts by outcome.",
}, []string{"result"})

type Gateway struct {
	repo    *repository.Repository
	records *cache.Records
}

func New(repo *repository.Repository, records *cache.Records) *Gateway {
	return &Gateway{repo: repo, records: records}
}

// Serve resolves an exact storage path to its record and payload and counts
// the view. Both the record and the bytes must exist.
func (g *Gateway) Serve(ctx context.Context, path string) (*model.Image, *storage.Object, error) {
	if storage.CheckKey(path) != nil {
		servesTotal.WithLabelValues("not_found").Inc()
		return nil, nil, model.ErrNotFound
	}

	img, ok := g.records.Get(path)
	if !ok {
		var err error
		img, err = g.repo.FindByPath(ctx, path)
		if err != nil {
			servesTotal.WithLabelValues(result(err)).Inc()
			return nil, nil, err
		}
		g.records.Set(img)
	}

	obj, err := g.repo.Open(ctx, img)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			g.records.Remove(path)
		}
		servesTotal.WithLabelValues(result(err)).Inc()
		return nil, nil, err
	}

	if err := g.repo.IncrementView(ctx, img.ID); err != nil {
		if errors.Is(err, model.ErrNotFound) {
			// 记录在打开文件之后被删除，缓存作废
			g.records.Remove(path)
		}
		slog.Warn("Failed to increment view count", "image_id", img.ID, "error", err)
	}
	servesTotal.WithLabelValues("ok").Inc()
	return img, obj, nil
}

// Forget drops a cached record, used after deletes.
func (g *Gateway) Forget(path string) {
	g.records.Remove(path)
}

func result(err error) string {
	if errors.Is(err, model.ErrNotFound) {
		return "not_found"
	}
	return "error"
}
