// Package cleanup removes guest uploads whose retention has lapsed.
package cleanup

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/notes-bin/imghost/internal/model"
	"github.com/notes-bin/imghost/internal/repository"
)

var expiredDeletedTotal = promauto.NewCounter(prometheus.CounterOpts{
	Name: "imghost_expired_deleted_total",
	Help: "Expired guest images removed by the sweeper.",
})

type Report struct {
	Found          []*model.Image
	DeletedFiles   int
	DeletedRecords int
	Errors         []string
}

type Sweeper struct {
	repo   *repository.Repository
	clock  model.Clock
	forget func(path string)
}

// NewSweeper takes an optional forget hook that is called with the storage
// path of every removed record.
func NewSweeper(repo *repository.Repository, clock model.Clock, forget func(path string)) *Sweeper {
	return &Sweeper{repo: repo, clock: clock, forget: forget}
}

// Run deletes every expired temporary image. With dryRun it only reports them.
func (s *Sweeper) Run(ctx context.Context, dryRun bool) (*Report, error) {
	expired, err := s.repo.ListExpired(ctx, s.clock.Now())
	if err != nil {
		return nil, fmt.Errorf("listing expired images: %w", err)
	}
	report := &Report{Found: expired}
	if dryRun || len(expired) == 0 {
		return report, nil
	}

	for _, img := range expired {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		res, err := s.repo.Delete(ctx, img.ID)
		if err != nil {
			msg := fmt.Sprintf("Error deleting %s: %v", img.OriginalFilename, err)
			report.Errors = append(report.Errors, msg)
			slog.Error("Failed to delete expired image", "image_id", img.ID, "error", err)
			continue
		}
		if res.RecordRemoved {
			report.DeletedRecords++
			expiredDeletedTotal.Inc()
		}
		if res.FileRemoved {
			report.DeletedFiles++
		}
		if res.FileErr != nil {
			report.Errors = append(report.Errors, fmt.Sprintf("Error deleting file of %s: %v", img.OriginalFilename, res.FileErr))
		}
		if s.forget != nil {
			s.forget(img.StoragePath)
		}
	}
	slog.Info("Cleanup completed",
		"found", len(expired),
		"deleted_files", report.DeletedFiles,
		"deleted_records", report.DeletedRecords,
		"errors", len(report.Errors))
	return report, nil
}

// Loop runs a sweep every interval until ctx is cancelled.
func (s *Sweeper) Loop(ctx context.Context, every time.Duration, dryRun bool) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.Run(ctx, dryRun); err != nil {
				slog.Error("Failed to sweep expired images", "error", err)
			}
		}
	}
}
