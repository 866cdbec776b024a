package cleanup

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/notes-bin/imghost/internal/model"
	"github.com/notes-bin/imghost/internal/testutil"
)

func seed(t *testing.T, s *testutil.Stores, n int, createdAt time.Time, temporary bool) *model.Image {
	t.Helper()
	img := &model.Image{
		ID:               fmt.Sprintf("id-%d", n),
		StoragePath:      fmt.Sprintf("20240115/%08x.png", n),
		OriginalFilename: fmt.Sprintf("f%d.png", n),
		ContentHash:      fmt.Sprintf("%064x", n),
		MimeType:         "image/png",
		CreatedAt:        createdAt,
	}
	if temporary {
		img.MarkTemporary()
	}
	require.NoError(t, s.Repo.Create(context.Background(), img, []byte("x")))
	return img
}

func TestSweeperRun(t *testing.T) {
	ctx := context.Background()
	clock := testutil.FixedClock()
	now := clock.Now()

	setup := func(t *testing.T) (*testutil.Stores, []*model.Image) {
		s := testutil.NewStores(t)
		return s, []*model.Image{
			seed(t, s, 1, now.Add(-25*time.Hour), true),  // 已过期
			seed(t, s, 2, now.Add(-23*time.Hour), true),  // 未过期
			seed(t, s, 3, now.Add(-48*time.Hour), false), // 永久
			seed(t, s, 4, now.Add(-30*time.Hour), true),  // 已过期
		}
	}

	t.Run("dry run keeps everything", func(t *testing.T) {
		s, _ := setup(t)
		report, err := NewSweeper(s.Repo, clock, nil).Run(ctx, true)
		require.NoError(t, err)
		assert.Len(t, report.Found, 2)
		assert.Zero(t, report.DeletedRecords)

		_, total, err := s.Repo.List(ctx, 0, 10)
		require.NoError(t, err)
		assert.Equal(t, 4, total)
	})

	t.Run("deletes expired only", func(t *testing.T) {
		s, images := setup(t)
		var forgotten []string
		sw := NewSweeper(s.Repo, clock, func(path string) { forgotten = append(forgotten, path) })

		report, err := sw.Run(ctx, false)
		require.NoError(t, err)
		assert.Len(t, report.Found, 2)
		assert.Equal(t, 2, report.DeletedRecords)
		assert.Equal(t, 2, report.DeletedFiles)
		assert.Empty(t, report.Errors)
		assert.ElementsMatch(t, []string{images[0].StoragePath, images[3].StoragePath}, forgotten)

		for _, img := range []*model.Image{images[0], images[3]} {
			_, err := s.Repo.FindByID(ctx, img.ID)
			assert.ErrorIs(t, err, model.ErrNotFound)
		}
		for _, img := range []*model.Image{images[1], images[2]} {
			_, err := s.Repo.FindByID(ctx, img.ID)
			assert.NoError(t, err)
		}
	})

	t.Run("missing payload still removes record", func(t *testing.T) {
		s, images := setup(t)
		p, err := s.Disk.FilePath(images[0].StoragePath)
		require.NoError(t, err)
		require.NoError(t, os.Remove(p))

		report, err := NewSweeper(s.Repo, clock, nil).Run(ctx, false)
		require.NoError(t, err)
		assert.Equal(t, 2, report.DeletedRecords)
		assert.Equal(t, 1, report.DeletedFiles)
		assert.Empty(t, report.Errors)
	})

	t.Run("later sweep catches newly expired", func(t *testing.T) {
		s, _ := setup(t)
		later := testutil.NewStubClock(now)
		sw := NewSweeper(s.Repo, later, nil)
		_, err := sw.Run(ctx, false)
		require.NoError(t, err)

		later.Advance(2 * time.Hour)
		report, err := sw.Run(ctx, false)
		require.NoError(t, err)
		assert.Equal(t, 1, report.DeletedRecords)
	})
}

func TestSweeperLoopStops(t *testing.T) {
	s := testutil.NewStores(t)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		NewSweeper(s.Repo, testutil.FixedClock(), nil).Loop(ctx, time.Millisecond, false)
		close(done)
	}()
	time.Sleep(5 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("loop did not stop")
	}
}
