// Package testutil holds fixtures shared by package tests.
package testutil

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/notes-bin/imghost/internal/repository"
	"github.com/notes-bin/imghost/internal/sqlite"
	"github.com/notes-bin/imghost/internal/storage"
)

// StubClock returns a fixed time. Safe for concurrent use.
type StubClock struct {
	mu  sync.Mutex
	now time.Time
}

func NewStubClock(t time.Time) *StubClock {
	return &StubClock{now: t}
}

// FixedClock returns a StubClock set to 2024-01-15 10:30:00 UTC.
func FixedClock() *StubClock {
	return NewStubClock(time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC))
}

func (c *StubClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *StubClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// Stores is a repository over a temporary SQLite file and media directory.
type Stores struct {
	Repo  *repository.Repository
	Meta  *sqlite.Store
	Disk  *storage.Disk
	Media string
}

func NewStores(t *testing.T) *Stores {
	t.Helper()
	dir := t.TempDir()
	meta, err := sqlite.Open(filepath.Join(dir, "imghost.db"))
	require.NoError(t, err)
	t.Cleanup(func() { meta.Close() })

	media := filepath.Join(dir, "media")
	disk, err := storage.NewDisk(media)
	require.NoError(t, err)
	return &Stores{Repo: repository.New(meta, disk), Meta: meta, Disk: disk, Media: media}
}

// UndeletableFiles is a payload store whose Delete always fails with Err.
type UndeletableFiles struct {
	storage.Store
	Err error
}

func (f UndeletableFiles) Delete(context.Context, string) error {
	return f.Err
}

// PNG encodes a w×h image filled with c.
func PNG(t *testing.T, w, h int, c color.Color) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, fill(w, h, c)))
	return buf.Bytes()
}

func JPEG(t *testing.T, w, h int, c color.Color) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, fill(w, h, c), &jpeg.Options{Quality: 90}))
	return buf.Bytes()
}

func fill(w, h int, c color.Color) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	return img
}
