package app

import (
	"context"
	"image/color"
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/notes-bin/imghost/internal/auth"
	"github.com/notes-bin/imghost/internal/config"
	"github.com/notes-bin/imghost/internal/ingest"
	"github.com/notes-bin/imghost/internal/model"
	"github.com/notes-bin/imghost/internal/testutil"
)

func TestOpenBackend(t *testing.T) {
	t.Run("sqlite", func(t *testing.T) {
		cfg := config.Default()
		cfg.Database.Driver = "sqlite"
		cfg.Database.Path = filepath.Join(t.TempDir(), "x.db")
		b, err := OpenBackend(cfg)
		require.NoError(t, err)
		assert.NoError(t, b.Close())
	})

	t.Run("redis", func(t *testing.T) {
		mr := miniredis.RunT(t)
		cfg := config.Default()
		cfg.Redis.Addr = mr.Addr()
		b, err := OpenBackend(cfg)
		require.NoError(t, err)
		assert.NoError(t, b.Close())
	})

	t.Run("unknown", func(t *testing.T) {
		cfg := config.Default()
		cfg.Database.Driver = "mongo"
		_, err := OpenBackend(cfg)
		assert.Error(t, err)
	})
}

func TestNewEndToEnd(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	cfg := config.Default()
	cfg.Redis.Addr = mr.Addr()
	cfg.MediaRoot = t.TempDir()

	a, err := New(ctx, cfg)
	require.NoError(t, err)
	defer a.Close()

	tok, err := a.Registry.Issue(ctx, "e2e")
	require.NoError(t, err)
	d, err := a.Gate.ForUpload(ctx, auth.Credentials{Token: tok.Token})
	require.NoError(t, err)

	b := a.Ingest.Ingest(ctx, []ingest.File{{Name: "x.png", MimeType: "image/png", Data: testutil.PNG(t, 8, 8, color.White)}},
		ingest.Uploader{Decision: d, BaseURL: "http://h"})
	require.True(t, b.OK(), "%v", b.Errors)

	page, err := a.Gateway.List(ctx, 1, 10)
	require.NoError(t, err)
	require.Len(t, page.Images, 1)
	img := page.Images[0]

	_, obj, err := a.Gateway.Serve(ctx, img.StoragePath)
	require.NoError(t, err)
	obj.Body.Close()

	res, err := a.Delete(ctx, img.ID)
	require.NoError(t, err)
	assert.True(t, res.Complete())

	_, _, err = a.Gateway.Serve(ctx, img.StoragePath)
	assert.ErrorIs(t, err, model.ErrNotFound)
}
