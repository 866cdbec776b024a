package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.json"))
	require.NoError(t, err)

	assert.Equal(t, int64(10*1024*1024), cfg.MaxUploadSize)
	assert.Equal(t, []string{"image/jpeg", "image/png", "image/gif", "image/webp"}, cfg.AllowedTypes)
	assert.True(t, cfg.Compression.Enabled)
	assert.Equal(t, 85, cfg.Compression.Quality)
	assert.Equal(t, 4096, cfg.Compression.MaxDimension)
	assert.Equal(t, int64(178956970), cfg.Compression.MaxPixels)
	assert.True(t, cfg.RequireAuth)
	assert.False(t, cfg.AllowGuestUpload)
	assert.Equal(t, "/data/images", cfg.MediaRoot)
}

func TestLoad_JSON(t *testing.T) {
	path := writeFile(t, "config.json", `{
		"port": "9000",
		"max_upload_size": 2048,
		"compression": {"enabled": false, "quality": 70, "max_dimension": 1024},
		"require_auth": false,
		"allow_guest_upload": true,
		"database": {"driver": "sqlite", "path": "/tmp/x.db"}
	}`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "9000", cfg.Port)
	assert.Equal(t, int64(2048), cfg.MaxUploadSize)
	assert.False(t, cfg.Compression.Enabled)
	assert.Equal(t, 70, cfg.Compression.Quality)
	assert.Equal(t, 1024, cfg.Compression.MaxDimension)
	assert.False(t, cfg.RequireAuth)
	assert.True(t, cfg.AllowGuestUpload)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	// 未出现的字段保留默认值
	assert.Equal(t, "disk", cfg.Storage.Driver)
}

func TestLoad_TOML(t *testing.T) {
	path := writeFile(t, "config.toml", `
public_domain = "https://img.example.com"
allowed_types = ["image/png"]

[storage]
driver = "s3"

[storage.s3]
bucket = "images"
region = "eu-west-1"
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "https://img.example.com", cfg.PublicDomain)
	assert.Equal(t, []string{"image/png"}, cfg.AllowedTypes)
	assert.Equal(t, "s3", cfg.Storage.Driver)
	assert.Equal(t, "images", cfg.Storage.S3.Bucket)
}

func TestLoad_NormalizesAllowedTypes(t *testing.T) {
	path := writeFile(t, "config.json", `{"allowed_types": ["image/PNG", " IMAGE/JPEG ", ""]}`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"image/png", "image/jpeg"}, cfg.AllowedTypes)
	assert.True(t, cfg.AllowsType("image/jpeg"))
	assert.True(t, cfg.AllowsType("image/png"))
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("IMGHOST_MAX_UPLOAD_SIZE", "4096")
	t.Setenv("IMGHOST_ALLOWED_TYPES", "image/png, IMAGE/JPEG")
	t.Setenv("IMGHOST_COMPRESSION_ENABLED", "false")
	t.Setenv("IMGHOST_COMPRESSION_QUALITY", "60")
	t.Setenv("IMGHOST_REQUIRE_AUTH", "0")
	t.Setenv("IMGHOST_ALLOW_GUEST_UPLOAD", "true")
	t.Setenv("IMGHOST_MEDIA_ROOT", "/srv/media")
	t.Setenv("IMGHOST_MAX_IMAGE_PIXELS", "1000000")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, int64(4096), cfg.MaxUploadSize)
	assert.Equal(t, []string{"image/png", "image/jpeg"}, cfg.AllowedTypes)
	assert.False(t, cfg.Compression.Enabled)
	assert.Equal(t, 60, cfg.Compression.Quality)
	assert.False(t, cfg.RequireAuth)
	assert.True(t, cfg.AllowGuestUpload)
	assert.Equal(t, "/srv/media", cfg.MediaRoot)
	assert.Equal(t, int64(1000000), cfg.Compression.MaxPixels)
}

func TestLoad_InvalidEnv(t *testing.T) {
	t.Setenv("IMGHOST_REQUIRE_AUTH", "maybe")
	_, err := Load("")
	assert.ErrorContains(t, err, "IMGHOST_REQUIRE_AUTH")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"quality too high", func(c *Config) { c.Compression.Quality = 101 }, "compression.quality"},
		{"zero dimension", func(c *Config) { c.Compression.MaxDimension = 0 }, "max_dimension"},
		{"zero pixel bound", func(c *Config) { c.Compression.MaxPixels = 0 }, "max_pixels"},
		{"unknown database", func(c *Config) { c.Database.Driver = "mongo" }, "unknown database driver"},
		{"s3 without bucket", func(c *Config) { c.Storage.Driver = "s3" }, "bucket"},
		{"empty types", func(c *Config) { c.AllowedTypes = nil }, "allowed_types"},
		{"bad log level", func(c *Config) { c.Log.Level = "loud" }, "log level"},
		{"zero rate window", func(c *Config) { c.RateLimit.Duration = 0 }, "rate_limit"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.ErrorContains(t, cfg.Validate(), tt.want)
		})
	}

	assert.NoError(t, Default().Validate())
}

func TestAllowsType(t *testing.T) {
	cfg := Default()
	assert.True(t, cfg.AllowsType("image/png"))
	assert.True(t, cfg.AllowsType(" Image/JPEG "))
	assert.False(t, cfg.AllowsType("application/pdf"))
}
