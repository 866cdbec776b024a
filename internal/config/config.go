package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/BurntSushi/toml"
)

type Config struct {
	Port             string            `json:"port" toml:"port"`
	MediaRoot        string            `json:"media_root" toml:"media_root"`
	MaxUploadSize    int64             `json:"max_upload_size" toml:"max_upload_size"`
	MaxRequestSize   int64             `json:"max_request_size" toml:"max_request_size"`
	AllowedTypes     []string          `json:"allowed_types" toml:"allowed_types"`
	Compression      CompressionConfig `json:"compression" toml:"compression"`
	RequireAuth      bool              `json:"require_auth" toml:"require_auth"`
	AllowGuestUpload bool              `json:"allow_guest_upload" toml:"allow_guest_upload"`
	PublicDomain     string            `json:"public_domain" toml:"public_domain"`
	JWTSecret        string            `json:"jwt_secret" toml:"jwt_secret"`
	ShutdownTimeout  int               `json:"shutdown_timeout" toml:"shutdown_timeout"`
	RateLimit        RateLimitConfig   `json:"rate_limit" toml:"rate_limit"`
	Database         DatabaseConfig    `json:"database" toml:"database"`
	Redis            RedisConfig       `json:"redis" toml:"redis"`
	Storage          StorageConfig     `json:"storage" toml:"storage"`
	Cache            CacheConfig       `json:"cache" toml:"cache"`
	Log              LogConfig         `json:"log" toml:"log"`
}

type CompressionConfig struct {
	Enabled      bool  `json:"enabled" toml:"enabled"`
	Quality      int   `json:"quality" toml:"quality"`
	MaxDimension int   `json:"max_dimension" toml:"max_dimension"`
	MaxPixels    int64 `json:"max_pixels" toml:"max_pixels"` // 超过则拒绝解码
}

type RateLimitConfig struct {
	Requests int `json:"requests" toml:"requests"`
	Duration int `json:"duration" toml:"duration"` // 秒
}

// DatabaseConfig selects the metadata store. Path is only used by sqlite.
type DatabaseConfig struct {
	Driver string `json:"driver" toml:"driver"` // "redis" 或 "sqlite"
	Path   string `json:"path,omitempty" toml:"path,omitempty"`
}

type RedisConfig struct {
	Addr     string `json:"addr" toml:"addr"`
	Password string `json:"password" toml:"password"`
	DB       int    `json:"db" toml:"db"`
	PoolSize int    `json:"pool_size" toml:"pool_size"`
}

// StorageConfig selects where payload bytes live. S3 is only used by driver "s3".
type StorageConfig struct {
	Driver string   `json:"driver" toml:"driver"` // "disk" 或 "s3"
	S3     S3Config `json:"s3" toml:"s3"`
}

type S3Config struct {
	Bucket          string `json:"bucket" toml:"bucket"`
	Prefix          string `json:"prefix" toml:"prefix"`
	Region          string `json:"region" toml:"region"`
	Endpoint        string `json:"endpoint" toml:"endpoint"`
	AccessKeyID     string `json:"access_key_id" toml:"access_key_id"`
	SecretAccessKey string `json:"secret_access_key" toml:"secret_access_key"`
	UsePathStyle    bool   `json:"use_path_style" toml:"use_path_style"`
}

type CacheConfig struct {
	Size int `json:"size" toml:"size"` // 0 表示关闭
	TTL  int `json:"ttl" toml:"ttl"`   // 秒
}

type LogConfig struct {
	Level  string `json:"level" toml:"level"`
	Format string `json:"format" toml:"format"` // "json" 或 "text"
}

func Default() *Config {
	return &Config{
		Port:           "8000",
		MediaRoot:      "/data/images",
		MaxUploadSize:  10 * 1024 * 1024,
		MaxRequestSize: 100 * 1024 * 1024,
		AllowedTypes:   []string{"image/jpeg", "image/png", "image/gif", "image/webp"},
		Compression: CompressionConfig{
			Enabled:      true,
			Quality:      85,
			MaxDimension: 4096,
			MaxPixels:    178956970,
		},
		RequireAuth:     true,
		ShutdownTimeout: 5,
		RateLimit:       RateLimitConfig{Requests: 100, Duration: 1},
		Database:        DatabaseConfig{Driver: "redis", Path: "data/imghost.db"},
		Redis:           RedisConfig{Addr: "localhost:6379", PoolSize: 10},
		Storage:         StorageConfig{Driver: "disk"},
		Cache:           CacheConfig{Size: 1024, TTL: 60},
		Log:             LogConfig{Level: "info", Format: "json"},
	}
}

// Load reads path over the defaults, then applies IMGHOST_* environment overrides.
// A missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		f, err := os.Open(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("failed to open config file: %w", err)
		default:
			defer f.Close()
			if err := Decode(f, filepath.Ext(path), cfg); err != nil {
				return nil, fmt.Errorf("reading config from %s: %w", path, err)
			}
		}
	}
	if err := applyEnv(cfg); err != nil {
		return nil, err
	}
	cfg.AllowedTypes = normalizeTypes(cfg.AllowedTypes)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Decode fills cfg from r; ext ".toml" selects TOML, anything else JSON.
func Decode(r io.Reader, ext string, cfg *Config) error {
	if strings.EqualFold(ext, ".toml") {
		if _, err := toml.NewDecoder(r).Decode(cfg); err != nil {
			return fmt.Errorf("failed to decode config: %w", err)
		}
		return nil
	}
	if err := json.NewDecoder(r).Decode(cfg); err != nil {
		return fmt.Errorf("failed to decode config: %w", err)
	}
	return nil
}

func (c *Config) Validate() error {
	var errs []error
	if c.MaxUploadSize <= 0 {
		errs = append(errs, fmt.Errorf("max_upload_size must be positive"))
	}
	if c.MaxRequestSize < c.MaxUploadSize {
		errs = append(errs, fmt.Errorf("max_request_size must be at least max_upload_size"))
	}
	if len(c.AllowedTypes) == 0 {
		errs = append(errs, fmt.Errorf("allowed_types must not be empty"))
	}
	if c.Compression.Quality < 0 || c.Compression.Quality > 100 {
		errs = append(errs, fmt.Errorf("compression.quality must be within 0-100, got %d", c.Compression.Quality))
	}
	if c.Compression.MaxDimension <= 0 {
		errs = append(errs, fmt.Errorf("compression.max_dimension must be positive"))
	}
	if c.Compression.MaxPixels <= 0 {
		errs = append(errs, fmt.Errorf("compression.max_pixels must be positive"))
	}
	if c.RateLimit.Requests <= 0 || c.RateLimit.Duration <= 0 {
		errs = append(errs, fmt.Errorf("rate_limit.requests and rate_limit.duration must be positive"))
	}
	switch c.Database.Driver {
	case "redis":
	case "sqlite":
		if c.Database.Path == "" {
			errs = append(errs, fmt.Errorf("database.path is required for sqlite"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown database driver: %q", c.Database.Driver))
	}
	switch c.Storage.Driver {
	case "disk":
		if c.MediaRoot == "" {
			errs = append(errs, fmt.Errorf("media_root is required for disk storage"))
		}
	case "s3":
		if c.Storage.S3.Bucket == "" {
			errs = append(errs, fmt.Errorf("storage.s3.bucket is required for s3 storage"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown storage driver: %q", c.Storage.Driver))
	}
	if _, err := ParseLogLevel(c.Log.Level); err != nil {
		errs = append(errs, err)
	}
	if c.Log.Format != "json" && c.Log.Format != "text" {
		errs = append(errs, fmt.Errorf("log.format must be json or text, got %q", c.Log.Format))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

// normalizeTypes lowercases and trims content types, dropping empty entries.
func normalizeTypes(types []string) []string {
	var out []string
	for _, t := range types {
		if t = strings.ToLower(strings.TrimSpace(t)); t != "" {
			out = append(out, t)
		}
	}
	return out
}

// AllowsType reports whether a declared content type is on the allow-list.
func (c *Config) AllowsType(mimeType string) bool {
	return slices.Contains(c.AllowedTypes, strings.ToLower(strings.TrimSpace(mimeType)))
}
