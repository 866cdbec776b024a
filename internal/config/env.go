package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

const envPrefix = "IMGHOST_"

func applyEnv(cfg *Config) error {
	strs := map[string]*string{
		"PORT":             &cfg.Port,
		"MEDIA_ROOT":       &cfg.MediaRoot,
		"PUBLIC_DOMAIN":    &cfg.PublicDomain,
		"JWT_SECRET":       &cfg.JWTSecret,
		"DB_DRIVER":        &cfg.Database.Driver,
		"SQLITE_PATH":      &cfg.Database.Path,
		"REDIS_ADDR":       &cfg.Redis.Addr,
		"REDIS_PASSWORD":   &cfg.Redis.Password,
		"STORAGE_DRIVER":   &cfg.Storage.Driver,
		"S3_BUCKET":        &cfg.Storage.S3.Bucket,
		"S3_PREFIX":        &cfg.Storage.S3.Prefix,
		"S3_REGION":        &cfg.Storage.S3.Region,
		"S3_ENDPOINT":      &cfg.Storage.S3.Endpoint,
		"S3_ACCESS_KEY_ID": &cfg.Storage.S3.AccessKeyID,
		"S3_SECRET_KEY":    &cfg.Storage.S3.SecretAccessKey,
		"LOG_LEVEL":        &cfg.Log.Level,
		"LOG_FORMAT":       &cfg.Log.Format,
	}
	for key, dst := range strs {
		if val, ok := lookup(key); ok {
			*dst = val
		}
	}

	ints := map[string]*int{
		"COMPRESSION_QUALITY": &cfg.Compression.Quality,
		"MAX_IMAGE_DIMENSION": &cfg.Compression.MaxDimension,
		"REDIS_DB":            &cfg.Redis.DB,
	}
	for key, dst := range ints {
		if err := overrideInt(key, dst); err != nil {
			return err
		}
	}

	int64s := map[string]*int64{
		"MAX_UPLOAD_SIZE":  &cfg.MaxUploadSize,
		"MAX_REQUEST_SIZE": &cfg.MaxRequestSize,
		"MAX_IMAGE_PIXELS": &cfg.Compression.MaxPixels,
	}
	for key, dst := range int64s {
		if val, ok := lookup(key); ok {
			n, err := strconv.ParseInt(val, 10, 64)
			if err != nil {
				return fmt.Errorf("%s%s: invalid integer %q", envPrefix, key, val)
			}
			*dst = n
		}
	}

	bools := map[string]*bool{
		"COMPRESSION_ENABLED": &cfg.Compression.Enabled,
		"REQUIRE_AUTH":        &cfg.RequireAuth,
		"ALLOW_GUEST_UPLOAD":  &cfg.AllowGuestUpload,
	}
	for key, dst := range bools {
		if err := overrideBool(key, dst); err != nil {
			return err
		}
	}

	if val, ok := lookup("ALLOWED_TYPES"); ok {
		cfg.AllowedTypes = normalizeTypes(strings.Split(val, ","))
	}
	return nil
}

func lookup(key string) (string, bool) {
	val, ok := os.LookupEnv(envPrefix + key)
	if !ok || val == "" {
		return "", false
	}
	return val, true
}

func overrideInt(key string, dst *int) error {
	val, ok := lookup(key)
	if !ok {
		return nil
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return fmt.Errorf("%s%s: invalid integer %q", envPrefix, key, val)
	}
	*dst = n
	return nil
}

func overrideBool(key string, dst *bool) error {
	val, ok := lookup(key)
	if !ok {
		return nil
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return fmt.Errorf("%s%s: invalid boolean %q (use true, false, 1, 0)", envPrefix, key, val)
	}
	*dst = b
	return nil
}
