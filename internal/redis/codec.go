package redis

import (
	"fmt"
	"strconv"
	"time"

	"github.com/notes-bin/imghost/internal/model"
)

func imageFields(img *model.Image) []any {
	expires := ""
	if img.ExpiresAt != nil {
		expires = strconv.FormatInt(img.ExpiresAt.UnixNano(), 10)
	}
	return []any{
		"id", img.ID,
		"storage_path", img.StoragePath,
		"original_filename", img.OriginalFilename,
		"file_size", img.FileSize,
		"content_hash", img.ContentHash,
		"width", img.Width,
		"height", img.Height,
		"mime_type", img.MimeType,
		"uploader_ip", img.UploaderIP,
		"owner_user", img.OwnerUser,
		"created_at", img.CreatedAt.UnixNano(),
		"view_count", img.ViewCount,
		"is_temporary", boolString(img.IsTemporary),
		"expires_at", expires,
	}
}

func decodeImage(m map[string]string) (*model.Image, error) {
	img := &model.Image{
		ID:               m["id"],
		StoragePath:      m["storage_path"],
		OriginalFilename: m["original_filename"],
		ContentHash:      m["content_hash"],
		MimeType:         m["mime_type"],
		UploaderIP:       m["uploader_ip"],
		OwnerUser:        m["owner_user"],
		IsTemporary:      m["is_temporary"] == "1",
	}
	var err error
	if img.FileSize, err = parseInt(m, "file_size"); err != nil {
		return nil, err
	}
	if img.ViewCount, err = parseInt(m, "view_count"); err != nil {
		return nil, err
	}
	w, err := parseInt(m, "width")
	if err != nil {
		return nil, err
	}
	h, err := parseInt(m, "height")
	if err != nil {
		return nil, err
	}
	img.Width, img.Height = int(w), int(h)

	if img.CreatedAt, err = parseTime(m, "created_at"); err != nil {
		return nil, err
	}
	if m["expires_at"] != "" {
		expires, err := parseTime(m, "expires_at")
		if err != nil {
			return nil, err
		}
		img.ExpiresAt = &expires
	}
	return img, nil
}

func encodeToken(tok *model.AccessToken) []any {
	lastUsed := ""
	if tok.LastUsedAt != nil {
		lastUsed = strconv.FormatInt(tok.LastUsedAt.UnixNano(), 10)
	}
	return []any{
		"name", tok.Name,
		"is_active", boolString(tok.IsActive),
		"usage_count", tok.UsageCount,
		"last_used_at", lastUsed,
		"created_at", tok.CreatedAt.UnixNano(),
	}
}

func decodeToken(m map[string]string) (*model.AccessToken, error) {
	tok := &model.AccessToken{
		Token:    m["token"],
		Name:     m["name"],
		IsActive: m["is_active"] == "1",
	}
	var err error
	if tok.UsageCount, err = parseInt(m, "usage_count"); err != nil {
		return nil, err
	}
	if tok.CreatedAt, err = parseTime(m, "created_at"); err != nil {
		return nil, err
	}
	if m["last_used_at"] != "" {
		last, err := parseTime(m, "last_used_at")
		if err != nil {
			return nil, err
		}
		tok.LastUsedAt = &last
	}
	return tok, nil
}

func parseInt(m map[string]string, field string) (int64, error) {
	v, ok := m[field]
	if !ok || v == "" {
		return 0, nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("field %s: %w", field, err)
	}
	return n, nil
}

func parseTime(m map[string]string, field string) (time.Time, error) {
	n, err := parseInt(m, field)
	if err != nil {
		return time.Time{}, err
	}
	return time.Unix(0, n).UTC(), nil
}

func boolString(b bool) string {
	if b {
		return "1"
	}
	return "0"
}
