package model

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// ServePrefix is the URL path under which payloads are served.
const ServePrefix = "/i/"

// GuestTTL 游客上传的保留时长
const GuestTTL = 24 * time.Hour

type Image struct {
	ID               string     `json:"id"`                   // 记录 ID
	StoragePath      string     `json:"storage_path"`         // 相对媒体根目录的路径
	OriginalFilename string     `json:"original_filename"`    // 用户提交的文件名
	FileSize         int64      `json:"file_size"`            // 存储后的字节数
	ContentHash      string     `json:"content_hash"`         // 原始内容 SHA-256
	Width            int        `json:"width"`                // 宽
	Height           int        `json:"height"`               // 高
	MimeType         string     `json:"mime_type"`            // 存储内容的类型
	UploaderIP       string     `json:"uploader_ip"`          // 上传者 IP
	OwnerUser        string     `json:"owner_user,omitempty"` // 上传用户 ID，游客为空
	CreatedAt        time.Time  `json:"created_at"`           // 上传时间
	ViewCount        int64      `json:"view_count"`           // 访问次数
	IsTemporary      bool       `json:"is_temporary"`         // 游客临时图片
	ExpiresAt        *time.Time `json:"expires_at,omitempty"` // 过期时间
}

// MarkTemporary turns a fresh record into a guest upload expiring GuestTTL after creation.
func (img *Image) MarkTemporary() {
	expires := img.CreatedAt.Add(GuestTTL)
	img.IsTemporary = true
	img.ExpiresAt = &expires
}

func (img *Image) Expired(now time.Time) bool {
	return img.IsTemporary && img.ExpiresAt != nil && img.ExpiresAt.Before(now)
}

// SizeKB 保留两位小数
func (img *Image) SizeKB() float64 {
	return math.Round(float64(img.FileSize)/1024*100) / 100
}

func (img *Image) Dimensions() string {
	return fmt.Sprintf("%dx%d", img.Width, img.Height)
}

// URL is the public capability URL for the payload under base ("https://img.example.com").
func (img *Image) URL(base string) string {
	return strings.TrimRight(base, "/") + ServePrefix + img.StoragePath
}
