package model

import "time"

type AccessToken struct {
	Token      string     `json:"token"`                  // API 密钥
	Name       string     `json:"name"`                   // 名称
	IsActive   bool       `json:"is_active"`              // 是否启用
	UsageCount int64      `json:"usage_count"`            // 使用次数
	LastUsedAt *time.Time `json:"last_used_at,omitempty"` // 最近使用时间
	CreatedAt  time.Time  `json:"created_at"`             // 创建时间
}

// Preview hides most of the secret for listings and logs.
func (t *AccessToken) Preview() string {
	if len(t.Token) <= 16 {
		return t.Token
	}
	return t.Token[:16] + "..."
}
