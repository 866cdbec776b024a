package model

import "time"

// User is the identity carried by a session token. Accounts themselves live
// outside this service.
type User struct {
	ID        string    `json:"id"`         // 用户 ID
	Username  string    `json:"username"`   // 用户名
	IsAdmin   bool      `json:"is_admin"`   // 是否管理员
	CreatedAt time.Time `json:"created_at"` // 创建时间
}
