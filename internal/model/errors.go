package model

import "errors"

var (
	ErrInvalidFileType   = errors.New("invalid file type")
	ErrFileTooLarge      = errors.New("file too large")
	ErrImageProcessing   = errors.New("image processing failed")
	ErrUnsupportedFormat = errors.New("unsupported image format")
	ErrAuthRequired      = errors.New("authentication required")
	ErrInvalidToken      = errors.New("invalid token")
	ErrForbidden         = errors.New("forbidden")
	ErrNotFound          = errors.New("not found")
	ErrStorageWrite      = errors.New("storage write failed")

	// ErrDuplicateHash 唯一约束拒绝了重复摘要，仅内部使用
	ErrDuplicateHash = errors.New("duplicate content hash")
	// ErrPathConflict 存储路径已被占用
	ErrPathConflict = errors.New("storage path conflict")
	// ErrTokenExists 令牌值已存在
	ErrTokenExists = errors.New("token already exists")
)
