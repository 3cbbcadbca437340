package models

import "errors"

var (
	// ErrRunNotFound 处理记录不存在错误
	ErrRunNotFound = errors.New("ingest run not found")

	// ErrInvalidRunStatus 无效的处理状态错误
	ErrInvalidRunStatus = errors.New("invalid run status")
)
