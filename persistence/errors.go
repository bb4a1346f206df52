package persistence

import "errors"

// 错误定义
var (
	ErrRecordNotFound = errors.New("record not found")
)
