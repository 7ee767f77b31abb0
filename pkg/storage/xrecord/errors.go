package xrecord

import "errors"

var (
	// ErrEncode 表示记录无法编码（时间戳不是有限数）。
	ErrEncode = errors.New("xrecord: cannot encode record")

	// ErrMalformedRecord 表示记录头部无法解析为时间戳。
	ErrMalformedRecord = errors.New("xrecord: malformed record")
)
