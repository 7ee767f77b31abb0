package xtier

import "errors"

var (
	// ErrNotFound 表示 key 不存在、已过期或磁盘记录损坏。
	// 三种情况对缓存使用方没有区别，统一返回该错误。
	ErrNotFound = errors.New("xtier: key not found")

	// ErrInvalidTTL 表示 TTL 为负数。
	ErrInvalidTTL = errors.New("xtier: ttl must not be negative")

	// ErrDirectoryConflict 表示命名空间路径已被非目录文件占用。
	// 返回的错误同时满足 errors.Is(err, xfile.ErrNotDirectory)。
	ErrDirectoryConflict = errors.New("xtier: namespace path is occupied by a non-directory")

	// ErrIO 表示磁盘读写失败（权限不足、磁盘已满等）。
	ErrIO = errors.New("xtier: disk i/o failed")

	// ErrEmptyKey 表示 key 为空。
	ErrEmptyKey = errors.New("xtier: key is required")

	// ErrInvalidKey 表示 key 不能作为文件名使用。
	ErrInvalidKey = errors.New("xtier: invalid key")

	// ErrEmptyRoot 表示缓存根目录为空。
	ErrEmptyRoot = errors.New("xtier: cache root is required")

	// ErrClosed 表示 Store 已关闭。
	ErrClosed = errors.New("xtier: store closed")

	// ErrPending 表示异步读取尚未完成。
	ErrPending = errors.New("xtier: read still pending")

	// ErrNilFunc 表示记忆化的函数为 nil。
	ErrNilFunc = errors.New("xtier: nil function")

	// ErrInvalidConfig 表示配置无效。
	ErrInvalidConfig = errors.New("xtier: invalid config")

	// ErrRunning 表示 Janitor 已在运行。
	ErrRunning = errors.New("xtier: janitor already running")
)
