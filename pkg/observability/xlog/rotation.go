package xlog

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"
)

const (
	// DefaultMaxSizeMB 单个日志文件的默认大小上限（MB）。
	DefaultMaxSizeMB = 100
	// DefaultMaxBackups 默认保留的备份文件数。
	DefaultMaxBackups = 7
	// DefaultMaxAgeDays 默认备份保留天数。
	DefaultMaxAgeDays = 30

	maxSizeMB  = 10 << 10 // 10GB
	maxBackups = 1024
	maxAgeDays = 3650
)

// RotationOption 定义文件轮转选项。
type RotationOption func(*rotationConfig)

type rotationConfig struct {
	maxSizeMB  int
	maxBackups int
	maxAgeDays int
	compress   bool
	localTime  bool
}

// WithMaxSize 设置单个文件大小上限（MB），范围 1~10240。
func WithMaxSize(mb int) RotationOption {
	return func(c *rotationConfig) { c.maxSizeMB = mb }
}

// WithMaxBackups 设置保留的备份文件数，0 表示不限制。
func WithMaxBackups(n int) RotationOption {
	return func(c *rotationConfig) { c.maxBackups = n }
}

// WithMaxAge 设置备份保留天数，0 表示不按时间清理。
func WithMaxAge(days int) RotationOption {
	return func(c *rotationConfig) { c.maxAgeDays = days }
}

// WithCompress 设置是否 gzip 压缩备份文件。
func WithCompress(compress bool) RotationOption {
	return func(c *rotationConfig) { c.compress = compress }
}

// WithLocalTime 设置备份文件名是否使用本地时间（默认 UTC）。
func WithLocalTime(local bool) RotationOption {
	return func(c *rotationConfig) { c.localTime = local }
}

func newRotator(filename string, opts ...RotationOption) (*lumberjack.Logger, error) {
	if strings.TrimSpace(filename) == "" {
		return nil, ErrEmptyFilename
	}
	if strings.ContainsRune(filename, 0) {
		return nil, fmt.Errorf("%w: filename contains null byte", ErrInvalidRotation)
	}

	cfg := rotationConfig{
		maxSizeMB:  DefaultMaxSizeMB,
		maxBackups: DefaultMaxBackups,
		maxAgeDays: DefaultMaxAgeDays,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}

	switch {
	case cfg.maxSizeMB <= 0 || cfg.maxSizeMB > maxSizeMB:
		return nil, fmt.Errorf("%w: max size %d, want 1~%d", ErrInvalidRotation, cfg.maxSizeMB, maxSizeMB)
	case cfg.maxBackups < 0 || cfg.maxBackups > maxBackups:
		return nil, fmt.Errorf("%w: max backups %d, want 0~%d", ErrInvalidRotation, cfg.maxBackups, maxBackups)
	case cfg.maxAgeDays < 0 || cfg.maxAgeDays > maxAgeDays:
		return nil, fmt.Errorf("%w: max age %d, want 0~%d", ErrInvalidRotation, cfg.maxAgeDays, maxAgeDays)
	}

	path := filepath.Clean(filename)
	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return nil, fmt.Errorf("xlog: create log directory: %w", err)
	}

	return &lumberjack.Logger{
		Filename:   path,
		MaxSize:    cfg.maxSizeMB,
		MaxBackups: cfg.maxBackups,
		MaxAge:     cfg.maxAgeDays,
		Compress:   cfg.compress,
		LocalTime:  cfg.localTime,
	}, nil
}
