package xloop

import (
	"log/slog"
	"time"
)

const (
	// DefaultMaxOpenFiles 默认同时打开的文件数上限。
	DefaultMaxOpenFiles = 1000

	// DefaultTimeout 默认单轮就绪等待超时。
	DefaultTimeout = 30 * time.Second
)

// Option 定义 Loop 可选配置。
type Option func(*options)

type options struct {
	maxOpenFiles int
	logger       *slog.Logger
}

func defaultOptions() options {
	return options{
		maxOpenFiles: DefaultMaxOpenFiles,
		logger:       slog.New(slog.DiscardHandler),
	}
}

// WithMaxOpenFiles 设置同时打开的文件数上限。n <= 0 时忽略。
func WithMaxOpenFiles(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.maxOpenFiles = n
		}
	}
}

// WithLogger 设置日志记录器。nil 时忽略。
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// RunOption 定义 Run 的可选配置。
type RunOption func(*runOptions)

type runOptions struct {
	timeout time.Duration
	count   int
}

// WithTimeout 设置单轮就绪等待超时（默认 30s）。d < 0 表示无限等待。
func WithTimeout(d time.Duration) RunOption {
	return func(o *runOptions) {
		o.timeout = d
	}
}

// WithCount 限制迭代轮数。n <= 0 表示不限制，直到没有任务为止。
func WithCount(n int) RunOption {
	return func(o *runOptions) {
		o.count = n
	}
}
