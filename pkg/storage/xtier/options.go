package xtier

import (
	"log/slog"
	"os"
	"time"

	"github.com/jonboulle/clockwork"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/omeyang/xtier/pkg/lifecycle/xloop"
	"github.com/omeyang/xtier/pkg/util/xfile"
)

const (
	// DefaultNamespace 默认命名空间。
	DefaultNamespace = "default"

	// DefaultTTL 默认过期时间。
	DefaultTTL = 10 * time.Minute

	// DefaultDirPerm 默认命名空间目录权限。
	DefaultDirPerm os.FileMode = xfile.DefaultDirPerm

	// DefaultFilePerm 默认缓存文件权限。
	DefaultFilePerm os.FileMode = 0644

	// DefaultMaxOpenFiles 默认异步循环同时打开的文件数上限。
	DefaultMaxOpenFiles = xloop.DefaultMaxOpenFiles

	// DefaultPollTimeout 默认异步循环单轮等待超时。
	DefaultPollTimeout = xloop.DefaultTimeout

	defaultRetryDelay = 10 * time.Millisecond
)

// Option 定义 Store 可选配置。
type Option func(*options)

type options struct {
	namespace      string
	defaultTTL     time.Duration
	dirPerm        os.FileMode
	filePerm       os.FileMode
	clock          clockwork.Clock
	logger         *slog.Logger
	meterProvider  metric.MeterProvider
	tracerProvider trace.TracerProvider
	maxOpenFiles   int
	pollTimeout    time.Duration
	writeAttempts  int
	retryDelay     time.Duration
	strictKeys     bool
}

func defaultOptions() options {
	return options{
		namespace:      DefaultNamespace,
		defaultTTL:     DefaultTTL,
		dirPerm:        DefaultDirPerm,
		filePerm:       DefaultFilePerm,
		clock:          clockwork.NewRealClock(),
		logger:         slog.New(slog.DiscardHandler),
		meterProvider:  otel.GetMeterProvider(),
		tracerProvider: otel.GetTracerProvider(),
		maxOpenFiles:   DefaultMaxOpenFiles,
		pollTimeout:    DefaultPollTimeout,
		writeAttempts:  1,
		retryDelay:     defaultRetryDelay,
		strictKeys:     true,
	}
}

// WithNamespace 设置初始命名空间（默认 "default"）。
func WithNamespace(name string) Option {
	return func(o *options) {
		o.namespace = name
	}
}

// WithDefaultTTL 设置命名空间默认 TTL（默认 10 分钟）。负数在 New 中返回 [ErrInvalidTTL]。
func WithDefaultTTL(d time.Duration) Option {
	return func(o *options) {
		o.defaultTTL = d
	}
}

// WithDirPerm 设置命名空间目录权限（默认 0750）。
func WithDirPerm(perm os.FileMode) Option {
	return func(o *options) {
		o.dirPerm = perm
	}
}

// WithFilePerm 设置缓存文件权限（默认 0644）。
func WithFilePerm(perm os.FileMode) Option {
	return func(o *options) {
		if perm != 0 {
			o.filePerm = perm
		}
	}
}

// WithClock 设置时钟，测试中可传入 clockwork.NewFakeClock()。
func WithClock(c clockwork.Clock) Option {
	return func(o *options) {
		if c != nil {
			o.clock = c
		}
	}
}

// WithLogger 设置日志记录器（默认丢弃）。
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithMeterProvider 设置 MeterProvider（默认全局）。
func WithMeterProvider(p metric.MeterProvider) Option {
	return func(o *options) {
		if p != nil {
			o.meterProvider = p
		}
	}
}

// WithTracerProvider 设置 TracerProvider（默认全局）。
func WithTracerProvider(p trace.TracerProvider) Option {
	return func(o *options) {
		if p != nil {
			o.tracerProvider = p
		}
	}
}

// WithMaxOpenFiles 设置异步循环同时打开的文件数上限（默认 1000）。
func WithMaxOpenFiles(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.maxOpenFiles = n
		}
	}
}

// WithPollTimeout 设置 RunLoop 单轮等待超时（默认 30s）。
func WithPollTimeout(d time.Duration) Option {
	return func(o *options) {
		o.pollTimeout = d
	}
}

// WithWriteAttempts 设置同步写磁盘的总尝试次数（默认 1，不重试）。
// 只有瞬时错误（EINTR、EAGAIN、EBUSY）会重试。
func WithWriteAttempts(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.writeAttempts = n
		}
	}
}

// WithStrictKeys 设置是否校验 key 能作为单个文件名使用（默认开启）。
// 关闭后 key 原样拼接到命名空间目录，包含分隔符的 key 可能写到目录之外。
func WithStrictKeys(strict bool) Option {
	return func(o *options) {
		o.strictKeys = strict
	}
}

// NamespaceOption 定义 ChangeNamespace 的可选配置。
type NamespaceOption func(*namespaceOptions)

type namespaceOptions struct {
	ttl      time.Duration
	ttlSet   bool
	perm     os.FileMode
	permSet  bool
	resetMem bool
}

// WithNamespaceTTL 切换命名空间时同时设置新的默认 TTL。
func WithNamespaceTTL(d time.Duration) NamespaceOption {
	return func(o *namespaceOptions) {
		o.ttl = d
		o.ttlSet = true
	}
}

// WithNamespacePerm 设置新命名空间目录的创建权限。
func WithNamespacePerm(perm os.FileMode) NamespaceOption {
	return func(o *namespaceOptions) {
		o.perm = perm
		o.permSet = true
	}
}

// WithResetMemory 切换命名空间时清空内存层。
// 默认不清空，旧命名空间的内存条目在新命名空间下仍然可读。
func WithResetMemory() NamespaceOption {
	return func(o *namespaceOptions) {
		o.resetMem = true
	}
}
