package xtier

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
)

// DefaultJanitorSchedule 默认清理周期。
const DefaultJanitorSchedule = "@every 1m"

// JanitorOption 定义 Janitor 的可选配置。
type JanitorOption func(*janitorOptions)

type janitorOptions struct {
	async    bool
	seconds  bool
	location *time.Location
}

// WithJanitorAsync 使用异步循环清理磁盘（每轮注册清理任务后推进到完成）。
func WithJanitorAsync(async bool) JanitorOption {
	return func(o *janitorOptions) {
		o.async = async
	}
}

// WithJanitorSeconds 启用秒级 cron 表达式（6 段）。
func WithJanitorSeconds() JanitorOption {
	return func(o *janitorOptions) {
		o.seconds = true
	}
}

// WithJanitorLocation 设置 cron 表达式使用的时区（默认本地时区）。
func WithJanitorLocation(loc *time.Location) JanitorOption {
	return func(o *janitorOptions) {
		if loc != nil {
			o.location = loc
		}
	}
}

// Janitor 按 cron 表达式周期调用 [Store.Purge]，截止时间为调用时刻。
//
// 过期判断本身仍是惰性的，Janitor 只负责回收磁盘空间与内存。
// 上一轮未结束时跳过本轮。
type Janitor struct {
	store *Store
	cron  *cron.Cron
	async bool

	mu      sync.Mutex
	ctx     context.Context
	running bool
	runs    atomic.Int64
}

// NewJanitor 创建 Janitor，schedule 为空时使用 [DefaultJanitorSchedule]。
func NewJanitor(s *Store, schedule string, opts ...JanitorOption) (*Janitor, error) {
	if s == nil {
		return nil, fmt.Errorf("%w: store is nil", ErrInvalidConfig)
	}
	if schedule == "" {
		schedule = DefaultJanitorSchedule
	}
	o := janitorOptions{location: time.Local}
	for _, opt := range opts {
		opt(&o)
	}

	fields := cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor
	if o.seconds {
		fields |= cron.Second
	}
	logger := cronLogger{l: s.opts.logger}
	c := cron.New(
		cron.WithLocation(o.location),
		cron.WithParser(cron.NewParser(fields)),
		cron.WithLogger(logger),
		cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
	)

	j := &Janitor{store: s, cron: c, async: o.async, ctx: context.Background()}
	if _, err := c.AddFunc(schedule, j.tick); err != nil {
		return nil, fmt.Errorf("%w: schedule %q: %w", ErrInvalidConfig, schedule, err)
	}
	return j, nil
}

// RunOnce 立即执行一轮清理。
func (j *Janitor) RunOnce(ctx context.Context) error {
	cutoff := j.store.opts.clock.Now()
	err := j.store.Purge(ctx, cutoff, j.async)
	if err == nil && j.async {
		err = j.store.RunLoop(ctx)
	}
	j.runs.Add(1)
	return err
}

// Runs 返回已执行的清理轮数。
func (j *Janitor) Runs() int64 {
	return j.runs.Load()
}

// Run 启动调度并阻塞到 ctx 取消，返回前等待进行中的清理结束。
func (j *Janitor) Run(ctx context.Context) error {
	j.mu.Lock()
	if j.running {
		j.mu.Unlock()
		return ErrRunning
	}
	j.running = true
	j.ctx = ctx
	j.mu.Unlock()

	j.cron.Start()
	<-ctx.Done()
	<-j.cron.Stop().Done()

	j.mu.Lock()
	j.running = false
	j.mu.Unlock()
	return nil
}

func (j *Janitor) tick() {
	j.mu.Lock()
	ctx := j.ctx
	j.mu.Unlock()

	if err := j.RunOnce(ctx); err != nil && !errors.Is(err, context.Canceled) {
		j.store.opts.logger.Warn("xtier janitor purge failed", slog.Any("error", err))
	}
}

// cronLogger 把 cron 的日志转到 slog。
type cronLogger struct {
	l *slog.Logger
}

func (c cronLogger) Info(msg string, keysAndValues ...any) {
	c.l.Debug("xtier janitor: "+msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...any) {
	c.l.Error("xtier janitor: "+msg, append([]any{slog.Any("error", err)}, keysAndValues...)...)
}
