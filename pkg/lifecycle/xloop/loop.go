package xloop

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"time"
)

// Loop 是单线程就绪驱动的任务循环。
type Loop struct {
	maxOpen int
	logger  *slog.Logger

	// runMu 串行化单轮迭代与 Close，保证任务回调不会与关闭并发执行。
	runMu   sync.Mutex
	running atomic.Bool

	mu      sync.Mutex
	closed  bool
	pending []Task
	active  []*entry
	keys    map[string]struct{} // 活跃任务的 Key
}

// New 创建事件循环。
func New(opts ...Option) *Loop {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return &Loop{
		maxOpen: clampOpenFiles(o.maxOpenFiles),
		logger:  o.logger,
		keys:    make(map[string]struct{}),
	}
}

// MaxOpenFiles 返回生效的打开文件数上限（已按系统限制调整）。
func (l *Loop) MaxOpenFiles() int {
	return l.maxOpen
}

// Register 将任务加入等待队列，可从任意 goroutine 调用。
func (l *Loop) Register(t Task) error {
	if t == nil {
		return ErrNilTask
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return ErrClosed
	}
	l.pending = append(l.pending, t)
	return nil
}

// Pending 返回等待激活的任务数。
func (l *Loop) Pending() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.pending)
}

// Active 返回已激活（持有打开文件）的任务数。
func (l *Loop) Active() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.active)
}

// Len 返回循环中的任务总数。
func (l *Loop) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.pending) + len(l.active)
}

// RunOnce 执行一轮迭代，返回本轮分发的就绪事件数。
// 没有活跃任务时不等待，直接返回 0。
func (l *Loop) RunOnce(timeout time.Duration) (int, error) {
	if !l.running.CompareAndSwap(false, true) {
		return 0, ErrRunning
	}
	defer l.running.Store(false)
	return l.iterate(timeout)
}

// Run 反复迭代，直到没有任务、达到 WithCount 轮数上限或 ctx 取消。
// ctx 只在迭代之间检查，单轮等待时长由 WithTimeout 约束。
func (l *Loop) Run(ctx context.Context, opts ...RunOption) error {
	o := runOptions{timeout: DefaultTimeout}
	for _, opt := range opts {
		opt(&o)
	}
	if !l.running.CompareAndSwap(false, true) {
		return ErrRunning
	}
	defer l.running.Store(false)

	for i := 0; o.count <= 0 || i < o.count; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if l.Len() == 0 {
			return nil
		}
		if _, err := l.iterate(o.timeout); err != nil {
			return err
		}
	}
	return nil
}

// Close 关闭循环，对所有未关闭的任务（包括尚未激活的）调用 HandleClose。
// 若有 goroutine 正在迭代，Close 等待当前这一轮结束。重复调用返回 nil。
func (l *Loop) Close() error {
	l.runMu.Lock()
	defer l.runMu.Unlock()

	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil
	}
	l.closed = true
	active, pending := l.active, l.pending
	l.active, l.pending = nil, nil
	clear(l.keys)
	l.mu.Unlock()

	for _, e := range active {
		l.closeTask(e.task)
	}
	for _, t := range pending {
		l.closeTask(t)
	}
	l.logger.Debug("xloop closed", slog.Int("active", len(active)), slog.Int("pending", len(pending)))
	return nil
}

func (l *Loop) iterate(timeout time.Duration) (int, error) {
	l.runMu.Lock()
	defer l.runMu.Unlock()

	l.mu.Lock()
	closed := l.closed
	l.mu.Unlock()
	if closed {
		return 0, ErrClosed
	}

	l.activate()

	l.mu.Lock()
	active := slices.Clone(l.active)
	l.mu.Unlock()
	if len(active) == 0 {
		return 0, nil
	}

	events, err := pollEntries(active, timeout)
	if err != nil {
		if errors.Is(err, errInterrupted) {
			return 0, nil
		}
		l.logger.Warn("xloop poll failed", slog.Int("active", len(active)), slog.Any("error", err))
		return 0, err
	}

	n := 0
	for i, ev := range events {
		if ev == 0 {
			continue
		}
		n++
		l.dispatch(active[i].task, ev)
	}
	l.reap()
	return n, nil
}

// activate 按 FIFO 激活等待任务。Key 已有活跃任务的跳过，保持原有顺序。
func (l *Loop) activate() {
	l.mu.Lock()
	var picked []Task
	kept := l.pending[:0]
	for _, t := range l.pending {
		if t.Closed() {
			continue
		}
		if len(l.active)+len(picked) >= l.maxOpen {
			kept = append(kept, t)
			continue
		}
		if _, busy := l.keys[t.Key()]; busy {
			kept = append(kept, t)
			continue
		}
		l.keys[t.Key()] = struct{}{}
		picked = append(picked, t)
	}
	clear(l.pending[len(kept):])
	l.pending = kept
	l.mu.Unlock()

	for _, t := range picked {
		e, err := l.open(t)
		if err != nil {
			l.fail(t, err)
			l.mu.Lock()
			delete(l.keys, t.Key())
			l.mu.Unlock()
			continue
		}
		l.mu.Lock()
		l.active = append(l.active, e)
		l.mu.Unlock()
	}
}

func (l *Loop) open(t Task) (e *entry, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: open: %v", ErrTaskPanic, r)
		}
	}()
	f, err := t.Open()
	if err != nil {
		return nil, err
	}
	fd, err := descriptor(f)
	if err != nil {
		return nil, err
	}
	return &entry{task: t, file: f, fd: fd}, nil
}

func (l *Loop) dispatch(t Task, ev readiness) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.Error("xloop task panic recovered", slog.String("key", t.Key()), slog.Any("panic", r))
			l.fail(t, fmt.Errorf("%w: %v", ErrTaskPanic, r))
		}
	}()

	if ev&readyRead != 0 && !t.Closed() {
		if err := t.HandleRead(); err != nil {
			l.fail(t, err)
		}
	}
	if ev&readyWrite != 0 && !t.Closed() {
		if err := t.HandleWrite(); err != nil {
			l.fail(t, err)
		}
	}
	if ev&readyError != 0 && !t.Closed() {
		l.fail(t, fmt.Errorf("%w: descriptor error on %s", ErrPoll, t.Key()))
	}
}

// fail 把错误交给任务，并确保任务随后处于关闭状态。
func (l *Loop) fail(t Task, err error) {
	t.HandleError(err)
	if !t.Closed() {
		t.HandleClose()
	}
}

func (l *Loop) closeTask(t Task) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.Error("xloop task panic recovered", slog.String("key", t.Key()), slog.Any("panic", r))
		}
	}()
	if !t.Closed() {
		t.HandleClose()
	}
}

// reap 移除已关闭的活跃任务并释放其 Key。
func (l *Loop) reap() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.active = slices.DeleteFunc(l.active, func(e *entry) bool {
		if !e.task.Closed() {
			return false
		}
		delete(l.keys, e.task.Key())
		return true
	})
}
