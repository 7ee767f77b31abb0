package xtier

import (
	"context"
	"sync"
)

// ReadSlot 保存一次异步读取的结果，由 [Store.GetAsync] 返回。
// 结果在循环推进到任务关闭时写入，之后不再变化。
type ReadSlot struct {
	key   string
	once  sync.Once
	done  chan struct{}
	value []byte
	err   error
}

func newReadSlot(key string) *ReadSlot {
	return &ReadSlot{key: key, done: make(chan struct{})}
}

// Key 返回读取的 key。
func (r *ReadSlot) Key() string {
	return r.key
}

// Done 返回在结果就绪时关闭的 channel。
func (r *ReadSlot) Done() <-chan struct{} {
	return r.done
}

// Value 返回读取结果。未完成时返回 [ErrPending]；
// 文件不存在、已过期、损坏或读取失败时返回 [ErrNotFound]。
func (r *ReadSlot) Value() ([]byte, error) {
	select {
	case <-r.done:
		return r.value, r.err
	default:
		return nil, ErrPending
	}
}

// Wait 阻塞直到结果就绪或 ctx 取消。
// 必须有其他 goroutine 在推进循环，否则只会等到 ctx 取消。
func (r *ReadSlot) Wait(ctx context.Context) ([]byte, error) {
	select {
	case <-r.done:
		return r.value, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (r *ReadSlot) finish(value []byte, err error) {
	r.once.Do(func() {
		r.value, r.err = value, err
		close(r.done)
	})
}
