package xtier

import (
	"bytes"
	"context"
	"errors"
	"time"

	"github.com/omeyang/xtier/pkg/util/xkeyspace"
)

// LoadFunc 是可被记忆化的函数。参数参与 key 派生，返回值作为缓存负载。
type LoadFunc func(ctx context.Context, args ...any) ([]byte, error)

// MemoOption 定义 Memoize 的可选配置。
type MemoOption func(*memoOptions)

type memoOptions struct {
	name         string
	ttl          time.Duration
	ttlSet       bool
	persist      bool
	singleflight bool
	hash         xkeyspace.Hash
}

// WithMemoName 设置 key 派生使用的函数标识（默认取函数符号名）。
// 闭包或需要跨版本稳定的 key 应显式命名。
func WithMemoName(name string) MemoOption {
	return func(o *memoOptions) {
		o.name = name
	}
}

// WithMemoTTL 设置结果的 TTL（默认使用命名空间默认 TTL）。
func WithMemoTTL(d time.Duration) MemoOption {
	return func(o *memoOptions) {
		o.ttl = d
		o.ttlSet = true
	}
}

// WithMemoPersist 设置结果是否持久化到磁盘（默认只写内存层）。
func WithMemoPersist(persist bool) MemoOption {
	return func(o *memoOptions) {
		o.persist = persist
	}
}

// WithMemoSingleflight 设置是否合并相同参数的并发计算（默认开启）。
func WithMemoSingleflight(enabled bool) MemoOption {
	return func(o *memoOptions) {
		o.singleflight = enabled
	}
}

// WithMemoHash 设置参数指纹的哈希算法（默认 SHA-256）。
func WithMemoHash(h xkeyspace.Hash) MemoOption {
	return func(o *memoOptions) {
		o.hash = h
	}
}

// Memoize 返回 fn 的记忆化版本。
//
// 以 "<函数标识>(<参数指纹>)" 为 key 查询缓存，未命中时调用 fn 并以配置的 TTL 写入。
// fn 返回错误时不缓存。开启 singleflight 时，相同 key 的并发调用只执行一次 fn，
// 各调用方可以独立取消等待，计算本身不受首个调用方取消的影响。
//
// fn 为 nil 时返回的函数总是返回 [ErrNilFunc]。
func (s *Store) Memoize(fn LoadFunc, opts ...MemoOption) LoadFunc {
	o := memoOptions{singleflight: true, hash: xkeyspace.HashSHA256}
	for _, opt := range opts {
		opt(&o)
	}
	if fn == nil {
		return func(context.Context, ...any) ([]byte, error) {
			return nil, ErrNilFunc
		}
	}
	identity := o.name
	if identity == "" {
		identity = xkeyspace.FuncIdentity(fn)
	}

	m := &memoizer{store: s, fn: fn, identity: identity, opts: o}
	return m.call
}

type memoizer struct {
	store    *Store
	fn       LoadFunc
	identity string
	opts     memoOptions
}

func (m *memoizer) call(ctx context.Context, args ...any) ([]byte, error) {
	key := xkeyspace.DeriveKey(m.identity, xkeyspace.Fingerprint(m.opts.hash, args...))

	if v, done, err := m.lookup(ctx, key); done {
		return v, err
	}
	if !m.opts.singleflight {
		return m.compute(ctx, key, args)
	}

	// 计算使用独立的 ctx，首个调用方取消不影响其他等待者
	flightCtx := context.WithoutCancel(ctx)
	ch := m.store.group.DoChan(key, func() (any, error) {
		// 再次检查，前一次计算可能刚刚写入
		if v, done, err := m.lookup(flightCtx, key); done {
			return v, err
		}
		return m.compute(flightCtx, key, args)
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		v, ok := res.Val.([]byte)
		if !ok {
			return nil, errors.New("xtier: unexpected result type from singleflight")
		}
		if res.Shared {
			return bytes.Clone(v), nil
		}
		return v, nil
	}
}

// lookup 查询缓存。done 为 false 表示未命中，需要计算。
func (m *memoizer) lookup(ctx context.Context, key string) ([]byte, bool, error) {
	v, err := m.store.Get(ctx, key)
	switch {
	case err == nil:
		return v, true, nil
	case errors.Is(err, ErrNotFound):
		return nil, false, nil
	default:
		return nil, true, err
	}
}

// compute 调用原函数并写入缓存。TTL 为 0 的结果直接返回，不再回读。
func (m *memoizer) compute(ctx context.Context, key string, args []any) ([]byte, error) {
	v, err := m.fn(ctx, args...)
	if err != nil {
		return nil, err
	}
	ttl := m.opts.ttl
	if !m.opts.ttlSet {
		ttl = m.store.DefaultTTL()
	}
	if err := m.store.Store(ctx, key, v, ttl, m.opts.persist); err != nil {
		return nil, err
	}
	return v, nil
}
