package xtier

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"maps"
	"os"
	"slices"
	"sync"
	"syscall"
	"time"

	"github.com/avast/retry-go/v5"
	"github.com/natefinch/atomic"
	"golang.org/x/sync/singleflight"

	"github.com/omeyang/xtier/pkg/lifecycle/xloop"
	"github.com/omeyang/xtier/pkg/storage/xrecord"
	"github.com/omeyang/xtier/pkg/util/xfile"
	"github.com/omeyang/xtier/pkg/util/xkeyspace"
)

// 文件系统函数变量，测试中可替换以覆盖错误路径。
// 替换包级变量的测试不可使用 t.Parallel()。
var writeFileAtomic = atomic.WriteFile

// Store 是内存 + 磁盘两级过期缓存。
//
// 内存层是每个实例独享的 map，过期在读取时惰性判断（now >= ExpiresAt 即过期）。
// 磁盘层每个 key 一个文件，位于 <root>/<namespace>/<key>。
// 所有方法并发安全；异步磁盘任务由 RunLoop 在单个 goroutine 上推进。
type Store struct {
	root  string
	opts  options
	inst  *instruments
	env   *taskEnv
	loop  *xloop.Loop
	locks keyLocks
	group singleflight.Group

	// closers 在 Close 时调用，如 NewFromConfig 创建的日志文件
	closers []func() error

	mu         sync.Mutex
	closed     bool
	namespace  string
	dir        string
	dirPerm    os.FileMode
	defaultTTL time.Duration
	mem        map[string]xrecord.Record
}

// New 创建 Store，并确保 <root>/<namespace> 目录存在。
func New(root string, opts ...Option) (*Store, error) {
	if root == "" {
		return nil, ErrEmptyRoot
	}
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if o.defaultTTL < 0 {
		return nil, fmt.Errorf("%w: default ttl %s", ErrInvalidTTL, o.defaultTTL)
	}

	dir, err := namespaceDir(root, o.namespace, o.dirPerm)
	if err != nil {
		return nil, err
	}

	inst, err := newInstruments(o.meterProvider, o.tracerProvider)
	if err != nil {
		return nil, err
	}

	s := &Store{
		root:       root,
		opts:       o,
		inst:       inst,
		namespace:  o.namespace,
		dir:        dir,
		dirPerm:    o.dirPerm,
		defaultTTL: o.defaultTTL,
		mem:        make(map[string]xrecord.Record),
	}
	s.env = &taskEnv{logger: o.logger, inst: inst, clock: o.clock, filePerm: o.filePerm}
	s.loop = xloop.New(xloop.WithMaxOpenFiles(o.maxOpenFiles), xloop.WithLogger(o.logger))

	o.logger.Debug("xtier store opened", slog.String("dir", dir), slog.Duration("default_ttl", o.defaultTTL))
	return s, nil
}

// namespaceDir 创建命名空间目录，并把 xfile 的错误映射为 Store 的错误。
func namespaceDir(root, namespace string, perm os.FileMode) (string, error) {
	dir, err := xfile.EnsureNamespaceDir(root, namespace, perm)
	switch {
	case err == nil:
		return dir, nil
	case errors.Is(err, xfile.ErrNotDirectory):
		return "", fmt.Errorf("%w: %w", ErrDirectoryConflict, err)
	case errors.Is(err, xfile.ErrInvalidName), errors.Is(err, xfile.ErrEmptyPath),
		errors.Is(err, xfile.ErrNullByte), errors.Is(err, xfile.ErrInvalidPerm):
		return "", fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	default:
		return "", fmt.Errorf("%w: %w", ErrIO, err)
	}
}

// =============================================================================
// 读
// =============================================================================

// Get 查找 key。
//
// 内存层有未过期条目时直接返回；条目已过期则从内存删除后继续查磁盘。
// 磁盘命中不会写回内存层（需要时使用 [Store.GetAndPromote]）。
// 磁盘记录过期时删除该文件。不存在、过期和损坏都返回 [ErrNotFound]。
//
// 内存条目过期后回落到磁盘，即使磁盘上是更早写入的记录：先 Store(k, v1, 100s, true)
// 再 Store(k, v2, 0, false)，Get 返回仍未过期的 v1。需要让旧值失效时使用 [Store.Delete]。
func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	return s.get(ctx, key, false)
}

// GetAndPromote 与 Get 相同，但磁盘命中时把记录（保留磁盘上的过期时间）写入内存层。
// 内存层已有未过期的同名条目时保持不变。
func (s *Store) GetAndPromote(ctx context.Context, key string) ([]byte, error) {
	return s.get(ctx, key, true)
}

func (s *Store) get(ctx context.Context, key string, promote bool) ([]byte, error) {
	if err := s.checkKey(key); err != nil {
		return nil, err
	}
	now := xrecord.Seconds(s.opts.clock.Now())

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrClosed
	}
	rec, ok := s.mem[key]
	if ok && !rec.Expired(now) {
		s.mu.Unlock()
		s.inst.hit(ctx, tierMemory)
		return bytes.Clone(rec.Payload), nil
	}
	if ok {
		delete(s.mem, key)
		s.inst.evicted(ctx, tierMemory, 1)
	}
	dir := s.dir
	s.mu.Unlock()

	rec, err := s.readDisk(ctx, dir, key, now)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			s.inst.miss(ctx)
		}
		return nil, err
	}
	s.inst.hit(ctx, tierDisk)

	if promote {
		s.mu.Lock()
		if cur, ok := s.mem[key]; !ok || cur.Expired(now) {
			s.mem[key] = rec
		}
		s.mu.Unlock()
	}
	return bytes.Clone(rec.Payload), nil
}

// readDisk 读取并解码磁盘记录，过期时删除文件。
func (s *Store) readDisk(ctx context.Context, dir, key string, now float64) (rec xrecord.Record, err error) {
	unlock := s.locks.lock(key)
	defer unlock()

	ctx, op := s.inst.startDisk(ctx, "read", key)
	defer func() { op.end(ctx, ignoreNotFound(err)) }()

	path := xkeyspace.Path(dir, key)
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return xrecord.Record{}, ErrNotFound
		}
		return xrecord.Record{}, fmt.Errorf("%w: read %s: %w", ErrIO, path, err)
	}

	rec, err = xrecord.Unmarshal(data)
	if err != nil {
		s.opts.logger.Debug("xtier malformed disk record", slog.String("path", path), slog.Any("error", err))
		return xrecord.Record{}, ErrNotFound
	}
	if rec.Expired(now) {
		if rmErr := os.Remove(path); rmErr != nil && !errors.Is(rmErr, fs.ErrNotExist) {
			s.opts.logger.Warn("xtier remove expired record failed", slog.String("path", path), slog.Any("error", rmErr))
		} else {
			s.inst.evicted(ctx, tierDisk, 1)
		}
		return xrecord.Record{}, ErrNotFound
	}
	return rec, nil
}

func ignoreNotFound(err error) error {
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	return err
}

// =============================================================================
// 写
// =============================================================================

// Store 以 ttl 写入 key。ExpiresAt = now + ttl，ttl 为 0 的条目立即过期。
//
// persist 为 true 时先原子写入磁盘（临时文件 + rename），成功后才更新内存层；
// 磁盘写失败时内存层保持不变并返回错误（[ErrIO] 或 xrecord.ErrEncode）。
func (s *Store) Store(ctx context.Context, key string, value []byte, ttl time.Duration, persist bool) error {
	if ttl < 0 {
		return fmt.Errorf("%w: %s", ErrInvalidTTL, ttl)
	}
	if err := s.checkKey(key); err != nil {
		return err
	}
	rec := xrecord.New(bytes.Clone(value), s.opts.clock.Now(), ttl)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	dir := s.dir
	s.mu.Unlock()

	unlock := s.locks.lock(key)
	defer unlock()

	if persist {
		if err := s.writeDisk(ctx, dir, key, rec); err != nil {
			return err
		}
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	s.mem[key] = rec
	s.mu.Unlock()

	s.inst.stored(ctx, persist)
	return nil
}

// Put 以命名空间默认 TTL 写入 key，并持久化到磁盘。
func (s *Store) Put(ctx context.Context, key string, value []byte) error {
	return s.Store(ctx, key, value, s.DefaultTTL(), true)
}

// writeDisk 原子写入一条记录，调用方需持有 key 锁。
func (s *Store) writeDisk(ctx context.Context, dir, key string, rec xrecord.Record) (err error) {
	data, err := xrecord.Marshal(rec)
	if err != nil {
		return err
	}

	ctx, op := s.inst.startDisk(ctx, "write", key)
	defer func() { op.end(ctx, err) }()

	path := xkeyspace.Path(dir, key)
	err = retry.New(
		retry.Context(ctx),
		retry.Attempts(uint(s.opts.writeAttempts)), //nolint:gosec // writeAttempts >= 1
		retry.Delay(s.opts.retryDelay),
		retry.DelayType(retry.FixedDelay),
		retry.RetryIf(isTransient),
		retry.LastErrorOnly(true),
	).Do(func() error {
		return writeFileAtomic(path, bytes.NewReader(data))
	})
	if err != nil {
		return fmt.Errorf("%w: write %s: %w", ErrIO, path, err)
	}
	if err := os.Chmod(path, s.opts.filePerm); err != nil {
		s.opts.logger.Warn("xtier chmod cache file failed", slog.String("path", path), slog.Any("error", err))
	}
	return nil
}

// isTransient 报告写错误是否值得重试。
func isTransient(err error) bool {
	return errors.Is(err, syscall.EINTR) || errors.Is(err, syscall.EAGAIN) || errors.Is(err, syscall.EBUSY)
}

// =============================================================================
// 命名空间
// =============================================================================

// ChangeNamespace 把 Store 切换到 <root>/<name>，目录不存在时创建。
// 默认不清空内存层，需要时传入 [WithResetMemory]。
func (s *Store) ChangeNamespace(name string, opts ...NamespaceOption) error {
	var o namespaceOptions
	for _, opt := range opts {
		opt(&o)
	}
	if o.ttlSet && o.ttl < 0 {
		return fmt.Errorf("%w: namespace ttl %s", ErrInvalidTTL, o.ttl)
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	perm := s.dirPerm
	s.mu.Unlock()
	if o.permSet {
		perm = o.perm
	}

	dir, err := namespaceDir(s.root, name, perm)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	s.namespace = name
	s.dir = dir
	s.dirPerm = perm
	if o.ttlSet {
		s.defaultTTL = o.ttl
	}
	if o.resetMem {
		clear(s.mem)
	}
	s.opts.logger.Debug("xtier namespace changed",
		slog.String("namespace", name),
		slog.Bool("reset_memory", o.resetMem),
	)
	return nil
}

// =============================================================================
// 清理
// =============================================================================

// PurgeMemory 删除内存层中 ExpiresAt <= cutoff 的条目，返回删除数。
func (s *Store) PurgeMemory(cutoff time.Time) int {
	c := xrecord.Seconds(cutoff)

	s.mu.Lock()
	n := 0
	maps.DeleteFunc(s.mem, func(_ string, rec xrecord.Record) bool {
		if rec.ExpiresAt <= c {
			n++
			return true
		}
		return false
	})
	s.mu.Unlock()

	s.inst.evicted(context.Background(), tierMemory, n)
	return n
}

// PurgeDisk 清理命名空间目录中的过期文件。
//
// 同步模式逐个读取记录头，头部无法解析或 ExpiresAt <= cutoff 时删除，返回删除数。
// 异步模式为每个文件注册一个清理任务后立即返回注册数，由 RunLoop 推进。
func (s *Store) PurgeDisk(ctx context.Context, cutoff time.Time, async bool) (int, error) {
	dir, err := s.currentDir()
	if err != nil {
		return 0, err
	}
	names, err := xfile.ListFiles(dir)
	if err != nil {
		return 0, fmt.Errorf("%w: list %s: %w", ErrIO, dir, err)
	}
	c := xrecord.Seconds(cutoff)

	if async {
		n := 0
		var errs []error
		for _, name := range names {
			if err := s.loop.Register(newPurgeTask(s.env, xkeyspace.Path(dir, name), c)); err != nil {
				errs = append(errs, err)
				continue
			}
			n++
		}
		return n, s.loopError(errors.Join(errs...))
	}

	deleted := 0
	var errs []error
	for _, name := range names {
		ok, err := s.purgeFile(ctx, dir, name, c)
		if err != nil {
			errs = append(errs, err)
		}
		if ok {
			deleted++
		}
	}
	s.inst.evicted(ctx, tierDisk, deleted)
	return deleted, errors.Join(errs...)
}

// purgeFile 只读取记录头判断是否删除。
func (s *Store) purgeFile(ctx context.Context, dir, name string, cutoff float64) (deleted bool, err error) {
	unlock := s.locks.lock(name)
	defer unlock()

	ctx, op := s.inst.startDisk(ctx, "purge", name)
	defer func() { op.end(ctx, err) }()

	path := xkeyspace.Path(dir, name)
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("%w: open %s: %w", ErrIO, path, err)
	}
	exp, readErr := xrecord.ReadExpiry(f)
	_ = f.Close()

	switch {
	case readErr == nil && exp > cutoff:
		return false, nil
	case readErr != nil && !errors.Is(readErr, xrecord.ErrMalformedRecord):
		return false, fmt.Errorf("%w: read %s: %w", ErrIO, path, readErr)
	}

	if err := os.Remove(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("%w: remove %s: %w", ErrIO, path, err)
	}
	s.opts.logger.Debug("xtier purged disk entry", slog.String("path", path), slog.Bool("malformed", readErr != nil))
	return true, nil
}

// Purge 先清理磁盘再清理内存，cutoff 相同。
func (s *Store) Purge(ctx context.Context, cutoff time.Time, async bool) error {
	_, err := s.PurgeDisk(ctx, cutoff, async)
	s.PurgeMemory(cutoff)
	return err
}

// =============================================================================
// 持久化
// =============================================================================

// SaveAll 把调用时刻的内存层快照写入磁盘。
//
// 同步模式逐个写入并阻塞到全部完成，返回成功数，失败合并返回。
// 异步模式为每个条目注册一个写任务后立即返回注册数；之后的写入不保证包含在内。
func (s *Store) SaveAll(ctx context.Context, async bool) (int, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return 0, ErrClosed
	}
	dir := s.dir
	snapshot := maps.Clone(s.mem)
	s.mu.Unlock()

	keys := slices.Sorted(maps.Keys(snapshot))
	n := 0
	var errs []error
	for _, key := range keys {
		rec := snapshot[key]
		if async {
			data, err := xrecord.Marshal(rec)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				continue
			}
			if err := s.loop.Register(newWriteTask(s.env, xkeyspace.Path(dir, key), data)); err != nil {
				errs = append(errs, err)
				continue
			}
			n++
			continue
		}

		unlock := s.locks.lock(key)
		err := s.writeDisk(ctx, dir, key, rec)
		unlock()
		if err != nil {
			errs = append(errs, err)
			continue
		}
		n++
	}
	if async {
		return n, s.loopError(errors.Join(errs...))
	}
	return n, errors.Join(errs...)
}

// =============================================================================
// 删除
// =============================================================================

// Clear 清空内存层并删除命名空间目录中的所有文件。
// 部分文件删除失败时合并返回错误，已删除的不回滚。
func (s *Store) Clear(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	n := len(s.mem)
	clear(s.mem)
	dir := s.dir
	s.mu.Unlock()
	s.inst.evicted(ctx, tierMemory, n)

	names, err := xfile.ListFiles(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("%w: list %s: %w", ErrIO, dir, err)
	}

	removed := 0
	var errs []error
	for _, name := range names {
		if err := s.removeFile(dir, name); err != nil {
			errs = append(errs, err)
			continue
		}
		removed++
	}
	s.inst.evicted(ctx, tierDisk, removed)
	s.opts.logger.Debug("xtier cleared namespace", slog.String("dir", dir), slog.Int("files", removed))
	return errors.Join(errs...)
}

// Evict 只从内存层删除 key，返回是否存在。
func (s *Store) Evict(key string) bool {
	s.mu.Lock()
	_, ok := s.mem[key]
	delete(s.mem, key)
	s.mu.Unlock()
	return ok
}

// Delete 从内存层和磁盘删除 key。文件不存在不算错误。
func (s *Store) Delete(ctx context.Context, key string) error {
	if err := s.checkKey(key); err != nil {
		return err
	}
	s.Evict(key)
	dir, err := s.currentDir()
	if err != nil {
		return err
	}
	return s.removeFile(dir, key)
}

func (s *Store) removeFile(dir, name string) error {
	unlock := s.locks.lock(name)
	defer unlock()

	path := xkeyspace.Path(dir, name)
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w: remove %s: %w", ErrIO, path, err)
	}
	return nil
}

// =============================================================================
// 异步
// =============================================================================

// GetAsync 注册一个异步读取任务，结果在 RunLoop 推进后写入返回的 ReadSlot。
// 异步读取只访问磁盘，不查内存层，也不删除过期文件。
func (s *Store) GetAsync(key string) (*ReadSlot, error) {
	if err := s.checkKey(key); err != nil {
		return nil, err
	}
	dir, err := s.currentDir()
	if err != nil {
		return nil, err
	}
	slot := newReadSlot(key)
	if err := s.loop.Register(newReadTask(s.env, xkeyspace.Path(dir, key), slot)); err != nil {
		return nil, s.loopError(err)
	}
	return slot, nil
}

// RunLoop 推进异步任务，直到没有任务、达到轮数上限或 ctx 取消。
// 未指定 xloop.WithTimeout 时使用 WithPollTimeout 配置的超时。
func (s *Store) RunLoop(ctx context.Context, opts ...xloop.RunOption) error {
	opts = append([]xloop.RunOption{xloop.WithTimeout(s.opts.pollTimeout)}, opts...)
	return s.loopError(s.loop.Run(ctx, opts...))
}

// Loop 返回底层异步循环，用于注册自定义任务或逐轮推进。
func (s *Store) Loop() *xloop.Loop {
	return s.loop
}

// Close 关闭 Store 与异步循环，未完成的任务被关闭（ReadSlot 得到 ErrNotFound）。
// 内存层不会自动持久化，需要时先调用 SaveAll。重复调用返回 nil。
func (s *Store) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	errs := []error{s.loop.Close()}
	for _, c := range s.closers {
		errs = append(errs, c())
	}
	return errors.Join(errs...)
}

func (s *Store) loopError(err error) error {
	if errors.Is(err, xloop.ErrClosed) {
		return fmt.Errorf("%w: %w", ErrClosed, err)
	}
	return err
}

// =============================================================================
// 查询
// =============================================================================

// Namespace 返回当前命名空间。
func (s *Store) Namespace() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.namespace
}

// Dir 返回当前命名空间目录。
func (s *Store) Dir() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dir
}

// Root 返回缓存根目录。
func (s *Store) Root() string {
	return s.root
}

// DefaultTTL 返回当前命名空间的默认 TTL。
func (s *Store) DefaultTTL() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.defaultTTL
}

// Len 返回内存层条目数（包括尚未清理的过期条目）。
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.mem)
}

// Keys 返回内存层的 key（按字典序）。
func (s *Store) Keys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Sorted(maps.Keys(s.mem))
}

func (s *Store) currentDir() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return "", ErrClosed
	}
	return s.dir, nil
}

func (s *Store) checkKey(key string) error {
	if key == "" {
		return ErrEmptyKey
	}
	if !s.opts.strictKeys {
		return nil
	}
	if err := xfile.ValidateName(key); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidKey, err)
	}
	return nil
}
