package xtier

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// WatchCallback 在配置文件变化并应用后调用。err 非 nil 时 cfg 为零值或未应用。
type WatchCallback func(cfg Config, err error)

// WatchOption 定义 WatchConfig 的可选配置。
type WatchOption func(*watchOptions)

type watchOptions struct {
	debounce time.Duration
}

// WithDebounce 设置防抖时间（默认 100ms），编辑器保存时常产生多个事件。
func WithDebounce(d time.Duration) WatchOption {
	return func(o *watchOptions) {
		if d > 0 {
			o.debounce = d
		}
	}
}

// ConfigWatcher 监听配置文件并把变化应用到 Store。
type ConfigWatcher struct {
	store    *Store
	path     string
	watcher  *fsnotify.Watcher
	callback WatchCallback
	debounce time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	mu      sync.Mutex
	timer   *time.Timer
	applyWg sync.WaitGroup
}

// WatchConfig 监听 path 所在目录（兼容编辑器的 rename 保存），文件变化时重新加载配置，
// 并通过 ChangeNamespace 应用 namespace、default_ttl 与 dir_perm。
// root 与日志配置的变化不会热更新，只记录告警。
//
// 返回的 ConfigWatcher 已在后台运行，使用完毕调用 Stop。
func WatchConfig(s *Store, path string, callback WatchCallback, opts ...WatchOption) (*ConfigWatcher, error) {
	if s == nil {
		return nil, fmt.Errorf("%w: store is nil", ErrInvalidConfig)
	}
	if path == "" {
		return nil, fmt.Errorf("%w: config path is required", ErrInvalidConfig)
	}
	if _, err := detectFormat(path); err != nil {
		return nil, err
	}

	o := watchOptions{debounce: 100 * time.Millisecond}
	for _, opt := range opts {
		opt(&o)
	}

	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("xtier: failed to create watcher: %w", err)
	}
	dir := filepath.Dir(path)
	if err := fsWatcher.Add(dir); err != nil {
		closeErr := fsWatcher.Close()
		return nil, errors.Join(
			fmt.Errorf("xtier: failed to watch directory %s: %w", dir, err),
			closeErr,
		)
	}

	ctx, cancel := context.WithCancel(context.Background())
	w := &ConfigWatcher{
		store:    s,
		path:     path,
		watcher:  fsWatcher,
		callback: callback,
		debounce: o.debounce,
		ctx:      ctx,
		cancel:   cancel,
		done:     make(chan struct{}),
	}
	go w.run()
	return w, nil
}

// Stop 停止监听，等待进行中的应用结束。重复调用返回 nil。
func (w *ConfigWatcher) Stop() error {
	w.mu.Lock()
	select {
	case <-w.ctx.Done():
		w.mu.Unlock()
		return nil
	default:
	}
	w.cancel()
	if w.timer != nil && w.timer.Stop() {
		// 定时器未触发，对应的 apply 不会运行
		w.applyWg.Done()
	}
	w.timer = nil
	w.mu.Unlock()

	err := w.watcher.Close()
	<-w.done
	w.applyWg.Wait()
	return err
}

func (w *ConfigWatcher) run() {
	defer close(w.done)
	filename := filepath.Base(w.path)

	for {
		select {
		case <-w.ctx.Done():
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event, filename)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			if w.callback != nil {
				w.callback(Config{}, fmt.Errorf("xtier: watch error: %w", err))
			}
		}
	}
}

func (w *ConfigWatcher) handleEvent(event fsnotify.Event, filename string) {
	if filepath.Base(event.Name) != filename {
		return
	}
	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.ctx.Err() != nil {
		return
	}
	if w.timer != nil && w.timer.Stop() {
		w.applyWg.Done()
	}
	w.applyWg.Add(1)
	w.timer = time.AfterFunc(w.debounce, func() {
		defer w.applyWg.Done()
		if w.ctx.Err() != nil {
			return
		}
		cfg, err := w.apply()
		if w.callback != nil {
			w.callback(cfg, err)
		}
	})
}

// apply 重新加载配置并应用可热更新的字段。
func (w *ConfigWatcher) apply() (Config, error) {
	cfg, err := LoadConfig(w.path)
	if err != nil {
		w.store.opts.logger.Warn("xtier reload config failed", slog.String("path", w.path), slog.Any("error", err))
		return Config{}, err
	}
	if filepath.Clean(cfg.Root) != filepath.Clean(w.store.Root()) {
		w.store.opts.logger.Warn("xtier config root changed, restart required",
			slog.String("current", w.store.Root()),
			slog.String("configured", cfg.Root),
		)
	}

	perm, _ := cfg.dirPerm()
	if err := w.store.ChangeNamespace(cfg.Namespace,
		WithNamespaceTTL(cfg.DefaultTTL),
		WithNamespacePerm(perm),
	); err != nil {
		return cfg, err
	}
	w.store.opts.logger.Info("xtier config reloaded",
		slog.String("namespace", cfg.Namespace),
		slog.Duration("default_ttl", cfg.DefaultTTL),
	)
	return cfg, nil
}
