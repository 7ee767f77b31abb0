package xtier

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type watchResult struct {
	cfg Config
	err error
}

func watchCollector() (WatchCallback, <-chan watchResult) {
	ch := make(chan watchResult, 16)
	return func(cfg Config, err error) {
		select {
		case ch <- watchResult{cfg: cfg, err: err}:
		default:
		}
	}, ch
}

func waitResult(t *testing.T, ch <-chan watchResult) watchResult {
	t.Helper()
	select {
	case r := <-ch:
		return r
	case <-time.After(5 * time.Second):
		t.Fatal("config change was not applied")
		return watchResult{}
	}
}

func TestWatchConfig_AppliesNamespace(t *testing.T) {
	s, _ := newTestStore(t)
	path := filepath.Join(t.TempDir(), "xtier.yaml")
	require.NoError(t, os.WriteFile(path, []byte("root: "+s.Root()+"\n"), 0o600))

	cb, ch := watchCollector()
	w, err := WatchConfig(s, path, cb, WithDebounce(20*time.Millisecond))
	require.NoError(t, err)
	t.Cleanup(func() { _ = w.Stop() })

	content := "root: " + s.Root() + "\nnamespace: reloaded\ndefault_ttl: 1m\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	r := waitResult(t, ch)
	require.NoError(t, r.err)
	assert.Equal(t, "reloaded", r.cfg.Namespace)
	assert.Equal(t, "reloaded", s.Namespace())
	assert.Equal(t, time.Minute, s.DefaultTTL())
	assert.DirExists(t, filepath.Join(s.Root(), "reloaded"))
}

func TestWatchConfig_InvalidConfig(t *testing.T) {
	s, _ := newTestStore(t)
	path := filepath.Join(t.TempDir(), "xtier.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"root": "x"}`), 0o600))

	cb, ch := watchCollector()
	w, err := WatchConfig(s, path, cb, WithDebounce(20*time.Millisecond))
	require.NoError(t, err)
	t.Cleanup(func() { _ = w.Stop() })

	require.NoError(t, os.WriteFile(path, []byte(`{"namespace": "n"}`), 0o600))

	r := waitResult(t, ch)
	assert.ErrorIs(t, r.err, ErrInvalidConfig)
	assert.Equal(t, DefaultNamespace, s.Namespace())
}

func TestWatchConfig_IgnoresOtherFiles(t *testing.T) {
	s, _ := newTestStore(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "xtier.yaml")
	require.NoError(t, os.WriteFile(path, []byte("root: "+s.Root()+"\n"), 0o600))

	cb, ch := watchCollector()
	w, err := WatchConfig(s, path, cb, WithDebounce(10*time.Millisecond))
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "other.yaml"), []byte("namespace: x\n"), 0o600))
	time.Sleep(100 * time.Millisecond)
	require.NoError(t, w.Stop())

	select {
	case r := <-ch:
		t.Fatalf("unexpected callback: %+v", r)
	default:
	}
	assert.Equal(t, DefaultNamespace, s.Namespace())
}

func TestWatchConfig_Errors(t *testing.T) {
	s, _ := newTestStore(t)
	dir := t.TempDir()

	tests := []struct {
		name  string
		store *Store
		path  string
	}{
		{name: "Store 为 nil", store: nil, path: filepath.Join(dir, "a.yaml")},
		{name: "空路径", store: s, path: ""},
		{name: "未知扩展名", store: s, path: filepath.Join(dir, "a.ini")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, err := WatchConfig(tt.store, tt.path, nil)
			assert.Nil(t, w)
			assert.ErrorIs(t, err, ErrInvalidConfig)
		})
	}

	w, err := WatchConfig(s, filepath.Join(dir, "missing", "a.yaml"), nil)
	assert.Nil(t, w)
	assert.Error(t, err)
}

func TestConfigWatcher_StopIdempotent(t *testing.T) {
	s, _ := newTestStore(t)
	path := filepath.Join(t.TempDir(), "xtier.yaml")

	w, err := WatchConfig(s, path, nil)
	require.NoError(t, err)
	require.NoError(t, w.Stop())
	require.NoError(t, w.Stop())
}
