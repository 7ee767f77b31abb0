package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omeyang/xtier/pkg/storage/xrecord"
)

// runCLI 执行一次命令，返回退出码与输出。
func runCLI(t *testing.T, args ...string) (int, string, string) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := run(context.Background(), append([]string{"xtierctl"}, args...), &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func writeRecord(t *testing.T, path, payload string, expiresAt time.Time) {
	t.Helper()
	data, err := xrecord.Marshal(xrecord.Record{Payload: []byte(payload), ExpiresAt: xrecord.Seconds(expiresAt)})
	require.NoError(t, err)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o750))
	require.NoError(t, os.WriteFile(path, data, 0o600))
}

func TestSetAndGet(t *testing.T) {
	root := t.TempDir()

	code, _, stderr := runCLI(t, "-r", root, "-n", "users", "set", "--ttl", "5m", "alice", `{"id":1}`)
	require.Equal(t, exitOK, code, stderr)
	assert.FileExists(t, filepath.Join(root, "users", "alice"))

	code, stdout, _ := runCLI(t, "-r", root, "-n", "users", "get", "alice")
	assert.Equal(t, exitOK, code)
	assert.Equal(t, "{\"id\":1}\n", stdout)
}

func TestSet_MemoryOnly(t *testing.T) {
	root := t.TempDir()

	code, _, _ := runCLI(t, "-r", root, "set", "--memory-only", "k", "v")
	require.Equal(t, exitOK, code)
	assert.NoFileExists(t, filepath.Join(root, "default", "k"))

	code, _, _ = runCLI(t, "-r", root, "get", "k")
	assert.Equal(t, exitNotFound, code)
}

func TestGet_NotFound(t *testing.T) {
	root := t.TempDir()
	writeRecord(t, filepath.Join(root, "default", "old"), "v", time.Now().Add(-time.Minute))

	tests := []struct {
		name string
		key  string
	}{
		{name: "不存在", key: "missing"},
		{name: "已过期", key: "old"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, stdout, stderr := runCLI(t, "-r", root, "get", tt.key)
			assert.Equal(t, exitNotFound, code)
			assert.Empty(t, stdout)
			assert.Contains(t, stderr, "未找到")
		})
	}
}

func TestUsageErrors(t *testing.T) {
	root := t.TempDir()

	tests := []struct {
		name string
		args []string
	}{
		{name: "缺少根目录", args: []string{"get", "k"}},
		{name: "get 缺少 key", args: []string{"-r", root, "get"}},
		{name: "get 多余参数", args: []string{"-r", root, "get", "a", "b"}},
		{name: "set 缺少 value", args: []string{"-r", root, "set", "k"}},
		{name: "负 TTL", args: []string{"-r", root, "set", "--ttl=-1s", "k", "v"}},
		{name: "非法 key", args: []string{"-r", root, "get", "a/b"}},
		{name: "非法命名空间", args: []string{"-r", root, "-n", "..", "ls"}},
		{name: "无效截止时间", args: []string{"-r", root, "purge", "--before", "yesterday"}},
		{name: "未知 flag", args: []string{"-r", root, "--nope", "ls"}},
		{name: "未知命令", args: []string{"-r", root, "frobnicate"}},
		{name: "缺少命令", args: []string{"-r", root}},
		{name: "配置扩展名未知", args: []string{"-c", filepath.Join(root, "x.ini"), "ls"}},
		{name: "未知日志级别", args: []string{"-r", root, "--log-level", "loud", "ls"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, _, _ := runCLI(t, tt.args...)
			assert.Equal(t, exitUsage, code)
		})
	}
}

func TestFailure(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "default"), []byte("x"), 0o600))

	code, _, stderr := runCLI(t, "-r", root, "ls")
	assert.Equal(t, exitFailure, code)
	assert.Contains(t, stderr, "错误")
}

func TestPurge(t *testing.T) {
	for _, async := range []bool{false, true} {
		name := "同步"
		if async {
			name = "异步"
		}
		t.Run(name, func(t *testing.T) {
			root := t.TempDir()
			dir := filepath.Join(root, "default")
			now := time.Now()
			writeRecord(t, filepath.Join(dir, "old"), "v", now.Add(-time.Hour))
			writeRecord(t, filepath.Join(dir, "new"), "v", now.Add(time.Hour))
			require.NoError(t, os.WriteFile(filepath.Join(dir, "bad"), []byte("garbage"), 0o600))

			args := []string{"-r", root, "purge"}
			if async {
				args = append(args, "--async")
			}
			code, stdout, stderr := runCLI(t, args...)
			require.Equal(t, exitOK, code, stderr)
			if async {
				assert.Contains(t, stdout, "已检查 3 个文件")
			} else {
				assert.Contains(t, stdout, "已删除 2 个文件")
			}

			assert.NoFileExists(t, filepath.Join(dir, "old"))
			assert.NoFileExists(t, filepath.Join(dir, "bad"))
			assert.FileExists(t, filepath.Join(dir, "new"))
		})
	}
}

func TestPurge_Before(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, "default")
	now := time.Now()
	writeRecord(t, filepath.Join(dir, "soon"), "v", now.Add(time.Hour))
	writeRecord(t, filepath.Join(dir, "later"), "v", now.Add(48*time.Hour))

	before := now.Add(2 * time.Hour).Format(time.RFC3339)
	code, stdout, _ := runCLI(t, "-r", root, "purge", "--before", before)
	require.Equal(t, exitOK, code)
	assert.Contains(t, stdout, "已删除 1 个文件")
	assert.NoFileExists(t, filepath.Join(dir, "soon"))
	assert.FileExists(t, filepath.Join(dir, "later"))
}

func TestClear(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, "default")
	writeRecord(t, filepath.Join(dir, "a"), "v", time.Now().Add(time.Hour))
	writeRecord(t, filepath.Join(dir, "b"), "v", time.Now().Add(time.Hour))

	code, stdout, _ := runCLI(t, "-r", root, "clear")
	require.Equal(t, exitOK, code)
	assert.Contains(t, stdout, "已清空")

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestLs(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, "default")
	now := time.Now()
	writeRecord(t, filepath.Join(dir, "fresh"), "hello", now.Add(time.Hour))
	writeRecord(t, filepath.Join(dir, "stale"), "v", now.Add(-time.Hour))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bad"), []byte("garbage\n"), 0o600))

	code, stdout, _ := runCLI(t, "-r", root, "ls")
	require.Equal(t, exitOK, code)

	lines := strings.Split(strings.TrimSpace(stdout), "\n")
	require.Len(t, lines, 4)
	assert.True(t, strings.HasPrefix(lines[0], "KEY"))
	assert.True(t, strings.HasPrefix(lines[1], "bad"))
	assert.Contains(t, lines[1], "malformed")
	assert.True(t, strings.HasPrefix(lines[2], "fresh"))
	assert.Contains(t, lines[2], "from now")
	assert.True(t, strings.HasPrefix(lines[3], "stale"))
	assert.Contains(t, lines[3], "expired")
}

func TestDescribeFile(t *testing.T) {
	dir := t.TempDir()
	now := time.Unix(1_700_000_000, 0)

	tests := []struct {
		name    string
		content string
		size    string
		expires string
	}{
		{name: "未过期", content: "1700000060\nhello", size: "16 B", expires: "1 minute from now"},
		{name: "已过期", content: "1699999940\n", size: "11 B", expires: "expired 1 minute ago"},
		{name: "到期时刻", content: "1700000000\n", size: "11 B", expires: "expired now"},
		{name: "损坏", content: "oops\n", size: "5 B", expires: "malformed"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(dir, "f")
			require.NoError(t, os.WriteFile(path, []byte(tt.content), 0o600))
			size, expires := describeFile(path, now)
			assert.Equal(t, tt.size, size)
			assert.Equal(t, tt.expires, expires)
		})
	}

	size, expires := describeFile(filepath.Join(dir, "missing"), now)
	assert.Equal(t, "-", size)
	assert.True(t, strings.HasPrefix(expires, "error: "))
}

func TestConfigFile(t *testing.T) {
	root := t.TempDir()
	cfgPath := filepath.Join(t.TempDir(), "xtier.yaml")
	content := "root: " + root + "\nnamespace: fromcfg\ndefault_ttl: 1h\nlog:\n  level: warn\n"
	require.NoError(t, os.WriteFile(cfgPath, []byte(content), 0o600))

	code, _, stderr := runCLI(t, "-c", cfgPath, "set", "k", "v")
	require.Equal(t, exitOK, code, stderr)
	assert.FileExists(t, filepath.Join(root, "fromcfg", "k"))

	// 命令行参数覆盖配置文件
	code, _, _ = runCLI(t, "-c", cfgPath, "-n", "other", "get", "k")
	assert.Equal(t, exitNotFound, code)

	code, stdout, _ := runCLI(t, "-c", cfgPath, "get", "k")
	assert.Equal(t, exitOK, code)
	assert.Equal(t, "v\n", stdout)
}

func TestErrorTypes(t *testing.T) {
	assert.Equal(t, "bad", (&usageError{msg: "bad"}).Error())
	assert.Equal(t, "exit status 3", (&exitError{code: 3}).Error())
}

func TestJanitor(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, "default")
	writeRecord(t, filepath.Join(dir, "old"), "v", time.Now().Add(-time.Hour))
	writeRecord(t, filepath.Join(dir, "new"), "v", time.Now().Add(time.Hour))

	ctx, cancel := context.WithTimeout(context.Background(), 2500*time.Millisecond)
	defer cancel()

	var stdout, stderr bytes.Buffer
	code := run(ctx, []string{"xtierctl", "-r", root, "janitor", "--seconds", "--schedule", "* * * * * *"}, &stdout, &stderr)
	require.Equal(t, exitOK, code, stderr.String())
	assert.Contains(t, stdout.String(), "janitor 已启动")
	assert.Contains(t, stdout.String(), "janitor 已停止")
	assert.NoFileExists(t, filepath.Join(dir, "old"))
	assert.FileExists(t, filepath.Join(dir, "new"))
}

func TestJanitor_InvalidSchedule(t *testing.T) {
	code, _, _ := runCLI(t, "-r", t.TempDir(), "janitor", "--schedule", "sometimes")
	assert.Equal(t, exitUsage, code)
}
