package xtier

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"

	"github.com/omeyang/xtier/pkg/storage/xrecord"
)

// testEpoch 测试使用的固定起始时间。
var testEpoch = time.Unix(1_700_000_000, 0)

func newTestStore(t *testing.T, opts ...Option) (*Store, *clockwork.FakeClock) {
	t.Helper()
	clock := clockwork.NewFakeClockAt(testEpoch)
	opts = append([]Option{WithClock(clock), WithPollTimeout(100 * time.Millisecond)}, opts...)
	s, err := New(t.TempDir(), opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s, clock
}

// writeRecord 直接在命名空间目录中写入一条记录。
func writeRecord(t *testing.T, s *Store, key, payload string, expiresAt time.Time) {
	t.Helper()
	data, err := xrecord.Marshal(xrecord.Record{Payload: []byte(payload), ExpiresAt: xrecord.Seconds(expiresAt)})
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(s.Dir(), key), data, 0o600))
}

func writeRaw(t *testing.T, s *Store, key, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(s.Dir(), key), []byte(content), 0o600))
}

func fileExists(t *testing.T, s *Store, key string) bool {
	t.Helper()
	_, err := os.Stat(filepath.Join(s.Dir(), key))
	if os.IsNotExist(err) {
		return false
	}
	require.NoError(t, err)
	return true
}

func readRecord(t *testing.T, s *Store, key string) xrecord.Record {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(s.Dir(), key))
	require.NoError(t, err)
	rec, err := xrecord.Unmarshal(data)
	require.NoError(t, err)
	return rec
}
