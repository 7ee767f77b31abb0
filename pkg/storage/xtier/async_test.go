package xtier

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omeyang/xtier/pkg/lifecycle/xloop"
)

func TestSaveAll_Async(t *testing.T) {
	s, _ := newTestStore(t)
	for _, k := range []string{"a", "b", "c"} {
		require.NoError(t, s.Store(ctx, k, []byte("v-"+k), time.Minute, false))
	}

	n, err := s.SaveAll(ctx, true)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, 3, s.Loop().Len())
	assert.False(t, fileExists(t, s, "a"), "nothing is written before the loop runs")

	require.NoError(t, s.RunLoop(ctx))
	assert.Equal(t, 0, s.Loop().Len())
	for _, k := range []string{"a", "b", "c"} {
		assert.Equal(t, "v-"+k, string(readRecord(t, s, k).Payload))
	}
}

func TestSaveAll_AsyncLargePayload(t *testing.T) {
	s, _ := newTestStore(t)
	payload := bytes.Repeat([]byte("0123456789abcdef"), 2500)
	require.NoError(t, s.Store(ctx, "big", payload, time.Minute, false))

	_, err := s.SaveAll(ctx, true)
	require.NoError(t, err)
	require.NoError(t, s.RunLoop(ctx))
	assert.Equal(t, payload, readRecord(t, s, "big").Payload)

	slot, err := s.GetAsync("big")
	require.NoError(t, err)
	require.NoError(t, s.RunLoop(ctx))
	got, err := slot.Value()
	require.NoError(t, err)
	assert.Equal(t, payload, got)
}

func TestPurgeDisk_Async(t *testing.T) {
	s, _ := newTestStore(t)
	cutoff := testEpoch.Add(time.Hour)
	writeRecord(t, s, "old", "x", cutoff.Add(-10*time.Second))
	writeRecord(t, s, "edge", "x", cutoff)
	writeRecord(t, s, "new", "x", cutoff.Add(10*time.Second))
	writeRaw(t, s, "bad", "garbage\npayload")

	n, err := s.PurgeDisk(ctx, cutoff, true)
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	assert.True(t, fileExists(t, s, "old"))

	require.NoError(t, s.RunLoop(ctx))
	assert.False(t, fileExists(t, s, "old"))
	assert.False(t, fileExists(t, s, "edge"))
	assert.False(t, fileExists(t, s, "bad"))
	assert.True(t, fileExists(t, s, "new"))
}

func TestPurgeDisk_AsyncLongPayloadReadsHeaderOnly(t *testing.T) {
	s, _ := newTestStore(t)
	writeRecord(t, s, "k", string(bytes.Repeat([]byte("x"), 64<<10)), testEpoch.Add(time.Hour))

	_, err := s.PurgeDisk(ctx, testEpoch, true)
	require.NoError(t, err)
	require.NoError(t, s.RunLoop(ctx))
	assert.True(t, fileExists(t, s, "k"))
}

func TestGetAsync(t *testing.T) {
	tests := []struct {
		name    string
		setup   func(t *testing.T, s *Store)
		want    string
		wantErr error
	}{
		{
			name:  "命中",
			setup: func(t *testing.T, s *Store) { writeRecord(t, s, "k", "v", testEpoch.Add(time.Minute)) },
			want:  "v",
		},
		{
			name:    "文件不存在",
			setup:   func(*testing.T, *Store) {},
			wantErr: ErrNotFound,
		},
		{
			name:    "已过期",
			setup:   func(t *testing.T, s *Store) { writeRecord(t, s, "k", "v", testEpoch) },
			wantErr: ErrNotFound,
		},
		{
			name:    "损坏",
			setup:   func(t *testing.T, s *Store) { writeRaw(t, s, "k", "oops\nv") },
			wantErr: ErrNotFound,
		},
		{
			name:  "仅有头部",
			setup: func(t *testing.T, s *Store) { writeRaw(t, s, "k", "1800000000") },
			want:  "",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, _ := newTestStore(t)
			tt.setup(t, s)

			slot, err := s.GetAsync("k")
			require.NoError(t, err)
			assert.Equal(t, "k", slot.Key())
			_, err = slot.Value()
			assert.ErrorIs(t, err, ErrPending)

			require.NoError(t, s.RunLoop(ctx))
			select {
			case <-slot.Done():
			default:
				t.Fatal("slot not finished after the loop drained")
			}

			got, err := slot.Value()
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Nil(t, got)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, string(got))
		})
	}
}

// 异步读取不查内存层，也不删除过期文件
func TestGetAsync_DiskOnly(t *testing.T) {
	s, _ := newTestStore(t)
	require.NoError(t, s.Store(ctx, "mem", []byte("v"), time.Minute, false))
	writeRecord(t, s, "stale", "v", testEpoch.Add(-time.Second))

	memSlot, err := s.GetAsync("mem")
	require.NoError(t, err)
	staleSlot, err := s.GetAsync("stale")
	require.NoError(t, err)
	require.NoError(t, s.RunLoop(ctx))

	_, err = memSlot.Value()
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = staleSlot.Value()
	assert.ErrorIs(t, err, ErrNotFound)
	assert.True(t, fileExists(t, s, "stale"))
}

func TestGetAsync_AfterAsyncWrite(t *testing.T) {
	s, _ := newTestStore(t)
	require.NoError(t, s.Store(ctx, "k", []byte("v"), time.Minute, false))
	_, err := s.SaveAll(ctx, true)
	require.NoError(t, err)

	// 同一路径的任务按注册顺序执行
	slot, err := s.GetAsync("k")
	require.NoError(t, err)
	require.NoError(t, s.RunLoop(ctx))

	got, err := slot.Value()
	require.NoError(t, err)
	assert.Equal(t, "v", string(got))
}

func TestGetAsync_InvalidKey(t *testing.T) {
	s, _ := newTestStore(t)
	_, err := s.GetAsync("")
	assert.ErrorIs(t, err, ErrEmptyKey)
	_, err = s.GetAsync("a/b")
	assert.ErrorIs(t, err, ErrInvalidKey)
}

func TestReadSlot_Wait(t *testing.T) {
	s, _ := newTestStore(t)
	writeRecord(t, s, "k", "v", testEpoch.Add(time.Minute))

	slot, err := s.GetAsync("k")
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- s.RunLoop(context.Background()) }()

	waitCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	got, err := slot.Wait(waitCtx)
	require.NoError(t, err)
	assert.Equal(t, "v", string(got))
	require.NoError(t, <-done)
}

func TestReadSlot_WaitCanceled(t *testing.T) {
	s, _ := newTestStore(t)
	slot, err := s.GetAsync("k")
	require.NoError(t, err)

	waitCtx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = slot.Wait(waitCtx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestClose_FinishesPendingSlots(t *testing.T) {
	s, _ := newTestStore(t)
	writeRecord(t, s, "k", "v", testEpoch.Add(time.Minute))

	slot, err := s.GetAsync("k")
	require.NoError(t, err)
	require.NoError(t, s.Close())

	_, err = slot.Value()
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSaveAll_AsyncInterruptedLeavesNoPartialRecord(t *testing.T) {
	s, clock := newTestStore(t)
	payload := bytes.Repeat([]byte("x"), 20<<10)
	require.NoError(t, s.Store(ctx, "k", payload, time.Minute, false))

	_, err := s.SaveAll(ctx, true)
	require.NoError(t, err)
	_, err = s.Loop().RunOnce(100 * time.Millisecond)
	require.NoError(t, err)
	require.True(t, fileExists(t, s, "k"), "first chunk written")
	require.NoError(t, s.Close())

	assert.False(t, fileExists(t, s, "k"))
	reopened, err := New(s.Root(), WithClock(clock))
	require.NoError(t, err)
	defer func() { _ = reopened.Close() }()
	_, err = reopened.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSaveAll_AsyncNeverStartedKeepsOldRecord(t *testing.T) {
	s, _ := newTestStore(t)
	writeRecord(t, s, "k", "old", testEpoch.Add(time.Minute))
	require.NoError(t, s.Store(ctx, "k", []byte("new"), time.Minute, false))

	_, err := s.SaveAll(ctx, true)
	require.NoError(t, err)
	require.NoError(t, s.Close())

	assert.Equal(t, "old", string(readRecord(t, s, "k").Payload))
}

func TestRunLoop_Count(t *testing.T) {
	s, _ := newTestStore(t)
	writeRecord(t, s, "k", "v", testEpoch.Add(time.Minute))
	slot, err := s.GetAsync("k")
	require.NoError(t, err)

	// 第一轮读到数据但尚未遇到 EOF
	require.NoError(t, s.RunLoop(ctx, xloop.WithCount(1)))
	_, err = slot.Value()
	assert.ErrorIs(t, err, ErrPending)

	require.NoError(t, s.RunLoop(ctx))
	got, err := slot.Value()
	require.NoError(t, err)
	assert.Equal(t, "v", string(got))
}

func TestRunLoop_Canceled(t *testing.T) {
	s, _ := newTestStore(t)
	_, err := s.GetAsync("k")
	require.NoError(t, err)

	canceled, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, s.RunLoop(canceled), context.Canceled)
	assert.Equal(t, 1, s.Loop().Len())
}
