package xtier

import (
	"bytes"
	"context"
	"errors"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"slices"

	"github.com/jonboulle/clockwork"

	"github.com/omeyang/xtier/pkg/lifecycle/xloop"
	"github.com/omeyang/xtier/pkg/storage/xrecord"
)

const (
	// writeChunk 每次可写事件最多写入的字节数。
	writeChunk = 8 << 10
	// readChunk 异步读取每次读取的字节数。
	readChunk = 8 << 10
)

// taskEnv 是异步任务共享的依赖。
type taskEnv struct {
	logger   *slog.Logger
	inst     *instruments
	clock    clockwork.Clock
	filePerm os.FileMode
}

// fileTask 是三类异步任务共有的文件状态。
type fileTask struct {
	env    *taskEnv
	kind   string
	path   string
	file   *os.File
	closed bool
	err    error
}

func (t *fileTask) Key() string  { return t.path }
func (t *fileTask) Closed() bool { return t.closed }

// release 关闭文件并标记任务结束。已结束时返回 false。
func (t *fileTask) release() bool {
	if t.closed {
		return false
	}
	t.closed = true
	if t.file != nil {
		if err := t.file.Close(); err != nil && t.err == nil {
			t.err = err
		}
		t.file = nil
	}
	return true
}

func (t *fileTask) recordError(err error) {
	if t.err == nil {
		t.err = err
	}
}

// report 记录任务结果。失败的任务只记日志与指标，不会传回调用方。
func (t *fileTask) report(completed bool) {
	switch {
	case t.err != nil:
		if !errors.Is(t.err, fs.ErrNotExist) || t.kind != taskRead {
			t.env.logger.Warn("xtier async task failed",
				slog.String("kind", t.kind),
				slog.String("path", t.path),
				slog.Any("error", t.err),
			)
		}
		t.env.inst.taskDone(t.kind, resultError)
	case !completed:
		t.env.inst.taskDone(t.kind, resultAborted)
	default:
		t.env.inst.taskDone(t.kind, resultOK)
	}
}

// =============================================================================
// writeTask
// =============================================================================

// writeTask 把已编码的记录写入文件，每个可写事件最多写 writeChunk 字节。
type writeTask struct {
	fileTask
	data []byte
}

func newWriteTask(env *taskEnv, path string, data []byte) *writeTask {
	return &writeTask{fileTask: fileTask{env: env, kind: taskWrite, path: path}, data: data}
}

func (t *writeTask) Open() (*os.File, error) {
	f, err := os.OpenFile(t.path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC|nonblockFlag, t.env.filePerm)
	if err != nil {
		return nil, err
	}
	t.file = f
	return f, nil
}

func (t *writeTask) Readable() bool    { return false }
func (t *writeTask) Writable() bool    { return !t.closed }
func (t *writeTask) HandleRead() error { return nil }

func (t *writeTask) HandleWrite() error {
	n, err := t.file.Write(t.data[:min(len(t.data), writeChunk)])
	t.data = t.data[n:]
	if err != nil {
		return err
	}
	if len(t.data) == 0 {
		t.HandleClose()
	}
	return nil
}

func (t *writeTask) HandleError(err error) {
	t.recordError(err)
	t.HandleClose()
}

// HandleClose 结束写入。已打开但未完整写入（中途关闭或出错）的文件被删除，
// 记录格式没有长度字段，截断的记录否则会被当作有效命中。
func (t *writeTask) HandleClose() {
	opened := t.file != nil
	if !t.release() {
		return
	}
	if opened && (len(t.data) != 0 || t.err != nil) {
		if err := os.Remove(t.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			t.recordError(err)
		}
	}
	t.report(len(t.data) == 0)
}

// =============================================================================
// purgeTask
// =============================================================================

// purgeTask 只读取记录头，关闭时删除头部无法解析或已过期（<= cutoff）的文件。
type purgeTask struct {
	fileTask
	cutoff   float64
	header   []byte
	complete bool
}

func newPurgeTask(env *taskEnv, path string, cutoff float64) *purgeTask {
	return &purgeTask{fileTask: fileTask{env: env, kind: taskPurge, path: path}, cutoff: cutoff}
}

func (t *purgeTask) Open() (*os.File, error) {
	f, err := os.OpenFile(t.path, os.O_RDONLY|nonblockFlag, 0)
	if err != nil {
		return nil, err
	}
	t.file = f
	return f, nil
}

func (t *purgeTask) Readable() bool     { return !t.closed }
func (t *purgeTask) Writable() bool     { return false }
func (t *purgeTask) HandleWrite() error { return nil }

func (t *purgeTask) HandleRead() error {
	var buf [xrecord.HeaderChunk]byte
	n, err := t.file.Read(buf[:])
	t.header = append(t.header, buf[:n]...)
	eof := errors.Is(err, io.EOF) || (err == nil && n == 0)
	if err != nil && !eof {
		return err
	}
	if eof || bytes.IndexByte(t.header, '\n') >= 0 || len(t.header) > xrecord.MaxHeaderLen {
		t.complete = true
		t.HandleClose()
	}
	return nil
}

func (t *purgeTask) HandleError(err error) {
	t.recordError(err)
	t.HandleClose()
}

func (t *purgeTask) HandleClose() {
	if !t.release() {
		return
	}
	if !t.complete || t.err != nil {
		t.report(false)
		return
	}

	line, _, _ := bytes.Cut(t.header, []byte{'\n'})
	exp, err := xrecord.ParseExpiry(line)
	if err == nil && exp > t.cutoff {
		t.report(true)
		return
	}
	if rmErr := os.Remove(t.path); rmErr != nil && !errors.Is(rmErr, fs.ErrNotExist) {
		t.recordError(rmErr)
		t.report(true)
		return
	}
	t.env.inst.evicted(context.Background(), tierDisk, 1)
	t.env.logger.Debug("xtier purged disk entry", slog.String("path", t.path), slog.Bool("malformed", err != nil))
	t.report(true)
}

// =============================================================================
// readTask
// =============================================================================

// readTask 读取整个文件，关闭时解码并把结果写入 ReadSlot。
type readTask struct {
	fileTask
	slot     *ReadSlot
	buf      []byte
	complete bool
}

func newReadTask(env *taskEnv, path string, slot *ReadSlot) *readTask {
	return &readTask{fileTask: fileTask{env: env, kind: taskRead, path: path}, slot: slot}
}

func (t *readTask) Open() (*os.File, error) {
	f, err := os.OpenFile(t.path, os.O_RDONLY|nonblockFlag, 0)
	if err != nil {
		return nil, err
	}
	t.file = f
	return f, nil
}

func (t *readTask) Readable() bool     { return !t.closed }
func (t *readTask) Writable() bool     { return false }
func (t *readTask) HandleWrite() error { return nil }

func (t *readTask) HandleRead() error {
	t.buf = slices.Grow(t.buf, readChunk)
	n, err := t.file.Read(t.buf[len(t.buf):cap(t.buf)])
	t.buf = t.buf[:len(t.buf)+n]
	if errors.Is(err, io.EOF) || (err == nil && n == 0) {
		t.complete = true
		t.HandleClose()
		return nil
	}
	return err
}

func (t *readTask) HandleError(err error) {
	t.recordError(err)
	t.HandleClose()
}

func (t *readTask) HandleClose() {
	if !t.release() {
		return
	}
	if !t.complete || t.err != nil {
		t.slot.finish(nil, ErrNotFound)
		t.report(false)
		return
	}

	rec, err := xrecord.Unmarshal(t.buf)
	switch {
	case err != nil:
		t.env.logger.Warn("xtier async read found malformed record", slog.String("path", t.path), slog.Any("error", err))
		t.slot.finish(nil, ErrNotFound)
	case rec.Expired(xrecord.Seconds(t.env.clock.Now())):
		t.slot.finish(nil, ErrNotFound)
	default:
		t.slot.finish(rec.Payload, nil)
	}
	t.report(true)
}

var (
	_ xloop.Task = (*writeTask)(nil)
	_ xloop.Task = (*purgeTask)(nil)
	_ xloop.Task = (*readTask)(nil)
)
