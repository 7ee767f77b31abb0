package xloop

import (
	"errors"
	"io"
	"os"
	"sync"
)

// readTask 分块读取文件直到 EOF，用于驱动循环。
type readTask struct {
	key   string
	path  string
	chunk int

	// 打开计数器，用于观察同时打开的文件数
	open *openCounter

	file   *os.File
	data   []byte
	closed bool
	errs   []error

	closeCalls int
	onRead     func() // 测试钩子，在每次 HandleRead 开始时调用
	readErr    error
}

func newReadTask(key, path string) *readTask {
	return &readTask{key: key, path: path, chunk: 4096}
}

func (t *readTask) Key() string { return t.key }

func (t *readTask) Open() (*os.File, error) {
	f, err := os.Open(t.path)
	if err != nil {
		return nil, err
	}
	t.file = f
	if t.open != nil {
		t.open.inc()
	}
	return f, nil
}

func (t *readTask) Readable() bool { return !t.closed }
func (t *readTask) Writable() bool { return false }

func (t *readTask) HandleRead() error {
	if t.onRead != nil {
		t.onRead()
	}
	if t.readErr != nil {
		return t.readErr
	}
	buf := make([]byte, t.chunk)
	n, err := t.file.Read(buf)
	t.data = append(t.data, buf[:n]...)
	if errors.Is(err, io.EOF) || (err == nil && n == 0) {
		t.HandleClose()
		return nil
	}
	return err
}

func (t *readTask) HandleWrite() error { return nil }

func (t *readTask) HandleError(err error) {
	t.errs = append(t.errs, err)
	t.HandleClose()
}

func (t *readTask) HandleClose() {
	t.closeCalls++
	if t.closed {
		return
	}
	t.closed = true
	if t.file != nil {
		_ = t.file.Close()
		if t.open != nil {
			t.open.dec()
		}
	}
}

func (t *readTask) Closed() bool { return t.closed }

type openCounter struct {
	mu   sync.Mutex
	cur  int
	peak int
}

func (c *openCounter) inc() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cur++
	c.peak = max(c.peak, c.cur)
}

func (c *openCounter) dec() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cur--
}

// panicTask 在读回调中 panic。
type panicTask struct {
	readTask
}

func (t *panicTask) HandleRead() error {
	panic("boom")
}

// writeTask 把数据写入文件。
type writeTask struct {
	readTask
	pending []byte
}

func (t *writeTask) Open() (*os.File, error) {
	f, err := os.OpenFile(t.path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return nil, err
	}
	t.file = f
	return f, nil
}

func (t *writeTask) Readable() bool { return false }
func (t *writeTask) Writable() bool { return !t.closed }

func (t *writeTask) HandleWrite() error {
	n, err := t.file.Write(t.pending[:min(len(t.pending), t.chunk)])
	t.pending = t.pending[n:]
	if err != nil {
		return err
	}
	if len(t.pending) == 0 {
		t.HandleClose()
	}
	return nil
}

var _ Task = (*readTask)(nil)
var _ Task = (*writeTask)(nil)
var _ Task = (*panicTask)(nil)

