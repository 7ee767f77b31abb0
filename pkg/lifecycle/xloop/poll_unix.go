//go:build unix

package xloop

import (
	"errors"
	"fmt"
	"math"
	"os"
	"time"

	"golang.org/x/sys/unix"
)

// 系统调用函数变量，测试中可替换以覆盖错误路径。
// 替换包级变量的测试不可使用 t.Parallel()。
var unixPoll = unix.Poll

// descriptor 取出文件的原始描述符。
// 使用 SyscallConn 而不是 Fd，避免把描述符切换为阻塞模式。
func descriptor(f *os.File) (uintptr, error) {
	rc, err := f.SyscallConn()
	if err != nil {
		return 0, err
	}
	var fd uintptr
	if err := rc.Control(func(s uintptr) { fd = s }); err != nil {
		return 0, err
	}
	return fd, nil
}

func pollTimeout(d time.Duration) int {
	if d < 0 {
		return -1
	}
	ms := d.Milliseconds()
	if ms == 0 && d > 0 {
		ms = 1
	}
	if ms > math.MaxInt32 {
		return math.MaxInt32
	}
	return int(ms)
}

func pollEntries(active []*entry, timeout time.Duration) ([]readiness, error) {
	fds := make([]unix.PollFd, len(active))
	for i, e := range active {
		fds[i].Fd = int32(e.fd) //nolint:gosec // 描述符取自 os.File，范围在 int32 内
		if e.task.Readable() {
			fds[i].Events |= unix.POLLIN
		}
		if e.task.Writable() {
			fds[i].Events |= unix.POLLOUT
		}
	}

	if _, err := unixPoll(fds, pollTimeout(timeout)); err != nil {
		if errors.Is(err, unix.EINTR) {
			return nil, errInterrupted
		}
		return nil, fmt.Errorf("%w: %w", ErrPoll, err)
	}

	events := make([]readiness, len(fds))
	for i, fd := range fds {
		re := fd.Revents
		if re&(unix.POLLIN|unix.POLLHUP) != 0 {
			events[i] |= readyRead
		}
		if re&unix.POLLOUT != 0 {
			events[i] |= readyWrite
		}
		if re&(unix.POLLERR|unix.POLLNVAL) != 0 {
			events[i] |= readyError
		}
	}
	return events, nil
}
