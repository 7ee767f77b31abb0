//go:build !unix

package xloop

import (
	"os"
	"time"
)

// descriptor 在非 Unix 平台上不需要真实描述符。
func descriptor(*os.File) (uintptr, error) {
	return 0, nil
}

// pollEntries 直接按任务声明的读写意图报告就绪。
// 没有任何任务就绪时休眠 timeout，避免空转。
func pollEntries(active []*entry, timeout time.Duration) ([]readiness, error) {
	events := make([]readiness, len(active))
	ready := false
	for i, e := range active {
		if e.task.Readable() {
			events[i] |= readyRead
			ready = true
		}
		if e.task.Writable() {
			events[i] |= readyWrite
			ready = true
		}
	}
	if !ready && timeout > 0 {
		time.Sleep(timeout)
	}
	return events, nil
}
