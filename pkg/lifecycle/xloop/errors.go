package xloop

import "errors"

var (
	// ErrClosed 表示循环已关闭。
	ErrClosed = errors.New("xloop: loop closed")

	// ErrRunning 表示已有 goroutine 在推进循环。
	ErrRunning = errors.New("xloop: loop already running")

	// ErrNilTask 表示注册的任务为 nil。
	ErrNilTask = errors.New("xloop: nil task")

	// ErrPoll 表示就绪等待失败，或描述符被内核报告为错误/无效。
	ErrPoll = errors.New("xloop: poll failed")

	// ErrTaskPanic 表示任务回调发生 panic，已被恢复并转交 HandleError。
	ErrTaskPanic = errors.New("xloop: task panicked")
)
