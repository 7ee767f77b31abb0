package xloop

import "os"

// Task 是循环调度的单个文件 I/O 任务。
//
// 生命周期：注册 → 等待 → 激活（Open）→ 若干次 HandleRead/HandleWrite → 关闭。
// 任务完成或出错时应自行调用 HandleClose 释放文件，使 Closed 返回 true。
//
// HandleClose 可能在 Open 之前被调用（循环关闭时仍在等待队列中的任务），
// 实现需要容忍尚未打开的状态，且必须幂等。
type Task interface {
	// Key 标识任务操作的目标（通常是文件路径），同一 Key 同时最多一个活跃任务。
	Key() string

	// Open 打开任务的文件，激活时调用一次。返回的文件由任务持有并负责关闭。
	Open() (*os.File, error)

	// Readable 报告任务当前是否关注可读事件。
	Readable() bool

	// Writable 报告任务当前是否关注可写事件。
	Writable() bool

	HandleRead() error
	HandleWrite() error

	// HandleError 处理 I/O 错误。调用后若任务仍未关闭，循环会调用 HandleClose。
	HandleError(err error)

	HandleClose()
	Closed() bool
}

// entry 是一个活跃任务及其描述符。
type entry struct {
	task Task
	file *os.File
	fd   uintptr
}
