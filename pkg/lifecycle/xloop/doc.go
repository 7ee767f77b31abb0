// Package xloop 提供单线程、基于就绪通知的文件 I/O 事件循环。
//
// 调用方把实现了 [Task] 的任务注册到 [Loop]，由一个 goroutine 调用
// [Loop.Run] 或 [Loop.RunOnce] 推进。每轮迭代：
//
//  1. 按 FIFO 顺序激活等待中的任务，直到活跃任务数达到上限；
//     同一 Key 同时最多只有一个活跃任务，后来者留在队列中等待
//  2. 对活跃任务的文件描述符调用 poll（Readable 关注 POLLIN，Writable 关注 POLLOUT）
//  3. POLLIN/POLLHUP 分发到 HandleRead，POLLOUT 分发到 HandleWrite，
//     POLLERR/POLLNVAL 分发到 HandleError；POLLPRI 忽略
//  4. 移除已关闭的任务
//
// # 文件描述符上限
//
// 任务在激活时才调用 [Task.Open] 打开文件，因此同时打开的描述符数严格受
// [WithMaxOpenFiles] 约束（默认 1000）。Unix 平台上该值还会被限制在
// RLIMIT_NOFILE 软限制以内（预留少量余量给进程其他用途）。
//
// # 并发
//
// [Loop.Register] 可从任意 goroutine 调用。同一时刻只能有一个 goroutine 推进循环，
// 并发调用 Run/RunOnce 返回 [ErrRunning]。任务的回调只在推进循环的 goroutine 上执行。
//
// # 平台
//
// Unix 平台使用 golang.org/x/sys/unix.Poll。其他平台使用退化实现：
// 直接按任务声明的读写意图报告就绪（普通文件总是就绪）。
package xloop
