// Package lifecycle 提供运行时调度相关的子包。
//
// 子包列表：
//   - xloop: 基于 poll 的单线程非阻塞任务循环，驱动异步磁盘任务
package lifecycle
