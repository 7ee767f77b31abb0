//go:build unix

package xtier

import "golang.org/x/sys/unix"

// nonblockFlag 异步任务打开文件时附加的标志。
const nonblockFlag = unix.O_NONBLOCK
