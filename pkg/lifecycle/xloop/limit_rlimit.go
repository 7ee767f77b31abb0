//go:build linux || darwin

package xloop

import "golang.org/x/sys/unix"

// fdHeadroom 为进程其他用途（日志、监听套接字等）预留的描述符数。
const fdHeadroom = 64

var getrlimit = unix.Getrlimit

// clampOpenFiles 把上限限制在 RLIMIT_NOFILE 软限制减去余量之内，最小为 1。
// 查询失败时原样返回。
func clampOpenFiles(n int) int {
	var rl unix.Rlimit
	if err := getrlimit(unix.RLIMIT_NOFILE, &rl); err != nil {
		return n
	}
	// RLIM_INFINITY 为全 1，必然大于 n+fdHeadroom
	if rl.Cur > uint64(n)+fdHeadroom { //nolint:gosec // n > 0
		return n
	}
	if rl.Cur <= fdHeadroom {
		return 1
	}
	return int(rl.Cur - fdHeadroom) //nolint:gosec // rl.Cur <= n+fdHeadroom，不会溢出
}
