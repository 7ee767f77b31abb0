//go:build unix

package xfile

import (
	"errors"

	"golang.org/x/sys/unix"
)

// isNotDir 报告 err 是否为 ENOTDIR（路径中间段是普通文件）。
func isNotDir(err error) bool {
	return errors.Is(err, unix.ENOTDIR)
}
