package xfile

import (
	"fmt"
	"strings"
)

// MaxNameLen 单个文件名的最大字节数（常见文件系统的 NAME_MAX）。
const MaxNameLen = 255

// containsNullByte 检测路径是否包含空字节。
// Linux 内核在 VFS 层会在空字节处截断路径，导致 Go 代码与操作系统看到的路径不一致。
func containsNullByte(path string) bool {
	return strings.ContainsRune(path, 0)
}

// hasWindowsDrivePrefix 检测 "C:" 形式的驱动器前缀。
// 在 Windows 上 "C:foo" 是驱动器相对路径，拼接后可能逃逸出目标目录。
func hasWindowsDrivePrefix(name string) bool {
	return len(name) >= 2 && isASCIILetter(name[0]) && name[1] == ':'
}

func isASCIILetter(c byte) bool {
	return (c >= 'A' && c <= 'Z') || (c >= 'a' && c <= 'z')
}

// ValidateName 校验 name 能否直接作为目录内的文件名使用。
//
// 同时将 '/' 和 '\' 视为分隔符，即使在 Linux 上也拒绝反斜杠，
// 避免缓存目录在不同平台间共享时语义不一致。
func ValidateName(name string) error {
	if name == "" {
		return fmt.Errorf("name is required: %w", ErrEmptyPath)
	}
	if containsNullByte(name) {
		return fmt.Errorf("name contains null byte: %w", ErrNullByte)
	}
	if len(name) > MaxNameLen {
		return fmt.Errorf("name is %d bytes, limit is %d: %w", len(name), MaxNameLen, ErrInvalidName)
	}
	if strings.ContainsAny(name, `/\`) {
		return fmt.Errorf("name %q contains a path separator: %w", name, ErrInvalidName)
	}
	if name == "." || name == ".." {
		return fmt.Errorf("name %q is a relative directory: %w", name, ErrInvalidName)
	}
	if hasWindowsDrivePrefix(name) {
		return fmt.Errorf("name %q has a drive prefix: %w", name, ErrInvalidName)
	}
	return nil
}
