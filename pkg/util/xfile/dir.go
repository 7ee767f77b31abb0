package xfile

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// DefaultDirPerm 默认目录权限
//
// 0750 权限说明：
//   - 所有者：读写执行 (7)
//   - 组：读执行 (5)
//   - 其他：无权限 (0)
//
// 符合 gosec G301 安全建议
const DefaultDirPerm = 0750

// EnsureNamespaceDir 确保 root/namespace 目录存在并返回其路径。
//
// 参数：
//   - root: 缓存根目录，不能为空，不能包含空字节；不存在时一并创建
//   - namespace: 命名空间，必须通过 [ValidateName] 校验
//   - perm: 目录权限，必须包含所有者执行位（0100）
//
// 目录已存在时不会修改其权限。路径被非目录文件占用时返回 [ErrNotDirectory]。
func EnsureNamespaceDir(root, namespace string, perm os.FileMode) (string, error) {
	if root == "" {
		return "", fmt.Errorf("cache root is required: %w", ErrEmptyPath)
	}
	if containsNullByte(root) {
		return "", fmt.Errorf("cache root contains null byte: %w", ErrNullByte)
	}
	if err := ValidateName(namespace); err != nil {
		return "", fmt.Errorf("namespace %q: %w", namespace, err)
	}
	if perm&0100 == 0 {
		return "", fmt.Errorf("directory permission %04o missing owner execute bit: %w", perm, ErrInvalidPerm)
	}

	dir := filepath.Join(filepath.Clean(root), namespace)
	info, err := os.Stat(dir)
	switch {
	case err == nil:
		if !info.IsDir() {
			return "", fmt.Errorf("%s: %w", dir, ErrNotDirectory)
		}
		return dir, nil
	case isNotDir(err):
		// 根目录或其上级是普通文件
		return "", fmt.Errorf("%s: %w: %w", dir, ErrNotDirectory, err)
	case !errors.Is(err, fs.ErrNotExist):
		return "", err
	}

	if err := os.MkdirAll(dir, perm); err != nil {
		// MkdirAll 在路径上有普通文件时返回 ENOTDIR 或 EEXIST
		if info, statErr := os.Stat(dir); statErr == nil && !info.IsDir() {
			return "", fmt.Errorf("%s: %w", dir, ErrNotDirectory)
		}
		if errors.Is(err, fs.ErrExist) || isNotDir(err) {
			return "", fmt.Errorf("%s: %w: %w", dir, ErrNotDirectory, err)
		}
		return "", err
	}
	return dir, nil
}

// ListFiles 返回 dir 下普通文件的名字（按名字排序）。
// 子目录、符号链接、设备文件等都会被跳过。
func ListFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.Type().IsRegular() {
			names = append(names, e.Name())
		}
	}
	return names, nil
}
