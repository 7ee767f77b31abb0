// Package xfile 提供缓存目录与缓存文件名相关的文件系统工具。
//
// # 命名空间目录
//
// [EnsureNamespaceDir] 将 (root, namespace) 映射为 root/namespace 目录，
// 不存在时按给定权限创建；若该路径已被非目录文件占用，返回 [ErrNotDirectory]。
// 目录权限必须包含所有者执行位，否则目录无法遍历，返回 [ErrInvalidPerm]。
//
// # 文件名校验
//
// 缓存 key 直接作为文件名使用，不做任何转义。[ValidateName] 只接受单个路径段：
//   - 非空，且不包含空字节（\x00）
//   - 不超过 [MaxNameLen] 字节
//   - 不包含 '/' 或 '\'（两种分隔符都拒绝，避免跨平台歧义）
//   - 不是 "." 或 ".."
//   - 不以 Windows 驱动器前缀（如 "C:"）开头
//
// 满足以上条件的名字与目录拼接后一定位于该目录内，无需再做路径穿越检查。
// 以 ".." 开头的普通文件名（如 "..config"）是合法的。
//
// # 列举
//
// [ListFiles] 返回目录下的普通文件名（按名字排序），跳过子目录、符号链接等。
//
// # 错误处理
//
// 预定义错误变量支持 [errors.Is] 判断：
//
//	if _, err := xfile.EnsureNamespaceDir(root, "users", 0750); errors.Is(err, xfile.ErrNotDirectory) {
//	    // root/users 被普通文件占用
//	}
package xfile
