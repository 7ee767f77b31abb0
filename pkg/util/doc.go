// Package util 提供通用工具相关的子包。
//
// 子包列表：
//   - xfile: 命名空间目录创建、文件名校验与目录列举
//   - xkeyspace: 缓存 key 到文件路径的映射，函数标识 + 参数指纹的 key 派生
//
// 设计原则：
//   - 拒绝路径遍历，key 只能是单个文件名
//   - 纯函数，无全局状态
package util
