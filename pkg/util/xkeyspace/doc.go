// Package xkeyspace 负责缓存 key 到磁盘路径的映射，以及记忆化函数的 key 派生。
//
// # 路径映射
//
// [Path] 将 key 原样作为文件名拼接到命名空间目录下，不做转义。
// key 的合法性由调用方通过 xfile.ValidateName 保证。
//
// # Key 派生
//
// 记忆化函数的 key 形如 "<identity>(<fingerprint>)"：
//   - identity 默认取函数的运行时符号名（[FuncIdentity]），路径分隔符替换为 '_'
//   - fingerprint 是参数序列的摘要（[Fingerprint]），对参数顺序敏感
//
// 派生的 key 不超过 xfile.MaxNameLen 字节。identity 过长时截断，并追加完整 identity 的
// xxhash 摘要（"<前缀>~<16 位十六进制>(<fingerprint>)"），同前缀的不同函数不会共用 key。
//
// 参数按 %#v 格式化后逐个写入哈希，map 的键由 fmt 排序，因此相同内容的 map 指纹一致。
// 指针参数按地址格式化，跨进程不稳定，应传值。
//
// # 哈希算法
//
//   - [HashSHA256]：默认，抗碰撞，64 位十六进制
//   - [HashXXH64]：基于 xxhash，速度快，16 位十六进制，适合参数空间可控的场景
package xkeyspace
