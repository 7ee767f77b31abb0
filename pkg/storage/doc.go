// Package storage 提供数据存储相关的子包。
//
// 子包列表：
//   - xrecord: 磁盘记录编解码，<过期时间戳>\n<负载>
//   - xtier: 内存 + 磁盘两级过期缓存，支持异步持久化、记忆化与配置热更新
//
// 设计原则：
//   - 过期惰性判断，不依赖后台定时器
//   - 同步写入原子化，读者不会看到半写的文件
//   - 内置可观测性（指标、追踪）
package storage
