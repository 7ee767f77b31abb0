// Package xtier 提供内存 + 磁盘两级过期键值缓存。
//
// # 存储模型
//
// 每个 [Store] 持有一个独享的内存表，并绑定一个命名空间目录 <root>/<namespace>。
// 磁盘上每个 key 一个文件，内容为：
//
//	<十进制过期时间戳>\n<原始负载>
//
// 过期时间是 Unix 秒（可带小数），读取时惰性判断：now >= ExpiresAt 即过期，
// 没有后台定时清理。内存层的记录始终优先于磁盘记录。
//
// # 基本用法
//
//	s, err := xtier.New("/var/cache/app", xtier.WithNamespace("users"))
//	if err != nil {
//	    return err
//	}
//	defer s.Close()
//
//	// 持久化写入：先原子写磁盘，成功后更新内存
//	err = s.Store(ctx, "alice", []byte(`{"id":1}`), 5*time.Minute, true)
//
//	v, err := s.Get(ctx, "alice")
//	if errors.Is(err, xtier.ErrNotFound) {
//	    // 不存在、已过期或磁盘记录损坏
//	}
//
// # 异步磁盘任务
//
// [Store.SaveAll]、[Store.PurgeDisk] 的异步模式与 [Store.GetAsync] 只注册任务，
// 由 [Store.RunLoop] 在调用方选择的 goroutine 上推进（基于 poll 的单线程循环）：
//
//	n, _ := s.SaveAll(ctx, true)
//	_ = s.RunLoop(ctx, xloop.WithTimeout(time.Second))
//
// 异步任务的失败只记录日志和指标，不会传回调用方；异步读取失败表现为
// ReadSlot 返回 [ErrNotFound]。同一 key 上的异步任务与同步写入之间没有互斥，
// 调用方需要避免对正在同步写入的 key 发起异步操作。
//
// # 记忆化
//
// [Store.Memoize] 以 "<函数标识>(<参数指纹>)" 为 key 缓存函数结果，
// 默认开启 singleflight 合并相同参数的并发计算。
//
// # 配置
//
// [LoadConfig] / [ParseConfig] 基于 koanf 读取 YAML 或 JSON，
// [NewFromConfig] 按配置创建 Store，[WatchConfig] 在配置文件变化时热更新命名空间与默认 TTL。
//
// # 可观测性
//
// 通过 OpenTelemetry 上报命中、未命中、写入、淘汰与异步任务计数，
// 以及同步磁盘操作耗时（xtier.disk.duration）和 span。默认使用全局 Provider。
package xtier
