// Package xlog 基于 log/slog 构建 Logger，支持文件轮转。
//
// # 创建 Logger
//
// 使用 Builder 模式（first-error-wins：遇到第一个配置错误后，Build 返回该错误）：
//
//	logger, cleanup, err := xlog.New().
//	    SetLevelString("debug").
//	    SetFormat("json").
//	    SetRotation("/var/log/xtier/app.log", xlog.WithMaxSize(50)).
//	    Build()
//	if err != nil {
//	    return err
//	}
//	defer cleanup()
//
// 返回标准 *slog.Logger，可直接注入 xtier.WithLogger。
// cleanup 关闭轮转文件，幂等。
//
// # 日志级别
//
// [ParseLevel] 支持 debug/info/warn/warning/error（大小写不敏感，自动 TrimSpace）。
// [Builder.LevelVar] 返回的 *slog.LevelVar 可在运行时调整级别。
//
// # 文件轮转
//
// [Builder.SetRotation] 使用 gopkg.in/natefinch/lumberjack.v2 按大小轮转，
// 备份数量与保留天数可配置，父目录不存在时以 0750 创建。
package xlog
