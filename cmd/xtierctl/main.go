// xtierctl 是 xtier 磁盘缓存目录的检查与维护工具。
//
// 用法:
//
//	xtierctl [全局选项] <命令> [命令参数]
//
// 全局选项:
//
//	-c, --config     配置文件路径（.yaml/.yml/.json）
//	-r, --root       缓存根目录（覆盖配置文件）
//	-n, --namespace  命名空间（默认: default）
//	    --log-level  日志级别（debug/info/warn/error）
//
// 命令:
//
//	get <key>             读取 key 并输出负载
//	set <key> <value>     写入 key（--ttl 过期时间，--memory-only 不落盘）
//	purge                 删除过期或损坏的文件（--before 截止时间，--async 使用异步循环）
//	clear                 删除命名空间下的所有文件
//	ls                    列出命名空间下的文件、过期时间与大小
//	janitor               按 cron 表达式周期清理，直到收到退出信号（--schedule，--async）
//
// 退出码:
//
//	0: 成功
//	1: 执行失败
//	2: 参数或配置错误
//	3: key 不存在（get）
//
// 示例:
//
//	xtierctl -r /var/cache/app -n users set --ttl 5m alice '{"id":1}'
//	xtierctl -r /var/cache/app -n users get alice
//	xtierctl -c /etc/app/xtier.yaml purge --async
//	xtierctl -c /etc/app/xtier.yaml ls
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/omeyang/xtier/pkg/storage/xtier"
)

// 版本信息（可通过 -ldflags 注入）。
var (
	Version   = "0.1.0-dev"
	GitCommit = "unknown"
	BuildTime = "unknown"
)

const (
	exitOK       = 0
	exitFailure  = 1
	exitUsage    = 2
	exitNotFound = 3
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	setupSignalHandler(cancel)

	code := run(ctx, os.Args, os.Stdout, os.Stderr)
	cancel()
	os.Exit(code)
}

// createApp 创建 CLI 应用。
func createApp(stdout, stderr io.Writer) *cli.Command {
	return &cli.Command{
		Name:      "xtierctl",
		Usage:     "xtier 缓存目录检查与维护工具",
		Version:   fmt.Sprintf("%s (commit: %s, built: %s)", Version, GitCommit, BuildTime),
		Writer:    stdout,
		ErrWriter: stderr,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "配置文件路径（.yaml/.yml/.json）",
			},
			&cli.StringFlag{
				Name:    "root",
				Aliases: []string{"r"},
				Usage:   "缓存根目录（覆盖配置文件）",
			},
			&cli.StringFlag{
				Name:    "namespace",
				Aliases: []string{"n"},
				Usage:   "命名空间（覆盖配置文件）",
				Value:   xtier.DefaultNamespace,
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "日志级别（debug/info/warn/error）",
			},
		},
		Commands:     createCommands(),
		OnUsageError: onUsageError,
		Action: func(_ context.Context, cmd *cli.Command) error {
			if cmd.Args().Len() > 0 {
				return &usageError{msg: fmt.Sprintf("未知命令 %q", cmd.Args().First())}
			}
			return &usageError{msg: "缺少命令，使用 --help 查看用法"}
		},
		// 禁止 urfave/cli 直接调用 os.Exit，由 run() 统一映射退出码。
		ExitErrHandler: func(_ context.Context, _ *cli.Command, err error) {
			if _, ok := err.(cli.ExitCoder); ok {
				fmt.Fprintln(stderr, err)
			}
		},
	}
}

// run 执行命令并返回退出码。
func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	app := createApp(stdout, stderr)

	err := app.Run(ctx, args)
	if err == nil {
		return exitOK
	}

	var exitErr *exitError
	if errors.As(err, &exitErr) {
		return exitErr.code
	}
	var usageErr *usageError
	if errors.As(err, &usageErr) {
		fmt.Fprintf(stderr, "参数错误: %v\n", usageErr)
		return exitUsage
	}
	if errors.Is(err, xtier.ErrInvalidConfig) {
		fmt.Fprintf(stderr, "配置错误: %v\n", err)
		return exitUsage
	}
	if errors.Is(err, xtier.ErrInvalidKey) || errors.Is(err, xtier.ErrEmptyKey) {
		fmt.Fprintf(stderr, "参数错误: %v\n", err)
		return exitUsage
	}
	fmt.Fprintf(stderr, "错误: %v\n", err)
	return exitFailure
}
