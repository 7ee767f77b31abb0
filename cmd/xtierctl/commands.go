package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/urfave/cli/v3"

	"github.com/omeyang/xtier/pkg/storage/xrecord"
	"github.com/omeyang/xtier/pkg/storage/xtier"
	"github.com/omeyang/xtier/pkg/util/xfile"
)

// exitError 表示需要非零退出码但已完成输出的场景。
type exitError struct {
	code int
}

func (e *exitError) Error() string { return fmt.Sprintf("exit status %d", e.code) }

// usageError 表示参数错误，退出码 2。
type usageError struct {
	msg string
}

func (e *usageError) Error() string { return e.msg }

// onUsageError 把 flag 解析错误统一转换为 usageError。
func onUsageError(_ context.Context, _ *cli.Command, err error, _ bool) error {
	return &usageError{msg: err.Error()}
}

// 创建所有子命令。
func createCommands() []*cli.Command {
	return []*cli.Command{
		createGetCommand(),
		createSetCommand(),
		createPurgeCommand(),
		createClearCommand(),
		createLsCommand(),
		createJanitorCommand(),
	}
}

func createGetCommand() *cli.Command {
	return &cli.Command{
		Name:         "get",
		Usage:        "读取 key 并输出负载",
		ArgsUsage:    "<key>",
		OnUsageError: onUsageError,
		Action: func(ctx context.Context, cmd *cli.Command) error {
			if cmd.Args().Len() != 1 {
				return &usageError{msg: "get 需要且只需要一个 key"}
			}
			return withStore(cmd, func(s *xtier.Store) error {
				return cmdGet(ctx, s, cmd.Args().First(), cmd.Root().Writer, cmd.Root().ErrWriter)
			})
		},
	}
}

func createSetCommand() *cli.Command {
	return &cli.Command{
		Name:         "set",
		Usage:        "写入 key",
		ArgsUsage:    "<key> <value>",
		OnUsageError: onUsageError,
		Flags: []cli.Flag{
			&cli.DurationFlag{
				Name:    "ttl",
				Aliases: []string{"t"},
				Usage:   "过期时间（默认使用命名空间默认 TTL）",
			},
			&cli.BoolFlag{
				Name:  "memory-only",
				Usage: "只写内存层，不落盘（进程退出后丢失）",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			if cmd.Args().Len() != 2 {
				return &usageError{msg: "set 需要 <key> <value> 两个参数"}
			}
			ttl := cmd.Duration("ttl")
			if ttl < 0 {
				return &usageError{msg: fmt.Sprintf("ttl 不能为负数: %s", ttl)}
			}
			return withStore(cmd, func(s *xtier.Store) error {
				if !cmd.IsSet("ttl") {
					ttl = s.DefaultTTL()
				}
				key, value := cmd.Args().Get(0), cmd.Args().Get(1)
				return s.Store(ctx, key, []byte(value), ttl, !cmd.Bool("memory-only"))
			})
		},
	}
}

func createPurgeCommand() *cli.Command {
	return &cli.Command{
		Name:         "purge",
		Usage:        "删除过期或损坏的文件",
		OnUsageError: onUsageError,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "before",
				Usage: "截止时间（RFC3339），过期时间不晚于该时刻的文件被删除（默认当前时间）",
			},
			&cli.BoolFlag{
				Name:  "async",
				Usage: "通过异步循环逐个读取记录头",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cutoff := time.Now()
			if v := cmd.String("before"); v != "" {
				t, err := time.Parse(time.RFC3339, v)
				if err != nil {
					return &usageError{msg: fmt.Sprintf("无效的 --before %q: %v", v, err)}
				}
				cutoff = t
			}
			return withStore(cmd, func(s *xtier.Store) error {
				return cmdPurge(ctx, s, cutoff, cmd.Bool("async"), cmd.Root().Writer)
			})
		},
	}
}

func createClearCommand() *cli.Command {
	return &cli.Command{
		Name:         "clear",
		Usage:        "删除命名空间下的所有文件",
		OnUsageError: onUsageError,
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return withStore(cmd, func(s *xtier.Store) error {
				if err := s.Clear(ctx); err != nil {
					return err
				}
				fmt.Fprintf(cmd.Root().Writer, "已清空 %s\n", s.Dir())
				return nil
			})
		},
	}
}

func createLsCommand() *cli.Command {
	return &cli.Command{
		Name:         "ls",
		Usage:        "列出命名空间下的文件、过期时间与大小",
		OnUsageError: onUsageError,
		Action: func(_ context.Context, cmd *cli.Command) error {
			return withStore(cmd, func(s *xtier.Store) error {
				return cmdLs(s.Dir(), time.Now(), cmd.Root().Writer)
			})
		},
	}
}

func createJanitorCommand() *cli.Command {
	return &cli.Command{
		Name:         "janitor",
		Usage:        "按 cron 表达式周期清理过期文件，直到收到退出信号",
		OnUsageError: onUsageError,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "schedule",
				Usage: "cron 表达式（支持 @every 1m 等描述符）",
				Value: xtier.DefaultJanitorSchedule,
			},
			&cli.BoolFlag{
				Name:  "seconds",
				Usage: "使用 6 段（含秒）cron 表达式",
			},
			&cli.BoolFlag{
				Name:  "async",
				Usage: "通过异步循环清理磁盘",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return withStore(cmd, func(s *xtier.Store) error {
				return cmdJanitor(ctx, s, cmd)
			})
		},
	}
}

// =============================================================================
// 命令实现
// =============================================================================

// withStore 按全局选项打开 Store，执行 fn 后关闭。
func withStore(cmd *cli.Command, fn func(*xtier.Store) error) error {
	s, err := openStore(cmd)
	if err != nil {
		return err
	}
	return errors.Join(fn(s), s.Close())
}

// openStore 读取配置文件（可选），以命令行参数覆盖后创建 Store。
func openStore(cmd *cli.Command) (*xtier.Store, error) {
	cfg := xtier.DefaultConfig()
	if path := cmd.String("config"); path != "" {
		var err error
		if cfg, err = xtier.ReadConfig(path); err != nil {
			return nil, err
		}
	}
	if cmd.IsSet("root") {
		cfg.Root = cmd.String("root")
	}
	if cmd.IsSet("namespace") || cfg.Namespace == "" {
		cfg.Namespace = cmd.String("namespace")
	}
	if cmd.IsSet("log-level") {
		cfg.Log.Level = cmd.String("log-level")
	}
	if cfg.Root == "" {
		return nil, &usageError{msg: "需要 --root 或在配置文件中设置 root"}
	}
	return xtier.NewFromConfig(cfg)
}

func cmdGet(ctx context.Context, s *xtier.Store, key string, stdout, stderr io.Writer) error {
	v, err := s.Get(ctx, key)
	if errors.Is(err, xtier.ErrNotFound) {
		fmt.Fprintf(stderr, "未找到: %s\n", key)
		return &exitError{code: exitNotFound}
	}
	if err != nil {
		return err
	}
	if _, err := stdout.Write(v); err != nil {
		return err
	}
	_, err = fmt.Fprintln(stdout)
	return err
}

func cmdPurge(ctx context.Context, s *xtier.Store, cutoff time.Time, async bool, stdout io.Writer) error {
	if !async {
		n, err := s.PurgeDisk(ctx, cutoff, false)
		fmt.Fprintf(stdout, "已删除 %d 个文件\n", n)
		return err
	}

	n, err := s.PurgeDisk(ctx, cutoff, true)
	if err != nil {
		return err
	}
	if err := s.RunLoop(ctx); err != nil {
		return err
	}
	fmt.Fprintf(stdout, "已检查 %d 个文件\n", n)
	return nil
}

// cmdJanitor 运行 Janitor；指定了配置文件时同时监听配置变化。
func cmdJanitor(ctx context.Context, s *xtier.Store, cmd *cli.Command) error {
	opts := []xtier.JanitorOption{xtier.WithJanitorAsync(cmd.Bool("async"))}
	if cmd.Bool("seconds") {
		opts = append(opts, xtier.WithJanitorSeconds())
	}
	j, err := xtier.NewJanitor(s, cmd.String("schedule"), opts...)
	if err != nil {
		return err
	}

	stderr := cmd.Root().ErrWriter
	if path := cmd.String("config"); path != "" {
		w, err := xtier.WatchConfig(s, path, func(cfg xtier.Config, err error) {
			if err != nil {
				fmt.Fprintf(stderr, "重新加载配置失败: %v\n", err)
				return
			}
			fmt.Fprintf(stderr, "已切换到命名空间 %s\n", cfg.Namespace)
		})
		if err != nil {
			return err
		}
		defer func() { _ = w.Stop() }()
	}

	fmt.Fprintf(cmd.Root().Writer, "janitor 已启动: %s (%s)\n", s.Dir(), cmd.String("schedule"))
	if err := j.Run(ctx); err != nil {
		return err
	}
	fmt.Fprintf(cmd.Root().Writer, "janitor 已停止，共执行 %d 轮\n", j.Runs())
	return nil
}

// cmdLs 只读取每个文件的记录头，不加载负载。
func cmdLs(dir string, now time.Time, stdout io.Writer) error {
	names, err := xfile.ListFiles(dir)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "KEY\tEXPIRES\tSIZE")
	for _, name := range names {
		size, expires := describeFile(filepath.Join(dir, name), now)
		fmt.Fprintf(tw, "%s\t%s\t%s\n", name, expires, size)
	}
	return tw.Flush()
}

// describeFile 返回文件大小与过期描述，读取失败时描述为错误信息。
func describeFile(path string, now time.Time) (size, expires string) {
	f, err := os.Open(path)
	if err != nil {
		return "-", "error: " + err.Error()
	}
	defer f.Close()

	size = "-"
	if info, err := f.Stat(); err == nil {
		size = humanize.Bytes(uint64(info.Size())) //nolint:gosec // 文件大小非负
	}

	exp, err := xrecord.ReadExpiry(f)
	switch {
	case errors.Is(err, xrecord.ErrMalformedRecord):
		return size, "malformed"
	case err != nil:
		return size, "error: " + err.Error()
	}
	at := xrecord.FromSeconds(exp)
	if xrecord.Seconds(now) >= exp {
		return size, "expired " + humanize.RelTime(at, now, "ago", "from now")
	}
	return size, humanize.RelTime(at, now, "ago", "from now")
}

// setupSignalHandler 第一次信号优雅取消，第二次信号强制退出（退出码 130）。
func setupSignalHandler(cancel context.CancelFunc) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()

		<-sigCh
		signal.Stop(sigCh)
		os.Exit(130)
	}()
}
