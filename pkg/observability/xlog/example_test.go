package xlog_test

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/omeyang/xtier/pkg/observability/xlog"
)

func ExampleParseLevel() {
	level, err := xlog.ParseLevel("Warning")
	fmt.Println(level, err)
	// Output: WARN <nil>
}

func ExampleBuilder_Build() {
	logger, cleanup, err := xlog.New().
		SetOutput(os.Stdout).
		SetFormat("json").
		// 去掉时间字段，保证输出稳定
		SetReplaceAttr(func(_ []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey {
				return slog.Attr{}
			}
			return a
		}).
		Build()
	if err != nil {
		fmt.Println(err)
		return
	}
	defer cleanup()

	logger.Info("started", slog.String("namespace", "default"))
	// Output: {"level":"INFO","msg":"started","namespace":"default"}
}
