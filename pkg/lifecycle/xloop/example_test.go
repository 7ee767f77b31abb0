package xloop_test

import (
	"context"
	"fmt"
	"time"

	"github.com/omeyang/xtier/pkg/lifecycle/xloop"
)

func ExampleLoop_Run() {
	loop := xloop.New(xloop.WithMaxOpenFiles(64))
	defer loop.Close()

	// 注册实现了 xloop.Task 的任务后，由单个 goroutine 推进：
	//   loop.Register(task)
	err := loop.Run(context.Background(), xloop.WithTimeout(time.Second))
	fmt.Println(err, loop.Len())
	// Output: <nil> 0
}
