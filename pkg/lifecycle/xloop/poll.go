package xloop

import "errors"

// readiness 是单个描述符在一轮等待中的就绪状态。
type readiness uint8

const (
	readyRead readiness = 1 << iota
	readyWrite
	readyError
)

// errInterrupted 表示等待被信号中断（EINTR），下一轮重试。
var errInterrupted = errors.New("xloop: poll interrupted")
