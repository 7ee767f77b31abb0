package xrecord

import (
	"math"
	"time"
)

// Record 是一条缓存记录：过期时间与不透明负载。
//
// Record 构造后视为不可变；覆盖写入时整体替换，而不是原地修改。
type Record struct {
	// Payload 原始负载，编解码时不做任何解释。
	Payload []byte

	// ExpiresAt 过期时间，Unix 纪元秒（可带小数）。
	ExpiresAt float64
}

// New 以 now+ttl 作为过期时间创建记录。
func New(payload []byte, now time.Time, ttl time.Duration) Record {
	return Record{
		Payload:   payload,
		ExpiresAt: Seconds(now) + ttl.Seconds(),
	}
}

// Expired 报告记录在 now（Unix 秒）时是否已过期。
// 过期条件为 now >= ExpiresAt。
func (r Record) Expired(now float64) bool {
	return now >= r.ExpiresAt
}

// ExpiredAt 与 Expired 相同，但接受 time.Time。
func (r Record) ExpiredAt(now time.Time) bool {
	return r.Expired(Seconds(now))
}

// Time 将 ExpiresAt 转换为 time.Time（精度为纳秒）。
func (r Record) Time() time.Time {
	return FromSeconds(r.ExpiresAt)
}

// Seconds 将时间转换为 Unix 纪元秒。
func Seconds(t time.Time) float64 {
	return float64(t.UnixNano()) / float64(time.Second)
}

// FromSeconds 将 Unix 纪元秒转换为 time.Time。
// 超出 int64 纳秒范围的值会被截断到可表示的边界。
func FromSeconds(s float64) time.Time {
	ns := s * float64(time.Second)
	switch {
	case math.IsNaN(ns):
		return time.Unix(0, 0)
	case ns >= math.MaxInt64:
		return time.Unix(0, math.MaxInt64)
	case ns <= math.MinInt64:
		return time.Unix(0, math.MinInt64)
	}
	return time.Unix(0, int64(ns))
}
