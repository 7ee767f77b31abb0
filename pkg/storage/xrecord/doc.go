// Package xrecord 提供缓存磁盘记录的编解码。
//
// 每个缓存文件只保存一条记录，格式固定为：
//
//	<过期时间戳>\n<原始负载>
//
// 过期时间戳是十进制浮点数（Unix 纪元秒，可带小数），负载是任意字节，
// 之后不再有分隔符。负载中可以出现换行，解码时只有第一个换行被视为分隔。
//
// # 编码
//
// [Encode] / [Marshal] 使用 strconv.FormatFloat(v, 'f', -1, 64) 渲染时间戳，
// 该形式是能精确还原 float64 的最短十进制表示，因此
// Unmarshal(Marshal(r)) 对任意有限时间戳都是逐位相等的。
// NaN 与 ±Inf 无法表示为十进制数，返回 [ErrEncode]。
//
// # 解码
//
// [Decode] / [Unmarshal] 读取第一行（去除首尾空白）作为时间戳，
// 无法解析为有限浮点数时返回 [ErrMalformedRecord]；其余部分原样作为负载。
// 没有换行的数据视为只有头部、负载为空的记录。
//
// 只需判断过期时，使用 [ReadExpiry] 按 [HeaderChunk] 分块读取到第一个换行为止，
// 不会读取负载。
package xrecord
