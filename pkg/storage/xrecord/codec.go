package xrecord

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
)

const (
	// HeaderChunk 是按块读取记录头部时每次读取的字节数。
	HeaderChunk = 64

	// MaxHeaderLen 是记录头部（不含换行）允许的最大长度。
	// 'f' 格式下 float64 的最长十进制表示约 330 字节，超过此长度的头部一定无效。
	MaxHeaderLen = 512
)

// FormatExpiry 将时间戳渲染为记录头部使用的十进制形式。
func FormatExpiry(expiresAt float64) (string, error) {
	if math.IsNaN(expiresAt) || math.IsInf(expiresAt, 0) {
		return "", fmt.Errorf("%w: timestamp %v is not a finite decimal", ErrEncode, expiresAt)
	}
	return strconv.FormatFloat(expiresAt, 'f', -1, 64), nil
}

// ParseExpiry 解析记录头部（不含换行，允许首尾空白）。
// 无法解析为有限浮点数时返回 ErrMalformedRecord。
func ParseExpiry(line []byte) (float64, error) {
	line = bytes.TrimSpace(line)
	if len(line) == 0 {
		return 0, fmt.Errorf("%w: empty header", ErrMalformedRecord)
	}
	if len(line) > MaxHeaderLen {
		return 0, fmt.Errorf("%w: header exceeds %d bytes", ErrMalformedRecord, MaxHeaderLen)
	}
	v, err := strconv.ParseFloat(string(line), 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrMalformedRecord, err)
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("%w: timestamp %q is not finite", ErrMalformedRecord, line)
	}
	return v, nil
}

// Encode 将记录写入 w。
func Encode(w io.Writer, rec Record) error {
	header, err := FormatExpiry(rec.ExpiresAt)
	if err != nil {
		return err
	}
	if _, err := io.WriteString(w, header+"\n"); err != nil {
		return err
	}
	if len(rec.Payload) == 0 {
		return nil
	}
	_, err = w.Write(rec.Payload)
	return err
}

// Marshal 返回记录的编码结果。
func Marshal(rec Record) ([]byte, error) {
	header, err := FormatExpiry(rec.ExpiresAt)
	if err != nil {
		return nil, err
	}
	buf := make([]byte, 0, len(header)+1+len(rec.Payload))
	buf = append(buf, header...)
	buf = append(buf, '\n')
	buf = append(buf, rec.Payload...)
	return buf, nil
}

// Decode 从 r 读取完整记录。
// 读取错误原样返回；头部无效时返回 ErrMalformedRecord。
func Decode(r io.Reader) (Record, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return Record{}, err
	}
	return Unmarshal(data)
}

// Unmarshal 解码一条完整记录。
// 返回的 Payload 与 data 共享底层数组。
func Unmarshal(data []byte) (Record, error) {
	header, payload, found := bytes.Cut(data, []byte{'\n'})
	expiresAt, err := ParseExpiry(header)
	if err != nil {
		return Record{}, err
	}
	if !found || len(payload) == 0 {
		payload = nil
	}
	return Record{Payload: payload, ExpiresAt: expiresAt}, nil
}

// ReadExpiry 只读取记录头部并解析过期时间。
//
// 每次最多读取 HeaderChunk 字节，遇到换行或 EOF 即停止，负载不会被读取。
// 头部超过 MaxHeaderLen 时返回 ErrMalformedRecord。
func ReadExpiry(r io.Reader) (float64, error) {
	var (
		header []byte
		chunk  [HeaderChunk]byte
	)
	for {
		n, err := r.Read(chunk[:])
		if n > 0 {
			if i := bytes.IndexByte(chunk[:n], '\n'); i >= 0 {
				header = append(header, chunk[:i]...)
				return ParseExpiry(header)
			}
			header = append(header, chunk[:n]...)
			if len(header) > MaxHeaderLen {
				return 0, fmt.Errorf("%w: header exceeds %d bytes", ErrMalformedRecord, MaxHeaderLen)
			}
		}
		if errors.Is(err, io.EOF) {
			return ParseExpiry(header)
		}
		if err != nil {
			return 0, err
		}
	}
}
