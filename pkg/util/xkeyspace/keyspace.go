package xkeyspace

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash"
	"path/filepath"
	"reflect"
	"runtime"
	"strings"
	"unicode/utf8"

	"github.com/cespare/xxhash/v2"

	"github.com/omeyang/xtier/pkg/util/xfile"
)

// Hash 指纹使用的哈希算法。
type Hash int

const (
	// HashSHA256 SHA-256，默认算法。
	HashSHA256 Hash = iota
	// HashXXH64 xxhash64。
	HashXXH64
)

// String 返回算法名称。
func (h Hash) String() string {
	switch h {
	case HashSHA256:
		return "sha256"
	case HashXXH64:
		return "xxh64"
	default:
		return fmt.Sprintf("Hash(%d)", int(h))
	}
}

func (h Hash) newHasher() hash.Hash {
	if h == HashXXH64 {
		return xxhash.New()
	}
	return sha256.New()
}

// argSeparator 分隔相邻参数，避免 ("ab","c") 与 ("a","bc") 产生相同输入。
const argSeparator = 0x1f

// Path 返回 key 在命名空间目录 dir 下的文件路径。
func Path(dir, key string) string {
	return filepath.Join(dir, key)
}

// Fingerprint 计算参数序列的十六进制摘要。
// 未知的 h 按 [HashSHA256] 处理。
func Fingerprint(h Hash, args ...any) string {
	hasher := h.newHasher()
	for i, arg := range args {
		if i > 0 {
			_, _ = hasher.Write([]byte{argSeparator})
		}
		// hash.Hash.Write 不会返回错误
		_, _ = fmt.Fprintf(hasher, "%#v", arg)
	}
	return hex.EncodeToString(hasher.Sum(nil))
}

var identityReplacer = strings.NewReplacer("/", "_", `\`, "_", "\x00", "_")

// DeriveKey 组合 identity 与 fingerprint 为缓存 key。
//
// 结果不超过 [xfile.MaxNameLen] 字节：超长时 identity 被截断并追加 "~" 与
// 完整 identity 的 xxhash 摘要，过长的 fingerprint 替换为其 SHA-256 摘要。
func DeriveKey(identity, fingerprint string) string {
	id := identityReplacer.Replace(identity)
	if len(id)+len(fingerprint)+2 <= xfile.MaxNameLen {
		return id + "(" + fingerprint + ")"
	}
	if len(fingerprint) > sha256.Size*2 {
		sum := sha256.Sum256([]byte(fingerprint))
		fingerprint = hex.EncodeToString(sum[:])
	}
	if len(id)+len(fingerprint)+2 <= xfile.MaxNameLen {
		return id + "(" + fingerprint + ")"
	}
	digest := fmt.Sprintf("~%016x", xxhash.Sum64String(id))
	room := xfile.MaxNameLen - len(fingerprint) - 2 - len(digest)
	return truncateUTF8(id, room) + digest + "(" + fingerprint + ")"
}

// truncateUTF8 把 s 截断到最多 n 字节，不切开多字节字符。
func truncateUTF8(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

// FuncIdentity 返回函数的运行时符号名（如 "example.com/pkg.Load"）。
// fn 不是函数或为 nil 时返回空字符串。
//
// 闭包的符号名带有 ".funcN" 后缀，同一位置创建的闭包共享同一 identity。
func FuncIdentity(fn any) string {
	v := reflect.ValueOf(fn)
	if v.Kind() != reflect.Func || v.IsNil() {
		return ""
	}
	f := runtime.FuncForPC(v.Pointer())
	if f == nil {
		return ""
	}
	return f.Name()
}
