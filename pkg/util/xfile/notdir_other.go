//go:build !unix

package xfile

// isNotDir 在非 Unix 平台上依赖 EnsureNamespaceDir 中的 Stat 回查。
func isNotDir(error) bool {
	return false
}
