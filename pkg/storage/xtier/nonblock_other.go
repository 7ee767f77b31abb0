//go:build !unix

package xtier

const nonblockFlag = 0
