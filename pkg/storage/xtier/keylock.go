package xtier

import (
	"sync"

	"github.com/cespare/xxhash/v2"
)

const keyLockShards = 64

// keyLocks 按 key 分片的互斥锁，串行化同一 key 上的同步磁盘操作。
// 不同 key 可能落在同一分片，持锁期间不得再获取其他 key 的锁。
type keyLocks struct {
	shards [keyLockShards]sync.Mutex
}

func (k *keyLocks) lock(key string) func() {
	m := &k.shards[xxhash.Sum64String(key)&(keyLockShards-1)]
	m.Lock()
	return m.Unlock
}
