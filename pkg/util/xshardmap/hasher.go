package xshardmap

import (
	"hash/maphash"

	"github.com/cespare/xxhash/v2"
)

// defaultHasher 返回 K 的默认哈希函数。
// string key 使用 xxhash（跨进程稳定，便于排查分片热点）；
// 其他 comparable 类型使用 maphash.Comparable，种子每个 Map 独立。
func defaultHasher[K comparable]() func(K) uint64 {
	var zero K
	if _, ok := any(zero).(string); ok {
		return func(key K) uint64 {
			return xxhash.Sum64String(any(key).(string))
		}
	}
	seed := maphash.MakeSeed()
	return func(key K) uint64 {
		return maphash.Comparable(seed, key)
	}
}
