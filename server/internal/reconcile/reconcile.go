// Package reconcile 把服务端返回或推送的记录合并进一个有序、按 key 唯一的列表。
//
// 所有函数都是纯函数：不修改入参切片，无变化时尽量返回原切片，
// 让按引用比较的订阅者可以跳过无意义的刷新。
package reconcile

import "github.com/google/go-cmp/cmp"

// Upsert 如果列表中已有相同 key 的记录则原位替换，否则追加到末尾。
func Upsert[T any, K comparable](records []T, incoming T, keyOf func(T) K) []T {
	key := keyOf(incoming)
	for i, existing := range records {
		if keyOf(existing) != key {
			continue
		}
		out := make([]T, len(records))
		copy(out, records)
		out[i] = incoming
		return out
	}

	out := make([]T, len(records), len(records)+1)
	copy(out, records)
	return append(out, incoming)
}

// UpsertAll 按顺序对 batch 中每条记录执行 Upsert 语义：
// 批内重复 key 保留第一次出现的位置、最后一次出现的内容。batch 为空时返回原切片。
func UpsertAll[T any, K comparable](records []T, batch []T, keyOf func(T) K) []T {
	if len(batch) == 0 {
		return records
	}

	out := make([]T, len(records), len(records)+len(batch))
	copy(out, records)
	pos := make(map[K]int, len(out)+len(batch))
	for i, r := range out {
		pos[keyOf(r)] = i
	}

	for _, r := range batch {
		key := keyOf(r)
		if i, ok := pos[key]; ok {
			out[i] = r
			continue
		}
		pos[key] = len(out)
		out = append(out, r)
	}
	return out
}

// Remove 返回去掉指定 key 之后的新列表；key 不存在时返回原切片。
func Remove[T any, K comparable](records []T, key K, keyOf func(T) K) []T {
	for i, existing := range records {
		if keyOf(existing) != key {
			continue
		}
		out := make([]T, 0, len(records)-1)
		out = append(out, records[:i]...)
		return append(out, records[i+1:]...)
	}
	return records
}

// Index 按 key 建立索引，供 MergeIdentityPreserving 使用。
func Index[T any, K comparable](records []T, keyOf func(T) K) map[K]T {
	idx := make(map[K]T, len(records))
	for _, r := range records {
		idx[keyOf(r)] = r
	}
	return idx
}

// MergeIdentityPreserving 以 incoming 的顺序生成新列表；对已知 key 且内容与 existing 相同的记录，
// 保留 existing 中的旧对象，这样按引用比较的消费方不会因为重新拉取而刷新。
// incoming 内的重复 key 按 UpsertAll 语义处理。incoming 为空时原样返回。
func MergeIdentityPreserving[T any, K comparable](incoming []T, existing map[K]T, keyOf func(T) K, equal func(a, b T) bool) []T {
	if len(incoming) == 0 {
		return incoming
	}

	kept := make([]T, 0, len(incoming))
	for _, r := range incoming {
		if old, ok := existing[keyOf(r)]; ok && equal(old, r) {
			kept = append(kept, old)
			continue
		}
		kept = append(kept, r)
	}
	return UpsertAll(nil, kept, keyOf)
}

// Equal 做结构化比较，指针会被解引用后比较内容。
func Equal[T any](a, b T) bool {
	return cmp.Equal(a, b)
}

// Contains 判断列表中是否存在指定 key。
func Contains[T any, K comparable](records []T, key K, keyOf func(T) K) bool {
	for _, r := range records {
		if keyOf(r) == key {
			return true
		}
	}
	return false
}
