package statestore

import "sync"

// SubscribeWithSelector 订阅状态的某个投影，只有投影值（按 == 比较）变化时才回调 cb。
// 订阅时记录当前投影作为基线，订阅本身不会触发回调。
func SubscribeWithSelector[T any, S comparable](s *Store[T], selector func(T) S, cb func(next, prev S)) func() {
	return SubscribeWithSelectorFunc(s, selector, func(a, b S) bool { return a == b }, cb)
}

// SubscribeWithSelectorFunc 与 SubscribeWithSelector 相同，但由调用方提供比较函数，
// 用于切片、结构体等不可直接比较的投影。
//
// 回调串行执行：同一时刻只有一个 goroutine 在派发，它每次都重新读取最新状态，
// 其他 goroutine 或回调内部触发的通知只把订阅标记为 dirty，由正在派发的一方补发。
// 因此回调看到的投影按状态写入顺序前进，最后一次回调总是对应最新状态。
// 代价是：另一个 goroutine 正在派发时，触发写入的调用方不会同步等到回调执行完。
func SubscribeWithSelectorFunc[T any, S any](s *Store[T], selector func(T) S, equal func(a, b S) bool, cb func(next, prev S)) func() {
	var (
		mu      sync.Mutex
		running bool
		dirty   bool
		prev    = selector(s.GetLatestValue())
	)

	return s.Subscribe(func(T) {
		mu.Lock()
		if running {
			dirty = true
			mu.Unlock()
			return
		}
		running = true
		for {
			dirty = false
			next := selector(s.GetLatestValue())
			if !equal(prev, next) {
				old := prev
				prev = next
				mu.Unlock()
				cb(next, old)
				mu.Lock()
			}
			if !dirty {
				break
			}
		}
		running = false
		mu.Unlock()
	})
}

// SameSlice 按底层数组身份和长度比较两个切片，而不是逐元素比较。
// reconcile 在无变化时返回原切片，因此这里等价于“记录列表是否被替换”。
func SameSlice[E any](a, b []E) bool {
	if len(a) != len(b) {
		return false
	}
	if len(a) == 0 {
		return true
	}
	return &a[0] == &b[0]
}
