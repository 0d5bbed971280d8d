// Package statestore 提供一个最小的可观察状态容器。
//
// 约定：
// - 状态按“不可变快照”使用，写入只能通过 Next/Update/PartialNext 整体替换。
// - 通知是同步的，按订阅顺序执行，并且在锁外执行，订阅者可以回调 Store。
// - 通知前先对订阅者列表做快照；通知过程中新增的订阅者不会收到本次通知。
package statestore

import "sync"

// Store 持有一个状态值 T，并在每次替换后通知订阅者。
type Store[T any] struct {
	mu     sync.Mutex
	value  T
	nextID uint64
	subs   []subscriber[T]
}

type subscriber[T any] struct {
	id uint64
	fn func(T)
}

// New 创建一个初始值为 initial 的 Store。
func New[T any](initial T) *Store[T] {
	return &Store[T]{value: initial}
}

// GetLatestValue 返回当前状态快照，无副作用。
func (s *Store[T]) GetLatestValue() T {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.value
}

// Next 用 value 整体替换当前状态，并同步通知所有订阅者。
func (s *Store[T]) Next(value T) {
	s.Update(func(T) T { return value })
}

// Update 以函数方式计算新状态。fn 在 Store 的锁内执行，因此“读-判断-写”是原子的；
// fn 必须是纯函数，不能回调 Store。
func (s *Store[T]) Update(fn func(current T) T) {
	s.mu.Lock()
	next := fn(s.value)
	s.value = next
	subs := make([]subscriber[T], len(s.subs))
	copy(subs, s.subs)
	s.mu.Unlock()

	for _, sub := range subs {
		sub.fn(next)
	}
}

// PartialNext 对当前状态的浅拷贝做局部修改，相当于 Next({...current, ...partial})。
func (s *Store[T]) PartialNext(patch func(state *T)) {
	s.Update(func(current T) T {
		patch(&current)
		return current
	})
}

// Subscribe 注册一个在每次状态替换后调用的回调，返回取消订阅函数。
// 取消函数可以重复调用。
func (s *Store[T]) Subscribe(fn func(T)) func() {
	s.mu.Lock()
	s.nextID++
	id := s.nextID
	s.subs = append(s.subs, subscriber[T]{id: id, fn: fn})
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		for i, sub := range s.subs {
			if sub.id == id {
				subs := make([]subscriber[T], 0, len(s.subs)-1)
				subs = append(subs, s.subs[:i]...)
				s.subs = append(subs, s.subs[i+1:]...)
				return
			}
		}
	}
}

// SubscriberCount 返回当前订阅者数量，主要用于测试与排查泄漏。
func (s *Store[T]) SubscriberCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subs)
}
