// Package subscription 是事件订阅层：Subscription 令牌、订阅注册表以及进程内事件源。
package subscription

import "sync"

// Subscription 代表一次已注册的监听，Unsubscribe 只在第一次调用时生效。
type Subscription interface {
	Unsubscribe()
}

// Func 把一个取消函数包装成 Subscription，保证它最多执行一次。
func Func(fn func()) Subscription {
	return &funcSubscription{fn: fn}
}

type funcSubscription struct {
	once sync.Once
	fn   func()
}

func (s *funcSubscription) Unsubscribe() {
	s.once.Do(func() {
		if s.fn != nil {
			s.fn()
		}
	})
}

// Registry 持有一组取消回调，以组合的方式嵌入到各个 manager 中。
type Registry struct {
	mu   sync.Mutex
	subs []Subscription
}

// Add 登记一个订阅。
func (r *Registry) Add(sub Subscription) {
	if sub == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.subs = append(r.subs, sub)
}

// AddFunc 登记一个取消函数。
func (r *Registry) AddFunc(fn func()) {
	r.Add(Func(fn))
}

// HasSubscriptions 判断是否已有登记的订阅，用于让 RegisterSubscriptions 幂等。
func (r *Registry) HasSubscriptions() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.subs) > 0
}

// Len 返回已登记的订阅数量。
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.subs)
}

// UnsubscribeAll 对每个订阅调用且只调用一次 Unsubscribe，然后清空注册表。
func (r *Registry) UnsubscribeAll() {
	r.mu.Lock()
	subs := r.subs
	r.subs = nil
	r.mu.Unlock()

	for _, sub := range subs {
		sub.Unsubscribe()
	}
}
