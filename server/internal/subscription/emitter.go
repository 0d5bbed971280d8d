package subscription

import (
	"sync"

	"chat-drafts/server/internal/model"
)

// Handler 处理一条推送事件。
type Handler func(evt model.Event)

// Source 是推送事件源的最小接口，chatclient 与测试替身都实现它。
type Source interface {
	On(eventType model.EventType, handler Handler) Subscription
}

// Emitter 是进程内的事件源：Emit 同步地按注册顺序调用对应类型的 handler。
// websocket 读循环、测试都通过它把事件交给 manager。
type Emitter struct {
	mu       sync.RWMutex
	nextID   uint64
	handlers map[model.EventType][]handlerEntry
	any      []handlerEntry
}

type handlerEntry struct {
	id uint64
	fn Handler
}

// NewEmitter 创建一个空的 Emitter。
func NewEmitter() *Emitter {
	return &Emitter{handlers: make(map[model.EventType][]handlerEntry)}
}

// On 注册某种事件类型的 handler。
func (e *Emitter) On(eventType model.EventType, handler Handler) Subscription {
	e.mu.Lock()
	e.nextID++
	id := e.nextID
	e.handlers[eventType] = append(e.handlers[eventType], handlerEntry{id: id, fn: handler})
	e.mu.Unlock()

	return Func(func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		e.handlers[eventType] = without(e.handlers[eventType], id)
		if len(e.handlers[eventType]) == 0 {
			delete(e.handlers, eventType)
		}
	})
}

// OnAny 注册一个接收所有事件的 handler。
func (e *Emitter) OnAny(handler Handler) Subscription {
	e.mu.Lock()
	e.nextID++
	id := e.nextID
	e.any = append(e.any, handlerEntry{id: id, fn: handler})
	e.mu.Unlock()

	return Func(func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		e.any = without(e.any, id)
	})
}

// Emit 分发一条事件。handler 列表先做快照再调用，handler 内可以安全地注册/取消订阅。
func (e *Emitter) Emit(evt model.Event) {
	e.mu.RLock()
	typed := e.handlers[evt.Type]
	targets := make([]handlerEntry, 0, len(typed)+len(e.any))
	targets = append(targets, typed...)
	targets = append(targets, e.any...)
	e.mu.RUnlock()

	for _, h := range targets {
		h.fn(evt)
	}
}

// ListenerCount 返回某种事件类型的 handler 数量。
func (e *Emitter) ListenerCount(eventType model.EventType) int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.handlers[eventType])
}

func without(entries []handlerEntry, id uint64) []handlerEntry {
	out := make([]handlerEntry, 0, len(entries))
	for _, h := range entries {
		if h.id != id {
			out = append(out, h)
		}
	}
	return out
}
