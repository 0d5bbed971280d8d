package subscription

import (
	"testing"

	"chat-drafts/server/internal/model"
)

// TestRegistryUnsubscribeAllCallsEachOnce 验证 UnsubscribeAll 对每个回调只调用一次并清空注册表。
// 场景：登记两个回调后连续调用两次 UnsubscribeAll。
func TestRegistryUnsubscribeAllCallsEachOnce(t *testing.T) {
	var reg Registry
	calls := map[string]int{}
	reg.AddFunc(func() { calls["a"]++ })
	reg.AddFunc(func() { calls["b"]++ })

	if !reg.HasSubscriptions() {
		t.Fatalf("expected registry to have subscriptions")
	}

	reg.UnsubscribeAll()
	reg.UnsubscribeAll()

	if calls["a"] != 1 || calls["b"] != 1 {
		t.Fatalf("expected each callback once, got %v", calls)
	}
	if reg.HasSubscriptions() {
		t.Fatalf("expected empty registry after UnsubscribeAll")
	}
}

// TestFuncSubscriptionRunsOnce 验证 Func 包装的取消函数最多执行一次。
func TestFuncSubscriptionRunsOnce(t *testing.T) {
	calls := 0
	sub := Func(func() { calls++ })
	sub.Unsubscribe()
	sub.Unsubscribe()
	if calls != 1 {
		t.Fatalf("expected 1 call, got %d", calls)
	}
}

// TestEmitterDispatchesByType 验证 Emit 只调用对应类型的 handler，并按注册顺序执行。
func TestEmitterDispatchesByType(t *testing.T) {
	em := NewEmitter()
	var order []string

	em.On(model.EventDraftUpdated, func(model.Event) { order = append(order, "u1") })
	em.On(model.EventDraftDeleted, func(model.Event) { order = append(order, "d1") })
	em.On(model.EventDraftUpdated, func(model.Event) { order = append(order, "u2") })
	em.OnAny(func(model.Event) { order = append(order, "any") })

	em.Emit(model.Event{Type: model.EventDraftUpdated})

	want := []string{"u1", "u2", "any"}
	if len(order) != len(want) {
		t.Fatalf("expected %v, got %v", want, order)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, order)
		}
	}
}

// TestEmitterUnsubscribe 验证取消订阅后 handler 不再被调用。
func TestEmitterUnsubscribe(t *testing.T) {
	em := NewEmitter()
	calls := 0
	sub := em.On(model.EventDraftDeleted, func(model.Event) { calls++ })

	em.Emit(model.Event{Type: model.EventDraftDeleted})
	sub.Unsubscribe()
	em.Emit(model.Event{Type: model.EventDraftDeleted})

	if calls != 1 {
		t.Fatalf("expected 1 call, got %d", calls)
	}
	if n := em.ListenerCount(model.EventDraftDeleted); n != 0 {
		t.Fatalf("expected no listeners, got %d", n)
	}
}
