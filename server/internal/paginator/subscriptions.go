package paginator

import (
	"chat-drafts/server/internal/model"
	"chat-drafts/server/internal/reconcile"
	"chat-drafts/server/internal/statestore"
)

// RegisterSubscriptions 订阅推送事件以及 active 字段的变化。重复调用是幂等的。
func (m *Manager[T]) RegisterSubscriptions() {
	if m.subs.HasSubscriptions() {
		return
	}

	if m.cfg.Events != nil && m.cfg.RecordFromEvent != nil {
		for _, t := range m.cfg.EventTypes.Updated {
			m.subs.Add(m.cfg.Events.On(t, m.handleUpdated))
		}
		for _, t := range m.cfg.EventTypes.Deleted {
			m.subs.Add(m.cfg.Events.On(t, m.handleDeleted))
		}
	}

	m.subs.AddFunc(statestore.SubscribeWithSelector(m.state,
		func(s State[T]) bool { return s.Active },
		func(active, wasActive bool) {
			if active && !wasActive {
				m.Reload(m.ctx, ReloadOptions{})
			}
		},
	))
}

// UnregisterSubscriptions 调用每个已登记的取消函数一次并清空注册表。
// 丢弃 Manager 之前必须调用，否则事件源会一直持有它。
func (m *Manager[T]) UnregisterSubscriptions() {
	m.subs.UnsubscribeAll()
}

// HasSubscriptions 判断是否已经注册了订阅。
func (m *Manager[T]) HasSubscriptions() bool {
	return m.subs.HasSubscriptions()
}

// handleUpdated 对记录做 upsert。内容与已有记录相同时不替换，重放同一事件不会改变状态。
func (m *Manager[T]) handleUpdated(evt model.Event) {
	rec, ok := m.cfg.RecordFromEvent(evt)
	if !ok || (m.cfg.Accept != nil && !m.cfg.Accept(rec)) {
		return
	}
	key := m.cfg.KeyOf(rec)
	m.noteUpdated(key, rec)

	m.state.Update(func(s State[T]) State[T] {
		for _, existing := range s.Records {
			if m.cfg.KeyOf(existing) == key && m.cfg.Equal(existing, rec) {
				return s
			}
		}
		s.Records = reconcile.Upsert(s.Records, rec, m.cfg.KeyOf)
		return s
	})
	m.cfg.Metrics.EventApplied(m.cfg.Name, string(evt.Type))
	m.cfg.Metrics.SetRecords(m.cfg.Name, len(m.Records()))
}

// handleDeleted 按 key 删除记录；未知 key 不改变状态。
func (m *Manager[T]) handleDeleted(evt model.Event) {
	rec, ok := m.cfg.RecordFromEvent(evt)
	if !ok || (m.cfg.Accept != nil && !m.cfg.Accept(rec)) {
		return
	}
	key := m.cfg.KeyOf(rec)
	m.noteDeleted(key)

	m.state.Update(func(s State[T]) State[T] {
		s.Records = reconcile.Remove(s.Records, key, m.cfg.KeyOf)
		return s
	})
	m.cfg.Metrics.EventApplied(m.cfg.Name, string(evt.Type))
	m.cfg.Metrics.SetRecords(m.cfg.Name, len(m.Records()))
}
