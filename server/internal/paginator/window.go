package paginator

// eventWindow 记录某次请求在途期间到达的事件，用于在响应落地时修正过期数据：
// 在途期间被删除的记录不会被响应重新带回，被更新的记录以事件中的版本为准。
type eventWindow[T any] struct {
	order   []string
	updated map[string]T
	deleted map[string]struct{}
}

func (m *Manager[T]) openWindow() *eventWindow[T] {
	w := &eventWindow[T]{
		updated: make(map[string]T),
		deleted: make(map[string]struct{}),
	}
	m.windowsMu.Lock()
	m.windows[w] = struct{}{}
	m.windowsMu.Unlock()
	return w
}

func (m *Manager[T]) closeWindow(w *eventWindow[T]) {
	m.windowsMu.Lock()
	delete(m.windows, w)
	m.windowsMu.Unlock()
}

func (m *Manager[T]) noteUpdated(key string, rec T) {
	m.windowsMu.Lock()
	defer m.windowsMu.Unlock()
	for w := range m.windows {
		delete(w.deleted, key)
		if _, ok := w.updated[key]; !ok {
			w.order = append(w.order, key)
		}
		w.updated[key] = rec
	}
}

func (m *Manager[T]) noteDeleted(key string) {
	m.windowsMu.Lock()
	defer m.windowsMu.Unlock()
	for w := range m.windows {
		delete(w.updated, key)
		w.deleted[key] = struct{}{}
	}
}

// applyWindow 用窗口内的事件修正响应：去掉已删除的记录、替换为事件中的新版本。
// pending 是窗口内更新过、但响应里没有的记录，按事件到达顺序返回。
func (m *Manager[T]) applyWindow(items []T, w *eventWindow[T]) (out []T, pending []T) {
	m.windowsMu.Lock()
	defer m.windowsMu.Unlock()

	if len(w.updated) == 0 && len(w.deleted) == 0 {
		return items, nil
	}

	seen := make(map[string]struct{}, len(items))
	out = make([]T, 0, len(items))
	for _, rec := range items {
		key := m.cfg.KeyOf(rec)
		seen[key] = struct{}{}
		if _, gone := w.deleted[key]; gone {
			continue
		}
		if newer, ok := w.updated[key]; ok {
			out = append(out, newer)
			continue
		}
		out = append(out, rec)
	}

	for _, key := range w.order {
		rec, ok := w.updated[key]
		if !ok {
			continue
		}
		if _, inPage := seen[key]; !inPage {
			pending = append(pending, rec)
		}
	}
	return out, pending
}
