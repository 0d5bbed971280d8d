package recordstore

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"chat-drafts/server/internal/model"
)

// InMemoryStore 是基于内存的 Store 实现，重启即丢数据，用于开发与测试。
type InMemoryStore struct {
	mu          sync.RWMutex
	drafts      map[string]map[string]*model.Draft    // user_id -> draft key -> draft
	reminders   map[string]map[string]*model.Reminder // user_id -> message_id -> reminder
	users       map[string]model.User
	messages    map[string]model.Message
	attachments map[string]model.Attachment
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		drafts:      make(map[string]map[string]*model.Draft),
		reminders:   make(map[string]map[string]*model.Reminder),
		users:       make(map[string]model.User),
		messages:    make(map[string]model.Message),
		attachments: make(map[string]model.Attachment),
	}
}

func (s *InMemoryStore) UpsertDraft(_ context.Context, d *model.Draft) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	byKey := s.drafts[d.UserID]
	if byKey == nil {
		byKey = make(map[string]*model.Draft)
		s.drafts[d.UserID] = byKey
	}
	byKey[d.Key()] = cloneDraft(d)
	return nil
}

func (s *InMemoryStore) GetDraft(_ context.Context, userID, channelCID, parentID string) (*model.Draft, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	d, ok := s.drafts[userID][model.DraftKey(channelCID, parentID)]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneDraft(d), nil
}

func (s *InMemoryStore) DeleteDraft(_ context.Context, userID, channelCID, parentID string) (*model.Draft, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := model.DraftKey(channelCID, parentID)
	d, ok := s.drafts[userID][key]
	if !ok {
		return nil, ErrNotFound
	}
	delete(s.drafts[userID], key)
	return d, nil
}

func (s *InMemoryStore) ListDrafts(_ context.Context, opts model.QueryOptions) (model.Page[*model.Draft], error) {
	cur, hasCursor, err := decodeCursor(opts.Next)
	if err != nil {
		return model.Page[*model.Draft]{}, err
	}
	channel := opts.Filter["channel_cid"]

	s.mu.RLock()
	var all []*model.Draft
	for _, d := range s.drafts[opts.UserID] {
		if channel != "" && d.ChannelCID != channel {
			continue
		}
		if hasCursor && !cur.after(d.UpdatedAt, d.Key()) {
			continue
		}
		all = append(all, cloneDraft(d))
	}
	s.mu.RUnlock()

	sortByUpdatedDesc(all, func(d *model.Draft) (time.Time, string) { return d.UpdatedAt, d.Key() })
	return keysetPage(all, normalizeLimit(opts.Limit), func(d *model.Draft) (time.Time, string) { return d.UpdatedAt, d.Key() }), nil
}

func (s *InMemoryStore) PurgeDraftsBefore(_ context.Context, before time.Time) ([]*model.Draft, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var purged []*model.Draft
	for _, byKey := range s.drafts {
		for key, d := range byKey {
			if d.UpdatedAt.Before(before) {
				purged = append(purged, d)
				delete(byKey, key)
			}
		}
	}
	sortByUpdatedDesc(purged, func(d *model.Draft) (time.Time, string) { return d.UpdatedAt, d.Key() })
	return purged, nil
}

func (s *InMemoryStore) UpsertReminder(_ context.Context, r *model.Reminder) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	byID := s.reminders[r.UserID]
	if byID == nil {
		byID = make(map[string]*model.Reminder)
		s.reminders[r.UserID] = byID
	}
	byID[r.MessageID] = cloneReminder(r)
	return nil
}

func (s *InMemoryStore) GetReminder(_ context.Context, userID, messageID string) (*model.Reminder, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.reminders[userID][messageID]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneReminder(r), nil
}

func (s *InMemoryStore) DeleteReminder(_ context.Context, userID, messageID string) (*model.Reminder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.reminders[userID][messageID]
	if !ok {
		return nil, ErrNotFound
	}
	delete(s.reminders[userID], messageID)
	return r, nil
}

func (s *InMemoryStore) ListReminders(_ context.Context, opts model.QueryOptions) (model.Page[*model.Reminder], error) {
	cur, hasCursor, err := decodeCursor(opts.Next)
	if err != nil {
		return model.Page[*model.Reminder]{}, err
	}
	channel := opts.Filter["channel_cid"]

	s.mu.RLock()
	var all []*model.Reminder
	for _, r := range s.reminders[opts.UserID] {
		if channel != "" && r.ChannelCID != channel {
			continue
		}
		if hasCursor && !cur.after(r.UpdatedAt, r.MessageID) {
			continue
		}
		all = append(all, cloneReminder(r))
	}
	s.mu.RUnlock()

	sortByUpdatedDesc(all, func(r *model.Reminder) (time.Time, string) { return r.UpdatedAt, r.MessageID })
	return keysetPage(all, normalizeLimit(opts.Limit), func(r *model.Reminder) (time.Time, string) { return r.UpdatedAt, r.MessageID }), nil
}

func (s *InMemoryStore) ListUsers(_ context.Context, q model.OffsetQuery) ([]model.User, error) {
	prefix := strings.ToLower(q.Query)

	s.mu.RLock()
	var out []model.User
	for _, u := range s.users {
		if strings.HasPrefix(strings.ToLower(u.Name), prefix) {
			out = append(out, u)
		}
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID < out[j].ID
	})
	return offsetSlice(out, q), nil
}

func (s *InMemoryStore) SearchMessages(_ context.Context, q model.OffsetQuery) ([]model.Message, error) {
	needle := strings.ToLower(q.Query)

	s.mu.RLock()
	var out []model.Message
	for _, m := range s.messages {
		if q.ChannelCID != "" && m.ChannelCID != q.ChannelCID {
			continue
		}
		if strings.Contains(strings.ToLower(m.Text), needle) {
			out = append(out, m)
		}
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return offsetSlice(out, q), nil
}

func (s *InMemoryStore) ListAttachments(_ context.Context, q model.OffsetQuery) ([]model.Attachment, error) {
	s.mu.RLock()
	var out []model.Attachment
	for _, a := range s.attachments {
		if q.ChannelCID != "" && a.ChannelCID != q.ChannelCID {
			continue
		}
		if q.Type != "" && a.Type != q.Type {
			continue
		}
		out = append(out, a)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return offsetSlice(out, q), nil
}

func (s *InMemoryStore) Seed(_ context.Context, data model.SeedData) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, u := range data.Users {
		s.users[u.ID] = u
	}
	for _, m := range data.Messages {
		s.messages[m.ID] = m
	}
	for _, a := range data.Attachments {
		s.attachments[a.ID] = a
	}
	return nil
}

func (s *InMemoryStore) Close() error { return nil }

func sortByUpdatedDesc[T any](items []T, sortKey func(T) (time.Time, string)) {
	sort.Slice(items, func(i, j int) bool {
		ti, ki := sortKey(items[i])
		tj, kj := sortKey(items[j])
		if !ti.Equal(tj) {
			return ti.After(tj)
		}
		return ki > kj
	})
}

// keysetPage 截取前 limit 条；满页时用最后一条生成下一页游标。
func keysetPage[T any](sorted []T, limit int, sortKey func(T) (time.Time, string)) model.Page[T] {
	if len(sorted) < limit {
		return model.Page[T]{Items: sorted}
	}
	items := sorted[:limit]
	t, k := sortKey(items[limit-1])
	return model.Page[T]{Items: items, Next: encodeCursor(t, k)}
}

func offsetSlice[T any](items []T, q model.OffsetQuery) []T {
	if q.Offset < 0 {
		q.Offset = 0
	}
	if q.Offset >= len(items) {
		return []T{}
	}
	end := len(items)
	if q.Limit > 0 && q.Offset+q.Limit < end {
		end = q.Offset + q.Limit
	}
	return items[q.Offset:end]
}

func cloneDraft(d *model.Draft) *model.Draft {
	c := *d
	if d.Message.Attachments != nil {
		c.Message.Attachments = append([]string(nil), d.Message.Attachments...)
	}
	return &c
}

func cloneReminder(r *model.Reminder) *model.Reminder {
	c := *r
	if r.RemindAt != nil {
		t := *r.RemindAt
		c.RemindAt = &t
	}
	return &c
}
