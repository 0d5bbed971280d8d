package paginator

import (
	"bytes"
	"context"
	"log"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"chat-drafts/server/internal/model"
	"chat-drafts/server/internal/subscription"
)

type fakeReminders struct {
	*subscription.Emitter
	page model.Page[*model.Reminder]
	last model.QueryOptions
}

func (f *fakeReminders) QueryReminders(_ context.Context, opts model.QueryOptions) (model.Page[*model.Reminder], error) {
	f.last = opts
	return f.page, nil
}

// TestRemindersManagerLifecycle 验证 created/updated 都按 upsert 处理、deleted 按 message_id 删除，
// 并且查询带上默认的 user_id 与排序。
func TestRemindersManagerLifecycle(t *testing.T) {
	remindAt := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	backend := &fakeReminders{
		Emitter: subscription.NewEmitter(),
		page:    model.Page[*model.Reminder]{Items: []*model.Reminder{{MessageID: "m1", UserID: "alice"}}},
	}
	m := NewRemindersManager(backend, Options{
		UserID: "alice",
		Sort:   []model.SortField{{Field: "remind_at", Direction: 1}},
		Logger: log.New(&bytes.Buffer{}, "", 0),
	})
	m.RegisterSubscriptions()
	defer m.Close()

	m.Reload(context.Background(), ReloadOptions{})
	if backend.last.UserID != "alice" || len(backend.last.Sort) != 1 {
		t.Fatalf("expected defaults applied to query, got %+v", backend.last)
	}

	backend.Emit(model.Event{Type: model.EventReminderCreated, Reminder: &model.Reminder{MessageID: "m2", UserID: "alice"}})
	backend.Emit(model.Event{Type: model.EventReminderUpdated, Reminder: &model.Reminder{MessageID: "m1", UserID: "alice", RemindAt: &remindAt}})
	backend.Emit(model.Event{Type: model.EventReminderCreated, Reminder: &model.Reminder{MessageID: "m3", UserID: "bob"}})

	got := m.Records()
	keys := []string{}
	for _, r := range got {
		keys = append(keys, r.Key())
	}
	if diff := cmp.Diff([]string{"m1", "m2"}, keys); diff != "" {
		t.Fatalf("unexpected reminders (-want +got):\n%s", diff)
	}
	if got[0].RemindAt == nil || !got[0].RemindAt.Equal(remindAt) {
		t.Fatalf("expected m1 updated in place, got %+v", got[0])
	}

	backend.Emit(model.Event{Type: model.EventReminderDeleted, Reminder: &model.Reminder{MessageID: "m1", UserID: "alice"}})
	if n := len(m.Records()); n != 1 || m.Records()[0].MessageID != "m2" {
		t.Fatalf("expected only m2 left, got %d records", n)
	}
}
