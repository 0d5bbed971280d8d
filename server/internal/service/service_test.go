package service

import (
	"bytes"
	"context"
	"errors"
	"log"
	"sync"
	"testing"
	"time"

	"chat-drafts/server/internal/model"
	"chat-drafts/server/internal/recordstore"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []model.Event
}

func (p *recordingPublisher) Publish(evt model.Event) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, evt)
	return 1
}

func (p *recordingPublisher) types() []model.EventType {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]model.EventType, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}

type fixture struct {
	svc   *Service
	store *recordstore.InMemoryStore
	pub   *recordingPublisher
	now   time.Time
}

func newFixture() *fixture {
	f := &fixture{
		store: recordstore.NewInMemoryStore(),
		pub:   &recordingPublisher{},
		now:   time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC),
	}
	f.svc = New(f.store, f.pub, Options{
		Now:    func() time.Time { return f.now },
		Logger: log.New(&bytes.Buffer{}, "", 0),
	})
	return f
}

// TestSaveDraftPersistsThenPublishes 验证保存草稿先落库再发布 draft.updated，
// 再次保存时保留 created_at 与消息 ID，只推进 updated_at。
func TestSaveDraftPersistsThenPublishes(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	first, err := f.svc.SaveDraft(ctx, DraftInput{UserID: "alice", ChannelCID: "c1", Message: model.DraftMessage{Text: "hi"}})
	if err != nil {
		t.Fatalf("save draft: %v", err)
	}
	if first.Message.ID == "" {
		t.Fatalf("expected message id assigned")
	}

	f.now = f.now.Add(time.Minute)
	second, err := f.svc.SaveDraft(ctx, DraftInput{UserID: "alice", ChannelCID: "c1", Message: model.DraftMessage{Text: "hi there"}})
	if err != nil {
		t.Fatalf("save draft again: %v", err)
	}
	if !second.CreatedAt.Equal(first.CreatedAt) || !second.UpdatedAt.After(first.UpdatedAt) {
		t.Fatalf("unexpected timestamps: created=%v updated=%v", second.CreatedAt, second.UpdatedAt)
	}
	if second.Message.ID != first.Message.ID {
		t.Fatalf("expected message id kept, got %q vs %q", second.Message.ID, first.Message.ID)
	}

	stored, err := f.store.GetDraft(ctx, "alice", "c1", "")
	if err != nil || stored.Message.Text != "hi there" {
		t.Fatalf("expected stored draft updated, got %+v err=%v", stored, err)
	}
	got := f.pub.types()
	if len(got) != 2 || got[0] != model.EventDraftUpdated || got[1] != model.EventDraftUpdated {
		t.Fatalf("unexpected events: %v", got)
	}
	if f.pub.events[1].UserID != "alice" || f.pub.events[1].Draft.Message.Text != "hi there" {
		t.Fatalf("unexpected event payload: %+v", f.pub.events[1])
	}
}

// TestSaveDraftValidatesInput 验证缺少 user_id 或 channel_cid 时返回 ErrInvalidInput 且不发布事件。
func TestSaveDraftValidatesInput(t *testing.T) {
	f := newFixture()
	_, err := f.svc.SaveDraft(context.Background(), DraftInput{UserID: "alice"})
	if !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
	if len(f.pub.types()) != 0 {
		t.Fatalf("expected no events published")
	}
}

// TestDeleteDraftMissingDoesNotPublish 验证删除不存在的草稿返回 ErrNotFound 且不发布事件。
func TestDeleteDraftMissingDoesNotPublish(t *testing.T) {
	f := newFixture()
	err := f.svc.DeleteDraft(context.Background(), "alice", "nope", "")
	if !errors.Is(err, recordstore.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if len(f.pub.types()) != 0 {
		t.Fatalf("expected no events published")
	}
}

// TestReminderLifecycle 验证提醒的创建、重复创建、更新与删除对应的事件序列。
func TestReminderLifecycle(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	in := ReminderInput{UserID: "alice", MessageID: "m1", ChannelCID: "c1"}

	if _, err := f.svc.CreateReminder(ctx, in); err != nil {
		t.Fatalf("create reminder: %v", err)
	}
	if _, err := f.svc.CreateReminder(ctx, in); !errors.Is(err, ErrAlreadyExists) {
		t.Fatalf("expected ErrAlreadyExists, got %v", err)
	}

	at := f.now.Add(time.Hour)
	f.now = f.now.Add(time.Second)
	updated, err := f.svc.UpdateReminder(ctx, ReminderInput{UserID: "alice", MessageID: "m1", RemindAt: &at})
	if err != nil {
		t.Fatalf("update reminder: %v", err)
	}
	if updated.RemindAt == nil || !updated.RemindAt.Equal(at) || updated.ChannelCID != "c1" {
		t.Fatalf("unexpected updated reminder: %+v", updated)
	}

	if err := f.svc.DeleteReminder(ctx, "alice", "m1"); err != nil {
		t.Fatalf("delete reminder: %v", err)
	}

	want := []model.EventType{model.EventReminderCreated, model.EventReminderUpdated, model.EventReminderDeleted}
	got := f.pub.types()
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, got)
		}
	}
}

// TestPurgeDraftsBeforePublishesDeletes 验证过期清理对每条被删草稿发布 draft.deleted。
func TestPurgeDraftsBeforePublishesDeletes(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	_, _ = f.svc.SaveDraft(ctx, DraftInput{UserID: "alice", ChannelCID: "old"})
	_, _ = f.svc.SaveDraft(ctx, DraftInput{UserID: "bob", ChannelCID: "old"})
	f.now = f.now.Add(48 * time.Hour)
	_, _ = f.svc.SaveDraft(ctx, DraftInput{UserID: "alice", ChannelCID: "fresh"})
	f.pub.events = nil

	n, err := f.svc.PurgeDraftsBefore(ctx, f.now.Add(-24*time.Hour))
	if err != nil {
		t.Fatalf("purge: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 purged, got %d", n)
	}
	for _, e := range f.pub.events {
		if e.Type != model.EventDraftDeleted || e.Draft.ChannelCID != "old" {
			t.Fatalf("unexpected purge event: %+v", e)
		}
	}
	if len(f.pub.events) != 2 {
		t.Fatalf("expected 2 delete events, got %d", len(f.pub.events))
	}
}
