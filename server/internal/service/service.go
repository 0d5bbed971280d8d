// Package service 是后端的写路径：先持久化，再把对应事件推送出去。
//
// 约定：
// - persist-first：事件只在写入成功之后发布，客户端收到的事件一定能被后续查询看到；
// - 时间戳与消息 ID 由服务端分配；
// - 删除不存在的记录返回 recordstore.ErrNotFound，且不发布事件。
package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"chat-drafts/server/internal/logging"
	"chat-drafts/server/internal/metrics"
	"chat-drafts/server/internal/model"
	"chat-drafts/server/internal/recordstore"
)

var (
	ErrInvalidInput  = errors.New("invalid input")
	ErrAlreadyExists = errors.New("record already exists")
)

// Publisher 把事件推送给已连接的客户端。
type Publisher interface {
	Publish(evt model.Event) int
}

// Options 是 Service 的可选依赖。
type Options struct {
	Now     func() time.Time
	Logger  *log.Logger
	Metrics *metrics.Collectors
}

type Service struct {
	store   recordstore.Store
	pub     Publisher
	now     func() time.Time
	logger  *log.Logger
	metrics *metrics.Collectors
}

func New(store recordstore.Store, pub Publisher, opts Options) *Service {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	return &Service{
		store:   store,
		pub:     pub,
		now:     opts.Now,
		logger:  logger,
		metrics: opts.Metrics,
	}
}

// DraftInput 是保存草稿的请求。
type DraftInput struct {
	UserID     string             `json:"user_id"`
	ChannelCID string             `json:"channel_cid"`
	ParentID   string             `json:"parent_id,omitempty"`
	Message    model.DraftMessage `json:"message"`
}

// SaveDraft 创建或覆盖草稿，并发布 draft.updated。
func (s *Service) SaveDraft(ctx context.Context, in DraftInput) (*model.Draft, error) {
	if in.UserID == "" || in.ChannelCID == "" {
		return nil, fmt.Errorf("%w: user_id and channel_cid required", ErrInvalidInput)
	}

	now := s.now().UTC()
	d := &model.Draft{
		ChannelCID: in.ChannelCID,
		ParentID:   in.ParentID,
		UserID:     in.UserID,
		Message:    in.Message,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if d.Message.ID == "" {
		d.Message.ID = uuid.NewString()
	}
	d.Message.ParentID = in.ParentID

	existing, err := s.store.GetDraft(ctx, in.UserID, in.ChannelCID, in.ParentID)
	switch {
	case err == nil:
		d.CreatedAt = existing.CreatedAt
		if in.Message.ID == "" {
			d.Message.ID = existing.Message.ID
		}
	case !errors.Is(err, recordstore.ErrNotFound):
		return nil, fmt.Errorf("load draft: %w", err)
	}

	if err := s.store.UpsertDraft(ctx, d); err != nil {
		return nil, err
	}
	s.metrics.Write("draft", "upsert")
	s.publish(model.Event{Type: model.EventDraftUpdated, UserID: d.UserID, Draft: d})
	return d, nil
}

// DeleteDraft 删除草稿并发布 draft.deleted。
func (s *Service) DeleteDraft(ctx context.Context, userID, channelCID, parentID string) error {
	d, err := s.store.DeleteDraft(ctx, userID, channelCID, parentID)
	if err != nil {
		return err
	}
	s.metrics.Write("draft", "delete")
	s.publish(model.Event{Type: model.EventDraftDeleted, UserID: userID, Draft: d})
	return nil
}

func (s *Service) QueryDrafts(ctx context.Context, opts model.QueryOptions) (model.Page[*model.Draft], error) {
	return s.store.ListDrafts(ctx, opts)
}

// PurgeDraftsBefore 删除过期草稿，每条都发布 draft.deleted，返回删除条数。
func (s *Service) PurgeDraftsBefore(ctx context.Context, before time.Time) (int, error) {
	purged, err := s.store.PurgeDraftsBefore(ctx, before)
	if err != nil {
		return 0, err
	}
	for _, d := range purged {
		s.publish(model.Event{Type: model.EventDraftDeleted, UserID: d.UserID, Draft: d})
	}
	s.metrics.RetentionPurged(len(purged))
	return len(purged), nil
}

// ReminderInput 是创建或更新提醒的请求。
type ReminderInput struct {
	UserID     string     `json:"user_id"`
	MessageID  string     `json:"message_id"`
	ChannelCID string     `json:"channel_cid"`
	RemindAt   *time.Time `json:"remind_at,omitempty"`
}

// CreateReminder 为消息创建提醒并发布 reminder.created；同一消息已有提醒时返回 ErrAlreadyExists。
func (s *Service) CreateReminder(ctx context.Context, in ReminderInput) (*model.Reminder, error) {
	if in.UserID == "" || in.MessageID == "" {
		return nil, fmt.Errorf("%w: user_id and message_id required", ErrInvalidInput)
	}
	if _, err := s.store.GetReminder(ctx, in.UserID, in.MessageID); err == nil {
		return nil, fmt.Errorf("%w: reminder for message %s", ErrAlreadyExists, in.MessageID)
	} else if !errors.Is(err, recordstore.ErrNotFound) {
		return nil, fmt.Errorf("load reminder: %w", err)
	}

	now := s.now().UTC()
	r := &model.Reminder{
		MessageID:  in.MessageID,
		ChannelCID: in.ChannelCID,
		UserID:     in.UserID,
		RemindAt:   utcPtr(in.RemindAt),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.store.UpsertReminder(ctx, r); err != nil {
		return nil, err
	}
	s.metrics.Write("reminder", "create")
	s.publish(model.Event{Type: model.EventReminderCreated, UserID: r.UserID, Reminder: r})
	return r, nil
}

// UpdateReminder 修改提醒时间并发布 reminder.updated。
func (s *Service) UpdateReminder(ctx context.Context, in ReminderInput) (*model.Reminder, error) {
	r, err := s.store.GetReminder(ctx, in.UserID, in.MessageID)
	if err != nil {
		return nil, err
	}
	r.RemindAt = utcPtr(in.RemindAt)
	if in.ChannelCID != "" {
		r.ChannelCID = in.ChannelCID
	}
	r.UpdatedAt = s.now().UTC()

	if err := s.store.UpsertReminder(ctx, r); err != nil {
		return nil, err
	}
	s.metrics.Write("reminder", "update")
	s.publish(model.Event{Type: model.EventReminderUpdated, UserID: r.UserID, Reminder: r})
	return r, nil
}

// DeleteReminder 删除提醒并发布 reminder.deleted。
func (s *Service) DeleteReminder(ctx context.Context, userID, messageID string) error {
	r, err := s.store.DeleteReminder(ctx, userID, messageID)
	if err != nil {
		return err
	}
	s.metrics.Write("reminder", "delete")
	s.publish(model.Event{Type: model.EventReminderDeleted, UserID: userID, Reminder: r})
	return nil
}

func (s *Service) QueryReminders(ctx context.Context, opts model.QueryOptions) (model.Page[*model.Reminder], error) {
	return s.store.ListReminders(ctx, opts)
}

func (s *Service) QueryUsers(ctx context.Context, q model.OffsetQuery) ([]model.User, error) {
	return s.store.ListUsers(ctx, q)
}

func (s *Service) SearchMessages(ctx context.Context, q model.OffsetQuery) ([]model.Message, error) {
	return s.store.SearchMessages(ctx, q)
}

func (s *Service) QueryAttachments(ctx context.Context, q model.OffsetQuery) ([]model.Attachment, error) {
	return s.store.ListAttachments(ctx, q)
}

func (s *Service) publish(evt model.Event) {
	if s.pub == nil {
		return
	}
	evt.CreatedAt = s.now().UTC()
	n := s.pub.Publish(evt)
	logging.Debugf(s.logger, "[Service] published %s to %d connection(s)", evt.Type, n)
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
