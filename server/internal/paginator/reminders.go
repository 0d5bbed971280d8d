package paginator

import (
	"context"

	"chat-drafts/server/internal/model"
	"chat-drafts/server/internal/subscription"
)

// RemindersClient 是提醒列表需要的后端能力。
type RemindersClient interface {
	QueryReminders(ctx context.Context, opts model.QueryOptions) (model.Page[*model.Reminder], error)
	subscription.Source
}

// NewRemindersManager 创建提醒列表 manager，提醒按 message_id 唯一。
// reminder.created 与 reminder.updated 都按 upsert 处理。
func NewRemindersManager(client RemindersClient, opts Options) *Manager[*model.Reminder] {
	return New(Config[*model.Reminder]{
		Name:   "RemindersManager",
		Query:  client.QueryReminders,
		Events: client,
		EventTypes: EventTypes{
			Updated: []model.EventType{model.EventReminderCreated, model.EventReminderUpdated},
			Deleted: []model.EventType{model.EventReminderDeleted},
		},
		RecordFromEvent: func(evt model.Event) (*model.Reminder, bool) {
			return evt.Reminder, evt.Reminder != nil
		},
		Accept: acceptFor(opts,
			func(r *model.Reminder) string { return r.UserID },
			func(r *model.Reminder) string { return r.ChannelCID }),
		KeyOf:      (*model.Reminder).Key,
		Defaults:   defaults(opts),
		MaxLimit:   opts.MaxLimit,
		StaleAfter: opts.StaleAfter,
		Logger:     opts.Logger,
		Metrics:    opts.Metrics,
	})
}
