package paginator

import (
	"context"
	"log"
	"time"

	"chat-drafts/server/internal/metrics"
	"chat-drafts/server/internal/model"
	"chat-drafts/server/internal/subscription"
)

// Options 是各领域 manager 共用的构造参数。
type Options struct {
	// UserID 非空时只接收该用户的记录，并作为查询的 user_id。
	UserID     string
	MaxLimit   int
	StaleAfter time.Duration
	Filter     map[string]string
	Sort       []model.SortField
	Logger     *log.Logger
	Metrics    *metrics.Collectors
}

// DraftsClient 是草稿列表需要的后端能力。
type DraftsClient interface {
	QueryDrafts(ctx context.Context, opts model.QueryOptions) (model.Page[*model.Draft], error)
	subscription.Source
}

// NewDraftsManager 创建草稿列表 manager。草稿按 channel（线程草稿按 channel+parent）唯一。
func NewDraftsManager(client DraftsClient, opts Options) *Manager[*model.Draft] {
	return New(Config[*model.Draft]{
		Name:   "DraftsManager",
		Query:  client.QueryDrafts,
		Events: client,
		EventTypes: EventTypes{
			Updated: []model.EventType{model.EventDraftUpdated},
			Deleted: []model.EventType{model.EventDraftDeleted},
		},
		RecordFromEvent: func(evt model.Event) (*model.Draft, bool) {
			return evt.Draft, evt.Draft != nil
		},
		Accept: acceptFor(opts,
			func(d *model.Draft) string { return d.UserID },
			func(d *model.Draft) string { return d.ChannelCID }),
		KeyOf:      (*model.Draft).Key,
		Defaults:   defaults(opts),
		MaxLimit:   opts.MaxLimit,
		StaleAfter: opts.StaleAfter,
		Logger:     opts.Logger,
		Metrics:    opts.Metrics,
	})
}

func defaults(opts Options) model.QueryOptions {
	return model.QueryOptions{
		Filter: opts.Filter,
		Sort:   opts.Sort,
		UserID: opts.UserID,
	}
}

// acceptFor 构造推送事件的过滤条件，与查询参数保持一致：UserID 非空时只接受该用户的记录
// （记录本身没有 user_id 时照单全收），Filter 带 channel_cid 时只接受该频道的记录。
func acceptFor[T any](opts Options, owner, channel func(T) string) func(T) bool {
	userID := opts.UserID
	channelCID := opts.Filter["channel_cid"]
	if userID == "" && channelCID == "" {
		return nil
	}
	return func(rec T) bool {
		if o := owner(rec); userID != "" && o != "" && o != userID {
			return false
		}
		return channelCID == "" || channel(rec) == channelCID
	}
}
