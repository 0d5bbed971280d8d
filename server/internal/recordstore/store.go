// Package recordstore 是后端的持久化层：草稿、提醒，以及只读的用户目录、消息和附件。
//
// 草稿和提醒按 (updated_at DESC, key DESC) 做 keyset 分页，游标是不透明的 base64 字符串；
// 用户、消息和附件按 offset 分页。
package recordstore

import (
	"context"
	"errors"
	"time"

	"chat-drafts/server/internal/model"
)

var (
	ErrNotFound      = errors.New("record not found")
	ErrInvalidCursor = errors.New("invalid cursor")
)

// DefaultLimit 是未指定 limit 时每页的条数。
const DefaultLimit = 25

// Store 是后端存储接口。
//
// 约定：
// - 返回的记录都是副本，调用方可以随意修改；
// - 游标分页只认 QueryOptions 里的 UserID、Next、Limit 和 Filter["channel_cid"]，排序固定。
type Store interface {
	UpsertDraft(ctx context.Context, d *model.Draft) error
	GetDraft(ctx context.Context, userID, channelCID, parentID string) (*model.Draft, error)
	// DeleteDraft 返回被删除的草稿；不存在时返回 ErrNotFound。
	DeleteDraft(ctx context.Context, userID, channelCID, parentID string) (*model.Draft, error)
	ListDrafts(ctx context.Context, opts model.QueryOptions) (model.Page[*model.Draft], error)
	// PurgeDraftsBefore 删除 updated_at 早于 before 的草稿并返回它们。
	PurgeDraftsBefore(ctx context.Context, before time.Time) ([]*model.Draft, error)

	UpsertReminder(ctx context.Context, r *model.Reminder) error
	GetReminder(ctx context.Context, userID, messageID string) (*model.Reminder, error)
	DeleteReminder(ctx context.Context, userID, messageID string) (*model.Reminder, error)
	ListReminders(ctx context.Context, opts model.QueryOptions) (model.Page[*model.Reminder], error)

	// ListUsers 按名称前缀（不区分大小写）过滤，按名称排序。
	ListUsers(ctx context.Context, q model.OffsetQuery) ([]model.User, error)
	// SearchMessages 按文本包含（不区分大小写）过滤，最新的在前。
	SearchMessages(ctx context.Context, q model.OffsetQuery) ([]model.Message, error)
	// ListAttachments 按频道与类型过滤，最新的在前。
	ListAttachments(ctx context.Context, q model.OffsetQuery) ([]model.Attachment, error)
	// Seed 写入只读数据，按 ID 覆盖。
	Seed(ctx context.Context, data model.SeedData) error

	Close() error
}

func normalizeLimit(limit int) int {
	if limit <= 0 {
		return DefaultLimit
	}
	return limit
}
