package offsetpage

import (
	"context"

	"chat-drafts/server/internal/model"
)

// UsersClient 查询用户目录。
type UsersClient interface {
	QueryUsers(ctx context.Context, q model.OffsetQuery) ([]model.User, error)
}

// MessageSearcher 按文本搜索已发送的消息。
type MessageSearcher interface {
	SearchMessages(ctx context.Context, q model.OffsetQuery) ([]model.Message, error)
}

// AttachmentsClient 列出频道内的附件。
type AttachmentsClient interface {
	QueryAttachments(ctx context.Context, q model.OffsetQuery) ([]model.Attachment, error)
}

// PaginatedUsers 返回按名称前缀过滤的用户列表，search 为空时列出全部。
func PaginatedUsers(client UsersClient, search string, opts Options) *Pager[model.User] {
	return New[model.User]("UsersPager", client.QueryUsers,
		func(u model.User) string { return u.ID },
		model.OffsetQuery{Query: search}, opts)
}

// PaginatedSearchedMessages 返回文本包含 search 的消息；channelCID 非空时只搜该频道。
func PaginatedSearchedMessages(client MessageSearcher, search, channelCID string, opts Options) *Pager[model.Message] {
	return New[model.Message]("MessageSearchPager", client.SearchMessages,
		func(m model.Message) string { return m.ID },
		model.OffsetQuery{Query: search, ChannelCID: channelCID}, opts)
}

// PaginatedAttachments 返回频道内的附件，attachmentType 非空时按类型过滤（image、file 等）。
func PaginatedAttachments(client AttachmentsClient, channelCID, attachmentType string, opts Options) *Pager[model.Attachment] {
	return New[model.Attachment]("AttachmentsPager", client.QueryAttachments,
		func(a model.Attachment) string { return a.ID },
		model.OffsetQuery{ChannelCID: channelCID, Type: attachmentType}, opts)
}
