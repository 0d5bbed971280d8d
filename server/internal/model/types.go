package model

import (
	"strings"
	"time"
)

// DraftMessage 是草稿里尚未发送的消息体。
type DraftMessage struct {
	ID              string   `json:"id"`
	Text            string   `json:"text"`
	ParentID        string   `json:"parent_id,omitempty"`
	QuotedMessageID string   `json:"quoted_message_id,omitempty"`
	Attachments     []string `json:"attachments,omitempty"`
}

// Draft 是某个频道（或频道内某条线程）的草稿。
// 同一用户在同一频道、同一线程下最多只有一份草稿。
type Draft struct {
	ChannelCID string       `json:"channel_cid"`
	ParentID   string       `json:"parent_id,omitempty"`
	UserID     string       `json:"user_id"`
	Message    DraftMessage `json:"message"`
	CreatedAt  time.Time    `json:"created_at"`
	UpdatedAt  time.Time    `json:"updated_at"`
}

// DraftKey 返回草稿的逻辑主键：线程草稿用 channel+parent，否则只用 channel。
func DraftKey(channelCID, parentID string) string {
	if parentID == "" {
		return channelCID
	}
	return channelCID + ":" + parentID
}

// Key 返回草稿的逻辑主键。
func (d *Draft) Key() string {
	return DraftKey(d.ChannelCID, d.ParentID)
}

// Reminder 是用户对某条消息设置的稍后提醒，按 MessageID 唯一。
type Reminder struct {
	MessageID  string     `json:"message_id"`
	ChannelCID string     `json:"channel_cid"`
	UserID     string     `json:"user_id"`
	RemindAt   *time.Time `json:"remind_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// Key 返回提醒的逻辑主键。
func (r *Reminder) Key() string {
	return r.MessageID
}

// User 是用户目录中的一条记录。
type User struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Image      string    `json:"image,omitempty"`
	Online     bool      `json:"online"`
	LastActive time.Time `json:"last_active"`
}

// Message 是搜索结果中的一条已发送消息。
type Message struct {
	ID         string    `json:"id"`
	ChannelCID string    `json:"channel_cid"`
	UserID     string    `json:"user_id"`
	Text       string    `json:"text"`
	CreatedAt  time.Time `json:"created_at"`
}

// Attachment 是频道内消息携带的附件。
type Attachment struct {
	ID         string    `json:"id"`
	MessageID  string    `json:"message_id"`
	ChannelCID string    `json:"channel_cid"`
	Type       string    `json:"type"`
	Title      string    `json:"title"`
	URL        string    `json:"url"`
	CreatedAt  time.Time `json:"created_at"`
}

// EventType 标识后端推送的事件类型。
type EventType string

const (
	EventDraftUpdated     EventType = "draft.updated"
	EventDraftDeleted     EventType = "draft.deleted"
	EventReminderCreated  EventType = "reminder.created"
	EventReminderUpdated  EventType = "reminder.updated"
	EventReminderDeleted  EventType = "reminder.deleted"
	EventConnectionOpened EventType = "connection.opened"
)

// IsDraftEvent 判断事件是否属于草稿。
func (t EventType) IsDraftEvent() bool {
	return strings.HasPrefix(string(t), "draft.")
}

// Event 是后端推送给客户端的一条通知（websocket 文本帧）。
type Event struct {
	// Seq 由后端 hub 分配，单调递增，便于客户端排查丢帧。
	Seq      int64     `json:"seq,omitempty"`
	Type     EventType `json:"type"`
	UserID   string    `json:"user_id,omitempty"`
	Draft    *Draft    `json:"draft,omitempty"`
	Reminder *Reminder `json:"reminder,omitempty"`
	// ConnectionID 只在 connection.opened 中出现。
	ConnectionID string    `json:"connection_id,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// SortField 描述一个排序字段，Direction 为 1 升序、-1 降序。
type SortField struct {
	Field     string `json:"field"`
	Direction int    `json:"direction"`
}

// QueryOptions 是游标分页查询的参数。
type QueryOptions struct {
	Limit  int               `json:"limit,omitempty"`
	Next   string            `json:"next,omitempty"`
	Filter map[string]string `json:"filter,omitempty"`
	Sort   []SortField       `json:"sort,omitempty"`
	UserID string            `json:"user_id,omitempty"`
}

// Page 是游标分页查询的返回值；Next 为空表示已到最后一页。
type Page[T any] struct {
	Items []T    `json:"items"`
	Next  string `json:"next,omitempty"`
}

// OffsetQuery 是偏移量分页查询的参数（用户目录、消息搜索、附件列表）。
type OffsetQuery struct {
	Offset     int    `json:"offset"`
	Limit      int    `json:"limit"`
	Query      string `json:"query,omitempty"`
	ChannelCID string `json:"channel_cid,omitempty"`
	Type       string `json:"type,omitempty"`
}

// SeedData 是后端启动时加载的演示数据。
type SeedData struct {
	Users       []User       `json:"users"`
	Messages    []Message    `json:"messages"`
	Attachments []Attachment `json:"attachments"`
}
