// Package chatclient 是 chat-drafts 后端的客户端：HTTP 查询与写入，以及 websocket 事件流。
//
// Client 内嵌 subscription.Emitter，可以直接作为 paginator 的 DraftsClient/RemindersClient
// 与 offsetpage 的查询来源注入；事件流收到的每个事件都会在读协程上同步分发。
package chatclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"chat-drafts/server/internal/model"
	"chat-drafts/server/internal/subscription"
)

// ErrStatus 表示后端返回了非 2xx 状态码。
var ErrStatus = errors.New("unexpected status")

// Options 是 Client 的参数。
type Options struct {
	BaseURL string
	// UserID 作为查询与事件流的默认用户。
	UserID string
	// RequestsPerSecond 为 0 时不限速。
	RequestsPerSecond float64
	Burst             int
	Timeout           time.Duration
	ReconnectMin      time.Duration
	ReconnectMax      time.Duration
	HTTPClient        *http.Client
	Dialer            *websocket.Dialer
	Logger            *log.Logger
}

type Client struct {
	*subscription.Emitter

	base    *url.URL
	userID  string
	http    *http.Client
	limiter *rate.Limiter
	dialer  *websocket.Dialer
	logger  *log.Logger

	reconnectMin time.Duration
	reconnectMax time.Duration

	mu     sync.Mutex
	ws     *websocket.Conn
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func New(opts Options) (*Client, error) {
	base, err := url.Parse(opts.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("base url must be http or https: %q", opts.BaseURL)
	}

	limit := rate.Inf
	if opts.RequestsPerSecond > 0 {
		limit = rate.Limit(opts.RequestsPerSecond)
	}
	burst := opts.Burst
	if burst <= 0 {
		burst = 1
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	dialer := opts.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	if opts.ReconnectMin <= 0 {
		opts.ReconnectMin = 500 * time.Millisecond
	}
	if opts.ReconnectMax < opts.ReconnectMin {
		opts.ReconnectMax = 30 * time.Second
	}

	return &Client{
		Emitter:      subscription.NewEmitter(),
		base:         base,
		userID:       opts.UserID,
		http:         httpClient,
		limiter:      rate.NewLimiter(limit, burst),
		dialer:       dialer,
		logger:       logger,
		reconnectMin: opts.ReconnectMin,
		reconnectMax: opts.ReconnectMax,
	}, nil
}

// UserID 返回默认用户。
func (c *Client) UserID() string {
	return c.userID
}

func (c *Client) QueryDrafts(ctx context.Context, opts model.QueryOptions) (model.Page[*model.Draft], error) {
	var page model.Page[*model.Draft]
	err := c.do(ctx, http.MethodGet, "/api/drafts", c.cursorParams(opts), nil, &page)
	return page, err
}

func (c *Client) QueryReminders(ctx context.Context, opts model.QueryOptions) (model.Page[*model.Reminder], error) {
	var page model.Page[*model.Reminder]
	err := c.do(ctx, http.MethodGet, "/api/reminders", c.cursorParams(opts), nil, &page)
	return page, err
}

func (c *Client) QueryUsers(ctx context.Context, q model.OffsetQuery) ([]model.User, error) {
	var resp struct {
		Users []model.User `json:"users"`
	}
	err := c.do(ctx, http.MethodGet, "/api/users", offsetParams(q), nil, &resp)
	return resp.Users, err
}

func (c *Client) SearchMessages(ctx context.Context, q model.OffsetQuery) ([]model.Message, error) {
	var resp struct {
		Messages []model.Message `json:"messages"`
	}
	err := c.do(ctx, http.MethodGet, "/api/messages/search", offsetParams(q), nil, &resp)
	return resp.Messages, err
}

func (c *Client) QueryAttachments(ctx context.Context, q model.OffsetQuery) ([]model.Attachment, error) {
	var resp struct {
		Attachments []model.Attachment `json:"attachments"`
	}
	err := c.do(ctx, http.MethodGet, "/api/attachments", offsetParams(q), nil, &resp)
	return resp.Attachments, err
}

// DraftRequest 是保存草稿的请求体。
type DraftRequest struct {
	UserID     string             `json:"user_id"`
	ChannelCID string             `json:"channel_cid"`
	ParentID   string             `json:"parent_id,omitempty"`
	Message    model.DraftMessage `json:"message"`
}

// SaveDraft 创建或覆盖草稿，UserID 为空时使用默认用户。
func (c *Client) SaveDraft(ctx context.Context, req DraftRequest) (*model.Draft, error) {
	if req.UserID == "" {
		req.UserID = c.userID
	}
	var d model.Draft
	if err := c.do(ctx, http.MethodPut, "/api/drafts", nil, req, &d); err != nil {
		return nil, err
	}
	return &d, nil
}

func (c *Client) DeleteDraft(ctx context.Context, channelCID, parentID string) error {
	params := url.Values{"user_id": {c.userID}, "channel_cid": {channelCID}}
	if parentID != "" {
		params.Set("parent_id", parentID)
	}
	return c.do(ctx, http.MethodDelete, "/api/drafts", params, nil, nil)
}

// ReminderRequest 是创建或更新提醒的请求体。
type ReminderRequest struct {
	UserID     string     `json:"user_id"`
	MessageID  string     `json:"message_id"`
	ChannelCID string     `json:"channel_cid,omitempty"`
	RemindAt   *time.Time `json:"remind_at,omitempty"`
}

func (c *Client) CreateReminder(ctx context.Context, req ReminderRequest) (*model.Reminder, error) {
	return c.writeReminder(ctx, http.MethodPost, req)
}

func (c *Client) UpdateReminder(ctx context.Context, req ReminderRequest) (*model.Reminder, error) {
	return c.writeReminder(ctx, http.MethodPut, req)
}

func (c *Client) writeReminder(ctx context.Context, method string, req ReminderRequest) (*model.Reminder, error) {
	if req.UserID == "" {
		req.UserID = c.userID
	}
	var r model.Reminder
	if err := c.do(ctx, method, "/api/reminders", nil, req, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

func (c *Client) DeleteReminder(ctx context.Context, messageID string) error {
	params := url.Values{"user_id": {c.userID}, "message_id": {messageID}}
	return c.do(ctx, http.MethodDelete, "/api/reminders", params, nil, nil)
}

func (c *Client) cursorParams(opts model.QueryOptions) url.Values {
	userID := opts.UserID
	if userID == "" {
		userID = c.userID
	}
	params := url.Values{"user_id": {userID}}
	if opts.Limit > 0 {
		params.Set("limit", strconv.Itoa(opts.Limit))
	}
	if opts.Next != "" {
		params.Set("next", opts.Next)
	}
	if channel := opts.Filter["channel_cid"]; channel != "" {
		params.Set("channel_cid", channel)
	}
	return params
}

func offsetParams(q model.OffsetQuery) url.Values {
	params := url.Values{}
	params.Set("offset", strconv.Itoa(q.Offset))
	if q.Limit > 0 {
		params.Set("limit", strconv.Itoa(q.Limit))
	}
	for key, v := range map[string]string{"q": q.Query, "channel_cid": q.ChannelCID, "type": q.Type} {
		if v != "" {
			params.Set(key, v)
		}
	}
	return params
}

// do 在限速之后发出请求；body 非空时按 JSON 发送，out 非空时按 JSON 解析响应。
func (c *Client) do(ctx context.Context, method, path string, params url.Values, body, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit: %w", err)
	}

	u := *c.base
	u.Path = path
	u.RawQuery = params.Encode()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, u.String(), reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var apiErr struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(io.LimitReader(resp.Body, 4096)).Decode(&apiErr)
		return fmt.Errorf("%w: %s %s: %d %s", ErrStatus, method, path, resp.StatusCode, apiErr.Error)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}
