package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"

	"chat-drafts/server/internal/config"
	"chat-drafts/server/internal/hub"
	"chat-drafts/server/internal/metrics"
	"chat-drafts/server/internal/model"
	"chat-drafts/server/internal/recordstore"
	"chat-drafts/server/internal/service"
)

func newTestAPI(t *testing.T, tweaks ...func(*config.Config)) (*httptest.Server, *recordstore.InMemoryStore) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	logger := log.New(io.Discard, "", 0)
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	store := recordstore.NewInMemoryStore()
	h := hub.New(hub.Options{Logger: logger, Metrics: m})
	svc := service.New(store, h, service.Options{Logger: logger, Metrics: m})

	cfg := config.Default()
	cfg.Paging.MaxLimit = 2
	for _, tw := range tweaks {
		tw(cfg)
	}
	srv := httptest.NewServer(NewServer(cfg, svc, h, reg, logger).Routes())
	t.Cleanup(func() {
		h.Close()
		srv.Close()
	})
	return srv, store
}

func doJSON(t *testing.T, method, url string, body any) *http.Response {
	t.Helper()
	var r io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		r = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, url, r)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var out T
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return out
}

// TestDraftRoutes 验证草稿的保存、分页查询与删除。
// 场景：保存 3 份草稿，max_limit=2，第一页 2 条带游标，第二页 1 条不带游标；删除后再删返回 404。
func TestDraftRoutes(t *testing.T) {
	srv, _ := newTestAPI(t)

	for _, ch := range []string{"c1", "c2", "c3"} {
		resp := doJSON(t, http.MethodPut, srv.URL+"/api/drafts", service.DraftInput{
			UserID: "alice", ChannelCID: ch, Message: model.DraftMessage{Text: "hello " + ch},
		})
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("expected 200 saving draft, got %d", resp.StatusCode)
		}
		time.Sleep(2 * time.Millisecond)
	}

	first := decode[model.Page[*model.Draft]](t, doJSON(t, http.MethodGet, srv.URL+"/api/drafts?user_id=alice&limit=10", nil))
	if len(first.Items) != 2 || first.Next == "" {
		t.Fatalf("expected 2 drafts and a cursor, got %d next=%q", len(first.Items), first.Next)
	}
	if first.Items[0].ChannelCID != "c3" {
		t.Fatalf("expected newest draft first, got %s", first.Items[0].ChannelCID)
	}

	second := decode[model.Page[*model.Draft]](t, doJSON(t, http.MethodGet, srv.URL+"/api/drafts?user_id=alice&next="+first.Next, nil))
	if len(second.Items) != 1 || second.Next != "" {
		t.Fatalf("expected last page with 1 draft, got %d next=%q", len(second.Items), second.Next)
	}

	if resp := doJSON(t, http.MethodDelete, srv.URL+"/api/drafts?user_id=alice&channel_cid=c1", nil); resp.StatusCode != http.StatusNoContent {
		t.Fatalf("expected 204 deleting draft, got %d", resp.StatusCode)
	}
	if resp := doJSON(t, http.MethodDelete, srv.URL+"/api/drafts?user_id=alice&channel_cid=c1", nil); resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 deleting missing draft, got %d", resp.StatusCode)
	}
}

// TestDraftRoutesRejectBadInput 验证缺少 user_id、非法 limit 与非法游标返回 400。
func TestDraftRoutesRejectBadInput(t *testing.T) {
	srv, _ := newTestAPI(t)

	for _, path := range []string{
		"/api/drafts",
		"/api/drafts?user_id=alice&limit=abc",
		"/api/drafts?user_id=alice&next=bad!cursor",
	} {
		resp := doJSON(t, http.MethodGet, srv.URL+path, nil)
		if resp.StatusCode != http.StatusBadRequest {
			t.Fatalf("%s: expected 400, got %d", path, resp.StatusCode)
		}
	}
}

// TestReminderRoutes 验证提醒的创建、重复创建冲突、更新与列表。
func TestReminderRoutes(t *testing.T) {
	srv, _ := newTestAPI(t)
	in := service.ReminderInput{UserID: "alice", MessageID: "m1", ChannelCID: "c1"}

	if resp := doJSON(t, http.MethodPost, srv.URL+"/api/reminders", in); resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}
	if resp := doJSON(t, http.MethodPost, srv.URL+"/api/reminders", in); resp.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409, got %d", resp.StatusCode)
	}

	at := time.Date(2030, 1, 1, 9, 0, 0, 0, time.UTC)
	in.RemindAt = &at
	updated := decode[model.Reminder](t, doJSON(t, http.MethodPut, srv.URL+"/api/reminders", in))
	if updated.RemindAt == nil || !updated.RemindAt.Equal(at) {
		t.Fatalf("expected remind_at updated, got %+v", updated)
	}

	page := decode[model.Page[*model.Reminder]](t, doJSON(t, http.MethodGet, srv.URL+"/api/reminders?user_id=alice", nil))
	if len(page.Items) != 1 || page.Items[0].MessageID != "m1" {
		t.Fatalf("unexpected reminders: %+v", page.Items)
	}
	if resp := doJSON(t, http.MethodDelete, srv.URL+"/api/reminders?user_id=alice&message_id=m1", nil); resp.StatusCode != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", resp.StatusCode)
	}
}

// TestOffsetRoutes 验证用户、消息搜索与附件的 offset 查询。
func TestOffsetRoutes(t *testing.T) {
	srv, store := newTestAPI(t)
	base := time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)
	_ = store.Seed(context.Background(), model.SeedData{
		Users:       []model.User{{ID: "u1", Name: "Alice"}, {ID: "u2", Name: "Bob"}},
		Messages:    []model.Message{{ID: "m1", ChannelCID: "c1", Text: "release soon", CreatedAt: base}},
		Attachments: []model.Attachment{{ID: "a1", ChannelCID: "c1", Type: "image", CreatedAt: base}},
	})

	users := decode[struct {
		Users []model.User `json:"users"`
	}](t, doJSON(t, http.MethodGet, srv.URL+"/api/users?q=ali", nil))
	if len(users.Users) != 1 || users.Users[0].ID != "u1" {
		t.Fatalf("unexpected users: %+v", users.Users)
	}

	msgs := decode[struct {
		Messages []model.Message `json:"messages"`
	}](t, doJSON(t, http.MethodGet, srv.URL+"/api/messages/search?q=release", nil))
	if len(msgs.Messages) != 1 {
		t.Fatalf("unexpected messages: %+v", msgs.Messages)
	}

	atts := decode[struct {
		Attachments []model.Attachment `json:"attachments"`
	}](t, doJSON(t, http.MethodGet, srv.URL+"/api/attachments?channel_cid=c1&type=file", nil))
	if atts.Attachments == nil || len(atts.Attachments) != 0 {
		t.Fatalf("expected empty attachment list, got %+v", atts.Attachments)
	}

	if resp := doJSON(t, http.MethodGet, srv.URL+"/api/users?offset=-1", nil); resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for negative offset, got %d", resp.StatusCode)
	}
}

// TestEventsStreamReceivesWrites 验证写操作产生的事件会推送到该用户的 websocket 连接。
func TestEventsStreamReceivesWrites(t *testing.T) {
	srv, _ := newTestAPI(t)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/events?user_id=alice"
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial events: %v", err)
	}
	defer ws.Close()
	_ = ws.SetReadDeadline(time.Now().Add(2 * time.Second))

	var opened model.Event
	if err := ws.ReadJSON(&opened); err != nil || opened.Type != model.EventConnectionOpened {
		t.Fatalf("expected connection.opened, got %+v err=%v", opened, err)
	}

	doJSON(t, http.MethodPut, srv.URL+"/api/drafts", service.DraftInput{UserID: "alice", ChannelCID: "c1"})

	var evt model.Event
	if err := ws.ReadJSON(&evt); err != nil {
		t.Fatalf("read event: %v", err)
	}
	if evt.Type != model.EventDraftUpdated || evt.Draft == nil || evt.Draft.ChannelCID != "c1" {
		t.Fatalf("unexpected event: %+v", evt)
	}
}

// TestMetricsEndpoint 验证 /metrics 暴露了写操作计数。
func TestMetricsEndpoint(t *testing.T) {
	srv, _ := newTestAPI(t)
	doJSON(t, http.MethodPut, srv.URL+"/api/drafts", service.DraftInput{UserID: "alice", ChannelCID: "c1"})

	resp := doJSON(t, http.MethodGet, srv.URL+"/metrics", nil)
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), `chatdrafts_store_writes_total{kind="draft",op="upsert"} 1`) {
		t.Fatalf("expected write counter in metrics output, got:\n%s", body)
	}
}

// TestCORSFollowsConfiguredOrigins 验证只有配置里的来源拿到跨域响应头，未配置的来源被忽略，websocket 也一样。
func TestCORSFollowsConfiguredOrigins(t *testing.T) {
	srv, _ := newTestAPI(t, func(cfg *config.Config) {
		cfg.Server.AllowedOrigins = []string{"https://drafts.example.com"}
	})

	check := func(origin, want string) {
		t.Helper()
		req, err := http.NewRequest(http.MethodOptions, srv.URL+"/api/drafts", nil)
		if err != nil {
			t.Fatalf("expected request, got %v", err)
		}
		req.Header.Set("Origin", origin)
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatalf("expected response, got %v", err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusNoContent {
			t.Fatalf("expected 204 for preflight, got %d", resp.StatusCode)
		}
		if got := resp.Header.Get("Access-Control-Allow-Origin"); got != want {
			t.Fatalf("expected allow-origin %q for %s, got %q", want, origin, got)
		}
	}
	check("https://drafts.example.com", "https://drafts.example.com")
	check("http://localhost:5173", "")

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/events?user_id=u1"
	header := http.Header{"Origin": []string{"http://evil.example.com"}}
	if ws, _, err := websocket.DefaultDialer.Dial(url, header); err == nil {
		ws.Close()
		t.Fatalf("expected websocket from unlisted origin to be rejected")
	}
	header.Set("Origin", "https://drafts.example.com")
	ws, _, err := websocket.DefaultDialer.Dial(url, header)
	if err != nil {
		t.Fatalf("expected websocket from configured origin, got %v", err)
	}
	ws.Close()
}
