// Package hub 把后端产生的 model.Event 通过 websocket 推送给已连接的客户端。
//
// 每个连接一个有界发送队列、一个写协程；Publish 从不阻塞调用方。
package hub

import (
	"encoding/json"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"chat-drafts/server/internal/metrics"
	"chat-drafts/server/internal/model"
)

const defaultQueueSize = 64

// Options 是 Hub 的参数。
type Options struct {
	QueueSize    int
	PingInterval time.Duration
	WriteTimeout time.Duration
	Logger       *log.Logger
	Metrics      *metrics.Collectors
	Now          func() time.Time
}

// Hub 管理所有推送连接。
type Hub struct {
	opts    Options
	logger  *log.Logger
	metrics *metrics.Collectors

	mu    sync.RWMutex
	conns map[string]*conn

	// pubMu 串行化“分配序号 + 入队”，保证同一连接上的帧按 Seq 递增排列
	pubMu sync.Mutex
	seq   int64
}

func New(opts Options) *Hub {
	if opts.QueueSize <= 0 {
		opts.QueueSize = defaultQueueSize
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	return &Hub{
		opts:    opts,
		logger:  logger,
		metrics: opts.Metrics,
		conns:   make(map[string]*conn),
	}
}

// Serve 接管一个已升级的 websocket 连接并阻塞到连接关闭。
// userID 非空时只推送该用户的事件；连接建立后先发送一条 connection.opened。
func (h *Hub) Serve(ws *websocket.Conn, userID string) {
	c := newConn(uuid.NewString(), userID, ws, h.opts, h.logger)

	h.pubMu.Lock()
	h.mu.Lock()
	h.conns[c.id] = c
	total := len(h.conns)
	h.mu.Unlock()
	if data, err := h.encode(model.Event{Type: model.EventConnectionOpened, UserID: userID, ConnectionID: c.id}); err == nil {
		c.enqueue(data)
	}
	h.pubMu.Unlock()
	h.metrics.HubConnected()
	h.logger.Printf("[Hub] 🔌 Connection opened: conn=%s user=%s (total: %d)", c.id, userID, total)

	defer func() {
		c.close()
		h.mu.Lock()
		delete(h.conns, c.id)
		remaining := len(h.conns)
		h.mu.Unlock()
		h.metrics.HubDisconnected()
		st := c.stats()
		h.logger.Printf("[Hub] Connection closed: conn=%s sent=%d dropped=%d (remaining: %d)",
			c.id, st.Sent, st.Dropped, remaining)
	}()

	go c.writeLoop()
	c.readLoop()
}

// Publish 把事件推送给所有订阅了该用户的连接，返回成功入队的连接数。
func (h *Hub) Publish(evt model.Event) int {
	h.pubMu.Lock()
	defer h.pubMu.Unlock()

	data, err := h.encode(evt)
	if err != nil {
		h.logger.Printf("[Hub] ❌ encode event failed: type=%s err=%v", evt.Type, err)
		return 0
	}

	h.mu.RLock()
	targets := make([]*conn, 0, len(h.conns))
	for _, c := range h.conns {
		if c.userID == "" || evt.UserID == "" || c.userID == evt.UserID {
			targets = append(targets, c)
		}
	}
	h.mu.RUnlock()

	delivered := 0
	for _, c := range targets {
		if c.enqueue(data) {
			delivered++
		} else {
			h.metrics.HubDropped()
		}
	}
	h.metrics.HubPublished()
	return delivered
}

// encode 分配序号与时间戳并序列化，调用方必须持有 pubMu。
func (h *Hub) encode(evt model.Event) ([]byte, error) {
	h.seq++
	evt.Seq = h.seq
	if evt.CreatedAt.IsZero() {
		evt.CreatedAt = h.opts.Now().UTC()
	}

	data, err := json.Marshal(evt)
	if err != nil {
		return nil, fmt.Errorf("marshal event: %w", err)
	}
	return data, nil
}

// Stats 返回所有连接的统计信息，按建立时间排序。
func (h *Hub) Stats() []ConnStats {
	h.mu.RLock()
	out := make([]ConnStats, 0, len(h.conns))
	for _, c := range h.conns {
		out = append(out, c.stats())
	}
	h.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].OpenedAt.Before(out[j].OpenedAt) })
	return out
}

// ConnectionCount 返回当前连接数。
func (h *Hub) ConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}

// Close 关闭所有连接，Serve 会随之返回。
func (h *Hub) Close() {
	h.mu.RLock()
	conns := make([]*conn, 0, len(h.conns))
	for _, c := range h.conns {
		conns = append(conns, c)
	}
	h.mu.RUnlock()

	for _, c := range conns {
		c.close()
	}
}
