package hub

import (
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// conn 是一个推送连接。所有数据帧只由 writeLoop 串行写出；
// 队列满时丢弃新帧（背压控制），客户端靠 reload 追平。
type conn struct {
	id     string
	userID string
	ws     *websocket.Conn
	send   chan []byte
	logger *log.Logger

	pingInterval time.Duration
	writeTimeout time.Duration

	done      chan struct{}
	closeOnce sync.Once

	// 统计信息
	mu       sync.Mutex
	queued   int64
	sent     int64
	dropped  int64
	openedAt time.Time
}

// ConnStats 是单个连接的统计信息。
type ConnStats struct {
	ConnectionID string    `json:"connection_id"`
	UserID       string    `json:"user_id"`
	Queued       int64     `json:"queued"`
	Sent         int64     `json:"sent"`
	Dropped      int64     `json:"dropped"`
	Pending      int       `json:"pending"`
	OpenedAt     time.Time `json:"opened_at"`
}

func newConn(id, userID string, ws *websocket.Conn, opts Options, logger *log.Logger) *conn {
	return &conn{
		id:           id,
		userID:       userID,
		ws:           ws,
		send:         make(chan []byte, opts.QueueSize),
		logger:       logger,
		pingInterval: opts.PingInterval,
		writeTimeout: opts.WriteTimeout,
		done:         make(chan struct{}),
		openedAt:     time.Now(),
	}
}

// enqueue 非阻塞地把一帧放进发送队列，队列满或连接已关闭时返回 false。
func (c *conn) enqueue(data []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}

	select {
	case c.send <- data:
		c.mu.Lock()
		c.queued++
		c.mu.Unlock()
		return true
	default:
		c.mu.Lock()
		c.dropped++
		c.mu.Unlock()
		c.logger.Printf("[Hub] ⚠️  Queue full, dropping frame: conn=%s user=%s", c.id, c.userID)
		return false
	}
}

// writeLoop 串行写出数据帧，并定期发送 ping。
func (c *conn) writeLoop() {
	defer c.close()

	var tick <-chan time.Time
	if c.pingInterval > 0 {
		ticker := time.NewTicker(c.pingInterval)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case <-c.done:
			return
		case data := <-c.send:
			_ = c.ws.SetWriteDeadline(c.deadline())
			if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
				c.logger.Printf("[Hub] write error: conn=%s err=%v", c.id, err)
				return
			}
			c.mu.Lock()
			c.sent++
			c.mu.Unlock()
		case <-tick:
			if err := c.ws.WriteControl(websocket.PingMessage, nil, c.deadline()); err != nil {
				c.logger.Printf("[Hub] ping error: conn=%s err=%v", c.id, err)
				return
			}
		}
	}
}

// readLoop 只用于感知断开与处理 pong，客户端发来的数据帧被忽略。
func (c *conn) readLoop() {
	defer c.close()

	c.ws.SetReadLimit(4096)
	for {
		if _, _, err := c.ws.ReadMessage(); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				select {
				case <-c.done:
				default:
					c.logger.Printf("[Hub] read error: conn=%s err=%v", c.id, err)
				}
			}
			return
		}
	}
}

func (c *conn) deadline() time.Time {
	if c.writeTimeout <= 0 {
		return time.Now().Add(10 * time.Second)
	}
	return time.Now().Add(c.writeTimeout)
}

func (c *conn) close() {
	c.closeOnce.Do(func() {
		close(c.done)
		if c.ws == nil {
			return
		}
		_ = c.ws.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second),
		)
		_ = c.ws.Close()
	})
}

func (c *conn) stats() ConnStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return ConnStats{
		ConnectionID: c.id,
		UserID:       c.userID,
		Queued:       c.queued,
		Sent:         c.sent,
		Dropped:      c.dropped,
		Pending:      len(c.send),
		OpenedAt:     c.openedAt,
	}
}
