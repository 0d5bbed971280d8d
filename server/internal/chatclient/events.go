package chatclient

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/gorilla/websocket"

	"chat-drafts/server/internal/model"
)

// Connect 启动事件流读协程并立即返回。断线后按指数退避重连，每次连上都会收到
// 一条 connection.opened，消费方可以据此刷新断线期间错过的数据。
func (c *Client) Connect(ctx context.Context) {
	c.mu.Lock()
	if c.cancel != nil {
		c.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.mu.Unlock()

	c.wg.Add(1)
	go c.streamLoop(ctx)
}

// Close 停止事件流并等待读协程退出。
func (c *Client) Close() error {
	c.mu.Lock()
	cancel := c.cancel
	ws := c.ws
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if ws != nil {
		_ = ws.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second),
		)
		_ = ws.Close()
	}
	c.wg.Wait()
	return nil
}

func (c *Client) streamLoop(ctx context.Context) {
	defer c.wg.Done()

	backoff := c.reconnectMin
	for {
		connected, err := c.streamOnce(ctx)
		if ctx.Err() != nil {
			return
		}
		if connected {
			backoff = c.reconnectMin
		}
		c.logger.Printf("[ChatClient] ⚠️  Event stream disconnected: %v (retry in %s)", err, backoff)

		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > c.reconnectMax {
			backoff = c.reconnectMax
		}
	}
}

// streamOnce 建立一次连接并读到断开为止；connected 表示是否成功握手。
func (c *Client) streamOnce(ctx context.Context) (connected bool, err error) {
	ws, _, err := c.dialer.DialContext(ctx, c.eventsURL(), nil)
	if err != nil {
		return false, fmt.Errorf("dial events: %w", err)
	}

	c.mu.Lock()
	c.ws = ws
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		c.ws = nil
		c.mu.Unlock()
		_ = ws.Close()
	}()

	// ctx 取消时关闭连接，解除 ReadJSON 的阻塞
	stop := context.AfterFunc(ctx, func() { _ = ws.Close() })
	defer stop()

	c.logger.Printf("[ChatClient] ✅ Event stream connected: user=%s", c.userID)
	for {
		var evt model.Event
		if err := ws.ReadJSON(&evt); err != nil {
			return true, err
		}
		c.Emit(evt)
	}
}

func (c *Client) eventsURL() string {
	u := *c.base
	if u.Scheme == "https" {
		u.Scheme = "wss"
	} else {
		u.Scheme = "ws"
	}
	u.Path = "/api/events"
	u.RawQuery = url.Values{"user_id": {c.userID}}.Encode()
	return u.String()
}
