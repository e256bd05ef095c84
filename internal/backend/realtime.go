package backend

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"go.uber.org/zap"
	"nhooyr.io/websocket"
)

// EventUsageUpdate 后端推送的新使用记录
const EventUsageUpdate = "usage_update"

// RealtimeEvent /ws/{user_id} 推送消息
type RealtimeEvent struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// WebsocketURL 把 http(s) 基础地址转换为 ws(s)://…/ws/{user_id}
func WebsocketURL(baseURL, userID string) (string, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return "", fmt.Errorf("invalid backend url: %w", err)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	case "http":
		u.Scheme = "ws"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("unsupported backend scheme %q", u.Scheme)
	}
	// Path 保存未转义的值，RawPath 保证 userID 中的 "/" 不被当作分隔符
	escaped := strings.TrimRight(u.EscapedPath(), "/") + "/ws/" + url.PathEscape(userID)
	u.Path = strings.TrimRight(u.Path, "/") + "/ws/" + userID
	u.RawPath = escaped
	return u.String(), nil
}

// Subscribe 订阅实时推送，阻塞直到 ctx 结束或连接断开
func (c *Client) Subscribe(ctx context.Context, userID string, handle func(RealtimeEvent)) error {
	wsURL, err := WebsocketURL(c.baseURL, userID)
	if err != nil {
		return err
	}

	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		return fmt.Errorf("dial realtime feed: %w", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "")
	conn.SetReadLimit(1 << 20)

	c.logger.Info("realtime feed connected", zap.String("user_id", userID))
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("read realtime feed: %w", err)
		}
		var ev RealtimeEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			c.logger.Warn("invalid realtime message", zap.Error(err))
			continue
		}
		handle(ev)
	}
}
