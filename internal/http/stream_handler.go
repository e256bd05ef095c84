package httpapi

import (
	"context"
	"net/http"
	"time"

	"compliance-dashboard/internal/domain"
	"compliance-dashboard/internal/session"
	"compliance-dashboard/internal/view"

	"go.uber.org/zap"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

// streamSnapshot 完整视图快照消息
const streamSnapshot = "snapshot"

const (
	writeTimeout = 5 * time.Second
	pingInterval = 30 * time.Second
)

// streamMessage 推送给前端的消息
type streamMessage struct {
	Type string    `json:"type"`
	At   time.Time `json:"at"`
	Data any       `json:"data,omitempty"`
}

// StreamHandler GET /api/v1/ws：推送当前会话视图的变化
type StreamHandler struct {
	sessions sessionResolver
	views    *Views
	origins  []string
	logger   *zap.Logger
}

func NewStreamHandler(store session.Store, cookie CookieConfig, views *Views, origins []string, logger *zap.Logger) *StreamHandler {
	return &StreamHandler{sessions: sessionResolver{store: store, cookie: cookie}, views: views, origins: origins, logger: logger}
}

func (h *StreamHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	sess, err := h.sessions.resolve(r.Context(), r)
	if err != nil {
		writeError(w, err)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: h.origins})
	if err != nil {
		h.logger.Warn("websocket accept failed", zap.Error(err))
		return
	}
	defer conn.Close(websocket.StatusInternalError, "stream ended")

	// 只推送，不读取客户端消息
	ctx := conn.CloseRead(r.Context())

	switch sess.Role {
	case domain.RolePatient:
		err = h.streamPatient(ctx, conn, sess)
	case domain.RoleDoctor:
		err = h.streamDoctor(ctx, conn, sess)
	default:
		err = domain.ErrWrongRole
	}
	if err != nil && ctx.Err() == nil {
		h.logger.Warn("stream closed with error", zap.String("role", string(sess.Role)), zap.Error(err))
		return
	}
	conn.Close(websocket.StatusNormalClosure, "")
}

func (h *StreamHandler) streamPatient(ctx context.Context, conn *websocket.Conn, sess *domain.Session) error {
	pv, err := h.views.Patient(ctx, sess)
	if err != nil {
		return err
	}

	events := make(chan view.Event, 16)
	cancel := pv.Subscribe(func(ev view.Event) {
		select {
		case events <- ev:
		default:
			// 客户端太慢时丢弃事件，下一次快照会补齐
		}
	})
	defer cancel()

	if err := write(ctx, conn, streamMessage{Type: streamSnapshot, At: time.Now(), Data: pv.Snapshot()}); err != nil {
		return err
	}

	ping := time.NewTicker(pingInterval)
	defer ping.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev := <-events:
			msg := streamMessage{Type: ev.Type, At: ev.At, Data: ev.Data}
			if ev.Type == view.EventRefreshed || ev.Type == view.EventPairing {
				msg.Data = pv.Snapshot()
			}
			if err := write(ctx, conn, msg); err != nil {
				return err
			}
		case <-ping.C:
			if err := conn.Ping(ctx); err != nil {
				return err
			}
		}
	}
}

func (h *StreamHandler) streamDoctor(ctx context.Context, conn *websocket.Conn, sess *domain.Session) error {
	dv, err := h.views.Doctor(ctx, sess)
	if err != nil {
		return err
	}
	if err := write(ctx, conn, streamMessage{Type: streamSnapshot, At: time.Now(), Data: dv.Snapshot()}); err != nil {
		return err
	}

	ping := time.NewTicker(pingInterval)
	defer ping.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ping.C:
			if err := conn.Ping(ctx); err != nil {
				return err
			}
		}
	}
}

func write(ctx context.Context, conn *websocket.Conn, msg streamMessage) error {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return wsjson.Write(ctx, conn, msg)
}
