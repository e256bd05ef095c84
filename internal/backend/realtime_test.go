package backend

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"nhooyr.io/websocket"
)

func TestWebsocketURL(t *testing.T) {
	u, err := WebsocketURL("https://backend.example/api", "u1")
	require.NoError(t, err)
	assert.Equal(t, "wss://backend.example/api/ws/u1", u)

	u, err = WebsocketURL("http://localhost:8001/api/", "u 2")
	require.NoError(t, err)
	assert.Equal(t, "ws://localhost:8001/api/ws/u%202", u)

	u, err = WebsocketURL("http://localhost:8001/api", "Alice Smith")
	require.NoError(t, err)
	assert.Equal(t, "ws://localhost:8001/api/ws/Alice%20Smith", u)

	u, err = WebsocketURL("http://localhost:8001/api", "a/b")
	require.NoError(t, err)
	assert.Equal(t, "ws://localhost:8001/api/ws/a%2Fb", u)

	_, err = WebsocketURL("ftp://x", "u1")
	assert.Error(t, err)
}

func TestSubscribe_DeliversEventsUntilCancelled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/ws/u1", r.URL.Path)
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "")
		ctx := r.Context()
		_ = conn.Write(ctx, websocket.MessageText, []byte(`not json`))
		_ = conn.Write(ctx, websocket.MessageText, []byte(`{"type":"usage_update","data":{"patient_id":"u1"}}`))
		// 阻塞到客户端断开
		_, _, _ = conn.Read(ctx)
	}))
	defer srv.Close()

	c := NewClient(Options{BaseURL: srv.URL + "/api"}, zap.NewNop())
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	got := make(chan RealtimeEvent, 1)
	done := make(chan error, 1)
	go func() {
		done <- c.Subscribe(ctx, "u1", func(ev RealtimeEvent) { got <- ev })
	}()

	select {
	case ev := <-got:
		assert.Equal(t, EventUsageUpdate, ev.Type)
		assert.JSONEq(t, `{"patient_id":"u1"}`, string(ev.Data))
	case <-time.After(3 * time.Second):
		t.Fatal("no realtime event received")
	}

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("subscribe did not return after cancel")
	}
}
