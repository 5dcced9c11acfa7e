package app

import (
	"bufio"
	"context"
	"encoding/json"
	"sync"
	"time"

	"messenger_sync/internal/devserver/repository"
	msgdomain "messenger_sync/internal/messenger/domain"
	"messenger_sync/pkg/logger"
	"messenger_sync/pkg/middlewares"
	"messenger_sync/pkg/sse"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"
)

var (
	connectedFrame = []byte(`{"type":"` + string(msgdomain.KindConnected) + `"}`)
	keepaliveFrame = []byte(`{"type":"` + string(msgdomain.KindKeepalive) + `"}`)
)

// EventHandler push endpoints: SSE stream, websocket and poll
type EventHandler struct {
	broker    repository.Broker
	keepalive time.Duration

	done      chan struct{}
	closeOnce sync.Once
}

// NewEventHandler create EventHandler
func NewEventHandler(broker repository.Broker, keepalive time.Duration) *EventHandler {
	if keepalive <= 0 {
		keepalive = 20 * time.Second
	}
	return &EventHandler{broker: broker, keepalive: keepalive, done: make(chan struct{})}
}

// Close end every open stream, call before shutting the server down
func (h *EventHandler) Close() {
	h.closeOnce.Do(func() { close(h.done) })
}

// Stream GET /events/stream, text/event-stream starting with a connected frame
func (h *EventHandler) Stream(c *fiber.Ctx) error {
	userID := middlewares.UserID(c)
	ctx, cancel := context.WithCancel(context.Background())
	frames, err := h.broker.Subscribe(ctx, userID)
	if err != nil {
		cancel()
		return errorResponse(c, err)
	}

	c.Set(fiber.HeaderContentType, "text/event-stream")
	c.Set(fiber.HeaderCacheControl, "no-cache")
	c.Set(fiber.HeaderConnection, "keep-alive")
	c.Set("X-Accel-Buffering", "no")

	logger.Log.Info("sse subscribed", zap.String("user_id", userID))

	// c 在 handler 返回後就失效, writer 內只能用上面取出的值
	c.Context().SetBodyStreamWriter(func(w *bufio.Writer) {
		defer func() {
			cancel()
			logger.Log.Info("sse closed", zap.String("user_id", userID))
		}()

		ticker := time.NewTicker(h.keepalive)
		defer ticker.Stop()

		if !writeSSE(w, connectedFrame) {
			return
		}
		for {
			select {
			case f, ok := <-frames:
				if !ok || !writeSSE(w, f) {
					return
				}
			case <-ticker.C:
				if !writeSSE(w, keepaliveFrame) {
					return
				}
			case <-h.done:
				return
			}
		}
	})
	return nil
}

func writeSSE(w *bufio.Writer, frame []byte) bool {
	if _, err := w.Write(sse.Format(frame)); err != nil {
		return false
	}
	// 寫入失敗代表 client 已斷線
	return w.Flush() == nil
}

// Poll GET /events/poll, drains the caller's mailbox
func (h *EventHandler) Poll(c *fiber.Ctx) error {
	frames, err := h.broker.Drain(c.UserContext(), middlewares.UserID(c))
	if err != nil {
		return errorResponse(c, err)
	}
	out := make([]json.RawMessage, 0, len(frames))
	for _, f := range frames {
		out = append(out, json.RawMessage(f))
	}
	return c.JSON(out)
}

// UpgradeRequired reject plain HTTP on the websocket route
func UpgradeRequired(c *fiber.Ctx) error {
	if websocket.IsWebSocketUpgrade(c) {
		return c.Next()
	}
	return fiber.ErrUpgradeRequired
}

// Websocket GET /events/ws, same frames as Stream, one per text message
func (h *EventHandler) Websocket(conn *websocket.Conn) {
	userID, _ := conn.Locals(middlewares.TokenUserID).(string)
	ctx, cancel := context.WithCancel(context.Background())
	defer func() {
		cancel()
		conn.Close()
		logger.Log.Info("websocket close", zap.String("user_id", userID))
	}()

	frames, err := h.broker.Subscribe(ctx, userID)
	if err != nil {
		logger.Log.Error("websocket subscribe failed", zap.String("user_id", userID), zap.Error(err))
		return
	}

	//client發出close, fiber會在 read msg 回傳err
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
					logger.Log.Debug("websocket read error", zap.Error(err))
				}
				return
			}
		}
	}()

	ticker := time.NewTicker(h.keepalive)
	defer ticker.Stop()

	if err := conn.WriteMessage(websocket.TextMessage, connectedFrame); err != nil {
		return
	}
	for {
		select {
		case f, ok := <-frames:
			if !ok {
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, f); err != nil {
				logger.Log.Debug("websocket write error", zap.Error(err))
				return
			}
		case <-ticker.C:
			if err := conn.WriteMessage(websocket.TextMessage, keepaliveFrame); err != nil {
				return
			}
		case <-h.done:
			_ = conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutdown"))
			return
		case <-ctx.Done():
			return
		}
	}
}
