package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/d60-Lab/solcials-sync/pkg/logger"
)

const streamWriteTimeout = 10 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// Stream 以 websocket 推送新帖子，每帖一条 JSON 文本帧
// @Summary 实时帖子流
// @Tags 帖子
// @Router /api/v1/stream [get]
func (h *Handler) Stream(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.Debug("stream upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	sub := h.feed.Subscribe()
	defer h.feed.Unsubscribe(sub.ID)

	// 读循环只用于感知客户端断开
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-gone:
			return
		case p, ok := <-sub.C:
			if !ok {
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "feed closed"),
					time.Now().Add(time.Second))
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(streamWriteTimeout))
			if err := conn.WriteJSON(viewOf(p)); err != nil {
				logger.Debug("stream write failed", zap.String("subscriber", sub.ID), zap.Error(err))
				return
			}
		}
	}
}
