package chat

import (
	"context"
	"net"
	"net/http"
	"time"

	"ChatRelay/logger"
	"ChatRelay/tools/ids"
	"ChatRelay/tools/safe"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// HandleWS ===== WebSocket 入口 =====
// 连接状态机：Connecting -> Connected -> (房间订阅 0..N) -> Disconnected。
// 退出时统一走 Disconnect 做 Registry 清理 + 离线广播。
func (s *Server) HandleWS(c *gin.Context) {
	userID := c.Query("user_id")
	if userID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"message": "user_id is required"})
		return
	}

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// 常见：非 WebSocket 请求/握手失败
		logger.Infof("[ws] upgrade error: %v", err)
		return
	}

	client := NewClient(ids.GenerateString(), userID, ws, s.conf.SendQueueSize)
	safe.Go("client-writer:"+client.ConnID, client.WritePump)

	ctx := c.Request.Context()
	if err := s.gw.Connect(ctx, client); err != nil {
		logger.Warnf("[ws] connect user=%s err: %v", userID, err)
		client.Push(BuildErrorFrame(err.Error()))
		// 握手已完成但会话未登记：直接收尾
		s.teardown(client)
		return
	}

	// ---- 读循环：只读，不写；出错即退出（写协程由 Close 收尾） ----
	for {
		mt, data, rerr := ws.ReadMessage()
		if rerr != nil {
			if websocket.IsCloseError(rerr,
				websocket.CloseNormalClosure,
				websocket.CloseGoingAway,
				websocket.CloseNoStatusReceived,
			) {
				logger.Infof("[ws] peer closed conn=%s err=%v", client.ConnID, rerr)
			} else if ne, ok := rerr.(net.Error); ok && ne.Timeout() {
				logger.Infof("[ws] read timeout conn=%s err=%v", client.ConnID, rerr)
			} else {
				logger.Infof("[ws] read err conn=%s err=%v", client.ConnID, rerr)
			}
			break
		}
		if mt != websocket.TextMessage && mt != websocket.BinaryMessage {
			continue
		}

		frame, perr := ParseClientFrame(data)
		if perr != nil {
			sample := data
			if len(sample) > 256 {
				sample = sample[:256]
			}
			logger.Warnf("[ws] bad frame conn=%s err=%v sample=%q", client.ConnID, perr, sample)
			client.Push(BuildErrorFrame(perr.Error()))
			continue
		}

		s.gw.HandleFrame(ctx, client, frame)
	}

	// ---- 退出阶段：下线、清理、关连接 ----
	{
		dctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		s.gw.Disconnect(dctx, client.ConnID)
		cancel()
	}
	s.teardown(client)
}

func (s *Server) teardown(client *Client) {
	client.Close()
}
