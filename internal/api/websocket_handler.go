package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	apperrors "github.com/wfunc/led-master/internal/errors"
	ws "github.com/wfunc/led-master/internal/websocket"
	"go.uber.org/zap"
)

// MonitorHandler 设备监控WebSocket处理器
type MonitorHandler struct {
	hub      *ws.Hub
	upgrader websocket.Upgrader
	logger   *zap.Logger
}

// NewMonitorHandler 创建监控处理器
func NewMonitorHandler(hub *ws.Hub, readBufferSize, writeBufferSize int, logger *zap.Logger) *MonitorHandler {
	if readBufferSize <= 0 {
		readBufferSize = 1024
	}
	if writeBufferSize <= 0 {
		writeBufferSize = 1024
	}
	return &MonitorHandler{
		hub: hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  readBufferSize,
			WriteBufferSize: writeBufferSize,
			CheckOrigin: func(r *http.Request) bool {
				// 服务只监听本机
				return true
			},
		},
		logger: logger,
	}
}

// Monitor 升级为监控连接
func (h *MonitorHandler) Monitor(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade 已写入错误响应
		h.logger.Error("WebSocket升级失败",
			zap.String("ip", c.ClientIP()),
			zap.Error(apperrors.Wrap(err, apperrors.ErrWebSocketUpgrade)))
		return
	}

	client := ws.NewClient(h.hub, conn)
	if !h.hub.Register(client) {
		conn.Close()
		return
	}

	go client.WritePump()
	go client.ReadPump()

	h.logger.Info("监控连接建立",
		zap.String("client_id", client.ID),
		zap.String("ip", c.ClientIP()))
}

// OnlineCount 获取在线监控客户端数
func (h *MonitorHandler) OnlineCount(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"online_count": h.hub.GetOnlineCount(),
	})
}
