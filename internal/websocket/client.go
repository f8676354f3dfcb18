package websocket

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// 错误定义
var (
	ErrClientNotFound = errors.New("客户端未找到")
	ErrSendBufferFull = errors.New("发送缓冲区已满")
	ErrInvalidMessage = errors.New("无效的消息格式")
)

// WebSocket配置
const (
	// 写超时
	writeWait = 10 * time.Second

	// 读取pong超时
	pongWait = 60 * time.Second

	// ping发送周期（必须小于pongWait）
	pingPeriod = (pongWait * 9) / 10

	// 监控客户端只发送简单请求
	maxMessageSize = 4 * 1024
)

// Client 监控客户端
type Client struct {
	ID   string          // 客户端ID
	Hub  *Hub            // Hub引用
	Conn *websocket.Conn // WebSocket连接
	Send chan []byte     // 发送通道
}

// NewClient 创建新客户端
func NewClient(hub *Hub, conn *websocket.Conn) *Client {
	return &Client{
		ID:   uuid.New().String(),
		Hub:  hub,
		Conn: conn,
		Send: make(chan []byte, 256),
	}
}

// ReadPump 读取消息
func (c *Client) ReadPump() {
	defer func() {
		c.Hub.Unregister(c)
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(maxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.Hub.logger.Error("WebSocket读取错误",
					zap.String("client_id", c.ID),
					zap.Error(err))
			}
			break
		}

		c.handleMessage(message)
	}
}

// WritePump 写入消息，每条消息一帧
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// Hub关闭了通道
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handleMessage 处理接收到的消息
func (c *Client) handleMessage(data []byte) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil || msg.Type == "" {
		c.Hub.logger.Warn("解析WebSocket消息失败",
			zap.String("client_id", c.ID),
			zap.ByteString("data", data))
		c.sendError(ErrInvalidMessage.Error())
		return
	}

	switch msg.Type {
	case MessageTypePing:
		c.Hub.SendToClient(c.ID, NewMessage(MessageTypePong, nil))

	case MessageTypePong:
		c.Hub.logger.Debug("收到pong", zap.String("client_id", c.ID))

	case MessageTypeStatus:
		if c.Hub.statusProvider == nil {
			c.sendError("状态不可用")
			return
		}
		c.Hub.SendToClient(c.ID, NewMessage(MessageTypeStatus, c.Hub.statusProvider()))

	default:
		c.Hub.logger.Warn("收到不支持的消息类型",
			zap.String("client_id", c.ID),
			zap.String("type", msg.Type))
		c.sendError("不支持的消息类型: " + msg.Type)
	}
}

// sendError 发送错误消息
func (c *Client) sendError(message string) {
	c.Hub.SendToClient(c.ID, NewMessage(MessageTypeError, map[string]string{"error": message}))
}
