package websocket

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/wfunc/led-master/internal/hardware"
	"go.uber.org/zap"
)

// Hub 设备监控连接中心
// 串口读取协程通过 Broadcast 推送消息，Broadcast 永不阻塞
type Hub struct {
	// 客户端连接池
	clients   map[string]*Client
	clientsMu sync.RWMutex

	// 消息广播通道
	broadcast chan *Message

	// 注册/注销通道
	register   chan *Client
	unregister chan *Client

	// 当前连接状态，用于新客户端和 status 请求
	statusProvider func() hardware.Status

	pingInterval time.Duration
	done         chan struct{}

	logger *zap.Logger
}

// Message 监控消息
type Message struct {
	Type      string          `json:"type"`           // 消息类型
	Data      json.RawMessage `json:"data,omitempty"` // 消息数据
	Timestamp int64           `json:"timestamp"`      // 毫秒时间戳
}

// MessageType 消息类型
const (
	// 系统消息
	MessageTypeConnected = "connected"
	MessageTypePing      = "ping"
	MessageTypePong      = "pong"
	MessageTypeError     = "error"
	MessageTypeStatus    = "status"

	// 设备消息
	MessageTypeDeviceLine = "device_line" // Master 回传的一行
	MessageTypeCommand    = "command"     // 写入 Master 的一行
	MessageTypeConnection = "connection"  // 连接状态变化
)

// DeviceLine device_line / command 消息数据
type DeviceLine struct {
	Port  string `json:"port"`
	Line  string `json:"line"`
	Error string `json:"error,omitempty"`
}

// NewHub 创建Hub
func NewHub(logger *zap.Logger, pingInterval time.Duration) *Hub {
	if pingInterval <= 0 {
		pingInterval = 30 * time.Second
	}
	return &Hub{
		clients:      make(map[string]*Client),
		broadcast:    make(chan *Message, 256),
		register:     make(chan *Client),
		unregister:   make(chan *Client),
		pingInterval: pingInterval,
		done:         make(chan struct{}),
		logger:       logger,
	}
}

// SetStatusProvider 设置连接状态来源
func (h *Hub) SetStatusProvider(provider func() hardware.Status) {
	h.statusProvider = provider
}

// Run 运行Hub，直到 ctx 取消
func (h *Hub) Run(ctx context.Context) {
	ticker := time.NewTicker(h.pingInterval)
	defer func() {
		ticker.Stop()
		close(h.done)
		h.closeAll()
	}()

	for {
		select {
		case <-ctx.Done():
			return

		case client := <-h.register:
			h.registerClient(client)

		case client := <-h.unregister:
			h.unregisterClient(client)

		case message := <-h.broadcast:
			h.broadcastMessage(message)

		case <-ticker.C:
			h.broadcastMessage(NewMessage(MessageTypePing, nil))
		}
	}
}

// registerClient 注册客户端
func (h *Hub) registerClient(client *Client) {
	h.clientsMu.Lock()
	h.clients[client.ID] = client
	h.clientsMu.Unlock()

	h.logger.Info("监控客户端连接", zap.String("client_id", client.ID))

	var status interface{}
	if h.statusProvider != nil {
		status = h.statusProvider()
	}
	h.SendToClient(client.ID, NewMessage(MessageTypeConnected, status))
}

// unregisterClient 注销客户端
func (h *Hub) unregisterClient(client *Client) {
	h.clientsMu.Lock()
	if _, ok := h.clients[client.ID]; ok {
		delete(h.clients, client.ID)
		close(client.Send)
	}
	h.clientsMu.Unlock()

	h.logger.Info("监控客户端断开", zap.String("client_id", client.ID))
}

func (h *Hub) closeAll() {
	h.clientsMu.Lock()
	defer h.clientsMu.Unlock()
	for id, client := range h.clients {
		delete(h.clients, id)
		close(client.Send)
	}
}

// broadcastMessage 广播消息
func (h *Hub) broadcastMessage(message *Message) {
	data, err := json.Marshal(message)
	if err != nil {
		h.logger.Error("序列化消息失败", zap.Error(err))
		return
	}

	h.clientsMu.RLock()
	for _, client := range h.clients {
		select {
		case client.Send <- data:
		default:
			h.logger.Warn("客户端发送缓冲区满", zap.String("client_id", client.ID))
		}
	}
	h.clientsMu.RUnlock()
}

// SendToClient 发送消息给指定客户端
func (h *Hub) SendToClient(clientID string, message *Message) error {
	data, err := json.Marshal(message)
	if err != nil {
		return err
	}

	h.clientsMu.RLock()
	defer h.clientsMu.RUnlock()

	client, ok := h.clients[clientID]
	if !ok {
		return ErrClientNotFound
	}

	select {
	case client.Send <- data:
		return nil
	default:
		return ErrSendBufferFull
	}
}

// GetOnlineCount 获取在线客户端数
func (h *Hub) GetOnlineCount() int {
	h.clientsMu.RLock()
	defer h.clientsMu.RUnlock()
	return len(h.clients)
}

// Broadcast 广播消息，缓冲区满时丢弃
func (h *Hub) Broadcast(message *Message) {
	select {
	case h.broadcast <- message:
	default:
		h.logger.Warn("广播缓冲区满，丢弃消息", zap.String("type", message.Type))
	}
}

// HandleTraffic 连接管理器收发事件回调
func (h *Hub) HandleTraffic(event hardware.TrafficEvent) {
	msgType := MessageTypeDeviceLine
	if event.Direction == hardware.DirectionSend {
		msgType = MessageTypeCommand
	}
	line := DeviceLine{Port: event.Port, Line: event.Line}
	if event.Err != nil {
		line.Error = event.Err.Error()
	}
	h.Broadcast(NewMessage(msgType, line))
}

// HandleState 连接管理器状态回调
func (h *Hub) HandleState(status hardware.Status) {
	h.Broadcast(NewMessage(MessageTypeConnection, status))
}

// Register 注册客户端
func (h *Hub) Register(client *Client) bool {
	select {
	case h.register <- client:
		return true
	case <-h.done:
		return false
	}
}

// Unregister 注销客户端
func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

// NewMessage 构造消息，data 为 nil 时省略
func NewMessage(msgType string, data interface{}) *Message {
	msg := &Message{
		Type:      msgType,
		Timestamp: time.Now().UnixMilli(),
	}
	if data != nil {
		if raw, err := json.Marshal(data); err == nil {
			msg.Data = raw
		}
	}
	return msg
}
