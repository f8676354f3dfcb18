package hardware

import (
	"time"
)

// Direction 串口数据方向
type Direction string

const (
	DirectionSend    Direction = "SEND"
	DirectionReceive Direction = "RECEIVE"
)

// ConnState 连接状态
type ConnState string

const (
	StateDisconnected ConnState = "disconnected"
	StateConnecting   ConnState = "connecting"
	StateConnected    ConnState = "connected"
	StateStopping     ConnState = "stopping"
)

// PortInfo 可用串口描述
type PortInfo struct {
	Path         string `json:"path"`
	IsUSB        bool   `json:"isUSB"`
	VendorID     string `json:"vendorId,omitempty"`
	ProductID    string `json:"productId,omitempty"`
	SerialNumber string `json:"serialNumber,omitempty"`
	Product      string `json:"product,omitempty"`
}

// Status 连接管理器状态快照
type Status struct {
	State         ConnState  `json:"state"`
	Connected     bool       `json:"connected"`
	Path          string     `json:"path,omitempty"`
	BaudRate      int        `json:"baudRate,omitempty"`
	ConnectedAt   *time.Time `json:"connectedAt,omitempty"`
	LinesSent     uint64     `json:"linesSent"`
	LinesReceived uint64     `json:"linesReceived"`
	WriteErrors   uint64     `json:"writeErrors"`
	LastCommand   string     `json:"lastCommand,omitempty"`
	LastCommandAt *time.Time `json:"lastCommandAt,omitempty"`
}

// TrafficEvent 串口收发事件
type TrafficEvent struct {
	Direction Direction
	Port      string
	Line      string // 不含行结束符
	RequestID string // 触发写入的 HTTP 请求ID，回传行为空
	Err       error
	Time      time.Time
}

// TrafficHandler 收发事件回调
// 在持有管理器锁或读取协程中调用，实现不得阻塞，也不得回调 Manager
type TrafficHandler func(event TrafficEvent)

// StateHandler 连接状态变化回调，约束同 TrafficHandler
type StateHandler func(status Status)

// ManagerConfig 连接管理器配置
type ManagerConfig struct {
	DefaultBaudRate int           // 未提供或无法解析时使用的波特率
	StopGrace       time.Duration // STOP 写入后到关闭串口的等待时间
	ReadTimeout     time.Duration // 串口读取超时
	LineDelimiter   string        // Master 回传行分隔符
}

// DefaultManagerConfig 默认配置
func DefaultManagerConfig() *ManagerConfig {
	return &ManagerConfig{
		DefaultBaudRate: 115200,
		StopGrace:       50 * time.Millisecond,
		ReadTimeout:     100 * time.Millisecond,
		LineDelimiter:   "\r\n",
	}
}
