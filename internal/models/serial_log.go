package models

import (
	"time"

	"gorm.io/gorm"
)

// SerialDirection 串口数据方向
type SerialDirection string

const (
	SerialDirectionSend    SerialDirection = "SEND"    // 写入 Master
	SerialDirectionReceive SerialDirection = "RECEIVE" // Master 回传
)

// SerialLogLevel 日志级别
type SerialLogLevel string

const (
	SerialLogLevelInfo  SerialLogLevel = "INFO"
	SerialLogLevelError SerialLogLevel = "ERROR"
)

// SerialLog 串口通信日志
type SerialLog struct {
	ID        uint           `gorm:"primaryKey;autoIncrement" json:"id"`
	CreatedAt time.Time      `gorm:"index;not null" json:"created_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`

	Direction SerialDirection `gorm:"type:varchar(10);index;not null" json:"direction"`
	Level     SerialLogLevel  `gorm:"type:varchar(10);default:INFO" json:"level"`
	Port      string          `gorm:"type:varchar(255);index" json:"port"`

	// Command 为指令行第一个字段（Gid）或 STOP
	Command    string `gorm:"type:varchar(64);index" json:"command,omitempty"`
	RawData    string `gorm:"type:text" json:"raw_data"`
	HexData    string `gorm:"type:text" json:"hex_data,omitempty"`
	BytesCount int    `gorm:"default:0" json:"bytes_count"`
	ErrorMsg   string `gorm:"type:text" json:"error_msg,omitempty"`

	RequestID string `gorm:"type:varchar(100);index" json:"request_id,omitempty"`
	SessionID string `gorm:"type:varchar(100);index" json:"session_id,omitempty"`

	Timestamp int64 `gorm:"index" json:"timestamp"` // Unix时间戳（毫秒）
}

// TableName 指定表名
func (SerialLog) TableName() string {
	return "serial_logs"
}

// BeforeCreate 创建前的钩子
func (s *SerialLog) BeforeCreate(tx *gorm.DB) error {
	if s.CreatedAt.IsZero() {
		s.CreatedAt = time.Now()
	}
	if s.Timestamp == 0 {
		s.Timestamp = s.CreatedAt.UnixMilli()
	}
	if s.Level == "" {
		s.Level = SerialLogLevelInfo
	}
	return nil
}

// SerialLogQuery 查询参数
type SerialLogQuery struct {
	Direction SerialDirection `json:"direction,omitempty"`
	Level     SerialLogLevel  `json:"level,omitempty"`
	Port      string          `json:"port,omitempty"`
	Command   string          `json:"command,omitempty"`
	Contains  string          `json:"contains,omitempty"`
	SessionID string          `json:"session_id,omitempty"`
	StartTime *time.Time      `json:"start_time,omitempty"`
	EndTime   *time.Time      `json:"end_time,omitempty"`
	HasError  *bool           `json:"has_error,omitempty"`
	Limit     int             `json:"limit,omitempty"`
	Offset    int             `json:"offset,omitempty"`
	OrderBy   string          `json:"order_by,omitempty"`
}

// SerialLogStats 统计信息
type SerialLogStats struct {
	TotalCount   int64      `json:"total_count"`
	TotalSend    int64      `json:"total_send"`
	TotalReceive int64      `json:"total_receive"`
	TotalErrors  int64      `json:"total_errors"`
	TotalBytes   int64      `json:"total_bytes"`
	FirstAt      *time.Time `json:"first_at,omitempty"`
	LastAt       *time.Time `json:"last_at,omitempty"`
}
