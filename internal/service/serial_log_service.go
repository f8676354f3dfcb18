package service

import (
	"encoding/hex"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/wfunc/led-master/internal/config"
	"github.com/wfunc/led-master/internal/hardware"
	"github.com/wfunc/led-master/internal/logger"
	"github.com/wfunc/led-master/internal/models"
	"github.com/wfunc/led-master/internal/repository"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// SerialLogService 串口日志服务
// 收发记录先进入缓冲通道，由后台协程批量写库
type SerialLogService struct {
	repo      *repository.SerialLogRepository
	logger    *zap.Logger
	cfg       config.SerialLogConfig
	mu        sync.Mutex
	buffer    []*models.SerialLog
	bufferCh  chan *models.SerialLog
	stopCh    chan struct{}
	done      chan struct{}
	stopOnce  sync.Once
	sessionID string
}

// NewSerialLogService 创建串口日志服务
func NewSerialLogService(db *gorm.DB, cfg config.SerialLogConfig) *SerialLogService {
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = 5 * time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}

	service := &SerialLogService{
		repo:      repository.NewSerialLogRepository(db),
		logger:    logger.GetModuleLogger("database"),
		cfg:       cfg,
		buffer:    make([]*models.SerialLog, 0, cfg.BatchSize),
		bufferCh:  make(chan *models.SerialLog, cfg.BatchSize*10),
		stopCh:    make(chan struct{}),
		done:      make(chan struct{}),
		sessionID: uuid.New().String(),
	}

	go service.backgroundWriter()

	return service
}

// SessionID 本次进程的会话ID
func (s *SerialLogService) SessionID() string {
	return s.sessionID
}

// backgroundWriter 后台写入协程
func (s *SerialLogService) backgroundWriter() {
	defer close(s.done)

	ticker := time.NewTicker(s.cfg.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case log := <-s.bufferCh:
			s.mu.Lock()
			s.buffer = append(s.buffer, log)
			if len(s.buffer) >= s.cfg.BatchSize {
				s.flushBuffer()
			}
			s.mu.Unlock()

		case <-ticker.C:
			s.mu.Lock()
			s.flushBuffer()
			s.mu.Unlock()

		case <-s.stopCh:
			// 退出前写入剩余的日志
			s.mu.Lock()
			for {
				select {
				case log := <-s.bufferCh:
					s.buffer = append(s.buffer, log)
					continue
				default:
				}
				break
			}
			s.flushBuffer()
			s.mu.Unlock()
			return
		}
	}
}

// flushBuffer 写入缓冲区的日志到数据库，调用方持有 s.mu
func (s *SerialLogService) flushBuffer() {
	if len(s.buffer) == 0 {
		return
	}

	start := time.Now()
	err := s.repo.CreateBatch(s.buffer)
	logger.LogDatabaseOperation("create_batch", "serial_logs", time.Since(start), err)
	if err != nil {
		s.logger.Error("批量写入串口日志失败", zap.Int("count", len(s.buffer)), zap.Error(err))
	} else {
		s.logger.Debug("批量写入串口日志成功", zap.Int("count", len(s.buffer)))
	}

	s.buffer = make([]*models.SerialLog, 0, s.cfg.BatchSize)
}

// Flush 立即写入缓冲区
func (s *SerialLogService) Flush() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for {
		select {
		case log := <-s.bufferCh:
			s.buffer = append(s.buffer, log)
			continue
		default:
		}
		break
	}
	s.flushBuffer()
}

func (s *SerialLogService) enqueue(log *models.SerialLog) {
	if !s.cfg.Enabled {
		return
	}
	select {
	case <-s.stopCh:
		return
	default:
	}

	select {
	case s.bufferCh <- log:
	default:
		s.logger.Warn("串口日志缓冲区满，丢弃日志", zap.String("data", log.RawData))
	}
}

func (s *SerialLogService) newLog(direction models.SerialDirection, port, line string) *models.SerialLog {
	now := time.Now()
	return &models.SerialLog{
		Direction:  direction,
		Level:      models.SerialLogLevelInfo,
		Port:       port,
		RawData:    line,
		HexData:    strings.ToUpper(hex.EncodeToString([]byte(line))),
		BytesCount: len(line),
		SessionID:  s.sessionID,
		CreatedAt:  now,
		Timestamp:  now.UnixMilli(),
	}
}

// LogSend 记录写入 Master 的一行
func (s *SerialLogService) LogSend(port, line, requestID string) {
	log := s.newLog(models.SerialDirectionSend, port, line)
	log.Command = commandName(line)
	log.RequestID = requestID
	s.enqueue(log)
}

// LogReceive 记录 Master 回传的一行
func (s *SerialLogService) LogReceive(port, line string) {
	s.enqueue(s.newLog(models.SerialDirectionReceive, port, line))
}

// LogError 记录错误日志
func (s *SerialLogService) LogError(direction models.SerialDirection, port, line, requestID, errorMsg string) {
	log := s.newLog(direction, port, line)
	log.Level = models.SerialLogLevelError
	log.ErrorMsg = errorMsg
	log.RequestID = requestID
	if direction == models.SerialDirectionSend {
		log.Command = commandName(line)
	}
	s.enqueue(log)
}

// HandleTraffic 连接管理器收发事件回调
func (s *SerialLogService) HandleTraffic(event hardware.TrafficEvent) {
	direction := models.SerialDirection(event.Direction)
	if event.Err != nil {
		s.LogError(direction, event.Port, event.Line, event.RequestID, event.Err.Error())
		return
	}
	if direction == models.SerialDirectionSend {
		s.LogSend(event.Port, event.Line, event.RequestID)
		return
	}
	s.LogReceive(event.Port, event.Line)
}

// commandName 取指令行的第一个字段（Gid），STOP 原样返回
func commandName(line string) string {
	line = strings.TrimSpace(line)
	if idx := strings.Index(line, ","); idx >= 0 {
		return line[:idx]
	}
	return line
}

// Query 查询日志
func (s *SerialLogService) Query(query *models.SerialLogQuery) ([]*models.SerialLog, int64, error) {
	return s.repo.Query(query)
}

// GetStats 获取统计信息
func (s *SerialLogService) GetStats(startTime, endTime *time.Time) (*models.SerialLogStats, error) {
	return s.repo.GetStats(startTime, endTime)
}

// GetLatestLogs 获取最新的日志
func (s *SerialLogService) GetLatestLogs(limit int, direction models.SerialDirection) ([]*models.SerialLog, error) {
	return s.repo.GetLatest(limit, direction)
}

// CleanupOldLogs 清理旧日志，retentionDays<=0 时使用配置值
func (s *SerialLogService) CleanupOldLogs(retentionDays int) (int64, error) {
	if retentionDays <= 0 {
		retentionDays = s.cfg.RetentionDays
	}
	deleted, err := s.repo.CleanupLogs(retentionDays)
	if err != nil {
		return 0, err
	}
	if deleted > 0 {
		s.logger.Info("已清理串口日志", zap.Int64("deleted", deleted), zap.Int("retention_days", retentionDays))
	}
	return deleted, nil
}

// ExportLogs 导出日志为JSON格式
func (s *SerialLogService) ExportLogs(query *models.SerialLogQuery) ([]byte, error) {
	logs, _, err := s.Query(query)
	if err != nil {
		return nil, err
	}
	return json.MarshalIndent(logs, "", "  ")
}

// GetSessionLogs 获取某次服务运行期间的全部日志
func (s *SerialLogService) GetSessionLogs(sessionID string) ([]*models.SerialLog, error) {
	return s.repo.GetBySessionID(sessionID)
}

// Close 停止后台协程并写入剩余日志
func (s *SerialLogService) Close() {
	s.stopOnce.Do(func() {
		close(s.stopCh)
	})
	<-s.done
}
