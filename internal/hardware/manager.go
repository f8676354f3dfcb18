package hardware

import (
	"bytes"
	"errors"
	"io"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	apperrors "github.com/wfunc/led-master/internal/errors"
	"github.com/wfunc/led-master/internal/logger"
	"go.uber.org/zap"
)

// Manager 串口连接管理器
// 同一时刻最多持有一个打开的串口；Open/Close/Send 在同一把锁下串行执行
type Manager struct {
	mu     sync.Mutex
	config *ManagerConfig
	logger *zap.Logger

	opener PortOpener
	lister PortLister

	conn  *connection
	state ConnState

	handlersMu      sync.RWMutex
	trafficHandlers []TrafficHandler
	stateHandlers   []StateHandler

	// 统计
	linesSent     atomic.Uint64
	linesReceived atomic.Uint64
	writeErrors   atomic.Uint64
	lastCommand   string
	lastCommandAt time.Time
}

// connection 一个已打开的串口及其读取协程
type connection struct {
	path     string
	baudRate int
	port     SerialPort
	openedAt time.Time

	closing   atomic.Bool
	abandoned atomic.Bool // 关闭失败后被丢弃，读取协程退出时再次关闭串口
	stopCh    chan struct{}
	done    chan struct{}
}

// Option 管理器选项
type Option func(*Manager)

// WithOpener 替换串口打开函数
func WithOpener(opener PortOpener) Option {
	return func(m *Manager) {
		m.opener = opener
	}
}

// WithLister 替换串口列举函数
func WithLister(lister PortLister) Option {
	return func(m *Manager) {
		m.lister = lister
	}
}

// WithLogger 指定日志器
func WithLogger(l *zap.Logger) Option {
	return func(m *Manager) {
		m.logger = l
	}
}

// NewManager 创建连接管理器
func NewManager(config *ManagerConfig, opts ...Option) *Manager {
	if config == nil {
		config = DefaultManagerConfig()
	}
	if config.DefaultBaudRate <= 0 {
		config.DefaultBaudRate = 115200
	}
	if config.LineDelimiter == "" {
		config.LineDelimiter = "\r\n"
	}

	m := &Manager{
		config: config,
		logger: logger.GetModuleLogger("serial"),
		opener: OpenSerialPort,
		lister: ListSystemPorts,
		state:  StateDisconnected,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// OnTraffic 注册收发事件回调
func (m *Manager) OnTraffic(handler TrafficHandler) {
	m.handlersMu.Lock()
	m.trafficHandlers = append(m.trafficHandlers, handler)
	m.handlersMu.Unlock()
}

// OnState 注册连接状态回调
func (m *Manager) OnState(handler StateHandler) {
	m.handlersMu.Lock()
	m.stateHandlers = append(m.stateHandlers, handler)
	m.handlersMu.Unlock()
}

// ListPorts 列举可用串口
func (m *Manager) ListPorts() ([]PortInfo, error) {
	ports, err := m.lister()
	if err != nil {
		m.logger.Error("列举串口失败", zap.Error(err))
		return nil, apperrors.Wrap(err, apperrors.ErrPortEnumerate)
	}
	if ports == nil {
		ports = []PortInfo{}
	}
	return ports, nil
}

// DefaultBaudRate 返回默认波特率
func (m *Manager) DefaultBaudRate() int {
	return m.config.DefaultBaudRate
}

// Open 打开串口
// 已有连接时先直接关闭（不发送 STOP），再尝试打开新串口；
// 打开失败时不保留任何连接
func (m *Manager) Open(path string, baudRate int) error {
	if baudRate <= 0 {
		baudRate = m.config.DefaultBaudRate
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.conn != nil {
		previous := m.conn
		m.conn = nil
		if err := m.teardown(previous); err != nil {
			// 旧连接无论如何都被丢弃，停止其读取协程并由其重试关闭
			previous.abandoned.Store(true)
			previous.closing.Store(true)
			close(previous.stopCh)
			m.logger.Warn("关闭旧连接失败",
				zap.String("port", previous.path),
				zap.Error(err))
		} else {
			m.logger.Info("已关闭旧连接", zap.String("port", previous.path))
		}
	}

	m.setState(StateConnecting)

	port, err := m.opener(path, baudRate, m.config.ReadTimeout)
	if err != nil {
		m.logger.Error("打开串口失败",
			zap.String("port", path),
			zap.Int("baud_rate", baudRate),
			zap.Error(err))
		m.setState(StateDisconnected)
		return apperrors.Wrapf(err, apperrors.ErrSerialPortOpen, "打开 %s", path)
	}

	conn := &connection{
		path:     path,
		baudRate: baudRate,
		port:     port,
		openedAt: time.Now(),
		stopCh:   make(chan struct{}),
		done:     make(chan struct{}),
	}
	m.conn = conn
	go m.readLoop(conn)

	m.logger.Info("已连线",
		zap.String("port", path),
		zap.Int("baud_rate", baudRate))
	m.setState(StateConnected)

	return nil
}

// Close 关闭当前连接
// 先写入 STOP，等待 StopGrace 后关闭串口。STOP 写入失败只记录日志。
// 没有连接时返回 closed=false 且不做任何 I/O；
// 关闭失败时连接保持原状
func (m *Manager) Close() (closed bool, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	conn := m.conn
	if conn == nil {
		return false, nil
	}

	m.setState(StateStopping)

	if err := m.writeLine(conn, StopCommand, ""); err != nil {
		m.logger.Error("发送 STOP 失败", zap.String("port", conn.path), zap.Error(err))
	}

	// 等待 Master 处理 STOP，这只是经验值，不等待任何回传
	if m.config.StopGrace > 0 {
		time.Sleep(m.config.StopGrace)
	}

	if err := m.teardown(conn); err != nil {
		m.logger.Error("断线失败", zap.String("port", conn.path), zap.Error(err))
		m.setState(StateConnected)
		return false, apperrors.Wrapf(err, apperrors.ErrSerialPortClose, "关闭 %s", conn.path)
	}

	m.conn = nil
	m.logger.Info("Master 已停止广播并断线", zap.String("port", conn.path))
	m.setState(StateDisconnected)

	return true, nil
}

// Send 发送一条设置指令，返回写入的指令行
// 写入调用返回即视为成功，不等待 Master 确认。requestID 随收发事件发布，可为空
func (m *Manager) Send(cmd *Command, requestID string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	conn := m.conn
	if conn == nil {
		return "", apperrors.New(apperrors.ErrDeviceNotConnected)
	}

	line := FormatCommand(cmd)
	if err := m.writeLine(conn, line, requestID); err != nil {
		return "", apperrors.Wrapf(err, apperrors.ErrSerialPortWrite, "写入 %s", conn.path)
	}

	m.lastCommand = strings.TrimSuffix(line, commandTerminator)
	m.lastCommandAt = time.Now()

	return line, nil
}

// Shutdown 服务退出时关闭连接
func (m *Manager) Shutdown() error {
	_, err := m.Close()
	return err
}

// IsConnected 检查连接状态
func (m *Manager) IsConnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.conn != nil
}

// Status 返回状态快照
func (m *Manager) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.statusLocked()
}

func (m *Manager) statusLocked() Status {
	status := Status{
		State:         m.state,
		Connected:     m.conn != nil,
		LinesSent:     m.linesSent.Load(),
		LinesReceived: m.linesReceived.Load(),
		WriteErrors:   m.writeErrors.Load(),
		LastCommand:   m.lastCommand,
	}
	if m.conn != nil {
		openedAt := m.conn.openedAt
		status.Path = m.conn.path
		status.BaudRate = m.conn.baudRate
		status.ConnectedAt = &openedAt
	}
	if !m.lastCommandAt.IsZero() {
		at := m.lastCommandAt
		status.LastCommandAt = &at
	}
	return status
}

// setState 更新状态并通知回调，调用方持有 m.mu
func (m *Manager) setState(state ConnState) {
	m.state = state
	status := m.statusLocked()

	m.handlersMu.RLock()
	handlers := m.stateHandlers
	m.handlersMu.RUnlock()

	for _, h := range handlers {
		h(status)
	}
}

// writeLine 写入一行并发布收发事件，调用方持有 m.mu
func (m *Manager) writeLine(conn *connection, line, requestID string) error {
	_, err := io.WriteString(conn.port, line)
	if err != nil {
		m.writeErrors.Add(1)
	} else {
		m.linesSent.Add(1)
	}
	m.emitTraffic(TrafficEvent{
		Direction: DirectionSend,
		Port:      conn.path,
		Line:      strings.TrimSuffix(line, commandTerminator),
		RequestID: requestID,
		Err:       err,
		Time:      time.Now(),
	})
	return err
}

// teardown 关闭串口并等待读取协程退出
// 关闭失败时读取协程保持运行
func (m *Manager) teardown(conn *connection) error {
	conn.closing.Store(true)
	if err := conn.port.Close(); err != nil {
		conn.closing.Store(false)
		return err
	}
	close(conn.stopCh)

	select {
	case <-conn.done:
	case <-time.After(m.config.ReadTimeout + time.Second):
		m.logger.Warn("读取协程退出超时", zap.String("port", conn.path))
	}
	return nil
}

func (m *Manager) emitTraffic(event TrafficEvent) {
	logger.LogSerialLine(string(event.Direction), event.Port, event.Line, event.Err)

	m.handlersMu.RLock()
	handlers := m.trafficHandlers
	m.handlersMu.RUnlock()

	for _, h := range handlers {
		h(event)
	}
}

// readLoop 按分隔符切分 Master 回传并逐行发布
func (m *Manager) readLoop(conn *connection) {
	defer close(conn.done)
	defer m.releaseAbandoned(conn)

	delimiter := []byte(m.config.LineDelimiter)
	buffer := make([]byte, 1024)
	var pending []byte

	for {
		select {
		case <-conn.stopCh:
			return
		default:
		}

		n, err := conn.port.Read(buffer)

		// 读取期间连接已被关闭或丢弃，不再发布数据
		select {
		case <-conn.stopCh:
			return
		default:
		}

		if n > 0 {
			pending = append(pending, buffer[:n]...)
			for {
				idx := bytes.Index(pending, delimiter)
				if idx == -1 {
					break
				}
				line := string(pending[:idx])
				pending = pending[idx+len(delimiter):]
				if line == "" {
					continue
				}

				m.linesReceived.Add(1)
				m.logger.Info("Master 回传", zap.String("port", conn.path), zap.String("data", line))
				m.emitTraffic(TrafficEvent{
					Direction: DirectionReceive,
					Port:      conn.path,
					Line:      line,
					Time:      time.Now(),
				})
			}
		}

		if err == nil {
			continue
		}
		// tarm/serial 在读取超时时返回 EOF
		if errors.Is(err, io.EOF) {
			continue
		}

		select {
		case <-conn.stopCh:
			return
		default:
		}
		if conn.closing.Load() {
			return
		}

		if isFatalReadError(err) {
			m.logger.Error("串口读取中断", zap.String("port", conn.path), zap.Error(err))
			return
		}
		m.logger.Debug("读取串口数据错误", zap.String("port", conn.path), zap.Error(err))
		time.Sleep(10 * time.Millisecond)
	}
}

// releaseAbandoned 再次关闭被丢弃的串口
func (m *Manager) releaseAbandoned(conn *connection) {
	if !conn.abandoned.Load() {
		return
	}
	if err := conn.port.Close(); err != nil {
		m.logger.Error("释放旧串口失败", zap.String("port", conn.path), zap.Error(err))
		return
	}
	m.logger.Info("已释放旧串口", zap.String("port", conn.path))
}

// isFatalReadError 判断读取错误是否表示设备已不可用
func isFatalReadError(err error) bool {
	if errors.Is(err, os.ErrClosed) || errors.Is(err, io.ErrClosedPipe) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "device not configured") ||
		strings.Contains(msg, "bad file descriptor") ||
		strings.Contains(msg, "broken pipe") ||
		strings.Contains(msg, "input/output error")
}
