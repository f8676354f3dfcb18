package hardware

import (
	"bytes"
	"io"
	"sync"
	"time"

	"github.com/stretchr/testify/mock"
)

// writeRecord 一次写入及其时间
type writeRecord struct {
	data string
	at   time.Time
}

// MockSerialPort 模拟串口
// Read 阻塞直到有注入数据或串口被关闭；Close/Flush 走 mock 期望
type MockSerialPort struct {
	mock.Mock

	mu       sync.Mutex
	writes   []writeRecord
	writeErr error
	closedAt time.Time

	incoming chan []byte
	closed   chan struct{}
	once     sync.Once
}

// NewMockSerialPort 创建模拟串口，默认 Close 成功
func NewMockSerialPort() *MockSerialPort {
	return &MockSerialPort{
		incoming: make(chan []byte, 16),
		closed:   make(chan struct{}),
	}
}

// AllowClose 设置 Close 成功的期望
func (p *MockSerialPort) AllowClose() *MockSerialPort {
	p.On("Close").Return(nil)
	return p
}

// Feed 注入 Master 回传数据
func (p *MockSerialPort) Feed(data string) {
	p.incoming <- []byte(data)
}

// FailWrites 让后续写入返回错误
func (p *MockSerialPort) FailWrites(err error) {
	p.mu.Lock()
	p.writeErr = err
	p.mu.Unlock()
}

func (p *MockSerialPort) Read(b []byte) (int, error) {
	select {
	case data := <-p.incoming:
		return copy(b, data), nil
	case <-p.closed:
		return 0, io.ErrClosedPipe
	}
}

func (p *MockSerialPort) Write(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.writeErr != nil {
		return 0, p.writeErr
	}
	p.writes = append(p.writes, writeRecord{data: string(b), at: time.Now()})
	return len(b), nil
}

func (p *MockSerialPort) Close() error {
	args := p.Called()
	if err := args.Error(0); err != nil {
		return err
	}
	p.mu.Lock()
	p.closedAt = time.Now()
	p.mu.Unlock()
	p.once.Do(func() { close(p.closed) })
	return nil
}

func (p *MockSerialPort) Flush() error {
	return nil
}

// Written 返回所有写入内容
func (p *MockSerialPort) Written() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.writes))
	for _, w := range p.writes {
		out = append(out, w.data)
	}
	return out
}

// WrittenBytes 返回拼接后的写入内容
func (p *MockSerialPort) WrittenBytes() []byte {
	var buf bytes.Buffer
	for _, w := range p.Written() {
		buf.WriteString(w)
	}
	return buf.Bytes()
}

// LastWriteAt 返回最后一次写入时间
func (p *MockSerialPort) LastWriteAt() time.Time {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.writes) == 0 {
		return time.Time{}
	}
	return p.writes[len(p.writes)-1].at
}

// ClosedAt 返回关闭时间
func (p *MockSerialPort) ClosedAt() time.Time {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closedAt
}

// IsClosed 是否已关闭
func (p *MockSerialPort) IsClosed() bool {
	select {
	case <-p.closed:
		return true
	default:
		return false
	}
}

// portFactory 按打开顺序返回预置的模拟串口
type portFactory struct {
	mu     sync.Mutex
	ports  []*MockSerialPort
	errs   map[string]error
	opened []openCall
}

type openCall struct {
	path     string
	baudRate int
}

func newPortFactory(ports ...*MockSerialPort) *portFactory {
	return &portFactory{ports: ports, errs: map[string]error{}}
}

func (f *portFactory) open(path string, baudRate int, _ time.Duration) (SerialPort, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.opened = append(f.opened, openCall{path: path, baudRate: baudRate})
	if err, ok := f.errs[path]; ok {
		return nil, err
	}
	if len(f.ports) == 0 {
		return nil, io.ErrUnexpectedEOF
	}
	p := f.ports[0]
	f.ports = f.ports[1:]
	return p, nil
}

func (f *portFactory) calls() []openCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]openCall(nil), f.opened...)
}
