package api

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wfunc/led-master/internal/config"
	"github.com/wfunc/led-master/internal/hardware"
	"github.com/wfunc/led-master/internal/middleware"
	"github.com/wfunc/led-master/internal/models"
	"github.com/wfunc/led-master/internal/repository"
	"github.com/wfunc/led-master/internal/service"
	"go.uber.org/zap"
)

// loopbackPort 只记录写入的串口，读取阻塞到关闭
type loopbackPort struct {
	mu      sync.Mutex
	written bytes.Buffer
	closed  chan struct{}
	once    sync.Once
}

func newLoopbackPort() *loopbackPort {
	return &loopbackPort{closed: make(chan struct{})}
}

func (p *loopbackPort) Read(b []byte) (int, error) {
	<-p.closed
	return 0, io.ErrClosedPipe
}

func (p *loopbackPort) Write(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.written.Write(b)
}

func (p *loopbackPort) Close() error {
	p.once.Do(func() { close(p.closed) })
	return nil
}

func (p *loopbackPort) Flush() error { return nil }

func TestSendRecordsRequestID(t *testing.T) {
	gin.SetMode(gin.TestMode)

	db := repository.SetupTestDB()
	defer repository.CleanupTestDB(db)

	logs := service.NewSerialLogService(db, config.SerialLogConfig{
		Enabled:       true,
		FlushInterval: time.Hour,
		BatchSize:     100,
		RetentionDays: 30,
	})

	port := newLoopbackPort()
	manager := hardware.NewManager(hardware.DefaultManagerConfig(),
		hardware.WithLogger(zap.NewNop()),
		hardware.WithOpener(func(string, int, time.Duration) (hardware.SerialPort, error) {
			return port, nil
		}))
	manager.OnTraffic(logs.HandleTraffic)
	require.NoError(t, manager.Open("/dev/ttyUSB0", 115200))

	cfg := &config.Config{}
	cfg.Server.Mode = gin.TestMode
	router := NewRouter(cfg, Dependencies{Manager: manager, SerialLog: logs, DB: db}, zap.NewNop())

	body := `{"gid":1,"mode":2,"bri":128,"bpm":120,"color":"FF0000","speed":5,"spread":3,"duty":50,"pal":["00FF00","0000FF"]}`
	req := httptest.NewRequest(http.MethodPost, "/api/send", bytes.NewReader([]byte(body)))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(middleware.RequestIDHeader, "req-led-42")
	w := httptest.NewRecorder()
	router.GetEngine().ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	_, err := manager.Close()
	require.NoError(t, err)
	logs.Close()

	rows, total, err := repository.NewSerialLogRepository(db).Query(&models.SerialLogQuery{
		Direction: models.SerialDirectionSend,
		OrderBy:   "id ASC",
	})
	require.NoError(t, err)
	require.Equal(t, int64(2), total)

	assert.Equal(t, "1,2,128,120,FF0000,5,3,50,00FF00,0000FF,000000,000000", rows[0].RawData)
	assert.Equal(t, "req-led-42", rows[0].RequestID)
	// 断线时的 STOP 不属于任何请求
	assert.Equal(t, "STOP", rows[1].Command)
	assert.Empty(t, rows[1].RequestID)

	// 会话接口可取回本次运行的全部日志
	w = httptest.NewRecorder()
	router.GetEngine().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/serial-logs/session/current", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, logs.SessionID(), resp["session_id"])
	assert.Equal(t, float64(2), resp["count"])
}
