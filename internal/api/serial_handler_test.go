package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"github.com/wfunc/led-master/internal/config"
	apperrors "github.com/wfunc/led-master/internal/errors"
	"github.com/wfunc/led-master/internal/hardware"
	"github.com/wfunc/led-master/internal/models"
	"github.com/wfunc/led-master/internal/repository"
	"github.com/wfunc/led-master/internal/service"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// MockManager 模拟连接管理器
type MockManager struct {
	mock.Mock
}

func (m *MockManager) ListPorts() ([]hardware.PortInfo, error) {
	args := m.Called()
	ports, _ := args.Get(0).([]hardware.PortInfo)
	return ports, args.Error(1)
}

func (m *MockManager) Open(path string, baudRate int) error {
	return m.Called(path, baudRate).Error(0)
}

func (m *MockManager) Close() (bool, error) {
	args := m.Called()
	return args.Bool(0), args.Error(1)
}

func (m *MockManager) Send(cmd *hardware.Command, requestID string) (string, error) {
	args := m.Called(cmd, requestID)
	return args.String(0), args.Error(1)
}

func (m *MockManager) Status() hardware.Status {
	return m.Called().Get(0).(hardware.Status)
}

func (m *MockManager) DefaultBaudRate() int {
	return 115200
}

// SerialHandlerTestSuite 中控台接口测试套件
type SerialHandlerTestSuite struct {
	suite.Suite
	manager *MockManager
	db      *gorm.DB
	logs    *service.SerialLogService
	router  *Router
}

func (s *SerialHandlerTestSuite) SetupTest() {
	gin.SetMode(gin.TestMode)

	s.manager = new(MockManager)
	s.db = repository.SetupTestDB()
	s.logs = service.NewSerialLogService(s.db, config.SerialLogConfig{
		Enabled:       true,
		FlushInterval: time.Hour,
		BatchSize:     100,
		RetentionDays: 30,
	})

	static := s.T().TempDir()
	s.Require().NoError(os.WriteFile(filepath.Join(static, "index.html"), []byte("<h1>中控台</h1>"), 0644))

	cfg := &config.Config{}
	cfg.Server.Mode = gin.TestMode
	cfg.Server.StaticDir = static

	s.router = NewRouter(cfg, Dependencies{
		Manager:   s.manager,
		SerialLog: s.logs,
		DB:        s.db,
	}, zap.NewNop())
}

func (s *SerialHandlerTestSuite) TearDownTest() {
	s.logs.Close()
	repository.CleanupTestDB(s.db)
}

func (s *SerialHandlerTestSuite) do(method, path, body string) (*httptest.ResponseRecorder, map[string]interface{}) {
	var reader *bytes.Reader
	if body != "" {
		reader = bytes.NewReader([]byte(body))
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	s.router.GetEngine().ServeHTTP(w, req)

	var resp map[string]interface{}
	json.Unmarshal(w.Body.Bytes(), &resp)
	return w, resp
}

func (s *SerialHandlerTestSuite) TestListPorts() {
	s.manager.On("ListPorts").Return([]hardware.PortInfo{
		{Path: "/dev/ttyUSB0", IsUSB: true, VendorID: "1A86", ProductID: "7523"},
	}, nil).Once()

	w, _ := s.do(http.MethodGet, "/api/ports", "")
	s.Equal(http.StatusOK, w.Code)

	var ports []hardware.PortInfo
	s.Require().NoError(json.Unmarshal(w.Body.Bytes(), &ports))
	s.Require().Len(ports, 1)
	s.Equal("/dev/ttyUSB0", ports[0].Path)
}

func (s *SerialHandlerTestSuite) TestListPortsFailure() {
	s.manager.On("ListPorts").Return(nil,
		apperrors.Wrap(errors.New("udev unavailable"), apperrors.ErrPortEnumerate)).Once()

	w, resp := s.do(http.MethodGet, "/api/ports", "")
	s.Equal(http.StatusInternalServerError, w.Code)
	s.Equal("udev unavailable", resp["error"])
}

func (s *SerialHandlerTestSuite) TestConnectBaudRate() {
	tests := []struct {
		name string
		body string
		want int
	}{
		{"数字", `{"path":"/dev/ttyUSB0","baudRate":9600}`, 9600},
		{"字符串", `{"path":"/dev/ttyUSB0","baudRate":"57600"}`, 57600},
		{"缺省", `{"path":"/dev/ttyUSB0"}`, 115200},
		{"非数字", `{"path":"/dev/ttyUSB0","baudRate":"fast"}`, 115200},
	}
	for _, tt := range tests {
		s.Run(tt.name, func() {
			s.manager.On("Open", "/dev/ttyUSB0", tt.want).Return(nil).Once()

			w, resp := s.do(http.MethodPost, "/api/connect", tt.body)
			s.Equal(http.StatusOK, w.Code)
			s.Equal(true, resp["success"])
		})
	}
	s.manager.AssertExpectations(s.T())
}

func (s *SerialHandlerTestSuite) TestConnectFailure() {
	s.manager.On("Open", "/dev/missing", 115200).Return(
		apperrors.Wrap(errors.New("no such file or directory"), apperrors.ErrSerialPortOpen)).Once()

	w, resp := s.do(http.MethodPost, "/api/connect", `{"path":"/dev/missing"}`)
	s.Equal(http.StatusInternalServerError, w.Code)
	s.Equal(false, resp["success"])
	s.Equal("no such file or directory", resp["error"])
}

func (s *SerialHandlerTestSuite) TestConnectInvalidJSON() {
	w, resp := s.do(http.MethodPost, "/api/connect", `{"path":`)
	s.Equal(http.StatusBadRequest, w.Code)
	s.Equal(false, resp["success"])
	s.manager.AssertNotCalled(s.T(), "Open", mock.Anything, mock.Anything)
}

func (s *SerialHandlerTestSuite) TestDisconnect() {
	s.manager.On("Close").Return(true, nil).Once()

	w, resp := s.do(http.MethodPost, "/api/disconnect", "")
	s.Equal(http.StatusOK, w.Code)
	s.Equal(true, resp["success"])
	s.NotContains(resp, "message")
}

func (s *SerialHandlerTestSuite) TestDisconnectWhenNotConnected() {
	s.manager.On("Close").Return(false, nil).Once()

	w, resp := s.do(http.MethodPost, "/api/disconnect", "")
	s.Equal(http.StatusOK, w.Code)
	s.Equal(true, resp["success"])
	s.Equal("原本就没连线", resp["message"])
}

func (s *SerialHandlerTestSuite) TestDisconnectFailure() {
	s.manager.On("Close").Return(false,
		apperrors.Wrap(errors.New("device busy"), apperrors.ErrSerialPortClose)).Once()

	w, resp := s.do(http.MethodPost, "/api/disconnect", "")
	s.Equal(http.StatusInternalServerError, w.Code)
	s.Equal("device busy", resp["error"])
	s.NotContains(resp, "success")
}

func (s *SerialHandlerTestSuite) TestSend() {
	body := `{"gid":1,"mode":2,"bri":128,"bpm":120,"color":"FF0000","speed":5,"spread":3,"duty":50,"pal":["00FF00","0000FF"]}`
	s.manager.On("Send", mock.MatchedBy(func(cmd *hardware.Command) bool {
		return hardware.FormatCommand(cmd) == "1,2,128,120,FF0000,5,3,50,00FF00,0000FF,000000,000000\n"
	}), mock.AnythingOfType("string")).Return("1,2,128,120,FF0000,5,3,50,00FF00,0000FF,000000,000000\n", nil).Once()

	w, resp := s.do(http.MethodPost, "/api/send", body)
	s.Equal(http.StatusOK, w.Code)
	s.Equal(true, resp["success"])
	s.manager.AssertExpectations(s.T())
}

func (s *SerialHandlerTestSuite) TestSendNotConnected() {
	s.manager.On("Send", mock.Anything, mock.Anything).Return("", apperrors.New(apperrors.ErrDeviceNotConnected)).Once()

	w, resp := s.do(http.MethodPost, "/api/send", `{"gid":1}`)
	s.Equal(http.StatusBadRequest, w.Code)
	s.Equal("尚未连线", resp["error"])
}

func (s *SerialHandlerTestSuite) TestSendWriteFailure() {
	s.manager.On("Send", mock.Anything, mock.Anything).Return("",
		apperrors.Wrap(errors.New("write failed"), apperrors.ErrSerialPortWrite)).Once()

	w, resp := s.do(http.MethodPost, "/api/send", `{"gid":1}`)
	s.Equal(http.StatusInternalServerError, w.Code)
	s.Equal("write failed", resp["error"])
}

func (s *SerialHandlerTestSuite) TestStatusAndHealth() {
	s.manager.On("Status").Return(hardware.Status{
		State: hardware.StateConnected, Connected: true, Path: "/dev/ttyUSB0", BaudRate: 115200,
	})

	w, resp := s.do(http.MethodGet, "/api/status", "")
	s.Equal(http.StatusOK, w.Code)
	s.Equal("connected", resp["state"])
	s.Equal("/dev/ttyUSB0", resp["path"])

	w, resp = s.do(http.MethodGet, "/health", "")
	s.Equal(http.StatusOK, w.Code)
	s.Equal("healthy", resp["status"])
	s.Equal(true, resp["connected"])
}

func (s *SerialHandlerTestSuite) TestStaticAndNotFound() {
	w, _ := s.do(http.MethodGet, "/", "")
	s.Equal(http.StatusOK, w.Code)
	s.Contains(w.Body.String(), "中控台")

	w, resp := s.do(http.MethodGet, "/api/unknown", "")
	s.Equal(http.StatusNotFound, w.Code)
	s.Equal("NOT_FOUND", resp["code"])
}

func (s *SerialHandlerTestSuite) TestOpenAPI() {
	w, _ := s.do(http.MethodGet, "/openapi", "")
	s.Equal(http.StatusOK, w.Code)
	s.Contains(w.Body.String(), "/api/send")
}

func (s *SerialHandlerTestSuite) TestSerialLogRoutes() {
	s.logs.LogSend("/dev/ttyUSB0", "1,2,128,120,FF0000,5,3,50,00FF00,0000FF,000000,000000", "")
	s.logs.LogReceive("/dev/ttyUSB0", "OK")
	s.logs.Flush()

	repo := repository.NewSerialLogRepository(s.db)
	s.Require().Eventually(func() bool {
		_, total, err := repo.Query(&models.SerialLogQuery{})
		if err == nil && total < 2 {
			s.logs.Flush()
		}
		return err == nil && total == 2
	}, 2*time.Second, 20*time.Millisecond)

	w, resp := s.do(http.MethodGet, "/api/serial-logs?direction=SEND", "")
	s.Equal(http.StatusOK, w.Code)
	s.Equal(float64(1), resp["total"])

	w, resp = s.do(http.MethodGet, "/api/serial-logs/latest?limit=1", "")
	s.Equal(http.StatusOK, w.Code)
	s.Equal(float64(1), resp["count"])

	w, resp = s.do(http.MethodGet, "/api/serial-logs/stats", "")
	s.Equal(http.StatusOK, w.Code)
	s.Equal(float64(2), resp["total_count"])

	w, _ = s.do(http.MethodPost, "/api/serial-logs/cleanup?retention_days=0", "")
	s.Equal(http.StatusBadRequest, w.Code)

	w, resp = s.do(http.MethodPost, "/api/serial-logs/cleanup", "")
	s.Equal(http.StatusOK, w.Code)
	s.Equal(float64(0), resp["deleted"])
}

func TestSerialHandlerTestSuite(t *testing.T) {
	suite.Run(t, new(SerialHandlerTestSuite))
}

func TestBindOptionalJSONEmptyBody(t *testing.T) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodPost, "/api/send", nil)

	var cmd hardware.Command
	require.NoError(t, bindOptionalJSON(c, &cmd))
	assert.Equal(t, "000000", cmd.PaletteColors()[0])
}
