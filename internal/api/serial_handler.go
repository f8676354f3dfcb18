package api

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	apperrors "github.com/wfunc/led-master/internal/errors"
	"github.com/wfunc/led-master/internal/hardware"
	"github.com/wfunc/led-master/internal/middleware"
	"go.uber.org/zap"
)

// ConnectionManager 串口连接管理
type ConnectionManager interface {
	ListPorts() ([]hardware.PortInfo, error)
	Open(path string, baudRate int) error
	Close() (bool, error)
	Send(cmd *hardware.Command, requestID string) (string, error)
	Status() hardware.Status
	DefaultBaudRate() int
}

// ConnectRequest 连线请求
type ConnectRequest struct {
	Path     string          `json:"path"`
	BaudRate hardware.Scalar `json:"baudRate"`
}

// SerialHandler 中控台串口处理器
type SerialHandler struct {
	manager ConnectionManager
	logger  *zap.Logger
}

// NewSerialHandler 创建串口处理器
func NewSerialHandler(manager ConnectionManager, logger *zap.Logger) *SerialHandler {
	return &SerialHandler{
		manager: manager,
		logger:  logger,
	}
}

// RegisterRoutes 注册路由
func (h *SerialHandler) RegisterRoutes(router *gin.RouterGroup) {
	router.GET("/ports", h.ListPorts)
	router.POST("/connect", h.Connect)
	router.POST("/disconnect", h.Disconnect)
	router.POST("/send", h.Send)
	router.GET("/status", h.Status)
}

// ListPorts 列举串口
func (h *SerialHandler) ListPorts(c *gin.Context) {
	ports, err := h.manager.ListPorts()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": reason(err)})
		return
	}
	c.JSON(http.StatusOK, ports)
}

// Connect 打开串口，已有连线时先关闭旧连线
func (h *SerialHandler) Connect(c *gin.Context) {
	var req ConnectRequest
	if err := bindOptionalJSON(c, &req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": err.Error()})
		return
	}

	baudRate := hardware.ParseBaudRate(req.BaudRate.Text, h.manager.DefaultBaudRate())
	if err := h.manager.Open(req.Path, baudRate); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": reason(err)})
		return
	}

	h.logger.Info("已连线", zap.String("path", req.Path), zap.Int("baud_rate", baudRate))
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// Disconnect 发送 STOP 后断线
func (h *SerialHandler) Disconnect(c *gin.Context) {
	closed, err := h.manager.Close()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": reason(err)})
		return
	}
	if !closed {
		c.JSON(http.StatusOK, gin.H{"success": true, "message": "原本就没连线"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// Send 发送设置指令
func (h *SerialHandler) Send(c *gin.Context) {
	var cmd hardware.Command
	if err := bindOptionalJSON(c, &cmd); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if _, err := h.manager.Send(&cmd, middleware.GetRequestID(c)); err != nil {
		c.JSON(apperrors.HTTPStatusOf(err), gin.H{"error": reason(err)})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// Status 连线状态
func (h *SerialHandler) Status(c *gin.Context) {
	c.JSON(http.StatusOK, h.manager.Status())
}

// bindOptionalJSON 解析 JSON 请求体，空请求体视为 {}
func bindOptionalJSON(c *gin.Context, obj interface{}) error {
	if c.Request.Body == nil || c.Request.ContentLength == 0 {
		return nil
	}
	err := c.ShouldBindJSON(obj)
	if errors.Is(err, io.EOF) {
		return nil
	}
	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrMessageFormat)
	}
	return nil
}

// reason 返回写入响应的错误原因
func reason(err error) string {
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		return appErr.Reason()
	}
	return err.Error()
}
