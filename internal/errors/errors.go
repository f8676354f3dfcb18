package errors

import (
	"fmt"
	"net/http"
	"runtime"
	"strings"
	"time"
)

// ErrorCode 错误码类型
type ErrorCode int

// 错误码定义（按模块分组）
const (
	// 通用错误 (1000-1999)
	ErrUnknown        ErrorCode = 1000
	ErrInvalidParam   ErrorCode = 1001
	ErrNotFound       ErrorCode = 1002
	ErrTimeout        ErrorCode = 1005
	ErrNotImplemented ErrorCode = 1007

	// 串口错误 (3000-3999)
	ErrSerialPortOpen     ErrorCode = 3000
	ErrSerialPortWrite    ErrorCode = 3001
	ErrSerialPortRead     ErrorCode = 3002
	ErrSerialPortClose    ErrorCode = 3003
	ErrDeviceNotConnected ErrorCode = 3004
	ErrPortEnumerate      ErrorCode = 3005

	// 通信错误 (4000-4999)
	ErrWebSocketUpgrade ErrorCode = 4000
	ErrWebSocketSend    ErrorCode = 4001
	ErrMessageFormat    ErrorCode = 4007

	// 数据库错误 (5000-5999)
	ErrDatabaseConnect ErrorCode = 5000
	ErrDatabaseQuery   ErrorCode = 5001
	ErrDatabaseInsert  ErrorCode = 5002
	ErrDatabaseDelete  ErrorCode = 5004

	// 配置错误 (6000-6999)
	ErrConfigLoad     ErrorCode = 6000
	ErrConfigParse    ErrorCode = 6001
	ErrConfigValidate ErrorCode = 6002
)

// 错误码消息映射
var errorMessages = map[ErrorCode]string{
	ErrUnknown:        "未知错误",
	ErrInvalidParam:   "无效的参数",
	ErrNotFound:       "资源未找到",
	ErrTimeout:        "操作超时",
	ErrNotImplemented: "功能未实现",

	ErrSerialPortOpen:     "串口打开失败",
	ErrSerialPortWrite:    "串口写入失败",
	ErrSerialPortRead:     "串口读取失败",
	ErrSerialPortClose:    "串口关闭失败",
	ErrDeviceNotConnected: "尚未连线",
	ErrPortEnumerate:      "串口列举失败",

	ErrWebSocketUpgrade: "WebSocket升级失败",
	ErrWebSocketSend:    "WebSocket发送失败",
	ErrMessageFormat:    "消息格式错误",

	ErrDatabaseConnect: "数据库连接失败",
	ErrDatabaseQuery:   "数据库查询失败",
	ErrDatabaseInsert:  "数据库插入失败",
	ErrDatabaseDelete:  "数据库删除失败",

	ErrConfigLoad:     "配置加载失败",
	ErrConfigParse:    "配置解析失败",
	ErrConfigValidate: "配置验证失败",
}

// AppError 应用错误结构
type AppError struct {
	Code    ErrorCode    `json:"code"`            // 错误码
	Message string       `json:"message"`         // 错误消息
	Details string       `json:"details"`         // 详细信息
	Cause   error        `json:"-"`               // 原始错误
	Stack   []StackFrame `json:"stack,omitempty"` // 调用栈
}

// StackFrame 调用栈帧
type StackFrame struct {
	Function string `json:"function"`
	File     string `json:"file"`
	Line     int    `json:"line"`
}

// Error 实现error接口
func (e *AppError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("[%d] %s: %s", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("[%d] %s", e.Code, e.Message)
}

// Unwrap 返回原始错误
func (e *AppError) Unwrap() error {
	return e.Cause
}

// Is 支持 errors.Is 按错误码比较
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// WithDetails 添加详细信息
func (e *AppError) WithDetails(details string) *AppError {
	e.Details = details
	return e
}

// WithCause 添加原因错误
func (e *AppError) WithCause(cause error) *AppError {
	e.Cause = cause
	if cause != nil && e.Details == "" {
		e.Details = cause.Error()
	}
	return e
}

// Reason 返回面向调用方的错误描述
// 有原始错误时使用原始错误文本，否则使用错误消息
func (e *AppError) Reason() string {
	if e.Cause != nil {
		return e.Cause.Error()
	}
	if e.Details != "" {
		return e.Details
	}
	return e.Message
}

// New 创建新的应用错误
func New(code ErrorCode, details ...string) *AppError {
	message, ok := errorMessages[code]
	if !ok {
		message = errorMessages[ErrUnknown]
	}

	err := &AppError{
		Code:    code,
		Message: message,
	}

	if len(details) > 0 {
		err.Details = strings.Join(details, "; ")
	}

	err.captureStack(2)

	return err
}

// Newf 创建格式化的应用错误
func Newf(code ErrorCode, format string, args ...interface{}) *AppError {
	return New(code, fmt.Sprintf(format, args...))
}

// Wrap 包装错误
func Wrap(err error, code ErrorCode, details ...string) *AppError {
	if err == nil {
		return nil
	}

	// 如果已经是AppError，保留原始错误码
	if appErr, ok := err.(*AppError); ok {
		if len(details) > 0 {
			appErr.Details = strings.Join(details, "; ") + "; " + appErr.Details
		}
		return appErr
	}

	appErr := New(code, details...)
	appErr.Cause = err
	if appErr.Details == "" {
		appErr.Details = err.Error()
	}

	return appErr
}

// Wrapf 包装格式化错误
func Wrapf(err error, code ErrorCode, format string, args ...interface{}) *AppError {
	return Wrap(err, code, fmt.Sprintf(format, args...))
}

// Is 判断错误是否为指定错误码
func Is(err error, code ErrorCode) bool {
	if err == nil {
		return false
	}

	appErr, ok := err.(*AppError)
	return ok && appErr.Code == code
}

// GetCode 获取错误码
func GetCode(err error) ErrorCode {
	if err == nil {
		return 0
	}

	if appErr, ok := err.(*AppError); ok {
		return appErr.Code
	}

	return ErrUnknown
}

// captureStack 捕获调用栈
func (e *AppError) captureStack(skip int) {
	pcs := make([]uintptr, 32)
	n := runtime.Callers(skip+1, pcs)
	if n == 0 {
		return
	}

	frames := runtime.CallersFrames(pcs[:n])
	for {
		frame, more := frames.Next()

		// 跳过runtime和本包的调用
		if strings.Contains(frame.Function, "runtime.") ||
			strings.Contains(frame.Function, "github.com/wfunc/led-master/internal/errors") {
			if !more {
				break
			}
			continue
		}

		e.Stack = append(e.Stack, StackFrame{
			Function: frame.Function,
			File:     frame.File,
			Line:     frame.Line,
		})

		// 只保留前10个栈帧
		if !more || len(e.Stack) >= 10 {
			break
		}
	}
}

// GetStack 获取格式化的调用栈
func (e *AppError) GetStack() string {
	if len(e.Stack) == 0 {
		return ""
	}

	var builder strings.Builder
	for i, frame := range e.Stack {
		builder.WriteString(fmt.Sprintf("%d. %s\n   %s:%d\n",
			i+1, frame.Function, frame.File, frame.Line))
	}

	return builder.String()
}

// HTTPStatus 返回对应的HTTP状态码
func (e *AppError) HTTPStatus() int {
	switch e.Code {
	case ErrInvalidParam, ErrDeviceNotConnected, ErrMessageFormat:
		return http.StatusBadRequest
	case ErrNotFound:
		return http.StatusNotFound
	case ErrTimeout:
		return http.StatusRequestTimeout
	case ErrNotImplemented:
		return http.StatusNotImplemented
	}
	if e.Code >= 5000 && e.Code <= 5999 {
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// HTTPStatusOf 返回任意错误对应的HTTP状态码
func HTTPStatusOf(err error) int {
	if appErr, ok := err.(*AppError); ok {
		return appErr.HTTPStatus()
	}
	return http.StatusInternalServerError
}

// IsCritical 判断是否为严重错误
func IsCritical(err error) bool {
	switch GetCode(err) {
	case ErrDatabaseConnect, ErrConfigLoad:
		return true
	default:
		return false
	}
}

// ErrorResponse API错误响应结构
type ErrorResponse struct {
	Success   bool      `json:"success"`
	Error     *AppError `json:"error,omitempty"`
	RequestID string    `json:"request_id,omitempty"`
	Timestamp int64     `json:"timestamp"`
}

// NewErrorResponse 创建错误响应
func NewErrorResponse(err *AppError, requestID string) *ErrorResponse {
	return &ErrorResponse{
		Success:   false,
		Error:     err,
		RequestID: requestID,
		Timestamp: time.Now().Unix(),
	}
}
