package middleware

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	apperrors "github.com/wfunc/led-master/internal/errors"
	"github.com/wfunc/led-master/internal/logger"
	"go.uber.org/zap"
)

// RequestIDHeader 请求ID头
const RequestIDHeader = "X-Request-ID"

const requestIDKey = "requestID"

// RequestID 为每个请求分配请求ID，沿用客户端传入的值
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader(RequestIDHeader)
		if requestID == "" {
			requestID = uuid.New().String()
		}
		c.Set(requestIDKey, requestID)
		c.Header(RequestIDHeader, requestID)
		c.Next()
	}
}

// GetRequestID 从上下文获取请求ID
func GetRequestID(c *gin.Context) string {
	if requestID, exists := c.Get(requestIDKey); exists {
		if id, ok := requestID.(string); ok {
			return id
		}
	}
	return ""
}

// RequestLogger 记录请求日志
func RequestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		if raw := c.Request.URL.RawQuery; raw != "" {
			path = path + "?" + raw
		}

		c.Next()

		logger.LogRequest(c.Request.Method, path, c.Writer.Status(), time.Since(start), c.ClientIP())
	}
}

// Recovery 捕获处理器 panic，返回统一错误响应
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				requestID := GetRequestID(c)
				logger.GetModuleLogger("http").Error("请求处理 panic",
					zap.Any("panic", r),
					zap.String("path", c.Request.URL.Path),
					zap.String("request_id", requestID),
					zap.Stack("stack"))

				appErr := apperrors.Newf(apperrors.ErrUnknown, "%v", r)
				c.AbortWithStatusJSON(http.StatusInternalServerError,
					apperrors.NewErrorResponse(appErr, requestID))
			}
		}()
		c.Next()
	}
}
