package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/wfunc/led-master/internal/models"
	"github.com/wfunc/led-master/internal/service"
)

const (
	defaultLogLimit = 20
	maxLogLimit     = 1000
)

// SerialLogAPI 串口日志API
type SerialLogAPI struct {
	service *service.SerialLogService
}

// NewSerialLogAPI 创建串口日志API
func NewSerialLogAPI(service *service.SerialLogService) *SerialLogAPI {
	return &SerialLogAPI{
		service: service,
	}
}

// RegisterRoutes 注册路由
func (api *SerialLogAPI) RegisterRoutes(router *gin.RouterGroup) {
	logs := router.Group("/serial-logs")
	{
		logs.GET("", api.QueryLogs)            // 查询日志列表
		logs.GET("/latest", api.GetLatestLogs) // 获取最新日志
		logs.GET("/stats", api.GetStats)       // 获取统计信息
		logs.POST("/cleanup", api.CleanupLogs) // 清理旧日志
		logs.GET("/export", api.ExportLogs)    // 导出日志
		logs.GET("/session/:id", api.GetSessionLogs)
	}
}

// parseQuery 解析查询参数
func parseQuery(c *gin.Context) *models.SerialLogQuery {
	query := &models.SerialLogQuery{
		Direction: models.SerialDirection(c.Query("direction")),
		Level:     models.SerialLogLevel(c.Query("level")),
		Port:      c.Query("port"),
		Command:   c.Query("command"),
		Contains:  c.Query("contains"),
		SessionID: c.Query("session_id"),
		OrderBy:   c.DefaultQuery("order_by", "created_at DESC"),
	}
	query.StartTime, query.EndTime = parseTimeRange(c)

	if hasError := c.Query("has_error"); hasError != "" {
		b := hasError == "true"
		query.HasError = &b
	}
	return query
}

// parseTimeRange 解析 RFC3339 时间范围，无效值忽略
func parseTimeRange(c *gin.Context) (startTime, endTime *time.Time) {
	if start := c.Query("start_time"); start != "" {
		if t, err := time.Parse(time.RFC3339, start); err == nil {
			startTime = &t
		}
	}
	if end := c.Query("end_time"); end != "" {
		if t, err := time.Parse(time.RFC3339, end); err == nil {
			endTime = &t
		}
	}
	return startTime, endTime
}

// parseLimit 解析分页大小
func parseLimit(c *gin.Context, fallback int) int {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(fallback)))
	if err != nil || limit <= 0 {
		return fallback
	}
	if limit > maxLogLimit {
		return maxLogLimit
	}
	return limit
}

// QueryLogs 查询日志列表
func (api *SerialLogAPI) QueryLogs(c *gin.Context) {
	query := parseQuery(c)
	query.Limit = parseLimit(c, defaultLogLimit)
	query.Offset, _ = strconv.Atoi(c.DefaultQuery("offset", "0"))

	logs, total, err := api.service.Query(query)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "查询失败",
			"message": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data":   logs,
		"total":  total,
		"limit":  query.Limit,
		"offset": query.Offset,
	})
}

// GetLatestLogs 获取最新日志
func (api *SerialLogAPI) GetLatestLogs(c *gin.Context) {
	limit := parseLimit(c, defaultLogLimit)
	direction := models.SerialDirection(c.Query("direction"))

	logs, err := api.service.GetLatestLogs(limit, direction)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "获取失败",
			"message": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data":  logs,
		"count": len(logs),
	})
}

// GetSessionLogs 获取指定会话的日志，id 为 current 时取本次运行的会话
func (api *SerialLogAPI) GetSessionLogs(c *gin.Context) {
	sessionID := c.Param("id")
	if sessionID == "current" {
		sessionID = api.service.SessionID()
	}

	logs, err := api.service.GetSessionLogs(sessionID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "获取失败",
			"message": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"session_id": sessionID,
		"data":       logs,
		"count":      len(logs),
	})
}

// GetStats 获取统计信息
func (api *SerialLogAPI) GetStats(c *gin.Context) {
	startTime, endTime := parseTimeRange(c)

	stats, err := api.service.GetStats(startTime, endTime)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "获取统计失败",
			"message": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, stats)
}

// CleanupLogs 清理旧日志，未指定天数时使用配置的保留天数
func (api *SerialLogAPI) CleanupLogs(c *gin.Context) {
	retentionDays := 0
	if raw := c.DefaultPostForm("retention_days", c.Query("retention_days")); raw != "" {
		days, err := strconv.Atoi(raw)
		if err != nil || days < 1 {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": "保留天数必须大于0",
			})
			return
		}
		retentionDays = days
	}

	count, err := api.service.CleanupOldLogs(retentionDays)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "清理失败",
			"message": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "清理成功",
		"deleted": count,
	})
}

// ExportLogs 导出日志
func (api *SerialLogAPI) ExportLogs(c *gin.Context) {
	query := parseQuery(c)
	query.Limit = parseLimit(c, maxLogLimit)

	data, err := api.service.ExportLogs(query)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "导出失败",
			"message": err.Error(),
		})
		return
	}

	c.Header("Content-Disposition", "attachment; filename=serial_logs_export.json")
	c.Data(http.StatusOK, "application/json", data)
}
