package api

import (
	"net/http"
	"os"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/wfunc/led-master/internal/config"
	"github.com/wfunc/led-master/internal/middleware"
	"github.com/wfunc/led-master/internal/service"
	ws "github.com/wfunc/led-master/internal/websocket"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Dependencies 路由依赖
type Dependencies struct {
	Manager   ConnectionManager
	SerialLog *service.SerialLogService // 可为 nil
	Hub       *ws.Hub                   // 可为 nil
	DB        *gorm.DB                  // 可为 nil
}

// Router API路由器
type Router struct {
	engine        *gin.Engine
	cfg           *config.Config
	db            *gorm.DB
	serialHandler *SerialHandler
	serialLogAPI  *SerialLogAPI
	monitor       *MonitorHandler
	log           *zap.Logger
}

// NewRouter 创建路由器
func NewRouter(cfg *config.Config, deps Dependencies, log *zap.Logger) *Router {
	gin.SetMode(cfg.Server.Mode)

	engine := gin.New()

	// 全局中间件
	engine.Use(middleware.RequestID())
	engine.Use(middleware.RequestLogger())
	engine.Use(middleware.Recovery())

	router := &Router{
		engine:        engine,
		cfg:           cfg,
		db:            deps.DB,
		serialHandler: NewSerialHandler(deps.Manager, log),
		log:           log,
	}
	if deps.SerialLog != nil {
		router.serialLogAPI = NewSerialLogAPI(deps.SerialLog)
	}
	if deps.Hub != nil {
		router.monitor = NewMonitorHandler(deps.Hub,
			cfg.WebSocket.ReadBufferSize, cfg.WebSocket.WriteBufferSize, log)
	}

	router.setupRoutes()

	return router
}

// setupRoutes 设置路由
func (r *Router) setupRoutes() {
	// 健康检查
	r.engine.GET("/health", r.healthCheck)

	api := r.engine.Group("/api")
	{
		r.serialHandler.RegisterRoutes(api)
		if r.serialLogAPI != nil {
			r.serialLogAPI.RegisterRoutes(api)
		}
		if r.monitor != nil {
			api.GET("/monitor/online", r.monitor.OnlineCount)
		}
	}

	if r.monitor != nil {
		path := r.cfg.WebSocket.Path
		if path == "" {
			path = "/ws/monitor"
		}
		r.engine.GET(path, r.monitor.Monitor)
	}

	registerOpenAPIRoutes(r.engine, r.cfg.Server.StaticDir)
	registerSwaggerRoutes(r.engine)

	// 静态文件服务（中控台页面），路由未命中时回退到静态目录
	var static http.FileSystem
	if dir := r.cfg.Server.StaticDir; dir != "" {
		if info, err := os.Stat(dir); err == nil && info.IsDir() {
			static = http.Dir(dir)
		} else {
			r.log.Warn("静态目录不存在", zap.String("dir", dir))
		}
	}
	var fileServer http.Handler
	if static != nil {
		fileServer = http.FileServer(static)
	}

	r.engine.NoRoute(func(c *gin.Context) {
		path := c.Request.URL.Path
		if fileServer != nil && (c.Request.Method == http.MethodGet || c.Request.Method == http.MethodHead) &&
			!strings.HasPrefix(path, "/api/") {
			if f, err := static.Open(path); err == nil {
				f.Close()
				fileServer.ServeHTTP(c.Writer, c.Request)
				return
			}
		}
		c.JSON(http.StatusNotFound, gin.H{
			"code":    "NOT_FOUND",
			"message": "接口不存在",
		})
	})
}

// healthCheck 健康检查
func (r *Router) healthCheck(c *gin.Context) {
	if r.db != nil {
		sqlDB, err := r.db.DB()
		if err != nil || sqlDB.Ping() != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status":  "unhealthy",
				"message": "数据库连接失败",
			})
			return
		}
	}

	status := r.serialHandler.manager.Status()
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"message":   "服务运行正常",
		"connected": status.Connected,
	})
}

// GetEngine 获取Gin引擎
func (r *Router) GetEngine() *gin.Engine {
	return r.engine
}
