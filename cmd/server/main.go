package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"sync"
	"syscall"
	"time"

	"github.com/wfunc/led-master/internal/api"
	"github.com/wfunc/led-master/internal/config"
	"github.com/wfunc/led-master/internal/database"
	apperrors "github.com/wfunc/led-master/internal/errors"
	"github.com/wfunc/led-master/internal/hardware"
	"github.com/wfunc/led-master/internal/logger"
	"github.com/wfunc/led-master/internal/service"
	ws "github.com/wfunc/led-master/internal/websocket"
	"go.uber.org/zap"
)

// 版本信息
var (
	Version   = "1.0.0"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

// Server 服务器实例
type Server struct {
	cfg    *config.Config
	logger *zap.Logger

	manager    *hardware.Manager
	serialLog  *service.SerialLogService
	hub        *ws.Hub
	httpServer *http.Server

	// 关闭控制
	shutdownCh chan struct{}
	wg         sync.WaitGroup
	ctx        context.Context
	cancel     context.CancelFunc
}

func main() {
	// 命令行参数
	var (
		configPath  = flag.String("config", "", "配置文件路径")
		showVersion = flag.Bool("version", false, "显示版本信息")
	)
	flag.Parse()

	if *showVersion {
		printVersion()
		os.Exit(0)
	}

	// 加载配置
	if err := config.Init(*configPath); err != nil {
		fmt.Printf("加载配置失败: %v\n", err)
		os.Exit(1)
	}
	cfg := config.Get()

	// 初始化日志系统
	if err := logger.Init(&cfg.Log); err != nil {
		fmt.Printf("初始化日志失败: %v\n", err)
		os.Exit(1)
	}
	defer logger.Cleanup()

	server := NewServer(cfg)

	if err := server.Start(); err != nil {
		logger.Fatal("服务器启动失败", zap.Error(err))
	}

	server.WaitForShutdown()

	if err := server.Shutdown(); err != nil {
		logger.Error("服务器关闭失败", zap.Error(err))
		os.Exit(1)
	}

	logger.Info("服务器已安全关闭")
}

// NewServer 创建服务器实例
func NewServer(cfg *config.Config) *Server {
	ctx, cancel := context.WithCancel(context.Background())

	return &Server{
		cfg:        cfg,
		logger:     logger.GetLogger(),
		shutdownCh: make(chan struct{}),
		ctx:        ctx,
		cancel:     cancel,
	}
}

// Start 启动服务器
func (s *Server) Start() error {
	s.logger.Info("正在启动中控台服务器...",
		zap.String("version", Version),
		zap.String("mode", s.cfg.Server.Mode),
		zap.String("config", config.ConfigFile()),
	)

	if err := s.initComponents(); err != nil {
		return apperrors.Wrap(err, apperrors.ErrUnknown, "初始化组件失败")
	}

	if err := s.startServices(); err != nil {
		return apperrors.Wrap(err, apperrors.ErrUnknown, "启动服务失败")
	}

	// 监听配置变化
	config.Watch(func(newCfg *config.Config) {
		s.logger.Info("配置已更新，正在重新加载...")
		s.reloadConfig(newCfg)
	})

	s.logger.Info("中控台伺服器已启动",
		zap.String("url", fmt.Sprintf("http://%s", s.cfg.Server.Addr())))

	return nil
}

// initComponents 初始化组件
func (s *Server) initComponents() error {
	if err := s.initDatabase(); err != nil {
		return err
	}

	s.serialLog = service.NewSerialLogService(database.GetDB(), s.cfg.SerialLog)

	s.hub = ws.NewHub(logger.GetModuleLogger("websocket"), s.cfg.WebSocket.PingInterval)

	s.manager = hardware.NewManager(&hardware.ManagerConfig{
		DefaultBaudRate: s.cfg.Serial.DefaultBaudRate,
		StopGrace:       s.cfg.Serial.StopGrace,
		ReadTimeout:     s.cfg.Serial.ReadTimeout,
		LineDelimiter:   s.cfg.Serial.LineDelimiter,
	})
	s.manager.OnTraffic(s.serialLog.HandleTraffic)
	s.manager.OnTraffic(s.hub.HandleTraffic)
	s.manager.OnState(s.hub.HandleState)
	s.hub.SetStatusProvider(s.manager.Status)

	router := api.NewRouter(s.cfg, api.Dependencies{
		Manager:   s.manager,
		SerialLog: s.serialLog,
		Hub:       s.hub,
		DB:        database.GetDB(),
	}, logger.GetModuleLogger("http"))

	s.httpServer = &http.Server{
		Addr:         s.cfg.Server.Addr(),
		Handler:      router.GetEngine(),
		ReadTimeout:  s.cfg.Server.ReadTimeout,
		WriteTimeout: s.cfg.Server.WriteTimeout,
	}

	return nil
}

// initDatabase 初始化数据库
func (s *Server) initDatabase() error {
	if err := database.Init(&s.cfg.Database); err != nil {
		return apperrors.Wrap(err, apperrors.ErrDatabaseConnect, "初始化数据库连接失败")
	}

	if s.cfg.Database.AutoMigrate {
		if err := database.AutoMigrate(); err != nil {
			return apperrors.Wrap(err, apperrors.ErrDatabaseConnect, "数据库迁移失败")
		}
	}

	if !database.IsConnected() {
		return apperrors.New(apperrors.ErrDatabaseConnect, "数据库连接检查失败")
	}
	return nil
}

// startServices 启动服务
func (s *Server) startServices() error {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.hub.Run(s.ctx)
	}()

	// 启动时及每天清理一次过期日志
	if s.cfg.SerialLog.RetentionDays > 0 {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.runRetention()
		}()
	}

	errCh := make(chan error, 1)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	// 监听失败（端口占用等）立即返回
	select {
	case err := <-errCh:
		return err
	case <-time.After(200 * time.Millisecond):
		return nil
	}
}

// runRetention 定期清理串口日志
func (s *Server) runRetention() {
	ticker := time.NewTicker(24 * time.Hour)
	defer ticker.Stop()

	for {
		if _, err := s.serialLog.CleanupOldLogs(0); err != nil {
			s.logger.Warn("清理串口日志失败", zap.Error(err))
		}
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// WaitForShutdown 等待关闭信号
func (s *Server) WaitForShutdown() {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh,
		syscall.SIGINT,  // Ctrl+C
		syscall.SIGTERM, // kill命令
	)

	sig := <-sigCh
	s.logger.Info("收到退出信号", zap.String("signal", sig.String()))

	close(s.shutdownCh)
}

// Shutdown 优雅关闭服务器
func (s *Server) Shutdown() error {
	s.logger.Info("正在优雅关闭服务器...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.Server.ShutdownTimeout)
	defer cancel()

	// 停止接收新请求
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		s.logger.Warn("HTTP服务关闭失败", zap.Error(err))
	}

	// 通知 Master 停止广播后断线
	if err := s.manager.Shutdown(); err != nil {
		s.logger.Error("断线失败", zap.Error(err))
	}

	s.cancel()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-shutdownCtx.Done():
		s.logger.Warn("关闭超时，强制退出")
		return apperrors.New(apperrors.ErrTimeout, "关闭超时")
	}

	s.serialLog.Close()

	if err := database.Close(); err != nil {
		s.logger.Error("关闭数据库失败", zap.Error(err))
	}

	if err := logger.Sync(); err != nil {
		fmt.Printf("同步日志失败: %v\n", err)
	}

	return nil
}

// reloadConfig 重新加载配置，运行中只应用日志级别
func (s *Server) reloadConfig(newCfg *config.Config) {
	logger.SetLevel(newCfg.Log.Level)
	logger.SetModuleLevels(newCfg.Log.Modules)
	s.logger.Info("配置重新加载完成", zap.String("log_level", newCfg.Log.Level))
}

// printVersion 打印版本信息
func printVersion() {
	fmt.Printf("LED Master 中控台服务器\n")
	fmt.Printf("版本: %s\n", Version)
	fmt.Printf("构建时间: %s\n", BuildTime)
	fmt.Printf("Git提交: %s\n", GitCommit)
	fmt.Printf("Go版本: %s\n", runtime.Version())
	fmt.Printf("操作系统: %s/%s\n", runtime.GOOS, runtime.GOARCH)
}
