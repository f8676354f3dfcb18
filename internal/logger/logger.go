package logger

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/wfunc/led-master/internal/config"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	logger *zap.Logger
	sugar  *zap.SugaredLogger
	once   sync.Once
	mu     sync.RWMutex

	// 全局日志级别，支持运行时调整
	atomicLevel = zap.NewAtomicLevel()

	// 模块日志器及其级别
	moduleLoggers = map[string]*zap.Logger{}
	moduleLevels  = map[string]zap.AtomicLevel{}
)

// Init 初始化日志系统
func Init(cfg *config.LogConfig) error {
	var err error
	once.Do(func() {
		var set *loggerSet
		set, err = build(cfg)
		if err != nil {
			return
		}

		mu.Lock()
		logger = set.root
		sugar = set.root.Sugar()
		moduleLoggers = set.modules
		moduleLevels = set.levels
		mu.Unlock()
	})

	return err
}

// loggerSet 主日志器及模块日志器
type loggerSet struct {
	root    *zap.Logger
	modules map[string]*zap.Logger
	levels  map[string]zap.AtomicLevel
}

// sink 一个输出目标，errorsOnly 的目标只接收错误日志
type sink struct {
	writer     zapcore.WriteSyncer
	errorsOnly bool
}

// build 根据配置创建日志器
func build(cfg *config.LogConfig) (*loggerSet, error) {
	atomicLevel.SetLevel(parseLevel(cfg.Level))

	encoderConfig := zapcore.EncoderConfig{
		TimeKey:        "time",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      "caller",
		FunctionKey:    zapcore.OmitKey,
		MessageKey:     "msg",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.SecondsDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}

	// 根据格式选择编码器
	var encoder zapcore.Encoder
	if cfg.Format == "json" {
		encoder = zapcore.NewJSONEncoder(encoderConfig)
	} else {
		encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		encoder = zapcore.NewConsoleEncoder(encoderConfig)
	}

	var sinks []sink

	// 控制台输出
	if cfg.Output == "" || cfg.Output == "stdout" || cfg.Output == "both" {
		sinks = append(sinks, sink{writer: zapcore.AddSync(os.Stdout)})
	}

	// 文件输出
	if cfg.Output == "file" || cfg.Output == "both" {
		logDir := cfg.File.Path
		if err := os.MkdirAll(logDir, 0755); err != nil {
			return nil, fmt.Errorf("创建日志目录失败: %w", err)
		}

		// 文件写入器（支持日志轮转）
		fileWriter := &lumberjack.Logger{
			Filename:   filepath.Join(logDir, cfg.File.Filename),
			MaxSize:    cfg.File.MaxSize,    // MB
			MaxAge:     cfg.File.MaxAge,     // days
			MaxBackups: cfg.File.MaxBackups, // 保留文件数
			Compress:   cfg.File.Compress,
		}
		sinks = append(sinks, sink{writer: zapcore.AddSync(fileWriter)})

		// 错误日志单独输出
		errorWriter := &lumberjack.Logger{
			Filename:   filepath.Join(logDir, "error.log"),
			MaxSize:    cfg.File.MaxSize,
			MaxAge:     cfg.File.MaxAge,
			MaxBackups: cfg.File.MaxBackups,
			Compress:   cfg.File.Compress,
		}
		sinks = append(sinks, sink{writer: zapcore.AddSync(errorWriter), errorsOnly: true})
	}

	// tee 把同一组输出按给定级别组合起来
	tee := func(level zapcore.LevelEnabler) zapcore.Core {
		cores := make([]zapcore.Core, 0, len(sinks))
		for _, s := range sinks {
			enabler := level
			if s.errorsOnly {
				enabler = zapcore.ErrorLevel
			}
			cores = append(cores, zapcore.NewCore(encoder, s.writer, enabler))
		}
		return zapcore.NewTee(cores...)
	}

	set := &loggerSet{
		root: zap.New(tee(atomicLevel),
			zap.AddCaller(),
			zap.AddStacktrace(zapcore.ErrorLevel),
		),
		modules: make(map[string]*zap.Logger, len(cfg.Modules)),
		levels:  make(map[string]zap.AtomicLevel, len(cfg.Modules)),
	}

	// 模块日志器：与主日志器共享输出，但使用独立级别
	for module, levelStr := range cfg.Modules {
		level := zap.NewAtomicLevelAt(parseLevel(levelStr))
		set.levels[module] = level
		set.modules[module] = zap.New(tee(level), zap.AddCaller()).Named(module)
	}

	return set, nil
}

// parseLevel 解析日志级别
func parseLevel(levelStr string) zapcore.Level {
	switch levelStr {
	case "debug":
		return zapcore.DebugLevel
	case "warn":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	case "fatal":
		return zapcore.FatalLevel
	default:
		return zapcore.InfoLevel
	}
}

// GetLogger 获取日志器
func GetLogger() *zap.Logger {
	mu.RLock()
	defer mu.RUnlock()
	if logger == nil {
		// 未初始化时使用默认配置
		defaultLogger, _ := zap.NewProduction()
		return defaultLogger
	}
	return logger
}

// GetSugar 获取Sugar日志器
func GetSugar() *zap.SugaredLogger {
	mu.RLock()
	s := sugar
	mu.RUnlock()
	if s == nil {
		return GetLogger().Sugar()
	}
	return s
}

// GetModuleLogger 获取模块日志器
func GetModuleLogger(module string) *zap.Logger {
	mu.RLock()
	moduleLogger, ok := moduleLoggers[module]
	mu.RUnlock()

	if ok {
		return moduleLogger
	}
	return GetLogger().Named(module)
}

// Sync 同步日志缓冲区
func Sync() error {
	mu.RLock()
	defer mu.RUnlock()

	if logger != nil {
		return logger.Sync()
	}
	return nil
}

// Info 输出信息日志
func Info(msg string, fields ...zap.Field) {
	GetLogger().Info(msg, fields...)
}

// Warn 输出警告日志
func Warn(msg string, fields ...zap.Field) {
	GetLogger().Warn(msg, fields...)
}

// Error 输出错误日志
func Error(msg string, fields ...zap.Field) {
	GetLogger().Error(msg, fields...)
}

// Fatal 输出致命错误日志并退出程序
func Fatal(msg string, fields ...zap.Field) {
	GetLogger().Fatal(msg, fields...)
}

// Infof 格式化输出信息日志
func Infof(template string, args ...interface{}) {
	GetSugar().Infof(template, args...)
}

// LogRequest 记录请求日志
func LogRequest(method, path string, statusCode int, latency time.Duration, clientIP string) {
	GetModuleLogger("http").Info("request",
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status", statusCode),
		zap.Duration("latency", latency),
		zap.String("client_ip", clientIP),
	)
}

// LogSerialLine 记录串口收发的一行数据
func LogSerialLine(direction, port, line string, err error) {
	l := GetModuleLogger("serial")
	fields := []zap.Field{
		zap.String("direction", direction),
		zap.String("port", port),
		zap.String("line", line),
	}
	if err != nil {
		l.Error("serial_line_failed", append(fields, zap.Error(err))...)
		return
	}
	l.Debug("serial_line", fields...)
}

// LogDatabaseOperation 记录数据库操作
func LogDatabaseOperation(operation string, table string, duration time.Duration, err error) {
	l := GetModuleLogger("database")
	fields := []zap.Field{
		zap.String("operation", operation),
		zap.String("table", table),
		zap.Duration("duration", duration),
	}

	if err != nil {
		l.Error("database_operation_failed", append(fields, zap.Error(err))...)
		return
	}
	l.Debug("database_operation", fields...)
}

// SetLevel 动态设置日志级别
func SetLevel(levelStr string) {
	atomicLevel.SetLevel(parseLevel(levelStr))
}

// SetModuleLevels 动态调整已配置模块的日志级别
// 未配置的模块沿用主日志器，新增模块需要重启生效
func SetModuleLevels(levels map[string]string) {
	mu.RLock()
	defer mu.RUnlock()
	for module, levelStr := range levels {
		if level, ok := moduleLevels[module]; ok {
			level.SetLevel(parseLevel(levelStr))
		}
	}
}

// Level 返回当前日志级别
func Level() zapcore.Level {
	return atomicLevel.Level()
}

// Cleanup 清理日志资源
func Cleanup() {
	if err := Sync(); err != nil {
		fmt.Printf("Failed to sync logger: %v\n", err)
	}
}
