package config

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// Config 全局配置结构体
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Serial    SerialConfig    `mapstructure:"serial"`
	SerialLog SerialLogConfig `mapstructure:"serial_log"`
	Database  DatabaseConfig  `mapstructure:"database"`
	WebSocket WebSocketConfig `mapstructure:"websocket"`
	Log       LogConfig       `mapstructure:"log"`
}

// ServerConfig 服务器配置
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	Mode            string        `mapstructure:"mode"`
	StaticDir       string        `mapstructure:"static_dir"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// Addr 返回监听地址
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// SerialConfig 串口配置
type SerialConfig struct {
	DefaultBaudRate int           `mapstructure:"default_baud_rate"`
	StopGrace       time.Duration `mapstructure:"stop_grace"`     // STOP 与关闭之间的等待时间
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`   // 读取超时，决定读取循环的退出延迟
	LineDelimiter   string        `mapstructure:"line_delimiter"` // Master 回传行分隔符
}

// SerialLogConfig 串口日志持久化配置
type SerialLogConfig struct {
	Enabled       bool          `mapstructure:"enabled"`
	FlushInterval time.Duration `mapstructure:"flush_interval"`
	BatchSize     int           `mapstructure:"batch_size"`
	RetentionDays int           `mapstructure:"retention_days"`
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"`
	DSN             string        `mapstructure:"dsn"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	LogLevel        string        `mapstructure:"log_level"`
	AutoMigrate     bool          `mapstructure:"auto_migrate"`
}

// WebSocketConfig WebSocket配置
type WebSocketConfig struct {
	Path            string        `mapstructure:"path"`
	ReadBufferSize  int           `mapstructure:"read_buffer_size"`
	WriteBufferSize int           `mapstructure:"write_buffer_size"`
	PingInterval    time.Duration `mapstructure:"ping_interval"`
}

// LogConfig 日志配置
type LogConfig struct {
	Level   string            `mapstructure:"level"`
	Format  string            `mapstructure:"format"`
	Output  string            `mapstructure:"output"`
	File    LogFileConfig     `mapstructure:"file"`
	Modules map[string]string `mapstructure:"modules"`
}

// LogFileConfig 日志文件配置
type LogFileConfig struct {
	Path       string `mapstructure:"path"`
	Filename   string `mapstructure:"filename"`
	MaxSize    int    `mapstructure:"max_size"`
	MaxAge     int    `mapstructure:"max_age"`
	MaxBackups int    `mapstructure:"max_backups"`
	Compress   bool   `mapstructure:"compress"`
}

var (
	cfg  *Config
	once sync.Once
	mu   sync.RWMutex
	v    *viper.Viper
)

// Init 初始化全局配置
func Init(configPath string) error {
	var err error
	once.Do(func() {
		var loaded *Config
		v, loaded, err = load(configPath)
		if err != nil {
			return
		}
		mu.Lock()
		cfg = loaded
		mu.Unlock()
	})
	return err
}

// Load 读取配置但不修改全局实例
func Load(configPath string) (*Config, error) {
	_, c, err := load(configPath)
	return c, err
}

func load(configPath string) (*viper.Viper, *Config, error) {
	vp := viper.New()

	// 设置配置文件路径
	if configPath != "" {
		vp.SetConfigFile(configPath)
	} else {
		vp.SetConfigName("config")
		vp.SetConfigType("yaml")
		vp.AddConfigPath("./config")
		vp.AddConfigPath(".")
	}

	// 设置环境变量前缀
	vp.SetEnvPrefix("LED_MASTER")
	vp.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	vp.AutomaticEnv()

	setDefaults(vp)

	if err := vp.ReadInConfig(); err != nil {
		// 配置文件不存在时使用默认配置
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, nil, fmt.Errorf("读取配置文件失败: %w", err)
		}
	}

	c := &Config{}
	if err := vp.Unmarshal(c); err != nil {
		return nil, nil, fmt.Errorf("解析配置失败: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, nil, err
	}

	return vp, c, nil
}

// setDefaults 设置默认配置值
func setDefaults(v *viper.Viper) {
	// 服务器默认配置
	v.SetDefault("server.host", "127.0.0.1")
	v.SetDefault("server.port", 3000)
	v.SetDefault("server.mode", "release")
	v.SetDefault("server.static_dir", "./public")
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.shutdown_timeout", "10s")

	// 串口默认配置
	v.SetDefault("serial.default_baud_rate", 115200)
	v.SetDefault("serial.stop_grace", "50ms")
	v.SetDefault("serial.read_timeout", "100ms")
	v.SetDefault("serial.line_delimiter", "\r\n")

	// 串口日志默认配置
	v.SetDefault("serial_log.enabled", true)
	v.SetDefault("serial_log.flush_interval", "5s")
	v.SetDefault("serial_log.batch_size", 100)
	v.SetDefault("serial_log.retention_days", 30)

	// 数据库默认配置
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", "./data/led-master.db")
	v.SetDefault("database.max_idle_conns", 2)
	v.SetDefault("database.max_open_conns", 4)
	v.SetDefault("database.conn_max_lifetime", "1h")
	v.SetDefault("database.log_level", "warn")
	v.SetDefault("database.auto_migrate", true)

	// WebSocket默认配置
	v.SetDefault("websocket.path", "/ws/monitor")
	v.SetDefault("websocket.read_buffer_size", 1024)
	v.SetDefault("websocket.write_buffer_size", 1024)
	v.SetDefault("websocket.ping_interval", "30s")

	// 日志默认配置
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	v.SetDefault("log.output", "stdout")
	v.SetDefault("log.file.path", "./logs")
	v.SetDefault("log.file.filename", "led-master.log")
	v.SetDefault("log.file.max_size", 20)
	v.SetDefault("log.file.max_age", 30)
	v.SetDefault("log.file.max_backups", 7)
	v.SetDefault("log.file.compress", true)
}

// Validate 校验配置
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("无效的服务端口: %d", c.Server.Port)
	}
	if c.Serial.DefaultBaudRate <= 0 {
		return fmt.Errorf("无效的默认波特率: %d", c.Serial.DefaultBaudRate)
	}
	if c.Serial.StopGrace < 0 {
		return fmt.Errorf("无效的STOP等待时间: %s", c.Serial.StopGrace)
	}
	if c.Serial.LineDelimiter == "" {
		return fmt.Errorf("串口行分隔符不能为空")
	}
	if c.SerialLog.Enabled && c.SerialLog.BatchSize <= 0 {
		return fmt.Errorf("无效的串口日志批量大小: %d", c.SerialLog.BatchSize)
	}
	return nil
}

// Get 获取配置实例
func Get() *Config {
	mu.RLock()
	defer mu.RUnlock()
	return cfg
}

// Watch 监听配置文件变化
func Watch(callback func(*Config)) {
	// 未使用配置文件时无需监听
	if v == nil || v.ConfigFileUsed() == "" {
		return
	}
	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		newCfg := &Config{}
		if err := v.Unmarshal(newCfg); err != nil {
			fmt.Printf("配置重载失败: %v\n", err)
			return
		}
		if err := newCfg.Validate(); err != nil {
			fmt.Printf("配置重载失败: %v\n", err)
			return
		}

		mu.Lock()
		cfg = newCfg
		mu.Unlock()

		if callback != nil {
			callback(newCfg)
		}
	})
}

// GetString 获取字符串配置
func GetString(key string) string {
	if v == nil {
		return ""
	}
	return v.GetString(key)
}

// ConfigFile 返回当前使用的配置文件路径
func ConfigFile() string {
	if v == nil {
		return ""
	}
	return v.ConfigFileUsed()
}
