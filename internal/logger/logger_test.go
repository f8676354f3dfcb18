package logger

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wfunc/led-master/internal/config"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]zapcore.Level{
		"debug":   zapcore.DebugLevel,
		"info":    zapcore.InfoLevel,
		"warn":    zapcore.WarnLevel,
		"error":   zapcore.ErrorLevel,
		"fatal":   zapcore.FatalLevel,
		"unknown": zapcore.InfoLevel,
		"":        zapcore.InfoLevel,
	}
	for in, want := range cases {
		assert.Equal(t, want, parseLevel(in), in)
	}
}

func TestBuildWithFileOutput(t *testing.T) {
	dir := t.TempDir()
	set, err := build(&config.LogConfig{
		Level:  "debug",
		Format: "json",
		Output: "both",
		File: config.LogFileConfig{
			Path:     dir,
			Filename: "test.log",
			MaxSize:  1,
		},
		Modules: map[string]string{"serial": "warn"},
	})
	require.NoError(t, err)
	require.NotNil(t, set.root)

	assert.Contains(t, set.modules, "serial")
	assert.False(t, set.modules["serial"].Core().Enabled(zapcore.InfoLevel))
	assert.True(t, set.modules["serial"].Core().Enabled(zapcore.WarnLevel))
	assert.True(t, set.root.Core().Enabled(zapcore.DebugLevel))
}

func TestModuleLoggerWritesToFile(t *testing.T) {
	dir := t.TempDir()
	set, err := build(&config.LogConfig{
		Level:  "info",
		Format: "json",
		Output: "file",
		File: config.LogFileConfig{
			Path:     dir,
			Filename: "led-master.log",
			MaxSize:  1,
		},
		Modules: map[string]string{"serial": "debug"},
	})
	require.NoError(t, err)

	serial := set.modules["serial"]
	serial.Debug("serial_line", zap.String("line", "STOP"))
	serial.Error("serial_line_failed", zap.String("line", "1,2"))

	content, err := os.ReadFile(filepath.Join(dir, "led-master.log"))
	require.NoError(t, err)
	assert.Contains(t, string(content), `"logger":"serial"`)
	assert.Contains(t, string(content), `"line":"STOP"`)

	// 模块错误同样进入 error.log
	errContent, err := os.ReadFile(filepath.Join(dir, "error.log"))
	require.NoError(t, err)
	assert.Contains(t, string(errContent), "serial_line_failed")
	assert.NotContains(t, string(errContent), `"line":"STOP"`)
}

func TestSetModuleLevels(t *testing.T) {
	set, err := build(&config.LogConfig{
		Level:   "info",
		Modules: map[string]string{"http": "info"},
	})
	require.NoError(t, err)

	mu.Lock()
	previous := moduleLevels
	moduleLevels = set.levels
	mu.Unlock()
	defer func() {
		mu.Lock()
		moduleLevels = previous
		mu.Unlock()
	}()

	assert.False(t, set.modules["http"].Core().Enabled(zapcore.DebugLevel))
	SetModuleLevels(map[string]string{"http": "debug", "unknown": "debug"})
	assert.True(t, set.modules["http"].Core().Enabled(zapcore.DebugLevel))
	SetModuleLevels(map[string]string{"http": "error"})
	assert.False(t, set.modules["http"].Core().Enabled(zapcore.WarnLevel))
}

func TestSetLevel(t *testing.T) {
	SetLevel("error")
	assert.Equal(t, zapcore.ErrorLevel, Level())
	SetLevel("info")
	assert.Equal(t, zapcore.InfoLevel, Level())
}

func TestGetModuleLoggerFallback(t *testing.T) {
	// 未配置的模块回退到主日志器
	assert.NotNil(t, GetModuleLogger("not-configured"))
	LogSerialLine("SEND", "/dev/ttyUSB0", "STOP", nil)
}
