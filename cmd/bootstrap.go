package cmd

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// debugEnv 设置后启动阶段输出 Debug 日志，兼容通用的 DEBUG
const debugEnv = "STICKY_CANVAS_DEBUG"

// bootstrapLogger 启动阶段日志器
// Used before the configured logger exists: config lookup, offline notes commands.
var bootstrapLogger = newBootstrapLogger(os.Getenv(debugEnv) != "" || os.Getenv("DEBUG") != "")

// newBootstrapLogger 控制台 stderr 输出，带 service 字段
func newBootstrapLogger(debug bool) *zap.Logger {
	encoderConfig := zap.NewDevelopmentEncoderConfig()
	encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	level := zapcore.InfoLevel
	if debug {
		level = zapcore.DebugLevel
	}

	core := zapcore.NewCore(zapcore.NewConsoleEncoder(encoderConfig), zapcore.Lock(os.Stderr), level)
	return zap.New(core, zap.AddCaller()).
		Named("bootstrap").
		With(zap.String("service", "sticky-note-canvas"))
}
