package logger

import (
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// RotationConfig 日志文件滚动配置
type RotationConfig struct {
	Filename   string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// parseLevel 解析日志级别，无法识别时回退到 info
func parseLevel(level string) zapcore.Level {
	switch strings.ToLower(level) {
	case "debug":
		return zapcore.DebugLevel
	case "warn":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// NewLogger 创建新的Logger实例
// level: "debug", "info", "warn", "error" (默认: "info")
// format: "json" 或 "console" (默认: "json")
// serviceName: 服务名称，作为全局字段 service_name 输出
func NewLogger(level string, format string, serviceName string) (*zap.Logger, error) {
	zapLevel := parseLevel(level)

	var config zap.Config
	if format == "console" {
		config = zap.NewDevelopmentConfig()
		config.Level = zap.NewAtomicLevelAt(zapLevel)
	} else {
		config = zap.NewProductionConfig()
		config.Level = zap.NewAtomicLevelAt(zapLevel)
		config.EncoderConfig.TimeKey = "timestamp"
		config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
		// 输出到标准输出（便于Docker和日志收集器捕获）
		config.OutputPaths = []string{"stdout"}
		config.ErrorOutputPaths = []string{"stderr"}
	}

	baseLogger, err := config.Build()
	if err != nil {
		return nil, err
	}
	return withGlobalFields(baseLogger, serviceName), nil
}

// NewLoggerWithRotation 创建同时写标准输出和滚动文件的Logger
// 文件输出始终为 JSON，便于日志采集
func NewLoggerWithRotation(level string, format string, serviceName string, rotation RotationConfig) (*zap.Logger, error) {
	if rotation.Filename == "" {
		return NewLogger(level, format, serviceName)
	}

	zapLevel := zap.NewAtomicLevelAt(parseLevel(level))

	fileEncoderCfg := zap.NewProductionEncoderConfig()
	fileEncoderCfg.TimeKey = "timestamp"
	fileEncoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	var stdoutEncoder zapcore.Encoder
	if format == "console" {
		stdoutEncoder = zapcore.NewConsoleEncoder(zap.NewDevelopmentEncoderConfig())
	} else {
		stdoutEncoder = zapcore.NewJSONEncoder(fileEncoderCfg)
	}

	fileWriter := zapcore.AddSync(&lumberjack.Logger{
		Filename:   rotation.Filename,
		MaxSize:    rotation.MaxSizeMB,
		MaxBackups: rotation.MaxBackups,
		MaxAge:     rotation.MaxAgeDays,
		Compress:   rotation.Compress,
	})

	core := zapcore.NewTee(
		zapcore.NewCore(stdoutEncoder, zapcore.Lock(os.Stdout), zapLevel),
		zapcore.NewCore(zapcore.NewJSONEncoder(fileEncoderCfg), fileWriter, zapLevel),
	)

	baseLogger := zap.New(core, zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel))
	return withGlobalFields(baseLogger, serviceName), nil
}

func withGlobalFields(l *zap.Logger, serviceName string) *zap.Logger {
	if serviceName != "" {
		l = l.With(zap.String("service_name", serviceName))
	}
	// 添加主机名（用于多实例部署时区分来源）
	if hostname, err := os.Hostname(); err == nil && hostname != "" {
		l = l.With(zap.String("hostname", hostname))
	}
	return l
}
