package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"babyguardian-vitals/common/logger"
	"babyguardian-vitals/internal/config"
	"babyguardian-vitals/internal/service"

	"go.uber.org/zap"
)

const serviceName = "babyguardian-vitals"

func main() {
	// 加载配置
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// 初始化Logger
	var l *zap.Logger
	if cfg.Log.File != "" {
		l, err = logger.NewLoggerWithRotation(cfg.Log.Level, cfg.Log.Format, serviceName, logger.RotationConfig{
			Filename:   cfg.Log.File,
			MaxSizeMB:  100,
			MaxBackups: 7,
			MaxAgeDays: 30,
			Compress:   true,
		})
	} else {
		l, err = logger.NewLogger(cfg.Log.Level, cfg.Log.Format, serviceName)
	}
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer l.Sync()

	l.Info("Starting babyguardian-vitals service",
		zap.String("mqtt_broker", cfg.MQTT.Broker),
		zap.String("http_addr", cfg.HTTP.Addr),
		zap.String("cleaning_mode", cfg.Cleaning.Mode),
	)

	// 创建服务
	vitalsService, err := service.NewVitalsService(cfg, l)
	if err != nil {
		l.Fatal("Failed to create vitals service", zap.Error(err))
	}

	// 启动服务
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := vitalsService.Start(ctx); err != nil {
		l.Fatal("Failed to start vitals service", zap.Error(err))
	}

	// 等待中断信号
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigChan
	l.Info("Received signal, shutting down", zap.String("signal", sig.String()))

	// 优雅关闭
	stopCtx, stopCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer stopCancel()
	if err := vitalsService.Stop(stopCtx); err != nil {
		l.Error("Error during shutdown", zap.Error(err))
	}

	l.Info("Service stopped")
}
