package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"babyguardian-vitals/common/database"
	mqttcommon "babyguardian-vitals/common/mqtt"
	rediscommon "babyguardian-vitals/common/redis"
	"babyguardian-vitals/internal/cleaning"
	"babyguardian-vitals/internal/config"
	"babyguardian-vitals/internal/consumer"
	"babyguardian-vitals/internal/evaluator"
	"babyguardian-vitals/internal/httpapi"
	"babyguardian-vitals/internal/hub"
	"babyguardian-vitals/internal/metrics"
	"babyguardian-vitals/internal/monitor"
	"babyguardian-vitals/internal/realtime"
	"babyguardian-vitals/internal/repository"
	"babyguardian-vitals/internal/risk"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// MQTTClient 服务使用的 MQTT 能力（common/mqtt.Client）
type MQTTClient interface {
	consumer.Subscriber
	consumer.Publisher
	Disconnect()
}

// Infra 外部连接；DB / Redis 可为 nil
type Infra struct {
	DB    *sql.DB
	Redis *redis.Client
	MQTT  MQTTClient
}

// VitalsService 体征采集服务
type VitalsService struct {
	config *config.Config
	logger *zap.Logger
	infra  Infra

	metrics    *metrics.Metrics
	monitor    *monitor.LivenessMonitor
	hub        *hub.Hub
	correlator *realtime.Correlator
	consumer   *consumer.MQTTConsumer
	router     *httpapi.Router
	server     *Server

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewVitalsService 建立 DB / Redis / MQTT 连接并组装服务
func NewVitalsService(cfg *config.Config, logger *zap.Logger) (*VitalsService, error) {
	var infra Infra

	if cfg.Database.Enabled {
		db, err := database.NewPostgresDB(&cfg.Database.DatabaseConfig)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		infra.DB = db
	}

	if needsRedis(cfg) {
		redisClient := rediscommon.NewRedisClient(&cfg.Redis)
		if err := rediscommon.Ping(context.Background(), redisClient); err != nil {
			closeInfra(infra)
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		infra.Redis = redisClient
	}

	mqttClient, err := mqttcommon.NewClient(&cfg.MQTT.MQTTConfig, logger)
	if err != nil {
		closeInfra(infra)
		return nil, fmt.Errorf("failed to connect to MQTT: %w", err)
	}
	infra.MQTT = mqttClient

	s, err := Assemble(cfg, logger, infra)
	if err != nil {
		closeInfra(infra)
		return nil, err
	}
	return s, nil
}

func needsRedis(cfg *config.Config) bool {
	return cfg.Stream.Enabled || strings.EqualFold(cfg.Alert.CooldownBackend, "redis")
}

// Assemble 基于已建立的连接组装各组件
func Assemble(cfg *config.Config, logger *zap.Logger, infra Infra) (*VitalsService, error) {
	m := metrics.New()

	mode, err := cleaning.ParseMode(cfg.Cleaning.Mode)
	if err != nil {
		return nil, err
	}
	cleaner := cleaning.NewCleaner(cleaning.Policy{
		Mode:        mode,
		Temperature: cleaning.Range{Min: cfg.Cleaning.TempMin, Max: cfg.Cleaning.TempMax},
		SpO2:        cleaning.Range{Min: cfg.Cleaning.SpO2Min, Max: cfg.Cleaning.SpO2Max},
		HeartRate:   cleaning.Range{Min: cfg.Cleaning.HRMin, Max: cfg.Cleaning.HRMax},
	})

	var (
		readings repository.ReadingRepository
		devices  repository.DeviceRepository
	)
	if infra.DB != nil {
		readings = repository.NewPostgresReadingRepository(infra.DB, logger)
		devices = repository.NewPostgresDeviceRepository(infra.DB, logger)
	} else {
		logger.Warn("Database disabled, using in-memory repositories")
		readings = repository.NewMemoryReadingRepository(1000)
		devices = repository.NewMemoryDeviceRepository()
	}

	var cooldowns evaluator.CooldownStore = evaluator.NewMemoryCooldownStore()
	if strings.EqualFold(cfg.Alert.CooldownBackend, "redis") {
		if infra.Redis == nil {
			return nil, fmt.Errorf("redis cooldown backend requires a redis connection")
		}
		cooldowns = evaluator.NewRedisCooldownStore(infra.Redis, cfg.Alert.CooldownPrefix)
	}
	alerts := evaluator.NewAlertEvaluator(evaluator.Thresholds{
		TempHigh: cfg.Alert.TempHigh,
		SpO2Low:  cfg.Alert.SpO2Low,
		HRHigh:   cfg.Alert.HRHigh,
		HRLow:    cfg.Alert.HRLow,
		Cooldown: cfg.Alert.Cooldown,
	}, cooldowns, m, logger)

	h := hub.New(hub.Options{QueueSize: cfg.Hub.QueueSize, PingInterval: cfg.Hub.PingInterval}, m, logger)
	mon := monitor.NewLivenessMonitor(monitor.Options{
		Timeout:       cfg.Liveness.Timeout,
		SweepInterval: cfg.Liveness.SweepInterval,
	}, h, m, logger)
	h.SetStatusSource(mon)

	correlator := realtime.NewCorrelator(m, logger)

	var events consumer.EventPublisher
	if cfg.Stream.Enabled {
		if infra.Redis == nil {
			return nil, fmt.Errorf("stream publishing requires a redis connection")
		}
		events = consumer.NewStreamPublisher(infra.Redis, cfg.Stream.Readings, cfg.Stream.Alerts, cfg.Stream.MaxLen, m, logger)
	}

	ingestor := consumer.NewIngestor(consumer.IngestorDeps{
		Cleaner:     cleaner,
		Devices:     devices,
		Readings:    readings,
		Activity:    mon,
		Alerts:      alerts,
		Broadcaster: h,
		Waiters:     correlator,
		Events:      events,
		Metrics:     m,
		Logger:      logger,
	})
	topics := consumer.NewRouter()
	if err := ingestor.Register(topics, cfg.MQTT.StatusTopic, cfg.MQTT.TelemetryTopic); err != nil {
		return nil, fmt.Errorf("failed to register topics: %w", err)
	}
	mqttConsumer := consumer.NewMQTTConsumer(infra.MQTT, topics, cfg.MQTT.QoS, logger)
	commands := consumer.NewCommandPublisher(infra.MQTT, cfg.MQTT.CommandTopicPrefix, cfg.MQTT.QoS)

	auth := httpapi.NewAuthenticator(cfg.Auth.JWTSecret, logger)
	if !auth.Enabled() {
		logger.Warn("AUTH_JWT_SECRET is empty, authentication and ownership checks are disabled")
	}
	access := httpapi.NewAccessControl(devices, auth.Enabled())

	router := httpapi.NewRouter(auth, logger)
	router.RegisterSensorRoutes(httpapi.NewSensorHandler(correlator, commands, readings, access, cfg.Realtime.Timeout, logger))
	router.RegisterAlertRoutes(httpapi.NewAlertsHandler(mon, h, access, logger))
	router.RegisterWSRoutes(httpapi.NewWSHandler(h, access, cfg.Hub.PingInterval, logger))
	if cfg.Risk.BaseURL != "" {
		client := risk.NewClient(cfg.Risk.BaseURL, cfg.Risk.Timeout, logger)
		svc := risk.NewService(readings, client, cfg.Risk.MinRows, cfg.Risk.MinRequired, logger)
		router.RegisterPredictRoutes(httpapi.NewPredictHandler(svc, access, logger))
	}
	router.RegisterOpsRoutes(m.Handler())

	return &VitalsService{
		config:     cfg,
		logger:     logger,
		infra:      infra,
		metrics:    m,
		monitor:    mon,
		hub:        h,
		correlator: correlator,
		consumer:   mqttConsumer,
		router:     router,
		server:     NewServer(cfg.HTTP.Addr, router, logger),
	}, nil
}

// Handler HTTP 入口（测试用）
func (s *VitalsService) Handler() http.Handler {
	return s.router
}

// Addr HTTP 实际监听地址
func (s *VitalsService) Addr() string {
	return s.server.Addr()
}

// Start 启动在线扫描、推送保活、MQTT 订阅和 HTTP 服务
func (s *VitalsService) Start(ctx context.Context) error {
	s.logger.Info("Starting vitals service components")

	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	s.wg.Add(2)
	go func() {
		defer s.wg.Done()
		s.monitor.Run(runCtx)
	}()
	go func() {
		defer s.wg.Done()
		s.hub.Run(runCtx)
	}()

	if err := s.consumer.Subscribe(); err != nil {
		cancel()
		s.wg.Wait()
		return fmt.Errorf("failed to start MQTT consumer: %w", err)
	}

	if err := s.server.Listen(); err != nil {
		_ = s.consumer.Stop(ctx)
		cancel()
		s.wg.Wait()
		return err
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.server.Start(); err != nil {
			s.logger.Error("HTTP server failed", zap.Error(err))
		}
	}()

	s.logger.Info("Vitals service started successfully")
	return nil
}

// Stop 逆序停止并关闭连接
// 推送订阅先于 HTTP 服务关闭，SSE 处理器随订阅结束返回，Shutdown 不会等满 ctx
func (s *VitalsService) Stop(ctx context.Context) error {
	s.logger.Info("Stopping vitals service")

	var errs []error
	if err := s.consumer.Stop(ctx); err != nil {
		s.logger.Error("Error stopping consumer", zap.Error(err))
		errs = append(errs, err)
	}

	if s.cancel != nil {
		s.cancel()
	}

	if err := s.server.Stop(ctx); err != nil {
		s.logger.Error("Error stopping HTTP server", zap.Error(err))
		errs = append(errs, fmt.Errorf("failed to stop HTTP server: %w", err))
	}
	s.wg.Wait()

	closeInfra(s.infra)

	s.logger.Info("Vitals service stopped")
	return errors.Join(errs...)
}

func closeInfra(infra Infra) {
	// 断开MQTT
	if infra.MQTT != nil {
		infra.MQTT.Disconnect()
	}
	// 关闭Redis
	if infra.Redis != nil {
		_ = rediscommon.Close(infra.Redis)
	}
	// 关闭数据库
	if infra.DB != nil {
		_ = database.Close(infra.DB)
	}
}
