package consumer

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"babyguardian-vitals/internal/cleaning"
	"babyguardian-vitals/internal/metrics"
	"babyguardian-vitals/internal/models"
	"babyguardian-vitals/internal/repository"

	"go.uber.org/zap"
)

const opTimeout = 5 * time.Second

// ActivityTracker 设备在线状态（monitor.LivenessMonitor）
type ActivityTracker interface {
	RecordActivity(deviceID string)
	MarkDisconnected(deviceID string)
}

// AlertSource 阈值告警（evaluator.AlertEvaluator）
type AlertSource interface {
	Evaluate(ctx context.Context, reading models.CleanReading) []models.AlertEvent
}

// Broadcaster 推送（hub.Hub）
type Broadcaster interface {
	Broadcast(deviceID, event string, payload interface{})
}

// ReadingWaiters 实时读取等待方（realtime.Correlator）
type ReadingWaiters interface {
	Complete(deviceID string, reading models.CleanReading) bool
}

// IngestorDeps Ingestor 依赖；Events 可为 nil（不启用 Streams）
type IngestorDeps struct {
	Cleaner     *cleaning.Cleaner
	Devices     repository.DeviceRepository
	Readings    repository.ReadingRepository
	Activity    ActivityTracker
	Alerts      AlertSource
	Broadcaster Broadcaster
	Waiters     ReadingWaiters
	Events      EventPublisher
	Metrics     *metrics.Metrics
	Logger      *zap.Logger
}

// Ingestor 处理状态与遥测消息
// 遥测顺序：注册设备 -> 记录活动 -> 清洗 -> 入库 -> Streams -> 告警 -> 推送 -> 唤醒实时等待方
type Ingestor struct {
	deps IngestorDeps

	// 已登记设备的硬件地址，地址不变时跳过数据库
	knownMu sync.Mutex
	known   map[string]string
}

// NewIngestor 创建 Ingestor
func NewIngestor(deps IngestorDeps) *Ingestor {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	return &Ingestor{deps: deps, known: make(map[string]string)}
}

// Register 将状态与遥测处理器挂到路由器
func (i *Ingestor) Register(router *Router, statusTopic, telemetryTopic string) error {
	if err := router.Handle(statusTopic, i.HandleStatus); err != nil {
		return err
	}
	return router.Handle(telemetryTopic, i.HandleTelemetry)
}

// HandleStatus 处理 app/status/<deviceId> 消息
func (i *Ingestor) HandleStatus(topic string, payload []byte) error {
	logger := i.deps.Logger

	deviceID := models.NormalizeDeviceID(ParseTopic(topic).DeviceID)
	if deviceID == "" {
		if fields, err := decodeObject(payload); err == nil {
			deviceID = models.NormalizeDeviceID(stringField(fields, deviceIDKeys...))
		}
	}
	if deviceID == "" {
		logger.Warn("Status message without device id", zap.String("topic", topic))
		return nil
	}

	online, err := DecodeStatus(payload)
	if err != nil {
		logger.Warn("Dropping malformed status message",
			zap.String("topic", topic),
			zap.String("device_id", deviceID),
			zap.Error(err),
		)
		return nil
	}

	if online {
		i.deps.Activity.RecordActivity(deviceID)
	} else {
		i.deps.Activity.MarkDisconnected(deviceID)
	}
	logger.Debug("Device status message",
		zap.String("device_id", deviceID),
		zap.Bool("online", online),
	)
	return nil
}

// HandleTelemetry 处理 iot/vitals/... 遥测消息
// 返回 nil 表示消息已消费（包括被丢弃的情况）
func (i *Ingestor) HandleTelemetry(topic string, payload []byte) error {
	logger := i.deps.Logger
	m := i.deps.Metrics

	raw, err := DecodeTelemetry(payload)
	if err != nil {
		m.ReadingProcessed("malformed")
		logger.Warn("Dropping malformed telemetry",
			zap.String("topic", topic),
			zap.Int("payload_size", len(payload)),
			zap.Error(err),
		)
		return nil
	}

	deviceID := models.NormalizeDeviceID(raw.DeviceID)
	if deviceID == "" {
		deviceID = models.NormalizeDeviceID(ParseTopic(topic).DeviceID)
	}
	if deviceID == "" {
		m.ReadingProcessed("malformed")
		logger.Warn("Dropping telemetry without device id", zap.String("topic", topic))
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	i.register(ctx, deviceID, raw.HardwareAddress)
	i.deps.Activity.RecordActivity(deviceID)

	reading, err := i.deps.Cleaner.Clean(raw, deviceID)
	if err != nil {
		result := "invalid"
		if errors.Is(err, cleaning.ErrOutOfRange) {
			result = "rejected"
		}
		m.ReadingProcessed(result)
		logger.Debug("Reading rejected by cleaner",
			zap.String("device_id", deviceID),
			zap.String("mode", string(i.deps.Cleaner.Mode())),
			zap.Error(err),
		)
		return nil
	}
	m.ReadingProcessed(strings.ToLower(string(reading.Quality)))

	if _, err := i.deps.Readings.Save(ctx, reading); err != nil {
		logger.Error("Failed to persist reading",
			zap.String("device_id", deviceID),
			zap.Error(err),
		)
	}
	if i.deps.Events != nil {
		if err := i.deps.Events.PublishReading(ctx, reading); err != nil {
			logger.Warn("Failed to publish reading to stream",
				zap.String("device_id", deviceID),
				zap.Error(err),
			)
		}
	}

	for _, alert := range i.deps.Alerts.Evaluate(ctx, reading) {
		if i.deps.Events != nil {
			if err := i.deps.Events.PublishAlert(ctx, alert); err != nil {
				logger.Warn("Failed to publish alert to stream",
					zap.String("device_id", deviceID),
					zap.Error(err),
				)
			}
		}
		i.deps.Broadcaster.Broadcast(deviceID, models.EventAlert, alert)
	}
	i.deps.Broadcaster.Broadcast(deviceID, models.EventVitals, reading)

	if i.deps.Waiters.Complete(deviceID, reading) {
		logger.Debug("Realtime request completed",
			zap.String("device_id", deviceID),
			zap.Bool("realtime_flag", raw.Realtime),
		)
	}
	return nil
}

// register 登记设备；地址变化时以最后一次为准
func (i *Ingestor) register(ctx context.Context, deviceID, hardwareAddress string) {
	if i.deps.Devices == nil {
		return
	}

	i.knownMu.Lock()
	prev, seen := i.known[deviceID]
	i.knownMu.Unlock()
	if seen && (hardwareAddress == "" || hardwareAddress == prev) {
		return
	}

	reg, err := i.deps.Devices.EnsureDevice(ctx, deviceID, hardwareAddress)
	if err != nil {
		i.deps.Logger.Warn("Failed to register device",
			zap.String("device_id", deviceID),
			zap.Error(err),
		)
		return
	}

	switch {
	case reg.Created:
		i.deps.Logger.Info("Registered new device",
			zap.String("device_id", deviceID),
			zap.String("mac", hardwareAddress),
		)
	case reg.AddressChanged:
		i.deps.Logger.Info("Device hardware address changed",
			zap.String("device_id", deviceID),
			zap.String("old_mac", reg.PreviousAddress),
			zap.String("new_mac", hardwareAddress),
		)
	}

	i.knownMu.Lock()
	i.known[deviceID] = hardwareAddress
	i.knownMu.Unlock()
}
