// Package evaluator 阈值告警评估
package evaluator

import (
	"context"
	"fmt"
	"time"

	"babyguardian-vitals/internal/metrics"
	"babyguardian-vitals/internal/models"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Thresholds 告警阈值
type Thresholds struct {
	TempHigh float64
	SpO2Low  float64
	HRHigh   float64
	HRLow    float64
	Cooldown time.Duration
}

// DefaultThresholds 默认阈值：体温 >=38.0，血氧 <=95，心率 >=180 或 <=80，冷却 30s
func DefaultThresholds() Thresholds {
	return Thresholds{
		TempHigh: 38.0,
		SpO2Low:  95,
		HRHigh:   180,
		HRLow:    80,
		Cooldown: 30 * time.Second,
	}
}

type rule struct {
	alertType models.AlertType
	severity  models.Severity
	value     func(models.CleanReading) float64
	threshold float64
	matches   func(v, threshold float64) bool
	message   string
}

// AlertEvaluator 告警评估器
type AlertEvaluator struct {
	thresholds Thresholds
	rules      []rule
	cooldowns  CooldownStore
	metrics    *metrics.Metrics
	logger     *zap.Logger
	now        func() time.Time
}

// NewAlertEvaluator 创建告警评估器
func NewAlertEvaluator(thresholds Thresholds, cooldowns CooldownStore, m *metrics.Metrics, logger *zap.Logger) *AlertEvaluator {
	atLeast := func(v, th float64) bool { return v >= th }
	atMost := func(v, th float64) bool { return v <= th }

	return &AlertEvaluator{
		thresholds: thresholds,
		cooldowns:  cooldowns,
		metrics:    m,
		logger:     logger,
		now:        time.Now,
		rules: []rule{
			{
				alertType: models.AlertHighTemp,
				severity:  models.SeverityHigh,
				value:     func(r models.CleanReading) float64 { return r.TemperatureC },
				threshold: thresholds.TempHigh,
				matches:   atLeast,
				message:   "Temperature high",
			},
			{
				alertType: models.AlertLowSpO2,
				severity:  models.SeverityHigh,
				value:     func(r models.CleanReading) float64 { return float64(r.SpO2) },
				threshold: thresholds.SpO2Low,
				matches:   atMost,
				message:   "SpO2 low",
			},
			{
				alertType: models.AlertHighHR,
				severity:  models.SeverityMedium,
				value:     func(r models.CleanReading) float64 { return float64(r.HeartRate) },
				threshold: thresholds.HRHigh,
				matches:   atLeast,
				message:   "Heart rate high",
			},
			{
				alertType: models.AlertLowHR,
				severity:  models.SeverityMedium,
				value:     func(r models.CleanReading) float64 { return float64(r.HeartRate) },
				threshold: thresholds.HRLow,
				matches:   atMost,
				message:   "Heart rate low",
			},
		},
	}
}

// CooldownKey 冷却 key：deviceId|TYPE
func CooldownKey(deviceID string, t models.AlertType) string {
	return deviceID + "|" + string(t)
}

// Evaluate 对清洗后的读数应用阈值规则，返回本次触发的告警
// 同类型告警在冷却窗口内最多触发一次，不同类型互不影响
func (e *AlertEvaluator) Evaluate(ctx context.Context, reading models.CleanReading) []models.AlertEvent {
	var alerts []models.AlertEvent
	now := e.now()

	for _, r := range e.rules {
		v := r.value(reading)
		if !r.matches(v, r.threshold) {
			continue
		}

		key := CooldownKey(reading.DeviceID, r.alertType)
		ok, err := e.cooldowns.Acquire(ctx, key, now, e.thresholds.Cooldown)
		if err != nil {
			// 冷却存储不可用时照常告警
			e.logger.Warn("Cooldown store unavailable, firing alert",
				zap.String("device_id", reading.DeviceID),
				zap.String("alert_type", string(r.alertType)),
				zap.Error(err),
			)
			ok = true
		}
		if !ok {
			e.logger.Debug("Alert suppressed by cooldown",
				zap.String("device_id", reading.DeviceID),
				zap.String("alert_type", string(r.alertType)),
			)
			continue
		}

		alerts = append(alerts, models.AlertEvent{
			EventID:   uuid.New().String(),
			DeviceID:  reading.DeviceID,
			Type:      r.alertType,
			Severity:  r.severity,
			Message:   fmt.Sprintf("%s: %.1f (threshold %.1f)", r.message, v, r.threshold),
			Value:     v,
			Threshold: r.threshold,
			Timestamp: reading.Timestamp,
		})
		e.metrics.AlertFired(string(r.alertType))
	}

	return alerts
}
