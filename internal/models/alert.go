package models

import "time"

// AlertType 告警类型
type AlertType string

const (
	AlertHighTemp AlertType = "HIGH_TEMP"
	AlertLowSpO2  AlertType = "LOW_SPO2"
	AlertHighHR   AlertType = "HIGH_HR"
	AlertLowHR    AlertType = "LOW_HR"
)

// Severity 告警级别
type Severity string

const (
	SeverityLow    Severity = "LOW"
	SeverityMedium Severity = "MEDIUM"
	SeverityHigh   Severity = "HIGH"
)

// AlertEvent 阈值告警事件，只推送不入库
type AlertEvent struct {
	EventID   string    `json:"eventId"`
	DeviceID  string    `json:"deviceId"`
	Type      AlertType `json:"type"`
	Severity  Severity  `json:"severity"`
	Message   string    `json:"message"`
	Value     float64   `json:"value"`
	Threshold float64   `json:"threshold"`
	Timestamp time.Time `json:"timestamp"`
}
