package models

import (
	"strings"
	"time"
)

// Quality 清洗后读数的质量标记
type Quality string

const (
	QualityOK      Quality = "OK"
	QualityClamped Quality = "CLAMPED"
	QualityTest    Quality = "TEST"
)

// RawReading 设备上报的原始读数（仅在清洗期间存在）
type RawReading struct {
	DeviceID        string
	HardwareAddress string
	Temperature     *float64
	SpO2            *float64
	HeartRate       *float64
	Timestamp       *time.Time
	Finger          *bool
	Realtime        bool
}

// CleanReading 清洗后的读数（不可变，入库并推送）
type CleanReading struct {
	DeviceID     string    `json:"deviceId" db:"device_id"`
	TemperatureC float64   `json:"temperature" db:"temp"`
	SpO2         int       `json:"spo2" db:"spo2"`
	HeartRate    int       `json:"heartRate" db:"heart_rate"`
	Finger       bool      `json:"finger" db:"finger"`
	Timestamp    time.Time `json:"timestamp" db:"created_at"`
	Quality      Quality   `json:"quality" db:"quality"`
}

// NormalizeDeviceID 设备ID统一为去空格小写
func NormalizeDeviceID(id string) string {
	return strings.ToLower(strings.TrimSpace(id))
}
