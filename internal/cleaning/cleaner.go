// Package cleaning 体征读数的校验与归一化
package cleaning

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"babyguardian-vitals/internal/models"
)

// Mode 清洗模式
type Mode string

const (
	ModeReject Mode = "REJECT" // 超出范围直接拒绝（默认）
	ModeClamp  Mode = "CLAMP"  // 截断到范围内
	ModeTest   Mode = "TEST"   // 诊断旁路，不做范围检查
)

// ParseMode 解析模式字符串，空串返回 REJECT
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToUpper(strings.TrimSpace(s))) {
	case "", ModeReject:
		return ModeReject, nil
	case ModeClamp:
		return ModeClamp, nil
	case ModeTest:
		return ModeTest, nil
	default:
		return "", fmt.Errorf("unknown cleaning mode %q", s)
	}
}

// fahrenheitThreshold 高于该值的体温按华氏度处理（经验规则，设备不上报单位）
const fahrenheitThreshold = 60.0

var (
	ErrInvalidInput = errors.New("invalid input")
	ErrOutOfRange   = errors.New("out of range")
)

// RejectError 读数被拒绝的原因
type RejectError struct {
	Kind   error // ErrInvalidInput 或 ErrOutOfRange
	Reason string
}

func (e *RejectError) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Reason)
}

func (e *RejectError) Unwrap() error {
	return e.Kind
}

func invalid(format string, args ...interface{}) error {
	return &RejectError{Kind: ErrInvalidInput, Reason: fmt.Sprintf(format, args...)}
}

func outOfRange(format string, args ...interface{}) error {
	return &RejectError{Kind: ErrOutOfRange, Reason: fmt.Sprintf(format, args...)}
}

// Range 闭区间 [Min, Max]
type Range struct {
	Min float64
	Max float64
}

func (r Range) contains(v float64) bool {
	return v >= r.Min && v <= r.Max
}

func (r Range) clamp(v float64) float64 {
	return math.Min(math.Max(v, r.Min), r.Max)
}

// Policy 清洗策略
type Policy struct {
	Mode        Mode
	Temperature Range
	SpO2        Range
	HeartRate   Range
}

// DefaultPolicy 默认策略：REJECT，体温 [34,42]，血氧 [70,100]，心率 [60,220]
func DefaultPolicy() Policy {
	return Policy{
		Mode:        ModeReject,
		Temperature: Range{Min: 34, Max: 42},
		SpO2:        Range{Min: 70, Max: 100},
		HeartRate:   Range{Min: 60, Max: 220},
	}
}

// Cleaner 数据清洗器，无状态，可并发使用
type Cleaner struct {
	policy Policy
	now    func() time.Time
}

// NewCleaner 创建清洗器
func NewCleaner(policy Policy) *Cleaner {
	if policy.Mode == "" {
		policy.Mode = ModeReject
	}
	return &Cleaner{policy: policy, now: time.Now}
}

// Mode 当前模式
func (c *Cleaner) Mode() Mode {
	return c.policy.Mode
}

// Clean 将原始读数清洗为 CleanReading，拒绝时返回 *RejectError
func (c *Cleaner) Clean(raw models.RawReading, fallbackDeviceID string) (models.CleanReading, error) {
	deviceID := models.NormalizeDeviceID(raw.DeviceID)
	if deviceID == "" {
		deviceID = models.NormalizeDeviceID(fallbackDeviceID)
	}
	if deviceID == "" {
		return models.CleanReading{}, invalid("missing deviceId")
	}

	ts := c.now()
	if raw.Timestamp != nil {
		ts = *raw.Timestamp
	}

	if raw.Temperature == nil || raw.SpO2 == nil || raw.HeartRate == nil {
		return models.CleanReading{}, invalid("missing fields (temperature, spo2, heartRate required)")
	}

	temp := *raw.Temperature
	spo2 := *raw.SpO2
	hr := *raw.HeartRate
	for name, v := range map[string]float64{"temperature": temp, "spo2": spo2, "heartRate": hr} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return models.CleanReading{}, invalid("%s is not a finite number", name)
		}
	}

	if temp > fahrenheitThreshold {
		temp = (temp - 32) * 5 / 9
	}

	finger := hr > 0 || spo2 > 0
	if raw.Finger != nil {
		finger = *raw.Finger
	}

	quality := models.QualityOK
	switch c.policy.Mode {
	case ModeTest:
		quality = models.QualityTest

	case ModeClamp:
		ct := c.policy.Temperature.clamp(temp)
		cs := c.policy.SpO2.clamp(spo2)
		ch := c.policy.HeartRate.clamp(hr)
		if ct != temp || cs != spo2 || ch != hr {
			quality = models.QualityClamped
		}
		temp, spo2, hr = ct, cs, ch

	default:
		if !c.policy.Temperature.contains(temp) {
			return models.CleanReading{}, outOfRange("temperature %.2f outside [%v, %v]", temp, c.policy.Temperature.Min, c.policy.Temperature.Max)
		}
		if !c.policy.SpO2.contains(spo2) {
			return models.CleanReading{}, outOfRange("spo2 %v outside [%v, %v]", spo2, c.policy.SpO2.Min, c.policy.SpO2.Max)
		}
		if !c.policy.HeartRate.contains(hr) {
			return models.CleanReading{}, outOfRange("heartRate %v outside [%v, %v]", hr, c.policy.HeartRate.Min, c.policy.HeartRate.Max)
		}
	}

	return models.CleanReading{
		DeviceID:     deviceID,
		TemperatureC: temp,
		SpO2:         int(math.Round(spo2)),
		HeartRate:    int(math.Round(hr)),
		Finger:       finger,
		Timestamp:    ts,
		Quality:      quality,
	}, nil
}
