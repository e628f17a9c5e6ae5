package consumer

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"babyguardian-vitals/internal/models"
)

// ErrMalformedPayload 无法解析的消息体
var ErrMalformedPayload = errors.New("malformed payload")

// 字段别名，按顺序取第一个存在的键
var (
	deviceIDKeys    = []string{"deviceId", "device_id", "id"}
	temperatureKeys = []string{"temp", "temperature"}
	heartRateKeys   = []string{"heartRate", "hr", "bpm"}
	spo2Keys        = []string{"spo2", "SpO2"}
	timestampKeys   = []string{"timestamp", "ts"}
	hardwareKeys    = []string{"mac", "macAddress", "hardwareAddress"}
)

const (
	epochMillisFloor  = 1e12 // 2001-09 之后的毫秒时间戳
	epochSecondsFloor = 1e9  // 2001-09 之后的秒级时间戳
	epochMillisCeil   = 1e15 // 超出则视为无效，避免 int64 转换溢出
)

// DecodeTelemetry 解析遥测 JSON；数值字段允许数字或数字字符串
// 无法解析的字段视为缺失，由清洗阶段判定
func DecodeTelemetry(payload []byte) (models.RawReading, error) {
	fields, err := decodeObject(payload)
	if err != nil {
		return models.RawReading{}, err
	}

	raw := models.RawReading{
		DeviceID:        stringField(fields, deviceIDKeys...),
		HardwareAddress: strings.ToUpper(stringField(fields, hardwareKeys...)),
		Temperature:     numberField(fields, temperatureKeys...),
		HeartRate:       numberField(fields, heartRateKeys...),
		SpO2:            numberField(fields, spo2Keys...),
		Timestamp:       timeField(fields, timestampKeys...),
		Finger:          boolField(fields, "finger"),
	}
	if rt := boolField(fields, "realtime"); rt != nil {
		raw.Realtime = *rt
	}
	return raw, nil
}

// DecodeStatus 解析状态消息：纯文本 online/offline 或 {"status"|"state": "..."} / {"online"|"connected": bool}
func DecodeStatus(payload []byte) (bool, error) {
	trimmed := bytes.TrimSpace(payload)
	if len(trimmed) > 0 && trimmed[0] == '{' {
		fields, err := decodeObject(trimmed)
		if err != nil {
			return false, err
		}
		if b := boolField(fields, "online", "connected"); b != nil {
			return *b, nil
		}
		if s := stringField(fields, "status", "state"); s != "" {
			return parseStatusWord(s)
		}
		return false, fmt.Errorf("%w: status object without status field", ErrMalformedPayload)
	}
	return parseStatusWord(strings.Trim(string(trimmed), `"'`))
}

func parseStatusWord(s string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "online", "connected", "up", "1", "true":
		return true, nil
	case "offline", "disconnected", "down", "0", "false":
		return false, nil
	default:
		return false, fmt.Errorf("%w: unknown status %q", ErrMalformedPayload, s)
	}
}

func decodeObject(payload []byte) (map[string]interface{}, error) {
	dec := json.NewDecoder(bytes.NewReader(payload))
	dec.UseNumber()

	var fields map[string]interface{}
	if err := dec.Decode(&fields); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	if fields == nil {
		return nil, fmt.Errorf("%w: not a JSON object", ErrMalformedPayload)
	}
	return fields, nil
}

func lookup(fields map[string]interface{}, keys ...string) (interface{}, bool) {
	for _, k := range keys {
		if v, ok := fields[k]; ok && v != nil {
			return v, true
		}
	}
	return nil, false
}

func stringField(fields map[string]interface{}, keys ...string) string {
	v, ok := lookup(fields, keys...)
	if !ok {
		return ""
	}
	switch val := v.(type) {
	case string:
		return strings.TrimSpace(val)
	case json.Number:
		return val.String()
	default:
		return ""
	}
}

func toFloat(v interface{}) (float64, bool) {
	switch val := v.(type) {
	case json.Number:
		f, err := val.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(val), 64)
		return f, err == nil
	default:
		return 0, false
	}
}

func numberField(fields map[string]interface{}, keys ...string) *float64 {
	v, ok := lookup(fields, keys...)
	if !ok {
		return nil
	}
	f, ok := toFloat(v)
	if !ok {
		return nil
	}
	return &f
}

func boolField(fields map[string]interface{}, keys ...string) *bool {
	v, ok := lookup(fields, keys...)
	if !ok {
		return nil
	}
	var b bool
	switch val := v.(type) {
	case bool:
		b = val
	case json.Number:
		f, err := val.Float64()
		if err != nil {
			return nil
		}
		b = f != 0
	case string:
		parsed, err := strconv.ParseBool(strings.TrimSpace(val))
		if err != nil {
			return nil
		}
		b = parsed
	default:
		return nil
	}
	return &b
}

// timeField 毫秒或秒级时间戳、RFC3339 字符串；更小的数值是设备开机计数，忽略
func timeField(fields map[string]interface{}, keys ...string) *time.Time {
	v, ok := lookup(fields, keys...)
	if !ok {
		return nil
	}
	if s, isString := v.(string); isString {
		if t, err := time.Parse(time.RFC3339Nano, strings.TrimSpace(s)); err == nil {
			return &t
		}
	}
	f, ok := toFloat(v)
	if !ok {
		return nil
	}
	var t time.Time
	switch {
	case f >= epochMillisCeil:
		return nil
	case f >= epochMillisFloor:
		t = time.UnixMilli(int64(f))
	case f >= epochSecondsFloor:
		t = time.Unix(int64(f), 0)
	default:
		return nil
	}
	return &t
}
