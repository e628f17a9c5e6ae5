package models

import "time"

// 推送事件名称（SSE event 字段）
const (
	EventConnected          = "connected"
	EventInitialStatus      = "initial-status"
	EventDeviceConnected    = "device-connected"
	EventDeviceDisconnected = "device-disconnected"
	EventPing               = "ping"
	EventVitals             = "vitals"
	EventAlert              = "alert"
)

// 推送 JSON 的 type 字段
const (
	PushTypeConnectionStatus = "CONNECTION_STATUS"
	PushTypeInitialStatus    = "INITIAL_STATUS"
	PushTypePing             = "PING_SSE"
	PushTypeSubscribed       = "subscribed"
	PushTypeUnsubscribed     = "unsubscribed"
	PushTypeError            = "error"
)

// ConnectionStatusPayload 设备上下线推送
type ConnectionStatusPayload struct {
	Type      string `json:"type"`
	DeviceID  string `json:"deviceId"`
	Connected bool   `json:"connected"`
	Timestamp int64  `json:"timestamp"`
}

// NewConnectionStatus 构造上下线推送，timestamp 为毫秒
func NewConnectionStatus(deviceID string, connected bool, at time.Time) ConnectionStatusPayload {
	return ConnectionStatusPayload{
		Type:      PushTypeConnectionStatus,
		DeviceID:  deviceID,
		Connected: connected,
		Timestamp: at.UnixMilli(),
	}
}

// InitialStatusPayload 订阅时的状态快照
type InitialStatusPayload struct {
	Type      string `json:"type"`
	DeviceID  string `json:"deviceId"`
	Connected bool   `json:"connected"`
}

// PingPayload 保活
type PingPayload struct {
	Type      string `json:"type"`
	Timestamp int64  `json:"timestamp"`
}

// ControlPayload WebSocket 控制应答
type ControlPayload struct {
	Type     string `json:"type"`
	DeviceID string `json:"deviceId,omitempty"`
	Message  string `json:"message,omitempty"`
}

// SSE connected 事件的 scope
const (
	ScopeSingleDevice = "single-device"
	ScopeMyDevices    = "my-devices"
	ScopeAllDevices   = "all-devices"
)

// ConnectedPayload SSE 建立后的第一条事件
type ConnectedPayload struct {
	Message  string `json:"message"`
	Scope    string `json:"scope,omitempty"`
	DeviceID string `json:"deviceId,omitempty"`
	Count    int    `json:"count,omitempty"`
}
