package models

import "time"

// DeviceIdentity 设备身份（对应 devices 表）
type DeviceIdentity struct {
	DeviceID        string    `json:"deviceId" db:"device_id"`
	HardwareAddress string    `json:"mac" db:"mac_address"`
	OwnerID         *string   `json:"ownerId,omitempty" db:"owner_user_id"`
	CreatedAt       time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt       time.Time `json:"updatedAt" db:"updated_at"`
}

// ConnectionState 设备连接状态（仅由在线监控器修改）
type ConnectionState struct {
	DeviceID  string
	LastSeen  time.Time
	Connected bool
}
