// Package repository 读数与设备的持久化
package repository

import (
	"context"
	"errors"
	"time"

	"babyguardian-vitals/internal/models"
)

// ErrDeviceNotFound 设备不存在
var ErrDeviceNotFound = errors.New("device not found")

// ReadingRepository 读数存储（只追加）
type ReadingRepository interface {
	// Save 保存一条清洗后的读数，返回记录ID
	Save(ctx context.Context, reading models.CleanReading) (int64, error)
	// FindRecent 查询 before 之前最近的 limit 条读数，按时间倒序
	FindRecent(ctx context.Context, deviceID string, before time.Time, limit int) ([]models.CleanReading, error)
}

// Registration 设备登记结果
type Registration struct {
	Created         bool
	AddressChanged  bool
	PreviousAddress string
}

// DeviceRepository 设备登记与归属查询
type DeviceRepository interface {
	// EnsureDevice 首次出现时创建设备；硬件地址变化时更新（后写覆盖）
	// hardwareAddress 为空时不修改已有地址
	EnsureDevice(ctx context.Context, deviceID, hardwareAddress string) (Registration, error)
	GetDevice(ctx context.Context, deviceID string) (*models.DeviceIdentity, error)
	FindOwnedDeviceIDs(ctx context.Context, ownerID string) ([]string, error)
	IsOwner(ctx context.Context, ownerID, deviceID string) (bool, error)
}
