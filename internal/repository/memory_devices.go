package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"babyguardian-vitals/internal/models"
)

// MemoryDeviceRepository DB 未启用时使用；归属关系通过 SetOwner 预置
type MemoryDeviceRepository struct {
	mu      sync.RWMutex
	devices map[string]*models.DeviceIdentity
	now     func() time.Time
}

func NewMemoryDeviceRepository() *MemoryDeviceRepository {
	return &MemoryDeviceRepository{
		devices: map[string]*models.DeviceIdentity{},
		now:     time.Now,
	}
}

func (r *MemoryDeviceRepository) EnsureDevice(_ context.Context, deviceID, hardwareAddress string) (Registration, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	d, ok := r.devices[deviceID]
	if !ok {
		r.devices[deviceID] = &models.DeviceIdentity{
			DeviceID:        deviceID,
			HardwareAddress: hardwareAddress,
			CreatedAt:       now,
			UpdatedAt:       now,
		}
		return Registration{Created: true}, nil
	}
	if hardwareAddress == "" || d.HardwareAddress == hardwareAddress {
		return Registration{}, nil
	}
	prev := d.HardwareAddress
	d.HardwareAddress = hardwareAddress
	d.UpdatedAt = now
	return Registration{AddressChanged: true, PreviousAddress: prev}, nil
}

func (r *MemoryDeviceRepository) GetDevice(_ context.Context, deviceID string) (*models.DeviceIdentity, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	d, ok := r.devices[deviceID]
	if !ok {
		return nil, ErrDeviceNotFound
	}
	cp := *d
	return &cp, nil
}

// SetOwner 设置设备归属（设备不存在时一并创建）
func (r *MemoryDeviceRepository) SetOwner(deviceID, ownerID string) {
	deviceID = models.NormalizeDeviceID(deviceID)

	r.mu.Lock()
	defer r.mu.Unlock()

	d, ok := r.devices[deviceID]
	if !ok {
		now := r.now()
		d = &models.DeviceIdentity{DeviceID: deviceID, CreatedAt: now, UpdatedAt: now}
		r.devices[deviceID] = d
	}
	owner := ownerID
	d.OwnerID = &owner
}

func (r *MemoryDeviceRepository) FindOwnedDeviceIDs(_ context.Context, ownerID string) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var ids []string
	for id, d := range r.devices {
		if d.OwnerID != nil && *d.OwnerID == ownerID {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func (r *MemoryDeviceRepository) IsOwner(_ context.Context, ownerID, deviceID string) (bool, error) {
	deviceID = models.NormalizeDeviceID(deviceID)

	r.mu.RLock()
	defer r.mu.RUnlock()

	d, ok := r.devices[deviceID]
	return ok && d.OwnerID != nil && *d.OwnerID == ownerID, nil
}
