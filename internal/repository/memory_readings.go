package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"babyguardian-vitals/internal/models"
)

// MemoryReadingRepository DB 未启用时使用，每个设备保留最近 capacity 条
type MemoryReadingRepository struct {
	mu       sync.RWMutex
	capacity int
	nextID   int64
	byDevice map[string][]models.CleanReading
}

func NewMemoryReadingRepository(capacity int) *MemoryReadingRepository {
	if capacity <= 0 {
		capacity = 1440
	}
	return &MemoryReadingRepository{
		capacity: capacity,
		byDevice: map[string][]models.CleanReading{},
	}
}

func (r *MemoryReadingRepository) Save(_ context.Context, reading models.CleanReading) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	list := append(r.byDevice[reading.DeviceID], reading)
	if len(list) > r.capacity {
		list = list[len(list)-r.capacity:]
	}
	r.byDevice[reading.DeviceID] = list
	r.nextID++
	return r.nextID, nil
}

func (r *MemoryReadingRepository) FindRecent(_ context.Context, deviceID string, before time.Time, limit int) ([]models.CleanReading, error) {
	if limit <= 0 {
		limit = 60
	}

	r.mu.RLock()
	var matched []models.CleanReading
	for _, rd := range r.byDevice[deviceID] {
		if rd.Timestamp.Before(before) {
			matched = append(matched, rd)
		}
	}
	r.mu.RUnlock()

	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].Timestamp.After(matched[j].Timestamp)
	})
	if len(matched) > limit {
		matched = matched[:limit]
	}
	return matched, nil
}
