package risk

import (
	"context"
	"fmt"
	"sort"
	"time"

	"babyguardian-vitals/internal/models"
	"babyguardian-vitals/internal/repository"

	"go.uber.org/zap"
)

// Predictor 评分服务（由 *Client 实现）
type Predictor interface {
	Predict(ctx context.Context, features Features) (*PredictResponse, error)
	Health(ctx context.Context) bool
}

// Request 小时预测请求
type Request struct {
	DeviceID string
	HourTs   time.Time
	Subject  Subject
}

// Prediction 小时预测结果
type Prediction struct {
	OK        bool     `json:"ok"`
	DeviceID  string   `json:"deviceId"`
	TS        string   `json:"ts"`
	RowsCount int      `json:"rows_count"`
	Features  Features `json:"features"`
	Pred      *Pred    `json:"pred"`
}

// Service 从最近一小时读数构建特征并调用评分服务
type Service struct {
	readings    repository.ReadingRepository
	predictor   Predictor
	minRows     int
	minRequired int
	logger      *zap.Logger
}

// NewService minRows 为 hourTs 之前的最少行数，minRequired 为最少有效体温点
func NewService(readings repository.ReadingRepository, predictor Predictor, minRows, minRequired int, logger *zap.Logger) *Service {
	return &Service{
		readings:    readings,
		predictor:   predictor,
		minRows:     minRows,
		minRequired: minRequired,
		logger:      logger,
	}
}

// PredictFromHour 取 hourTs 之前最多 60 行，升序后构建特征
func (s *Service) PredictFromHour(ctx context.Context, req Request) (*Prediction, error) {
	deviceID := models.NormalizeDeviceID(req.DeviceID)
	hourTs := req.HourTs
	if hourTs.IsZero() {
		hourTs = time.Now()
	}

	rows, err := s.readings.FindRecent(ctx, deviceID, hourTs, expectedPerHour)
	if err != nil {
		return nil, fmt.Errorf("failed to load readings: %w", err)
	}
	if len(rows) < s.minRows {
		return nil, fmt.Errorf("%w: need at least %d rows before hourTs, got %d", ErrInsufficientData, s.minRows, len(rows))
	}

	sort.SliceStable(rows, func(i, j int) bool {
		return rows[i].Timestamp.Before(rows[j].Timestamp)
	})

	features, err := BuildHourFeatures(deviceID, hourTs, req.Subject, rows, s.minRequired)
	if err != nil {
		return nil, err
	}

	resp, err := s.predictor.Predict(ctx, features)
	if err != nil {
		return nil, err
	}

	s.logger.Info("Hourly prediction completed",
		zap.String("device_id", deviceID),
		zap.Int("rows_count", len(rows)),
	)
	return &Prediction{
		OK:        true,
		DeviceID:  deviceID,
		TS:        hourTs.UTC().Format(time.RFC3339),
		RowsCount: len(rows),
		Features:  features,
		Pred:      resp.Pred,
	}, nil
}

// Health 评分服务是否可用
func (s *Service) Health(ctx context.Context) bool {
	return s.predictor.Health(ctx)
}
