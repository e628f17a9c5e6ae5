package consumer

import (
	"context"

	rediscommon "babyguardian-vitals/common/redis"
	"babyguardian-vitals/internal/metrics"
	"babyguardian-vitals/internal/models"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// EventPublisher 下游事件发布（读数与告警）
type EventPublisher interface {
	PublishReading(ctx context.Context, reading models.CleanReading) error
	PublishAlert(ctx context.Context, alert models.AlertEvent) error
}

// StreamPublisher 发布清洗后读数与告警到 Redis Streams
type StreamPublisher struct {
	client        *redis.Client
	readingStream string
	alertStream   string
	maxLen        int64
	metrics       *metrics.Metrics
	logger        *zap.Logger
}

// NewStreamPublisher 创建 Streams 发布器
func NewStreamPublisher(client *redis.Client, readingStream, alertStream string, maxLen int64, m *metrics.Metrics, logger *zap.Logger) *StreamPublisher {
	return &StreamPublisher{
		client:        client,
		readingStream: readingStream,
		alertStream:   alertStream,
		maxLen:        maxLen,
		metrics:       m,
		logger:        logger,
	}
}

// PublishReading 发布读数
func (p *StreamPublisher) PublishReading(ctx context.Context, reading models.CleanReading) error {
	return p.publish(ctx, p.readingStream, reading)
}

// PublishAlert 发布告警
func (p *StreamPublisher) PublishAlert(ctx context.Context, alert models.AlertEvent) error {
	return p.publish(ctx, p.alertStream, alert)
}

func (p *StreamPublisher) publish(ctx context.Context, stream string, data interface{}) error {
	if stream == "" {
		return nil
	}
	id, err := rediscommon.PublishJSONToStream(ctx, p.client, stream, p.maxLen, data)
	if err != nil {
		p.metrics.StreamPublishFailed(stream)
		return err
	}
	p.logger.Debug("Published to Redis Streams",
		zap.String("stream", stream),
		zap.String("stream_id", id),
	)
	return nil
}
