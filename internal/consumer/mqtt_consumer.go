package consumer

import (
	"context"
	"fmt"

	mqttcommon "babyguardian-vitals/common/mqtt"

	"go.uber.org/zap"
)

// Subscriber MQTT 订阅接口（由 common/mqtt.Client 实现）
type Subscriber interface {
	Subscribe(topic string, qos byte, handler mqttcommon.MessageHandler) error
	Unsubscribe(topics ...string) error
}

// MQTTConsumer MQTT消息消费者，所有主题由 Router 分发
type MQTTConsumer struct {
	client Subscriber
	router *Router
	qos    byte
	logger *zap.Logger
}

// NewMQTTConsumer 创建MQTT消费者
func NewMQTTConsumer(client Subscriber, router *Router, qos byte, logger *zap.Logger) *MQTTConsumer {
	return &MQTTConsumer{
		client: client,
		router: router,
		qos:    qos,
		logger: logger,
	}
}

// Subscribe 订阅路由器上的全部主题
func (c *MQTTConsumer) Subscribe() error {
	for _, topic := range c.router.Patterns() {
		if err := c.client.Subscribe(topic, c.qos, c.router.Dispatch); err != nil {
			return fmt.Errorf("failed to subscribe to topic %s: %w", topic, err)
		}
		c.logger.Info("MQTT consumer subscribed", zap.String("topic", topic))
	}
	c.logger.Info("MQTT consumer started", zap.Strings("topics", c.router.Patterns()))
	return nil
}

// Stop 停止消费者
func (c *MQTTConsumer) Stop(ctx context.Context) error {
	// 取消订阅
	if err := c.client.Unsubscribe(c.router.Patterns()...); err != nil {
		c.logger.Error("Failed to unsubscribe", zap.Error(err))
	}

	c.logger.Info("MQTT consumer stopped")
	return nil
}
