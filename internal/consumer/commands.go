package consumer

import (
	"fmt"
	"strings"

	"babyguardian-vitals/internal/models"
)

// ReadCommand 触发设备立即上报一次读数
const ReadCommand = "read"

// Publisher 发布 MQTT 消息（由 common/mqtt.Client 实现）
type Publisher interface {
	Publish(topic string, qos byte, retained bool, payload []byte) error
}

// CommandPublisher 向设备命令主题发布指令
type CommandPublisher struct {
	publisher Publisher
	prefix    string
	qos       byte
}

// NewCommandPublisher prefix 如 "iot/commands/"
func NewCommandPublisher(publisher Publisher, prefix string, qos byte) *CommandPublisher {
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	return &CommandPublisher{publisher: publisher, prefix: prefix, qos: qos}
}

// Topic 设备命令主题（保留设备ID原始大小写，固件按原样订阅）
func (p *CommandPublisher) Topic(deviceID string) string {
	return p.prefix + strings.TrimSpace(deviceID)
}

// RequestReading 发布 read 指令
func (p *CommandPublisher) RequestReading(deviceID string) error {
	if models.NormalizeDeviceID(deviceID) == "" {
		return fmt.Errorf("device id is required")
	}
	return p.publisher.Publish(p.Topic(deviceID), p.qos, false, []byte(ReadCommand))
}
