package risk

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

// Pred 评分服务预测值
type Pred struct {
	Temp1h *float64 `json:"temp_1h"`
	SpO21h *float64 `json:"spo2_1h"`
	HR1h   *float64 `json:"hr_1h"`
}

// PredictResponse 评分服务 /predict 响应
type PredictResponse struct {
	OK       bool     `json:"ok"`
	DeviceID string   `json:"deviceId"`
	Pred     *Pred    `json:"pred"`
	Error    string   `json:"error,omitempty"`
	Missing  []string `json:"missing,omitempty"`
}

// Client 风险评分服务 HTTP 客户端
type Client struct {
	httpClient *resty.Client
	logger     *zap.Logger
}

// NewClient 创建客户端
func NewClient(baseURL string, timeout time.Duration, logger *zap.Logger) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetRetryCount(2).
		SetRetryWaitTime(200 * time.Millisecond).
		SetRetryMaxWaitTime(time.Second).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")

	return &Client{httpClient: client, logger: logger}
}

// Predict 发送扁平特征（不包 "features" 外层）
func (c *Client) Predict(ctx context.Context, features Features) (*PredictResponse, error) {
	var result PredictResponse
	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetBody(features).
		SetResult(&result).
		SetError(&result).
		Post("/predict")
	if err != nil {
		c.logger.Error("Risk service call failed", zap.Error(err))
		return nil, fmt.Errorf("failed to call risk service: %w", err)
	}

	if resp.IsError() {
		c.logger.Warn("Risk service returned error",
			zap.Int("status_code", resp.StatusCode()),
			zap.String("error", result.Error),
			zap.Strings("missing", result.Missing),
		)
		return &result, fmt.Errorf("risk service error: status %d: %s", resp.StatusCode(), result.Error)
	}
	return &result, nil
}

// Health 评分服务健康检查，{"ok": true} 视为健康
func (c *Client) Health(ctx context.Context) bool {
	var body struct {
		OK bool `json:"ok"`
	}
	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetResult(&body).
		Get("/health")
	if err != nil || resp.IsError() {
		return false
	}
	return body.OK
}
