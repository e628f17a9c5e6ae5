package httpapi

import (
	"context"
	"net/http"
	"time"

	"babyguardian-vitals/internal/models"
	"babyguardian-vitals/internal/realtime"
	"babyguardian-vitals/internal/repository"

	"go.uber.org/zap"
)

const maxRecentLimit = 1000

// ReadingRequester 下发 read 指令（consumer.CommandPublisher）
type ReadingRequester interface {
	RequestReading(deviceID string) error
}

// RealtimeAwaiter 实时读取关联（realtime.Correlator）
type RealtimeAwaiter interface {
	Await(ctx context.Context, deviceID string, timeout time.Duration, trigger func() error) (realtime.Result, error)
}

// SensorHandler 传感器读数接口
type SensorHandler struct {
	awaiter  RealtimeAwaiter
	commands ReadingRequester
	readings repository.ReadingRepository
	access   *AccessControl
	timeout  time.Duration
	logger   *zap.Logger
}

func NewSensorHandler(awaiter RealtimeAwaiter, commands ReadingRequester, readings repository.ReadingRepository, access *AccessControl, timeout time.Duration, logger *zap.Logger) *SensorHandler {
	if timeout <= 0 {
		timeout = 6 * time.Second
	}
	return &SensorHandler{
		awaiter:  awaiter,
		commands: commands,
		readings: readings,
		access:   access,
		timeout:  timeout,
		logger:   logger,
	}
}

// checkAccess 未授权时已写出响应
func (h *SensorHandler) checkAccess(w http.ResponseWriter, r *http.Request, deviceID string) bool {
	ok, err := h.access.CanAccess(r.Context(), UserFromContext(r.Context()), deviceID)
	if err != nil {
		h.logger.Error("Ownership check failed", zap.String("device_id", deviceID), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, Fail(MsgInternal))
		return false
	}
	if !ok {
		writeJSON(w, http.StatusForbidden, FailDevice(MsgForbidden, deviceID))
		return false
	}
	return true
}

// Realtime GET /api/sensors/realtime/{deviceId}
// 下发 read 并等待该设备的下一条有效读数
func (h *SensorHandler) Realtime(w http.ResponseWriter, r *http.Request, rawID string) {
	deviceID := models.NormalizeDeviceID(rawID)
	if deviceID == "" {
		writeJSON(w, http.StatusBadRequest, Fail("deviceId is required"))
		return
	}
	if !h.checkAccess(w, r, deviceID) {
		return
	}

	res, err := h.awaiter.Await(r.Context(), deviceID, h.timeout, func() error {
		return h.commands.RequestReading(rawID)
	})
	if err != nil {
		h.logger.Warn("Realtime read command failed", zap.String("device_id", deviceID), zap.Error(err))
		writeJSON(w, http.StatusBadGateway, FailDevice(MsgCommandFailed, deviceID))
		return
	}

	switch res.Outcome {
	case realtime.OutcomeDelivered:
		writeJSON(w, http.StatusOK, res.Reading)
	case realtime.OutcomeReplaced:
		writeJSON(w, http.StatusConflict, FailDevice(MsgSuperseded, deviceID))
	case realtime.OutcomeCancelled:
		// 客户端已断开
	default:
		writeJSON(w, http.StatusGatewayTimeout, FailDevice(MsgRealtimeTimeout, deviceID))
	}
}

// Recent GET /api/sensors/{deviceId}/recent?limit=&before=
func (h *SensorHandler) Recent(w http.ResponseWriter, r *http.Request, rawID string) {
	deviceID := models.NormalizeDeviceID(rawID)
	if !h.checkAccess(w, r, deviceID) {
		return
	}

	q := r.URL.Query()
	limit := parseInt(q.Get("limit"), 60)
	if limit <= 0 || limit > maxRecentLimit {
		writeJSON(w, http.StatusBadRequest, Fail("limit must be between 1 and 1000"))
		return
	}
	before, ok := parseTime(q.Get("before"), time.Now())
	if !ok {
		writeJSON(w, http.StatusBadRequest, Fail("before must be RFC3339 or epoch milliseconds"))
		return
	}

	rows, err := h.readings.FindRecent(r.Context(), deviceID, before, limit)
	if err != nil {
		h.logger.Error("Failed to load recent readings", zap.String("device_id", deviceID), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, Fail(MsgInternal))
		return
	}
	if rows == nil {
		rows = []models.CleanReading{}
	}
	writeJSON(w, http.StatusOK, rows)
}
