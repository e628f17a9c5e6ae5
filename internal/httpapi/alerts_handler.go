package httpapi

import (
	"encoding/json"
	"net/http"

	"babyguardian-vitals/internal/hub"
	"babyguardian-vitals/internal/models"

	"go.uber.org/zap"
)

// StatusReader 设备在线状态（monitor.LivenessMonitor）
type StatusReader interface {
	AllStatuses() map[string]bool
	IsConnected(deviceID string) bool
}

// AlertsHandler 设备状态查询与 SSE 告警流
type AlertsHandler struct {
	statuses StatusReader
	hub      *hub.Hub
	access   *AccessControl
	logger   *zap.Logger
}

func NewAlertsHandler(statuses StatusReader, h *hub.Hub, access *AccessControl, logger *zap.Logger) *AlertsHandler {
	return &AlertsHandler{statuses: statuses, hub: h, access: access, logger: logger}
}

// DevicesStatus GET /api/alerts/devices/status -> {deviceId: connected}
func (h *AlertsHandler) DevicesStatus(w http.ResponseWriter, r *http.Request) {
	all := h.statuses.AllStatuses()

	owned, filtered, err := h.access.OwnedDevices(r.Context(), UserFromContext(r.Context()))
	if err != nil {
		h.logger.Error("Failed to load owned devices", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, Fail(MsgInternal))
		return
	}
	if filtered {
		mine := make(map[string]bool, len(owned))
		for _, id := range owned {
			id = models.NormalizeDeviceID(id)
			if connected, ok := all[id]; ok {
				mine[id] = connected
			}
		}
		all = mine
	}
	writeJSON(w, http.StatusOK, all)
}

// DeviceStatus GET /api/alerts/devices/{deviceId}/status
func (h *AlertsHandler) DeviceStatus(w http.ResponseWriter, r *http.Request, rawID string) {
	deviceID := models.NormalizeDeviceID(rawID)
	ok, err := h.access.CanAccess(r.Context(), UserFromContext(r.Context()), deviceID)
	if err != nil {
		h.logger.Error("Ownership check failed", zap.String("device_id", deviceID), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, Fail(MsgInternal))
		return
	}
	if !ok {
		writeJSON(w, http.StatusForbidden, FailDevice(MsgForbidden, deviceID))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"deviceId":  deviceID,
		"connected": h.statuses.IsConnected(deviceID),
	})
}

// Stream GET /api/alerts/stream[?deviceId=]
// 指定 deviceId 时只推该设备（校验归属），否则推用户名下全部设备
func (h *AlertsHandler) Stream(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := UserFromContext(ctx)

	var (
		filter    hub.Filter
		connected models.ConnectedPayload
	)
	if deviceID := models.NormalizeDeviceID(r.URL.Query().Get("deviceId")); deviceID != "" {
		ok, err := h.access.CanAccess(ctx, userID, deviceID)
		if err != nil {
			h.logger.Error("Ownership check failed", zap.String("device_id", deviceID), zap.Error(err))
			writeJSON(w, http.StatusInternalServerError, Fail(MsgInternal))
			return
		}
		if !ok {
			writeJSON(w, http.StatusForbidden, FailDevice(MsgForbidden, deviceID))
			return
		}
		filter = hub.AcceptDevices(deviceID)
		connected = models.ConnectedPayload{Message: "SSE ready", Scope: models.ScopeSingleDevice, DeviceID: deviceID}
	} else {
		f, owned, err := h.access.Filter(ctx, userID)
		if err != nil {
			h.logger.Error("Failed to load owned devices", zap.Error(err))
			writeJSON(w, http.StatusInternalServerError, Fail(MsgInternal))
			return
		}
		filter = f
		connected = models.ConnectedPayload{Message: "SSE ready", Scope: models.ScopeAllDevices}
		if h.access.Enabled() {
			if len(owned) == 0 {
				h.sendOnly(w, models.ConnectedPayload{Message: "No devices associated with this user"})
				return
			}
			connected = models.ConnectedPayload{Message: "SSE ready", Scope: models.ScopeMyDevices, Count: len(owned)}
		}
	}

	sink, err := hub.NewSSESink(w)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, Fail(err.Error()))
		return
	}
	data, _ := json.Marshal(connected)
	if err := sink.Send(models.EventConnected, data); err != nil {
		return
	}

	sub := h.hub.Subscribe(sink, filter)
	// 返回前等待 pump 退出，之后不再写 ResponseWriter
	defer func() {
		h.hub.Unsubscribe(sub)
		<-sub.Done()
	}()

	select {
	case <-ctx.Done():
	case <-sub.Done():
	}
	h.logger.Debug("SSE stream closed",
		zap.String("subscriber_id", sub.ID()),
		zap.String("reason", sub.Reason()),
	)
}

// sendOnly 发送 connected 后立即结束流
func (h *AlertsHandler) sendOnly(w http.ResponseWriter, payload models.ConnectedPayload) {
	sink, err := hub.NewSSESink(w)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, Fail(err.Error()))
		return
	}
	data, _ := json.Marshal(payload)
	_ = sink.Send(models.EventConnected, data)
}
