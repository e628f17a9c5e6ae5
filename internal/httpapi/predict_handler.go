package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"babyguardian-vitals/internal/models"
	"babyguardian-vitals/internal/risk"

	"go.uber.org/zap"
)

// HourPredictor 小时级风险预测（risk.Service）
type HourPredictor interface {
	PredictFromHour(ctx context.Context, req risk.Request) (*risk.Prediction, error)
	Health(ctx context.Context) bool
}

// predictRequest 同时接受 camelCase 与 snake_case
type predictRequest struct {
	HourTs       *time.Time `json:"hourTs"`
	HourTsSnake  *time.Time `json:"hour_ts"`
	SubjectID    *int       `json:"subjectId"`
	SubjectSnake *int       `json:"subject_id"`
	Age          *int       `json:"age"`
	SexBin       *int       `json:"sexBin"`
	SexBinSnake  *int       `json:"sex_bin"`
	HeightCM     *int       `json:"heightCm"`
	HeightSnake  *int       `json:"height_cm"`
	WeightKG     *int       `json:"weightKg"`
	WeightSnake  *int       `json:"weight_kg"`
}

func firstInt(a, b *int) *int {
	if a != nil {
		return a
	}
	return b
}

func (p predictRequest) toRequest(deviceID string) risk.Request {
	req := risk.Request{
		DeviceID: deviceID,
		Subject: risk.Subject{
			SubjectID: firstInt(p.SubjectID, p.SubjectSnake),
			Age:       p.Age,
			SexBin:    firstInt(p.SexBin, p.SexBinSnake),
			HeightCM:  firstInt(p.HeightCM, p.HeightSnake),
			WeightKG:  firstInt(p.WeightKG, p.WeightSnake),
		},
	}
	switch {
	case p.HourTs != nil:
		req.HourTs = *p.HourTs
	case p.HourTsSnake != nil:
		req.HourTs = *p.HourTsSnake
	}
	return req
}

// PredictHandler 风险预测接口
type PredictHandler struct {
	predictor HourPredictor
	access    *AccessControl
	logger    *zap.Logger
}

func NewPredictHandler(predictor HourPredictor, access *AccessControl, logger *zap.Logger) *PredictHandler {
	return &PredictHandler{predictor: predictor, access: access, logger: logger}
}

// Predict POST /api/predict/{deviceId}
func (h *PredictHandler) Predict(w http.ResponseWriter, r *http.Request, rawID string) {
	deviceID := models.NormalizeDeviceID(rawID)
	ok, err := h.access.CanAccess(r.Context(), UserFromContext(r.Context()), deviceID)
	if err != nil {
		h.logger.Error("Ownership check failed", zap.String("device_id", deviceID), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, PredictBody{Error: "server_error"})
		return
	}
	if !ok {
		writeJSON(w, http.StatusForbidden, PredictBody{Error: MsgForbidden})
		return
	}

	var body predictRequest
	if err := readBodyJSON(r, 1<<16, &body); err != nil {
		writeJSON(w, http.StatusBadRequest, PredictBody{Error: "invalid request body"})
		return
	}

	res, err := h.predictor.PredictFromHour(r.Context(), body.toRequest(deviceID))
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, res)
	case errors.Is(err, risk.ErrInsufficientData):
		writeJSON(w, http.StatusBadRequest, PredictBody{Error: err.Error()})
	default:
		h.logger.Error("Hourly prediction failed", zap.String("device_id", deviceID), zap.Error(err))
		writeJSON(w, http.StatusBadGateway, PredictBody{Error: "server_error"})
	}
}

// Health GET /api/predict/health
func (h *PredictHandler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]bool{"ok": h.predictor.Health(r.Context())})
}
