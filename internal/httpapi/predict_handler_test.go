package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"babyguardian-vitals/internal/repository"
	"babyguardian-vitals/internal/risk"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeHourPredictor struct {
	got     risk.Request
	err     error
	healthy bool
}

func (p *fakeHourPredictor) PredictFromHour(_ context.Context, req risk.Request) (*risk.Prediction, error) {
	p.got = req
	if p.err != nil {
		return nil, p.err
	}
	return &risk.Prediction{OK: true, DeviceID: req.DeviceID, RowsCount: 60}, nil
}

func (p *fakeHourPredictor) Health(context.Context) bool { return p.healthy }

func newPredictRouter(p HourPredictor) *Router {
	logger := zap.NewNop()
	r := NewRouter(NewAuthenticator("", logger), logger)
	r.RegisterPredictRoutes(NewPredictHandler(p, NewAccessControl(repository.NewMemoryDeviceRepository(), false), logger))
	return r
}

func TestPredict_ParsesBodyAliases(t *testing.T) {
	p := &fakeHourPredictor{}
	r := newPredictRouter(p)

	body := `{"hour_ts":"2026-01-01T10:00:00Z","subjectId":7,"sex_bin":1,"heightCm":60}`
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/predict/ESP32-01", strings.NewReader(body)))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"rows_count":60`)

	assert.Equal(t, "esp32-01", p.got.DeviceID)
	assert.True(t, p.got.HourTs.Equal(time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)))
	require.NotNil(t, p.got.Subject.SubjectID)
	assert.Equal(t, 7, *p.got.Subject.SubjectID)
	require.NotNil(t, p.got.Subject.SexBin)
	assert.Equal(t, 1, *p.got.Subject.SexBin)
	require.NotNil(t, p.got.Subject.HeightCM)
	assert.Equal(t, 60, *p.got.Subject.HeightCM)
	assert.Nil(t, p.got.Subject.Age)
}

func TestPredict_Errors(t *testing.T) {
	p := &fakeHourPredictor{err: fmt.Errorf("%w: need at least 10 rows", risk.ErrInsufficientData)}
	r := newPredictRouter(p)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/predict/esp32-01", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), `"ok":false`)

	p.err = errors.New("connection refused")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/predict/esp32-01", nil))
	assert.Equal(t, http.StatusBadGateway, w.Code)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/predict/esp32-01", strings.NewReader("{bad")))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/predict/esp32-01", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}

func TestPredict_Health(t *testing.T) {
	r := newPredictRouter(&fakeHourPredictor{healthy: true})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/predict/health", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"ok":true}`, w.Body.String())
}

func TestHealthEndpoint(t *testing.T) {
	f := newAPIFixture(t, testSecret, time.Second)
	w := serve(f, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}
