package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"babyguardian-vitals/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func serve(f *apiFixture, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func TestRealtime_Delivered(t *testing.T) {
	f := newAPIFixture(t, "", time.Second)

	var published string
	f.requester = func(id string) error {
		published = id
		f.correlator.Complete("esp32-01", models.CleanReading{DeviceID: "esp32-01", HeartRate: 121, Quality: models.QualityOK})
		return nil
	}

	w := serve(f, httptest.NewRequest(http.MethodGet, "/api/sensors/realtime/ESP32-01", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ESP32-01", published)

	var got models.CleanReading
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, 121, got.HeartRate)
}

func TestRealtime_Timeout(t *testing.T) {
	f := newAPIFixture(t, "", 50*time.Millisecond)

	w := serve(f, httptest.NewRequest(http.MethodGet, "/api/sensors/realtime/esp32-01", nil))
	require.Equal(t, http.StatusGatewayTimeout, w.Code)
	assert.JSONEq(t, `{"message":"Timeout: no response from device","deviceId":"esp32-01"}`, w.Body.String())
	assert.Equal(t, 0, f.correlator.Pending())
}

func TestRealtime_PublishFailure(t *testing.T) {
	f := newAPIFixture(t, "", time.Second)
	f.requester = func(string) error { return errors.New("broker offline") }

	w := serve(f, httptest.NewRequest(http.MethodGet, "/api/sensors/realtime/esp32-01", nil))
	assert.Equal(t, http.StatusBadGateway, w.Code)
}

func TestRealtime_Replaced(t *testing.T) {
	f := newAPIFixture(t, "", 300*time.Millisecond)

	first := make(chan *httptest.ResponseRecorder, 1)
	go func() {
		first <- serve(f, httptest.NewRequest(http.MethodGet, "/api/sensors/realtime/esp32-01", nil))
	}()
	require.Eventually(t, func() bool { return f.correlator.Pending() == 1 }, time.Second, 5*time.Millisecond)

	second := serve(f, httptest.NewRequest(http.MethodGet, "/api/sensors/realtime/esp32-01", nil))
	assert.Equal(t, http.StatusGatewayTimeout, second.Code)
	assert.Equal(t, http.StatusConflict, (<-first).Code)
}

func TestRealtime_OwnershipEnforced(t *testing.T) {
	f := newAPIFixture(t, testSecret, time.Second)
	f.devices.SetOwner("esp32-01", "user-2")

	req := httptest.NewRequest(http.MethodGet, "/api/sensors/realtime/esp32-01", nil)
	req.Header.Set("Authorization", "Bearer "+signToken(t, testSecret, "user-1", time.Hour))
	w := serve(f, req)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = serve(f, httptest.NewRequest(http.MethodGet, "/api/sensors/realtime/esp32-01", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRecent(t *testing.T) {
	f := newAPIFixture(t, "", time.Second)
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		_, err := f.readings.Save(context.Background(), models.CleanReading{
			DeviceID:  "esp32-01",
			HeartRate: 100 + i,
			Timestamp: base.Add(time.Duration(i) * time.Minute),
		})
		require.NoError(t, err)
	}

	w := serve(f, httptest.NewRequest(http.MethodGet, "/api/sensors/esp32-01/recent?limit=2&before=2026-01-01T00:04:00Z", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var rows []models.CleanReading
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &rows))
	require.Len(t, rows, 2)
	assert.Equal(t, 103, rows[0].HeartRate)
	assert.Equal(t, 102, rows[1].HeartRate)

	w = serve(f, httptest.NewRequest(http.MethodGet, "/api/sensors/unknown/recent", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[]`, w.Body.String())

	w = serve(f, httptest.NewRequest(http.MethodGet, "/api/sensors/esp32-01/recent?limit=0", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = serve(f, httptest.NewRequest(http.MethodGet, "/api/sensors/esp32-01/recent?before=yesterday", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = serve(f, httptest.NewRequest(http.MethodPost, "/api/sensors/esp32-01/recent", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)

	w = serve(f, httptest.NewRequest(http.MethodGet, "/api/sensors/esp32-01/other", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}
