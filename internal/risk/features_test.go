package risk

import (
	"errors"
	"math"
	"testing"
	"time"

	"babyguardian-vitals/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func hourRows(start time.Time, n int, temp func(i int) float64) []models.CleanReading {
	rows := make([]models.CleanReading, 0, n)
	for i := 0; i < n; i++ {
		rows = append(rows, models.CleanReading{
			DeviceID:     "esp32-01",
			TemperatureC: temp(i),
			SpO2:         98,
			HeartRate:    120,
			Timestamp:    start.Add(time.Duration(i) * time.Minute),
		})
	}
	return rows
}

func TestBuildHourFeatures_Stats(t *testing.T) {
	hourTs := time.Date(2026, 1, 1, 6, 0, 0, 0, time.UTC)
	rows := hourRows(hourTs.Add(-time.Hour), 48, func(i int) float64 { return 36.0 + float64(i)*0.02 })
	rows[10].SpO2 = 0
	rows[11].HeartRate = 0

	age := 1
	f, err := BuildHourFeatures("esp32-01", hourTs, Subject{Age: &age}, rows, 45)
	require.NoError(t, err)

	assert.Equal(t, "esp32-01", f["deviceId"])
	assert.Equal(t, "2026-01-01T06:00:00Z", f["hour_ts"])
	assert.Nil(t, f["subject_id"])
	assert.Equal(t, 1, f["age"])
	_, hasSex := f["sex_bin"]
	assert.False(t, hasSex)

	assert.Equal(t, 48, f["valid_count_1h"])
	assert.InDelta(t, 0.2, f["missing_ratio_1h"], 1e-9)
	assert.InDelta(t, 1.0, f["hour_sin"], 1e-9)
	assert.InDelta(t, 0.0, f["hour_cos"], 1e-9)

	assert.InDelta(t, 36.0, f["temp_first_1h"], 1e-9)
	assert.InDelta(t, 36.94, f["temp_last_1h"], 1e-9)
	assert.InDelta(t, 0.94, f["temp_slope_1h"], 1e-9)
	assert.InDelta(t, 36.0, f["temp_min_1h"], 1e-9)
	assert.InDelta(t, 36.94, f["temp_max_1h"], 1e-9)
	assert.InDelta(t, 36.47, f["temp_mean_1h"], 1e-9)

	assert.InDelta(t, 98.0, f["spo2_mean_1h"], 1e-9)
	assert.InDelta(t, 0.0, f["spo2_std_1h"], 1e-9)
	assert.InDelta(t, 0.0, f["hr_slope_1h"], 1e-9)
}

func TestBuildHourFeatures_ZeroIsMissing(t *testing.T) {
	hourTs := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	rows := hourRows(hourTs.Add(-time.Hour), 50, func(i int) float64 {
		if i%5 == 0 {
			return 0
		}
		return 37
	})

	_, err := BuildHourFeatures("esp32-01", hourTs, Subject{}, rows, 45)
	assert.True(t, errors.Is(err, ErrInsufficientData))

	f, err := BuildHourFeatures("esp32-01", hourTs, Subject{}, rows, 40)
	require.NoError(t, err)
	assert.Equal(t, 40, f["valid_count_1h"])
	assert.InDelta(t, 1.0, f["hour_cos"], 1e-9)
}

func TestBuildHourFeatures_EmptySignalIsZero(t *testing.T) {
	hourTs := time.Date(2026, 1, 1, 12, 30, 0, 0, time.UTC)
	rows := hourRows(hourTs.Add(-time.Hour), 45, func(int) float64 { return 37 })
	for i := range rows {
		rows[i].HeartRate = 0
	}

	f, err := BuildHourFeatures("esp32-01", hourTs, Subject{}, rows, 45)
	require.NoError(t, err)
	for _, k := range []string{"hr_mean_1h", "hr_std_1h", "hr_min_1h", "hr_max_1h", "hr_first_1h", "hr_last_1h", "hr_slope_1h"} {
		assert.Equal(t, 0.0, f[k], k)
	}
	assert.InDelta(t, math.Sin(2*math.Pi*12.5/24), f["hour_sin"], 1e-9)
}

func TestBuildHourFeatures_NoRows(t *testing.T) {
	_, err := BuildHourFeatures("esp32-01", time.Now(), Subject{}, nil, 0)
	assert.ErrorIs(t, err, ErrInsufficientData)
}

func TestSampleStd(t *testing.T) {
	assert.InDelta(t, 1.2909944, sampleStd([]float64{1, 2, 3, 4}, 2.5), 1e-6)
	assert.Equal(t, 0.0, sampleStd([]float64{5}, 5))
}
