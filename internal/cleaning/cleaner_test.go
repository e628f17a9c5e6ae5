package cleaning

import (
	"errors"
	"math"
	"testing"
	"time"

	"babyguardian-vitals/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func f(v float64) *float64 { return &v }

func fixedCleaner(mode Mode) *Cleaner {
	p := DefaultPolicy()
	p.Mode = mode
	c := NewCleaner(p)
	c.now = func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) }
	return c
}

func raw(temp, spo2, hr float64) models.RawReading {
	return models.RawReading{DeviceID: "ESP32-01", Temperature: f(temp), SpO2: f(spo2), HeartRate: f(hr)}
}

func TestParseMode(t *testing.T) {
	m, err := ParseMode("")
	require.NoError(t, err)
	assert.Equal(t, ModeReject, m)

	m, err = ParseMode(" clamp ")
	require.NoError(t, err)
	assert.Equal(t, ModeClamp, m)

	_, err = ParseMode("drop")
	assert.Error(t, err)
}

func TestClean_FahrenheitConvertedInClampMode(t *testing.T) {
	c := fixedCleaner(ModeClamp)

	out, err := c.Clean(raw(98.6, 92, 150), "")
	require.NoError(t, err)

	assert.InDelta(t, 37.0, out.TemperatureC, 1e-9)
	assert.Equal(t, 92, out.SpO2)
	assert.Equal(t, 150, out.HeartRate)
	assert.Equal(t, models.QualityOK, out.Quality)
	assert.Equal(t, "esp32-01", out.DeviceID)
}

func TestClean_ClampModeBoundsAndQuality(t *testing.T) {
	c := fixedCleaner(ModeClamp)
	p := DefaultPolicy()

	cases := []struct {
		name        string
		temp, s, hr float64
		clamped     bool
	}{
		{"all in range", 36.5, 98, 120, false},
		{"temp low", 30, 98, 120, true},
		{"spo2 high", 36.5, 104, 120, true},
		{"hr low", 36.5, 98, 20, true},
		{"everything out", 45, 10, 400, true},
		{"on the edges", 34, 70, 220, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			out, err := c.Clean(raw(tc.temp, tc.s, tc.hr), "")
			require.NoError(t, err)

			assert.GreaterOrEqual(t, out.TemperatureC, p.Temperature.Min)
			assert.LessOrEqual(t, out.TemperatureC, p.Temperature.Max)
			assert.GreaterOrEqual(t, float64(out.SpO2), p.SpO2.Min)
			assert.LessOrEqual(t, float64(out.SpO2), p.SpO2.Max)
			assert.GreaterOrEqual(t, float64(out.HeartRate), p.HeartRate.Min)
			assert.LessOrEqual(t, float64(out.HeartRate), p.HeartRate.Max)

			if tc.clamped {
				assert.Equal(t, models.QualityClamped, out.Quality)
			} else {
				assert.Equal(t, models.QualityOK, out.Quality)
			}
		})
	}
}

func TestClean_RejectModeOutOfRange(t *testing.T) {
	c := fixedCleaner(ModeReject)

	for _, r := range []models.RawReading{
		raw(33.9, 98, 120),
		raw(36.6, 69, 120),
		raw(36.6, 98, 221),
		raw(50, 98, 120), // 介于摄氏上限和华氏阈值之间
	} {
		_, err := c.Clean(r, "")
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrOutOfRange), "got %v", err)

		var rej *RejectError
		require.True(t, errors.As(err, &rej))
		assert.Equal(t, ErrOutOfRange, rej.Kind)
	}
}

func TestClean_RejectModeAccepts(t *testing.T) {
	c := fixedCleaner(ModeReject)
	out, err := c.Clean(raw(36.6, 97.6, 120.4), "")
	require.NoError(t, err)
	assert.Equal(t, 98, out.SpO2)
	assert.Equal(t, 120, out.HeartRate)
	assert.Equal(t, models.QualityOK, out.Quality)
}

func TestClean_TestModeBypassesRanges(t *testing.T) {
	c := fixedCleaner(ModeTest)
	out, err := c.Clean(raw(20, 10, 400.6), "")
	require.NoError(t, err)
	assert.Equal(t, models.QualityTest, out.Quality)
	assert.Equal(t, 20.0, out.TemperatureC)
	assert.Equal(t, 10, out.SpO2)
	assert.Equal(t, 401, out.HeartRate)
}

func TestClean_InvalidInput(t *testing.T) {
	c := fixedCleaner(ModeReject)

	_, err := c.Clean(models.RawReading{Temperature: f(36), SpO2: f(98), HeartRate: f(120)}, "  ")
	assert.True(t, errors.Is(err, ErrInvalidInput))

	_, err = c.Clean(models.RawReading{DeviceID: "dev", SpO2: f(98), HeartRate: f(120)}, "")
	assert.True(t, errors.Is(err, ErrInvalidInput))

	_, err = c.Clean(raw(math.NaN(), 98, 120), "")
	assert.True(t, errors.Is(err, ErrInvalidInput))
}

func TestClean_DeviceIDFallbackAndTimestamp(t *testing.T) {
	c := fixedCleaner(ModeReject)

	r := raw(36.6, 98, 120)
	r.DeviceID = ""
	out, err := c.Clean(r, " Dev-B ")
	require.NoError(t, err)
	assert.Equal(t, "dev-b", out.DeviceID)
	assert.Equal(t, c.now(), out.Timestamp)

	ts := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	r.Timestamp = &ts
	out, err = c.Clean(r, "dev-b")
	require.NoError(t, err)
	assert.Equal(t, ts, out.Timestamp)
}

func TestClean_FingerFlag(t *testing.T) {
	c := fixedCleaner(ModeTest)

	out, err := c.Clean(raw(36, 0, 0), "")
	require.NoError(t, err)
	assert.False(t, out.Finger)

	out, err = c.Clean(raw(36, 98, 0), "")
	require.NoError(t, err)
	assert.True(t, out.Finger)

	no := false
	r := raw(36, 98, 120)
	r.Finger = &no
	out, err = c.Clean(r, "")
	require.NoError(t, err)
	assert.False(t, out.Finger)
}
