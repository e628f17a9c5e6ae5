package consumer

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMatchTopic(t *testing.T) {
	cases := []struct {
		pattern, topic string
		want           bool
	}{
		{"app/status/+", "app/status/esp32-01", true},
		{"app/status/+", "app/status", false},
		{"app/status/+", "app/status/esp32-01/extra", false},
		{"iot/vitals/#", "iot/vitals", true},
		{"iot/vitals/#", "iot/vitals/esp32-01", true},
		{"iot/vitals/#", "iot/vitals/esp32-01/realtime", true},
		{"iot/vitals/#", "iot/other/esp32-01", false},
		{"#", "anything/at/all", true},
		{"iot/+/esp32-01", "iot/vitals/esp32-01", true},
		{"iot/vitals", "iot/vitals", true},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, MatchTopic(tc.pattern, tc.topic), "%s vs %s", tc.pattern, tc.topic)
	}
}

func TestRouter_FirstMatchWins(t *testing.T) {
	r := NewRouter()
	var got []string
	require.NoError(t, r.Handle("iot/vitals/+/realtime", func(topic string, _ []byte) error {
		got = append(got, "realtime:"+topic)
		return nil
	}))
	require.NoError(t, r.Handle("iot/vitals/#", func(topic string, _ []byte) error {
		got = append(got, "vitals:"+topic)
		return nil
	}))

	require.NoError(t, r.Dispatch("iot/vitals/dev-a/realtime", nil))
	require.NoError(t, r.Dispatch("iot/vitals/dev-a", nil))

	assert.Equal(t, []string{"realtime:iot/vitals/dev-a/realtime", "vitals:iot/vitals/dev-a"}, got)
	assert.Equal(t, []string{"iot/vitals/+/realtime", "iot/vitals/#"}, r.Patterns())
}

func TestRouter_NoRoute(t *testing.T) {
	r := NewRouter()
	err := r.Dispatch("unknown/topic", nil)
	assert.True(t, errors.Is(err, ErrNoRoute))
}

func TestRouter_HandlerErrorPropagates(t *testing.T) {
	r := NewRouter()
	boom := errors.New("boom")
	require.NoError(t, r.Handle("a/+", func(string, []byte) error { return boom }))
	assert.ErrorIs(t, r.Dispatch("a/b", nil), boom)
}

func TestRouter_InvalidPattern(t *testing.T) {
	r := NewRouter()
	assert.Error(t, r.Handle("a/#/b", nil))
	assert.Error(t, r.Handle("a/dev+/b", nil))
}

func TestParseTopic(t *testing.T) {
	p := ParseTopic("iot/vitals/esp32-01/realtime")
	assert.Equal(t, TopicParts{Namespace: "iot", Kind: "vitals", DeviceID: "esp32-01", Modifier: "realtime"}, p)

	p = ParseTopic("iot/vitals")
	assert.Equal(t, "", p.DeviceID)
}
