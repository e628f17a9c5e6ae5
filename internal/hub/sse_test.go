package hub

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type noFlushWriter struct {
	http.ResponseWriter
}

func TestSSESink_WritesFrames(t *testing.T) {
	rec := httptest.NewRecorder()
	sink, err := NewSSESink(rec)
	require.NoError(t, err)

	require.NoError(t, sink.Send("vitals", []byte(`{"deviceId":"dev-a"}`)))
	require.NoError(t, sink.Send("ping", []byte(`{"type":"PING_SSE"}`)))

	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))
	assert.Equal(t,
		"id: 1\nevent: vitals\ndata: {\"deviceId\":\"dev-a\"}\n\n"+
			"id: 2\nevent: ping\ndata: {\"type\":\"PING_SSE\"}\n\n",
		rec.Body.String())
	assert.True(t, rec.Flushed)
}

func TestSSESink_RequiresFlusher(t *testing.T) {
	_, err := NewSSESink(noFlushWriter{httptest.NewRecorder()})
	assert.ErrorIs(t, err, ErrStreamingUnsupported)
}
