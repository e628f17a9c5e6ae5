package hub

import (
	"errors"
	"fmt"
	"net/http"
	"sync"
)

// ErrStreamingUnsupported ResponseWriter 不支持 Flush
var ErrStreamingUnsupported = errors.New("streaming unsupported")

// SSESink Server-Sent Events 推送通道
type SSESink struct {
	mu      sync.Mutex
	w       http.ResponseWriter
	flusher http.Flusher
	nextID  int64
}

// NewSSESink 设置 SSE 响应头并返回推送通道
func NewSSESink(w http.ResponseWriter) (*SSESink, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, ErrStreamingUnsupported
	}

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	return &SSESink{w: w, flusher: flusher}, nil
}

// Send 写出一帧 SSE 事件
func (s *SSESink) Send(event string, payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	if _, err := fmt.Fprintf(s.w, "id: %d\nevent: %s\ndata: %s\n\n", s.nextID, event, payload); err != nil {
		return fmt.Errorf("failed to write sse event: %w", err)
	}
	s.flusher.Flush()
	return nil
}
