package hub

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// WSSink WebSocket 推送通道，推送原始 JSON 文本帧
// 同一连接上的控制应答和推送共用写锁
type WSSink struct {
	conn         *websocket.Conn
	writeTimeout time.Duration

	mu        sync.Mutex
	closeOnce sync.Once
}

// NewWSSink 包装 WebSocket 连接
func NewWSSink(conn *websocket.Conn, writeTimeout time.Duration) *WSSink {
	if writeTimeout <= 0 {
		writeTimeout = 10 * time.Second
	}
	return &WSSink{conn: conn, writeTimeout: writeTimeout}
}

// Send 实现 Sink，事件名不写入帧
func (s *WSSink) Send(_ string, payload []byte) error {
	return s.write(websocket.TextMessage, payload)
}

// SendJSON 发送控制应答
func (s *WSSink) SendJSON(v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal ws message: %w", err)
	}
	return s.write(websocket.TextMessage, data)
}

// Ping 发送 ping 控制帧
func (s *WSSink) Ping() error {
	return s.write(websocket.PingMessage, nil)
}

func (s *WSSink) write(messageType int, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.conn.SetWriteDeadline(time.Now().Add(s.writeTimeout)); err != nil {
		return fmt.Errorf("failed to set write deadline: %w", err)
	}
	if err := s.conn.WriteMessage(messageType, data); err != nil {
		return fmt.Errorf("failed to write ws message: %w", err)
	}
	return nil
}

// Close 关闭底层连接，可重复调用
func (s *WSSink) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.mu.Lock()
		_ = s.conn.SetWriteDeadline(time.Now().Add(time.Second))
		_ = s.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		s.mu.Unlock()
		err = s.conn.Close()
	})
	return err
}
