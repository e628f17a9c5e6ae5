package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"babyguardian-vitals/internal/hub"
	"babyguardian-vitals/internal/models"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	wsReadLimit    = 4096
	wsWriteTimeout = 10 * time.Second
)

// wsRequest 客户端控制消息
type wsRequest struct {
	Action   string `json:"action"`
	DeviceID string `json:"deviceId"`
}

// WSHandler /ws/vitals：每个连接同一时刻订阅一个设备
type WSHandler struct {
	hub          *hub.Hub
	access       *AccessControl
	upgrader     websocket.Upgrader
	pingInterval time.Duration
	logger       *zap.Logger
}

func NewWSHandler(h *hub.Hub, access *AccessControl, pingInterval time.Duration, logger *zap.Logger) *WSHandler {
	if pingInterval <= 0 {
		pingInterval = 20 * time.Second
	}
	return &WSHandler{
		hub:    h,
		access: access,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(_ *http.Request) bool {
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		pingInterval: pingInterval,
		logger:       logger,
	}
}

type wsSession struct {
	handler *WSHandler
	ctx     context.Context
	userID  string
	sink    *hub.WSSink
	sub     *hub.Subscriber
}

// Serve 升级连接并处理 subscribe / unsubscribe
func (h *WSHandler) Serve(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Debug("WebSocket upgrade failed", zap.Error(err))
		return
	}

	s := &wsSession{
		handler: h,
		ctx:     r.Context(),
		userID:  UserFromContext(r.Context()),
		sink:    hub.NewWSSink(conn, wsWriteTimeout),
	}
	defer s.close()

	conn.SetReadLimit(wsReadLimit)
	readTimeout := 3 * h.pingInterval
	_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(readTimeout))
	})

	stopPing := make(chan struct{})
	defer close(stopPing)
	go s.keepalive(stopPing)

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(readTimeout))

		var req wsRequest
		if err := json.Unmarshal(data, &req); err != nil {
			continue
		}
		switch strings.ToLower(req.Action) {
		case "subscribe":
			s.subscribe(req.DeviceID)
		case "unsubscribe":
			s.unsubscribe()
			_ = s.sink.SendJSON(models.ControlPayload{Type: models.PushTypeUnsubscribed})
		}
	}
}

func (s *wsSession) keepalive(stop <-chan struct{}) {
	ticker := time.NewTicker(s.handler.pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if err := s.sink.Ping(); err != nil {
				_ = s.sink.Close()
				return
			}
		}
	}
}

func (s *wsSession) subscribe(rawID string) {
	deviceID := models.NormalizeDeviceID(rawID)
	if deviceID == "" {
		_ = s.sink.SendJSON(models.ControlPayload{Type: models.PushTypeError, Message: "deviceId is required"})
		return
	}

	ok, err := s.handler.access.CanAccess(s.ctx, s.userID, deviceID)
	if err != nil {
		s.handler.logger.Error("Ownership check failed", zap.String("device_id", deviceID), zap.Error(err))
		_ = s.sink.SendJSON(models.ControlPayload{Type: models.PushTypeError, Message: MsgInternal})
		return
	}
	if !ok {
		_ = s.sink.SendJSON(models.ControlPayload{Type: models.PushTypeError, Message: MsgForbidden})
		return
	}

	// 切换设备：旧订阅的 pump 退出后再应答，避免旧设备消息排在 subscribed 之后
	s.unsubscribe()
	if err := s.sink.SendJSON(models.ControlPayload{Type: models.PushTypeSubscribed, DeviceID: deviceID}); err != nil {
		return
	}
	s.sub = s.handler.hub.Subscribe(s.sink, hub.AcceptDevices(deviceID))
	go s.watch(s.sub)
}

func (s *wsSession) unsubscribe() {
	if s.sub == nil {
		return
	}
	s.handler.hub.Unsubscribe(s.sub)
	<-s.sub.Done()
	s.sub = nil
}

// watch 推送失败或服务关闭时断开连接，读循环随之退出
func (s *wsSession) watch(sub *hub.Subscriber) {
	<-sub.Done()
	switch sub.Reason() {
	case hub.ReasonSendError, hub.ReasonQueueFull, hub.ReasonShutdown:
		_ = s.sink.Close()
	}
}

func (s *wsSession) close() {
	s.unsubscribe()
	_ = s.sink.Close()
}
