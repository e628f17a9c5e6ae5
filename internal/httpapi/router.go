package httpapi

import (
	"net/http"

	"go.uber.org/zap"
)

// Router 使用标准库 http.ServeMux
type Router struct {
	mux    *http.ServeMux
	auth   *Authenticator
	logger *zap.Logger
}

func NewRouter(auth *Authenticator, logger *zap.Logger) *Router {
	return &Router{
		mux:    http.NewServeMux(),
		auth:   auth,
		logger: logger,
	}
}

func (r *Router) Handle(pattern string, h http.HandlerFunc) {
	r.mux.HandleFunc(pattern, h)
}

// HandleHandler 支持 http.Handler 接口（用于 /metrics）
func (r *Router) HandleHandler(pattern string, h http.Handler) {
	r.mux.Handle(pattern, h)
}

func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.mux.ServeHTTP(w, req)
}

// RegisterSensorRoutes /api/sensors/realtime/{id}, /api/sensors/{id}/recent
func (r *Router) RegisterSensorRoutes(s *SensorHandler) {
	r.Handle("/api/sensors/", r.auth.Require(func(w http.ResponseWriter, req *http.Request) {
		if !methodAllowed(w, req, http.MethodGet) {
			return
		}
		parts := pathSegments(req.URL.Path, "/api/sensors/")
		switch {
		case len(parts) == 2 && parts[0] == "realtime":
			s.Realtime(w, req, parts[1])
		case len(parts) == 2 && parts[1] == "recent":
			s.Recent(w, req, parts[0])
		default:
			writeJSON(w, http.StatusNotFound, Fail(MsgNotFound))
		}
	}))
}

// RegisterAlertRoutes 设备状态与 SSE
func (r *Router) RegisterAlertRoutes(a *AlertsHandler) {
	r.Handle("/api/alerts/devices/status", r.auth.Require(func(w http.ResponseWriter, req *http.Request) {
		if !methodAllowed(w, req, http.MethodGet) {
			return
		}
		a.DevicesStatus(w, req)
	}))

	r.Handle("/api/alerts/devices/", r.auth.Require(func(w http.ResponseWriter, req *http.Request) {
		if !methodAllowed(w, req, http.MethodGet) {
			return
		}
		parts := pathSegments(req.URL.Path, "/api/alerts/devices/")
		if len(parts) != 2 || parts[1] != "status" {
			writeJSON(w, http.StatusNotFound, Fail(MsgNotFound))
			return
		}
		a.DeviceStatus(w, req, parts[0])
	}))

	r.Handle("/api/alerts/stream", r.auth.Require(func(w http.ResponseWriter, req *http.Request) {
		if !methodAllowed(w, req, http.MethodGet) {
			return
		}
		a.Stream(w, req)
	}))
}

// RegisterWSRoutes /ws/vitals
func (r *Router) RegisterWSRoutes(ws *WSHandler) {
	r.Handle("/ws/vitals", r.auth.Require(ws.Serve))
}

// RegisterPredictRoutes 风险预测（未配置评分服务时不注册）
func (r *Router) RegisterPredictRoutes(p *PredictHandler) {
	r.Handle("/api/predict/health", func(w http.ResponseWriter, req *http.Request) {
		if !methodAllowed(w, req, http.MethodGet) {
			return
		}
		p.Health(w, req)
	})

	r.Handle("/api/predict/", r.auth.Require(func(w http.ResponseWriter, req *http.Request) {
		if !methodAllowed(w, req, http.MethodPost) {
			return
		}
		parts := pathSegments(req.URL.Path, "/api/predict/")
		if len(parts) != 1 {
			writeJSON(w, http.StatusNotFound, Fail(MsgNotFound))
			return
		}
		p.Predict(w, req, parts[0])
	}))
}

// RegisterOpsRoutes /health 与 /metrics
func (r *Router) RegisterOpsRoutes(metrics http.Handler) {
	r.Handle("/health", func(w http.ResponseWriter, req *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if metrics != nil {
		r.HandleHandler("/metrics", metrics)
	}
}
