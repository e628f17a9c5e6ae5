package httpapi

import (
	"sync"
	"testing"
	"time"

	"babyguardian-vitals/internal/hub"
	"babyguardian-vitals/internal/realtime"
	"babyguardian-vitals/internal/repository"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const testSecret = "test-secret"

func signToken(t *testing.T, secret, sub string, ttl time.Duration) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": sub,
		"exp": time.Now().Add(ttl).Unix(),
	})
	s, err := token.SignedString([]byte(secret))
	require.NoError(t, err)
	return s
}

type staticStatuses struct {
	mu       sync.Mutex
	statuses map[string]bool
}

func (s *staticStatuses) AllStatuses() map[string]bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]bool, len(s.statuses))
	for k, v := range s.statuses {
		out[k] = v
	}
	return out
}

func (s *staticStatuses) IsConnected(deviceID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.statuses[deviceID]
}

// requesterFunc 测试用 ReadingRequester
type requesterFunc func(deviceID string) error

func (f requesterFunc) RequestReading(deviceID string) error { return f(deviceID) }

type apiFixture struct {
	router     *Router
	hub        *hub.Hub
	devices    *repository.MemoryDeviceRepository
	readings   *repository.MemoryReadingRepository
	statuses   *staticStatuses
	correlator *realtime.Correlator
	requester  requesterFunc
}

// newAPIFixture secret 为空时关闭认证
func newAPIFixture(t *testing.T, secret string, realtimeTimeout time.Duration) *apiFixture {
	t.Helper()
	logger := zap.NewNop()

	f := &apiFixture{
		hub:        hub.New(hub.Options{QueueSize: 16, PingInterval: time.Hour}, nil, logger),
		devices:    repository.NewMemoryDeviceRepository(),
		readings:   repository.NewMemoryReadingRepository(100),
		statuses:   &staticStatuses{statuses: map[string]bool{}},
		correlator: realtime.NewCorrelator(nil, logger),
	}
	f.hub.SetStatusSource(f.statuses)
	f.requester = func(string) error { return nil }

	auth := NewAuthenticator(secret, logger)
	access := NewAccessControl(f.devices, auth.Enabled())

	f.router = NewRouter(auth, logger)
	f.router.RegisterSensorRoutes(NewSensorHandler(f.correlator, requesterFunc(func(id string) error {
		return f.requester(id)
	}), f.readings, access, realtimeTimeout, logger))
	f.router.RegisterAlertRoutes(NewAlertsHandler(f.statuses, f.hub, access, logger))
	f.router.RegisterWSRoutes(NewWSHandler(f.hub, access, time.Hour, logger))
	f.router.RegisterOpsRoutes(nil)
	return f
}
