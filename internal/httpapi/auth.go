package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"babyguardian-vitals/internal/hub"
	"babyguardian-vitals/internal/models"
	"babyguardian-vitals/internal/repository"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

// ErrMissingToken 请求未携带令牌
var ErrMissingToken = errors.New("missing bearer token")

type contextKey string

const userKey contextKey = "user_id"

// TokenVerifier HS256 JWT 校验，sub 为用户ID
type TokenVerifier struct {
	secret []byte
}

func NewTokenVerifier(secret string) *TokenVerifier {
	return &TokenVerifier{secret: []byte(secret)}
}

// Verify 返回 sub
func (v *TokenVerifier) Verify(tokenString string) (string, error) {
	if strings.TrimSpace(tokenString) == "" {
		return "", ErrMissingToken
	}

	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if token.Method.Alg() != jwt.SigningMethodHS256.Alg() {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return v.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return "", fmt.Errorf("failed to parse token: %w", err)
	}
	if !token.Valid {
		return "", fmt.Errorf("invalid token")
	}

	sub, err := token.Claims.GetSubject()
	if err != nil || sub == "" {
		return "", fmt.Errorf("missing or invalid 'sub' claim")
	}
	return sub, nil
}

// Authenticator 认证中间件；verifier 为 nil 时不校验（开发模式）
type Authenticator struct {
	verifier *TokenVerifier
	logger   *zap.Logger
}

// NewAuthenticator secret 为空时关闭认证
func NewAuthenticator(secret string, logger *zap.Logger) *Authenticator {
	a := &Authenticator{logger: logger}
	if secret != "" {
		a.verifier = NewTokenVerifier(secret)
	}
	return a
}

func (a *Authenticator) Enabled() bool {
	return a != nil && a.verifier != nil
}

// Require 校验 Authorization: Bearer 或 ?token=（EventSource / WebSocket 无法设置请求头）
func (a *Authenticator) Require(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !a.Enabled() {
			next(w, r)
			return
		}

		sub, err := a.verifier.Verify(extractToken(r))
		if err != nil {
			a.logger.Debug("Rejected request", zap.String("path", r.URL.Path), zap.Error(err))
			writeJSON(w, http.StatusUnauthorized, Fail(MsgUnauthorized))
			return
		}
		next(w, r.WithContext(context.WithValue(r.Context(), userKey, sub)))
	}
}

func extractToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		if len(h) > 7 && strings.EqualFold(h[:7], "Bearer ") {
			return strings.TrimSpace(h[7:])
		}
		return ""
	}
	return r.URL.Query().Get("token")
}

// UserFromContext 认证关闭时为空串
func UserFromContext(ctx context.Context) string {
	sub, _ := ctx.Value(userKey).(string)
	return sub
}

// AccessControl 设备归属检查；认证关闭时所有设备可见
type AccessControl struct {
	devices repository.DeviceRepository
	enabled bool
}

func NewAccessControl(devices repository.DeviceRepository, enabled bool) *AccessControl {
	return &AccessControl{devices: devices, enabled: enabled}
}

func (c *AccessControl) Enabled() bool {
	return c.enabled
}

func (c *AccessControl) CanAccess(ctx context.Context, userID, deviceID string) (bool, error) {
	if !c.enabled {
		return true, nil
	}
	return c.devices.IsOwner(ctx, userID, models.NormalizeDeviceID(deviceID))
}

// OwnedDevices 认证关闭时返回 nil, false 表示不过滤
func (c *AccessControl) OwnedDevices(ctx context.Context, userID string) ([]string, bool, error) {
	if !c.enabled {
		return nil, false, nil
	}
	ids, err := c.devices.FindOwnedDeviceIDs(ctx, userID)
	return ids, true, err
}

// Filter 用户可见设备的推送过滤器；nil 表示全部可见
func (c *AccessControl) Filter(ctx context.Context, userID string) (hub.Filter, []string, error) {
	ids, filtered, err := c.OwnedDevices(ctx, userID)
	if err != nil || !filtered {
		return nil, nil, err
	}
	return hub.AcceptDevices(ids...), ids, nil
}
