package httpapi

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestTokenVerifier(t *testing.T) {
	v := NewTokenVerifier(testSecret)

	sub, err := v.Verify(signToken(t, testSecret, "user-1", time.Hour))
	require.NoError(t, err)
	assert.Equal(t, "user-1", sub)

	_, err = v.Verify(signToken(t, "other-secret", "user-1", time.Hour))
	assert.Error(t, err)

	_, err = v.Verify(signToken(t, testSecret, "user-1", -time.Minute))
	assert.Error(t, err)

	_, err = v.Verify("")
	assert.ErrorIs(t, err, ErrMissingToken)

	noSub, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"exp": time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte(testSecret))
	require.NoError(t, err)
	_, err = v.Verify(noSub)
	assert.Error(t, err)
}

func TestAuthenticator_Require(t *testing.T) {
	auth := NewAuthenticator(testSecret, zap.NewNop())
	require.True(t, auth.Enabled())

	var seen string
	h := auth.Require(func(w http.ResponseWriter, r *http.Request) {
		seen = UserFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	})
	token := signToken(t, testSecret, "user-1", time.Hour)

	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	h(w, req)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "user-1", seen)

	seen = ""
	w = httptest.NewRecorder()
	h(w, httptest.NewRequest(http.MethodGet, "/x?token="+token, nil))
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "user-1", seen)

	w = httptest.NewRecorder()
	h(w, httptest.NewRequest(http.MethodGet, "/x", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), MsgUnauthorized)

	req = httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("Authorization", "Basic abc")
	w = httptest.NewRecorder()
	h(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAuthenticator_Disabled(t *testing.T) {
	auth := NewAuthenticator("", zap.NewNop())
	assert.False(t, auth.Enabled())

	called := false
	auth.Require(func(w http.ResponseWriter, r *http.Request) {
		called = true
		assert.Equal(t, "", UserFromContext(r.Context()))
	})(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/x", nil))
	assert.True(t, called)
}
