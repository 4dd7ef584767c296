package auth_test

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jycamier/chatfanout/backend/internal/auth"
)

func signTestToken(t *testing.T, secret string, userID uuid.UUID, name string, expiry time.Time) string {
	t.Helper()
	claims := auth.JWTClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID.String(),
			ExpiresAt: jwt.NewNumericDate(expiry),
		},
		UserID: userID.String(),
		Name:   name,
	}
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return tok
}

func TestAuthenticateValidCookie(t *testing.T) {
	jwtMgr := auth.NewJWTManager("test-secret")
	a := auth.NewAuthenticator(jwtMgr, "sessionid")

	userID := uuid.New()
	token := signTestToken(t, "test-secret", userID, "alice", time.Now().Add(time.Hour))

	req := httptest.NewRequest(http.MethodGet, "/ws", nil)
	req.AddCookie(&http.Cookie{Name: "sessionid", Value: token})

	id, err := a.Authenticate(req)
	require.NoError(t, err)
	assert.Equal(t, userID, id.UserID)
	assert.Equal(t, "alice", id.Username)
}

func TestAuthenticateMissingCookie(t *testing.T) {
	jwtMgr := auth.NewJWTManager("test-secret")
	a := auth.NewAuthenticator(jwtMgr, "sessionid")

	req := httptest.NewRequest(http.MethodGet, "/ws", nil)

	_, err := a.Authenticate(req)
	assert.ErrorIs(t, err, auth.ErrNoSession)
}

func TestAuthenticateInvalidToken(t *testing.T) {
	jwtMgr := auth.NewJWTManager("test-secret")
	a := auth.NewAuthenticator(jwtMgr, "sessionid")

	req := httptest.NewRequest(http.MethodGet, "/ws", nil)
	req.AddCookie(&http.Cookie{Name: "sessionid", Value: "not-a-jwt"})

	_, err := a.Authenticate(req)
	assert.ErrorIs(t, err, auth.ErrNoSession)
}

func TestAuthenticateExpiredToken(t *testing.T) {
	jwtMgr := auth.NewJWTManager("test-secret")
	a := auth.NewAuthenticator(jwtMgr, "sessionid")

	token := signTestToken(t, "test-secret", uuid.New(), "alice", time.Now().Add(-time.Hour))

	req := httptest.NewRequest(http.MethodGet, "/ws", nil)
	req.AddCookie(&http.Cookie{Name: "sessionid", Value: token})

	_, err := a.Authenticate(req)
	assert.ErrorIs(t, err, auth.ErrNoSession)
}

func TestAuthenticateWrongSecret(t *testing.T) {
	verifier := auth.NewAuthenticator(auth.NewJWTManager("secret-b"), "sessionid")

	token := signTestToken(t, "secret-a", uuid.New(), "alice", time.Now().Add(time.Hour))

	req := httptest.NewRequest(http.MethodGet, "/ws", nil)
	req.AddCookie(&http.Cookie{Name: "sessionid", Value: token})

	_, err := verifier.Authenticate(req)
	assert.ErrorIs(t, err, auth.ErrNoSession)
}
