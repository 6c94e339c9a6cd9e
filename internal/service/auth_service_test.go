package service

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/study-planner-api/internal/models"
	appErrors "github.com/noah-isme/study-planner-api/pkg/errors"
)

func TestAuthServiceRoundTrip(t *testing.T) {
	svc := NewAuthService(AuthConfig{AccessTokenSecret: "secret", Issuer: "identity"})

	token, err := svc.IssueToken("u1", models.RoleAdmin, time.Hour)
	require.NoError(t, err)

	claims, err := svc.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "u1", claims.UserID)
	assert.Equal(t, models.RoleAdmin, claims.Role)
}

func TestAuthServiceRejectsBadTokens(t *testing.T) {
	svc := NewAuthService(AuthConfig{AccessTokenSecret: "secret", Issuer: "identity"})
	other := NewAuthService(AuthConfig{AccessTokenSecret: "other", Issuer: "identity"})
	foreign, err := other.IssueToken("u1", models.RoleStudent, time.Hour)
	require.NoError(t, err)

	expired, err := svc.IssueToken("u1", models.RoleStudent, -time.Minute)
	require.NoError(t, err)

	wrongIssuer, err := NewAuthService(AuthConfig{AccessTokenSecret: "secret", Issuer: "elsewhere"}).IssueToken("u1", models.RoleStudent, time.Hour)
	require.NoError(t, err)

	for name, token := range map[string]string{"signature": foreign, "expired": expired, "issuer": wrongIssuer, "garbage": "abc"} {
		t.Run(name, func(t *testing.T) {
			_, err := svc.ValidateToken(token)
			require.Error(t, err)
			assert.True(t, appErrors.HasCode(err, appErrors.ErrUnauthorized.Code))
		})
	}
}

func TestAuthServiceFallsBackToSubject(t *testing.T) {
	svc := NewAuthService(AuthConfig{AccessTokenSecret: "secret"})
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "u9",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	})
	signed, err := token.SignedString([]byte("secret"))
	require.NoError(t, err)

	claims, err := svc.ValidateToken(signed)
	require.NoError(t, err)
	assert.Equal(t, "u9", claims.UserID)
	assert.Equal(t, models.RoleStudent, claims.Role)
}
