package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestValidateAccessTokenRoundTrip(t *testing.T) {
	svc, err := NewJWTService(JWTConfig{Secret: "secret", Issuer: "aiva-user-service"})
	require.NoError(t, err)

	token, err := svc.SignAccessToken("user-1", time.Minute)
	require.NoError(t, err)

	claims, err := svc.ValidateAccessToken(token)
	require.NoError(t, err)
	require.Equal(t, "user-1", claims.UserID)
}

func TestValidateAccessTokenRejectsExpired(t *testing.T) {
	issuedAt := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := issuedAt

	svc, err := NewJWTService(JWTConfig{
		Secret: "secret",
		Clock:  func() time.Time { return clock },
	})
	require.NoError(t, err)

	token, err := svc.SignAccessToken("user-1", time.Minute)
	require.NoError(t, err)

	clock = issuedAt.Add(2 * time.Minute)
	_, err = svc.ValidateAccessToken(token)
	require.Error(t, err)
}

func TestValidateAccessTokenRejectsWrongIssuer(t *testing.T) {
	issuerSvc, err := NewJWTService(JWTConfig{Secret: "secret", Issuer: "someone-else"})
	require.NoError(t, err)

	token, err := issuerSvc.SignAccessToken("user-1", time.Minute)
	require.NoError(t, err)

	validator, err := NewJWTService(JWTConfig{Secret: "secret", Issuer: "aiva-user-service"})
	require.NoError(t, err)

	_, err = validator.ValidateAccessToken(token)
	require.Error(t, err)
}

func TestValidateAccessTokenRejectsWrongSecret(t *testing.T) {
	svc, err := NewJWTService(JWTConfig{Secret: "secret"})
	require.NoError(t, err)

	token, err := svc.SignAccessToken("user-1", time.Minute)
	require.NoError(t, err)

	other, err := NewJWTService(JWTConfig{Secret: "different"})
	require.NoError(t, err)

	_, err = other.ValidateAccessToken(token)
	require.Error(t, err)
}

func TestNewJWTServiceRequiresSecret(t *testing.T) {
	_, err := NewJWTService(JWTConfig{})
	require.Error(t, err)
}
