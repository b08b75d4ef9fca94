package jwt

import (
	"testing"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

func TestGenerateAndParse(t *testing.T) {
	secret := []byte("test-secret")
	now := time.Now()
	token, exp, err := GenerateToken(Subject{
		UserID:       "u1",
		Name:         "Asha",
		Email:        "asha@example.com",
		Role:         "ADMIN",
		MobileNumber: "9876543210",
	}, secret, time.Hour, now)
	require.NoError(t, err)
	require.Equal(t, now.Add(time.Hour), exp)

	claims, err := ParseToken(token, secret)
	require.NoError(t, err)
	require.Equal(t, "u1", claims.UserID())
	require.Equal(t, "ADMIN", claims.Role)
	require.Equal(t, "9876543210", claims.ToSubject().MobileNumber)
}

func TestParseRejectsWrongSecretAndExpired(t *testing.T) {
	token, _, err := GenerateToken(Subject{UserID: "u1", Role: "USER"}, []byte("a"), time.Hour, time.Now())
	require.NoError(t, err)
	_, err = ParseToken(token, []byte("b"))
	require.Error(t, err)

	expired, _, err := GenerateToken(Subject{UserID: "u1", Role: "USER"}, []byte("a"), time.Hour, time.Now().Add(-2*time.Hour))
	require.NoError(t, err)
	_, err = ParseToken(expired, []byte("a"))
	require.Error(t, err)
}

func TestNeedsRefresh(t *testing.T) {
	issued := time.Now().Add(-40 * time.Minute)
	c := &Claims{RegisteredClaims: jwtlib.RegisteredClaims{
		IssuedAt:  jwtlib.NewNumericDate(issued),
		ExpiresAt: jwtlib.NewNumericDate(issued.Add(time.Hour)),
	}}
	require.True(t, NeedsRefresh(c, time.Now()))
	require.False(t, NeedsRefresh(c, issued.Add(10*time.Minute)))
	require.False(t, NeedsRefresh(&Claims{}, time.Now()))
}
