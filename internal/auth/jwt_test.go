package auth_test

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/omochice/realtime-chat/internal/auth"
	"github.com/stretchr/testify/require"
)

const secret = "test-secret"

func TestJWTVerifier_RoundTrip(t *testing.T) {
	req := require.New(t)
	token, err := auth.IssueToken(secret, "u1", "Alice", time.Hour)
	req.NoError(err)

	claims, err := auth.NewJWTVerifier(secret).Verify(token)

	req.NoError(err)
	req.Equal("u1", claims.UserID)
	req.Equal("Alice", claims.Name)
	req.NotNil(claims.ExpiresAt)
}

func TestJWTVerifier_NoExpiry(t *testing.T) {
	req := require.New(t)
	token, err := auth.IssueToken(secret, "u1", "", 0)
	req.NoError(err)

	claims, err := auth.NewJWTVerifier(secret).Verify(token)

	req.NoError(err)
	req.Nil(claims.ExpiresAt)
}

func TestJWTVerifier_Rejects(t *testing.T) {
	expired, err := jwt.NewWithClaims(jwt.SigningMethodHS256, &auth.Claims{
		UserID: "u1",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
		},
	}).SignedString([]byte(secret))
	require.NoError(t, err)
	foreign, err := auth.IssueToken("other-secret", "u1", "", time.Hour)
	require.NoError(t, err)
	unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, &auth.Claims{UserID: "u1"}).
		SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	tests := []struct {
		name  string
		token string
	}{
		{name: "expired", token: expired},
		{name: "wrong secret", token: foreign},
		{name: "unsigned", token: unsigned},
		{name: "garbage", token: "not.a.jwt"},
	}

	verifier := auth.NewJWTVerifier(secret)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := verifier.Verify(tt.token)
			require.Error(t, err)
		})
	}
}

func TestIssueToken_EmptySecret(t *testing.T) {
	_, err := auth.IssueToken("", "u1", "", time.Hour)
	require.Error(t, err)
}
