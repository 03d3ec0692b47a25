package token

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIssueAndParse(t *testing.T) {
	svc := NewService("secret", time.Hour)

	tok, exp, err := svc.Issue("user-1", "sid-1", "engineer")
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Hour), exp, 5*time.Second)

	claims, err := svc.Parse(tok)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.Subject)
	assert.Equal(t, "sid-1", claims.SessionID)
	assert.Equal(t, "engineer", claims.Role)
}

func TestParseRejectsExpiredAndForeignTokens(t *testing.T) {
	svc := NewService("secret", time.Hour)
	past := time.Now().Add(-2 * time.Hour)
	svc.now = func() time.Time { return past }
	tok, _, err := svc.Issue("user-1", "sid-1", "")
	require.NoError(t, err)

	svc.now = time.Now
	_, err = svc.Parse(tok)
	assert.True(t, errors.Is(err, ErrInvalidToken))

	other := NewService("other-secret", time.Hour)
	tok, _, err = other.Issue("user-1", "sid-1", "")
	require.NoError(t, err)
	_, err = svc.Parse(tok)
	assert.True(t, errors.Is(err, ErrInvalidToken))
}

func TestParseRejectsTokenWithoutExpiry(t *testing.T) {
	svc := NewService("secret", time.Hour)
	claims := Claims{
		SessionID: "sid-1",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:  "user-1",
			Issuer:   "marketplace-auth",
			IssuedAt: jwt.NewNumericDate(time.Now()),
		},
	}
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("secret"))
	require.NoError(t, err)

	_, err = svc.Parse(tok)
	assert.ErrorIs(t, err, ErrInvalidToken)
}
