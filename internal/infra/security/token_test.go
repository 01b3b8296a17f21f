package security

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIssueAndVerify(t *testing.T) {
	tokens, err := NewHMACTokens("s3cret")
	require.NoError(t, err)

	raw, err := tokens.Issue("user-1", time.Hour)
	require.NoError(t, err)

	id, err := tokens.Verify(raw)
	require.NoError(t, err)
	assert.Equal(t, "user-1", id)
}

func TestVerifyRejects(t *testing.T) {
	tokens, err := NewHMACTokens("s3cret")
	require.NoError(t, err)
	other, err := NewHMACTokens("another")
	require.NoError(t, err)

	foreign, err := other.Issue("user-1", time.Hour)
	require.NoError(t, err)
	expired, err := tokens.Issue("user-1", -time.Minute)
	require.NoError(t, err)
	anonymous, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"role": "guest"}).SignedString([]byte("s3cret"))
	require.NoError(t, err)
	noneAlg, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{"id": "user-1"}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	for name, raw := range map[string]string{
		"empty":        "",
		"garbage":      "not-a-token",
		"wrong secret": foreign,
		"expired":      expired,
		"no user id":   anonymous,
		"alg none":     noneAlg,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := tokens.Verify(raw)
			assert.ErrorIs(t, err, ErrInvalidToken)
		})
	}
}

func TestSubjectFallback(t *testing.T) {
	tokens, err := NewHMACTokens("s3cret")
	require.NoError(t, err)
	raw, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": "user-9"}).SignedString([]byte("s3cret"))
	require.NoError(t, err)

	id, err := tokens.Verify(raw)
	require.NoError(t, err)
	assert.Equal(t, "user-9", id)

	_, err = NewHMACTokens(" ")
	assert.ErrorIs(t, err, ErrMissingSecret)
}
