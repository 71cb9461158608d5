package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testTokenOptions = TokenOptions{
	Exp:    time.Hour,
	Secret: []byte("test-secret"),
}

func TestSignAndVerifyToken(t *testing.T) {
	signed, exp, err := SignToken(42, "natthaphon", testTokenOptions)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Hour), exp, 5*time.Second)

	claims, err := VerifyToken(signed, testTokenOptions)
	require.NoError(t, err)
	assert.Equal(t, 42, claims.UserID)
	assert.Equal(t, "natthaphon", claims.Username)
	assert.Equal(t, "linkfeed", claims.Issuer)
}

func TestVerifyTokenWrongSecret(t *testing.T) {
	signed, _, err := SignToken(1, "a", testTokenOptions)
	require.NoError(t, err)

	_, err = VerifyToken(signed, TokenOptions{Exp: time.Hour, Secret: []byte("other")})
	assert.ErrorIs(t, err, ErrTokenInvalid)
}

func TestVerifyTokenExpired(t *testing.T) {
	signed, _, err := SignToken(1, "a", TokenOptions{Exp: -time.Minute, Secret: testTokenOptions.Secret})
	require.NoError(t, err)

	_, err = VerifyToken(signed, testTokenOptions)
	assert.ErrorIs(t, err, ErrTokenExpired)
}

func TestVerifyTokenMalformed(t *testing.T) {
	_, err := VerifyToken("not.a.token", testTokenOptions)
	assert.ErrorIs(t, err, ErrTokenInvalid)
}

func TestInspectToken(t *testing.T) {
	signed, _, err := SignToken(7, "b", testTokenOptions)
	require.NoError(t, err)

	// Inspect does not need the secret.
	claims, err := InspectToken(signed)
	require.NoError(t, err)
	assert.Equal(t, 7, claims.UserID)
	assert.Equal(t, "b", claims.Username)
}

func TestExpired(t *testing.T) {
	fresh, _, err := SignToken(1, "a", testTokenOptions)
	require.NoError(t, err)
	assert.False(t, Expired(fresh))

	stale, _, err := SignToken(1, "a", TokenOptions{Exp: -time.Minute, Secret: testTokenOptions.Secret})
	require.NoError(t, err)
	assert.True(t, Expired(stale))

	assert.True(t, Expired("garbage"))
}
