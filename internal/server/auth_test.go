package server

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenRoundTrip(t *testing.T) {
	auth := NewAuth("secret", time.Hour)

	token, err := auth.IssueToken("auditor1", []string{"auditor", "user"})
	require.NoError(t, err)

	claims, err := auth.ParseToken(token)
	require.NoError(t, err)
	assert.Equal(t, "auditor1", claims.Username)
	assert.True(t, claims.HasRole("auditor"))
	assert.True(t, claims.HasRole("AUDITOR"), "role check is case-insensitive")
	assert.False(t, claims.HasRole("admin"))
}

func TestParseTokenRejectsWrongSecret(t *testing.T) {
	token, err := NewAuth("secret-a", time.Hour).IssueToken("u", []string{"user"})
	require.NoError(t, err)

	_, err = NewAuth("secret-b", time.Hour).ParseToken(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestParseTokenRejectsExpired(t *testing.T) {
	auth := NewAuth("secret", -time.Minute)
	token, err := auth.IssueToken("u", []string{"user"})
	require.NoError(t, err)

	_, err = auth.ParseToken(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}
