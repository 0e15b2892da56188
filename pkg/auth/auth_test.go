package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestPasswordHashRoundTrip(t *testing.T) {
	encoded, err := HashPassword("correct horse battery staple")
	require.NoError(t, err)
	require.Contains(t, encoded, "$argon2id$")

	ok, err := VerifyPassword("correct horse battery staple", encoded)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = VerifyPassword("wrong password", encoded)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestPasswordHashSaltsDiffer(t *testing.T) {
	a, err := HashPassword("same")
	require.NoError(t, err)
	b, err := HashPassword("same")
	require.NoError(t, err)
	require.NotEqual(t, a, b)
}

func TestVerifyPasswordMalformedHash(t *testing.T) {
	for _, encoded := range []string{"", "plaintext", "$bcrypt$x$y$z$w", "$argon2id$v=19$bad$salt$hash"} {
		_, err := VerifyPassword("pw", encoded)
		require.ErrorIs(t, err, ErrHashFormat, encoded)
	}
}

func TestTokenRoundTrip(t *testing.T) {
	token, err := IssueToken("secret", "u-1", "admin", time.Hour)
	require.NoError(t, err)

	claims, err := ParseToken("secret", token)
	require.NoError(t, err)
	require.Equal(t, "u-1", claims.UserID)
	require.Equal(t, "admin", claims.Username)
}

func TestTokenWrongSecretRejected(t *testing.T) {
	token, err := IssueToken("secret", "u-1", "admin", time.Hour)
	require.NoError(t, err)

	_, err = ParseToken("other", token)
	require.Error(t, err)
}

func TestTokenExpiryRejected(t *testing.T) {
	token, err := IssueToken("secret", "u-1", "admin", -time.Minute)
	require.NoError(t, err)

	_, err = ParseToken("secret", token)
	require.Error(t, err)
}
