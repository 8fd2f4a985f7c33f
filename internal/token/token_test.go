package token

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGenerateShape(t *testing.T) {
	tok, err := Generate()
	require.NoError(t, err)
	require.Len(t, tok, Length)
	require.True(t, Valid(tok))
}

func TestGenerateDoesNotRepeat(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		tok, err := Generate()
		require.NoError(t, err)
		require.False(t, seen[tok], "token repeated after %d draws", i)
		seen[tok] = true
	}
}

func TestValid(t *testing.T) {
	require.False(t, Valid(""))
	require.False(t, Valid("abc"))
	require.False(t, Valid(string(make([]byte, Length))))

	upper := "ABCDEF0123456789ABCDEF0123456789ABCDEF0123456789ABCDEF0123456789"
	require.False(t, Valid(upper))

	lower := "abcdef0123456789abcdef0123456789abcdef0123456789abcdef0123456789"
	require.True(t, Valid(lower))
}
