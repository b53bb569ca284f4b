package sessions

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateToken(t *testing.T) {
	token, err := GenerateToken()
	require.NoError(t, err)
	assert.Len(t, token, TokenLength)
	for _, c := range token {
		assert.True(t, strings.ContainsRune(tokenCharset, c), "unexpected character %q", c)
	}
}

func TestGenerateTokenAvoidsAmbiguousCharacters(t *testing.T) {
	for i := 0; i < 200; i++ {
		token, err := GenerateToken()
		require.NoError(t, err)
		assert.NotContains(t, token, "0")
		assert.NotContains(t, token, "O")
		assert.NotContains(t, token, "1")
		assert.NotContains(t, token, "I")
	}
}

func TestGenerateTokenPairDistinct(t *testing.T) {
	host, user, err := GenerateTokenPair()
	require.NoError(t, err)
	assert.NotEqual(t, host, user)
	assert.True(t, IsValidTokenFormat(host))
	assert.True(t, IsValidTokenFormat(user))
}

func TestIsValidTokenFormat(t *testing.T) {
	assert.True(t, IsValidTokenFormat("ABCD2345"))
	assert.False(t, IsValidTokenFormat(""))
	assert.False(t, IsValidTokenFormat("SHORT"))
	assert.False(t, IsValidTokenFormat("ABCD23456"))
	assert.False(t, IsValidTokenFormat("ABCD234O"), "ambiguous O is never issued")
	assert.False(t, IsValidTokenFormat("abcd2345"), "tokens are upper case")
	assert.False(t, IsValidTokenFormat("ABCD 345"))
}
