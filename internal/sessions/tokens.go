package sessions

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"
)

// tokenCharset excludes 0/O and 1/I so tokens survive being read aloud or
// written down.
const tokenCharset = "ABCDEFGHIJKLMNPQRSTUVWXYZ23456789"

// TokenLength is the length of host and user access tokens.
const TokenLength = 8

// GenerateToken returns a new friendly access token.
func GenerateToken() (string, error) {
	var b strings.Builder
	b.Grow(TokenLength)
	max := big.NewInt(int64(len(tokenCharset)))
	for i := 0; i < TokenLength; i++ {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("token entropy: %w", err)
		}
		b.WriteByte(tokenCharset[n.Int64()])
	}
	return b.String(), nil
}

// GenerateTokenPair returns distinct host and user tokens.
func GenerateTokenPair() (hostToken, userToken string, err error) {
	hostToken, err = GenerateToken()
	if err != nil {
		return "", "", err
	}
	for {
		userToken, err = GenerateToken()
		if err != nil {
			return "", "", err
		}
		if userToken != hostToken {
			return hostToken, userToken, nil
		}
	}
}

// IsValidTokenFormat reports whether s has the shape of an access token.
func IsValidTokenFormat(s string) bool {
	if len(s) != TokenLength {
		return false
	}
	for i := 0; i < len(s); i++ {
		if !strings.ContainsRune(tokenCharset, rune(s[i])) {
			return false
		}
	}
	return true
}
