package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGenerateToken(t *testing.T) {
	token, err := GenerateToken()

	assert.NoError(t, err)
	// 32 bytes base64url without padding is 43 characters
	assert.Len(t, token, 43)
}

func TestGenerateToken_Unique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		token, err := GenerateToken()
		assert.NoError(t, err)
		assert.False(t, seen[token], "token collision")
		seen[token] = true
	}
}

func TestHashToken(t *testing.T) {
	token := "some-token"

	first := HashToken(token)
	second := HashToken(token)

	assert.Equal(t, first, second)
	assert.Len(t, first, 64) // hex sha256
	assert.NotEqual(t, first, HashToken("other-token"))
	assert.NotContains(t, first, token)
}
