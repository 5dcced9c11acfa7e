package token

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIssuer(t *testing.T) {
	issuer := NewIssuer("test_secret", "test", time.Minute)

	t.Run("簽發並解析", func(t *testing.T) {
		tok, err := issuer.GenerateJWT("alice")
		require.NoError(t, err)

		claims, err := issuer.ParseJWT(tok)
		require.NoError(t, err)
		assert.Equal(t, "alice", claims.UserID)
		assert.Equal(t, "test", claims.Issuer)
	})

	t.Run("不同 secret", func(t *testing.T) {
		tok, err := NewIssuer("other_secret", "test", time.Minute).GenerateJWT("alice")
		require.NoError(t, err)

		_, err = issuer.ParseJWT(tok)
		assert.Error(t, err)
	})

	t.Run("空 user", func(t *testing.T) {
		_, err := issuer.GenerateJWT("")
		assert.Error(t, err)
	})
}

func TestBearerToken(t *testing.T) {
	assert.Equal(t, "abc", BearerToken("Bearer abc"))
	assert.Equal(t, "abc", BearerToken("bearer abc"))
	assert.Equal(t, "", BearerToken("Basic abc"))
	assert.Equal(t, "", BearerToken(""))
}
