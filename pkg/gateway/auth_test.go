package gateway

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuthHandlerGenerateChallenge(t *testing.T) {
	auth := NewAuthHandler("test-secret")

	t.Run("generates 32-byte challenge as hex", func(t *testing.T) {
		challenge, err := auth.GenerateChallenge()
		require.NoError(t, err)
		assert.Len(t, challenge, 64)
	})

	t.Run("generates unique challenges", func(t *testing.T) {
		challenge1, err1 := auth.GenerateChallenge()
		challenge2, err2 := auth.GenerateChallenge()

		require.NoError(t, err1)
		require.NoError(t, err2)
		assert.NotEqual(t, challenge1, challenge2)
	})
}

func TestAuthHandlerVerifySignature(t *testing.T) {
	auth := NewAuthHandler("test-secret")

	t.Run("accepts valid signature", func(t *testing.T) {
		challenge, err := auth.GenerateChallenge()
		require.NoError(t, err)

		assert.True(t, auth.VerifySignature(challenge, signChallenge(challenge, "test-secret")))
	})

	t.Run("rejects malformed signature", func(t *testing.T) {
		challenge, err := auth.GenerateChallenge()
		require.NoError(t, err)

		assert.False(t, auth.VerifySignature(challenge, "invalid-signature"))
	})

	t.Run("rejects signature from wrong secret", func(t *testing.T) {
		challenge, err := auth.GenerateChallenge()
		require.NoError(t, err)

		assert.False(t, auth.VerifySignature(challenge, signChallenge(challenge, "wrong-secret")))
	})
}

func TestAuthHandlerHandleAuthResponse(t *testing.T) {
	auth := NewAuthHandler("test-secret")

	t.Run("succeeds with valid signature", func(t *testing.T) {
		client := &Client{
			ID:        "test-client",
			Challenge: "test-challenge",
		}

		result := auth.HandleAuthResponse(client, signChallenge("test-challenge", "test-secret"))

		assert.True(t, result.Success)
		assert.Equal(t, "auth.success", result.Event)
		assert.True(t, client.Authenticated)
		assert.Equal(t, StateAuthenticated, client.State)
		assert.Equal(t, 0, client.AuthAttempts)
		assert.Empty(t, client.Challenge)
	})

	t.Run("fails with invalid signature", func(t *testing.T) {
		client := &Client{
			ID:        "test-client",
			Challenge: "test-challenge",
		}

		result := auth.HandleAuthResponse(client, "invalid-signature")

		assert.False(t, result.Success)
		assert.Equal(t, "auth.failure", result.Event)
		assert.False(t, client.Authenticated)
		assert.Equal(t, 1, client.AuthAttempts)
	})

	t.Run("blocks after repeated failures", func(t *testing.T) {
		client := &Client{
			ID:           "test-client",
			Challenge:    "test-challenge",
			AuthAttempts: maxAuthAttempts - 1,
		}

		result := auth.HandleAuthResponse(client, "invalid-signature")

		assert.False(t, result.Success)
		assert.Equal(t, "auth.failure", result.Event)
		assert.Contains(t, result.Message, "Too many failed attempts")
		assert.Equal(t, maxAuthAttempts, client.AuthAttempts)
	})

	t.Run("fails when no challenge exists", func(t *testing.T) {
		client := &Client{ID: "test-client"}

		result := auth.HandleAuthResponse(client, "any-signature")

		assert.False(t, result.Success)
		assert.Contains(t, result.Message, "No challenge found")
	})
}

// signChallenge computes the HMAC-SHA256 signature a client would send.
func signChallenge(challenge, secret string) string {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write([]byte(challenge))
	return hex.EncodeToString(h.Sum(nil))
}
