package crypto

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testKey = []byte("0123456789abcdef0123456789abcdef")

func TestEncryptor(t *testing.T) {
	enc, err := NewEncryptor(testKey)
	require.NoError(t, err)

	t.Run("round trip", func(t *testing.T) {
		plaintext := `{"access_token":"secret-value"}`
		sealed, err := enc.Encrypt(plaintext)
		require.NoError(t, err)
		assert.NotEqual(t, plaintext, sealed)

		opened, err := enc.Decrypt(sealed)
		require.NoError(t, err)
		assert.Equal(t, plaintext, opened)
	})

	t.Run("same plaintext encrypts differently", func(t *testing.T) {
		a, err := enc.Encrypt("payload")
		require.NoError(t, err)
		b, err := enc.Encrypt("payload")
		require.NoError(t, err)
		assert.NotEqual(t, a, b)
	})

	t.Run("tampered ciphertext fails", func(t *testing.T) {
		sealed, err := enc.Encrypt("payload")
		require.NoError(t, err)

		tampered := []byte(sealed)
		tampered[len(tampered)-1] ^= 1
		_, err = enc.Decrypt(string(tampered))
		assert.Error(t, err)
	})

	t.Run("wrong key fails", func(t *testing.T) {
		other, err := NewEncryptor([]byte("ffffffffffffffffffffffffffffffff"))
		require.NoError(t, err)

		sealed, err := enc.Encrypt("payload")
		require.NoError(t, err)
		_, err = other.Decrypt(sealed)
		assert.Error(t, err)
	})

	t.Run("garbage input fails", func(t *testing.T) {
		_, err := enc.Decrypt("not base64url!!!")
		assert.Error(t, err)
	})
}

func TestNewEncryptorKeyLength(t *testing.T) {
	_, err := NewEncryptor([]byte("too-short"))
	assert.Error(t, err)

	_, err = NewEncryptor(testKey)
	assert.NoError(t, err)
}

func TestGenerateSecureToken(t *testing.T) {
	a, err := GenerateSecureToken()
	require.NoError(t, err)
	b, err := GenerateSecureToken()
	require.NoError(t, err)

	assert.NotEmpty(t, a)
	assert.NotEqual(t, a, b)
}
