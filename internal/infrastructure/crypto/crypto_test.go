package crypto

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewAESGCMEncryptor_EmptySecret(t *testing.T) {
	enc, err := NewAESGCMEncryptor("")
	assert.ErrorIs(t, err, ErrEmptySecret)
	assert.Nil(t, enc)
}

func TestEncryptDecrypt_Roundtrip(t *testing.T) {
	enc, err := NewAESGCMEncryptor("CHANGE_ME")
	require.NoError(t, err)

	plaintext := `{"configurations":[{"id":"1","smtpHost":"mail.example.com"}]}`

	ciphertext, err := enc.Encrypt(plaintext)
	require.NoError(t, err)
	assert.NotContains(t, ciphertext, "smtpHost")

	decrypted, err := enc.Decrypt(ciphertext)
	require.NoError(t, err)
	assert.Equal(t, plaintext, decrypted)
}

func TestEncrypt_UniqueNonces(t *testing.T) {
	enc, err := NewAESGCMEncryptor("secret")
	require.NoError(t, err)

	a, err := enc.Encrypt("same")
	require.NoError(t, err)
	b, err := enc.Encrypt("same")
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestDecrypt_SameSecretAcrossInstances(t *testing.T) {
	first, err := NewAESGCMEncryptor("shared-secret")
	require.NoError(t, err)
	second, err := NewAESGCMEncryptor("shared-secret")
	require.NoError(t, err)

	ciphertext, err := first.Encrypt("value")
	require.NoError(t, err)

	plain, err := second.Decrypt(ciphertext)
	require.NoError(t, err)
	assert.Equal(t, "value", plain)
}

func TestDecrypt_Errors(t *testing.T) {
	enc, err := NewAESGCMEncryptor("secret")
	require.NoError(t, err)
	other, err := NewAESGCMEncryptor("another-secret")
	require.NoError(t, err)

	valid, err := enc.Encrypt("payload")
	require.NoError(t, err)

	tests := []struct {
		name  string
		input string
	}{
		{"not hex", "zz-not-hex"},
		{"too short", "abcd"},
		{"tampered", valid[:len(valid)-2] + strings.Repeat("0", 2)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := enc.Decrypt(tt.input)
			assert.Error(t, err)
		})
	}

	t.Run("wrong key", func(t *testing.T) {
		_, err := other.Decrypt(valid)
		assert.Error(t, err)
	})
}

func TestNoopEncryptor(t *testing.T) {
	var enc Encryptor = NoopEncryptor{}
	out, err := enc.Encrypt("x")
	require.NoError(t, err)
	assert.Equal(t, "x", out)
	out, err = enc.Decrypt("y")
	require.NoError(t, err)
	assert.Equal(t, "y", out)
}
