// Package crypto encrypts app settings stored in Saleor private metadata.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

// hkdfInfo binds derived keys to their use.
const hkdfInfo = "saleor-apps settings v1"

// ErrEmptySecret is returned when no secret key is configured
var ErrEmptySecret = errors.New("crypto: secret key is empty")

// Encryptor encrypts and decrypts settings values.
type Encryptor interface {
	Encrypt(plaintext string) (string, error)
	Decrypt(ciphertext string) (string, error)
}

// NoopEncryptor passes values through unchanged. Tests only.
type NoopEncryptor struct{}

func (NoopEncryptor) Encrypt(plaintext string) (string, error)  { return plaintext, nil }
func (NoopEncryptor) Decrypt(ciphertext string) (string, error) { return ciphertext, nil }

// AESGCMEncryptor is AES-256-GCM with a key derived from SECRET_KEY via HKDF-SHA256.
// Output is hex(nonce || ciphertext || tag).
type AESGCMEncryptor struct {
	gcm cipher.AEAD
}

// NewAESGCMEncryptor derives the AES key from secret.
func NewAESGCMEncryptor(secret string) (*AESGCMEncryptor, error) {
	if secret == "" {
		return nil, ErrEmptySecret
	}

	key := make([]byte, 32)
	if _, err := io.ReadFull(hkdf.New(sha256.New, []byte(secret), nil, []byte(hkdfInfo)), key); err != nil {
		return nil, fmt.Errorf("crypto: derive key: %w", err)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("crypto: create cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("crypto: create GCM: %w", err)
	}

	return &AESGCMEncryptor{gcm: gcm}, nil
}

// Encrypt seals plaintext with a random nonce.
func (e *AESGCMEncryptor) Encrypt(plaintext string) (string, error) {
	nonce := make([]byte, e.gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("crypto: generate nonce: %w", err)
	}

	sealed := e.gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	return hex.EncodeToString(sealed), nil
}

// Decrypt opens a value produced by Encrypt.
func (e *AESGCMEncryptor) Decrypt(ciphertext string) (string, error) {
	buffer, err := hex.DecodeString(ciphertext)
	if err != nil {
		return "", fmt.Errorf("crypto: decode hex: %w", err)
	}

	nonceSize := e.gcm.NonceSize()
	if len(buffer) < nonceSize+e.gcm.Overhead() {
		return "", fmt.Errorf("crypto: ciphertext too short")
	}

	nonce, sealed := buffer[:nonceSize], buffer[nonceSize:]
	plain, err := e.gcm.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", fmt.Errorf("crypto: decrypt: %w", err)
	}
	return string(plain), nil
}
