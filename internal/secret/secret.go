// Package secret seals credential secrets at rest.
package secret

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
)

// Box encrypts secrets with AES-256-GCM. A Box without a key stores secrets
// as plaintext.
type Box struct {
	key []byte
}

// NewBox creates a Box. key must be 32 bytes, or empty for plaintext storage.
func NewBox(key []byte) (*Box, error) {
	if len(key) != 0 && len(key) != 32 {
		return nil, fmt.Errorf("secret: key must be 32 bytes, got %d", len(key))
	}
	return &Box{key: key}, nil
}

// NewBoxHex creates a Box from a 64 character hex key. An empty string
// disables encryption.
func NewBoxHex(hexKey string) (*Box, error) {
	if hexKey == "" {
		return &Box{}, nil
	}
	key, err := hex.DecodeString(hexKey)
	if err != nil {
		return nil, fmt.Errorf("secret: decode key: %w", err)
	}
	return NewBox(key)
}

// Fingerprint returns a stable digest of plaintext used to detect duplicates
// without reading sealed values back.
func Fingerprint(plaintext string) string {
	sum := sha256.Sum256([]byte(plaintext))
	return hex.EncodeToString(sum[:])
}

// Seal encrypts plaintext and returns base64 of nonce || ciphertext || tag.
func (b *Box) Seal(plaintext string) (string, error) {
	if b == nil || len(b.key) == 0 {
		return plaintext, nil
	}

	gcm, err := b.gcm()
	if err != nil {
		return "", err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("secret: rand nonce: %w", err)
	}

	ciphertext := gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(ciphertext), nil
}

// Open reverses Seal.
func (b *Box) Open(sealed string) (string, error) {
	if b == nil || len(b.key) == 0 {
		return sealed, nil
	}

	data, err := base64.StdEncoding.DecodeString(sealed)
	if err != nil {
		return "", fmt.Errorf("secret: base64 decode: %w", err)
	}

	gcm, err := b.gcm()
	if err != nil {
		return "", err
	}

	nonceSize := gcm.NonceSize()
	if len(data) < nonceSize {
		return "", errors.New("secret: ciphertext too short")
	}

	nonce, ciphertext := data[:nonceSize], data[nonceSize:]
	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("secret: gcm open: %w", err)
	}
	return string(plaintext), nil
}

func (b *Box) gcm() (cipher.AEAD, error) {
	block, err := aes.NewCipher(b.key)
	if err != nil {
		return nil, fmt.Errorf("secret: aes.NewCipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("secret: cipher.NewGCM: %w", err)
	}
	return gcm, nil
}
