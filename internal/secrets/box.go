// Package secrets provides at-rest encryption for OAuth client secrets and
// tokens. Encrypted values are tagged with a version prefix so that legacy
// rows holding bare plaintext can still be read.
package secrets

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"io"
	"strings"
)

// prefixV1 tags AES-256-GCM ciphertext: base64(nonce || sealed).
const prefixV1 = "enc:v1:"

// Box encrypts and decrypts short secret strings with AES-256-GCM.
// A zero-key Box (from NewBox("")) is a passthrough; Encrypt and Decrypt
// return values unchanged. This keeps local setups working before an
// encryption key is provisioned.
type Box struct {
	aead cipher.AEAD
}

// NewBox creates a Box from a 32-byte key. An empty key yields a
// passthrough Box; any other length is an error.
func NewBox(key string) (*Box, error) {
	if key == "" {
		return &Box{}, nil
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("encryption key must be exactly 32 bytes, got %d", len(key))
	}

	block, err := aes.NewCipher([]byte(key))
	if err != nil {
		return nil, err
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	return &Box{aead: aead}, nil
}

// Enabled reports whether the box actually encrypts.
func (b *Box) Enabled() bool {
	return b.aead != nil
}

// Encrypt seals a plaintext secret and returns the tagged ciphertext.
// Empty values are stored as-is so column emptiness stays meaningful.
func (b *Box) Encrypt(plaintext string) (string, error) {
	if b.aead == nil || plaintext == "" {
		return plaintext, nil
	}

	nonce := make([]byte, b.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", err
	}

	sealed := b.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return prefixV1 + base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt opens a tagged ciphertext. Values without the version prefix are
// treated as legacy plaintext and returned unchanged; this is a
// compatibility shim for rows written before encryption was introduced,
// not a security boundary.
func (b *Box) Decrypt(value string) (string, error) {
	if !strings.HasPrefix(value, prefixV1) {
		return value, nil
	}
	if b.aead == nil {
		return "", fmt.Errorf("encrypted value present but no encryption key configured")
	}

	raw, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(value, prefixV1))
	if err != nil {
		return "", fmt.Errorf("malformed ciphertext: %w", err)
	}
	if len(raw) < b.aead.NonceSize() {
		return "", fmt.Errorf("malformed ciphertext: too short")
	}

	nonce, sealed := raw[:b.aead.NonceSize()], raw[b.aead.NonceSize():]
	plaintext, err := b.aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", fmt.Errorf("failed to decrypt secret: %w", err)
	}
	return string(plaintext), nil
}
