// Package secrets generates tenant credentials and encrypts them at rest.
// Ciphertexts are stored as base64(nonce)|base64(ciphertext), AES-256-GCM
// under a single master key supplied at startup.
package secrets

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"
)

const (
	keyLength = 32 // AES-256
	nonceSize = 12
	sep       = "|"
)

// Box encrypts and decrypts short secrets with a fixed master key.
type Box struct {
	key []byte
}

// NewBox decodes a base64 master key and validates its length.
func NewBox(masterKeyB64 string) (*Box, error) {
	key, err := base64.StdEncoding.DecodeString(strings.TrimSpace(masterKeyB64))
	if err != nil {
		return nil, fmt.Errorf("decode master key: %w", err)
	}
	if len(key) != keyLength {
		return nil, fmt.Errorf("master key must decode to %d bytes, got %d", keyLength, len(key))
	}
	return &Box{key: key}, nil
}

// Encrypt seals plaintext and returns base64(nonce)|base64(ciphertext).
func (b *Box) Encrypt(plaintext string) (string, error) {
	aead, err := b.aead()
	if err != nil {
		return "", err
	}

	nonce := make([]byte, nonceSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}

	ct := aead.Seal(nil, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(nonce) + sep + base64.StdEncoding.EncodeToString(ct), nil
}

// Decrypt reverses Encrypt.
func (b *Box) Decrypt(ciphertext string) (string, error) {
	parts := strings.SplitN(ciphertext, sep, 2)
	if len(parts) != 2 {
		return "", errors.New("invalid ciphertext: expected base64(nonce)|base64(ciphertext)")
	}

	nonce, err := base64.StdEncoding.DecodeString(parts[0])
	if err != nil {
		return "", fmt.Errorf("decode nonce: %w", err)
	}
	if len(nonce) != nonceSize {
		return "", fmt.Errorf("invalid nonce length %d", len(nonce))
	}
	ct, err := base64.StdEncoding.DecodeString(parts[1])
	if err != nil {
		return "", fmt.Errorf("decode ciphertext: %w", err)
	}

	aead, err := b.aead()
	if err != nil {
		return "", err
	}
	pt, err := aead.Open(nil, nonce, ct, nil)
	if err != nil {
		return "", fmt.Errorf("decrypt: %w", err)
	}
	return string(pt), nil
}

func (b *Box) aead() (cipher.AEAD, error) {
	block, err := aes.NewCipher(b.key)
	if err != nil {
		return nil, fmt.Errorf("aes cipher: %w", err)
	}
	return cipher.NewGCM(block)
}

// Token returns a URL-safe random string carrying n bytes of entropy.
func Token(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := io.ReadFull(rand.Reader, buf); err != nil {
		return "", fmt.Errorf("read random: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// NewDBPassword returns a database password with 32 bytes of entropy.
func NewDBPassword() (string, error) { return Token(32) }

// NewAppSecret returns an application secret key with 48 bytes of entropy.
func NewAppSecret() (string, error) { return Token(48) }
