// Package secret stores gateway credentials encrypted at rest in the
// environment. Encrypted values carry the "enc:" prefix.
package secret

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

const Prefix = "enc:"

var (
	ErrNoKey      = errors.New("secret: value is encrypted but no key is set")
	ErrCiphertext = errors.New("secret: ciphertext too short")
)

// deriveKey pads or truncates the shared key to AES-256 size.
func deriveKey(psk string) []byte {
	key := make([]byte, 32)
	copy(key, psk)
	return key
}

func newGCM(psk string) (cipher.AEAD, error) {
	block, err := aes.NewCipher(deriveKey(psk))
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	return cipher.NewGCM(block)
}

// Encrypt returns plaintext sealed with AES-256-GCM, base64 encoded and
// prefixed.
func Encrypt(plaintext, psk string) (string, error) {
	if psk == "" {
		return "", ErrNoKey
	}
	gcm, err := newGCM(psk)
	if err != nil {
		return "", err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	sealed := gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	return Prefix + base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt opens a value produced by Encrypt. The prefix is optional.
func Decrypt(value, psk string) (string, error) {
	if psk == "" {
		return "", ErrNoKey
	}
	combined, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(value, Prefix))
	if err != nil {
		return "", fmt.Errorf("failed to decode base64: %w", err)
	}
	gcm, err := newGCM(psk)
	if err != nil {
		return "", err
	}
	if len(combined) < gcm.NonceSize() {
		return "", ErrCiphertext
	}

	nonce, ciphertext := combined[:gcm.NonceSize()], combined[gcm.NonceSize():]
	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("failed to decrypt: %w", err)
	}
	return string(plaintext), nil
}

// Resolve decrypts value when it is prefixed and returns it unchanged
// otherwise.
func Resolve(value, psk string) (string, error) {
	if !strings.HasPrefix(value, Prefix) {
		return value, nil
	}
	return Decrypt(value, psk)
}
