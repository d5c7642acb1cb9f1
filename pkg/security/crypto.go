// Package security guards the local gateway (API-key auth, per-caller
// rate limits) and provides optional at-rest encryption of message
// content. Channel secrets never touch this package; they stay inside
// the channel derivation and the transport.
package security

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"sync"
)

var (
	keyMu sync.RWMutex
	key   []byte
)

// SetKeyHex installs the at-rest key (hex, 16/24/32 bytes decoded).
// An empty string disables encryption.
func SetKeyHex(hexKey string) error {
	keyMu.Lock()
	defer keyMu.Unlock()
	if hexKey == "" {
		key = nil
		return nil
	}
	k, err := hex.DecodeString(hexKey)
	if err != nil {
		return fmt.Errorf("at-rest key is not hex: %w", err)
	}
	switch len(k) {
	case 16, 24, 32:
	default:
		return fmt.Errorf("at-rest key must be 16, 24 or 32 bytes, got %d", len(k))
	}
	key = k
	return nil
}

// EncryptionEnabled reports whether an at-rest key is installed.
func EncryptionEnabled() bool {
	keyMu.RLock()
	defer keyMu.RUnlock()
	return len(key) > 0
}

func gcm() (cipher.AEAD, error) {
	keyMu.RLock()
	k := key
	keyMu.RUnlock()
	if len(k) == 0 {
		return nil, errors.New("encryption not configured")
	}
	block, err := aes.NewCipher(k)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

// EncryptString seals plaintext with AES-GCM and returns
// base64(nonce||ciphertext).
func EncryptString(plaintext string) (string, error) {
	aead, err := gcm()
	if err != nil {
		return "", err
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", err
	}
	sealed := aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// DecryptString reverses EncryptString.
func DecryptString(sealed string) (string, error) {
	aead, err := gcm()
	if err != nil {
		return "", err
	}
	raw, err := base64.StdEncoding.DecodeString(sealed)
	if err != nil {
		return "", fmt.Errorf("bad ciphertext encoding: %w", err)
	}
	ns := aead.NonceSize()
	if len(raw) < ns {
		return "", errors.New("ciphertext too short")
	}
	plain, err := aead.Open(nil, raw[:ns], raw[ns:], nil)
	if err != nil {
		return "", fmt.Errorf("decrypt failed: %w", err)
	}
	return string(plain), nil
}
