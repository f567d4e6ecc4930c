// Package vault encrypts OAuth tokens at rest with AES-256-GCM.
package vault

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
)

// ErrAuthentication is returned when a blob fails tag verification:
// the ciphertext was tampered with or the key is wrong. It must
// propagate to the caller; decrypt never returns garbage.
var ErrAuthentication = errors.New("vault: message authentication failed")

// Vault performs authenticated symmetric encryption with a fixed
// process-wide key. The zero value is unusable; construct with New.
type Vault struct {
	aead cipher.AEAD
}

// New creates a Vault from a 32-byte key. Key length is validated at
// startup by the config layer; aes.NewCipher re-checks it here.
func New(key []byte) (*Vault, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("vault.New: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("vault.New: %w", err)
	}
	return &Vault{aead: aead}, nil
}

// Encrypt seals plaintext into a self-contained base64 blob:
// nonce || ciphertext || tag. A fresh random nonce is generated per call.
// The empty string encrypts to the empty string so "no token stored"
// round-trips without producing ciphertext.
func (v *Vault) Encrypt(plaintext string) (string, error) {
	if plaintext == "" {
		return "", nil
	}

	nonce := make([]byte, v.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("vault.Encrypt: generating nonce: %w", err)
	}

	sealed := v.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt opens a blob produced by Encrypt. The empty blob decrypts to
// the empty string. Tag verification failure returns ErrAuthentication.
func (v *Vault) Decrypt(blob string) (string, error) {
	if blob == "" {
		return "", nil
	}

	sealed, err := base64.StdEncoding.DecodeString(blob)
	if err != nil {
		return "", fmt.Errorf("vault.Decrypt: decoding blob: %w", err)
	}

	nonceSize := v.aead.NonceSize()
	if len(sealed) < nonceSize {
		return "", fmt.Errorf("vault.Decrypt: blob shorter than nonce")
	}

	nonce, ciphertext := sealed[:nonceSize], sealed[nonceSize:]
	plaintext, err := v.aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", ErrAuthentication
	}

	return string(plaintext), nil
}
