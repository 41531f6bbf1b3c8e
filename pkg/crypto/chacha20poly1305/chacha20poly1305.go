// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// jwtworkbench is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

// Package chacha20poly1305 wraps golang.org/x/crypto/chacha20poly1305 behind
// a small AEAD interface producing/consuming a self-contained Sealed value,
// used by the bundle codec's ciphertext section.
package chacha20poly1305

import (
	"crypto/cipher"
	"crypto/rand"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"
)

const (
	AlgorithmChaCha20Poly1305  = "chacha20-poly1305"
	AlgorithmXChaCha20Poly1305 = "xchacha20-poly1305"
)

// Sealed is ciphertext plus the nonce it was sealed with. The Poly1305 tag
// is appended to Ciphertext by cipher.AEAD.Seal, not split out separately.
type Sealed struct {
	Ciphertext []byte
	Nonce      []byte
	Algorithm  string
}

// AEAD encrypts and decrypts opaque byte payloads with additional
// authenticated data (typically the bundle's envelope header bytes).
type AEAD interface {
	Encrypt(plaintext, additionalData []byte) (*Sealed, error)
	Decrypt(sealed *Sealed, additionalData []byte) ([]byte, error)
	NonceSize() int
	Overhead() int
}

type aeadCipher struct {
	aead      cipher.AEAD
	algorithm string
}

// New builds a standard ChaCha20-Poly1305 cipher (12-byte nonce). key must
// be 32 bytes.
func New(key []byte) (AEAD, error) {
	if len(key) != chacha20poly1305.KeySize {
		return nil, fmt.Errorf("invalid key size: %d bytes (must be 32 bytes)", len(key))
	}
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create chacha20-poly1305 cipher: %w", err)
	}
	return &aeadCipher{aead: aead, algorithm: AlgorithmChaCha20Poly1305}, nil
}

// NewX builds an XChaCha20-Poly1305 cipher (24-byte nonce), safe for random
// nonce generation without a counter. key must be 32 bytes.
func NewX(key []byte) (AEAD, error) {
	if len(key) != chacha20poly1305.KeySize {
		return nil, fmt.Errorf("invalid key size: %d bytes (must be 32 bytes)", len(key))
	}
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create xchacha20-poly1305 cipher: %w", err)
	}
	return &aeadCipher{aead: aead, algorithm: AlgorithmXChaCha20Poly1305}, nil
}

func (c *aeadCipher) Encrypt(plaintext, additionalData []byte) (*Sealed, error) {
	nonce := make([]byte, c.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}
	ciphertext := c.aead.Seal(nil, nonce, plaintext, additionalData)
	return &Sealed{Ciphertext: ciphertext, Nonce: nonce, Algorithm: c.algorithm}, nil
}

func (c *aeadCipher) Decrypt(sealed *Sealed, additionalData []byte) ([]byte, error) {
	if sealed == nil {
		return nil, fmt.Errorf("sealed value cannot be nil")
	}
	if len(sealed.Nonce) != c.aead.NonceSize() {
		return nil, fmt.Errorf("invalid nonce size: %d bytes (must be %d bytes)", len(sealed.Nonce), c.aead.NonceSize())
	}
	plaintext, err := c.aead.Open(nil, sealed.Nonce, sealed.Ciphertext, additionalData)
	if err != nil {
		return nil, fmt.Errorf("decryption failed (authentication error): %w", err)
	}
	return plaintext, nil
}

func (c *aeadCipher) NonceSize() int { return c.aead.NonceSize() }
func (c *aeadCipher) Overhead() int  { return c.aead.Overhead() }

// GenerateKey returns a random 32-byte key suitable for New or NewX.
func GenerateKey() ([]byte, error) {
	key := make([]byte, chacha20poly1305.KeySize)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("failed to generate key: %w", err)
	}
	return key, nil
}
