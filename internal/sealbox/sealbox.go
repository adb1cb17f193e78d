// Package sealbox seals session result payloads at rest with the broker
// master key. With no key configured, payloads pass through unchanged.
package sealbox

import (
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"
)

var ErrOpenFailed = errors.New("sealbox: payload cannot be opened")

// Box encrypts and decrypts byte payloads with XChaCha20-Poly1305.
// The zero-value-like Box returned for an empty key is a passthrough.
type Box struct {
	aead cipher.AEAD
}

// New derives an AEAD key from the master key string via SHA-256.
// An empty master key yields a passthrough Box.
func New(masterKey []byte) (*Box, error) {
	if len(masterKey) == 0 {
		return &Box{}, nil
	}
	sum := sha256.Sum256(masterKey)
	aead, err := chacha20poly1305.NewX(sum[:])
	if err != nil {
		return nil, fmt.Errorf("[New] init aead: %w", err)
	}
	return &Box{aead: aead}, nil
}

// Enabled reports whether payloads are actually encrypted.
func (b *Box) Enabled() bool {
	return b != nil && b.aead != nil
}

// Seal encrypts plain and prepends the random nonce.
func (b *Box) Seal(plain []byte) ([]byte, error) {
	if !b.Enabled() {
		return plain, nil
	}
	nonce := make([]byte, b.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("[Seal] generate nonce: %w", err)
	}
	return b.aead.Seal(nonce, nonce, plain, nil), nil
}

// Open decrypts a payload produced by Seal.
func (b *Box) Open(sealed []byte) ([]byte, error) {
	if !b.Enabled() {
		return sealed, nil
	}
	if len(sealed) < b.aead.NonceSize() {
		return nil, ErrOpenFailed
	}
	nonce, ciphertext := sealed[:b.aead.NonceSize()], sealed[b.aead.NonceSize():]
	plain, err := b.aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, ErrOpenFailed
	}
	return plain, nil
}
