package sealer

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"runtime"

	"golang.org/x/crypto/chacha20poly1305"
)

// CipherType identifies the AEAD algorithm.
type CipherType string

const (
	CipherAESGCM   CipherType = "aes-gcm"
	CipherChaCha20 CipherType = "chacha20-poly1305"
)

// ErrCiphertextTooShort is returned when a sealed value cannot even hold a nonce.
var ErrCiphertextTooShort = errors.New("sealer: ciphertext too short")

// Cipher seals and opens values with authenticated encryption.
type Cipher interface {
	Type() CipherType

	// Seal encrypts plaintext. The result is nonce || ciphertext || tag.
	Seal(plaintext, additionalData []byte) ([]byte, error)

	// Open reverses Seal. It fails if the value or the additional data
	// was tampered with.
	Open(sealed, additionalData []byte) ([]byte, error)
}

// New returns the preferred cipher for this platform: AES-GCM where the
// runtime has hardware AES, ChaCha20-Poly1305 elsewhere.
func New(key []byte) (Cipher, error) {
	switch runtime.GOARCH {
	case "amd64", "arm64":
		return NewWithType(key, CipherAESGCM)
	default:
		return NewWithType(key, CipherChaCha20)
	}
}

// NewWithType returns a cipher of the requested type.
func NewWithType(key []byte, typ CipherType) (Cipher, error) {
	var (
		aead cipher.AEAD
		err  error
	)

	switch typ {
	case CipherAESGCM:
		switch len(key) {
		case 16, 24, 32:
		default:
			return nil, fmt.Errorf("sealer: aes-gcm key must be 16, 24 or 32 bytes, got %d", len(key))
		}
		block, blockErr := aes.NewCipher(key)
		if blockErr != nil {
			return nil, blockErr
		}
		aead, err = cipher.NewGCM(block)
	case CipherChaCha20:
		if len(key) != chacha20poly1305.KeySize {
			return nil, fmt.Errorf("sealer: chacha20-poly1305 key must be %d bytes, got %d",
				chacha20poly1305.KeySize, len(key))
		}
		aead, err = chacha20poly1305.New(key)
	default:
		return nil, fmt.Errorf("sealer: unknown cipher type %q", typ)
	}
	if err != nil {
		return nil, err
	}

	return &aeadCipher{typ: typ, aead: aead}, nil
}

type aeadCipher struct {
	typ  CipherType
	aead cipher.AEAD
}

func (c *aeadCipher) Type() CipherType {
	return c.typ
}

func (c *aeadCipher) Seal(plaintext, additionalData []byte) ([]byte, error) {
	nonce := make([]byte, c.aead.NonceSize(), c.aead.NonceSize()+len(plaintext)+c.aead.Overhead())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("sealer: read nonce: %w", err)
	}
	return c.aead.Seal(nonce, nonce, plaintext, additionalData), nil
}

func (c *aeadCipher) Open(sealed, additionalData []byte) ([]byte, error) {
	n := c.aead.NonceSize()
	if len(sealed) < n+c.aead.Overhead() {
		return nil, ErrCiphertextTooShort
	}
	return c.aead.Open(nil, sealed[:n], sealed[n:], additionalData)
}
