package session

import (
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

// ErrTampered is returned when a sealed session fails authentication
var ErrTampered = errors.New("session file is corrupted or was sealed with another key")

const sealInfo = "logiride-session-v1"

// sealMagic prefixes sealed files so plain JSON and sealed content are told apart
var sealMagic = []byte("LRS1")

// Sealer encrypts session files with XChaCha20-Poly1305
type Sealer struct {
	key []byte
}

// NewSealer derives a 256-bit key from secret with HKDF-SHA256
func NewSealer(secret string) (*Sealer, error) {
	if secret == "" {
		return nil, errors.New("empty session encryption secret")
	}
	key := make([]byte, chacha20poly1305.KeySize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, []byte(secret), nil, []byte(sealInfo)), key); err != nil {
		return nil, fmt.Errorf("derive session key: %w", err)
	}
	return &Sealer{key: key}, nil
}

// Seal encrypts plaintext; the output is magic || nonce || ciphertext
func (s *Sealer) Seal(plaintext []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(s.key)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}
	out := make([]byte, 0, len(sealMagic)+len(nonce)+len(plaintext)+aead.Overhead())
	out = append(out, sealMagic...)
	out = append(out, nonce...)
	return aead.Seal(out, nonce, plaintext, sealMagic), nil
}

// Open reverses Seal
func (s *Sealer) Open(sealed []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(s.key)
	if err != nil {
		return nil, err
	}
	if !IsSealed(sealed) || len(sealed) < len(sealMagic)+aead.NonceSize()+aead.Overhead() {
		return nil, ErrTampered
	}
	body := sealed[len(sealMagic):]
	nonce, ct := body[:aead.NonceSize()], body[aead.NonceSize():]
	plaintext, err := aead.Open(nil, nonce, ct, sealMagic)
	if err != nil {
		return nil, ErrTampered
	}
	return plaintext, nil
}

// IsSealed reports whether data carries the sealed-file prefix
func IsSealed(data []byte) bool {
	return len(data) >= len(sealMagic) && string(data[:len(sealMagic)]) == string(sealMagic)
}
