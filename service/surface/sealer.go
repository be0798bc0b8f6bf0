package surface

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/scrypt"
)

var ErrSealedDataCorrupted = errors.New("sealed data corrupted")

// Sealer encrypts notification extras at rest. Extras can carry the backend
// auth token used by the fallback client.
type Sealer struct {
	aead cipher.AEAD
}

func NewSealer(secret string) (*Sealer, error) {
	key, err := deriveKey(secret)
	if err != nil {
		return nil, fmt.Errorf("failed to derive sealing key: %w", err)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}

	return &Sealer{aead: gcm}, nil
}

func deriveKey(secret string) ([]byte, error) {
	salt := []byte("courier-ledger-salt-v1")
	return scrypt.Key([]byte(secret), salt, 32768, 8, 1, 32)
}

func (s *Sealer) Seal(plaintext []byte) ([]byte, error) {
	nonce := make([]byte, s.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}
	return s.aead.Seal(nonce, nonce, plaintext, nil), nil
}

func (s *Sealer) Open(sealed []byte) ([]byte, error) {
	size := s.aead.NonceSize()
	if len(sealed) < size {
		return nil, fmt.Errorf("%w: ciphertext too short", ErrSealedDataCorrupted)
	}

	nonce, ciphertext := sealed[:size], sealed[size:]
	plaintext, err := s.aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSealedDataCorrupted, err)
	}
	return plaintext, nil
}
