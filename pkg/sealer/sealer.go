package sealer

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"io"
	"os"
)

const envSealKey = "LANEDESK_SEAL_KEY"

// Sealer encrypts signature payloads at rest. Signature images are
// personal data; the agreement record stores only the sealed form.
type Sealer struct {
	key []byte
}

// New reads the base64-encoded 256-bit key from the environment.
func New() (*Sealer, error) {
	encoded := os.Getenv(envSealKey)
	if encoded == "" {
		return nil, fmt.Errorf("%s is not set", envSealKey)
	}

	key, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("invalid seal key: %w", err)
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("seal key must be 32 bytes, got %d", len(key))
	}

	return &Sealer{key: key}, nil
}

func NewWithKey(key []byte) (*Sealer, error) {
	if len(key) != 32 {
		return nil, fmt.Errorf("seal key must be 32 bytes, got %d", len(key))
	}
	return &Sealer{key: key}, nil
}

func (s *Sealer) Seal(plaintext []byte) (string, error) {
	aesgcm, err := s.aead()
	if err != nil {
		return "", err
	}

	nonce := make([]byte, aesgcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", err
	}

	ct := aesgcm.Seal(nonce, nonce, plaintext, nil)
	return base64.RawURLEncoding.EncodeToString(ct), nil
}

func (s *Sealer) Open(sealed string) ([]byte, error) {
	aesgcm, err := s.aead()
	if err != nil {
		return nil, err
	}

	data, err := base64.RawURLEncoding.DecodeString(sealed)
	if err != nil {
		return nil, err
	}

	nonceSize := aesgcm.NonceSize()
	if len(data) < nonceSize {
		return nil, fmt.Errorf("sealed payload too short")
	}

	return aesgcm.Open(nil, data[:nonceSize], data[nonceSize:], nil)
}

func (s *Sealer) aead() (cipher.AEAD, error) {
	block, err := aes.NewCipher(s.key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}
