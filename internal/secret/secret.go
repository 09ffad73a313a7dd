// Package secret seals credentials before they are written to storage.
package secret

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/nacl/secretbox"
)

const (
	prefix    = "sb1:"
	nonceSize = 24
)

var ErrMalformed = errors.New("sealed value is malformed")

// Sealer encrypts and decrypts short secrets with NaCl secretbox.
type Sealer struct {
	key [32]byte
}

// NewSealer derives the box key from passphrase.
func NewSealer(passphrase string) *Sealer {
	return &Sealer{key: sha256.Sum256([]byte(passphrase))}
}

// Seal returns a prefixed base64 ciphertext for plaintext. Empty strings are
// returned as-is.
func (s *Sealer) Seal(plaintext string) (string, error) {
	if plaintext == "" {
		return "", nil
	}

	var nonce [nonceSize]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}

	box := secretbox.Seal(nonce[:], []byte(plaintext), &nonce, &s.key)
	return prefix + base64.RawURLEncoding.EncodeToString(box), nil
}

// Open reverses Seal. Values without the seal prefix are plaintext rows
// written before sealing was enabled and are returned unchanged.
func (s *Sealer) Open(sealed string) (string, error) {
	if !IsSealed(sealed) {
		return sealed, nil
	}

	raw, err := base64.RawURLEncoding.DecodeString(strings.TrimPrefix(sealed, prefix))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if len(raw) < nonceSize+secretbox.Overhead {
		return "", ErrMalformed
	}

	var nonce [nonceSize]byte
	copy(nonce[:], raw[:nonceSize])

	out, ok := secretbox.Open(nil, raw[nonceSize:], &nonce, &s.key)
	if !ok {
		return "", fmt.Errorf("%w: authentication failed", ErrMalformed)
	}
	return string(out), nil
}

func IsSealed(v string) bool {
	return strings.HasPrefix(v, prefix)
}
