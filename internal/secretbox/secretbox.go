// Package secretbox encrypts credential fields at rest.
//
// Accounts API credentials never touch the database in plaintext. A
// single symmetric key is generated on first run and persisted next to
// the database; losing the key makes stored credentials unrecoverable,
// which is intentional.
package secretbox

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"os"

	"golang.org/x/crypto/chacha20poly1305"
)

const keySize = chacha20poly1305.KeySize

// ErrDecrypt is returned when ciphertext is malformed or was sealed
// under a different key.
var ErrDecrypt = errors.New("secretbox: decryption failed")

// Box seals and opens short strings under a fixed symmetric key.
// It is safe for concurrent use; the key is read-only after New.
type Box struct {
	key []byte
}

func New(key []byte) (*Box, error) {
	if len(key) != keySize {
		return nil, fmt.Errorf("secretbox: key must be %d bytes, got %d", keySize, len(key))
	}
	return &Box{key: append([]byte(nil), key...)}, nil
}

// LoadOrCreateKey loads the key file at path, generating and persisting
// a fresh key on first run. A key file that exists but cannot be read
// or has the wrong length is fatal to the caller: credentials sealed
// under it would be unrecoverable anyway.
func LoadOrCreateKey(path string) ([]byte, error) {
	b, err := os.ReadFile(path)
	switch {
	case err == nil:
		if len(b) != keySize {
			return nil, fmt.Errorf("secretbox: key file %s has %d bytes, want %d", path, len(b), keySize)
		}
		return b, nil
	case os.IsNotExist(err):
		key := make([]byte, keySize)
		if _, err := io.ReadFull(rand.Reader, key); err != nil {
			return nil, fmt.Errorf("secretbox: generate key: %w", err)
		}
		if err := os.WriteFile(path, key, 0o600); err != nil {
			return nil, fmt.Errorf("secretbox: persist key: %w", err)
		}
		return key, nil
	default:
		return nil, fmt.Errorf("secretbox: read key file %s: %w", path, err)
	}
}

// Seal encrypts plaintext and returns base64(nonce || ciphertext || tag).
// Each call uses a fresh random nonce, so repeated plaintexts produce
// different ciphertexts.
func (b *Box) Seal(plaintext string) (string, error) {
	aead, err := chacha20poly1305.NewX(b.key)
	if err != nil {
		return "", err
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("secretbox: nonce: %w", err)
	}
	out := aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(out), nil
}

// Open reverses Seal. It returns ErrDecrypt for anything that is not a
// valid ciphertext under this box's key.
func (b *Box) Open(ciphertext string) (string, error) {
	wire, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", ErrDecrypt
	}
	aead, err := chacha20poly1305.NewX(b.key)
	if err != nil {
		return "", err
	}
	if len(wire) < aead.NonceSize() {
		return "", ErrDecrypt
	}
	nonce, sealed := wire[:aead.NonceSize()], wire[aead.NonceSize():]
	pt, err := aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", ErrDecrypt
	}
	return string(pt), nil
}
