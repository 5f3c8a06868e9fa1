// Package secret encrypts API keys at rest with a passphrase.
//
// The key is derived with PBKDF2-HMAC-SHA256 over the passphrase and a fixed
// application salt, then used for AES-256-GCM with a random 12-byte nonce.
// The blob is base64(nonce || ciphertext).
package secret

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"

	"golang.org/x/crypto/pbkdf2"
)

const (
	// Iterations is the PBKDF2 work factor.
	Iterations = 100_000
	keyLength  = 32
	nonceSize  = 12
)

// salt is fixed so the same passphrase always derives the same key.
var salt = []byte("sessionvault/api-keys/v1")

// ErrDecrypt is returned when a blob cannot be opened, either because the
// passphrase is wrong or the blob was altered.
var ErrDecrypt = errors.New("decrypt failed: wrong passphrase or corrupted data")

// ErrEmptyPassphrase is returned for an empty passphrase.
var ErrEmptyPassphrase = errors.New("passphrase is required")

func deriveKey(passphrase string) []byte {
	return pbkdf2.Key([]byte(passphrase), salt, Iterations, keyLength, sha256.New)
}

func newAEAD(passphrase string) (cipher.AEAD, error) {
	block, err := aes.NewCipher(deriveKey(passphrase))
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}
	gcm, err := cipher.NewGCMWithNonceSize(block, nonceSize)
	if err != nil {
		return nil, fmt.Errorf("create gcm: %w", err)
	}
	return gcm, nil
}

// Encrypt seals plaintext under passphrase.
func Encrypt(passphrase, plaintext string) (string, error) {
	if passphrase == "" {
		return "", ErrEmptyPassphrase
	}
	gcm, err := newAEAD(passphrase)
	if err != nil {
		return "", err
	}

	nonce := make([]byte, nonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}
	sealed := gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt opens a blob produced by Encrypt.
func Decrypt(passphrase, blob string) (string, error) {
	if passphrase == "" {
		return "", ErrEmptyPassphrase
	}
	data, err := base64.StdEncoding.DecodeString(blob)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrDecrypt, err)
	}
	if len(data) < nonceSize {
		return "", ErrDecrypt
	}

	gcm, err := newAEAD(passphrase)
	if err != nil {
		return "", err
	}
	plain, err := gcm.Open(nil, data[:nonceSize], data[nonceSize:], nil)
	if err != nil {
		return "", ErrDecrypt
	}
	return string(plain), nil
}
