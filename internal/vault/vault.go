// Package vault encrypts small per-service secrets for storage.
//
// Envelope format: base64(nonce[12] || tag[16] || ciphertext), AES-256-GCM.
// The key is derived once with scrypt (N=32768, r=8, p=1) from a configured
// secret and salt and is immutable afterwards.
package vault

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"github.com/goccy/go-json"
	"golang.org/x/crypto/scrypt"
)

const (
	KeySize   = 32
	NonceSize = 12
	TagSize   = 16

	scryptN = 32768
	scryptR = 8
	scryptP = 1
)

var (
	ErrEmptySecret      = errors.New("vault secret cannot be empty")
	ErrEmptySalt        = errors.New("vault salt cannot be empty")
	ErrInvalidKey       = errors.New("vault key must be 32 bytes")
	ErrDecryptionFailed = errors.New("decryption failed")
)

// KeyConfig is the secret material the vault key is derived from.
type KeyConfig struct {
	Secret string
	Salt   string
}

// Key is a derived 256-bit key.
type Key [KeySize]byte

// DeriveKey runs scrypt over the configured secret and salt. Call it once at startup.
func DeriveKey(cfg KeyConfig) (Key, error) {
	var key Key
	if cfg.Secret == "" {
		return key, ErrEmptySecret
	}
	if cfg.Salt == "" {
		return key, ErrEmptySalt
	}

	raw, err := scrypt.Key([]byte(cfg.Secret), []byte(cfg.Salt), scryptN, scryptR, scryptP, KeySize)
	if err != nil {
		return key, fmt.Errorf("failed to derive vault key: %w", err)
	}
	copy(key[:], raw)
	return key, nil
}

// KeyFromBytes wraps an already-derived key.
func KeyFromBytes(b []byte) (Key, error) {
	var key Key
	if len(b) != KeySize {
		return key, ErrInvalidKey
	}
	copy(key[:], b)
	return key, nil
}

type Vault struct {
	aead cipher.AEAD
}

func New(key Key) (*Vault, error) {
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, fmt.Errorf("failed to create AES cipher: %w", err)
	}
	aead, err := cipher.NewGCMWithNonceSize(block, NonceSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return &Vault{aead: aead}, nil
}

// Seal encrypts plaintext into an envelope string.
func (v *Vault) Seal(plaintext []byte) (string, error) {
	nonce := make([]byte, NonceSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	// GCM appends the tag; the envelope carries it ahead of the ciphertext.
	sealed := v.aead.Seal(nil, nonce, plaintext, nil)
	ct, tag := sealed[:len(sealed)-TagSize], sealed[len(sealed)-TagSize:]

	out := make([]byte, 0, NonceSize+TagSize+len(ct))
	out = append(out, nonce...)
	out = append(out, tag...)
	out = append(out, ct...)
	return base64.StdEncoding.EncodeToString(out), nil
}

// Open decrypts an envelope. Every failure returns ErrDecryptionFailed.
func (v *Vault) Open(envelope string) ([]byte, error) {
	data, err := base64.StdEncoding.DecodeString(envelope)
	if err != nil {
		return nil, ErrDecryptionFailed
	}
	if len(data) < NonceSize+TagSize {
		return nil, ErrDecryptionFailed
	}

	nonce := data[:NonceSize]
	tag := data[NonceSize : NonceSize+TagSize]
	ct := data[NonceSize+TagSize:]

	sealed := make([]byte, 0, len(ct)+TagSize)
	sealed = append(sealed, ct...)
	sealed = append(sealed, tag...)

	plaintext, err := v.aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return nil, ErrDecryptionFailed
	}
	return plaintext, nil
}

// Encrypt marshals v to JSON and seals it.
func (v *Vault) Encrypt(payload any) (string, error) {
	b, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to marshal payload: %w", err)
	}
	return v.Seal(b)
}

// Decrypt opens an envelope and unmarshals the JSON payload into out.
func (v *Vault) Decrypt(envelope string, out any) error {
	b, err := v.Open(envelope)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(b, out); err != nil {
		return fmt.Errorf("%w: payload is not valid JSON", ErrDecryptionFailed)
	}
	return nil
}
