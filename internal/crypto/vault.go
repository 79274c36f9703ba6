// Package crypto implements the at-rest vault for long-lived refresh credentials.
package crypto

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"io"
	"strings"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"

	"github.com/and161185/fba-recon/internal/errs"
)

const vaultInfo = "fba-recon credential vault"

// RandBytes returns n cryptographically secure random bytes.
func RandBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	_, err := rand.Read(b)
	return b, err
}

// Vault encrypts and decrypts credentials with XChaCha20-Poly1305.
// Tokens are base64url(nonce||ciphertext).
type Vault struct {
	key []byte
}

// NewVault derives the vault key from secret via HKDF-SHA256.
func NewVault(secret string) (*Vault, error) {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return nil, errors.New("vault: empty secret")
	}
	key := make([]byte, chacha20poly1305.KeySize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, []byte(secret), nil, []byte(vaultInfo)), key); err != nil {
		return nil, err
	}
	return &Vault{key: key}, nil
}

// Encrypt seals plaintext under a random nonce.
func (v *Vault) Encrypt(plaintext string) (string, error) {
	aead, err := chacha20poly1305.NewX(v.key)
	if err != nil {
		return "", err
	}
	nonce, err := RandBytes(chacha20poly1305.NonceSizeX)
	if err != nil {
		return "", err
	}
	out := make([]byte, 0, len(nonce)+len(plaintext)+aead.Overhead())
	out = append(out, nonce...)
	out = aead.Seal(out, nonce, []byte(plaintext), nil)
	return base64.RawURLEncoding.EncodeToString(out), nil
}

// Decrypt opens a token produced by Encrypt. Every failure is a *errs.CredentialError.
func (v *Vault) Decrypt(token string) (string, error) {
	blob, err := base64.RawURLEncoding.DecodeString(strings.TrimSpace(token))
	if err != nil {
		return "", &errs.CredentialError{Cause: err}
	}
	if len(blob) < chacha20poly1305.NonceSizeX {
		return "", &errs.CredentialError{Cause: errors.New("token too short")}
	}
	aead, err := chacha20poly1305.NewX(v.key)
	if err != nil {
		return "", &errs.CredentialError{Cause: err}
	}
	nonce, ct := blob[:chacha20poly1305.NonceSizeX], blob[chacha20poly1305.NonceSizeX:]
	pt, err := aead.Open(nil, nonce, ct, nil)
	if err != nil {
		return "", &errs.CredentialError{Cause: err}
	}
	return string(pt), nil
}
